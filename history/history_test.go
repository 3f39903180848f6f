package history

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_RecentAndCap(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(4)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Append(ctx, 1,
			Message{Role: RoleUser, Content: fmt.Sprintf("q%d", i)},
			Message{Role: RoleAssistant, Content: fmt.Sprintf("a%d", i)},
		))
	}

	all, err := s.Recent(ctx, 1, -1)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "q1", all[0].Content)
	assert.Equal(t, "a2", all[3].Content)

	last, err := s.Recent(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []Message{{RoleUser, "q2"}, {RoleAssistant, "a2"}}, last)

	none, err := s.Recent(ctx, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStore_PerAgentAndClear(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	require.NoError(t, s.Append(ctx, 1, Message{RoleUser, "for one"}))
	require.NoError(t, s.Append(ctx, 2, Message{RoleUser, "for two"}))

	one, _ := s.Recent(ctx, 1, 10)
	require.Len(t, one, 1)
	assert.Equal(t, "for one", one[0].Content)

	require.NoError(t, s.Clear(ctx, 1))
	one, _ = s.Recent(ctx, 1, 10)
	assert.Empty(t, one)
	two, _ := s.Recent(ctx, 2, 10)
	assert.Len(t, two, 1)
}

func TestMemoryStore_RecentReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10)
	require.NoError(t, s.Append(ctx, 1, Message{RoleUser, "original"}))

	got, _ := s.Recent(ctx, 1, 1)
	got[0].Content = "mutated"

	again, _ := s.Recent(ctx, 1, 1)
	assert.Equal(t, "original", again[0].Content)
}

func TestMemoryStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(1000)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = s.Append(ctx, 7, Message{RoleUser, "x"})
				_, _ = s.Recent(ctx, 7, 5)
			}
		}()
	}
	wg.Wait()
	all, _ := s.Recent(ctx, 7, -1)
	assert.Len(t, all, 200)
}
