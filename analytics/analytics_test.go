package analytics

import (
	"testing"
	"time"

	"github.com/alghanim/agentpulse/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, minute int) time.Time {
	return time.Date(2025, 4, 2, hour, minute, 0, 0, time.UTC)
}

func exec(ts time.Time, duration float64, success bool) models.Execution {
	return models.Execution{AgentID: 1, Message: "hello", StartedAt: ts, DurationSeconds: duration, Success: success, API: "mistralai/mistral-7b-instruct"}
}

func TestComputeStats_Empty(t *testing.T) {
	assert.Equal(t, EmptyStats(), ComputeStats(nil, DefaultPricing, time.UTC))
	assert.Equal(t, "inactive", EmptyStats().State)
	assert.Equal(t, "0.00$", EmptyStats().Cost)
}

func TestComputeStats(t *testing.T) {
	execs := []models.Execution{
		exec(at(9, 0), 1.0, true),
		exec(at(9, 30), 2.0, true),
		exec(at(14, 5), 1.5, false),
	}
	s := ComputeStats(execs, DefaultPricing, time.UTC)

	assert.Equal(t, 3, s.Executions)
	assert.Equal(t, "1.5s", s.AvgResponseTime)
	assert.Equal(t, "02/04/2025 14:05", s.LastExecution)
	assert.Equal(t, "66.7%", s.SuccessRate)
	assert.Equal(t, 90, s.Tokens)
	assert.Equal(t, "0.009$", s.Cost)
	assert.Equal(t, "mistralai/mistral-7b-instruct", s.API)
	assert.Equal(t, StateError, s.State, "last call failed")
}

func TestComputeStats_RealTokensAndLocation(t *testing.T) {
	e := exec(at(23, 15), 0.333, true)
	e.Tokens = 120
	e.API = ""
	paris := time.FixedZone("CEST", 2*60*60)

	s := ComputeStats([]models.Execution{e}, Pricing{TokensPerExecution: 30, CostPerToken: 0.001}, paris)
	assert.Equal(t, 120, s.Tokens)
	assert.Equal(t, "0.12$", s.Cost)
	assert.Equal(t, "0.33s", s.AvgResponseTime)
	assert.Equal(t, "100.0%", s.SuccessRate)
	assert.Equal(t, "03/04/2025 01:15", s.LastExecution)
	assert.Equal(t, "unknown", s.API)
	assert.Equal(t, StateActive, s.State)
}

func TestComputeStats_WholeNumbersKeepADecimal(t *testing.T) {
	execs := []models.Execution{exec(at(9, 0), 1.5, true), exec(at(9, 5), 2.5, true)}
	s := ComputeStats(execs, Pricing{TokensPerExecution: 50, CostPerToken: 0.01}, time.UTC)
	assert.Equal(t, "2.0s", s.AvgResponseTime)
	assert.Equal(t, "1.0$", s.Cost)
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "0.0", formatFloat(0))
	assert.Equal(t, "3.0", formatFloat(3))
	assert.Equal(t, "1.83", formatFloat(1.83))
	assert.Equal(t, "0.018", formatFloat(0.018))
}

func TestTimeline(t *testing.T) {
	var execs []models.Execution
	for i := 0; i < 9; i++ {
		execs = append(execs, exec(at(10, i), float64(i), i%2 == 0))
	}
	points := Timeline(execs, 0, time.UTC)
	require.Len(t, points, DefaultTimelineSize)
	assert.Equal(t, TimelinePoint{Time: "10:02", Duration: 2, Success: true}, points[0])
	assert.Equal(t, "10:08", points[6].Time)

	assert.Len(t, Timeline(execs[:3], 7, time.UTC), 3)
	assert.Empty(t, Timeline(nil, 7, time.UTC))
}

func TestHourlyActivity(t *testing.T) {
	execs := []models.Execution{
		exec(at(14, 0), 1, true),
		exec(at(8, 0), 1, true),
		exec(at(14, 30), 1, true),
	}
	h := HourlyActivity(execs, time.UTC)
	assert.Equal(t, []string{"08h", "14h"}, h.Labels)
	assert.Equal(t, []int{1, 2}, h.Data)

	empty := HourlyActivity(nil, time.UTC)
	assert.NotNil(t, empty.Labels)
	assert.Empty(t, empty.Data)
}

func TestPerformanceCurve(t *testing.T) {
	execs := []models.Execution{
		exec(at(9, 0), 1.0, true),
		exec(at(9, 10), 2.34, true),
		exec(at(11, 0), 4.0, false),
	}
	curve := PerformanceCurve(execs, time.UTC)
	assert.Equal(t, []CurvePoint{{Time: "09h", Duration: 1.67}, {Time: "11h", Duration: 4}}, curve)
	assert.Empty(t, PerformanceCurve(nil, time.UTC))
}

func TestPeakUsage(t *testing.T) {
	assert.Equal(t, Peak{Hour: "-", Utilization: 0}, PeakUsage(nil, time.UTC))

	execs := []models.Execution{
		exec(at(9, 0), 1, true),
		exec(at(15, 0), 1, true),
		exec(at(15, 1), 1, true),
	}
	assert.Equal(t, Peak{Hour: "15h", Utilization: 66.67}, PeakUsage(execs, time.UTC))

	tie := []models.Execution{exec(at(18, 0), 1, true), exec(at(7, 0), 1, true)}
	assert.Equal(t, "07h", PeakUsage(tie, time.UTC).Hour)
}

func TestLevel(t *testing.T) {
	ok := exec(at(1, 0), 0.5, true)
	assert.Equal(t, LevelInfo, Level(ok))

	slow := exec(at(1, 0), 3.2, true)
	assert.Equal(t, LevelWarning, Level(slow))

	failed := exec(at(1, 0), 0.1, false)
	assert.Equal(t, LevelError, Level(failed))

	timeout := exec(at(1, 0), 0.1, true)
	timeout.Message = "upstream Timeout while waiting"
	assert.Equal(t, LevelError, Level(timeout))
}

func TestRecentLogs(t *testing.T) {
	var execs []models.Execution
	for i := 0; i < 8; i++ {
		e := exec(at(12, i), 1, true)
		e.ID = int64(i + 1)
		execs = append(execs, e)
	}
	recent := RecentLogs(execs, 5)
	require.Len(t, recent, 5)
	assert.Equal(t, int64(8), recent[0].ID)
	assert.Equal(t, int64(4), recent[4].ID)
	assert.Equal(t, LevelInfo, recent[0].Level)

	all := Logs(execs, 0, false)
	require.Len(t, all, 8)
	assert.Equal(t, int64(1), all[0].ID)
}
