// Package analytics derives the per-agent dashboard figures from the
// recorded executions. Every function expects executions oldest first.
package analytics

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alghanim/agentpulse/models"
)

// Agent health states reported in Stats.
const (
	StateActive   = "active"
	StateError    = "error"
	StateInactive = "inactive"
)

// Log levels assigned by Level.
const (
	LevelInfo    = "INFO"
	LevelWarning = "WARNING"
	LevelError   = "ERROR"
)

// DefaultTimelineSize is how many points Timeline returns when n <= 0.
const DefaultTimelineSize = 7

// slowCallSeconds is the duration above which a call is logged as WARNING.
const slowCallSeconds = 3.0

// Pricing turns executions into token and cost estimates.
type Pricing struct {
	TokensPerExecution int
	CostPerToken       float64
}

// DefaultPricing is used when nothing is configured.
var DefaultPricing = Pricing{TokensPerExecution: 30, CostPerToken: 0.0001}

func (p Pricing) tokens(e models.Execution) int {
	if e.Tokens > 0 {
		return e.Tokens
	}
	return p.TokensPerExecution
}

type Stats struct {
	Executions      int    `json:"executions"`
	AvgResponseTime string `json:"avg_response_time"`
	LastExecution   string `json:"last_execution"`
	SuccessRate     string `json:"success_rate"`
	Tokens          int    `json:"tokens"`
	Cost            string `json:"cost"`
	API             string `json:"api"`
	State           string `json:"state"`
}

// EmptyStats is reported for an agent that never ran.
func EmptyStats() Stats {
	return Stats{
		Executions:      0,
		AvgResponseTime: "0s",
		LastExecution:   "-",
		SuccessRate:     "0%",
		Tokens:          0,
		Cost:            "0.00$",
		API:             "unknown",
		State:           StateInactive,
	}
}

// ComputeStats summarises execs.
func ComputeStats(execs []models.Execution, pricing Pricing, loc *time.Location) Stats {
	if len(execs) == 0 {
		return EmptyStats()
	}
	loc = orLocal(loc)

	var totalDuration float64
	var successes, tokens int
	for _, e := range execs {
		totalDuration += e.DurationSeconds
		if e.Success {
			successes++
		}
		tokens += pricing.tokens(e)
	}
	last := execs[len(execs)-1]
	n := float64(len(execs))

	state := StateError
	if last.Success {
		state = StateActive
	}
	api := last.API
	if api == "" {
		api = "unknown"
	}

	return Stats{
		Executions:      len(execs),
		AvgResponseTime: formatFloat(round(totalDuration/n, 2)) + "s",
		LastExecution:   last.StartedAt.In(loc).Format("02/01/2006 15:04"),
		SuccessRate:     strconv.FormatFloat(round(float64(successes)/n*100, 1), 'f', 1, 64) + "%",
		Tokens:          tokens,
		Cost:            formatFloat(round(float64(tokens)*pricing.CostPerToken, 3)) + "$",
		API:             api,
		State:           state,
	}
}

type TimelinePoint struct {
	Time     string  `json:"time"`
	Duration float64 `json:"duration"`
	Success  bool    `json:"success"`
}

// Timeline returns the last n executions as chart points.
func Timeline(execs []models.Execution, n int, loc *time.Location) []TimelinePoint {
	if n <= 0 {
		n = DefaultTimelineSize
	}
	loc = orLocal(loc)
	if len(execs) > n {
		execs = execs[len(execs)-n:]
	}
	points := make([]TimelinePoint, 0, len(execs))
	for _, e := range execs {
		points = append(points, TimelinePoint{
			Time:     e.StartedAt.In(loc).Format("15:04"),
			Duration: e.DurationSeconds,
			Success:  e.Success,
		})
	}
	return points
}

type Histogram struct {
	Labels []string `json:"labels"`
	Data   []int    `json:"data"`
}

// HourlyActivity counts executions per hour of day.
func HourlyActivity(execs []models.Execution, loc *time.Location) Histogram {
	loc = orLocal(loc)
	counts := make(map[int]int)
	for _, e := range execs {
		counts[e.StartedAt.In(loc).Hour()]++
	}
	h := Histogram{Labels: []string{}, Data: []int{}}
	for _, hour := range sortedHours(counts) {
		h.Labels = append(h.Labels, hourLabel(hour))
		h.Data = append(h.Data, counts[hour])
	}
	return h
}

type CurvePoint struct {
	Time     string  `json:"time"`
	Duration float64 `json:"duration"`
}

// PerformanceCurve averages the duration per hour of day.
func PerformanceCurve(execs []models.Execution, loc *time.Location) []CurvePoint {
	loc = orLocal(loc)
	sums := make(map[int]float64)
	counts := make(map[int]int)
	for _, e := range execs {
		hour := e.StartedAt.In(loc).Hour()
		sums[hour] += e.DurationSeconds
		counts[hour]++
	}
	curve := []CurvePoint{}
	for _, hour := range sortedHours(counts) {
		curve = append(curve, CurvePoint{
			Time:     hourLabel(hour),
			Duration: round(sums[hour]/float64(counts[hour]), 2),
		})
	}
	return curve
}

type Peak struct {
	Hour        string  `json:"hour"`
	Utilization float64 `json:"utilization"`
}

// PeakUsage reports the busiest hour and its share of all executions, in percent.
// Ties resolve to the earliest hour.
func PeakUsage(execs []models.Execution, loc *time.Location) Peak {
	if len(execs) == 0 {
		return Peak{Hour: "-", Utilization: 0}
	}
	loc = orLocal(loc)
	counts := make(map[int]int)
	for _, e := range execs {
		counts[e.StartedAt.In(loc).Hour()]++
	}
	best, bestCount := -1, 0
	for _, hour := range sortedHours(counts) {
		if counts[hour] > bestCount {
			best, bestCount = hour, counts[hour]
		}
	}
	return Peak{
		Hour:        hourLabel(best),
		Utilization: round(float64(bestCount)/float64(len(execs))*100, 2),
	}
}

// Level classifies an execution for the log view.
func Level(e models.Execution) string {
	if !e.Success || strings.Contains(strings.ToLower(e.Message), "timeout") {
		return LevelError
	}
	if e.DurationSeconds > slowCallSeconds {
		return LevelWarning
	}
	return LevelInfo
}

type LogEntry struct {
	models.Execution
	Level string `json:"level"`
}

// Logs attaches a level to every execution. With newestFirst the order is
// reversed; limit > 0 keeps only that many of the most recent entries.
func Logs(execs []models.Execution, limit int, newestFirst bool) []LogEntry {
	if limit > 0 && len(execs) > limit {
		execs = execs[len(execs)-limit:]
	}
	entries := make([]LogEntry, 0, len(execs))
	for _, e := range execs {
		entries = append(entries, LogEntry{Execution: e, Level: Level(e)})
	}
	if newestFirst {
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}
	return entries
}

// RecentLogs returns the last n executions newest first.
func RecentLogs(execs []models.Execution, n int) []LogEntry {
	return Logs(execs, n, true)
}

func sortedHours(m map[int]int) []int {
	hours := make([]int, 0, len(m))
	for h := range m {
		hours = append(hours, h)
	}
	sort.Ints(hours)
	return hours
}

func hourLabel(hour int) string {
	return time.Date(0, 1, 1, hour, 0, 0, 0, time.UTC).Format("15") + "h"
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// formatFloat prints the shortest exact form with at least one decimal,
// so 2 renders as "2.0" and 1.83 as "1.83".
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func orLocal(loc *time.Location) *time.Location {
	if loc == nil {
		return time.Local
	}
	return loc
}
