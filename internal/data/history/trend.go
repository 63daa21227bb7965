package history

import (
	"sort"
	"time"
)

// Trend summarizes a window of runs for the terminal history view.
type Trend struct {
	Runs            int
	Passed          int
	Failed          int
	PassRate        float64
	FailuresByStage map[string]int
	LastPass        time.Time
	LastFailure     time.Time
	// CurrentStreak is positive for consecutive passes and negative for consecutive failures,
	// counted back from the newest run.
	CurrentStreak int
}

// BuildTrend expects runs in any order.
func BuildTrend(runs []Run) Trend {
	trend := Trend{FailuresByStage: make(map[string]int)}
	if len(runs) == 0 {
		return trend
	}

	sorted := append([]Run(nil), runs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartedAt.Before(sorted[j].StartedAt)
	})

	for _, run := range sorted {
		trend.Runs++
		if run.Status == StatusPass {
			trend.Passed++
			trend.LastPass = run.StartedAt
			continue
		}
		trend.Failed++
		trend.LastFailure = run.StartedAt
		stage := run.FailedStage
		if stage == "" {
			stage = "UNKNOWN"
		}
		trend.FailuresByStage[stage]++
	}
	trend.PassRate = float64(trend.Passed) / float64(trend.Runs) * 100

	newest := sorted[len(sorted)-1].Status == StatusPass
	for i := len(sorted) - 1; i >= 0; i-- {
		if (sorted[i].Status == StatusPass) != newest {
			break
		}
		if newest {
			trend.CurrentStreak++
		} else {
			trend.CurrentStreak--
		}
	}
	return trend
}

const (
	StatusPass  = "PASS"
	StatusFail  = "FAIL"
	StatusError = "ERROR"
)
