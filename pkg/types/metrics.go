package types

import "time"

// EMAAlpha is the smoothing factor for the exponential-moving-average
// success-rate update.
const EMAAlpha = 0.2

// PlaybookMetrics holds the mutable performance counters of a playbook.
// Updates go through the pure functions below; callers persist the returned
// value rather than mutating in place.
type PlaybookMetrics struct {
	UsageCount       int       `json:"usage_count"`
	SuccessRate      float64   `json:"success_rate"`
	AvgOutcomeScore  float64   `json:"avg_outcome_score"`
	AvgExecutionTime float64   `json:"avg_execution_time_ms"`
	LastUsedAt       time.Time `json:"last_used_at"`
	UserSatisfaction float64   `json:"user_satisfaction"`
}

// ExecutionObservation is one recorded use of a playbook.
type ExecutionObservation struct {
	Success       bool
	OutcomeScore  float64
	ExecutionTime time.Duration
	Satisfaction  float64
	ObservedAt    time.Time
}

// ApplyExecution folds one observation into the metrics using running
// averages for scores and times. The success rate is recomputed as an
// aggregate over all recorded executions and stays within [0,1].
func ApplyExecution(m PlaybookMetrics, obs ExecutionObservation) PlaybookMetrics {
	n := float64(m.UsageCount)
	outcome := 0.0
	if obs.Success {
		outcome = 1.0
	}

	next := m
	next.UsageCount = m.UsageCount + 1
	next.SuccessRate = clamp01((m.SuccessRate*n + outcome) / (n + 1))
	next.AvgOutcomeScore = (m.AvgOutcomeScore*n + obs.OutcomeScore) / (n + 1)
	next.AvgExecutionTime = (m.AvgExecutionTime*n + float64(obs.ExecutionTime.Milliseconds())) / (n + 1)
	if obs.Satisfaction > 0 {
		next.UserSatisfaction = (m.UserSatisfaction*n + obs.Satisfaction) / (n + 1)
	}
	next.LastUsedAt = obs.ObservedAt
	return next
}

// ApplyExecutionEMA folds one observation using an exponential moving
// average (alpha = 0.2) instead of the full aggregate. Used when the forced
// recording path should weight recent outcomes more heavily.
func ApplyExecutionEMA(m PlaybookMetrics, obs ExecutionObservation) PlaybookMetrics {
	outcome := 0.0
	if obs.Success {
		outcome = 1.0
	}

	next := m
	next.UsageCount = m.UsageCount + 1
	next.SuccessRate = clamp01(EMAAlpha*outcome + (1-EMAAlpha)*m.SuccessRate)
	if obs.ExecutionTime > 0 {
		next.AvgExecutionTime = EMAAlpha*float64(obs.ExecutionTime.Milliseconds()) + (1-EMAAlpha)*m.AvgExecutionTime
	}
	if obs.OutcomeScore > 0 {
		next.AvgOutcomeScore = EMAAlpha*obs.OutcomeScore + (1-EMAAlpha)*m.AvgOutcomeScore
	}
	if obs.Satisfaction > 0 {
		next.UserSatisfaction = EMAAlpha*obs.Satisfaction + (1-EMAAlpha)*m.UserSatisfaction
	}
	next.LastUsedAt = obs.ObservedAt
	return next
}

// MergeMetrics combines the metrics of two playbooks being merged by the
// curator. Numeric fields are usage-weighted averages; LastUsedAt takes the
// more recent of the two.
func MergeMetrics(keeper, loser PlaybookMetrics) PlaybookMetrics {
	kw := float64(keeper.UsageCount)
	lw := float64(loser.UsageCount)
	total := kw + lw
	if total == 0 {
		// Neither was ever used; keep the keeper's values.
		return keeper
	}

	merged := PlaybookMetrics{
		UsageCount:       keeper.UsageCount + loser.UsageCount,
		SuccessRate:      clamp01((keeper.SuccessRate*kw + loser.SuccessRate*lw) / total),
		AvgOutcomeScore:  (keeper.AvgOutcomeScore*kw + loser.AvgOutcomeScore*lw) / total,
		AvgExecutionTime: (keeper.AvgExecutionTime*kw + loser.AvgExecutionTime*lw) / total,
		UserSatisfaction: (keeper.UserSatisfaction*kw + loser.UserSatisfaction*lw) / total,
		LastUsedAt:       keeper.LastUsedAt,
	}
	if loser.LastUsedAt.After(keeper.LastUsedAt) {
		merged.LastUsedAt = loser.LastUsedAt
	}
	return merged
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
