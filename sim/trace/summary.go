package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalDecisions     int
	AdmittedCount      int
	RejectedCount      int
	TotalBatches       int
	FailedBatches      int // engine failed; every stream rejected
	AbortedBatches     int // configuration error; no decisions
	MeanOffset         float64
	MaxOffset          float64
	UniqueTalkers      int
	TalkerDistribution map[string]int // talker -> admitted streams
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		TalkerDistribution: make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalDecisions = len(st.Admissions)
	totalOffset := 0.0
	for _, a := range st.Admissions {
		if !a.Admitted {
			summary.RejectedCount++
			continue
		}
		summary.AdmittedCount++
		summary.TalkerDistribution[a.Talker]++
		totalOffset += a.Offset
		if a.Offset > summary.MaxOffset {
			summary.MaxOffset = a.Offset
		}
	}
	if summary.AdmittedCount > 0 {
		summary.MeanOffset = totalOffset / float64(summary.AdmittedCount)
	}

	summary.TotalBatches = len(st.Batches)
	for _, b := range st.Batches {
		switch b.State {
		case "failed":
			summary.FailedBatches++
		case "aborted":
			summary.AbortedBatches++
		}
	}

	summary.UniqueTalkers = len(summary.TalkerDistribution)

	return summary
}
