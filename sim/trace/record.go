// Package trace provides decision-trace recording for admission analysis.
// This package has no dependencies on sim/ or its sub-packages; it stores pure data types.
package trace

// AdmissionRecord captures the decision for one stream.
type AdmissionRecord struct {
	StreamID string
	Talker   string
	BatchID  int
	Clock    int64 // substrate ticks when the decision was made
	Admitted bool
	Offset   float64 // seconds; meaningful only when Admitted
	Reason   string
}

// BatchRecord captures one orchestration run.
type BatchRecord struct {
	BatchID  int
	Clock    int64
	Size     int    // requests in the batch
	Flows    int    // flows handed to the engine, baseline included
	Engine   string // engine name
	State    string // final engine invocation state, or "aborted"
	Admitted int
	Error    string
}
