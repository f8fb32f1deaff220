package trace

import (
	"testing"
)

func TestNewSimulationTrace_LevelNoneIsNil(t *testing.T) {
	// GIVEN tracing disabled
	for _, level := range []TraceLevel{"", TraceLevelNone} {
		st := NewSimulationTrace(TraceConfig{Level: level})

		// THEN no trace is allocated and recording is a no-op
		if st != nil {
			t.Fatalf("level %q: expected nil trace", level)
		}
		st.RecordAdmission(AdmissionRecord{StreamID: "s1"})
		st.RecordBatch(BatchRecord{BatchID: 1})
	}
}

func TestSimulationTrace_RecordAdmission_AppendsRecord(t *testing.T) {
	// GIVEN a trace configured for decisions
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelDecisions})

	// WHEN an admission record is recorded
	st.RecordAdmission(AdmissionRecord{
		StreamID: "s1",
		Talker:   "device1",
		Clock:    1000,
		Admitted: true,
		Offset:   0.001,
	})

	// THEN the trace contains one admission record with correct data
	if len(st.Admissions) != 1 {
		t.Fatalf("expected 1 admission, got %d", len(st.Admissions))
	}
	if st.Admissions[0].StreamID != "s1" {
		t.Errorf("expected stream s1, got %s", st.Admissions[0].StreamID)
	}
	if !st.Admissions[0].Admitted {
		t.Error("expected admitted=true")
	}
}

func TestSimulationTrace_MultipleRecords_PreservesOrder(t *testing.T) {
	// GIVEN a trace
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelDecisions})

	// WHEN multiple records are added
	st.RecordBatch(BatchRecord{BatchID: 1, Size: 2, State: "succeeded"})
	st.RecordAdmission(AdmissionRecord{StreamID: "s1", BatchID: 1, Admitted: true})
	st.RecordAdmission(AdmissionRecord{StreamID: "s2", BatchID: 1, Admitted: false, Reason: "no slot"})

	// THEN order is preserved
	if len(st.Admissions) != 2 {
		t.Fatalf("expected 2 admissions, got %d", len(st.Admissions))
	}
	if st.Admissions[0].StreamID != "s1" || st.Admissions[1].StreamID != "s2" {
		t.Error("admission order not preserved")
	}
	if len(st.Batches) != 1 || st.Batches[0].BatchID != 1 {
		t.Error("batch record missing")
	}
}

func TestIsValidTraceLevel(t *testing.T) {
	tests := []struct {
		level string
		want  bool
	}{
		{"", true},
		{"none", true},
		{"decisions", true},
		{"verbose", false},
	}
	for _, tt := range tests {
		if got := IsValidTraceLevel(tt.level); got != tt.want {
			t.Errorf("IsValidTraceLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}
