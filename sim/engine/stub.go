package engine

import "context"

// Stub assigns talker offsets without looking at the network: Offsets[i] to
// the i-th flow, then i*Spacing once Offsets run out. It never fails.
type Stub struct {
	Offsets []float64
	Spacing float64
}

// Name implements Engine.
func (s *Stub) Name() string { return "stub" }

// Compute implements Engine.
func (s *Stub) Compute(_ context.Context, in *Input) (*Output, error) {
	out := &Output{TalkerOffsets: make([]TalkerOffset, 0, len(in.Flows))}
	for i, f := range in.Flows {
		offset := float64(i) * s.Spacing
		if i < len(s.Offsets) {
			offset = s.Offsets[i]
		}
		out.TalkerOffsets = append(out.TalkerOffsets, TalkerOffset{Flow: f.Name, Offset: offset})
	}
	return out, nil
}
