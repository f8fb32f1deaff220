package sim

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_MessageAndUnwrap(t *testing.T) {
	// GIVEN a classified error wrapping a cause
	cause := context.DeadlineExceeded
	err := Wrap(KindEngineUnavailable, "engine.Invoke", "greedy", cause)

	// THEN both the kind sentinel and the cause are reachable
	assert.ErrorIs(t, err, ErrEngineUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "engine.Invoke greedy: scheduling engine unavailable: context deadline exceeded", err.Error())
}

func TestError_WithoutSubjectOrCause(t *testing.T) {
	err := &Error{Kind: KindConfiguration, Op: "topology.Discover"}
	assert.Equal(t, "topology.Discover: invalid configuration", err.Error())
	assert.Equal(t, []error{ErrConfiguration}, err.Unwrap())
}

func TestWrap_NilIsNil(t *testing.T) {
	// GIVEN a helper returning Wrap of a nil cause through the error interface
	classify := func(cause error) error {
		return Wrap(KindDelivery, "op", "x", cause)
	}

	// THEN the result compares equal to nil
	assert.True(t, classify(nil) == nil)
	assert.NoError(t, classify(nil))
	assert.Error(t, classify(errors.New("boom")))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindUnknown},
		{"plain", errors.New("boom"), KindUnknown},
		{"classified", Errorf(KindResolution, "flow.FromRequest", "s1", "talker %q unknown", "device9"), KindResolution},
		{"wrapped classified", fmt.Errorf("batch 3: %w", Errorf(KindInvalidRequest, "stream.Validate", "s1", "priority 9")), KindInvalidRequest},
		{"bare sentinel", fmt.Errorf("solver: %w", ErrEngineInfeasible), KindEngineInfeasible},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIsFatal_OnlyConfiguration(t *testing.T) {
	kinds := []ErrorKind{KindResolution, KindInvalidRequest, KindConfiguration, KindEngineUnavailable, KindEngineInfeasible, KindDelivery}
	for _, k := range kinds {
		err := &Error{Kind: k, Op: "op"}
		assert.Equal(t, k == KindConfiguration, IsFatal(err), "kind %s", k)
	}
	assert.False(t, IsFatal(nil))
}

func TestErrorKind_String(t *testing.T) {
	assert.Equal(t, "engine-infeasible", KindEngineInfeasible.String())
	assert.Equal(t, "delivery", KindDelivery.String())
	assert.Equal(t, "unknown", ErrorKind(42).String())
}
