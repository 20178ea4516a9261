package gate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGate struct {
	id     string
	result GateResult
}

func (s stubGate) ID() string { return s.id }
func (s stubGate) Run(_ context.Context, _ GateInput) GateResult { return s.result }

func TestRunPolicyAggregationAll(t *testing.T) {
	registry := map[string]Gate{
		"a": stubGate{id: "a", result: GateResult{Status: StatusPassed, Passed: true, Score: 100}},
		"b": stubGate{id: "b", result: GateResult{Status: StatusFailed, Passed: false, Score: 0}},
	}
	policy := Policy{
		Gates:       []GateConfig{{ID: "a"}, {ID: "b"}},
		Aggregation: AggregationAll,
	}
	rr, err := RunPolicy(context.Background(), policy, GateInput{}, registry)
	require.NoError(t, err)
	assert.False(t, rr.Passed)
	assert.Equal(t, StatusFailed, rr.Overall)
	assert.Equal(t, 1, rr.ExitCode)
}

func TestRunPolicyAggregationAny(t *testing.T) {
	registry := map[string]Gate{
		"a": stubGate{id: "a", result: GateResult{Status: StatusFailed, Passed: false}},
		"b": stubGate{id: "b", result: GateResult{Status: StatusPassed, Passed: true}},
	}
	policy := Policy{
		Gates:       []GateConfig{{ID: "a"}, {ID: "b"}},
		Aggregation: AggregationAny,
	}
	rr, err := RunPolicy(context.Background(), policy, GateInput{}, registry)
	require.NoError(t, err)
	assert.True(t, rr.Passed)
	assert.Equal(t, 0, rr.ExitCode)
}

func TestRunPolicyWeightedAggregation(t *testing.T) {
	registry := map[string]Gate{
		"a": stubGate{id: "a", result: GateResult{Status: StatusPassed, Score: 90}},
		"b": stubGate{id: "b", result: GateResult{Status: StatusPassed, Score: 50}},
	}
	policy := Policy{
		Gates:       []GateConfig{{ID: "a", Weight: 3}, {ID: "b", Weight: 1}},
		Aggregation: AggregationWeighted,
	}
	rr, err := RunPolicy(context.Background(), policy, GateInput{}, registry)
	require.NoError(t, err)
	assert.InDelta(t, 80, rr.Score, 0.01)
	assert.True(t, rr.Passed)
}

func TestRunPolicyRequiredGateForcesFailure(t *testing.T) {
	registry := map[string]Gate{
		"a": stubGate{id: "a", result: GateResult{Status: StatusPassed, Passed: true}},
		"b": stubGate{id: "b", result: GateResult{Status: StatusFailed, Passed: false}},
	}
	policy := Policy{
		Gates:         []GateConfig{{ID: "a"}, {ID: "b"}},
		Aggregation:   AggregationAny,
		RequiredGates: []string{"b"},
	}
	rr, err := RunPolicy(context.Background(), policy, GateInput{}, registry)
	require.NoError(t, err)
	assert.False(t, rr.Passed)
}

func TestRunPolicyUnknownGateErrors(t *testing.T) {
	registry := map[string]Gate{}
	policy := Policy{Gates: []GateConfig{{ID: "missing"}}, Aggregation: AggregationAll}
	rr, err := RunPolicy(context.Background(), policy, GateInput{}, registry)
	require.NoError(t, err)
	assert.Equal(t, StatusErrored, rr.Results[0].Status)
	assert.Equal(t, StatusErrored, rr.Overall)
}
