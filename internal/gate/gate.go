// Package gate implements the quality-gate orchestrator: a policy names a
// set of gates with per-gate configuration and an aggregation mode; the
// orchestrator builds one shared context, dispatches the configured gates
// in parallel, and aggregates their results into a single pass/fail
// verdict plus a persisted run record and health snapshot.
package gate

import (
	"context"
	"sync"
	"time"

	"github.com/ruizrica/drift/internal/constraint"
	"github.com/ruizrica/drift/internal/model"
)

// Status is a gate's (or the overall run's) outcome.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusWarned  Status = "warned"
	StatusSkipped Status = "skipped"
	StatusErrored Status = "errored"
)

// AggregationMode controls how per-gate results combine into an overall
// verdict.
type AggregationMode string

const (
	AggregationAny       AggregationMode = "any"
	AggregationAll       AggregationMode = "all"
	AggregationWeighted  AggregationMode = "weighted"
	AggregationThreshold AggregationMode = "threshold"
)

// GateConfig names one gate within a policy and carries its per-gate
// configuration knobs.
type GateConfig struct {
	ID     string
	Weight float64
	Params map[string]any
}

// Policy is a named set of gates, how to aggregate them, and which are
// mandatory.
type Policy struct {
	Gates          []GateConfig
	Aggregation    AggregationMode
	RequiredGates  []string
	Threshold      float64 // used by AggregationThreshold; default 70
	WeightedPassAt float64 // used by AggregationWeighted; default 70
}

// SharedContext is built once per run and handed to every gate: patterns,
// constraints, the call graph, the previous snapshot, and custom rules.
type SharedContext struct {
	Patterns         []model.Pattern
	Invariants       []constraint.Invariant
	CallGraph        constraint.CallGraph
	BoundaryStore    constraint.BoundaryStore
	PreviousSnapshot *HealthSnapshot
	CustomRuleSet    *RuleSet
}

// GateInput is the input every gate receives alongside the shared context.
type GateInput struct {
	Files       []string
	ProjectRoot string
	Branch      string
	BaseBranch  string
	CommitSha   string
	CI          bool
	Config      map[string]any
	Shared      SharedContext
}

// GateResult is one gate's outcome.
type GateResult struct {
	GateID          string
	Status          Status
	Passed          bool
	Score           float64 // 0-100
	Summary         string
	Violations      []string
	Warnings        []string
	ExecutionTimeMs int64
	Details         map[string]any
	Err             error
}

// Gate is the contract every quality gate implements.
type Gate interface {
	ID() string
	Run(ctx context.Context, in GateInput) GateResult
}

// RunResult is the aggregated outcome of one policy run across its gates.
type RunResult struct {
	Overall   Status
	Passed    bool
	Score     float64
	Results   []GateResult
	ExitCode  int
}

// RunPolicy builds the gate set named in p, runs them concurrently against
// in, and aggregates per p.Aggregation. Each configured gate must be
// resolvable via registry; an unresolvable gate id yields an errored result
// for that gate rather than aborting the run.
func RunPolicy(ctx context.Context, p Policy, in GateInput, registry map[string]Gate) (*RunResult, error) {
	results := make([]GateResult, len(p.Gates))
	var wg sync.WaitGroup
	for i, cfg := range p.Gates {
		wg.Add(1)
		go func(i int, cfg GateConfig) {
			defer wg.Done()
			g, ok := registry[cfg.ID]
			if !ok {
				results[i] = GateResult{GateID: cfg.ID, Status: StatusErrored, Err: errUnknownGate(cfg.ID)}
				return
			}
			start := time.Now()
			res := g.Run(ctx, in)
			res.GateID = cfg.ID
			res.ExecutionTimeMs = time.Since(start).Milliseconds()
			results[i] = res
		}(i, cfg)
	}
	wg.Wait()

	rr := aggregate(p, results)
	return rr, nil
}

type unknownGateError struct{ id string }

func (e unknownGateError) Error() string { return "gate: unknown gate id " + e.id }
func errUnknownGate(id string) error     { return unknownGateError{id: id} }

func aggregate(p Policy, results []GateResult) *RunResult {
	rr := &RunResult{Results: results}

	requiredOK := true
	required := make(map[string]bool, len(p.RequiredGates))
	for _, id := range p.RequiredGates {
		required[id] = true
	}
	for _, r := range results {
		if required[r.GateID] && r.Status != StatusPassed {
			requiredOK = false
		}
	}

	switch p.Aggregation {
	case AggregationAny:
		rr.Passed = anyPassed(results)
	case AggregationAll:
		rr.Passed = allNonSkippedPassed(results)
	case AggregationWeighted:
		rr.Score = weightedScore(p, results)
		threshold := p.WeightedPassAt
		if threshold <= 0 {
			threshold = 70
		}
		rr.Passed = rr.Score >= threshold
	case AggregationThreshold:
		rr.Score = weightedScore(p, results)
		threshold := p.Threshold
		if threshold <= 0 {
			threshold = 70
		}
		rr.Passed = rr.Score >= threshold
	default:
		rr.Passed = allNonSkippedPassed(results)
	}

	if !requiredOK {
		rr.Passed = false
	}

	rr.Overall = overallStatus(results, rr.Passed)
	rr.ExitCode = exitCodeFor(rr.Overall)
	return rr
}

func anyPassed(results []GateResult) bool {
	for _, r := range results {
		if r.Status == StatusPassed {
			return true
		}
	}
	return false
}

func allNonSkippedPassed(results []GateResult) bool {
	ran := false
	for _, r := range results {
		if r.Status == StatusSkipped {
			continue
		}
		ran = true
		if r.Status != StatusPassed {
			return false
		}
	}
	return ran || len(results) == 0
}

func weightedScore(p Policy, results []GateResult) float64 {
	weights := make(map[string]float64, len(p.Gates))
	for _, cfg := range p.Gates {
		w := cfg.Weight
		if w <= 0 {
			w = 1
		}
		weights[cfg.ID] = w
	}
	var sumScore, sumWeight float64
	for _, r := range results {
		w := weights[r.GateID]
		sumScore += w * r.Score
		sumWeight += w
	}
	if sumWeight == 0 {
		return 0
	}
	return sumScore / sumWeight
}

func overallStatus(results []GateResult, passed bool) Status {
	for _, r := range results {
		if r.Status == StatusErrored {
			return StatusErrored
		}
	}
	if passed {
		for _, r := range results {
			if r.Status == StatusWarned {
				return StatusWarned
			}
		}
		return StatusPassed
	}
	return StatusFailed
}

func exitCodeFor(s Status) int {
	switch s {
	case StatusPassed, StatusWarned:
		return 0
	default:
		return 1
	}
}
