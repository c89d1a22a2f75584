package refine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/backend"
	"github.com/hupe1980/agentrelay/protocol"
)

func record(plan, done string, score int, checklist bool) protocol.Record {
	return protocol.Record{
		"action":   "REFINEMENT_RESPONSE",
		"new_plan": plan,
		"done":     done,
		"score":    score,
		"why":      "because",
		"checklist": map[string]any{
			"objective": checklist, "inputs": checklist, "outputs": checklist, "constraints": checklist,
		},
		"success": true,
	}
}

type scripted struct {
	replies []protocol.Record
	errs    []error
	prompts []string
	configs []backend.InferenceConfig
}

func (s *scripted) ask(_ context.Context, prompt string, cfg backend.InferenceConfig) (protocol.Record, error) {
	i := len(s.prompts)
	s.prompts = append(s.prompts, prompt)
	s.configs = append(s.configs, cfg)
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.replies) {
		return s.replies[i], nil
	}
	return record(fmt.Sprintf("plan variant %d with distinct wording %d", i, i*7919), "no", 10, false), nil
}

func enabled() Policy {
	p := DefaultPolicy()
	p.Enabled = true
	p.ScoreLowerBound = 70
	p.MaxIterations = 5
	return p
}

func TestLoop_DoneStopsAfterOneIteration(t *testing.T) {
	s := &scripted{replies: []protocol.Record{record("refined plan", "yes", 85, false)}}
	res := NewLoop(enabled()).Run(context.Background(), "raw plan", s.ask)

	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, StopDone, res.StopReason)
	assert.Equal(t, "refined plan", res.Plan)
	require.Len(t, s.prompts, 1)
	assert.Contains(t, s.prompts[0], "raw plan")
	assert.Contains(t, s.prompts[0], "REFINEMENT_RESPONSE")
	assert.Equal(t, backend.InferenceConfig{MaxTokens: 1024, Temperature: 0.2}, s.configs[0])
}

func TestLoop_DoneBelowBoundContinues(t *testing.T) {
	s := &scripted{replies: []protocol.Record{
		record("first draft of the plan", "yes", 60, false),
		record("a completely different second attempt", "yes", 90, false),
	}}
	res := NewLoop(enabled()).Run(context.Background(), "raw", s.ask)
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, StopDone, res.StopReason)
}

func TestLoop_TerminatesWithinMaxIterations(t *testing.T) {
	for n := 1; n <= 6; n++ {
		p := enabled()
		p.MaxIterations = n
		p.SimilarityThreshold = 1
		p.StagnationLimit = 0
		s := &scripted{}
		res := NewLoop(p).Run(context.Background(), "raw", s.ask)
		assert.LessOrEqual(t, len(s.prompts), n)
		assert.Equal(t, n, res.Iterations)
		assert.Equal(t, StopMaxIterations, res.StopReason)
	}
}

func TestLoop_Converged(t *testing.T) {
	s := &scripted{replies: []protocol.Record{
		record("1. read the file\n2. summarize it", "no", 40, false),
		record("1. read the file\n2. summarize it.", "no", 45, false),
	}}
	res := NewLoop(enabled()).Run(context.Background(), "raw", s.ask)
	assert.Equal(t, StopConverged, res.StopReason)
	assert.Equal(t, 2, res.Iterations)
}

func TestLoop_ConvergenceSkippedOnFirstIteration(t *testing.T) {
	p := enabled()
	p.StagnationLimit = 0
	p.MaxIterations = 1
	s := &scripted{replies: []protocol.Record{record("raw", "no", 10, false)}}
	res := NewLoop(p).Run(context.Background(), "raw", s.ask)
	assert.Equal(t, StopMaxIterations, res.StopReason)
}

func TestLoop_Stagnated(t *testing.T) {
	p := enabled()
	p.StagnationLimit = 1
	s := &scripted{replies: []protocol.Record{record("same", "no", 10, false)}}
	res := NewLoop(p).Run(context.Background(), "same", s.ask)
	assert.Equal(t, StopStagnated, res.StopReason)
	assert.Equal(t, 1, res.Iterations)
}

func TestLoop_ChecklistSaturated(t *testing.T) {
	s := &scripted{replies: []protocol.Record{record("all covered", "no", 10, true)}}
	res := NewLoop(enabled()).Run(context.Background(), "raw", s.ask)
	assert.Equal(t, StopChecklist, res.StopReason)
	assert.Equal(t, "all covered", res.Plan)
}

func TestLoop_FailureFallsBack(t *testing.T) {
	p := enabled()
	p.MaxIterations = 1
	s := &scripted{errs: []error{errors.New("backend down")}}
	res := NewLoop(p).Run(context.Background(), "keep me", s.ask)

	assert.Equal(t, "keep me", res.Plan)
	require.NotNil(t, res.Last)
	assert.Equal(t, FallbackScore, res.Last.Score)
	assert.False(t, res.Last.Success)
}

func TestLoop_InvalidResponseFallsBack(t *testing.T) {
	p := enabled()
	p.MaxIterations = 1
	bad := record("x", "maybe", 10, false)
	s := &scripted{replies: []protocol.Record{bad}}
	res := NewLoop(p).Run(context.Background(), "keep me", s.ask)
	assert.Equal(t, "keep me", res.Plan)
	assert.Equal(t, FallbackScore, res.Last.Score)

	s = &scripted{replies: []protocol.Record{{"action": "NORMAL_RESPONSE", "response": "hi"}}}
	res = NewLoop(p).Run(context.Background(), "keep me", s.ask)
	assert.Equal(t, "keep me", res.Plan)
}

func TestLoop_Disabled(t *testing.T) {
	s := &scripted{}
	res := NewLoop(DefaultPolicy()).Run(context.Background(), "plan", s.ask)
	assert.Equal(t, StopDisabled, res.StopReason)
	assert.Equal(t, "plan", res.Plan)
	assert.Empty(t, s.prompts)
}

func TestLoop_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &scripted{}
	res := NewLoop(enabled()).Run(ctx, "plan", s.ask)
	assert.Equal(t, 0, res.Iterations)
	assert.Equal(t, "plan", res.Plan)
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity("abc", "abc"), 1e-9)
	assert.InDelta(t, 1.0, Similarity("", ""), 1e-9)
	assert.InDelta(t, 0.0, Similarity("abc", "xyz"), 1e-9)
	assert.InDelta(t, 0.75, Similarity("abcd", "bcde"), 1e-9)
}

func TestPolicy_Validate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())
	assert.NoError(t, enabled().Validate())

	p := enabled()
	p.MaxIterations = 0
	assert.Error(t, p.Validate())

	p = enabled()
	p.SimilarityThreshold = 2
	assert.Error(t, p.Validate())

	p = enabled()
	p.ScoreLowerBound = 101
	assert.Error(t, p.Validate())
}
