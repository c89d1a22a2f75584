package refine

import (
	"context"
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/hupe1980/agentrelay/backend"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/protocol"
)

// StopReason explains why a refinement run ended.
type StopReason string

const (
	StopDisabled      StopReason = "disabled"
	StopDone          StopReason = "done"
	StopConverged     StopReason = "converged"
	StopStagnated     StopReason = "stagnated"
	StopChecklist     StopReason = "checklist"
	StopMaxIterations StopReason = "max_iterations"
)

// FallbackScore is the score of the response substituted for a failed round.
const FallbackScore = 50

// Policy configures refinement for one agent.
type Policy struct {
	Enabled             bool    `json:"enabled" mapstructure:"enabled"`
	MaxIterations       int     `json:"max_iterations" mapstructure:"max_iterations"`
	ScoreLowerBound     int     `json:"score_lower_bound" mapstructure:"score_lower_bound"`
	SimilarityThreshold float64 `json:"similarity_threshold" mapstructure:"similarity_threshold"`
	StagnationLimit     int     `json:"stagnation_limit" mapstructure:"stagnation_limit"`
	Temperature         float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens           int     `json:"max_tokens" mapstructure:"max_tokens"`
}

// DefaultPolicy returns a disabled policy with usable parameters.
func DefaultPolicy() Policy {
	return Policy{
		MaxIterations:       3,
		ScoreLowerBound:     80,
		SimilarityThreshold: 0.95,
		StagnationLimit:     2,
		Temperature:         0.2,
		MaxTokens:           1024,
	}
}

// Validate checks the policy when it is enabled.
func (p Policy) Validate() error {
	if !p.Enabled {
		return nil
	}
	if p.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", p.MaxIterations)
	}
	if p.ScoreLowerBound < 0 || p.ScoreLowerBound > 100 {
		return fmt.Errorf("score_lower_bound must be in [0, 100], got %d", p.ScoreLowerBound)
	}
	if p.SimilarityThreshold < 0 || p.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0, 1], got %v", p.SimilarityThreshold)
	}
	if p.StagnationLimit < 0 {
		return fmt.Errorf("stagnation_limit must not be negative, got %d", p.StagnationLimit)
	}
	return nil
}

// InferenceConfig returns the sampling parameters used for refinement calls.
func (p Policy) InferenceConfig() backend.InferenceConfig {
	return backend.InferenceConfig{MaxTokens: p.MaxTokens, Temperature: p.Temperature}
}

// AskFunc sends one refinement prompt and returns the parsed reply. It must
// not touch the agent's history.
type AskFunc func(ctx context.Context, prompt string, cfg backend.InferenceConfig) (protocol.Record, error)

// Result is the outcome of a refinement run.
type Result struct {
	Plan       string
	Iterations int
	StopReason StopReason
	Last       *protocol.RefinementResponse
}

// Options configure a Loop.
type Options struct {
	Logger logging.Logger
	// Name identifies the owning agent in logs.
	Name string
}

// Loop runs refinement rounds under a Policy.
type Loop struct {
	policy Policy
	opts   Options
}

// NewLoop creates a refinement loop.
func NewLoop(policy Policy, optFns ...func(o *Options)) *Loop {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Loop{policy: policy, opts: opts}
}

// Policy returns the loop's policy.
func (l *Loop) Policy() Policy { return l.policy }

// Run refines plan. It performs at most MaxIterations calls to ask.
func (l *Loop) Run(ctx context.Context, plan string, ask AskFunc) Result {
	if !l.policy.Enabled || l.policy.MaxIterations <= 0 {
		return Result{Plan: plan, StopReason: StopDisabled}
	}

	current := plan
	var previous string
	unchanged := 0
	res := Result{Plan: plan, StopReason: StopMaxIterations}

	for i := 0; i < l.policy.MaxIterations; i++ {
		if ctx.Err() != nil {
			break
		}
		resp := l.round(ctx, current, ask)
		res.Iterations = i + 1
		res.Last = &resp
		res.Plan = resp.NewPlan

		l.opts.Logger.Debug("refinement round",
			"agent", l.opts.Name, "iteration", i+1, "score", resp.Score, "done", resp.Done, "why", resp.Why)

		if resp.Done && resp.Score >= l.policy.ScoreLowerBound {
			res.StopReason = StopDone
			break
		}
		if i > 0 && Similarity(previous, resp.NewPlan) >= l.policy.SimilarityThreshold {
			res.StopReason = StopConverged
			break
		}
		if resp.NewPlan == current {
			unchanged++
		} else {
			unchanged = 0
		}
		if l.policy.StagnationLimit > 0 && unchanged >= l.policy.StagnationLimit {
			res.StopReason = StopStagnated
			break
		}
		if resp.Checklist.Complete() {
			res.StopReason = StopChecklist
			break
		}
		previous = resp.NewPlan
		current = resp.NewPlan
	}

	l.opts.Logger.Info("refinement finished",
		"agent", l.opts.Name, "iterations", res.Iterations, "reason", string(res.StopReason))
	return res
}

func (l *Loop) round(ctx context.Context, plan string, ask AskFunc) protocol.RefinementResponse {
	rec, err := ask(ctx, Prompt(plan), l.policy.InferenceConfig())
	if err != nil {
		l.opts.Logger.Warn("refinement call failed, using fallback", "agent", l.opts.Name, "error", err)
		return Fallback(plan)
	}
	a, err := protocol.DecodeAs(rec, protocol.KindRefinementResponse)
	if err != nil {
		l.opts.Logger.Warn("invalid refinement response, using fallback", "agent", l.opts.Name, "error", err)
		return Fallback(plan)
	}
	return a.(protocol.RefinementResponse)
}

// Fallback is the degraded response used when a round fails: half score,
// unsuccessful, plan unchanged.
func Fallback(plan string) protocol.RefinementResponse {
	return protocol.RefinementResponse{
		NewPlan: plan,
		Score:   FallbackScore,
		Why:     "refinement failed",
		Success: false,
	}
}

// Similarity returns the sequence similarity ratio of a and b in [0, 1],
// computed over their characters.
func Similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	return difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, "")).Ratio()
}

// Prompt builds the instruction for one refinement round.
func Prompt(plan string) string {
	var b strings.Builder
	b.WriteString("Before acting, refine the following plan so it is clear, complete and executable.\n")
	b.WriteString("Consider the whole conversation so far. Keep what is already good; fix what is missing or vague.\n")
	b.WriteString("Score the refined plan from 0 to 100 and answer done=yes only when no further refinement is needed.\n\n")
	b.WriteString("# CURRENT PLAN:\n")
	b.WriteString(plan)
	b.WriteString("\n\n")
	b.WriteString(protocol.RefinementGuideline)
	return b.String()
}
