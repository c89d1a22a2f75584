package conversation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/hupe1980/agentrelay/logging"
)

// DefaultCharsPerToken is used when a policy leaves CharsPerToken unset.
const DefaultCharsPerToken = 4

// Policy controls when and how much history is summarized. Threshold and
// PercentageToSummarize are fractions of the context window (0.65 = 65%).
type Policy struct {
	// Threshold at which Append starts a compaction.
	Threshold float64 `json:"summarization_threshold" mapstructure:"summarization_threshold"`
	// CharsPerToken is the character to token ratio used for estimation.
	CharsPerToken int `json:"char_to_token_ratio" mapstructure:"char_to_token_ratio"`
	// PercentageToSummarize is both the usage a compaction requires and the
	// fraction of recent messages that survive it.
	PercentageToSummarize float64 `json:"percentage_to_summarize" mapstructure:"percentage_to_summarize"`
}

// Validate checks the policy ranges.
func (p Policy) Validate() error {
	if p.Threshold <= 0 || p.Threshold > 1 {
		return fmt.Errorf("summarization_threshold must be in (0, 1], got %v", p.Threshold)
	}
	if p.PercentageToSummarize <= 0 || p.PercentageToSummarize > 1 {
		return fmt.Errorf("percentage_to_summarize must be in (0, 1], got %v", p.PercentageToSummarize)
	}
	if p.CharsPerToken < 0 {
		return fmt.Errorf("char_to_token_ratio must not be negative, got %d", p.CharsPerToken)
	}
	return nil
}

// Summarizer turns a transcript into a free-text summary. The call must not
// append to the store it summarizes.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// SummarizerFunc adapts a function to the Summarizer interface.
type SummarizerFunc func(ctx context.Context, transcript string) (string, error)

// Summarize implements Summarizer.
func (f SummarizerFunc) Summarize(ctx context.Context, transcript string) (string, error) {
	return f(ctx, transcript)
}

// ErrNoSummarizer is returned by Compact when the store has no Summarizer.
var ErrNoSummarizer = errors.New("conversation: no summarizer configured")

// Options configure a Store.
type Options struct {
	Name          string
	SystemPrompt  string
	Seed          []Message
	ContextLength int
	Policy        Policy
	Summarizer    Summarizer
	Logger        logging.Logger
	Now           func() time.Time
}

// Store is the conversation state owned by one agent.
type Store struct {
	mu         sync.Mutex
	opts       Options
	history    []Message
	compacting bool
}

// New creates a Store with the given options.
func New(optFns ...func(o *Options)) *Store {
	opts := Options{
		Policy: Policy{
			Threshold:             0.65,
			CharsPerToken:         DefaultCharsPerToken,
			PercentageToSummarize: 0.4,
		},
		Logger: logging.NoOpLogger{},
		Now:    time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Policy.CharsPerToken <= 0 {
		opts.Policy.CharsPerToken = DefaultCharsPerToken
	}
	opts.Seed = cloneMessages(opts.Seed)
	return &Store{opts: opts}
}

// SetSummarizer installs the summarizer used by Compact. Agents own both the
// store and the summarizing backend call, so the link is made after New.
func (s *Store) SetSummarizer(sum Summarizer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.Summarizer = sum
}

// SystemPrompt returns the configured system prompt.
func (s *Store) SystemPrompt() string { return s.opts.SystemPrompt }

// ContextLength returns the model context window the store is sized for.
func (s *Store) ContextLength() int { return s.opts.ContextLength }

// Policy returns the summarization policy.
func (s *Store) Policy() Policy { return s.opts.Policy }

// EstimateUsage returns the estimated token count of system prompt, seed
// messages and history, and that count as a percentage of the context window.
func (s *Store) EstimateUsage() (int, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.estimateLocked()
}

func (s *Store) estimateLocked() (int, float64) {
	chars := len(s.opts.SystemPrompt)
	for _, m := range s.opts.Seed {
		chars += m.size()
	}
	for _, m := range s.history {
		chars += m.size()
	}
	tokens := chars / s.opts.Policy.CharsPerToken
	if s.opts.ContextLength <= 0 {
		return tokens, 0
	}
	return tokens, float64(tokens) / float64(s.opts.ContextLength) * 100
}

// ShouldSummarize reports whether usage reached the summarization threshold.
func (s *Store) ShouldSummarize() bool {
	_, pct := s.EstimateUsage()
	return pct >= s.opts.Policy.Threshold*100
}

// Compact replaces the older part of the history with one summary message.
// It reports whether the history was rewritten. Compact is a no-op when usage
// is below PercentageToSummarize, when the older part is empty, or when a
// compaction is already running for this store.
func (s *Store) Compact(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.compacting {
		s.mu.Unlock()
		return false, nil
	}
	_, pct := s.estimateLocked()
	pts := s.opts.Policy.PercentageToSummarize
	if pct < pts*100 {
		s.mu.Unlock()
		return false, nil
	}
	n := len(s.history)
	keep := retainedTail(n, pts)
	head := cloneMessages(s.history[:n-keep])
	if len(head) == 0 {
		s.mu.Unlock()
		return false, nil
	}
	sum := s.opts.Summarizer
	if sum == nil {
		s.mu.Unlock()
		return false, ErrNoSummarizer
	}
	s.compacting = true
	s.mu.Unlock()

	s.opts.Logger.Info("summarizing conversation history",
		"agent", s.opts.Name, "messages", n, "summarized", len(head), "usage_pct", pct)

	summary, err := sum.Summarize(ctx, Transcript(head))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.compacting = false
	if err != nil {
		return false, fmt.Errorf("summarize history: %w", err)
	}
	rewritten := make([]Message, 0, len(s.history)-len(head)+1)
	rewritten = append(rewritten, Message{
		Role:      RoleSystem,
		Content:   SummaryPrefix + summary,
		Timestamp: s.opts.Now(),
		Type:      TypeSummary,
	})
	rewritten = append(rewritten, s.history[len(head):]...)
	s.history = rewritten

	_, after := s.estimateLocked()
	s.opts.Logger.Info("conversation history summarized",
		"agent", s.opts.Name, "messages", len(s.history), "usage_pct", after)
	return true, nil
}

// retainedTail is the number of most recent messages kept by a compaction of
// n messages: ceil(pts * n), clamped to [0, n].
func retainedTail(n int, pts float64) int {
	keep := int(math.Ceil(pts*float64(n) - 1e-9))
	if keep < 0 {
		return 0
	}
	if keep > n {
		return n
	}
	return keep
}

// Append adds a message to the history and compacts synchronously when the
// threshold is reached. Compaction failures are logged and do not fail the
// append.
func (s *Store) Append(ctx context.Context, role Role, content string, metadata map[string]any) Message {
	msg := Message{
		Role:      role,
		Content:   content,
		Timestamp: s.opts.Now(),
		Metadata:  metadata,
	}
	s.mu.Lock()
	s.history = append(s.history, msg)
	s.mu.Unlock()

	if s.ShouldSummarize() {
		if _, err := s.Compact(ctx); err != nil {
			s.opts.Logger.Error("failed to summarize history", "agent", s.opts.Name, "error", err)
		}
	}
	return msg
}

// History returns a copy of the appended messages.
func (s *Store) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneMessages(s.history)
}

// Messages returns the full request context: system prompt, seed messages and
// history, in that order.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, 0, 1+len(s.opts.Seed)+len(s.history))
	out = append(out, Message{Role: RoleSystem, Content: s.opts.SystemPrompt})
	out = append(out, s.opts.Seed...)
	out = append(out, s.history...)
	return out
}
