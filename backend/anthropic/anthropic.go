// Package anthropic implements backend.Client on the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/agentrelay/backend"
	"github.com/hupe1980/agentrelay/conversation"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/registry"
)

// defaultMaxTokens is used when the inference config leaves max_tokens unset;
// the Messages API requires it.
const defaultMaxTokens = 4096

type messageService interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
	CountTokens(ctx context.Context, params anthropic.MessageCountTokensParams, opts ...option.RequestOption) (*anthropic.MessageTokensCount, error)
}

// Options configure the Anthropic backend client.
type Options struct {
	// APIKey overrides the key read from the backend's api_key_env.
	APIKey string
	Logger logging.Logger
}

// Client talks to the Anthropic Messages API.
type Client struct {
	backend  registry.BackendDescriptor
	messages messageService
	opts     Options
}

// NewClient creates a client for the backend descriptor b. The API key is
// read from b.APIKeyEnv, falling back to ANTHROPIC_API_KEY.
func NewClient(b registry.BackendDescriptor, optFns ...func(o *Options)) (*Client, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	apiKey := opts.APIKey
	if apiKey == "" {
		env := b.APIKeyEnv
		if env == "" {
			env = "ANTHROPIC_API_KEY"
		}
		apiKey = strings.TrimSpace(os.Getenv(env))
	}
	if apiKey == "" {
		return nil, errors.New("anthropic: api key required, set api_key_env")
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if b.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(b.BaseURL))
	}
	client := anthropic.NewClient(reqOpts...)
	return &Client{backend: b, messages: &client.Messages, opts: opts}, nil
}

// Factory returns a backend.Factory producing Anthropic clients.
func Factory(optFns ...func(o *Options)) backend.Factory {
	return func(b registry.BackendDescriptor) (backend.Client, error) {
		return NewClient(b, optFns...)
	}
}

// Kind implements backend.Client.
func (c *Client) Kind() string { return registry.KindAnthropic }

// LoadModel implements backend.Client. Hosted models need no loading.
func (c *Client) LoadModel(_ context.Context, d registry.ModelDescriptor) (backend.Instance, error) {
	c.opts.Logger.Debug("model ready", "model", d.ID, "key", d.Key, "backend", c.backend.ID)
	return &instance{client: c, desc: d}, nil
}

// UnloadModel implements backend.Client.
func (c *Client) UnloadModel(_ context.Context, d registry.ModelDescriptor) error {
	c.opts.Logger.Debug("model released", "model", d.ID, "backend", c.backend.ID)
	return nil
}

type instance struct {
	client *Client
	desc   registry.ModelDescriptor
}

func (i *instance) Descriptor() registry.ModelDescriptor { return i.desc }

func (i *instance) ApplyPromptTemplate(msgs []conversation.Message) (backend.Prompt, error) {
	return backend.Prompt{Text: backend.RenderChatML(msgs), Messages: msgs}, nil
}

func (i *instance) Complete(ctx context.Context, p backend.Prompt, cfg backend.InferenceConfig) (string, error) {
	resp, err := i.client.messages.New(ctx, buildParams(i.desc, p, cfg))
	if err != nil {
		return "", fmt.Errorf("anthropic: messages: %w", err)
	}
	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.AsText().Text)
		}
	}
	if out.Len() == 0 {
		return "", errors.New("anthropic: empty completion")
	}
	return out.String(), nil
}

func (i *instance) CountTokens(ctx context.Context, text string) (int, error) {
	count, err := i.client.messages.CountTokens(ctx, anthropic.MessageCountTokensParams{
		Model:    anthropic.Model(i.desc.Key),
		Messages: []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(text))},
	})
	if err != nil {
		return 0, fmt.Errorf("anthropic: count tokens: %w", err)
	}
	return int(count.InputTokens), nil
}

func buildParams(d registry.ModelDescriptor, p backend.Prompt, cfg backend.InferenceConfig) anthropic.MessageNewParams {
	system, messages := buildMessages(p)
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(d.Key),
		Messages:    messages,
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(cfg.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if stops := backend.MergeStops(d.StopSequences, cfg.StopSequences); len(stops) > 0 {
		params.StopSequences = stops
	}
	return params
}

type turn struct {
	role conversation.Role
	text []string
}

// buildMessages splits the prompt into the system text and an alternating
// user/assistant sequence. The first system message becomes the system
// prompt; later system messages (summaries) are sent as user content.
// Consecutive messages of the same role are merged, and the sequence always
// starts with a user turn.
func buildMessages(p backend.Prompt) (string, []anthropic.MessageParam) {
	msgs := p.Messages
	if len(msgs) == 0 {
		msgs = []conversation.Message{{Role: conversation.RoleUser, Content: p.Text}}
	}

	var system string
	var turns []turn
	for idx, m := range msgs {
		role := m.Role
		if role == conversation.RoleSystem {
			if idx == 0 {
				system = m.Content
				continue
			}
			role = conversation.RoleUser
		}
		if role != conversation.RoleAssistant {
			role = conversation.RoleUser
		}
		if n := len(turns); n > 0 && turns[n-1].role == role {
			turns[n-1].text = append(turns[n-1].text, m.Content)
			continue
		}
		turns = append(turns, turn{role: role, text: []string{m.Content}})
	}
	if len(turns) == 0 || turns[0].role != conversation.RoleUser {
		turns = append([]turn{{role: conversation.RoleUser, text: []string{"."}}}, turns...)
	}

	out := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		block := anthropic.NewTextBlock(strings.Join(t.text, "\n\n"))
		if t.role == conversation.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return system, out
}

var (
	_ backend.Client   = (*Client)(nil)
	_ backend.Instance = (*instance)(nil)
)
