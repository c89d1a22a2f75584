// Package openai implements backend.Client on the OpenAI Chat Completions API.
// It serves the "openai" backend kind and the "lmstudio" kind, since LM Studio
// exposes an OpenAI-compatible server at the backend's base URL.
package openai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/hupe1980/agentrelay/backend"
	"github.com/hupe1980/agentrelay/conversation"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/registry"
)

// lmStudioAPIKey is sent to LM Studio servers, which ignore authentication.
const lmStudioAPIKey = "lm-studio"

type chatCompletions interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

type modelService interface {
	Get(ctx context.Context, model string, opts ...option.RequestOption) (*openai.Model, error)
}

// Options configure the OpenAI backend client.
type Options struct {
	// APIKey overrides the key read from the backend's api_key_env.
	APIKey string
	// ProbeOnLoad verifies the model key against the Models API on load.
	ProbeOnLoad bool
	Logger      logging.Logger
}

// Client talks to one OpenAI-compatible endpoint.
type Client struct {
	backend     registry.BackendDescriptor
	completions chatCompletions
	models      modelService
	opts        Options
}

// NewClient creates a client for the backend descriptor b.
func NewClient(b registry.BackendDescriptor, optFns ...func(o *Options)) (*Client, error) {
	opts := Options{
		ProbeOnLoad: b.Kind == registry.KindLMStudio,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	apiKey := opts.APIKey
	if apiKey == "" && b.APIKeyEnv != "" {
		apiKey = strings.TrimSpace(os.Getenv(b.APIKeyEnv))
	}
	if apiKey == "" && b.Kind == registry.KindLMStudio {
		apiKey = lmStudioAPIKey
	}
	if apiKey == "" && b.Kind == registry.KindOpenAI {
		return nil, errors.New("openai: api key required, set api_key_env")
	}

	var reqOpts []option.RequestOption
	reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	if b.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(b.BaseURL))
	}
	client := openai.NewClient(reqOpts...)
	return newClient(b, &client.Chat.Completions, &client.Models, opts), nil
}

func newClient(b registry.BackendDescriptor, completions chatCompletions, models modelService, opts Options) *Client {
	return &Client{backend: b, completions: completions, models: models, opts: opts}
}

// Factory returns a backend.Factory producing OpenAI-compatible clients.
func Factory(optFns ...func(o *Options)) backend.Factory {
	return func(b registry.BackendDescriptor) (backend.Client, error) {
		return NewClient(b, optFns...)
	}
}

// Kind implements backend.Client.
func (c *Client) Kind() string { return c.backend.Kind }

// LoadModel implements backend.Client. Remote endpoints load models on
// demand, so loading only optionally probes that the model key exists.
func (c *Client) LoadModel(ctx context.Context, d registry.ModelDescriptor) (backend.Instance, error) {
	if c.opts.ProbeOnLoad {
		if _, err := c.models.Get(ctx, d.Key); err != nil {
			return nil, fmt.Errorf("openai: probe model %q: %w", d.Key, err)
		}
	}
	c.opts.Logger.Debug("model ready", "model", d.ID, "key", d.Key, "backend", c.backend.ID)
	return &instance{client: c, desc: d}, nil
}

// UnloadModel implements backend.Client. The chat API has no unload call;
// the handle is simply released.
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
	params := buildParams(i.desc, p, cfg)
	resp, err := i.client.completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty completion")
	}
	return resp.Choices[0].Message.Content, nil
}

// CountTokens estimates the token count; the chat API exposes no tokenizer.
func (i *instance) CountTokens(_ context.Context, text string) (int, error) {
	return backend.EstimateTokens(text), nil
}

func buildParams(d registry.ModelDescriptor, p backend.Prompt, cfg backend.InferenceConfig) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(d.Key),
		Messages:    buildMessages(p),
		Temperature: openai.Float(cfg.Temperature),
	}
	if cfg.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(cfg.MaxTokens))
	}
	if stops := backend.MergeStops(d.StopSequences, cfg.StopSequences); len(stops) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: stops}
	}
	return params
}

// buildMessages converts the structured prompt into chat messages. A prompt
// without messages is sent as one user message.
func buildMessages(p backend.Prompt) []openai.ChatCompletionMessageParamUnion {
	if len(p.Messages) == 0 {
		return []openai.ChatCompletionMessageParamUnion{openai.UserMessage(p.Text)}
	}
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(p.Messages))
	for _, m := range p.Messages {
		switch m.Role {
		case conversation.RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case conversation.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	return messages
}

var (
	_ backend.Client   = (*Client)(nil)
	_ backend.Instance = (*instance)(nil)
)
