// Package nlu provides the intent classification boundary for Anfitrion.
//
// The production classifier calls the OpenAI chat completions API with a
// constrained prompt and maps the answer onto the fixed intent taxonomy.
// The contract is fail-closed: any transport or provider problem surfaces as
// an error the conversation engine treats like "no intent returned" — never
// as raw error text toward the customer.
package nlu

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/BrasasLabs/Anfitrion/internal/models"
)

// systemPrompt constrains the model to a single taxonomy label.
const systemPrompt = `You classify WhatsApp messages sent to a restaurant.
Reply with exactly one of these labels and nothing else:
menu_inquiry, hours_inquiry, contact_inquiry, location_inquiry, payment_inquiry, order_inquiry, order_echo, greeting, farewell, none.
Messages are usually in Spanish. Use "none" when no label clearly applies.`

// Classifier returns the single top-ranked intent for a message, or
// models.IntentNone when the message matches nothing in the taxonomy.
type Classifier interface {
	Classify(ctx context.Context, text string) (models.Intent, error)
}

// Opts holds configuration options for the OpenAI-backed classifier.
type Opts struct {
	APIKey string
	Model  string
}

// Option defines a configuration option for the classifier client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key, overriding $OPENAI_API_KEY.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithModel sets the chat model used for classification.
func WithModel(model string) Option {
	return func(o *Opts) {
		o.Model = model
	}
}

// Client classifies messages using the OpenAI chat completions API.
type Client struct {
	chat  openai.Client
	model string
}

// NewClient creates an OpenAI-backed classifier, falling back to the
// OPENAI_API_KEY environment variable when no key option is given.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key must be provided")
	}
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT4oMini
	}
	slog.Debug("nlu.NewClient configured", "model", cfg.Model, "api_key_set", true)

	return &Client{
		chat:  openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model: cfg.Model,
	}, nil
}

// Classify sends the message to the model and normalizes the answer onto the
// taxonomy. A single attempt only; no retries.
func (c *Client) Classify(ctx context.Context, text string) (models.Intent, error) {
	resp, err := c.chat.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(text),
		},
		Temperature: openai.Float(0),
		MaxTokens:   openai.Int(8),
	})
	if err != nil {
		slog.Warn("nlu.Classify provider call failed", "error", err)
		return models.IntentNone, fmt.Errorf("intent classification failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("nlu.Classify provider returned no choices")
		return models.IntentNone, fmt.Errorf("intent classification returned no choices")
	}

	return NormalizeLabel(resp.Choices[0].Message.Content), nil
}

// NormalizeLabel maps a raw model answer onto the taxonomy. Anything outside
// it, including "none", collapses to IntentNone.
func NormalizeLabel(raw string) models.Intent {
	label := models.Intent(strings.ToLower(strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), `"'.`))))
	if models.IsValidIntent(label) {
		return label
	}
	if label != "none" && label != "" {
		slog.Debug("nlu.NormalizeLabel unrecognized label", "label", string(label))
	}
	return models.IntentNone
}

// MockClassifier implements Classifier for tests with a fixed reply.
type MockClassifier struct {
	Intent models.Intent
	Err    error
}

// Classify returns the configured intent and error.
func (m *MockClassifier) Classify(ctx context.Context, text string) (models.Intent, error) {
	return m.Intent, m.Err
}
