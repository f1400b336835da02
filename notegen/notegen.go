// CLAUDE:SUMMARY Anthropic-backed note generation — SOAP prompt, retry with backoff, env/config API key.
// Package notegen produces draft clinical note text from page context. The
// planner treats it as optional: every failure here downgrades to a plan
// without a note.
package notegen

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ModelDefault is the model used when config names none.
const ModelDefault = "claude-3-5-haiku-latest"

const systemPrompt = `You are a clinical documentation assistant. From the visit context provided, draft a concise SOAP note (Subjective, Objective, Assessment, Plan). Use only information present in the context; never invent findings, values, or history. Plain text only.`

// Config holds note generation settings.
type Config struct {
	Model          string        `yaml:"model"`
	MaxTokens      int           `yaml:"max_tokens"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	// APIKey overrides the ANTHROPIC_API_KEY environment variable.
	APIKey string `yaml:"api_key"`
}

func (c *Config) defaults() {
	if c.Model == "" {
		c.Model = ModelDefault
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 700
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = time.Second
	}
}

// Client generates notes through the Anthropic API. Implements
// planner.NoteGenerator.
type Client struct {
	cfg    Config
	client anthropic.Client

	// send is the request function; overridden in tests.
	send func(ctx context.Context, pageContext string) (string, error)
}

// New returns a Client, resolving the API key from config then environment.
func New(cfg Config) (*Client, error) {
	cfg.defaults()

	key := cfg.APIKey
	if key == "" {
		key = os.Getenv("ANTHROPIC_API_KEY")
	}
	if key == "" {
		return nil, errors.New("notegen: no API key: set ANTHROPIC_API_KEY or config api_key")
	}

	c := &Client{
		cfg:    cfg,
		client: anthropic.NewClient(option.WithAPIKey(key)),
	}
	c.send = c.doRequest
	return c, nil
}

// GenerateNote drafts a note from the page context, retrying transient API
// failures with exponential backoff.
func (c *Client) GenerateNote(ctx context.Context, pageContext string) (string, error) {
	if strings.TrimSpace(pageContext) == "" {
		return "", errors.New("notegen: empty context")
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.cfg.RetryBaseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		note, err := c.send(ctx, pageContext)
		if err == nil {
			return strings.TrimSpace(note), nil
		}
		lastErr = err
		if !isRetryable(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("notegen: max retries exceeded: %w", lastErr)
}

func (c *Client) doRequest(ctx context.Context, pageContext string) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: int64(c.cfg.MaxTokens),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(pageContext)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("notegen request: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("notegen: empty completion")
	}
	return sb.String(), nil
}

// isRetryable reports whether the API error is worth another attempt:
// rate limits, server errors, timeouts.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{"rate_limit", "429", "500", "502", "503", "504", "timeout", "deadline", "overloaded"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Static returns a generator that always produces the given note. Useful
// for demos and tests where no API access exists.
func Static(note string) StaticGenerator {
	return StaticGenerator(note)
}

// StaticGenerator implements planner.NoteGenerator with a fixed note.
type StaticGenerator string

// GenerateNote returns the fixed note.
func (s StaticGenerator) GenerateNote(context.Context, string) (string, error) {
	return string(s), nil
}
