// Package fallback answers free text the conversation did not expect, using Gemini.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/m3rciful/insurebot/core/logger"
)

const (
	comp = logger.CompFallback

	defaultModel   = "gemini-2.0-flash"
	defaultTimeout = 10 * time.Second
	maxMessageLen  = 1000
)

// Config enables the responder when APIKey is set.
type Config struct {
	APIKey  string        `yaml:"api_key" envconfig:"GEMINI_API_KEY"`
	Model   string        `yaml:"model" envconfig:"GEMINI_MODEL"`
	Timeout time.Duration `yaml:"timeout" envconfig:"GEMINI_TIMEOUT"`
}

// Enabled reports whether a key is configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// Normalize fills defaults.
func (c *Config) Normalize() error {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.Timeout < 0 {
		return fmt.Errorf("fallback.timeout must be >= 0")
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	return nil
}

type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini implements conversation.Responder.
type Gemini struct {
	models  generator
	model   string
	timeout time.Duration
}

// NewGemini creates a Gemini API client. cfg must be normalized.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}
	return newGemini(client.Models, cfg), nil
}

func newGemini(models generator, cfg Config) *Gemini {
	return &Gemini{models: models, model: cfg.Model, timeout: cfg.Timeout}
}

// Answer replies to message given the instruction the user is expected to follow.
func (g *Gemini) Answer(ctx context.Context, message, instruction string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	start := time.Now()

	temp := float32(0.4)
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: 512,
	}
	res, err := g.models.GenerateContent(ctx, g.model, genai.Text(Prompt(message, instruction)), cfg)
	if err != nil {
		logger.Warn(ctx, comp, "generate.fail",
			slog.String("model", g.model),
			slog.String("err", err.Error()),
		)
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	text := ""
	if res != nil {
		text = strings.TrimSpace(res.Text())
	}
	if text == "" {
		return "", errors.New("gemini returned empty text")
	}
	logger.Debug(ctx, comp, "generate.ok",
		slog.String("model", g.model),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return text, nil
}

// Prompt builds the single-turn prompt sent to the model.
func Prompt(message, instruction string) string {
	message = strings.TrimSpace(message)
	if r := []rune(message); len(r) > maxMessageLen {
		message = string(r[:maxMessageLen])
	}
	var b strings.Builder
	b.WriteString("You are a Telegram bot that helps users buy car insurance policies. ")
	b.WriteString("Current conversation state: ")
	b.WriteString(strings.TrimSpace(instruction))
	b.WriteString("\nYour task:\n")
	b.WriteString("- If the user's message is a meaningful question or statement related to car insurance or this Telegram bot, respond appropriately within this context and remind the user of the current step.\n")
	b.WriteString("- If the user's message is gibberish, random symbols, or clearly not human language, respond with: ")
	b.WriteString("'I don't understand that message. Please follow the provided rules or use the /start command to begin a new session.'\n")
	b.WriteString("Answer in plain text without Markdown.\n\n")
	b.WriteString("User message: ")
	b.WriteString(message)
	return b.String()
}
