// Package generator produces spoken replies with Gemini.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/vango-go/vai-friend/pkg/core/conversation"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.5-pro"

// ContentGenerator is the slice of the genai Models service used here.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Config configures a Gemini generator.
type Config struct {
	APIKey  string
	Model   string
	Profile Profile
	Logger  *slog.Logger
}

// Option customizes a Gemini generator.
type Option func(*Gemini)

// WithContentGenerator replaces the genai client.
func WithContentGenerator(cg ContentGenerator) Option {
	return func(g *Gemini) {
		g.models = cg
	}
}

// Gemini builds prompts from the profile and conversation memory. Failures
// are logged and produce an empty string.
type Gemini struct {
	models  ContentGenerator
	model   string
	profile Profile
	logger  *slog.Logger
}

// New creates a generator backed by the Gemini API.
func New(ctx context.Context, cfg Config, opts ...Option) (*Gemini, error) {
	g := &Gemini{
		model:   strings.TrimSpace(cfg.Model),
		profile: cfg.Profile,
		logger:  cfg.Logger,
	}
	if g.model == "" {
		g.model = DefaultModel
	}
	if g.profile.Personality == "" {
		g.profile.Personality = DefaultPersonality
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.models != nil {
		return g, nil
	}

	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	g.models = client.Models
	return g, nil
}

func (g *Gemini) Model() string {
	return g.model
}

// Generate sends one prompt and returns the trimmed text.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if resp == nil {
		return "", errors.New("generate content: empty response")
	}
	text := strings.TrimSpace(resp.Text())
	g.logger.Debug("gemini generated",
		"model", g.model,
		"chars", len(text),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

// Reply answers text given the prior turns of the session.
func (g *Gemini) Reply(ctx context.Context, history []conversation.Turn, text string) string {
	return g.generateOrLog(ctx, "reply", replyPrompt(g.profile, history, text))
}

// Greeting returns a short wake-up greeting.
func (g *Gemini) Greeting(ctx context.Context) string {
	return g.generateOrLog(ctx, "greeting", greetingPrompt(g.profile))
}

// Farewell returns a short goodbye matching what the user said.
func (g *Gemini) Farewell(ctx context.Context, text string) string {
	return g.generateOrLog(ctx, "farewell", farewellPrompt(g.profile, text))
}

func (g *Gemini) generateOrLog(ctx context.Context, op, prompt string) string {
	text, err := g.Generate(ctx, prompt)
	if err != nil {
		g.logger.Error("llm generation failed", "op", op, "error", err)
		return ""
	}
	return text
}
