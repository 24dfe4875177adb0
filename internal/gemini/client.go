// Package gemini implements the Google Gemini integration used by the ask
// command.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/lucasvml/wishbot/internal/config"
)

// Client defines the AI operations used by command handlers.
type Client interface {
	// Ask generates a short free-form answer to a user question.
	Ask(ctx context.Context, question string) (string, error)
}

type sdkClient struct {
	genaiClient *genai.Client
	log         *slog.Logger
	model       string
	timeout     time.Duration
}

// NewClient creates a Gemini client. Returns an error when no API key is
// configured; callers may treat that as "feature disabled".
func NewClient(ctx context.Context, cfg config.GeminiConfig, log *slog.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	logger := log.With("component", "gemini_client")
	logger.Info("Gemini client initialized", "model", cfg.Model)
	return &sdkClient{
		genaiClient: gi,
		log:         logger,
		model:       cfg.Model,
		timeout:     cfg.Timeout,
	}, nil
}

func (c *sdkClient) Ask(ctx context.Context, question string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.genaiClient.Models.GenerateContent(ctx, c.model, genai.Text(question), nil)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	answer := strings.TrimSpace(resp.Text())
	if answer == "" {
		return "", errors.New("gemini returned an empty response")
	}
	return answer, nil
}
