package ai

import (
	"context"
	"fmt"
	"strings"

	"talkbot/internal/dispatch"
	"talkbot/internal/logger"
)

// Worker answers the tasks the manager routes to AI. Every task is a fresh
// single-turn completion.
type Worker struct {
	provider Provider
	settings Settings
}

func NewWorker(p Provider, settings Settings) *Worker {
	return &Worker{provider: p, settings: settings}
}

func (w *Worker) Deliver(ctx context.Context, msg dispatch.RoutedMessage) (string, error) {
	ctx, cancel := withTimeout(ctx, w.settings.Timeout)
	defer cancel()

	resp, err := w.provider.Complete(ctx, Request{
		Model:       w.settings.Model,
		System:      w.settings.SystemPrompt,
		Messages:    []Message{{Role: RoleUser, Content: msg.Message}},
		Temperature: w.settings.Temperature,
		MaxTokens:   w.settings.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("worker turn %d: %w", msg.Turn, err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("worker turn %d: %w", msg.Turn, ErrEmptyResponse)
	}

	logger.DispatchDebugf("Worker answered turn %d, response length: %d chars", msg.Turn, len(resp.Content))
	return resp.Content, nil
}

// Direct answers a purpose with one completion and no manager, as a baseline
// for comparing against the managed conversation.
func Direct(ctx context.Context, p Provider, settings Settings, purpose string) (string, error) {
	ctx, cancel := withTimeout(ctx, settings.Timeout)
	defer cancel()

	resp, err := p.Complete(ctx, Request{
		Model:       settings.Model,
		Messages:    []Message{{Role: RoleUser, Content: purpose}},
		Temperature: settings.Temperature,
		MaxTokens:   settings.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Content, nil
}
