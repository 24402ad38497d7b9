// Package assistant answers free-form questions the rule table could not
// route, using an OpenAI-compatible chat completion endpoint.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"storebot/internal/monitor"
	"storebot/pkg/log"
)

// ErrDisabled is returned when no API key is configured.
var ErrDisabled = errors.New("assistant disabled")

const defaultSystemPrompt = "You are the assistant of an online bookstore. " +
	"Answer briefly in the language of the shopper. " +
	"If you do not know an order's status, suggest giving the order code."

// Config of the completion client.
type Config struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Temperature  float32       `mapstructure:"temperature"`
	Timeout      time.Duration `mapstructure:"timeout"`
	SystemPrompt string        `mapstructure:"system_prompt"`
	// HistoryTurns is how many earlier turns are sent along.
	HistoryTurns int `mapstructure:"history_turns"`
}

// Turn is one earlier line of the conversation.
type Turn struct {
	FromUser bool
	Text     string
}

// Assistant is safe for concurrent use.
type Assistant struct {
	client  *openai.Client
	cfg     Config
	metrics *monitor.MetricsCollector
}

// New builds an Assistant. An empty APIKey yields one whose Reply always
// returns ErrDisabled.
func New(cfg Config, metrics *monitor.MetricsCollector) *Assistant {
	if cfg.Model == "" {
		cfg.Model = openai.GPT3Dot5Turbo
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 300
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = 6
	}

	a := &Assistant{cfg: cfg, metrics: metrics}
	if cfg.APIKey != "" {
		clientCfg := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
		}
		a.client = openai.NewClientWithConfig(clientCfg)
	}
	return a
}

// Enabled reports whether Reply can reach a model.
func (a *Assistant) Enabled() bool {
	return a != nil && a.client != nil
}

// Reply asks the model for an answer to utterance given the recent history.
func (a *Assistant) Reply(ctx context.Context, history []Turn, utterance string) (string, error) {
	if !a.Enabled() {
		return "", ErrDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.cfg.Model,
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
		Messages:    a.messages(history, utterance),
	})
	if err != nil {
		a.metrics.RecordBackendRequest("assistant", "error", time.Since(start))
		log.WithFields(log.Fields{
			"model": a.cfg.Model,
			"error": err.Error(),
		}).Warn("Chat completion failed")
		return "", fmt.Errorf("chat completion: %w", err)
	}
	a.metrics.RecordBackendRequest("assistant", "ok", time.Since(start))

	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: no choices")
	}
	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", errors.New("chat completion: empty answer")
	}
	return answer, nil
}

func (a *Assistant) messages(history []Turn, utterance string) []openai.ChatCompletionMessage {
	if len(history) > a.cfg.HistoryTurns {
		history = history[len(history)-a.cfg.HistoryTurns:]
	}
	out := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: a.cfg.SystemPrompt})
	for _, t := range history {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		role := openai.ChatMessageRoleAssistant
		if t.FromUser {
			role = openai.ChatMessageRoleUser
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: text})
	}
	return append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: utterance})
}
