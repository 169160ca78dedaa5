package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lexa/internal/common"
	"github.com/ternarybob/lexa/internal/interfaces"
)

// ClaudeProvider generates completions through the Anthropic API.
type ClaudeProvider struct {
	config  *common.LLMConfig
	logger  arbor.ILogger
	client  anthropic.Client
	timeout time.Duration
}

// NewClaudeProvider creates a new Claude generation provider
func NewClaudeProvider(config *common.LLMConfig, logger arbor.ILogger) (*ClaudeProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required (set ANTHROPIC_API_KEY or llm.api_key)")
	}
	if config.Model == "" {
		config.Model = "claude-sonnet-4-20250514"
	}

	timeout := common.MustDuration(config.Timeout, 60*time.Second)
	client := anthropic.NewClient(option.WithAPIKey(config.APIKey))

	logger.Debug().
		Str("model", config.Model).
		Dur("timeout", timeout).
		Msg("Claude generation provider initialized")

	return &ClaudeProvider{
		config:  config,
		logger:  logger,
		client:  client,
		timeout: timeout,
	}, nil
}

func (p *ClaudeProvider) Name() string {
	return "claude"
}

// Complete generates one assistant turn from the conversation history.
func (p *ClaudeProvider) Complete(ctx context.Context, messages []interfaces.Message, maxTokens int, temperature float32) (*interfaces.Completion, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("messages cannot be empty")
	}

	rest, system := extractSystem(messages)

	claudeMessages := make([]anthropic.MessageParam, 0, len(rest))
	for _, msg := range rest {
		switch msg.Role {
		case "assistant":
			claudeMessages = append(claudeMessages, anthropic.NewAssistantMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		default:
			claudeMessages = append(claudeMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		}
	}
	if len(claudeMessages) == 0 {
		return nil, fmt.Errorf("at least one user message is required")
	}

	if maxTokens <= 0 {
		maxTokens = p.config.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.config.Model),
		MaxTokens: int64(maxTokens),
		Messages:  claudeMessages,
	}
	if temperature > 0 {
		params.Temperature = anthropic.Float(float64(temperature))
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	startTime := time.Now()
	resp, err := p.client.Messages.New(timeoutCtx, params)
	if err != nil {
		return nil, fmt.Errorf("Claude API call failed: %w", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	if content.Len() == 0 {
		return nil, fmt.Errorf("no response generated from Claude API")
	}

	p.logger.Debug().
		Int("message_count", len(messages)).
		Int("response_length", content.Len()).
		Dur("duration", time.Since(startTime)).
		Msg("Claude completion finished")

	return &interfaces.Completion{
		Content:      content.String(),
		FinishReason: string(resp.StopReason),
		Usage: interfaces.TokenUsage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

// HealthCheck exercises the API with a minimal probe.
func (p *ClaudeProvider) HealthCheck(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	completion, err := p.Complete(probeCtx, []interfaces.Message{
		{Role: "user", Content: "ping"},
	}, 16, 0)
	if err != nil {
		return fmt.Errorf("Claude health check failed: %w", err)
	}
	if strings.TrimSpace(completion.Content) == "" {
		return fmt.Errorf("Claude probe returned empty response")
	}
	return nil
}

var _ interfaces.GenerationProvider = (*ClaudeProvider)(nil)
