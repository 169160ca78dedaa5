package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lexa/internal/common"
	"github.com/ternarybob/lexa/internal/interfaces"
	"google.golang.org/genai"
)

// GeminiProvider generates completions through the Gemini API.
type GeminiProvider struct {
	config  *common.LLMConfig
	logger  arbor.ILogger
	client  *genai.Client
	timeout time.Duration
}

// NewGeminiProvider creates a new Gemini generation provider
func NewGeminiProvider(config *common.LLMConfig, logger arbor.ILogger) (*GeminiProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required (set GEMINI_API_KEY or llm.api_key)")
	}
	if config.Model == "" {
		config.Model = "gemini-2.0-flash"
	}

	timeout := common.MustDuration(config.Timeout, 60*time.Second)

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	logger.Debug().
		Str("model", config.Model).
		Dur("timeout", timeout).
		Msg("Gemini generation provider initialized")

	return &GeminiProvider{
		config:  config,
		logger:  logger,
		client:  client,
		timeout: timeout,
	}, nil
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Complete generates one assistant turn from the conversation history.
func (p *GeminiProvider) Complete(ctx context.Context, messages []interfaces.Message, maxTokens int, temperature float32) (*interfaces.Completion, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("messages cannot be empty")
	}

	rest, system := extractSystem(messages)

	contents := make([]*genai.Content, 0, len(rest))
	for _, msg := range rest {
		role := genai.RoleUser
		if msg.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{genai.NewPartFromText(msg.Content)},
		})
	}
	if len(contents) == 0 {
		return nil, fmt.Errorf("at least one user message is required")
	}

	if maxTokens <= 0 {
		maxTokens = p.config.MaxTokens
	}

	genConfig := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
	}
	if temperature > 0 {
		genConfig.Temperature = genai.Ptr(temperature)
	}
	if system != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	startTime := time.Now()
	resp, err := p.client.Models.GenerateContent(timeoutCtx, p.config.Model, contents, genConfig)
	if err != nil {
		return nil, fmt.Errorf("Gemini API call failed: %w", err)
	}

	var content strings.Builder
	finishReason := ""
	if resp != nil {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					content.WriteString(part.Text)
				}
			}
			if content.Len() > 0 {
				finishReason = string(candidate.FinishReason)
				break
			}
		}
	}
	if content.Len() == 0 {
		return nil, fmt.Errorf("no response generated from Gemini API")
	}

	usage := interfaces.TokenUsage{}
	if resp.UsageMetadata != nil {
		usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	p.logger.Debug().
		Int("message_count", len(messages)).
		Int("response_length", content.Len()).
		Dur("duration", time.Since(startTime)).
		Msg("Gemini completion finished")

	return &interfaces.Completion{
		Content:      content.String(),
		FinishReason: finishReason,
		Usage:        usage,
	}, nil
}

// HealthCheck exercises the API with a minimal probe.
func (p *GeminiProvider) HealthCheck(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	completion, err := p.Complete(probeCtx, []interfaces.Message{
		{Role: "user", Content: "ping"},
	}, 16, 0)
	if err != nil {
		return fmt.Errorf("Gemini health check failed: %w", err)
	}
	if strings.TrimSpace(completion.Content) == "" {
		return fmt.Errorf("Gemini probe returned empty response")
	}
	return nil
}

var _ interfaces.GenerationProvider = (*GeminiProvider)(nil)
