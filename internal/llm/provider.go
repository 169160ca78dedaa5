// -----------------------------------------------------------------------
// Generation Provider Factory - Select Claude or Gemini from config
// -----------------------------------------------------------------------

package llm

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lexa/internal/common"
	"github.com/ternarybob/lexa/internal/interfaces"
)

// NewProvider constructs the configured generation provider.
func NewProvider(config *common.LLMConfig, logger arbor.ILogger) (interfaces.GenerationProvider, error) {
	switch config.Provider {
	case "claude":
		return NewClaudeProvider(config, logger)
	case "gemini":
		return NewGeminiProvider(config, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q (expected claude or gemini)", config.Provider)
	}
}

// extractSystem splits the first system message out of the sequence,
// returning the remaining turns. Providers deliver system instructions
// through a dedicated parameter rather than the message list.
func extractSystem(messages []interfaces.Message) ([]interfaces.Message, string) {
	var system string
	rest := make([]interfaces.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == "system" {
			if system == "" {
				system = msg.Content
			}
			continue
		}
		rest = append(rest, msg)
	}
	return rest, system
}
