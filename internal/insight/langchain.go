package insight

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/pulsepipe/pulsepipe/internal/config"
)

// LangchainModel adapts a langchaingo backend to the Model interface, for
// deployments that point insight synthesis at a provider other than Bedrock.
type LangchainModel struct {
	llm       llms.Model
	modelName string
}

var _ Model = (*LangchainModel)(nil)

// NewLangchainModel creates a backend for the configured provider.
func NewLangchainModel(cfg config.Config) (*LangchainModel, error) {
	var model llms.Model
	var err error

	switch cfg.InsightProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.InsightModelID),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.InsightModelID),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.InsightModelID),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported insight provider: %s", cfg.InsightProvider)
	}

	return &LangchainModel{llm: model, modelName: cfg.InsightModelID}, nil
}

// Name returns the model identifier.
func (m *LangchainModel) Name() string {
	return m.modelName
}

// Generate runs a single-prompt completion. langchaingo does not expose
// token usage uniformly across providers, so usage stays zero here.
func (m *LangchainModel) Generate(ctx context.Context, prompt string) (string, Usage, error) {
	response, err := llms.GenerateFromSinglePrompt(ctx, m.llm, prompt)
	if err != nil {
		return "", Usage{}, fmt.Errorf("generate: %w", err)
	}
	return response, Usage{}, nil
}
