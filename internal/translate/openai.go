package translate

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/lexiqai/voice-reader/internal/voice"
)

const systemPrompt = "You are a translator. Translate the user's message from %s to %s. Reply with the translation only."

// OpenAIConfig configures chat-completion translation
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string // optional, for compatible endpoints
}

// OpenAITranslator translates with a chat completion
type OpenAITranslator struct {
	client *openai.Client
	model  string
	logger zerolog.Logger
}

// NewOpenAITranslator creates a translator
func NewOpenAITranslator(config OpenAIConfig, logger zerolog.Logger) *OpenAITranslator {
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	return &OpenAITranslator{
		client: openai.NewClientWithConfig(clientConfig),
		model:  config.Model,
		logger: logger.With().Str("component", "translate").Str("backend", "openai").Logger(),
	}
}

func (o *OpenAITranslator) Name() string {
	return "openai"
}

// Translate makes a single chat completion request
func (o *OpenAITranslator) Translate(ctx context.Context, text, source, target string) voice.TranslationResult {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: fmt.Sprintf(systemPrompt, source, target)},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0,
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		o.logger.Warn().Err(err).Msg("Translation request failed")
		return voice.TranslationFailed(err.Error())
	}
	if len(resp.Choices) == 0 {
		return voice.TranslationFailed("no choices in completion")
	}

	return voice.Translated(resp.Choices[0].Message.Content)
}

var _ Translator = (*OpenAITranslator)(nil)
