package ai

import (
	"context"
	"strings"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"github.com/sirupsen/logrus"

	"github.com/AreslotLLC/kuchikomi/internal/services"
)

// PlaceholderAPIKey is the unconfigured default shipped in .env
// templates. A key equal to it is treated the same as no key.
const PlaceholderAPIKey = "your_openai_api_key_here"

const (
	model       = shared.ChatModelGPT4oMini
	temperature = 0.7
	maxTokens   = 400
)

// OpenAIGenerator issues chat completions against the OpenAI API.
type OpenAIGenerator struct {
	apiKey string
	client openai.Client
}

// NewOpenAIGenerator builds a generator. The key is validated lazily on
// the first Complete call so the server can start without one.
func NewOpenAIGenerator(apiKey string) *OpenAIGenerator {
	return &OpenAIGenerator{
		apiKey: apiKey,
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Complete sends one chat request and returns the first choice's
// message text. A missing or placeholder key fails before any network
// call.
func (g *OpenAIGenerator) Complete(ctx context.Context, system, user string) (string, error) {
	if g.apiKey == "" || g.apiKey == PlaceholderAPIKey {
		return "", services.NewMissingCredentialError("OPENAI_API_KEY is not configured")
	}

	completion, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Model:               model,
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	})
	if err != nil {
		logrus.WithError(err).Error("openai chat completion failed")
		return "", services.NewBadGatewayError(err.Error())
	}
	if len(completion.Choices) == 0 {
		return "", services.NewBadGatewayError("openai returned no choices")
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}
