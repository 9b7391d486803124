// Package chat talks to the completion provider behind the dashboard's
// assistant.
package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Roles accepted in a conversation.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider produces the assistant's next reply.
type Provider interface {
	Complete(ctx context.Context, system string, messages []Message) (string, error)
}

// Compile-time interface check
var _ Provider = (*OpenAI)(nil)

// CompletionsService defines the interface for making chat completion calls.
// This abstraction enables testing without calling the real OpenAI API.
type CompletionsService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAI implements Provider with OpenAI chat completions.
type OpenAI struct {
	completions CompletionsService
	model       openai.ChatModel
}

// NewOpenAI creates a chat provider for model.
func NewOpenAI(apiKey, model string) *OpenAI {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAI{
		completions: client.Chat.Completions,
		model:       openai.ChatModel(model),
	}
}

// Complete sends the system prompt followed by messages and returns the
// first choice. Errors are classified; see Classify.
func (o *OpenAI) Complete(ctx context.Context, system string, messages []Message) (string, error) {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	params = append(params, openai.SystemMessage(system))
	for _, m := range messages {
		switch m.Role {
		case RoleAssistant:
			params = append(params, openai.AssistantMessage(m.Content))
		default:
			params = append(params, openai.UserMessage(m.Content))
		}
	}

	resp, err := o.completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: openai.F(params),
		Model:    openai.F(o.model),
	})
	if err != nil {
		return "", Classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrUnavailable)
	}

	return resp.Choices[0].Message.Content, nil
}

// ModelName returns the chat model name
func (o *OpenAI) ModelName() string {
	return string(o.model)
}

// Provider error classes.
var (
	ErrAuth        = errors.New("completion provider rejected credentials")
	ErrRateLimited = errors.New("completion provider rate limited")
	ErrUnavailable = errors.New("completion provider unavailable")
)

// Classify maps a provider error to ErrAuth (401), ErrRateLimited (429) or
// ErrUnavailable, keeping the original error in the chain.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrAuth) || errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable) {
		return err
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401:
			return fmt.Errorf("%w: %w", ErrAuth, err)
		case 429:
			return fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// UserMessage returns the localized text shown to the user for err.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrAuth):
		return "Chave da API inválida ou ausente. Verifique a configuração do assistente."
	case errors.Is(err, ErrRateLimited):
		return "Muitas requisições ao assistente. Aguarde alguns instantes e tente novamente."
	default:
		return "O assistente está indisponível no momento. Tente novamente mais tarde."
	}
}
