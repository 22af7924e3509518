package repository

import (
	"context"
	"fmt"

	"github.com/ayush6624/go-chatgpt"
	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

//go:generate mockgen -source=llm.repository.go -destination=mocks/mock_llm.repository.go

// ChatClient sends one system + user exchange and returns the reply text.
type ChatClient interface {
	Name() string
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

type messageGenerator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

type deepseekRepositoryHandler struct {
	Model     string
	ChatModel messageGenerator
}

func NewDeepseekRepository(ctx context.Context, apiKey, modelName string, maxTokens int) (ChatClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepseek api key is required")
	}
	if modelName == "" {
		modelName = "deepseek-chat"
	}
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	chatModel, err := deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
		APIKey:    apiKey,
		Model:     modelName,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create deepseek model: %w", err)
	}
	return deepseekRepositoryHandler{
		Model:     modelName,
		ChatModel: chatModel,
	}, nil
}

func (h deepseekRepositoryHandler) Name() string {
	return "deepseek/" + h.Model
}

func (h deepseekRepositoryHandler) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	msg, err := h.ChatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userPrompt),
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate deepseek reply: %w", err)
	}
	if msg == nil {
		return "", fmt.Errorf("deepseek returned no message")
	}
	return msg.Content, nil
}

type gptRepositoryHandler struct {
	Model     chatgpt.ChatGPTModel
	GptClient *chatgpt.Client
}

func NewGptRepository(apiKey, modelName string) (ChatClient, error) {
	client, err := chatgpt.NewClient(apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to construct gpt client: %w", err)
	}
	m := chatgpt.GPT35Turbo
	if modelName != "" {
		m = chatgpt.ChatGPTModel(modelName)
	}
	return gptRepositoryHandler{
		Model:     m,
		GptClient: client,
	}, nil
}

func (h gptRepositoryHandler) Name() string {
	return "openai/" + string(h.Model)
}

func (h gptRepositoryHandler) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	res, err := h.GptClient.Send(ctx, &chatgpt.ChatCompletionRequest{
		Model: h.Model,
		Messages: []chatgpt.ChatMessage{
			{
				Role:    chatgpt.ChatGPTModelRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    chatgpt.ChatGPTModelRoleUser,
				Content: userPrompt,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to send gpt request: %w", err)
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("gpt returned no choices")
	}
	return res.Choices[0].Message.Content, nil
}
