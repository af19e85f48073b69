package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"smart_edu_backend/internal/config"
	"smart_edu_backend/internal/util"
	"strings"

	"github.com/google/generative-ai-go/genai"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// AIProvider 大模型后端，返回 JSON 文本
type AIProvider interface {
	CompleteJSON(ctx context.Context, system, user string) (string, error)
	Name() string
}

// NewAIProvider 按配置创建 provider，未配置 API key 时返回 nil
func NewAIProvider(ctx context.Context, cfg config.AIConfig) (AIProvider, error) {
	if cfg.APIKey == "" {
		return nil, nil
	}
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIProvider(cfg), nil
	case "gemini":
		return NewGeminiProvider(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported AI provider %q", cfg.Provider)
	}
}

// OpenAIProvider 兼容 OpenAI 接口的服务（OpenAI、DeepSeek、通义等）
type OpenAIProvider struct {
	api   *openai.Client
	model string
}

func NewOpenAIProvider(cfg config.AIConfig) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = openai.GPT4oMini
	}
	return &OpenAIProvider{
		api:   openai.NewClientWithConfig(clientCfg),
		model: modelName,
	}
}

func (p *OpenAIProvider) Name() string { return "openai:" + p.model }

func (p *OpenAIProvider) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	resp, err := p.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", classifyUpstream(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", util.ErrUpstreamError)
	}
	return resp.Choices[0].Message.Content, nil
}

type GeminiProvider struct {
	client *genai.Client
	model  string
}

func NewGeminiProvider(ctx context.Context, cfg config.AIConfig) (*GeminiProvider, error) {
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &GeminiProvider{client: client, model: modelName}, nil
}

func (p *GeminiProvider) Name() string { return "gemini:" + p.model }

func (p *GeminiProvider) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	m := p.client.GenerativeModel(p.model)
	m.ResponseMIMEType = "application/json"
	m.SetTemperature(0.2)
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}

	resp, err := m.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return "", classifyUpstream(err)
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		break
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: empty response", util.ErrUpstreamError)
	}
	return sb.String(), nil
}

func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

// classifyUpstream 超时类错误归为 ErrUpstreamTimeout（可重试），其余为 ErrUpstreamError
func classifyUpstream(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, util.ErrUpstreamTimeout) || errors.Is(err, util.ErrUpstreamError) || errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", util.ErrUpstreamTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", util.ErrUpstreamTimeout, err)
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	var gErr *googleapi.Error
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	case errors.As(err, &gErr):
		status = gErr.Code
	}
	if status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout {
		return fmt.Errorf("%w: %v", util.ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%w: %v", util.ErrUpstreamError, err)
}

// IsUpstreamTimeout 供重试策略判断
func IsUpstreamTimeout(err error) bool {
	return errors.Is(err, util.ErrUpstreamTimeout)
}
