package ai

import (
	"context"
	"errors"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	anthropicclient "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	openaiclient "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
	"github.com/yapper-space/core/internal/config"
	"github.com/yapper-space/core/internal/pkg/apperr"
	"github.com/yapper-space/core/internal/pkg/upstream"
	jetai "go.jetify.com/ai"
	jetapi "go.jetify.com/ai/api"
	jetanthropic "go.jetify.com/ai/provider/anthropic"
	jetopenai "go.jetify.com/ai/provider/openai"
)

const (
	ProviderOpenAICompatible = "openai-compatible"
	ProviderOpenAI           = "openai"
	ProviderAnthropic        = "anthropic"

	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-haiku-4-5-20251001"
)

var errEmptyCompletion = apperr.Upstream(http.StatusBadGateway, "AI provider returned an empty response", nil)

// Completer turns a prompt into text.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, prompt string, maxTokens int) (string, error)
}

func normalizeProviderType(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	t = strings.ReplaceAll(t, "_", "-")
	t = strings.ReplaceAll(t, " ", "")
	if t == "openaicompatible" || t == "" {
		return ProviderOpenAICompatible
	}
	return t
}

// NewCompleter builds the completer for one configured provider. model
// overrides the provider default when set.
func NewCompleter(p config.AIProvider, model string, client *upstream.Client, timeout time.Duration) (Completer, error) {
	if strings.TrimSpace(p.APIKey) == "" {
		return nil, errors.New("AI provider api key is empty")
	}
	if model = strings.TrimSpace(model); model == "" {
		model = strings.TrimSpace(p.DefaultModel)
	}

	switch normalizeProviderType(p.Type) {
	case ProviderOpenAICompatible:
		if client == nil {
			return nil, errors.New("openai-compatible provider needs an upstream client")
		}
		if model == "" {
			model = "auto"
		}
		return &compatibleCompleter{
			client:   client,
			endpoint: normalizeOpenAICompatibleEndpoint(p.Endpoint),
			apiKey:   strings.TrimSpace(p.APIKey),
			model:    model,
		}, nil
	case ProviderOpenAI, ProviderAnthropic:
		lm := buildLanguageModel(p, model)
		return &sdkCompleter{model: lm, timeout: timeout}, nil
	default:
		return nil, errors.New("unsupported AI provider type: " + p.Type)
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
	Stream    bool          `json:"stream"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// contentFromCompletion is the only place a completion body becomes text.
// Anything without non-empty content is an error.
func contentFromCompletion(resp *chatCompletionResponse) (string, error) {
	if resp == nil {
		return "", errEmptyCompletion
	}
	if resp.Error != nil && strings.TrimSpace(resp.Error.Message) != "" {
		return "", apperr.Upstream(http.StatusBadGateway, "AI provider error: "+strings.TrimSpace(resp.Error.Message), nil)
	}
	if len(resp.Choices) == 0 {
		return "", errEmptyCompletion
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errEmptyCompletion
	}
	return text, nil
}

// compatibleCompleter speaks the chat completions wire format directly so
// gateways that only implement that endpoint keep working.
type compatibleCompleter struct {
	client   *upstream.Client
	endpoint string
	apiKey   string
	model    string
}

func (c *compatibleCompleter) Complete(ctx context.Context, systemPrompt, prompt string, maxTokens int) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	var resp chatCompletionResponse
	err := c.client.JSON(ctx, upstream.Request{
		Method: http.MethodPost,
		URL:    c.endpoint + "/v1/chat/completions",
		Header: http.Header{"Authorization": {"Bearer " + c.apiKey}},
		JSON: chatCompletionRequest{
			Model:     c.model,
			Messages:  messages,
			MaxTokens: maxTokens,
		},
		Idempotent: true,
	}, &resp)
	if err != nil {
		return "", err
	}
	return contentFromCompletion(&resp)
}

type sdkCompleter struct {
	model   jetapi.LanguageModel
	timeout time.Duration
}

func (c *sdkCompleter) Complete(ctx context.Context, systemPrompt, prompt string, maxTokens int) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	resp, err := jetai.GenerateText(ctx,
		buildPromptMessages(systemPrompt, prompt),
		jetai.WithModel(c.model),
		jetai.WithMaxOutputTokens(maxTokens),
	)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", apperr.Timeout("AI provider request timed out", err)
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", apperr.Upstream(http.StatusBadGateway, "AI provider request failed", err)
	}
	return textFromResponse(resp)
}

func buildPromptMessages(systemPrompt, prompt string) []jetapi.Message {
	messages := make([]jetapi.Message, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, &jetapi.SystemMessage{Content: systemPrompt})
	}
	messages = append(messages, &jetapi.UserMessage{Content: jetapi.ContentFromText(prompt)})
	return messages
}

func textFromResponse(resp *jetapi.Response) (string, error) {
	if resp == nil {
		return "", errEmptyCompletion
	}
	var full strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.(*jetapi.TextBlock); ok {
			full.WriteString(tb.Text)
		}
	}
	text := strings.TrimSpace(full.String())
	if text == "" {
		return "", errEmptyCompletion
	}
	return text, nil
}

func buildLanguageModel(p config.AIProvider, modelID string) jetapi.LanguageModel {
	apiKey := strings.TrimSpace(p.APIKey)
	endpoint := strings.TrimSpace(p.Endpoint)

	if normalizeProviderType(p.Type) == ProviderAnthropic {
		if modelID == "" {
			modelID = defaultAnthropicModel
		}
		opts := []anthropicoption.RequestOption{
			anthropicoption.WithAPIKey(apiKey),
			anthropicoption.WithMaxRetries(0),
		}
		if endpoint != "" {
			opts = append(opts, anthropicoption.WithBaseURL(strings.TrimRight(endpoint, "/")))
		}
		client := anthropicclient.NewClient(opts...)
		return jetanthropic.NewLanguageModel(modelID, jetanthropic.WithClient(client))
	}

	if modelID == "" {
		modelID = defaultOpenAIModel
	}
	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(apiKey),
		openaioption.WithMaxRetries(0),
	}
	if normalized := normalizeOpenAIBaseURL(endpoint); normalized != "" {
		opts = append(opts, openaioption.WithBaseURL(normalized))
	}
	client := openaiclient.NewClient(opts...)
	return jetopenai.NewLanguageModel(modelID, jetopenai.WithClient(client))
}

// normalizeOpenAIBaseURL makes sure the SDK base URL ends in /v1.
func normalizeOpenAIBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return ""
	}
	parsed, err := neturl.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return strings.TrimRight(base, "/")
	}
	path := strings.TrimRight(parsed.Path, "/")
	if !strings.HasSuffix(path, "/v1") {
		path += "/v1"
	}
	parsed.Path = path
	return strings.TrimRight(parsed.String(), "/")
}

// normalizeOpenAICompatibleEndpoint strips a trailing /v1; the path is appended per call.
func normalizeOpenAICompatibleEndpoint(raw string) string {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	if base == "" {
		return config.DefaultAIEndpoint
	}
	return strings.TrimSuffix(base, "/v1")
}
