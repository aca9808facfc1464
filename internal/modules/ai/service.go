package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/yapper-space/core/internal/autocomment"
	"github.com/yapper-space/core/internal/config"
	"github.com/yapper-space/core/internal/pkg/apperr"
	"github.com/yapper-space/core/internal/pkg/upstream"
	"go.uber.org/zap"
)

const (
	commentMaxTokens = 300
	tweetsMaxTokens  = 1200
)

var (
	ErrMissingTweet  = apperr.Validation("Missing tweet content")
	ErrMissingPrompt = apperr.Validation("Missing prompt")
	ErrNotConfigured = apperr.Misconfigured("AI API key not configured")
)

// unconfiguredCompleter keeps the server up without an AI key and fails
// every generation.
type unconfiguredCompleter struct{}

func (unconfiguredCompleter) Complete(context.Context, string, string, int) (string, error) {
	return "", ErrNotConfigured
}

type Service struct {
	completer Completer
	logger    *zap.Logger
}

func NewService(completer Completer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{completer: completer, logger: logger}
}

// NewServiceFromConfig resolves the comment model assignment to a provider
// and builds the service around it.
func NewServiceFromConfig(cfg config.AIConfig, client *upstream.Client, timeout time.Duration, logger *zap.Logger) (*Service, error) {
	provider, err := selectProvider(cfg)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(provider.APIKey) == "" {
		if logger != nil {
			logger.Warn("AI provider has no api key; comment and tweet generation are disabled", zap.String("provider", provider.ID))
		}
		return NewService(unconfiguredCompleter{}, logger), nil
	}
	completer, err := NewCompleter(provider, cfg.CommentModel.Model, client, timeout)
	if err != nil {
		return nil, err
	}
	return NewService(completer, logger), nil
}

func selectProvider(cfg config.AIConfig) (config.AIProvider, error) {
	var fallback *config.AIProvider
	for i := range cfg.Providers {
		p := cfg.Providers[i]
		if !p.Enabled {
			continue
		}
		if p.ID == cfg.CommentModel.ProviderID {
			return p, nil
		}
		if fallback == nil {
			fallback = &cfg.Providers[i]
		}
	}
	if fallback == nil {
		return config.AIProvider{}, errors.New("no enabled AI provider configured")
	}
	return *fallback, nil
}

// GenerateComment writes one reply to content in the given tone. The empty
// tone means friendly.
func (s *Service) GenerateComment(ctx context.Context, content string, tone autocomment.Tone) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrMissingTweet
	}
	if tone == "" {
		tone = autocomment.ToneFriendly
	}
	if !tone.Valid() {
		return "", autocomment.ErrInvalidTone
	}

	systemPrompt, prompt := buildCommentPrompt(content, tone)
	text, err := s.completer.Complete(ctx, systemPrompt, prompt, commentMaxTokens)
	if err != nil {
		s.logger.Warn("comment generation failed", zap.String("tone", string(tone)), zap.Error(err))
		return "", err
	}
	comment := cleanReply(text)
	if comment == "" {
		return "", errEmptyCompletion
	}
	return comment, nil
}

// GenerateTweets asks for ten tweets matching request and returns the raw text.
func (s *Service) GenerateTweets(ctx context.Context, request string) (string, error) {
	request = strings.TrimSpace(request)
	if request == "" {
		return "", ErrMissingPrompt
	}
	systemPrompt, prompt := buildTweetsPrompt(request)
	text, err := s.completer.Complete(ctx, systemPrompt, prompt, tweetsMaxTokens)
	if err != nil {
		s.logger.Warn("tweet generation failed", zap.Error(err))
		return "", err
	}
	return text, nil
}

var quotePairs = [][2]string{{`"`, `"`}, {"'", "'"}, {"\u201c", "\u201d"}}

// cleanReply drops wrapping quotes models like to add around a single reply.
func cleanReply(text string) string {
	text = strings.TrimSpace(text)
	for _, p := range quotePairs {
		if len(text) >= len(p[0])+len(p[1]) && strings.HasPrefix(text, p[0]) && strings.HasSuffix(text, p[1]) {
			text = strings.TrimSpace(text[len(p[0]) : len(text)-len(p[1])])
		}
	}
	return text
}
