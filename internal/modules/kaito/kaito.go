// Package kaito proxies the Kaito mindshare leaderboard.
package kaito

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yapper-space/core/internal/pkg/response"
	"github.com/yapper-space/core/internal/pkg/upstream"
	"go.uber.org/zap"
)

const (
	leaderboardPath = "/api/v1/gateway/ai/kol/mindshare/top-leaderboard"

	defaultDuration = "30d"
	defaultTopicID  = "CYSIC"
	defaultTopN     = "100"
)

// Query selects one leaderboard.
type Query struct {
	Duration string
	TopicID  string
	TopN     string
}

func (q Query) withDefaults() Query {
	if strings.TrimSpace(q.Duration) == "" {
		q.Duration = defaultDuration
	}
	if strings.TrimSpace(q.TopicID) == "" {
		q.TopicID = defaultTopicID
	}
	if strings.TrimSpace(q.TopN) == "" {
		q.TopN = defaultTopN
	}
	return q
}

type Client struct {
	api     *upstream.Client
	baseURL string
}

func NewClient(api *upstream.Client, baseURL string) *Client {
	return &Client{api: api, baseURL: strings.TrimRight(baseURL, "/")}
}

// Leaderboard returns the raw leaderboard JSON.
func (c *Client) Leaderboard(ctx context.Context, q Query) (json.RawMessage, error) {
	q = q.withDefaults()
	params := url.Values{
		"duration":             {q.Duration},
		"topic_id":             {q.TopicID},
		"top_n":                {q.TopN},
		"customized_community": {"customized"},
		"community_yaps":       {"true"},
	}
	var raw json.RawMessage
	err := c.api.JSON(ctx, upstream.Request{
		Method:     http.MethodGet,
		URL:        c.baseURL + leaderboardPath + "?" + params.Encode(),
		Idempotent: true,
	}, &raw)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

type Handler struct {
	client *Client
	logger *zap.Logger
}

func NewHandler(client *Client, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{client: client, logger: logger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	rg.GET("/kaito/yaps", authMW, h.yaps)
}

func (h *Handler) yaps(c *gin.Context) {
	data, err := h.client.Leaderboard(c.Request.Context(), Query{
		Duration: c.Query("duration"),
		TopicID:  c.Query("topic_id"),
		TopN:     c.Query("top_n"),
	})
	if err != nil {
		h.logger.Warn("kaito leaderboard failed", zap.Error(err))
		response.InternalErrorWithMessage(c, "Failed to fetch yapping history")
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}
