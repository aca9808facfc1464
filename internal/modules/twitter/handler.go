package twitter

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yapper-space/core/internal/pkg/response"
)

// HeaderToken carries the user's Twitter access token on API calls.
const HeaderToken = "X-Twitter-Token"

// TweetGenerator drafts tweets for a request.
type TweetGenerator interface {
	GenerateTweets(ctx context.Context, request string) (string, error)
}

type postCommentDTO struct {
	TweetID string `json:"tweetId"`
	Comment string `json:"comment"`
}

type postTweetDTO struct {
	Tweet string `json:"tweet"`
}

type generateTweetDTO struct {
	Prompt string `json:"prompt"`
}

type Handler struct {
	client *Client
	gen    TweetGenerator
}

func NewHandler(client *Client, gen TweetGenerator) *Handler {
	return &Handler{client: client, gen: gen}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	tw := rg.Group("/twitter")

	tw.GET("/search", authMW, h.search)
	tw.POST("/post-comment", authMW, h.postComment)
	tw.POST("/post-tweet", authMW, h.postTweet)
	tw.POST("/generate-tweet", authMW, h.generateTweet)
	tw.GET("/me", h.me)
}

// UserToken reads the Twitter user token from the X-Twitter-Token header or
// the twitter_token cookie set by the OAuth callback.
func UserToken(c *gin.Context) string {
	if v := strings.TrimSpace(c.GetHeader(HeaderToken)); v != "" {
		return strings.TrimSpace(strings.TrimPrefix(v, "Bearer "))
	}
	if v, err := c.Cookie(CookieToken); err == nil {
		return strings.TrimSpace(v)
	}
	return ""
}

func (h *Handler) search(c *gin.Context) {
	max, _ := strconv.Atoi(c.Query("max_results"))
	tweets, err := h.client.SearchRecent(c.Request.Context(), c.Query("query"), max)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, tweets)
}

func (h *Handler) postComment(c *gin.Context) {
	token := UserToken(c)
	if token == "" {
		response.Error(c, ErrUserTokenMissing)
		return
	}
	var dto postCommentDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}
	data, err := h.client.PostComment(c.Request.Context(), token, dto.TweetID, dto.Comment)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"success": true, "data": data})
}

func (h *Handler) postTweet(c *gin.Context) {
	token := UserToken(c)
	if token == "" {
		response.Error(c, ErrUserTokenMissing)
		return
	}
	var dto postTweetDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}
	data, err := h.client.PostTweet(c.Request.Context(), token, dto.Tweet)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"success": true, "data": data})
}

func (h *Handler) generateTweet(c *gin.Context) {
	var dto generateTweetDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}
	text, err := h.gen.GenerateTweets(c.Request.Context(), dto.Prompt)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"tweet": text})
}

func (h *Handler) me(c *gin.Context) {
	user, err := h.client.Me(c.Request.Context(), UserToken(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"user": gin.H{"data": user}})
}
