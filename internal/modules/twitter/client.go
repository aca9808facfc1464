package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/yapper-space/core/internal/pkg/apperr"
	"github.com/yapper-space/core/internal/pkg/upstream"
)

const (
	defaultAvatar = "https://images.pexels.com/photos/220453/pexels-photo-220453.jpeg?auto=compress&cs=tinysrgb&w=60&h=60&fit=crop"

	minResults     = 10
	maxResults     = 100
	defaultResults = 10
)

var (
	ErrBearerNotConfigured = apperr.Misconfigured("Twitter Bearer Token not configured")
	ErrMissingQuery        = apperr.Validation("Missing query parameter")
	ErrUserTokenMissing    = apperr.Auth("Twitter access token not found. Please login again.")
	ErrMissingReply        = apperr.Validation("Missing tweetId or comment")
	ErrMissingText         = apperr.Validation("Missing tweet content")
)

// Tweet is a search hit in the shape the extension renders.
type Tweet struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Handle    string `json:"handle"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Likes     int    `json:"likes"`
	Retweets  int    `json:"retweets"`
	Replies   int    `json:"replies"`
	Avatar    string `json:"avatar"`
	URL       string `json:"url"`
}

// User is the subset of a Twitter user object the service reads.
type User struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Username        string `json:"username"`
	ProfileImageURL string `json:"profile_image_url,omitempty"`
}

type searchResponse struct {
	Data []struct {
		ID            string `json:"id"`
		Text          string `json:"text"`
		AuthorID      string `json:"author_id"`
		CreatedAt     string `json:"created_at"`
		PublicMetrics *struct {
			LikeCount    int `json:"like_count"`
			RetweetCount int `json:"retweet_count"`
			ReplyCount   int `json:"reply_count"`
		} `json:"public_metrics"`
	} `json:"data"`
	Includes struct {
		Users []User `json:"users"`
	} `json:"includes"`
}

type apiError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Error  string `json:"error"`
}

type Client struct {
	api         *upstream.Client
	baseURL     string
	bearerToken string
}

func NewClient(api *upstream.Client, baseURL, bearerToken string) *Client {
	return &Client{
		api:         api,
		baseURL:     strings.TrimRight(baseURL, "/"),
		bearerToken: strings.TrimSpace(bearerToken),
	}
}

// ClampMaxResults keeps max_results inside what the recent search endpoint
// accepts. Zero means the default.
func ClampMaxResults(n int) int {
	switch {
	case n == 0:
		return defaultResults
	case n < minResults:
		return minResults
	case n > maxResults:
		return maxResults
	default:
		return n
	}
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": {"Bearer " + token}}
}

// SearchRecent runs a recent search with the app bearer token.
func (c *Client) SearchRecent(ctx context.Context, query string, max int) ([]Tweet, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrMissingQuery
	}
	if c.bearerToken == "" {
		return nil, ErrBearerNotConfigured
	}

	params := url.Values{
		"query":        {query},
		"max_results":  {strconv.Itoa(ClampMaxResults(max))},
		"tweet.fields": {"created_at,public_metrics,author_id"},
		"expansions":   {"author_id"},
		"user.fields":  {"name,username,profile_image_url"},
	}
	var resp searchResponse
	err := c.api.JSON(ctx, upstream.Request{
		Method:     http.MethodGet,
		URL:        c.baseURL + "/2/tweets/search/recent?" + params.Encode(),
		Header:     bearer(c.bearerToken),
		Idempotent: true,
	}, &resp)
	if err != nil {
		return nil, withTwitterMessage(err, "Failed to search tweets")
	}
	return mapSearch(&resp), nil
}

func mapSearch(resp *searchResponse) []Tweet {
	authors := make(map[string]User, len(resp.Includes.Users))
	for _, u := range resp.Includes.Users {
		authors[u.ID] = u
	}

	out := make([]Tweet, 0, len(resp.Data))
	for _, t := range resp.Data {
		author := authors[t.AuthorID]
		tw := Tweet{
			ID:        t.ID,
			Username:  "Unknown User",
			Handle:    "@unknown",
			Content:   t.Text,
			Timestamp: t.CreatedAt,
			Avatar:    defaultAvatar,
		}
		if author.Name != "" {
			tw.Username = author.Name
		}
		if author.Username != "" {
			tw.Handle = "@" + author.Username
			tw.URL = fmt.Sprintf("https://twitter.com/%s/status/%s", author.Username, t.ID)
		}
		if author.ProfileImageURL != "" {
			tw.Avatar = author.ProfileImageURL
		}
		if m := t.PublicMetrics; m != nil {
			tw.Likes, tw.Retweets, tw.Replies = m.LikeCount, m.RetweetCount, m.ReplyCount
		}
		out = append(out, tw)
	}
	return out
}

// PostComment replies to tweetID as the owner of userToken. Never retried.
func (c *Client) PostComment(ctx context.Context, userToken, tweetID, comment string) (json.RawMessage, error) {
	if userToken == "" {
		return nil, ErrUserTokenMissing
	}
	if strings.TrimSpace(tweetID) == "" || strings.TrimSpace(comment) == "" {
		return nil, ErrMissingReply
	}
	body := map[string]interface{}{
		"text":  comment,
		"reply": map[string]string{"in_reply_to_tweet_id": tweetID},
	}
	return c.postTweet(ctx, userToken, body, "Failed to post comment")
}

// PostTweet publishes text as the owner of userToken. Never retried.
func (c *Client) PostTweet(ctx context.Context, userToken, text string) (json.RawMessage, error) {
	if userToken == "" {
		return nil, ErrUserTokenMissing
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrMissingText
	}
	return c.postTweet(ctx, userToken, map[string]interface{}{"text": text}, "Failed to post tweet")
}

func (c *Client) postTweet(ctx context.Context, userToken string, body interface{}, fallback string) (json.RawMessage, error) {
	resp, err := c.api.Do(ctx, upstream.Request{
		Method: http.MethodPost,
		URL:    c.baseURL + "/2/tweets",
		Header: bearer(userToken),
		JSON:   body,
	})
	if err != nil {
		return nil, withTwitterMessage(err, fallback)
	}
	if !json.Valid(resp.Body) {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(resp.Body), nil
}

// Me returns the user owning userToken.
func (c *Client) Me(ctx context.Context, userToken string) (*User, error) {
	if userToken == "" {
		return nil, ErrUserTokenMissing
	}
	var resp struct {
		Data *User `json:"data"`
	}
	err := c.api.JSON(ctx, upstream.Request{
		Method:     http.MethodGet,
		URL:        c.baseURL + "/2/users/me?user.fields=profile_image_url",
		Header:     bearer(userToken),
		Idempotent: true,
	}, &resp)
	if err != nil {
		return nil, withTwitterMessage(err, "Failed to fetch Twitter user")
	}
	if resp.Data == nil || resp.Data.ID == "" {
		return nil, apperr.Upstream(http.StatusBadGateway, "Twitter returned no user", nil)
	}
	return resp.Data, nil
}

// withTwitterMessage replaces the generic upstream message with the title or
// error Twitter sent, keeping the upstream status.
func withTwitterMessage(err error, fallback string) error {
	var ae *apperr.Error
	var se *upstream.StatusError
	if !errors.As(err, &ae) || ae.Kind != apperr.KindUpstream || !errors.As(err, &se) {
		return err
	}
	msg := fallback
	var body apiError
	if json.Unmarshal(se.Body, &body) == nil {
		switch {
		case body.Error != "":
			msg = body.Error
		case body.Title != "":
			msg = body.Title
		}
	}
	return apperr.Upstream(se.Status, msg, err)
}
