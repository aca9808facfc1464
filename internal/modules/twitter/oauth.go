package twitter

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yapper-space/core/internal/models"
	"github.com/yapper-space/core/internal/pkg/apperr"
	jwtpkg "github.com/yapper-space/core/internal/pkg/jwt"
	"github.com/yapper-space/core/internal/pkg/response"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	stateTTL         = 10 * time.Minute
	defaultCookieAge = 2 * time.Hour

	CookieToken = "twitter_token"
	CookieName  = "twitter_name"
)

var scopes = []string{"tweet.read", "tweet.write", "users.read", "offline.access"}

// OAuthConfig holds the app credentials for the authorization code flow.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	FrontendURL  string
}

// OAuth runs the PKCE authorization code flow. The verifier travels inside
// the signed state so no server-side storage is needed.
type OAuth struct {
	cfg         *oauth2.Config
	signer      *jwtpkg.Signer
	client      *Client
	accounts    AccountStore
	frontendURL string
	http        *http.Client
	logger      *zap.Logger
	now         func() time.Time
}

// NewOAuth wires the flow. accounts may be nil when no database is configured.
func NewOAuth(cfg OAuthConfig, signer *jwtpkg.Signer, client *Client, accounts AccountStore, httpClient *http.Client, logger *zap.Logger) *OAuth {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OAuth{
		cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		signer:      signer,
		client:      client,
		accounts:    accounts,
		frontendURL: strings.TrimRight(cfg.FrontendURL, "/"),
		http:        httpClient,
		logger:      logger,
		now:         time.Now,
	}
}

func (o *OAuth) RegisterRoutes(r gin.IRoutes) {
	r.GET("/oauth/twitter/authorize", o.authorize)
	r.GET("/oauth/twitter/callback", o.callback)
	r.POST("/oauth/twitter/callback", o.callback)
}

// AuthorizeURL returns the consent URL and the state it embeds.
func (o *OAuth) AuthorizeURL() (string, error) {
	verifier := oauth2.GenerateVerifier()
	state, err := o.signer.SignState(verifier, "", stateTTL)
	if err != nil {
		return "", err
	}
	return o.cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)), nil
}

func (o *OAuth) authorize(c *gin.Context) {
	if o.cfg.ClientID == "" {
		response.Error(c, apperr.Misconfigured("Twitter OAuth is not configured"))
		return
	}
	target, err := o.AuthorizeURL()
	if err != nil {
		response.Error(c, apperr.Internal(err))
		return
	}
	c.Redirect(http.StatusFound, target)
}

func (o *OAuth) callback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		code = c.PostForm("code")
	}
	if code == "" {
		response.BadRequest(c, "Missing code")
		return
	}
	state := c.Query("state")
	if state == "" {
		state = c.PostForm("state")
	}
	claims, err := o.signer.ParseState(state)
	if err != nil {
		o.logger.Debug("oauth state rejected", zap.Error(err))
		response.BadRequest(c, "Invalid or expired state")
		return
	}

	ctx := context.WithValue(c.Request.Context(), oauth2.HTTPClient, o.http)
	tok, err := o.cfg.Exchange(ctx, code, oauth2.VerifierOption(claims.Verifier))
	if err != nil {
		response.Error(c, exchangeError(err))
		return
	}

	user, err := o.client.Me(c.Request.Context(), tok.AccessToken)
	if err != nil {
		response.Error(c, err)
		return
	}

	if o.accounts != nil {
		acct := &models.TwitterAccount{
			TwitterID:       user.ID,
			Username:        user.Username,
			Name:            user.Name,
			ProfileImageURL: user.ProfileImageURL,
			AccessToken:     tok.AccessToken,
			RefreshToken:    tok.RefreshToken,
		}
		if !tok.Expiry.IsZero() {
			exp := tok.Expiry.UTC()
			acct.ExpiresAt = &exp
		}
		if err := o.accounts.UpsertAccount(c.Request.Context(), acct); err != nil {
			o.logger.Error("save twitter account failed", zap.String("twitter_id", user.ID), zap.Error(err))
			response.InternalError(c)
			return
		}
	}

	maxAge := int(defaultCookieAge.Seconds())
	if !tok.Expiry.IsZero() {
		if d := tok.Expiry.Sub(o.now()); d > 0 {
			maxAge = int(d.Seconds())
		}
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieToken, tok.AccessToken, maxAge, "/", "", c.Request.TLS != nil, true)
	c.SetCookie(CookieName, user.Username, maxAge, "/", "", c.Request.TLS != nil, false)

	if o.frontendURL != "" {
		c.Redirect(http.StatusFound, o.frontendURL+"/")
		return
	}
	response.OK(c, gin.H{
		"user": gin.H{"data": user},
		"token": gin.H{
			"access_token":  tok.AccessToken,
			"refresh_token": tok.RefreshToken,
			"token_type":    tok.TokenType,
			"expires_in":    maxAge,
			"scope":         tok.Extra("scope"),
		},
	})
}

func exchangeError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		msg := re.ErrorDescription
		if msg == "" {
			msg = "Failed to get Twitter access token"
		}
		status := http.StatusBadGateway
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return apperr.Upstream(status, msg, err)
	}
	return apperr.Upstream(http.StatusBadGateway, "Failed to get Twitter access token", err)
}
