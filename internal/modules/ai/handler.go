package ai

import (
	"github.com/gin-gonic/gin"
	"github.com/yapper-space/core/internal/autocomment"
	"github.com/yapper-space/core/internal/middleware"
	"github.com/yapper-space/core/internal/models"
	"github.com/yapper-space/core/internal/pkg/response"
	"github.com/yapper-space/core/internal/session"
)

type generateCommentDTO struct {
	Tweet string `json:"tweet"`
	Tone  string `json:"tone"`
}

type Handler struct {
	svc      *Service
	sessions *session.Manager
}

func NewHandler(svc *Service, sessions *session.Manager) *Handler {
	return &Handler{svc: svc, sessions: sessions}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	rg.POST("/ai/generate-comment", authMW, h.generateComment)
}

func (h *Handler) generateComment(c *gin.Context) {
	var dto generateCommentDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}
	tone, err := autocomment.ParseTone(dto.Tone)
	if err != nil {
		response.Error(c, err)
		return
	}
	if dto.Tweet == "" {
		response.Error(c, ErrMissingTweet)
		return
	}

	h.sessions.LogActivity(c.Request.Context(), middleware.CurrentUserID(c),
		models.ActivityGenerateComment, "User generated AI comment", middleware.RequestMeta(c),
		map[string]interface{}{"method": "ai_generate_comment", "tone": string(tone)})

	comment, err := h.svc.GenerateComment(c.Request.Context(), dto.Tweet, tone)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"comment": comment, "tone": tone})
}
