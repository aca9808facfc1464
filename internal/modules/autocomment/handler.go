package autocomment

import (
	"github.com/gin-gonic/gin"
	engine "github.com/yapper-space/core/internal/autocomment"
	"github.com/yapper-space/core/internal/middleware"
	"github.com/yapper-space/core/internal/modules/twitter"
	"github.com/yapper-space/core/internal/pkg/pagination"
	"github.com/yapper-space/core/internal/pkg/response"
)

type settingsDTO struct {
	Tone         string `json:"tone"`
	DelaySeconds *int   `json:"delaySeconds"`
}

type createTaskDTO struct {
	Tweets   []engine.Tweet `json:"tweets"`
	Settings *settingsDTO   `json:"settings"`
}

type Handler struct {
	svc          *Service
	defaultDelay int
}

func NewHandler(svc *Service, defaultDelaySeconds int) *Handler {
	return &Handler{svc: svc, defaultDelay: defaultDelaySeconds}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/auto-comment/tasks", authMW)

	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.POST("/:id/cancel", h.cancel)
}

func (h *Handler) create(c *gin.Context) {
	token := twitter.UserToken(c)
	if token == "" {
		response.Error(c, twitter.ErrUserTokenMissing)
		return
	}
	var dto createTaskDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}
	if dto.Settings == nil {
		response.Error(c, engine.ErrMissingSettings)
		return
	}
	tone, err := engine.ParseTone(dto.Settings.Tone)
	if err != nil {
		response.Error(c, err)
		return
	}
	delay := h.defaultDelay
	if dto.Settings.DelaySeconds != nil {
		delay = *dto.Settings.DelaySeconds
	}

	task, estimate, err := h.svc.Start(c.Request.Context(), Batch{
		OwnerID:      middleware.CurrentUserID(c),
		TwitterToken: token,
		Tweets:       dto.Tweets,
		Settings:     engine.Settings{Tone: tone, DelaySeconds: delay},
		Meta:         middleware.RequestMeta(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{"task": task, "estimatedSeconds": int(estimate.Seconds())})
}

func (h *Handler) list(c *gin.Context) {
	tasks, meta, err := h.svc.List(c.Request.Context(), middleware.CurrentUserID(c), pagination.FromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"data": tasks, "pagination": meta})
}

func (h *Handler) get(c *gin.Context) {
	task, err := h.svc.Get(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, task)
}

func (h *Handler) cancel(c *gin.Context) {
	task, err := h.svc.Cancel(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, gin.H{"task": task, "cancelling": true})
}
