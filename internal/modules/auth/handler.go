package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yapper-space/core/internal/middleware"
	"github.com/yapper-space/core/internal/pkg/response"
	"github.com/yapper-space/core/internal/session"
)

type loginDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
	Username string `json:"username"`
}

type loginResponse struct {
	Success        bool    `json:"success"`
	Token          string  `json:"token"`
	UserID         string  `json:"userId"`
	Email          string  `json:"email"`
	FullName       string  `json:"fullName"`
	Username       *string `json:"username"`
	Role           string  `json:"role"`
	ExpiresInHours int     `json:"expiresInHours"`
	Message        string  `json:"message"`
}

type Handler struct {
	sessions *session.Manager
}

func NewHandler(sessions *session.Manager) *Handler {
	return &Handler{sessions: sessions}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	a := rg.Group("/auth")

	postOnly(a, "/login", h.login)
	postOnly(a, "/logout", h.logout)
	postOnly(a, "/register", h.register)
	a.GET("/session", authMW, h.session)
}

// postOnly answers every other method with 405 so clients get the same
// envelope the extension expects instead of Gin's plain 404.
func postOnly(rg *gin.RouterGroup, path string, fn gin.HandlerFunc) {
	rg.POST(path, fn)
	rg.Match([]string{http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete}, path, func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})
}

func (h *Handler) login(c *gin.Context) {
	var dto loginDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}
	issued, err := h.sessions.Issue(c.Request.Context(), dto.Email, dto.Password, middleware.RequestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, loginResponse{
		Success:        true,
		Token:          issued.Token,
		UserID:         issued.User.ID,
		Email:          issued.User.Email,
		FullName:       issued.User.FullName,
		Username:       issued.User.Username,
		Role:           issued.User.Role,
		ExpiresInHours: int(h.sessions.TTL().Hours()),
		Message:        "Login successful",
	})
}

func (h *Handler) logout(c *gin.Context) {
	token, err := middleware.BearerToken(c.GetHeader("Authorization"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.sessions.Revoke(c.Request.Context(), token, middleware.RequestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"success": true, "message": "Logout successful"})
}

func (h *Handler) register(c *gin.Context) {
	var dto registerDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}
	user, err := h.sessions.Register(c.Request.Context(), session.RegisterInput{
		Email:    dto.Email,
		Password: dto.Password,
		FullName: dto.FullName,
		Username: dto.Username,
	}, middleware.RequestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{
		"success": true,
		"message": "User registered successfully",
		"userId":  user.ID,
	})
}

func (h *Handler) session(c *gin.Context) {
	id := middleware.CurrentIdentity(c)
	if id == nil {
		response.Unauthorized(c, "")
		return
	}
	response.OK(c, id)
}
