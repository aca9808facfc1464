package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Validation("bad"), http.StatusBadRequest},
		{"auth", Auth("nope"), http.StatusUnauthorized},
		{"conflict", Conflict("dup"), http.StatusConflict},
		{"not found", NotFound("gone"), http.StatusNotFound},
		{"timeout", Timeout("slow", nil), http.StatusGatewayTimeout},
		{"upstream passthrough", Upstream(http.StatusTooManyRequests, "limited", nil), http.StatusTooManyRequests},
		{"upstream without status", Upstream(0, "down", errors.New("dial")), http.StatusBadGateway},
		{"wrapped", fmt.Errorf("ctx: %w", Auth("nope")), http.StatusUnauthorized},
		{"misconfigured", Misconfigured("no key"), http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestPublicMessageHidesInternalDetail(t *testing.T) {
	assert.Equal(t, "Internal server error", PublicMessage(errors.New("dsn user:pass@tcp")))
	assert.Equal(t, "Internal server error", PublicMessage(Internal(errors.New("secret"))))
	assert.Equal(t, "Invalid email format", PublicMessage(Validation("Invalid email format")))
	assert.Equal(t, "Twitter Bearer Token not configured", PublicMessage(Misconfigured("Twitter Bearer Token not configured")))
}

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("wrap: %w", Timeout("slow", errors.New("deadline")))
	assert.True(t, Is(err, KindTimeout))
	assert.False(t, Is(err, KindUpstream))
	assert.False(t, Is(nil, KindInternal))
	assert.Equal(t, KindInternal, KindOf(errors.New("x")))
}
