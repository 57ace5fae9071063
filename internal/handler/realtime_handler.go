package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-connect-api/internal/middleware"
	appErrors "github.com/noah-isme/tutor-connect-api/pkg/errors"
	"github.com/noah-isme/tutor-connect-api/pkg/response"
)

type sessionFeed interface {
	Serve(w http.ResponseWriter, r *http.Request, studentID string) error
}

// RealtimeHandler upgrades authenticated clients to the session update feed.
type RealtimeHandler struct {
	tokens middleware.TokenValidator
	feed   sessionFeed
	logger *zap.Logger
}

// NewRealtimeHandler constructs the handler.
func NewRealtimeHandler(tokens middleware.TokenValidator, feed sessionFeed, logger *zap.Logger) *RealtimeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RealtimeHandler{tokens: tokens, feed: feed, logger: logger}
}

// Sessions godoc
// @Summary Session update feed
// @Description WebSocket stream of session events for the authenticated student. Browsers pass the access token as a query parameter.
// @Tags Realtime
// @Param token query string true "Access token"
// @Success 101
// @Router /ws/sessions [get]
func (h *RealtimeHandler) Sessions(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		token = strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
	}
	if token == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		response.Error(c, err)
		return
	}

	// the upgrader has already answered the client when Serve fails
	if err := h.feed.Serve(c.Writer, c.Request, claims.UserID); err != nil {
		h.logger.Warn("realtime connection rejected", zap.String("user_id", claims.UserID), zap.Error(err))
	}
}
