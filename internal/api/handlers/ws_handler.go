package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"bazaar/leadhub/internal/api/middleware"
	"bazaar/leadhub/internal/apperr"
	"bazaar/leadhub/internal/auth"
	"bazaar/leadhub/internal/utils"
)

// EventStreamer upgrades a request into a per-user event stream.
type EventStreamer interface {
	Serve(w http.ResponseWriter, r *http.Request, userID utils.SixID)
}

// WebsocketHandler authenticates from the query string, since browsers cannot
// set headers on a websocket handshake.
type WebsocketHandler struct {
	streamer  EventStreamer
	users     middleware.UserFinder
	jwtSecret string
}

func NewWebsocketHandler(streamer EventStreamer, users middleware.UserFinder, jwtSecret string) *WebsocketHandler {
	return &WebsocketHandler{streamer: streamer, users: users, jwtSecret: jwtSecret}
}

// Connect handles GET /v1/ws?token=
func (h *WebsocketHandler) Connect(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token, _ = middleware.BearerToken(c.GetHeader("Authorization"))
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized", "message": "token is required"})
		return
	}

	claims, err := auth.ValidateJWT(token, h.jwtSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized", "message": "Invalid or expired token"})
		return
	}
	userID, err := claims.ID()
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized", "message": "Invalid token subject"})
		return
	}

	user, err := h.users.FindUser(c.Request.Context(), userID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		respondError(c, err)
		return
	}
	if user == nil || !user.Active {
		respondError(c, apperr.Forbidden("User not found or inactive"))
		return
	}

	log.Printf("WS: user %s connected", userID)
	h.streamer.Serve(c.Writer, c.Request, userID)
}
