package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"bazaar/leadhub/internal/api/handlers"
	"bazaar/leadhub/internal/apperr"
	"bazaar/leadhub/internal/auth"
	"bazaar/leadhub/internal/models"
)

func TestWebsocketHandler_Connect(t *testing.T) {
	gin.SetMode(gin.TestMode)
	const secret = "ws-secret"

	active := testUser(models.RoleVendor)
	inactive := testUser(models.RoleIndividual)
	inactive.Active = false
	gone := testUser(models.RoleIndividual)

	users := new(MockUsers)
	users.On("FindUser", mock.Anything, active.ID).Return(active, nil)
	users.On("FindUser", mock.Anything, inactive.ID).Return(inactive, nil)
	users.On("FindUser", mock.Anything, gone.ID).Return(nil, apperr.NotFound("user not found"))
	streamer := new(MockStreamer)
	streamer.On("Serve", active.ID).Return()

	r := gin.New()
	r.GET("/v1/ws", handlers.NewWebsocketHandler(streamer, users, secret).Connect)

	get := func(query string) int {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/v1/ws"+query, nil)
		r.ServeHTTP(w, req)
		return w.Code
	}
	token := func(u *models.User) string {
		tok, err := auth.GenerateJWT(u.ID, u.Role, secret, time.Hour)
		require.NoError(t, err)
		return tok
	}

	assert.Equal(t, http.StatusUnauthorized, get(""))
	assert.Equal(t, http.StatusUnauthorized, get("?token=garbage"))
	assert.Equal(t, http.StatusForbidden, get("?token="+token(inactive)))
	assert.Equal(t, http.StatusForbidden, get("?token="+token(gone)))
	assert.Equal(t, http.StatusOK, get("?token="+token(active)))

	streamer.AssertNumberOfCalls(t, "Serve", 1)
}
