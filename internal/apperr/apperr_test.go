package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validation("bad"), http.StatusBadRequest},
		{NotFound("missing"), http.StatusNotFound},
		{Forbidden("no"), http.StatusForbidden},
		{Conflict("dup"), http.StatusConflict},
		{ClientConflict("already responded"), http.StatusBadRequest},
		{Payment(nil, "bad signature"), http.StatusBadRequest},
		{&Error{Kind: KindPayment, Message: "gateway down", Status: http.StatusBadGateway}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", Forbidden("no")), http.StatusForbidden},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, HTTPStatus(c.err), c.err.Error())
	}
}

func TestIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("ctx: %w", Conflict("already responded"))
	assert.ErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrForbidden)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, "already responded", Message(err))
	assert.Equal(t, "Internal server error", Message(errors.New("x")))
}

func TestUnwrap(t *testing.T) {
	root := errors.New("timeout")
	err := Dependency(root, "matcher scan failed")
	assert.ErrorIs(t, err, root)
	assert.Contains(t, err.Error(), "timeout")
}
