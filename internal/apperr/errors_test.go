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
		{"unauthorized", New(CodeUnauthorized, "Unauthorized"), http.StatusUnauthorized},
		{"not connected", New(CodeAccountNotConnected, "LinkedIn not connected"), http.StatusBadRequest},
		{"already published", New(CodeAlreadyPublished, "Post is already published"), http.StatusBadRequest},
		{"not found", New(CodeNotFound, "Post not found"), http.StatusNotFound},
		{"conflict", New(CodeConflict, "busy"), http.StatusConflict},
		{"provider", New(CodeProvider, "LinkedIn API error"), http.StatusInternalServerError},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
		{"wrapped with fmt", fmt.Errorf("outer: %w", New(CodeNotFound, "gone")), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestWrapKeepsCode(t *testing.T) {
	base := New(CodeNotFound, "Account not found")
	err := Wrap(base, "resolve account")

	assert.Equal(t, CodeNotFound, CodeOf(err))
	assert.Equal(t, "resolve account", MessageOf(err))
	assert.ErrorIs(t, err, base)
	assert.Nil(t, Wrap(nil, "nothing"))
}

func TestWrapWithCode(t *testing.T) {
	cause := errors.New("connection reset")
	err := WrapWithCode(cause, CodeDatabase, "Failed to update post")

	assert.Equal(t, CodeDatabase, CodeOf(err))
	assert.Equal(t, "Failed to update post: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)
}
