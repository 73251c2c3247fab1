package apperr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotFound(t *testing.T) {
	err := NotFound("project", "proj-1")
	assert.Equal(t, CodeNotFound, err.Code)
	assert.Equal(t, http.StatusNotFound, err.HTTPStatus)
	assert.Contains(t, err.Error(), "proj-1")
}

func TestBadRequest(t *testing.T) {
	err := BadRequest("missing field")
	assert.Equal(t, CodeBadRequest, err.Code)
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus)
}

func TestValidationError(t *testing.T) {
	err := ValidationError("path", "must not be empty")
	assert.Equal(t, CodeValidationError, err.Code)
	assert.Contains(t, err.Message, "path")
	assert.Contains(t, err.Message, "must not be empty")
}

func TestConflict(t *testing.T) {
	err := Conflict("already watching")
	assert.Equal(t, CodeConflict, err.Code)
	assert.Equal(t, http.StatusConflict, err.HTTPStatus)
}

func TestServiceUnavailable(t *testing.T) {
	err := ServiceUnavailable("sink")
	assert.Equal(t, CodeServiceUnavailable, err.Code)
	assert.Contains(t, err.Message, "sink")
}

func TestWrap_NilErrorReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
}

func TestWrap_PreservesAppErrorCodeAndStatus(t *testing.T) {
	original := NotFound("repo", "repo-1")
	wrapped := Wrap(original, "loading repo")

	assert.Equal(t, CodeNotFound, wrapped.Code)
	assert.Equal(t, http.StatusNotFound, wrapped.HTTPStatus)
	assert.Contains(t, wrapped.Message, "loading repo")
	assert.True(t, errors.Is(wrapped, wrapped))
}

func TestWrap_PlainErrorBecomesInternalError(t *testing.T) {
	wrapped := Wrap(errors.New("boom"), "saving state")

	assert.Equal(t, CodeInternalError, wrapped.Code)
	assert.Equal(t, http.StatusInternalServerError, wrapped.HTTPStatus)
	assert.ErrorIs(t, wrapped, wrapped.Err)
}

func TestAppError_UnwrapReturnsUnderlyingError(t *testing.T) {
	underlying := errors.New("disk full")
	wrapped := Wrap(underlying, "writing")

	assert.Equal(t, underlying, errors.Unwrap(wrapped))
}
