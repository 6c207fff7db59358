package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/canvass/internal/domain"
)

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		fmt.Errorf("x: %w", domain.ErrValidation): http.StatusBadRequest,
		fmt.Errorf("x: %w", domain.ErrNotFound):   http.StatusNotFound,
		fmt.Errorf("x: %w", domain.ErrConflict):   http.StatusConflict,
		fmt.Errorf("x: %w", domain.ErrIntegrity):  http.StatusUnprocessableEntity,
		errors.New("boom"):                        http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, StatusFor(err), err.Error())
	}
}

func TestWriteErrorHidesInternalErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, nil, errors.New("password=hunter2"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")
}

func TestPage(t *testing.T) {
	limit, offset, err := Page(httptest.NewRequest(http.MethodGet, "/?limit=9999&offset=5", nil))
	require.NoError(t, err)
	assert.Equal(t, 500, limit)
	assert.Equal(t, 5, offset)

	limit, offset, err = Page(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, 50, limit)
	assert.Equal(t, 0, offset)

	_, _, err = Page(httptest.NewRequest(http.MethodGet, "/?limit=-1", nil))
	assert.ErrorIs(t, err, domain.ErrValidation)
}
