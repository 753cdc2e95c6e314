package httpapi

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/needle-ab/needle/internal/errs"
)

func TestErrorJSONMapsKnownErrorToItsStatus(t *testing.T) {
	b := newBase(nil)
	rec := httptest.NewRecorder()

	b.ErrorJSON(rec, nil, errs.NotFoundError("experiment missing"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "experiment missing")
}

func TestErrorJSONDefaultsUnknownErrorTo500(t *testing.T) {
	b := newBase(nil)
	rec := httptest.NewRecorder()

	b.ErrorJSON(rec, nil, errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_SERVER_ERROR")
}

func TestErrorJSONWritesBadRequestAsPlainText(t *testing.T) {
	b := newBase(nil)
	rec := httptest.NewRecorder()

	b.ErrorJSON(rec, nil, errs.BadRequest("user-id must be an integer"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "user-id must be an integer", rec.Body.String())
}

func TestSetCacheHeadersNoStoreForZeroMaxAge(t *testing.T) {
	rec := httptest.NewRecorder()
	SetCacheHeaders(rec, 0)
	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
}

func TestSetCacheHeadersPublicForPositiveMaxAge(t *testing.T) {
	rec := httptest.NewRecorder()
	SetCacheHeaders(rec, 60*time.Second)
	assert.Equal(t, "public, max-age=60", rec.Header().Get("Cache-Control"))
}
