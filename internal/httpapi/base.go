// Package httpapi exposes the AssignmentAPI, ReportAPI, and static index
// over HTTP, in the BaseHandler idiom: a thin struct embedding a logger
// and a handful of JSON/error-response helpers shared by every endpoint.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/needle-ab/needle/internal/errs"
)

// base provides the JSON and error-response helpers every handler in this
// package shares, in the shape of the teacher's http/handler.BaseHandler.
type base struct {
	logger *slog.Logger
}

func newBase(logger *slog.Logger) base {
	if logger == nil {
		logger = slog.Default()
	}
	return base{logger: logger}
}

func (b base) JSON(w http.ResponseWriter, data any, code int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	buf, err := json.Marshal(data)
	if err != nil {
		b.ErrorJSON(w, nil, err)
		return
	}
	w.WriteHeader(code)
	_, _ = w.Write(buf)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorJSON writes err as a JSON error body, mapping *errs.Error to its
// declared HTTP status and anything else to 500. Per §7, BadRequest is
// the one error kind that gets a plain-text body instead of JSON.
func (b base) ErrorJSON(w http.ResponseWriter, r *http.Request, err error) {
	var e *errs.Error
	code := http.StatusInternalServerError
	body := errorBody{Code: "INTERNAL_SERVER_ERROR", Message: "internal error"}

	if errors.As(err, &e) {
		code = e.HTTPStatus()
		body = errorBody{Code: e.Name, Message: e.Message}
	}

	if b.logger != nil {
		attrs := []any{slog.Int("code", code), slog.String("err", err.Error())}
		if r != nil {
			attrs = append(attrs, slog.String("method", r.Method), slog.String("path", r.URL.Path))
		}
		if code >= 500 {
			b.logger.Error("request failed", attrs...)
		} else {
			b.logger.Warn("request rejected", attrs...)
		}
	}

	if e != nil && e.Name == errs.NameBadRequest {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(code)
		_, _ = w.Write([]byte(e.Message))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	buf, _ := json.Marshal(body)
	_, _ = w.Write(buf)
}

// SetCacheHeaders mirrors response.SetCacheHeaders: public caching for
// positive maxAge, no-store otherwise.
func SetCacheHeaders(w http.ResponseWriter, maxAge time.Duration) {
	if maxAge > 0 {
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds())))
	} else {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	}
}
