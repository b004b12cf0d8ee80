package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"nirsvault/internal/apperr"
	"nirsvault/internal/dashboard"
	"nirsvault/internal/service"
)

// Problem types.
const (
	TypeInvalidParams = "/errors/invalid-params"
	TypeNotFound      = "/errors/not-found"
	TypeJobRunning    = "/errors/job/already-running"
	TypeTimeout       = "/errors/timeout"
	TypeInternal      = "/errors/internal"
)

// Problem is an RFC 7807 error body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
}

// Render sets the response status.
func (p *Problem) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, p.Status)
	return nil
}

// problemFor maps an error to its problem.
func problemFor(err error, r *http.Request) *Problem {
	p := &Problem{Instance: r.URL.Path, TraceID: middleware.GetReqID(r.Context()), Detail: err.Error()}
	switch {
	case errors.Is(err, dashboard.ErrInvalidParams):
		p.Type, p.Title, p.Status = TypeInvalidParams, "Invalid Parameters", http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		p.Type, p.Title, p.Status = TypeNotFound, "Resource Not Found", http.StatusNotFound
	case errors.Is(err, service.ErrAlreadyRunning):
		p.Type, p.Title, p.Status = TypeJobRunning, "Job Already Running", http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		p.Type, p.Title, p.Status = TypeTimeout, "Timeout", http.StatusGatewayTimeout
	default:
		p.Type, p.Title, p.Status = TypeInternal, "Internal Server Error", http.StatusInternalServerError
	}
	return p
}
