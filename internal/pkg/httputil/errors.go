package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/subtrack/subtrack/internal/pkg/ctxlog"
)

// ErrorMapping maps a sentinel error to a response. An empty Message sends
// err.Error().
type ErrorMapping struct {
	Error   error
	Status  int
	Message string
}

// StatusClientClosedRequest is written when the caller went away before the
// handler finished.
const StatusClientClosedRequest = 499

// HandleError writes the first mapping matching err. Unmapped timeouts and
// cancellations get 504 and 499; anything else is logged and becomes 500.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	for _, m := range mappings {
		if errors.Is(err, m.Error) {
			msg := m.Message
			if msg == "" {
				msg = err.Error()
			}
			Error(w, m.Status, msg)
			return
		}
	}

	logger := ctxlog.FromContext(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		logger.Info("request cancelled", "error", err)
		Error(w, StatusClientClosedRequest, "request cancelled")
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("request timed out", "error", err)
		Error(w, http.StatusGatewayTimeout, "request timed out")
	default:
		logger.Error("internal error", "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
