package workspaces

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/adminory/adminory/internal/shared"
)

// HeaderWorkspaceID selects the active workspace for a request.
const HeaderWorkspaceID = "X-Workspace-ID"

// ContextMiddleware attaches the requested workspace id to the request
// context. Unparseable values are logged and ignored.
func ContextMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(HeaderWorkspaceID)
			if raw == "" {
				raw = r.URL.Query().Get("workspace_id")
			}
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			id, err := uuid.Parse(raw)
			if err != nil {
				logger.Warn("ignoring invalid workspace id", slog.String("value", raw))
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithWorkspaceID(r.Context(), id)))
		})
	}
}
