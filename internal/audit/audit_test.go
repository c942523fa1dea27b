package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adminory/adminory/internal/auth"
	"github.com/adminory/adminory/internal/rbac"
	"github.com/adminory/adminory/internal/shared"
)

type stubRepo struct {
	rows  []TimelineRow
	calls []Query
}

func (s *stubRepo) Timeline(_ context.Context, q Query) ([]TimelineRow, error) {
	s.calls = append(s.calls, q)
	rows := s.rows
	if q.Offset < len(rows) {
		rows = rows[q.Offset:]
	} else {
		rows = nil
	}
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return rows, nil
}

func sampleRows(n int) []TimelineRow {
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	rows := make([]TimelineRow, n)
	for i := range rows {
		rows[i] = TimelineRow{
			At:       base.Add(-time.Duration(i) * time.Hour),
			Actor:    "admin@example.com",
			Action:   "user.deactivated",
			Entity:   "user",
			EntityID: uuid.NewString(),
		}
	}
	return rows
}

func TestTimelinePaging(t *testing.T) {
	repo := &stubRepo{rows: sampleRows(3)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2)
	assert.True(t, result.Paging.HasNext)
	assert.Equal(t, 2, result.Paging.NextPage)
	assert.Equal(t, 3, repo.calls[0].Limit, "over-fetch one row")
	assert.Equal(t, 0, repo.calls[0].Offset)

	result, err = svc.Timeline(context.Background(), TimelineFilters{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 1)
	assert.False(t, result.Paging.HasNext)
	assert.Equal(t, 1, result.Paging.PrevPage)
	assert.Equal(t, 2, repo.calls[1].Offset)
}

func TestTimelineClampsPageSize(t *testing.T) {
	repo := &stubRepo{}
	result, err := NewService(repo).Timeline(context.Background(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, result.Paging.PageSize)
	assert.Equal(t, 1, result.Paging.Page)
	assert.NotNil(t, result.Rows)
}

func TestWriteCSV(t *testing.T) {
	rows := sampleRows(2)
	rows[0].Meta = json.RawMessage(`{"role":"admin"}`)
	body, err := WriteCSV(rows)
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(body))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, "2026-03-10T12:00:00Z", records[1][0])
	assert.Equal(t, []string{"timestamp", "actor", "action", "entity", "entity_id", "meta"}, records[0])
	assert.Equal(t, "admin@example.com", records[1][1])
	assert.Equal(t, `{"role":"admin"}`, records[1][5])
}

func newTestRouter(repo Repository, role auth.Role, now time.Time) http.Handler {
	h := NewHandler(nil, NewService(repo), rbac.Middleware{})
	h.now = func() time.Time { return now }
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			p := shared.Principal{ID: uuid.New(), Email: "ops@example.com", Role: string(role)}
			next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), p)))
		})
	})
	r.Route("/audit", h.MountRoutes)
	return r
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	res := httptest.NewRecorder()
	h.ServeHTTP(res, httptest.NewRequest(http.MethodGet, path, nil))
	return res
}

func TestHandlerDefaultsWindow(t *testing.T) {
	repo := &stubRepo{rows: sampleRows(1)}
	now := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)
	router := newTestRouter(repo, auth.RoleAdmin, now)

	res := get(router, "/audit/?actor=admin&action=user.deactivated")
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var result Result
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &result))
	assert.Len(t, result.Rows, 1)

	q := repo.calls[0]
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), q.Filters.From)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), q.Filters.To)
	assert.Equal(t, "admin", q.Filters.Actor)
	assert.Equal(t, "user.deactivated", q.Filters.Action)
}

func TestHandlerDefaultWindowEndsOnTo(t *testing.T) {
	repo := &stubRepo{}
	router := newTestRouter(repo, auth.RoleAdmin, time.Now())

	res := get(router, "/audit/?to=2026-03-10")
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	q := repo.calls[0]
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), q.Filters.From)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), q.Filters.To)
	assert.Equal(t, 7*24*time.Hour, q.Filters.To.Sub(q.Filters.From))
}

func TestHandlerPassesEntityFilters(t *testing.T) {
	repo := &stubRepo{}
	router := newTestRouter(repo, auth.RoleAdmin, time.Now())
	id := uuid.NewString()

	res := get(router, "/audit/?entity=user&entity_id="+id)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, "user", repo.calls[0].Filters.Entity)
	assert.Equal(t, id, repo.calls[0].Filters.EntityID)

	res = get(router, "/audit/export.csv?entity_id="+id)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, id, repo.calls[1].Filters.EntityID)
}

func TestHandlerRejectsBadFilters(t *testing.T) {
	router := newTestRouter(&stubRepo{}, auth.RoleAdmin, time.Now())
	for _, path := range []string{
		"/audit/?from=yesterday",
		"/audit/?from=2026-03-10&to=2026-03-01",
		"/audit/?from=2025-01-01&to=2026-03-01",
		"/audit/?page=0",
	} {
		res := get(router, path)
		assert.Equal(t, http.StatusBadRequest, res.Code, path)
	}
}

func TestHandlerRequiresAdmin(t *testing.T) {
	router := newTestRouter(&stubRepo{}, auth.RoleUser, time.Now())
	assert.Equal(t, http.StatusForbidden, get(router, "/audit/").Code)
}

func TestHandlerExportCSV(t *testing.T) {
	repo := &stubRepo{rows: sampleRows(2)}
	router := newTestRouter(repo, auth.RoleSuperAdmin, time.Now())

	res := get(router, "/audit/export.csv")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "text/csv; charset=utf-8", res.Header().Get("Content-Type"))
	assert.Equal(t, 3, strings.Count(res.Body.String(), "\n"))
	assert.True(t, strings.HasPrefix(res.Body.String(), "timestamp,actor,action,entity,entity_id,meta\n"))
	assert.Equal(t, MaxExportRows, repo.calls[0].Limit)
}
