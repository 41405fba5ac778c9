package http

import (
	"context"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/campus-carbon/carbon-portal/internal/cloud"
	"github.com/campus-carbon/carbon-portal/internal/database"
	"github.com/campus-carbon/carbon-portal/internal/domain"
	"github.com/campus-carbon/carbon-portal/internal/service"
)

const (
	testSecret = "cron-secret"
	testAdmin  = "admin-secret"
)

type httpRequest = nethttp.Request

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

type stubTelemetry struct {
	buildings []domain.BuildingReading
	err       error
}

func (s *stubTelemetry) FetchBuildings(context.Context, int, int) ([]domain.BuildingReading, error) {
	return s.buildings, s.err
}

func (s *stubTelemetry) BreakerState() string { return "closed" }

type stubReports struct{}

func (stubReports) ListReports(_ context.Context, prefix string) ([]cloud.ArchivedReport, error) {
	return []cloud.ArchivedReport{{Key: prefix + "daily/2026-03-17.json", URL: "https://example.invalid/r"}}, nil
}

func newTestApp(t *testing.T, tel *stubTelemetry) (*fiber.App, *service.Services) {
	t.Helper()
	db, err := database.Connect(database.DriverSQLite, filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svcs := service.New(db, service.Options{Telemetry: tel, Location: time.UTC})
	t.Cleanup(svcs.Supervisor.Stop)

	app := NewApp()
	Register(app, svcs, Options{CollectorSecret: testSecret, AdminToken: testAdmin, Reports: stubReports{}})
	return app, svcs
}

func do(t *testing.T, app *fiber.App, method, path, body string, mutate ...func(*testing.T, *httpRequest)) (int, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, m := range mutate {
		m(t, req)
	}
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func bearer(token string) func(*testing.T, *httpRequest) {
	return func(_ *testing.T, r *httpRequest) { r.Header.Set("Authorization", "Bearer "+token) }
}

func adminCookieFor(token string) func(*testing.T, *httpRequest) {
	return func(_ *testing.T, r *httpRequest) { r.Header.Set("Cookie", adminCookie+"="+token) }
}

func TestHealth(t *testing.T) {
	app, _ := newTestApp(t, &stubTelemetry{})
	req := httptest.NewRequest(fiber.MethodGet, "/health", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestCollect_RequiresBearer(t *testing.T) {
	app, _ := newTestApp(t, &stubTelemetry{})

	code, _ := do(t, app, fiber.MethodPost, "/api/collect", "")
	require.Equal(t, fiber.StatusUnauthorized, code)

	code, _ = do(t, app, fiber.MethodPost, "/api/collect", "", bearer("wrong"))
	require.Equal(t, fiber.StatusUnauthorized, code)
}

func TestCollect_CreatedThenUpdated(t *testing.T) {
	tel := &stubTelemetry{buildings: []domain.BuildingReading{{Name: "공학관", Electricity: 5000, Gas: 1000, Water: 100}}}
	app, svcs := newTestApp(t, tel)

	code, body := do(t, app, fiber.MethodPost, "/api/collect", "", bearer(testSecret))
	require.Equal(t, fiber.StatusOK, code)
	require.Equal(t, true, body["success"])
	first := body["result"].(map[string]any)["results"].([]any)[0].(map[string]any)
	require.Equal(t, "created", first["action"])

	tel.buildings[0].Electricity = 5100
	code, body = do(t, app, fiber.MethodPost, "/api/collect", "", bearer(testSecret))
	require.Equal(t, fiber.StatusOK, code)
	second := body["result"].(map[string]any)["results"].([]any)[0].(map[string]any)
	require.Equal(t, "updated", second["action"])
	require.Equal(t, first["id"], second["id"])

	n, err := svcs.Repos.CountEnergy(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	code, body = do(t, app, fiber.MethodGet, "/api/collect", "", bearer(testSecret))
	require.Equal(t, fiber.StatusOK, code)
	require.NotNil(t, body["last_success"])
	require.Len(t, body["recent_logs"], 2)
	require.Contains(t, body, "scheduler")
	require.Equal(t, "closed", body["breaker"])
}

func TestCollect_UpstreamFailure(t *testing.T) {
	app, _ := newTestApp(t, &stubTelemetry{err: errors.New("API error 502")})

	code, body := do(t, app, fiber.MethodPost, "/api/collect", "", bearer(testSecret))
	require.Equal(t, fiber.StatusInternalServerError, code)
	require.Equal(t, false, body["success"])
	require.Contains(t, body["error"], "API error 502")
}

func TestScheduler_Actions(t *testing.T) {
	app, _ := newTestApp(t, &stubTelemetry{buildings: []domain.BuildingReading{{Name: "도서관"}}})

	code, body := do(t, app, fiber.MethodPost, "/api/scheduler", `{"action":"start"}`, bearer(testSecret))
	require.Equal(t, fiber.StatusOK, code)
	require.Equal(t, true, body["status"].(map[string]any)["running"])
	require.Len(t, body["status"].(map[string]any)["jobs"], 3)

	code, body = do(t, app, fiber.MethodPost, "/api/scheduler", `{"action":"stop"}`, bearer(testSecret))
	require.Equal(t, fiber.StatusOK, code)
	require.Equal(t, false, body["status"].(map[string]any)["running"])

	code, _ = do(t, app, fiber.MethodPost, "/api/scheduler", `{"action":"pause"}`, bearer(testSecret))
	require.Equal(t, fiber.StatusBadRequest, code)

	code, body = do(t, app, fiber.MethodGet, "/api/scheduler", "", bearer(testSecret))
	require.Equal(t, fiber.StatusOK, code)
	require.Equal(t, "status", body["action"])
}

func TestAdminEnergy_CRUD(t *testing.T) {
	app, _ := newTestApp(t, &stubTelemetry{})
	auth := adminCookieFor(testAdmin)

	code, _ := do(t, app, fiber.MethodGet, "/api/admin/energy", "")
	require.Equal(t, fiber.StatusUnauthorized, code)

	code, body := do(t, app, fiber.MethodPost, "/api/admin/energy",
		`{"building_name":"공학관","year":2026,"month":3,"electricity":10,"gas":2,"water":1}`, auth)
	require.Equal(t, fiber.StatusOK, code)
	require.Equal(t, "created", body["action"])
	id := int64(body["data"].(map[string]any)["id"].(float64))

	code, body = do(t, app, fiber.MethodPost, "/api/admin/energy",
		`{"building_name":"공학관","year":2026,"month":3,"electricity":11,"gas":2,"water":1}`, auth)
	require.Equal(t, fiber.StatusOK, code)
	require.Equal(t, "updated", body["action"])

	code, body = do(t, app, fiber.MethodPut, "/api/admin/energy/"+itoa(id), `{"electricity":12,"gas":3,"water":4}`, auth)
	require.Equal(t, fiber.StatusOK, code)
	require.Equal(t, 12.0, body["data"].(map[string]any)["electricity"])

	code, body = do(t, app, fiber.MethodGet, "/api/admin/energy?year=2026&building="+url.QueryEscape("공학관"), "", auth)
	require.Equal(t, fiber.StatusOK, code)
	require.Len(t, body["data"], 1)

	code, _ = do(t, app, fiber.MethodPut, "/api/admin/energy/"+itoa(id), `{"electricity":-1}`, auth)
	require.Equal(t, fiber.StatusBadRequest, code)

	code, _ = do(t, app, fiber.MethodDelete, "/api/admin/energy/"+itoa(id), "", auth)
	require.Equal(t, fiber.StatusOK, code)

	code, _ = do(t, app, fiber.MethodDelete, "/api/admin/energy/"+itoa(id), "", auth)
	require.Equal(t, fiber.StatusNotFound, code)
}

func TestAdminEnergy_ValidationAndFailure(t *testing.T) {
	app, svcs := newTestApp(t, &stubTelemetry{})
	auth := adminCookieFor(testAdmin)

	code, _ := do(t, app, fiber.MethodPost, "/api/admin/energy", `{"building_name":"","year":2026,"month":3}`, auth)
	require.Equal(t, fiber.StatusBadRequest, code)

	require.NoError(t, svcs.Repos.DB().Close())
	code, body := do(t, app, fiber.MethodGet, "/api/admin/energy", "", auth)
	require.Equal(t, fiber.StatusInternalServerError, code)
	require.Equal(t, adminFailure, body["error"])
}

func TestAdminSolar_Upsert(t *testing.T) {
	app, _ := newTestApp(t, &stubTelemetry{})
	auth := adminCookieFor(testAdmin)

	code, body := do(t, app, fiber.MethodPost, "/api/admin/solar",
		`{"building_name":"도서관","year":2026,"month":5,"generation":320,"capacity":50}`, auth)
	require.Equal(t, fiber.StatusOK, code)
	id := int64(body["data"].(map[string]any)["id"].(float64))

	code, body = do(t, app, fiber.MethodPut, "/api/admin/solar/"+itoa(id), `{"generation":330,"capacity":50,"trade":5}`, auth)
	require.Equal(t, fiber.StatusOK, code)
	require.Equal(t, 5.0, body["data"].(map[string]any)["trade"])

	code, _ = do(t, app, fiber.MethodPut, "/api/admin/solar/999", `{"generation":1}`, auth)
	require.Equal(t, fiber.StatusNotFound, code)
}

func TestAdminReports(t *testing.T) {
	app, _ := newTestApp(t, &stubTelemetry{})
	code, body := do(t, app, fiber.MethodGet, "/api/admin/reports", "", adminCookieFor(testAdmin))
	require.Equal(t, fiber.StatusOK, code)
	require.Len(t, body["data"], 1)
}

func TestRealtimeInitial(t *testing.T) {
	app, svcs := newTestApp(t, &stubTelemetry{})
	_, err := svcs.Readings.SaveEnergy(context.Background(), &domain.EnergyReading{
		BuildingName: "공학관", Year: time.Now().UTC().Year(), Month: 1, Electricity: 1000, Gas: 500,
	})
	require.NoError(t, err)

	code, body := do(t, app, fiber.MethodGet, "/api/realtime/initial", "")
	require.Equal(t, fiber.StatusOK, code)
	require.Len(t, body["energy"], 1)
	require.Equal(t, 2.0, body["greenhouse"].(map[string]any)["emission_tons"])
	require.NotContains(t, body, "errors")
}

func TestRealtimeStream_Headers(t *testing.T) {
	app, svcs := newTestApp(t, &stubTelemetry{})
	// a closed hub ends the stream at once so the test client can finish reading
	svcs.Realtime.Close()

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/realtime", nil), 5000)
	require.NoError(t, err)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	require.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
