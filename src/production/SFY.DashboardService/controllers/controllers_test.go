package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.DashboardService/discovery"
	logger "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Logger"
	sfymodels "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Models"
	implementation "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Repository/Implementation"
)

type stubFleet struct {
	snap       *sfymodels.Snapshot
	triggerErr error
	triggers   []string
}

func (f *stubFleet) Snapshot() *sfymodels.Snapshot { return f.snap }

func (f *stubFleet) Trigger(trigger string) (string, error) {
	if f.triggerErr != nil {
		return "", f.triggerErr
	}
	f.triggers = append(f.triggers, trigger)
	return "run-42", nil
}

type stubHealth struct{ ready bool }

func (h stubHealth) GetHealthStatus(context.Context) (map[string]interface{}, bool) {
	status := "ok"
	if !h.ready {
		status = "degraded"
	}
	return map[string]interface{}{"status": status}, h.ready
}

func init() {
	gin.SetMode(gin.TestMode)
}

func runningSnapshot() *sfymodels.Snapshot {
	contact := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	lat, lon := 60.1, 5.2
	return &sfymodels.Snapshot{
		RunID:     "run-1",
		State:     sfymodels.RunRunning,
		StartedAt: contact,
		UpdatedAt: contact,
		Buoys: []sfymodels.Buoy{
			{Dev: "d3", Status: sfymodels.StatusNoTelemetry, BaseLastContact: contact, BaseLatitude: &lat, BaseLongitude: &lon, Files: []string{"a.json"}},
			{Dev: "d2", Status: sfymodels.StatusUnreachable, Error: "hub unreachable"},
		},
	}
}

func newRouter(fleet FleetService, repo *implementation.MemoryRunRepository, ready bool) *gin.Engine {
	router := gin.New()
	log := logger.NewTestLogger()
	NewFleetController(fleet, repo, log).RegisterRoutes(router)
	NewHealthController(stubHealth{ready: ready}, log).RegisterRoutes(router)
	return router
}

func serve(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestListBuoys(t *testing.T) {
	router := newRouter(&stubFleet{snap: runningSnapshot()}, implementation.NewMemoryRunRepository(0), true)

	w := serve(router, http.MethodGet, "/buoys")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		RunID string               `json:"run_id"`
		State sfymodels.RunState   `json:"state"`
		Count int                  `json:"count"`
		Buoys []sfymodels.BuoyView `json:"buoys"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "run-1", body.RunID)
	assert.Equal(t, sfymodels.RunRunning, body.State)
	assert.Equal(t, 2, body.Count)
	require.Len(t, body.Buoys, 2)
	assert.Equal(t, "d3", body.Buoys[0].Dev)
	assert.Equal(t, sfymodels.PositionHub, body.Buoys[0].PositionSource)
	assert.Equal(t, sfymodels.StatusUnreachable, body.Buoys[1].Status)
	assert.Nil(t, body.Buoys[1].LastContact)
}

func TestListBuoys_IdleIsEmptyArray(t *testing.T) {
	idle := &sfymodels.Snapshot{State: sfymodels.RunIdle, Buoys: []sfymodels.Buoy{}}
	router := newRouter(&stubFleet{snap: idle}, implementation.NewMemoryRunRepository(0), true)

	w := serve(router, http.MethodGet, "/buoys")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"buoys":[]`)
	assert.Contains(t, w.Body.String(), `"state":"idle"`)
}

func TestGetBuoy(t *testing.T) {
	router := newRouter(&stubFleet{snap: runningSnapshot()}, implementation.NewMemoryRunRepository(0), true)

	w := serve(router, http.MethodGet, "/buoys/d3")
	require.Equal(t, http.StatusOK, w.Code)
	var view sfymodels.BuoyView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "d3", view.Dev)
	assert.Equal(t, 1, view.Files)

	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/buoys/missing").Code)
}

func TestTriggerDiscovery(t *testing.T) {
	fleet := &stubFleet{snap: runningSnapshot()}
	router := newRouter(fleet, implementation.NewMemoryRunRepository(0), true)

	w := serve(router, http.MethodPost, "/discovery")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"run_id":"run-42","state":"running"}`, w.Body.String())
	assert.Equal(t, []string{sfymodels.TriggerAPI}, fleet.triggers)
}

func TestTriggerDiscovery_Errors(t *testing.T) {
	stopped := newRouter(&stubFleet{triggerErr: discovery.ErrStopped}, implementation.NewMemoryRunRepository(0), true)
	assert.Equal(t, http.StatusServiceUnavailable, serve(stopped, http.MethodPost, "/discovery").Code)

	broken := newRouter(&stubFleet{triggerErr: errors.New("boom")}, implementation.NewMemoryRunRepository(0), true)
	assert.Equal(t, http.StatusInternalServerError, serve(broken, http.MethodPost, "/discovery").Code)
}

func TestGetDiscovery_OmitsBuoys(t *testing.T) {
	router := newRouter(&stubFleet{snap: runningSnapshot()}, implementation.NewMemoryRunRepository(0), true)

	w := serve(router, http.MethodGet, "/discovery")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	run := body["run"].(map[string]interface{})
	assert.Equal(t, "run-1", run["run_id"])
	assert.Equal(t, "running", run["state"])
	assert.NotContains(t, run, "buoys")
	assert.Equal(t, float64(2), body["count"])
}

func TestListRuns(t *testing.T) {
	repo := implementation.NewMemoryRunRepository(0)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.SaveRun(context.Background(), sfymodels.RunRecord{
			RunID:     id,
			State:     sfymodels.RunCompleted,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	router := newRouter(&stubFleet{snap: runningSnapshot()}, repo, true)

	w := serve(router, http.MethodGet, "/runs?limit=2")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Items []sfymodels.RunRecord `json:"items"`
		Count int                   `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "c", body.Items[0].RunID)
	assert.Equal(t, "b", body.Items[1].RunID)

	assert.Equal(t, http.StatusBadRequest, serve(router, http.MethodGet, "/runs?limit=abc").Code)
	assert.Equal(t, http.StatusBadRequest, serve(router, http.MethodGet, "/runs?limit=0").Code)
}

func TestHealthEndpoints(t *testing.T) {
	ready := newRouter(&stubFleet{snap: runningSnapshot()}, implementation.NewMemoryRunRepository(0), true)
	assert.Equal(t, http.StatusOK, serve(ready, http.MethodGet, "/health/live").Code)
	assert.Equal(t, http.StatusOK, serve(ready, http.MethodGet, "/health/ready").Code)

	degraded := newRouter(&stubFleet{snap: runningSnapshot()}, implementation.NewMemoryRunRepository(0), false)
	w := serve(degraded, http.MethodGet, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "degraded")
	assert.Equal(t, http.StatusOK, serve(degraded, http.MethodGet, "/health/live").Code)
}
