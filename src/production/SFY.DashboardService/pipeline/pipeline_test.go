package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	config "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Config"
	"gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.DashboardService/client"
	"gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.DashboardService/hubtest"
	logger "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Logger"
	sfymodels "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Models"
)

func collect(t *testing.T, p *Pipeline, ctx context.Context) ([]DeviceResult, int, error) {
	t.Helper()
	var results []DeviceResult
	n, err := p.Run(ctx, func(r DeviceResult) { results = append(results, r) })
	return results, n, err
}

func threeBuoyHub() *hubtest.FakeHub {
	return hubtest.New().
		AddDevice("d1", "1000-a_axl.qo.json").
		AddAxl("d1", "1000-a_axl.qo.json", 100).
		AddDevice("d2", "2000-a.json").
		AddDevice("d3", "3000-a_axl.qo.json", "3001-b_axl.qo.json").
		AddAxl("d3", "3001-b_axl.qo.json", 300)
}

func TestSelectTelemetryFile(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		want  string
		found bool
	}{
		{"last matching wins", []string{"a.json", "b.axl.qo.json", "c.axl.qo.json"}, "c.axl.qo.json", true},
		{"skips trailing non matching", []string{"b.axl.qo.json", "c.json"}, "b.axl.qo.json", true},
		{"no qualifying file", []string{"a.json"}, "", false},
		{"suffix must end the name", []string{"axl.qo.json.bak"}, "", false},
		{"empty", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := SelectTelemetryFile(tt.files)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRun_SequentialOrder(t *testing.T) {
	hub := threeBuoyHub()
	p := NewFromHub(hub, logger.NewTestLogger())

	var callsAtEmit [][]string
	n, err := p.Run(context.Background(), func(DeviceResult) {
		callsAtEmit = append(callsAtEmit, hub.Calls())
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Equal(t, []string{
		"list",
		"detail:d1",
		"content:d1/1000-a_axl.qo.json",
		"detail:d2",
		"detail:d3",
		"content:d3/3001-b_axl.qo.json",
	}, hub.Calls())
	assert.Equal(t, 1, hub.MaxInFlight())

	// Each device is emitted after its own chain and before the next detail call.
	require.Len(t, callsAtEmit, 3)
	assert.Equal(t, "content:d1/1000-a_axl.qo.json", last(callsAtEmit[0]))
	assert.Equal(t, "detail:d2", last(callsAtEmit[1]))
	assert.Equal(t, "content:d3/3001-b_axl.qo.json", last(callsAtEmit[2]))
}

func last(s []string) string { return s[len(s)-1] }

func TestRun_EnrichesAndPassesThrough(t *testing.T) {
	hub := threeBuoyHub()
	results, _, err := collect(t, NewFromHub(hub, logger.NewTestLogger()), context.Background())
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "d1", results[0].Buoy.Dev)
	assert.Equal(t, sfymodels.StatusOK, results[0].Buoy.Status)
	require.NotNil(t, results[0].Buoy.Package)
	assert.Equal(t, 100.0, results[0].Buoy.Package.Received)

	passThrough := results[1].Buoy
	assert.Nil(t, passThrough.Package)
	assert.Equal(t, sfymodels.StatusNoTelemetry, passThrough.Status)
	assert.Equal(t, []string{"2000-a.json"}, passThrough.Files)
	assert.False(t, results[1].Failed())

	assert.Equal(t, 300.0, results[2].Buoy.Package.Received)
	assert.Equal(t, []string{"3000-a_axl.qo.json", "3001-b_axl.qo.json"}, results[2].Buoy.Files)
}

func TestRun_DetailFailureIsIsolated(t *testing.T) {
	hub := threeBuoyHub()
	hub.DetailErrs["d2"] = client.ErrTransport

	results, n, err := collect(t, NewFromHub(hub, logger.NewTestLogger()), context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.Len(t, results, 3)
	assert.Equal(t, "d1", results[0].Buoy.Dev)
	assert.Equal(t, "d3", results[2].Buoy.Dev)

	failed := results[1]
	assert.True(t, failed.Failed())
	assert.Equal(t, sfymodels.StageDetail, failed.Stage)
	assert.ErrorIs(t, failed.Err, client.ErrTransport)
	assert.Equal(t, sfymodels.StatusUnreachable, failed.Buoy.Status)
	assert.Equal(t, "d2", failed.Buoy.Dev)
}

func TestRun_ContentFailureKeepsBaseRecord(t *testing.T) {
	hub := threeBuoyHub()
	hub.ContentErrs["d1"] = client.ErrNotFound

	results, _, err := collect(t, NewFromHub(hub, logger.NewTestLogger()), context.Background())
	require.NoError(t, err)

	r := results[0]
	assert.Equal(t, sfymodels.StageContent, r.Stage)
	assert.ErrorIs(t, r.Err, client.ErrNotFound)
	assert.Equal(t, sfymodels.StatusTelemetryError, r.Buoy.Status)
	assert.Equal(t, []string{"1000-a_axl.qo.json"}, r.Buoy.Files)
	assert.Nil(t, r.Buoy.Package)
	assert.Len(t, results, 3)
}

func TestRun_UndecodableContent(t *testing.T) {
	hub := hubtest.New().AddDevice("d1", "1-a_axl.qo.json")
	hub.Files["d1/1-a_axl.qo.json"] = "{broken"

	results, _, err := collect(t, NewFromHub(hub, logger.NewTestLogger()), context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, sfymodels.StatusTelemetryError, results[0].Buoy.Status)
	assert.Contains(t, results[0].Buoy.Error, "1-a_axl.qo.json")
}

func TestRun_DirectoryFailureIsFatal(t *testing.T) {
	hub := threeBuoyHub()
	hub.ListErr = client.ErrTransport

	results, n, err := collect(t, NewFromHub(hub, logger.NewTestLogger()), context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDirectoryFailed)
	assert.ErrorIs(t, err, client.ErrTransport)
	assert.Zero(t, n)
	assert.Empty(t, results)
	assert.Equal(t, []string{"list"}, hub.Calls())
}

func TestRun_CancelledMidRun(t *testing.T) {
	hub := threeBuoyHub()
	ctx, cancel := context.WithCancel(context.Background())
	hub.Block = func(ctx context.Context, dev string) error {
		if dev == "d2" {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	results, n, err := collect(t, NewFromHub(hub, logger.NewTestLogger()), ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, n)
	require.Len(t, results, 1)
	assert.Equal(t, "d1", results[0].Buoy.Dev)
	assert.NotContains(t, hub.Calls(), "detail:d3")
}

func TestRun_SkipsDuplicateDevices(t *testing.T) {
	hub := hubtest.New().AddDevice("d1", "a.json")
	hub.Devices = append(hub.Devices, "d1")

	results, n, err := collect(t, NewFromHub(hub, logger.NewTestLogger()), context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, results, 1)
	assert.Equal(t, []string{"list", "detail:d1"}, hub.Calls())
}

func TestRun_HubClientKeepsCallingAfterFailingDevices(t *testing.T) {
	var mu sync.Mutex
	hits := make(map[string]int)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits[r.URL.Path]++
		mu.Unlock()

		switch {
		case r.URL.Path == "/buoys":
			_, _ = w.Write([]byte(`["d1","d2","d3","d4","d5","d6"]`))
		case r.URL.Path == "/buoys/d6":
			_, _ = w.Write([]byte(`["1000-a_axl.qo.json"]`))
		case r.URL.Path == "/buoys/d6/1000-a_axl.qo.json":
			_, _ = fmt.Fprint(w, `{"device":"d6","file":"axl.qo","received":100,"body":{"lat":60.0,"lon":5.0}}`)
		case strings.HasPrefix(r.URL.Path, "/buoys/d"):
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	t.Setenv("HUB_URL", srv.URL)
	hub := client.NewHubClient(config.LoadHubConfig())
	p := NewFromHub(hub, logger.NewTestLogger())

	results, n, err := collect(t, p, context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	require.Len(t, results, 6)

	for _, r := range results[:5] {
		assert.ErrorIs(t, r.Err, client.ErrTransport)
		assert.NotErrorIs(t, r.Err, client.ErrCircuitOpen)
	}
	healthy := results[5]
	assert.False(t, healthy.Failed())
	assert.Equal(t, sfymodels.StatusOK, healthy.Buoy.Status)

	// A second run still reaches the hub.
	_, n, err = collect(t, p, context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, hits["/buoys"])
	assert.Equal(t, 2, hits["/buoys/d6"])
	assert.Equal(t, 2, hits["/buoys/d1"])
}
