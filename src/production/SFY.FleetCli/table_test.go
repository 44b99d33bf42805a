package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sfymodels "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Models"
)

func fleetSnapshot() *sfymodels.Snapshot {
	lat, lon := 60.123456, 5.5
	return &sfymodels.Snapshot{
		RunID: "run-1",
		State: sfymodels.RunCompleted,
		Buoys: []sfymodels.Buoy{
			{
				Dev:             "dev1",
				Status:          sfymodels.StatusNoTelemetry,
				BaseLatitude:    &lat,
				BaseLongitude:   &lon,
				BaseLastContact: time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC),
			},
			{Dev: "dev2", Status: sfymodels.StatusUnreachable, Error: "hub unreachable"},
		},
		Failures: []sfymodels.DeviceFailure{{Dev: "dev2", Stage: sfymodels.StageDetail, Error: "hub unreachable"}},
	}
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeTable(&buf, fleetSnapshot().Views()))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "DEVICE"))

	assert.Contains(t, lines[1], "dev1")
	assert.Contains(t, lines[1], "60.12346")
	assert.Contains(t, lines[1], "5.50000")
	assert.Contains(t, lines[1], "📡")
	assert.Contains(t, lines[1], "2024-02-03 04:05:06 UTC")

	assert.Contains(t, lines[2], "dev2")
	assert.Contains(t, lines[2], "unreachable")
}

func TestSourceIcon(t *testing.T) {
	assert.Equal(t, "🛰", sourceIcon(sfymodels.PositionGPS))
	assert.Equal(t, "📡", sourceIcon(sfymodels.PositionHub))
	assert.Equal(t, "-", sourceIcon(""))
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, fleetSnapshot()))

	var out fleetOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "run-1", out.RunID)
	require.Len(t, out.Buoys, 2)
	assert.Equal(t, "dev1", out.Buoys[0].Dev)
	assert.Len(t, out.Failures, 1)
}

func TestRun_RequiresHubURL(t *testing.T) {
	t.Setenv("HUB_URL", "")
	err := run([]string{"--hub-url", ""})
	assert.EqualError(t, err, "HUB_URL is required")
}

func TestRun_RejectsArguments(t *testing.T) {
	err := run([]string{"extra"})
	assert.EqualError(t, err, "unexpected argument: extra")
}
