package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	sfymodels "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Models"
)

const lastContactLayout = "2006-01-02 15:04:05 UTC"

func sourceIcon(src sfymodels.PositionSource) string {
	switch src {
	case sfymodels.PositionGPS:
		return "🛰"
	case sfymodels.PositionHub:
		return "📡"
	}
	return "-"
}

func coordinate(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 5, 64)
}

func lastContact(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(lastContactLayout)
}

// writeTable prints one row per buoy in the order given
func writeTable(w io.Writer, views []sfymodels.BuoyView) error {
	writer := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	fmt.Fprintln(writer, "DEVICE\tLAT\tLON\tSOURCE\tLAST CONTACT\tSTATUS")
	for _, v := range views {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n",
			v.Dev,
			coordinate(v.Latitude),
			coordinate(v.Longitude),
			sourceIcon(v.PositionSource),
			lastContact(v.LastContact),
			v.Status,
		)
	}
	return writer.Flush()
}

type fleetOutput struct {
	RunID    string                    `json:"run_id"`
	State    sfymodels.RunState        `json:"state"`
	Error    string                    `json:"error,omitempty"`
	Buoys    []sfymodels.BuoyView      `json:"buoys"`
	Failures []sfymodels.DeviceFailure `json:"failures,omitempty"`
}

func writeJSON(w io.Writer, snap *sfymodels.Snapshot) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(fleetOutput{
		RunID:    snap.RunID,
		State:    snap.State,
		Error:    snap.Error,
		Buoys:    snap.Views(),
		Failures: snap.Failures,
	})
}
