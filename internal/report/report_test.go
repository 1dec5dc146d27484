package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uat978/internal/message"
	"uat978/internal/track"
)

func TestBuildSnapshotSortsByAddress(t *testing.T) {
	now := time.Now()
	aircraft := []track.AircraftState{
		{Address: 0x000002, LastSeen: now},
		{Address: 0x000001, LastSeen: now},
	}
	snap := BuildSnapshot(aircraft, now)
	require.Len(t, snap.Aircraft, 2)
	assert.Equal(t, "000001", snap.Aircraft[0].Address)
	assert.Equal(t, "000002", snap.Aircraft[1].Address)
}

func TestBuildSnapshotOmitsUnsetFields(t *testing.T) {
	now := time.Now()
	ac := track.AircraftState{Address: 0x1, LastSeen: now}
	snap := BuildSnapshot([]track.AircraftState{ac}, now)

	data, err := json.Marshal(snap.Aircraft[0])
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"lat"`)
	assert.NotContains(t, string(data), `"callsign"`)
}

func TestHistoryWriterWritesLatestAndPrunes(t *testing.T) {
	dir := t.TempDir()
	w, err := NewHistoryWriter(dir, 2, nil)
	require.NoError(t, err)

	now := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, w.Write(BuildSnapshot(nil, now)))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var histFiles int
	var sawLatest bool
	for _, e := range entries {
		if e.Name() == "latest.json" {
			sawLatest = true
			continue
		}
		histFiles++
	}
	assert.True(t, sawLatest)
	assert.LessOrEqual(t, histFiles, 2)

	latestData, err := os.ReadFile(filepath.Join(dir, "latest.json"))
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(latestData, &snap))
}

func TestTSVReporterWritesVersionHeaderOnce(t *testing.T) {
	var buf bytes.Buffer
	r := NewTSVReporter(&buf)
	r.Start()
	r.Start()
	assert.Equal(t, 1, strings.Count(buf.String(), "tsv_version"))
}

func TestTSVReporterEmitsLineForNewPositionUpdate(t *testing.T) {
	var buf bytes.Buffer
	r := NewTSVReporter(&buf)

	now := time.Now()
	ac := track.AircraftState{Address: 0xABCDEF, AddressQualifier: message.AdsbICAO}
	ac.Position.Set(message.Position{Lat: 40.0, Lon: -74.0}, now)
	ac.PressureAltitude.Set(15000, now)

	r.Report([]track.AircraftState{ac}, now)
	out := buf.String()
	assert.Contains(t, out, "ABCDEF")
	assert.Contains(t, out, "position")
}

func TestTSVReporterDropsStateForGoneAircraft(t *testing.T) {
	var buf bytes.Buffer
	r := NewTSVReporter(&buf)
	now := time.Now()

	ac := track.AircraftState{Address: 1}
	ac.NIC.Set(5, now)
	r.Report([]track.AircraftState{ac}, now)
	assert.Len(t, r.reported, 1)

	r.Report(nil, now)
	assert.Len(t, r.reported, 0)
}

func TestTSVReporterRespectsMinAgeForUnchangedCruiseAircraft(t *testing.T) {
	var buf bytes.Buffer
	r := NewTSVReporter(&buf)
	now := time.Now()

	ac := track.AircraftState{Address: 2}
	ac.PressureAltitude.Set(35000, now)
	ac.Callsign.Set("TEST1", now)

	r.Report([]track.AircraftState{ac}, now)
	buf.Reset()

	// Immediately re-report with no changes; should suppress output
	// since min age for cruise-altitude unchanged traffic is 30s.
	r.Report([]track.AircraftState{ac}, now.Add(time.Second))
	assert.Empty(t, buf.String())
}
