// Package report writes the tracker's aircraft snapshot to disk: a
// JSON file refreshed on an interval with a bounded rotating history
// (a fixed-count rotation-with-cleanup idiom, generalized from daily
// gzip log rotation to a fixed-count snapshot history), and a TSV
// line-per-aircraft report.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"uat978/internal/track"
)

// AircraftView is the JSON-serializable projection of track.AircraftState
// written to the snapshot file.
type AircraftView struct {
	Address          string   `json:"address"`
	AddressQualifier string   `json:"address_qualifier"`
	LastSeen         string   `json:"last_seen"`
	MessageCount     uint64   `json:"message_count"`
	Lat              *float64 `json:"lat,omitempty"`
	Lon              *float64 `json:"lon,omitempty"`
	PressureAltitude *int32   `json:"pressure_altitude,omitempty"`
	GeometricAltitude *int32  `json:"geometric_altitude,omitempty"`
	GroundSpeed      *float64 `json:"ground_speed,omitempty"`
	TrueTrack        *float64 `json:"true_track,omitempty"`
	Callsign         *string  `json:"callsign,omitempty"`
	Emergency        *int     `json:"emergency,omitempty"`
}

// Snapshot is the top-level JSON document.
type Snapshot struct {
	GeneratedAt string         `json:"generated_at"`
	Aircraft    []AircraftView `json:"aircraft"`
}

func toView(ac track.AircraftState) AircraftView {
	v := AircraftView{
		Address:          fmt.Sprintf("%06X", ac.Address),
		AddressQualifier: ac.AddressQualifier.String(),
		LastSeen:         ac.LastSeen.UTC().Format(time.RFC3339),
		MessageCount:     ac.MessageCount,
	}
	if ac.Position.Valid() {
		lat, lon := ac.Position.Value.Lat, ac.Position.Value.Lon
		v.Lat, v.Lon = &lat, &lon
	}
	if ac.PressureAltitude.Valid() {
		alt := ac.PressureAltitude.Value
		v.PressureAltitude = &alt
	}
	if ac.GeometricAltitude.Valid() {
		alt := ac.GeometricAltitude.Value
		v.GeometricAltitude = &alt
	}
	if ac.GroundSpeed.Valid() {
		gs := ac.GroundSpeed.Value
		v.GroundSpeed = &gs
	}
	if ac.TrueTrack.Valid() {
		tt := ac.TrueTrack.Value
		v.TrueTrack = &tt
	}
	if ac.Callsign.Valid() {
		cs := ac.Callsign.Value
		v.Callsign = &cs
	}
	if ac.Emergency.Valid() {
		e := ac.Emergency.Value
		v.Emergency = &e
	}
	return v
}

// BuildSnapshot projects a tracker snapshot into JSON view form, sorted
// by address for stable output.
func BuildSnapshot(aircraft []track.AircraftState, now time.Time) Snapshot {
	views := make([]AircraftView, len(aircraft))
	for i, ac := range aircraft {
		views[i] = toView(ac)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Address < views[j].Address })
	return Snapshot{GeneratedAt: now.UTC().Format(time.RFC3339), Aircraft: views}
}

// HistoryWriter periodically writes the current snapshot to a numbered
// file in dir, keeping at most maxCount of them (oldest deleted), plus
// a stable "latest.json" symlink-equivalent copy.
type HistoryWriter struct {
	dir      string
	maxCount int
	logger   *logrus.Logger

	mu    sync.Mutex
	seq   int
}

// NewHistoryWriter creates dir if needed and returns a HistoryWriter
// retaining at most maxCount snapshot files.
func NewHistoryWriter(dir string, maxCount int, logger *logrus.Logger) (*HistoryWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("report: create history dir: %w", err)
	}
	return &HistoryWriter{dir: dir, maxCount: maxCount, logger: logger}, nil
}

// Write serializes snap as JSON, writes it as both "latest.json" and a
// numbered history file, then deletes history files beyond maxCount.
func (h *HistoryWriter) Write(snap Snapshot) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("report: marshal snapshot: %w", err)
	}

	latest := filepath.Join(h.dir, "latest.json")
	if err := os.WriteFile(latest, data, 0o644); err != nil {
		return fmt.Errorf("report: write latest snapshot: %w", err)
	}

	h.seq++
	histName := filepath.Join(h.dir, fmt.Sprintf("snapshot-%08d.json", h.seq))
	if err := os.WriteFile(histName, data, 0o644); err != nil {
		return fmt.Errorf("report: write history snapshot: %w", err)
	}

	h.pruneLocked()
	return nil
}

func (h *HistoryWriter) pruneLocked() {
	if h.maxCount <= 0 {
		return
	}
	entries, err := os.ReadDir(h.dir)
	if err != nil {
		if h.logger != nil {
			h.logger.WithError(err).Warn("report: list history dir")
		}
		return
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && e.Name() != "latest.json" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	excess := len(names) - h.maxCount
	for i := 0; i < excess; i++ {
		path := filepath.Join(h.dir, names[i])
		if err := os.Remove(path); err != nil && h.logger != nil {
			h.logger.WithError(err).Warn("report: prune history snapshot")
		}
	}
}

// Run writes a fresh snapshot on every tick from snapshots until ctx
// is canceled.
func Run(ctx context.Context, interval time.Duration, snapshots func() Snapshot, w *HistoryWriter, logger *logrus.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Write(snapshots()); err != nil && logger != nil {
				logger.WithError(err).Warn("report: write snapshot")
			}
		}
	}
}
