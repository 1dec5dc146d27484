package report

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"uat978/internal/message"
	"uat978/internal/track"
)

const tsvVersion = "4U"

// tsvState is what TSVReporter remembers about the last line emitted
// for one aircraft, mirroring faup978_reporter.cc's `reported_` map.
type tsvState struct {
	reportTime     time.Time
	slowReportTime time.Time
	lastAltitude   *int32
	lastVVBaro     *int32
	lastVVGeo      *int32
	lastTrack      *float64
	lastHeading    *float64
	lastSpeed      *float64
}

// TSVReporter emits one tab-separated line per aircraft update,
// adapting its own update rate to altitude/speed/air-ground state the
// way faup978_reporter.cc does, so low-altitude or changing aircraft
// are reported more often than stable cruise traffic.
type TSVReporter struct {
	w        io.Writer
	reported map[uint32]*tsvState
	started  bool
}

// NewTSVReporter writes to w.
func NewTSVReporter(w io.Writer) *TSVReporter {
	return &TSVReporter{w: w, reported: make(map[uint32]*tsvState)}
}

// Start writes the tsv_version header line, once.
func (r *TSVReporter) Start() {
	if r.started {
		return
	}
	r.started = true
	fmt.Fprintf(r.w, "tsv_version\t%s\n", tsvVersion)
}

// Report considers every aircraft for a TSV line at time now, dropping
// state for aircraft no longer present.
func (r *TSVReporter) Report(aircraft []track.AircraftState, now time.Time) {
	seen := make(map[uint32]bool, len(aircraft))
	for _, ac := range aircraft {
		seen[ac.Address] = true
		r.reportOne(ac, now)
	}
	for addr := range r.reported {
		if !seen[addr] {
			delete(r.reported, addr)
		}
	}
}

func (r *TSVReporter) reportOne(ac track.AircraftState, now time.Time) {
	last, ok := r.reported[ac.Address]
	if !ok {
		last = &tsvState{}
		r.reported[ac.Address] = last
	}

	changed := fieldChangedBy(last.lastAltitude, ac.PressureAltitude, 50) ||
		fieldChangedBy(last.lastVVBaro, ac.VerticalVelocityBarometric, 500) ||
		fieldChangedBy(last.lastVVGeo, ac.VerticalVelocityGeometric, 500) ||
		floatChangedBy(last.lastTrack, ac.TrueTrack, 2) ||
		floatChangedBy(last.lastHeading, ac.MagneticHeading, 2) ||
		floatChangedBy(last.lastSpeed, ac.GroundSpeed, 25)

	immediate := updatedSince(ac.SelectedAltitudeMCP.ChangedAt, last.reportTime) ||
		updatedSince(ac.SelectedHeading.ChangedAt, last.reportTime) ||
		updatedSince(ac.ModeIndicators.ChangedAt, last.reportTime) ||
		updatedSince(ac.Callsign.ChangedAt, last.reportTime) ||
		updatedSince(ac.AirGroundState.ChangedAt, last.reportTime) ||
		updatedSince(ac.Emergency.ChangedAt, last.reportTime)

	var altitude *int32
	if ac.PressureAltitude.Valid() && now.Sub(ac.PressureAltitude.UpdatedAt) < 30*time.Second {
		v := ac.PressureAltitude.Value
		altitude = &v
	} else if ac.GeometricAltitude.Valid() && now.Sub(ac.GeometricAltitude.UpdatedAt) < 30*time.Second {
		v := ac.GeometricAltitude.Value
		altitude = &v
	}

	var airground *message.AirGroundState
	if ac.AirGroundState.Valid() && now.Sub(ac.AirGroundState.UpdatedAt) < 30*time.Second {
		v := ac.AirGroundState.Value
		airground = &v
	}

	var groundspeed *float64
	if ac.GroundSpeed.Valid() && now.Sub(ac.GroundSpeed.UpdatedAt) < 30*time.Second {
		v := ac.GroundSpeed.Value
		groundspeed = &v
	}

	var minAge time.Duration
	switch {
	case immediate:
		minAge = 0
	case airground != nil && *airground == message.OnGround:
		minAge = time.Second
	case altitude != nil && *altitude < 500 && (groundspeed == nil || *groundspeed < 200):
		minAge = time.Second
	case groundspeed != nil && *groundspeed < 100 && (altitude == nil || *altitude < 1000):
		minAge = time.Second
	case altitude == nil || *altitude < 10000:
		if changed {
			minAge = 5 * time.Second
		} else {
			minAge = 10 * time.Second
		}
	default:
		if changed {
			minAge = 10 * time.Second
		} else {
			minAge = 30 * time.Second
		}
	}

	forceSlow := last.slowReportTime.IsZero() || now.Sub(last.slowReportTime) > 5*time.Minute

	if !last.reportTime.IsZero() && now.Sub(last.reportTime) < minAge {
		return
	}

	var kv []string
	addField := func(key, value string) {
		kv = append(kv, key, value)
	}

	source := sourceCode(ac.AddressQualifier)

	if ac.MOPSVersion.Valid() && (forceSlow || updatedSince(ac.MOPSVersion.ChangedAt, last.reportTime)) {
		addField("adsb_version", fmt.Sprintf("%d", ac.MOPSVersion.Value))
	}
	if ac.EmitterCategory.Valid() && (forceSlow || updatedSince(ac.EmitterCategory.ChangedAt, last.reportTime)) {
		addField("category", fmt.Sprintf("%02X", ac.EmitterCategory.Value+0xA0))
	}
	if ac.NACp.Valid() && (forceSlow || updatedSince(ac.NACp.ChangedAt, last.reportTime)) {
		addField("nac_p", agedValue(fmt.Sprintf("%d", ac.NACp.Value), ac.NACp.UpdatedAt, now, source))
	}
	if ac.NACv.Valid() && (forceSlow || updatedSince(ac.NACv.ChangedAt, last.reportTime)) {
		addField("nac_v", agedValue(fmt.Sprintf("%d", ac.NACv.Value), ac.NACv.UpdatedAt, now, source))
	}
	if ac.SIL.Valid() && (forceSlow || updatedSince(ac.SIL.ChangedAt, last.reportTime)) {
		addField("sil", agedValue(fmt.Sprintf("%d", ac.SIL.Value), ac.SIL.UpdatedAt, now, source))
	}
	if ac.NICBaro.Valid() && (forceSlow || updatedSince(ac.NICBaro.ChangedAt, last.reportTime)) {
		addField("nic_baro", agedValue(fmt.Sprintf("%d", ac.NICBaro.Value), ac.NICBaro.UpdatedAt, now, source))
	}

	if ac.AirGroundState.Valid() && ac.AirGroundState.UpdatedAt.After(last.reportTime) {
		addField("airGround", agedValue(airGroundCode(ac.AirGroundState.Value), ac.AirGroundState.UpdatedAt, now, source))
	}
	if ac.FlightplanID.Valid() && ac.FlightplanID.UpdatedAt.After(last.reportTime) {
		addField("squawk", agedValue("{"+ac.FlightplanID.Value+"}", ac.FlightplanID.UpdatedAt, now, source))
	}
	if ac.Callsign.Valid() && ac.Callsign.UpdatedAt.After(last.reportTime) {
		addField("ident", agedValue("{"+ac.Callsign.Value+"}", ac.Callsign.UpdatedAt, now, source))
	}
	if ac.PressureAltitude.Valid() && ac.PressureAltitude.UpdatedAt.After(last.reportTime) {
		addField("alt", agedValue(fmt.Sprintf("%d", ac.PressureAltitude.Value), ac.PressureAltitude.UpdatedAt, now, source))
	}
	if ac.Position.Valid() && ac.Position.UpdatedAt.After(last.reportTime) {
		nic := 0
		if ac.NIC.Valid() {
			nic = ac.NIC.Value
		}
		rc := 0.0
		if ac.HorizontalContainment.Valid() {
			rc = ac.HorizontalContainment.Value
		}
		pos := fmt.Sprintf("{%.5f %.5f %d %.0f}", ac.Position.Value.Lat, ac.Position.Value.Lon, nic, math.Ceil(rc))
		addField("position", agedValue(pos, ac.Position.UpdatedAt, now, source))
	}
	if ac.GeometricAltitude.Valid() && ac.GeometricAltitude.UpdatedAt.After(last.reportTime) {
		addField("alt_gnss", agedValue(fmt.Sprintf("%d", ac.GeometricAltitude.Value), ac.GeometricAltitude.UpdatedAt, now, source))
	}
	if ac.VerticalVelocityBarometric.Valid() && ac.VerticalVelocityBarometric.UpdatedAt.After(last.reportTime) {
		addField("vrate", agedValue(fmt.Sprintf("%d", ac.VerticalVelocityBarometric.Value), ac.VerticalVelocityBarometric.UpdatedAt, now, source))
	}
	if ac.VerticalVelocityGeometric.Valid() && ac.VerticalVelocityGeometric.UpdatedAt.After(last.reportTime) {
		addField("vrate_geom", agedValue(fmt.Sprintf("%d", ac.VerticalVelocityGeometric.Value), ac.VerticalVelocityGeometric.UpdatedAt, now, source))
	}
	if ac.GroundSpeed.Valid() && ac.GroundSpeed.UpdatedAt.After(last.reportTime) {
		addField("speed", agedValue(fmt.Sprintf("%.0f", ac.GroundSpeed.Value), ac.GroundSpeed.UpdatedAt, now, source))
	}
	if ac.TrueTrack.Valid() && ac.TrueTrack.UpdatedAt.After(last.reportTime) {
		addField("track", agedValue(fmt.Sprintf("%.1f", ac.TrueTrack.Value), ac.TrueTrack.UpdatedAt, now, source))
	}
	if ac.MagneticHeading.Valid() && ac.MagneticHeading.UpdatedAt.After(last.reportTime) {
		addField("heading_magnetic", agedValue(fmt.Sprintf("%.1f", ac.MagneticHeading.Value), ac.MagneticHeading.UpdatedAt, now, source))
	}
	if ac.SelectedAltitudeMCP.Valid() && ac.SelectedAltitudeMCP.UpdatedAt.After(last.reportTime) {
		addField("nav_alt", agedValue(fmt.Sprintf("%d", ac.SelectedAltitudeMCP.Value), ac.SelectedAltitudeMCP.UpdatedAt, now, source))
	}
	if ac.SelectedHeading.Valid() && ac.SelectedHeading.UpdatedAt.After(last.reportTime) {
		addField("nav_heading", agedValue(fmt.Sprintf("%.1f", ac.SelectedHeading.Value), ac.SelectedHeading.UpdatedAt, now, source))
	}
	if ac.BarometricPressureSetting.Valid() && ac.BarometricPressureSetting.UpdatedAt.After(last.reportTime) {
		addField("nav_qnh", agedValue(fmt.Sprintf("%.1f", ac.BarometricPressureSetting.Value), ac.BarometricPressureSetting.UpdatedAt, now, source))
	}
	if ac.Emergency.Valid() && ac.Emergency.UpdatedAt.After(last.reportTime) {
		addField("emergency", agedValue(emergencyName(ac.Emergency.Value), ac.Emergency.UpdatedAt, now, source))
	}

	if len(kv) == 0 {
		return
	}

	var line strings.Builder
	fmt.Fprintf(&line, "clock\t%d\t", now.Unix())
	fmt.Fprintf(&line, "%s\t%06X", idType(ac.AddressQualifier), ac.Address)
	if forceSlow {
		fmt.Fprintf(&line, "\taddrtype\t%s", ac.AddressQualifier.String())
	}
	for i := 0; i < len(kv); i += 2 {
		fmt.Fprintf(&line, "\t%s\t%s", kv[i], kv[i+1])
	}
	fmt.Fprintln(r.w, line.String())

	if forceSlow {
		last.slowReportTime = now
	}
	last.reportTime = now
	last.lastAltitude = altitude
	last.lastVVBaro = fieldPtr(ac.VerticalVelocityBarometric)
	last.lastVVGeo = fieldPtr(ac.VerticalVelocityGeometric)
	last.lastTrack = floatFieldPtr(ac.TrueTrack)
	last.lastHeading = floatFieldPtr(ac.MagneticHeading)
	last.lastSpeed = floatFieldPtr(ac.GroundSpeed)
}

func updatedSince(changedAt, reportTime time.Time) bool {
	return changedAt.After(reportTime)
}

func fieldChangedBy(prev *int32, f track.AgedField[int32], threshold int32) bool {
	if prev == nil || !f.Valid() {
		return false
	}
	d := *prev - f.Value
	if d < 0 {
		d = -d
	}
	return d >= threshold
}

func floatChangedBy(prev *float64, f track.AgedField[float64], threshold float64) bool {
	if prev == nil || !f.Valid() {
		return false
	}
	d := *prev - f.Value
	if d < 0 {
		d = -d
	}
	return d >= threshold
}

func fieldPtr(f track.AgedField[int32]) *int32 {
	if !f.Valid() {
		return nil
	}
	v := f.Value
	return &v
}

func floatFieldPtr(f track.AgedField[float64]) *float64 {
	if !f.Valid() {
		return nil
	}
	v := f.Value
	return &v
}

func agedValue(value string, updatedAt, now time.Time, source string) string {
	ageSeconds := int64(now.Sub(updatedAt) / time.Second)
	return fmt.Sprintf("%s %d %s", value, ageSeconds, source)
}

func sourceCode(q message.AddressQualifier) string {
	switch q {
	case message.AdsbICAO, message.AdsbOther, message.AdsrOther:
		return "A"
	case message.TisbICAO, message.TisbOther:
		return "T"
	default:
		return "?"
	}
}

func idType(q message.AddressQualifier) string {
	switch q {
	case message.AdsbICAO, message.TisbICAO:
		return "hexid"
	default:
		return "otherid"
	}
}

func airGroundCode(s message.AirGroundState) string {
	switch s {
	case message.Airborne, message.AirGroundSupersonic, message.OnGround:
		return "A+"
	default:
		return "?"
	}
}

func emergencyName(code int) string {
	switch code {
	case 0:
		return "none"
	case 1:
		return "general"
	case 2:
		return "medical"
	case 3:
		return "minfuel"
	case 4:
		return "nordo"
	case 5:
		return "unlawful"
	case 6:
		return "downed"
	default:
		return "unknown"
	}
}
