// Package track maintains per-aircraft state built up from a stream of
// decoded messages, aging out fields and whole aircraft with per-field
// update/change timestamps.
package track

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"uat978/internal/message"
)

// DefaultTimeout is how long an aircraft is kept after its last
// message before being purged.
const DefaultTimeout = 300 * time.Second

// AgedField carries a value alongside when it was last set and when it
// last actually changed.
type AgedField[T comparable] struct {
	Value     T
	UpdatedAt time.Time
	ChangedAt time.Time
	set       bool
}

// Set stores value, refreshing UpdatedAt unconditionally and ChangedAt
// only when the value differs from the previous one.
func (f *AgedField[T]) Set(value T, now time.Time) {
	if !f.set || f.Value != value {
		f.ChangedAt = now
	}
	f.Value = value
	f.UpdatedAt = now
	f.set = true
}

// Valid reports whether the field has ever been set.
func (f *AgedField[T]) Valid() bool {
	return f.set
}

// Stale reports whether the field has not been updated within age.
func (f *AgedField[T]) Stale(now time.Time, age time.Duration) bool {
	return !f.set || now.Sub(f.UpdatedAt) > age
}

// addressKey identifies one aircraft by its 24-bit address together
// with the address qualifier that namespaces it: two aircraft can
// share the same 24-bit address under different qualifiers (e.g. an
// ICAO address and an anonymous/TIS-B address), and must not collide.
type addressKey struct {
	qualifier message.AddressQualifier
	address   uint32
}

// AircraftState is the accumulated, aged view of one aircraft built up
// from repeated messages.
type AircraftState struct {
	Address          uint32
	AddressQualifier message.AddressQualifier

	FirstSeen time.Time
	LastSeen  time.Time

	Position                   AgedField[message.Position]
	PressureAltitude           AgedField[int32]
	GeometricAltitude          AgedField[int32]
	NIC                        AgedField[int]
	AirGroundState             AgedField[message.AirGroundState]
	NorthVelocity              AgedField[int32]
	EastVelocity               AgedField[int32]
	GroundSpeed                AgedField[float64]
	TrueTrack                  AgedField[float64]
	VerticalVelocityBarometric AgedField[int32]
	VerticalVelocityGeometric  AgedField[int32]
	MagneticHeading            AgedField[float64]
	EmitterCategory            AgedField[int]
	Callsign                   AgedField[string]
	FlightplanID               AgedField[string]
	Emergency                  AgedField[int]
	MOPSVersion                AgedField[int]
	SIL                        AgedField[int]
	SILSupplement              AgedField[int]
	SDA                        AgedField[int]
	NACp                       AgedField[int]
	NACv                       AgedField[int]
	NICBaro                    AgedField[int]
	GVA                        AgedField[int]
	UTCCoupled                 AgedField[bool]
	SingleAntenna              AgedField[bool]
	CapabilityCodes            AgedField[int]
	OperationalModes           AgedField[int]
	SelectedAltitudeMCP        AgedField[int32]
	SelectedAltitudeFMS        AgedField[int32]
	BarometricPressureSetting  AgedField[float64]
	SelectedHeading            AgedField[float64]
	ModeIndicators             AgedField[message.ModeIndicators]
	HorizontalContainment      AgedField[float64]

	MessageCount uint64
	ErrorCount   int
}

// Tracker applies message batches and periodic purges on a single
// background goroutine, so updates and purges never interleave.
// Snapshot, Lookup and Count do not go through that goroutine: they
// take a read lock on the aircraft map, which update and purge hold
// for writing.
type Tracker struct {
	logger  *logrus.Logger
	timeout time.Duration

	mu       sync.RWMutex
	aircraft map[addressKey]*AircraftState

	updates chan []message.Message
	wg      sync.WaitGroup
	stop    chan struct{}
}

// New builds a Tracker with the given purge timeout (DefaultTimeout if
// zero) and starts its background processing goroutine.
func New(logger *logrus.Logger, timeout time.Duration) *Tracker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	t := &Tracker{
		logger:   logger,
		timeout:  timeout,
		aircraft: make(map[addressKey]*AircraftState),
		updates:  make(chan []message.Message, 64),
		stop:     make(chan struct{}),
	}
	t.wg.Add(1)
	go t.run()
	return t
}

// HandleMessages enqueues a batch of decoded messages for processing.
// It does not block on tracker internals beyond the channel buffer.
func (t *Tracker) HandleMessages(msgs []message.Message) {
	if len(msgs) == 0 {
		return
	}
	select {
	case t.updates <- msgs:
	case <-t.stop:
	}
}

// Close stops the background goroutine and waits for it to exit.
// Batches still queued when Close is called may be discarded.
func (t *Tracker) Close() {
	close(t.stop)
	t.wg.Wait()
}

func (t *Tracker) run() {
	defer t.wg.Done()
	purgeTicker := time.NewTicker(t.timeout / 4)
	defer purgeTicker.Stop()

	for {
		select {
		case msgs := <-t.updates:
			for _, m := range msgs {
				t.update(m, messageTime(m))
			}
		case <-purgeTicker.C:
			t.purge(time.Now())
		case <-t.stop:
			return
		}
	}
}

// messageTime derives the aging reference time from when the message
// was actually received (its demodulation timestamp), not when the
// tracker goroutine happens to process it.
func messageTime(m message.Message) time.Time {
	return time.UnixMilli(m.TimestampMs)
}

func (t *Tracker) update(m message.Message, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := addressKey{qualifier: m.AddressQualifier, address: m.Address}
	ac, ok := t.aircraft[key]
	if !ok {
		ac = &AircraftState{
			Address:          m.Address,
			AddressQualifier: m.AddressQualifier,
			FirstSeen:        now,
		}
		t.aircraft[key] = ac
		if t.logger != nil {
			t.logger.WithField("address", m.Address).Debug("new aircraft")
		}
	}

	ac.LastSeen = now
	ac.MessageCount++
	ac.ErrorCount += m.Errors

	if m.Position != nil {
		ac.Position.Set(*m.Position, now)
	}
	if m.PressureAltitude != nil {
		ac.PressureAltitude.Set(*m.PressureAltitude, now)
	}
	if m.GeometricAltitude != nil {
		ac.GeometricAltitude.Set(*m.GeometricAltitude, now)
	}
	if m.NIC != nil {
		ac.NIC.Set(*m.NIC, now)
	}
	if m.AirGroundState != nil {
		ac.AirGroundState.Set(*m.AirGroundState, now)
	}
	if m.NorthVelocity != nil {
		ac.NorthVelocity.Set(*m.NorthVelocity, now)
	}
	if m.EastVelocity != nil {
		ac.EastVelocity.Set(*m.EastVelocity, now)
	}
	if m.GroundSpeed != nil {
		ac.GroundSpeed.Set(*m.GroundSpeed, now)
	}
	if m.TrueTrack != nil {
		ac.TrueTrack.Set(*m.TrueTrack, now)
	}
	if m.VerticalVelocityBarometric != nil {
		ac.VerticalVelocityBarometric.Set(*m.VerticalVelocityBarometric, now)
	}
	if m.VerticalVelocityGeometric != nil {
		ac.VerticalVelocityGeometric.Set(*m.VerticalVelocityGeometric, now)
	}
	if m.MagneticHeading != nil {
		ac.MagneticHeading.Set(*m.MagneticHeading, now)
	}
	if m.EmitterCategory != nil {
		ac.EmitterCategory.Set(*m.EmitterCategory, now)
	}
	if m.Callsign != nil {
		ac.Callsign.Set(*m.Callsign, now)
	}
	if m.FlightplanID != nil {
		ac.FlightplanID.Set(*m.FlightplanID, now)
	}
	if m.Emergency != nil {
		ac.Emergency.Set(*m.Emergency, now)
	}
	if m.MOPSVersion != nil {
		ac.MOPSVersion.Set(*m.MOPSVersion, now)
	}
	if m.SIL != nil {
		ac.SIL.Set(*m.SIL, now)
	}
	if m.SILSupplement != nil {
		ac.SILSupplement.Set(*m.SILSupplement, now)
	}
	if m.SDA != nil {
		ac.SDA.Set(*m.SDA, now)
	}
	if m.NACp != nil {
		ac.NACp.Set(*m.NACp, now)
	}
	if m.NACv != nil {
		ac.NACv.Set(*m.NACv, now)
	}
	if m.NICBaro != nil {
		ac.NICBaro.Set(*m.NICBaro, now)
	}
	if m.GVA != nil {
		ac.GVA.Set(*m.GVA, now)
	}
	if m.UTCCoupled != nil {
		ac.UTCCoupled.Set(*m.UTCCoupled, now)
	}
	if m.SingleAntenna != nil {
		ac.SingleAntenna.Set(*m.SingleAntenna, now)
	}
	if m.CapabilityCodes != nil {
		ac.CapabilityCodes.Set(*m.CapabilityCodes, now)
	}
	if m.OperationalModes != nil {
		ac.OperationalModes.Set(*m.OperationalModes, now)
	}
	if m.SelectedAltitudeMCP != nil {
		ac.SelectedAltitudeMCP.Set(*m.SelectedAltitudeMCP, now)
	}
	if m.SelectedAltitudeFMS != nil {
		ac.SelectedAltitudeFMS.Set(*m.SelectedAltitudeFMS, now)
	}
	if m.BarometricPressureSetting != nil {
		ac.BarometricPressureSetting.Set(*m.BarometricPressureSetting, now)
	}
	if m.SelectedHeading != nil {
		ac.SelectedHeading.Set(*m.SelectedHeading, now)
	}
	if m.ModeIndicators != nil {
		ac.ModeIndicators.Set(*m.ModeIndicators, now)
	}
	if m.HorizontalContainment != nil {
		ac.HorizontalContainment.Set(*m.HorizontalContainment, now)
	}
}

func (t *Tracker) purge(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, ac := range t.aircraft {
		if now.Sub(ac.LastSeen) > t.timeout {
			delete(t.aircraft, key)
			if t.logger != nil {
				t.logger.WithField("address", key.address).Debug("purged aircraft")
			}
		}
	}
}

// Snapshot returns a copy of every tracked aircraft's state, safe for
// the caller to read without further synchronization.
func (t *Tracker) Snapshot() []AircraftState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]AircraftState, 0, len(t.aircraft))
	for _, ac := range t.aircraft {
		out = append(out, *ac)
	}
	return out
}

// Lookup returns a copy of one aircraft's state by (qualifier, address).
func (t *Tracker) Lookup(qualifier message.AddressQualifier, address uint32) (AircraftState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ac, ok := t.aircraft[addressKey{qualifier: qualifier, address: address}]
	if !ok {
		return AircraftState{}, false
	}
	return *ac, true
}

// Count returns the number of currently tracked aircraft.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.aircraft)
}
