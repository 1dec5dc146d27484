package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uat978/internal/demod"
)

func setBits(p []byte, startBit, nbits int, value uint32) {
	for i := 0; i < nbits; i++ {
		bit := (value >> uint(nbits-1-i)) & 1
		bitIndex := startBit + i
		byteIndex := bitIndex / 8
		shift := 7 - uint(bitIndex%8)
		if bit == 1 {
			p[byteIndex] |= 1 << shift
		} else {
			p[byteIndex] &^= 1 << shift
		}
	}
}

func TestParseHeaderAddress(t *testing.T) {
	p := make([]byte, 34)
	p[0] = byte(AdsbICAO) | 0x08
	p[1], p[2], p[3] = 0xAB, 0xCD, 0xEF

	msg, ok := Parse(demod.RawMessage{Payload: p, TimestampMs: 42})
	require.True(t, ok)
	assert.Equal(t, AdsbICAO, msg.AddressQualifier)
	assert.Equal(t, uint32(0xABCDEF), msg.Address)
	assert.Equal(t, int64(42), msg.TimestampMs)
}

func TestParseRejectsUplink(t *testing.T) {
	_, ok := Parse(demod.RawMessage{Uplink: true, Payload: make([]byte, 34)})
	assert.False(t, ok)
}

func TestParseRejectsShortPayload(t *testing.T) {
	_, ok := Parse(demod.RawMessage{Payload: make([]byte, 2)})
	assert.False(t, ok)
}

func TestParsePosition(t *testing.T) {
	p := make([]byte, 34)
	sv := p[4:18]
	setBits(sv, 0, 23, 0x100000)
	setBits(sv, 23, 24, 0x200000)

	msg, ok := Parse(demod.RawMessage{Payload: p})
	require.True(t, ok)
	require.NotNil(t, msg.Position)
	assert.InDelta(t, 45.0, msg.Position.Lat, 0.5)
}

func TestParsePressureAltitude(t *testing.T) {
	p := make([]byte, 34)
	sv := p[4:18]
	setBits(sv, 47, 1, 0) // pressure altitude
	setBits(sv, 48, 12, 80)

	msg, ok := Parse(demod.RawMessage{Payload: p})
	require.True(t, ok)
	require.NotNil(t, msg.PressureAltitude)
	assert.EqualValues(t, 80*25-1000, *msg.PressureAltitude)
	assert.Nil(t, msg.GeometricAltitude)
}

func TestParseAirborneVelocity(t *testing.T) {
	p := make([]byte, 34)
	sv := p[4:18]
	setBits(sv, 64, 2, uint32(Airborne))
	setBits(sv, 67, 11, 100) // north velocity, positive
	setBits(sv, 78, 11, 0x400|50) // east velocity, negative (sign bit set)

	msg, ok := Parse(demod.RawMessage{Payload: p})
	require.True(t, ok)
	require.NotNil(t, msg.NorthVelocity)
	require.NotNil(t, msg.EastVelocity)
	assert.EqualValues(t, 100, *msg.NorthVelocity)
	assert.EqualValues(t, -50, *msg.EastVelocity)
	require.NotNil(t, msg.GroundSpeed)
	require.NotNil(t, msg.TrueTrack)
}

func TestParseOnGroundHeadingSpeed(t *testing.T) {
	p := make([]byte, 34)
	sv := p[4:18]
	setBits(sv, 64, 2, uint32(OnGround))
	setBits(sv, 68, 9, 256) // heading ~180 deg
	setBits(sv, 78, 10, 30) // speed

	msg, ok := Parse(demod.RawMessage{Payload: p})
	require.True(t, ok)
	require.NotNil(t, msg.MagneticHeading)
	assert.InDelta(t, 180.0, *msg.MagneticHeading, 1.0)
	require.NotNil(t, msg.GroundSpeed)
	assert.EqualValues(t, 30, *msg.GroundSpeed)
}

func TestParseModeStatusCallsign(t *testing.T) {
	p := make([]byte, 34)
	ms := p[18:29]
	setBits(ms, 0, 4, 3) // emitter category, triggers callsign branch
	// "N1" -> charset indices
	setBits(ms, 4, 6, 14)  // 'N' index in charset (A=1..Z=26) -> N is 14th letter => 1+13=14
	setBits(ms, 10, 6, 49) // '1' -> digits '0'..'9' start at index 48 (0x30) in the charset

	msg, ok := Parse(demod.RawMessage{Payload: p})
	require.True(t, ok)
	require.NotNil(t, msg.EmitterCategory)
	assert.Equal(t, 3, *msg.EmitterCategory)
	require.NotNil(t, msg.Callsign)
	assert.Equal(t, "N1", *msg.Callsign)
}

func TestParseModeStatusFlightplanWhenCategoryZero(t *testing.T) {
	p := make([]byte, 34)
	ms := p[18:29]
	setBits(ms, 0, 4, 0)

	msg, ok := Parse(demod.RawMessage{Payload: p})
	require.True(t, ok)
	assert.Nil(t, msg.Callsign)
	assert.NotNil(t, msg.FlightplanID)
}

func TestParseModeStatusIntegrityFields(t *testing.T) {
	p := make([]byte, 34)
	ms := p[18:29]
	setBits(ms, 52, 3, 2) // emergency
	setBits(ms, 55, 3, 1) // mops version
	setBits(ms, 58, 2, 3) // sil
	setBits(ms, 66, 2, 2) // sda
	setBits(ms, 68, 4, 9) // nacp
	setBits(ms, 72, 3, 5) // nacv
	setBits(ms, 75, 1, 1) // nic baro
	setBits(ms, 76, 2, 1) // capability codes
	setBits(ms, 78, 3, 2) // operational modes
	setBits(ms, 81, 1, 1) // sil supplement
	setBits(ms, 82, 2, 2) // gva
	setBits(ms, 84, 1, 1) // single antenna

	msg, ok := Parse(demod.RawMessage{Payload: p})
	require.True(t, ok)
	assert.Equal(t, 2, *msg.Emergency)
	assert.Equal(t, 1, *msg.MOPSVersion)
	assert.Equal(t, 3, *msg.SIL)
	assert.Equal(t, 2, *msg.SDA)
	assert.Equal(t, 9, *msg.NACp)
	assert.Equal(t, 5, *msg.NACv)
	assert.Equal(t, 1, *msg.NICBaro)
	assert.Equal(t, 1, *msg.CapabilityCodes)
	assert.Equal(t, 2, *msg.OperationalModes)
	assert.Equal(t, 1, *msg.SILSupplement)
	assert.Equal(t, 2, *msg.GVA)
	assert.True(t, *msg.SingleAntenna)
}

func TestParseTargetStateSelectedAltitude(t *testing.T) {
	p := make([]byte, 34)
	ts := p[29:34]
	setBits(ts, 0, 1, 0) // MCP
	setBits(ts, 1, 11, 100)
	setBits(ts, 31, 5, 0x10) // autopilot engaged

	msg, ok := Parse(demod.RawMessage{Payload: p})
	require.True(t, ok)
	require.NotNil(t, msg.SelectedAltitudeMCP)
	assert.EqualValues(t, 100*32-1000, *msg.SelectedAltitudeMCP)
	require.NotNil(t, msg.ModeIndicators)
	assert.True(t, msg.ModeIndicators.Autopilot)
	assert.False(t, msg.ModeIndicators.VNAV)
}

func TestParseTruncatedPayloadSkipsLaterSubfields(t *testing.T) {
	p := make([]byte, 18) // header + state vector only
	msg, ok := Parse(demod.RawMessage{Payload: p})
	require.True(t, ok)
	assert.Nil(t, msg.EmitterCategory)
	assert.Nil(t, msg.SelectedAltitudeMCP)
}
