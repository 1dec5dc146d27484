// Package demod implements the sync-word-driven bit slicer that
// extracts candidate UAT frames from a phase buffer and hands them to
// FEC for correction.
package demod

import (
	"uat978/internal/fec"
)

const (
	syncBits = 36
	syncMask = (uint64(1) << syncBits) - 1

	// DownlinkSync and UplinkSync are the two fixed 36-bit UAT
	// preambles. The defining header (uat_message.h) was not present
	// in the retrieved source tree; these are the standard published
	// UAT MOPS sync words used by every independent UAT decoder,
	// recorded here as an assumption.
	DownlinkSync uint64 = 0xEACDDA4E2
	UplinkSync   uint64 = 0x153225B1D

	// syncHammingTolerance is the maximum Hamming distance accepted
	// between a candidate 36-bit register and a sync pattern.
	syncHammingTolerance = 4

	downlinkBits = syncBits + fec.DownlinkLongBytes*8
	uplinkBits   = syncBits + fec.UplinkBytes*8
)

// RawMessage is a corrected frame ready for the message parser.
type RawMessage struct {
	Payload     []byte
	TimestampMs int64
	Errors      int
	Uplink      bool
}

// Demodulator scans a phase buffer for sync words and emits corrected
// frames. It holds no state across calls; buffer continuity is the
// Receiver's responsibility.
type Demodulator struct {
	fec *fec.FEC
}

// New builds a Demodulator.
func New(f *fec.FEC) *Demodulator {
	return &Demodulator{fec: f}
}

// NumTrailingSamples is the number of phase samples at the tail of a
// buffer that cannot be conclusively scanned and must be carried over
// to the next call.
func NumTrailingSamples() int {
	return (syncBits + fec.UplinkBytes*8) * 2
}

// phaseDiff reduces to-from into (-32768, 32767], matching the signed
// 16-bit phase-difference contract.
func phaseDiff(from, to uint16) int32 {
	diff := int32(to) - int32(from)
	if diff >= 32768 {
		diff -= 65536
	} else if diff < -32768 {
		diff += 65536
	}
	return diff
}

// syncWordMatch reports whether word differs from pattern in at most
// syncHammingTolerance bits, using an early-exit popcount.
func syncWordMatch(word, pattern uint64) bool {
	diff := (word ^ pattern) & syncMask
	for n := 0; diff != 0; n++ {
		if n == syncHammingTolerance {
			return false
		}
		diff &= diff - 1
	}
	return true
}

// checkSyncWord recomputes a bit-slicing threshold from the mean
// phase-difference of the pattern's 1-bits and 0-bits over the 36 sync
// positions starting at phase[start], then re-verifies the sync word
// against that threshold. Returns (ok, threshold).
func checkSyncWord(phase []uint16, start int, pattern uint64) (bool, int32) {
	if start < 0 || start+2*syncBits > len(phase) {
		return false, 0
	}

	var sum1, sum0 int64
	var n1, n0 int
	diffs := make([]int32, syncBits)
	for i := 0; i < syncBits; i++ {
		idx := start + 2*i
		d := phaseDiff(phase[idx], phase[idx+1])
		diffs[i] = d
		if pattern&(1<<(syncBits-1-i)) != 0 {
			sum1 += int64(d)
			n1++
		} else {
			sum0 += int64(d)
			n0++
		}
	}

	var mean1, mean0 int32
	if n1 > 0 {
		mean1 = int32(sum1 / int64(n1))
	}
	if n0 > 0 {
		mean0 = int32(sum0 / int64(n0))
	}
	center := (mean1 + mean0) / 2

	errors := 0
	for i := 0; i < syncBits; i++ {
		bit := diffs[i] > center
		want := pattern&(1<<(syncBits-1-i)) != 0
		if bit != want {
			errors++
		}
	}
	return errors <= syncHammingTolerance, center
}

// demodBits slices nbits starting at phase[start], MSB first, using
// threshold as the 0/1 decision boundary.
func demodBits(phase []uint16, start int, nbits int, threshold int32) ([]byte, bool) {
	if start < 0 || start+2*nbits > len(phase) {
		return nil, false
	}
	out := make([]byte, (nbits+7)/8)
	for i := 0; i < nbits; i++ {
		idx := start + 2*i
		d := phaseDiff(phase[idx], phase[idx+1])
		if d > threshold {
			out[i/8] |= 1 << (7 - uint(i%8))
		}
	}
	return out, true
}

// demodOneDownlink attempts a downlink decode at sync-word start
// syncStart, returning the FEC-corrected frame.
func (d *Demodulator) demodOneDownlink(phase []uint16, syncStart int) (RawMessage, bool) {
	ok, threshold := checkSyncWord(phase, syncStart, DownlinkSync)
	if !ok {
		return RawMessage{}, false
	}
	raw, ok := demodBits(phase, syncStart+2*syncBits, fec.DownlinkLongBytes*8, threshold)
	if !ok {
		return RawMessage{}, false
	}
	data, errs, ok := d.fec.CorrectDownlink(raw)
	if !ok {
		return RawMessage{}, false
	}
	return RawMessage{Payload: data, Errors: errs, Uplink: false}, true
}

func (d *Demodulator) demodOneUplink(phase []uint16, syncStart int) (RawMessage, bool) {
	ok, threshold := checkSyncWord(phase, syncStart, UplinkSync)
	if !ok {
		return RawMessage{}, false
	}
	raw, ok := demodBits(phase, syncStart+2*syncBits, fec.UplinkBytes*8, threshold)
	if !ok {
		return RawMessage{}, false
	}
	data, errs, ok := d.fec.CorrectUplink(raw)
	if !ok {
		return RawMessage{}, false
	}
	return RawMessage{Payload: data, Errors: errs, Uplink: true}, true
}

// demodBest tries syncStart and syncStart+1 (half-sample dither) for a
// given frame kind, returning the candidate with fewest corrected
// errors; ties favor syncStart.
func (d *Demodulator) demodBest(phase []uint16, syncStart int, uplink bool) (RawMessage, int, bool) {
	decode := d.demodOneDownlink
	if uplink {
		decode = d.demodOneUplink
	}

	msg0, ok0 := decode(phase, syncStart)
	msg1, ok1 := decode(phase, syncStart+1)

	switch {
	case ok0 && ok1:
		if msg1.Errors < msg0.Errors {
			return msg1, syncStart + 1, true
		}
		return msg0, syncStart, true
	case ok0:
		return msg0, syncStart, true
	case ok1:
		return msg1, syncStart + 1, true
	default:
		return RawMessage{}, 0, false
	}
}

// Demodulate scans phase for sync words and returns every frame found.
// baseTimestampMs is the Unix-ms timestamp of phase[0]. Frames whose
// sync word starts within the final NumTrailingSamples() samples are
// never emitted; the caller must re-present that tail on the next call.
func (d *Demodulator) Demodulate(baseTimestampMs int64, phase []uint16) []RawMessage {
	trailing := (syncBits+fec.UplinkBytes*8)*2 - 2
	if len(phase) <= trailing {
		return nil
	}
	limit := len(phase) - trailing

	var messages []RawMessage
	var sync0, sync1 uint64
	syncBitsAccum := 0

	i := 0
	for i < limit {
		d0 := phaseDiff(phase[i], phase[i+1])
		d1 := phaseDiff(phase[i+1], phase[i+2])

		sync0 = ((sync0 << 1) | bitFromSign(d0)) & syncMask
		sync1 = ((sync1 << 1) | bitFromSign(d1)) & syncMask
		if syncBitsAccum < syncBits {
			syncBitsAccum++
		}

		if syncBitsAccum >= syncBits {
			start0 := i - syncBits*2 + 2
			start1 := start0 + 1

			if msg, matchStart, endStart, bitLen, matched := d.tryMatches(phase, start0, start1, sync0, sync1); matched {
				msg.TimestampMs = baseTimestampMs + int64(matchStart)*1000/2083333
				messages = append(messages, msg)
				i = endStart + bitLen*2
				sync0, sync1 = 0, 0
				syncBitsAccum = 0
				continue
			}
		}
		i += 2
	}
	return messages
}

// tryMatches checks both sync registers against both patterns in a
// fixed order: (sync0,DOWNLINK), (sync1,DOWNLINK), (sync0,UPLINK),
// (sync1,UPLINK); the first successful FEC decode wins. matchStart is
// the sync-match start (start0 or start1, whichever register matched)
// regardless of which half-sample dither candidate demodBest picks;
// endStart is the dither-adjusted start used to advance the scan.
func (d *Demodulator) tryMatches(phase []uint16, start0, start1 int, sync0, sync1 uint64) (msg RawMessage, matchStart, endStart, bitLen int, matched bool) {
	if syncWordMatch(sync0, DownlinkSync) {
		if msg, end, ok := d.demodBest(phase, start0, false); ok {
			return msg, start0, end, downlinkBits, true
		}
	}
	if syncWordMatch(sync1, DownlinkSync) {
		if msg, end, ok := d.demodBest(phase, start1, false); ok {
			return msg, start1, end, downlinkBits, true
		}
	}
	if syncWordMatch(sync0, UplinkSync) {
		if msg, end, ok := d.demodBest(phase, start0, true); ok {
			return msg, start0, end, uplinkBits, true
		}
	}
	if syncWordMatch(sync1, UplinkSync) {
		if msg, end, ok := d.demodBest(phase, start1, true); ok {
			return msg, start1, end, uplinkBits, true
		}
	}
	return RawMessage{}, 0, 0, 0, false
}

func bitFromSign(d int32) uint64 {
	if d > 0 {
		return 1
	}
	return 0
}
