// Package receiver drives the DSP pipeline: raw sample blocks in,
// demodulated messages out. It owns the phase-sample tail that the
// demodulator may not have finished scanning, carrying it forward into
// the next call the same way a partial-message buffer accumulates
// across reads.
package receiver

import (
	"uat978/internal/convert"
	"uat978/internal/demod"
	"uat978/internal/fec"
)

// Receiver converts raw sample blocks to phase samples and feeds them
// to the demodulator, carrying unconsumed trailing phase samples
// across calls.
type Receiver struct {
	converter  *convert.Converter
	demod      *demod.Demodulator
	tail       []uint16
	sampleRate float64 // samples/sec per channel, default 2083333 per spec S5
}

// New builds a Receiver for the given sample format.
func New(format convert.SampleFormat) *Receiver {
	return &Receiver{
		converter:  convert.New(format),
		demod:      demod.New(fec.New()),
		sampleRate: 2083333,
	}
}

// HandleSamples converts one raw sample block timestamped at
// timestampMs and returns every message fully demodulated from it plus
// any carried-over tail. The trailing NumTrailingSamples() phase
// samples that could not yet be confirmed as message-free are kept for
// the next call.
func (r *Receiver) HandleSamples(timestampMs int64, block []byte) []demod.RawMessage {
	phases := r.converter.Convert(block)

	tailLen := len(r.tail)
	buf := make([]uint16, tailLen+len(phases))
	copy(buf, r.tail)
	copy(buf[tailLen:], phases)

	baseTimestampMs := timestampMs - int64(float64(tailLen)*1000.0/r.sampleRate)
	msgs := r.demod.Demodulate(baseTimestampMs, buf)

	trailing := demod.NumTrailingSamples()
	if trailing > len(buf) {
		trailing = len(buf)
	}
	r.tail = append(r.tail[:0], buf[len(buf)-trailing:]...)

	return msgs
}

// Reset discards any carried-over phase tail, used when the sample
// source restarts or seeks.
func (r *Receiver) Reset() {
	r.tail = r.tail[:0]
}
