// Package fec implements the Reed-Solomon forward error correction
// used by the three UAT frame shapes: downlink short, downlink long,
// and the 6-block-interleaved uplink.
package fec

const (
	// downlinkPoly and uplinkPoly are the GF(256) generator polynomials.
	// See DESIGN.md: the defining header was not present in the
	// retrieved source tree, so both use the standard dump978
	// primitive polynomial x^8+x^7+x^2+x+1.
	downlinkPoly = 0x187
	uplinkPoly   = 0x187

	fcr  = 120
	prim = 1

	// Downlink short: 18 data + 12 parity.
	downlinkShortDataBytes = 18
	downlinkShortNRoots    = 12
	downlinkShortPad       = 225

	// Downlink long: 34 data + 14 parity.
	downlinkLongDataBytes = 34
	downlinkLongNRoots    = 14
	downlinkLongPad       = 207

	// DownlinkLongBytes is the total frame length FEC.CorrectDownlink
	// expects as input (data+parity of the long shape; short frames are
	// the first DownlinkShortBytes of that same buffer).
	DownlinkLongBytes  = downlinkLongDataBytes + downlinkLongNRoots
	DownlinkShortBytes = downlinkShortDataBytes + downlinkShortNRoots

	// Uplink: 6 interleaved blocks of 72 data + 20 parity.
	uplinkBlocksPerFrame = 6
	uplinkBlockDataBytes = 72
	uplinkNRoots         = 20
	uplinkPad            = 163
	uplinkBlockBytes     = uplinkBlockDataBytes + uplinkNRoots

	// UplinkBytes is the total interleaved frame length.
	UplinkBytes     = uplinkBlocksPerFrame * uplinkBlockBytes
	UplinkDataBytes = uplinkBlocksPerFrame * uplinkBlockDataBytes
)

// FEC holds the three Reed-Solomon decoders used by the UAT frame
// shapes.
type FEC struct {
	downlinkShort *codec
	downlinkLong  *codec
	uplink        *codec
}

// New builds a FEC with all three decoders initialized.
func New() *FEC {
	return &FEC{
		downlinkShort: newCodec(downlinkPoly, fcr, prim, downlinkShortNRoots, downlinkShortPad),
		downlinkLong:  newCodec(downlinkPoly, fcr, prim, downlinkLongNRoots, downlinkLongPad),
		uplink:        newCodec(uplinkPoly, fcr, prim, uplinkNRoots, uplinkPad),
	}
}

// CorrectDownlink attempts long-frame decode first, then falls back to
// short-frame decode on the original input: a long
// decode is accepted if it leaves <=7 corrected symbols and the type
// field (top 5 bits of byte 0) is nonzero; a short decode is accepted
// if it leaves <=6 corrected symbols and that field is zero.
func (f *FEC) CorrectDownlink(raw []byte) (data []byte, errors int, ok bool) {
	if len(raw) != DownlinkLongBytes {
		return nil, 0, false
	}

	long := make([]byte, len(raw))
	copy(long, raw)
	n := f.downlinkLong.decode(long)
	if n >= 0 && n <= 7 && (long[0]>>3) != 0 {
		return long[:downlinkLongDataBytes], n, true
	}

	short := make([]byte, DownlinkShortBytes)
	copy(short, raw[:DownlinkShortBytes])
	n = f.downlinkShort.decode(short)
	if n >= 0 && n <= 6 && (short[0]>>3) == 0 {
		return short[:downlinkShortDataBytes], n, true
	}

	return nil, 0, false
}

// CorrectUplink deinterleaves the 6 blocks (stride uplinkBlocksPerFrame)
// and error-corrects each independently; any block needing more than 10
// corrections fails the whole frame.
func (f *FEC) CorrectUplink(raw []byte) (data []byte, errors int, ok bool) {
	if len(raw) != UplinkBytes {
		return nil, 0, false
	}

	out := make([]byte, 0, UplinkDataBytes)
	total := 0

	for block := 0; block < uplinkBlocksPerFrame; block++ {
		blockData := make([]byte, uplinkBlockBytes)
		for i := 0; i < uplinkBlockBytes; i++ {
			blockData[i] = raw[i*uplinkBlocksPerFrame+block]
		}

		n := f.uplink.decode(blockData)
		if n < 0 || n > 10 {
			return nil, 0, false
		}
		total += n
		out = append(out, blockData[:uplinkBlockDataBytes]...)
	}

	return out, total, true
}

// EncodeDownlinkLong builds a valid long-frame codeword (34 data bytes
// in, 48 bytes out) for testing and for any future transmit-side use.
// The receive pipeline never calls this.
func (f *FEC) EncodeDownlinkLong(data []byte) []byte {
	return f.downlinkLong.encode(data)
}

// EncodeDownlinkShort builds a valid short-frame codeword (18 data
// bytes in, 30 bytes out).
func (f *FEC) EncodeDownlinkShort(data []byte) []byte {
	return f.downlinkShort.encode(data)
}

// EncodeUplink builds a valid interleaved uplink frame (432 data bytes
// in, 552 bytes out).
func (f *FEC) EncodeUplink(data []byte) []byte {
	out := make([]byte, UplinkBytes)
	for block := 0; block < uplinkBlocksPerFrame; block++ {
		blockData := data[block*uplinkBlockDataBytes : (block+1)*uplinkBlockDataBytes]
		codeword := f.uplink.encode(blockData)
		for i := 0; i < uplinkBlockBytes; i++ {
			out[i*uplinkBlocksPerFrame+block] = codeword[i]
		}
	}
	return out
}
