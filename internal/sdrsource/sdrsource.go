// Package sdrsource provides the sample source variants that feed
// internal/receiver: standard input, a file (with optional realtime
// throttling), and an RTL-SDR device, each driven by the same
// context-cancelable goroutine lifecycle.
package sdrsource

import (
	"context"
	"time"

	"uat978/internal/convert"
)

// Consumer receives one decoded sample block. timestampMs is the
// receive time of the block's first sample; err is non-nil on a
// hardware/IO failure.
type Consumer func(timestampMs int64, block []byte, err error)

// Source is the common interface all sample origins implement.
type Source interface {
	Init() error
	Start(ctx context.Context) error
	Stop() error
	Format() convert.SampleFormat
	SetConsumer(Consumer)
}

// BlockSize is the default read chunk size in bytes, matching the
// teacher's 16KB RTL-SDR buffer chunk.
const BlockSize = 16 * 1024

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
