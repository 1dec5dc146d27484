package sdrsource

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"uat978/internal/convert"
)

// File replays a recorded sample capture from disk, optionally
// throttled to simulate the real sample rate (useful for testing the
// pipeline against captured data without an SDR attached).
type File struct {
	logger   *logrus.Logger
	path     string
	format   convert.SampleFormat
	throttle bool
	rate     float64 // samples/sec per channel

	file     *os.File
	consumer Consumer
}

// NewFile builds a File source replaying path in the given format. If
// throttle is true, Start paces block delivery to rate samples/sec.
func NewFile(logger *logrus.Logger, path string, format convert.SampleFormat, throttle bool, rate float64) *File {
	return &File{logger: logger, path: path, format: format, throttle: throttle, rate: rate}
}

func (f *File) Format() convert.SampleFormat { return f.format }

func (f *File) SetConsumer(c Consumer) { f.consumer = c }

func (f *File) Init() error {
	file, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("sdrsource: open %s: %w", f.path, err)
	}
	f.file = file
	return nil
}

func (f *File) Stop() error {
	if f.file != nil {
		return f.file.Close()
	}
	return nil
}

func (f *File) Start(ctx context.Context) error {
	if f.consumer == nil {
		return fmt.Errorf("sdrsource: File.Start called before SetConsumer")
	}
	if f.file == nil {
		return fmt.Errorf("sdrsource: File.Start called before Init")
	}

	bytesPerSample := convert.BytesPerSample(f.format)
	blockSamples := BlockSize / bytesPerSample
	blockBytes := blockSamples * bytesPerSample
	buf := make([]byte, blockBytes)

	var blockDuration time.Duration
	if f.throttle && f.rate > 0 {
		blockDuration = time.Duration(float64(blockSamples) / f.rate * float64(time.Second))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		start := time.Now()
		n, err := io.ReadFull(f.file, buf)
		if n > 0 {
			block := make([]byte, n)
			copy(block, buf[:n])
			f.consumer(start.UnixMilli(), block, nil)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			f.logger.Debug("sdrsource: file replay complete")
			return nil
		}
		if err != nil {
			f.consumer(start.UnixMilli(), nil, fmt.Errorf("sdrsource: file read: %w", err))
			return err
		}

		if blockDuration > 0 {
			elapsed := time.Since(start)
			if remaining := blockDuration - elapsed; remaining > 0 {
				select {
				case <-time.After(remaining):
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}
