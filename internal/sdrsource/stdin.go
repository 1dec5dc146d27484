package sdrsource

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"uat978/internal/convert"
)

// Stdin reads raw sample bytes from an io.Reader (os.Stdin in
// production), dispatching fixed-size blocks to the consumer until EOF
// or context cancellation.
type Stdin struct {
	logger   *logrus.Logger
	reader   io.Reader
	format   convert.SampleFormat
	consumer Consumer
}

// NewStdin builds a Stdin source reading from r in the given sample
// format.
func NewStdin(logger *logrus.Logger, r io.Reader, format convert.SampleFormat) *Stdin {
	return &Stdin{logger: logger, reader: r, format: format}
}

func (s *Stdin) Init() error { return nil }

func (s *Stdin) Format() convert.SampleFormat { return s.format }

func (s *Stdin) SetConsumer(c Consumer) { s.consumer = c }

func (s *Stdin) Stop() error { return nil }

// Start reads BlockSize-aligned chunks until EOF or ctx is done,
// timestamping each block with the wall-clock time it was read.
func (s *Stdin) Start(ctx context.Context) error {
	if s.consumer == nil {
		return fmt.Errorf("sdrsource: Stdin.Start called before SetConsumer")
	}

	buf := make([]byte, BlockSize)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := io.ReadFull(s.reader, buf)
		if n > 0 {
			block := make([]byte, n)
			copy(block, buf[:n])
			s.consumer(time.Now().UnixMilli(), block, nil)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			s.logger.Debug("sdrsource: stdin EOF")
			return nil
		}
		if err != nil {
			s.consumer(time.Now().UnixMilli(), nil, fmt.Errorf("sdrsource: stdin read: %w", err))
			return err
		}
	}
}
