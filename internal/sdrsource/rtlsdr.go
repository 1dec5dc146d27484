// RTLSDR wraps gortlsdr's device API behind the Source interface,
// tuned for the 978MHz UAT band.
package sdrsource

import (
	"context"
	"errors"
	"fmt"

	rtlsdr "github.com/jpoirier/gortlsdr"
	"github.com/sirupsen/logrus"

	"uat978/internal/convert"
)

// DefaultFrequencyHz and DefaultSampleRateHz are the UAT 978MHz
// receiver's tuning defaults.
const (
	DefaultFrequencyHz  = 978_000_000
	DefaultSampleRateHz = 2_083_333
)

// RTLSDROptions configures device tuning.
type RTLSDROptions struct {
	DeviceIndex int
	FrequencyHz uint32
	SampleRate  uint32
	GainDB      int // 0 means auto gain
	PPMError    int
	Antenna     string
}

// RTLSDR captures CU8 samples from an RTL-SDR dongle via gortlsdr.
type RTLSDR struct {
	logger *logrus.Logger
	opts   RTLSDROptions

	device   *rtlsdr.Context
	isOpen   bool
	cancelFn context.CancelFunc
	consumer Consumer
}

// NewRTLSDR builds an RTLSDR source with the given tuning options.
func NewRTLSDR(logger *logrus.Logger, opts RTLSDROptions) *RTLSDR {
	return &RTLSDR{logger: logger, opts: opts}
}

func (r *RTLSDR) Format() convert.SampleFormat { return convert.CU8 }

func (r *RTLSDR) SetConsumer(c Consumer) { r.consumer = c }

// Init opens and configures the device: frequency, sample rate, gain,
// PPM correction, and (if non-empty) antenna port.
func (r *RTLSDR) Init() error {
	count := rtlsdr.GetDeviceCount()
	if count == 0 {
		return errors.New("sdrsource: no RTL-SDR devices found")
	}
	if r.opts.DeviceIndex >= count {
		return fmt.Errorf("sdrsource: device index %d out of range (0-%d)", r.opts.DeviceIndex, count-1)
	}

	dev, err := rtlsdr.Open(r.opts.DeviceIndex)
	if err != nil {
		return fmt.Errorf("sdrsource: open device: %w", err)
	}
	r.device = dev
	r.isOpen = true

	if err := r.device.SetCenterFreq(int(r.opts.FrequencyHz)); err != nil {
		return fmt.Errorf("sdrsource: set frequency: %w", err)
	}
	if err := r.device.SetSampleRate(int(r.opts.SampleRate)); err != nil {
		return fmt.Errorf("sdrsource: set sample rate: %w", err)
	}
	if err := r.device.SetFreqCorrection(r.opts.PPMError); err != nil {
		r.logger.WithError(err).Debug("sdrsource: ppm correction not supported by device")
	}

	if r.opts.GainDB == 0 {
		if err := r.device.SetTunerGainMode(false); err != nil {
			return fmt.Errorf("sdrsource: set auto gain: %w", err)
		}
	} else {
		if err := r.device.SetTunerGainMode(true); err != nil {
			return fmt.Errorf("sdrsource: set manual gain mode: %w", err)
		}
		if err := r.device.SetTunerGain(r.opts.GainDB * 10); err != nil {
			return fmt.Errorf("sdrsource: set gain: %w", err)
		}
	}

	if err := r.device.ResetBuffer(); err != nil {
		return fmt.Errorf("sdrsource: reset buffer: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"device_index": r.opts.DeviceIndex,
		"frequency":    r.opts.FrequencyHz,
		"sample_rate":  r.opts.SampleRate,
		"gain":         r.opts.GainDB,
	}).Info("sdrsource: RTL-SDR configured")

	return nil
}

// Start begins async capture and blocks until ctx is canceled.
func (r *RTLSDR) Start(ctx context.Context) error {
	if !r.isOpen {
		return errors.New("sdrsource: RTLSDR.Start called before Init")
	}
	if r.consumer == nil {
		return errors.New("sdrsource: RTLSDR.Start called before SetConsumer")
	}

	captureCtx, cancel := context.WithCancel(ctx)
	r.cancelFn = cancel

	callback := func(data []byte) {
		block := make([]byte, len(data))
		copy(block, data)
		select {
		case <-captureCtx.Done():
		default:
			r.consumer(nowMillis(), block, nil)
		}
	}

	go func() {
		defer func() {
			if p := recover(); p != nil {
				r.logger.WithField("panic", p).Error("sdrsource: RTL-SDR capture panic")
			}
		}()
		if err := r.device.ReadAsync(callback, nil, 0, 16*BlockSize); err != nil {
			r.logger.WithError(err).Error("sdrsource: RTL-SDR read async failed")
		}
	}()

	<-captureCtx.Done()

	if err := r.device.CancelAsync(); err != nil {
		r.logger.WithError(err).Warn("sdrsource: cancel async failed")
	}
	return nil
}

// Stop closes the device.
func (r *RTLSDR) Stop() error {
	if r.cancelFn != nil {
		r.cancelFn()
	}
	if r.device != nil {
		return r.device.Close()
	}
	return nil
}
