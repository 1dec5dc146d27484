// Package app wires every pipeline stage together into one running
// process: sample source, receiver (demod+FEC), message parser,
// tracker, reporters, and network fan-out. The lifecycle follows the
// construct/start/run/shutdown shape (signal-driven graceful shutdown,
// WaitGroup drain with a timeout) across a multi-source, multi-sink
// pipeline.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"uat978/internal/config"
	"uat978/internal/convert"
	"uat978/internal/demod"
	"uat978/internal/httpapi"
	"uat978/internal/logging"
	"uat978/internal/message"
	"uat978/internal/metrics"
	"uat978/internal/netio"
	"uat978/internal/rawproto"
	"uat978/internal/receiver"
	"uat978/internal/report"
	"uat978/internal/sdrsource"
	"uat978/internal/track"
)

var (
	defaultMetricsOnce sync.Once
	defaultMetrics     *metrics.Metrics
)

// Application owns every long-lived component and its lifecycle.
type Application struct {
	config config.Config
	logger *logrus.Logger

	source   sdrsource.Source
	receiver *receiver.Receiver
	tracker  *track.Tracker
	metrics  *metrics.Metrics

	rawListener  *netio.Listener
	jsonListener *netio.Listener

	historyWriter *report.HistoryWriter
	tsvReporter   *report.TSVReporter
	tsvFile       *os.File

	httpServer *httpapi.Server
	httpSrv    *http.Server

	logRotator *logging.LogRotator

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an Application from cfg and initializes every
// component. The tracker's background goroutine starts here (in
// track.New); the sample source, listeners, writers and HTTP server
// start when Run is called.
func New(cfg config.Config) (*Application, error) {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	if cfg.Verbose {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)

	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config: cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.LogDir != "" {
		rotator, err := logging.NewLogRotator(cfg.LogDir, false, logger)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("app: init log rotator: %w", err)
		}
		app.logRotator = rotator
		writer, err := rotator.GetWriter()
		if err != nil {
			cancel()
			return nil, fmt.Errorf("app: log rotator writer: %w", err)
		}
		logger.SetOutput(io.MultiWriter(os.Stdout, writer))
	}

	if err := app.initializeComponents(); err != nil {
		cancel()
		if app.logRotator != nil {
			app.logRotator.Close()
		}
		return nil, fmt.Errorf("app: initialize components: %w", err)
	}
	return app, nil
}

func (app *Application) initializeComponents() error {
	format, err := parseSampleFormat(app.config.SampleFormat)
	if err != nil {
		return err
	}

	switch app.config.InputSource {
	case config.SourceStdin:
		app.source = sdrsource.NewStdin(app.logger, os.Stdin, format)
	case config.SourceFile:
		app.source = sdrsource.NewFile(app.logger, app.config.FilePath, format, app.config.FileThrottle, float64(app.config.SampleRate))
	case config.SourceSDR:
		app.source = sdrsource.NewRTLSDR(app.logger, sdrsource.RTLSDROptions{
			DeviceIndex: app.config.DeviceIndex,
			FrequencyHz: app.config.FrequencyHz,
			SampleRate:  app.config.SampleRate,
			GainDB:      app.config.GainDB,
			PPMError:    app.config.PPMError,
			Antenna:     app.config.Antenna,
		})
	default:
		return fmt.Errorf("app: unknown input source %q", app.config.InputSource)
	}

	if err := app.source.Init(); err != nil {
		return fmt.Errorf("app: init sample source: %w", err)
	}

	app.receiver = receiver.New(format)
	app.tracker = track.New(app.logger, time.Duration(app.config.PurgeTimeoutS)*time.Second)
	// The collectors live in the global registry that /metrics serves,
	// which accepts each collector once per process, so every
	// Application in the process shares one Metrics set.
	defaultMetricsOnce.Do(func() {
		defaultMetrics = metrics.New(prometheus.DefaultRegisterer)
	})
	app.metrics = defaultMetrics

	if len(app.config.RawTCPListen) > 0 {
		app.rawListener = netio.NewListener("raw-port", app.logger)
	}
	if len(app.config.JSONTCPListen) > 0 {
		app.jsonListener = netio.NewListener("json-port", app.logger)
	}

	if app.config.SnapshotDir != "" {
		hw, err := report.NewHistoryWriter(app.config.SnapshotDir, app.config.HistoryCount, app.logger)
		if err != nil {
			return fmt.Errorf("app: init snapshot history: %w", err)
		}
		app.historyWriter = hw
	}

	if app.config.TSVReportPath != "" {
		f, err := os.OpenFile(app.config.TSVReportPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("app: open tsv report file: %w", err)
		}
		app.tsvFile = f
		app.tsvReporter = report.NewTSVReporter(f)
	}

	if app.config.HTTPAddr != "" {
		app.httpServer = httpapi.New(app.logger, func() report.Snapshot {
			return report.BuildSnapshot(app.tracker.Snapshot(), time.Now())
		})
		app.httpSrv = &http.Server{Addr: app.config.HTTPAddr, Handler: app.httpServer.Handler()}
	}

	return nil
}

func parseSampleFormat(s string) (convert.SampleFormat, error) {
	switch s {
	case "cu8", "":
		return convert.CU8, nil
	case "cs8":
		return convert.CS8, nil
	case "cs16":
		return convert.CS16H, nil
	case "cf32":
		return convert.CF32H, nil
	default:
		return 0, fmt.Errorf("app: unknown sample format %q", s)
	}
}

// Run starts every component, blocks until SIGINT/SIGTERM or an
// unrecoverable error, then shuts down gracefully.
func (app *Application) Run() error {
	app.logger.WithFields(logrus.Fields{
		"version":      Version,
		"input_source": app.config.InputSource,
		"frequency":    app.config.FrequencyHz,
		"sample_rate":  app.config.SampleRate,
	}).Info("app: starting UAT978 receiver")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	app.start()

	select {
	case sig := <-sigChan:
		app.logger.WithField("signal", sig).Info("app: received shutdown signal")
	case <-app.ctx.Done():
	}

	app.shutdown()
	return nil
}

func (app *Application) start() {
	app.source.SetConsumer(app.handleSamples)

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		if err := app.source.Start(app.ctx); err != nil {
			app.logger.WithError(err).Error("app: sample source stopped")
			app.metrics.SourceErrors.Inc()
		}
	}()

	if app.rawListener != nil {
		for _, addr := range app.config.RawTCPListen {
			if err := app.rawListener.Listen(addr); err != nil {
				app.logger.WithError(err).Error("app: raw listener failed to bind")
			}
		}
	}
	if app.jsonListener != nil {
		for _, addr := range app.config.JSONTCPListen {
			if err := app.jsonListener.Listen(addr); err != nil {
				app.logger.WithError(err).Error("app: json listener failed to bind")
			}
		}
	}

	if app.historyWriter != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			report.Run(app.ctx, time.Duration(app.config.HistoryIntervalS)*time.Second, func() report.Snapshot {
				return report.BuildSnapshot(app.tracker.Snapshot(), time.Now())
			}, app.historyWriter, app.logger)
		}()
	}

	if app.tsvReporter != nil {
		app.tsvReporter.Start()
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			app.runTSVReports()
		}()
	}

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.reportAircraftGauge()
	}()

	if app.httpSrv != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			if err := app.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				app.logger.WithError(err).Error("app: http server stopped")
			}
		}()
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			app.httpServer.BroadcastLoop(time.Second, app.ctx.Done())
		}()
	}

	if app.logRotator != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			app.logRotator.Start(app.ctx)
		}()
	}

	app.logger.Info("app: all components started")
}

// handleSamples is the sample source's Consumer: demodulate, fan out
// the raw frame, parse it, and hand decoded messages to the tracker.
func (app *Application) handleSamples(timestampMs int64, block []byte, err error) {
	if err != nil {
		app.logger.WithError(err).Warn("app: sample source error")
		app.metrics.SourceErrors.Inc()
		return
	}

	app.metrics.BlocksProcessed.Inc()
	raws := app.receiver.HandleSamples(timestampMs, block)

	var decoded []message.Message
	for _, raw := range raws {
		direction := "downlink"
		if raw.Uplink {
			direction = "uplink"
		}
		app.metrics.FramesDemodulated.WithLabelValues(direction).Inc()

		app.fanoutRaw(raw)

		if raw.Uplink {
			app.metrics.MessagesDiscarded.Inc()
			continue
		}

		msg, ok := message.Parse(raw)
		if !ok {
			app.metrics.MessagesDiscarded.Inc()
			continue
		}
		app.metrics.MessagesParsed.Inc()
		app.fanoutJSON(msg)
		decoded = append(decoded, msg)
	}

	if len(decoded) > 0 {
		app.tracker.HandleMessages(decoded)
	}
}

// fanoutRaw writes raw as a raw-message-text line to every configured
// sink: the raw TCP listener and/or stdout.
func (app *Application) fanoutRaw(raw demod.RawMessage) {
	if app.rawListener == nil && !app.config.RawStdout {
		return
	}

	line := rawproto.FormatLine(rawproto.Line{
		Payload:     raw.Payload,
		Uplink:      raw.Uplink,
		Errors:      raw.Errors,
		TimestampMs: raw.TimestampMs,
		HasTime:     true,
	})

	if app.rawListener != nil {
		app.rawListener.Broadcast(line)
	}
	if app.config.RawStdout {
		fmt.Println(line)
	}
}

// fanoutJSON writes msg as a single-line JSON document to every
// configured JSON sink: the json-port TCP listener and/or stdout,
// mirroring dump978's --json-port per-message stream (distinct from
// the periodic aircraft.json snapshot internal/report writes).
func (app *Application) fanoutJSON(msg message.Message) {
	if app.jsonListener == nil && !app.config.JSONStdout {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		app.logger.WithError(err).Warn("app: marshal message json")
		return
	}

	if app.jsonListener != nil {
		app.jsonListener.Broadcast(string(data))
	}
	if app.config.JSONStdout {
		fmt.Println(string(data))
	}
}

func (app *Application) reportAircraftGauge() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			app.metrics.AircraftTracked.Set(float64(app.tracker.Count()))
		}
	}
}

func (app *Application) runTSVReports() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			app.tsvReporter.Report(app.tracker.Snapshot(), time.Now())
		}
	}
}

func (app *Application) shutdown() {
	app.logger.Info("app: shutting down")
	app.cancel()

	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		app.logger.Info("app: all goroutines finished")
	case <-time.After(5 * time.Second):
		app.logger.Warn("app: shutdown timeout, forcing exit")
	}

	if err := app.source.Stop(); err != nil {
		app.logger.WithError(err).Warn("app: stop sample source")
	}
	app.tracker.Close()
	if app.rawListener != nil {
		app.rawListener.Close()
	}
	if app.jsonListener != nil {
		app.jsonListener.Close()
	}
	if app.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		app.httpSrv.Shutdown(ctx)
	}
	if app.tsvFile != nil {
		app.tsvFile.Close()
	}
	if app.logRotator != nil {
		app.logRotator.Close()
	}

	app.logger.Info("app: shutdown complete")
}
