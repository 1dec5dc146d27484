package app

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uat978/internal/config"
	"uat978/internal/demod"
	"uat978/internal/message"
)

func rawMessageFixture() demod.RawMessage {
	return demod.RawMessage{Payload: []byte{0x00, 0x01, 0x02, 0x03}, TimestampMs: 1000}
}

func messageFixture() message.Message {
	return message.Message{Address: 0xABCDEF, TimestampMs: 1000}
}

func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.InputSource = config.SourceStdin
	cfg.PurgeTimeoutS = 1
	cfg.LogLevel = "error"
	cfg.LogDir = t.TempDir()
	return cfg
}

func TestNewBuildsApplicationFromStdinConfig(t *testing.T) {
	app, err := New(testConfig(t))
	require.NoError(t, err)
	assert.NotNil(t, app)
	assert.NotNil(t, app.tracker)
	assert.NotNil(t, app.receiver)
	app.cancel()
}

func TestNewRejectsUnknownSampleFormat(t *testing.T) {
	cfg := testConfig(t)
	cfg.SampleFormat = "bogus"
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNewRejectsFileSourceMissingPath(t *testing.T) {
	cfg := testConfig(t)
	cfg.InputSource = config.SourceFile
	cfg.FilePath = ""
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestShowVersionDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() { ShowVersion() })
}

func TestRunShutsDownCleanlyOnContextCancel(t *testing.T) {
	cfg := testConfig(t)
	app, err := New(cfg)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		app.Run()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	app.cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestFanoutRawDoesNotPanicWithStdoutEnabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.RawStdout = true
	app, err := New(cfg)
	require.NoError(t, err)
	defer app.cancel()

	// fanoutRaw only prints; verify it does not panic on a short
	// payload with the RawStdout sink enabled.
	assert.NotPanics(t, func() {
		app.fanoutRaw(rawMessageFixture())
	})
}

func TestFanoutJSONSkippedWhenNoSinkConfigured(t *testing.T) {
	cfg := testConfig(t)
	app, err := New(cfg)
	require.NoError(t, err)
	defer app.cancel()

	var buf bytes.Buffer
	app.logger.SetOutput(&buf)
	// No json sink configured; fanoutJSON should be a no-op and not log.
	app.fanoutJSON(messageFixture())
	assert.Empty(t, buf.String())
}

func TestShutdownAfterContextTimeout(t *testing.T) {
	cfg := testConfig(t)
	app, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	app.ctx = ctx

	app.start()
	<-app.ctx.Done()
	app.shutdown()
}
