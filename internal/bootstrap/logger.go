package bootstrap

import (
	"io"
	"os"

	"blackswan/pkg/logging"
	"blackswan/pkg/telemetry"
)

// InitLogger builds the zap logger at the configured level
func InitLogger(cfg *Config) (*logging.ZapLogger, error) {
	return logging.NewZapLogger(cfg.System.LogLevel, logging.WithServiceName(cfg.App.Name))
}

// initTelemetry is swapped in tests
var initTelemetry = InitTelemetry

// InitTelemetry installs the OTel providers. Spans go to stderr only when
// trace_stdout is set so command output on stdout stays clean.
func InitTelemetry(cfg *Config) (*telemetry.Telemetry, error) {
	var traceOut io.Writer = io.Discard
	if cfg.Telemetry.TraceStdout {
		traceOut = os.Stderr
	}
	return telemetry.Setup(cfg.App.Name, telemetry.Options{TraceWriter: traceOut})
}
