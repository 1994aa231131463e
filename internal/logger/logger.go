package logger

import (
	"activation-portal/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. Production uses JSON output with
// ISO8601 timestamps; everything else gets the zap development encoder.
func New(cfg *config.Config) (*zap.Logger, error) {
	if !cfg.IsProduction() {
		log, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		return log.With(zap.String("env", cfg.AppEnv), zap.String("service_name", cfg.AppName)), nil
	}

	zc := zap.NewProductionConfig()
	zc.EncoderConfig.TimeKey = "timestamp"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.EncoderConfig.StacktraceKey = "stacktrace"
	zc.EncoderConfig.LevelKey = "severity"
	zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	zc.EncoderConfig.CallerKey = "caller"
	zc.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	zc.Encoding = "json"
	zc.OutputPaths = []string{"stdout"}
	zc.ErrorOutputPaths = []string{"stderr"}

	log, err := zc.Build()
	if err != nil {
		return nil, err
	}

	return log.With(zap.String("env", cfg.AppEnv), zap.String("service_name", cfg.AppName)), nil
}
