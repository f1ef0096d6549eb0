package logroute

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	slogzap "github.com/samber/slog-zap/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type fileOptions struct {
	Path string `json:"path" yaml:"path"`
	// Format selects the zap encoding: "json" (default) or "console".
	Format string `json:"format" yaml:"format"`

	MaxSizeMB  int  `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int  `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int  `json:"max_age_days" yaml:"max_age_days"`
	Compress   bool `json:"compress" yaml:"compress"`
}

func (o fileOptions) validate() error {
	if o.Path == "" {
		return errors.New("file sink needs a path")
	}

	switch o.Format {
	case "", "json", "console":
	default:
		return errors.Errorf("unknown file format %q, allowed options are only [console, json]", o.Format)
	}

	return nil
}

func newFileSink(name string, c HandlerConfig, env SinkEnv) (Sink, error) {
	var o fileOptions
	if err := DecodeOptions(c.Options, &o); err != nil {
		return nil, err
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	if dir := filepath.Dir(o.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "cannot create log directory %q", dir)
		}
	}

	rotator := &lumberjack.Logger{
		Filename:   o.Path,
		MaxSize:    o.MaxSizeMB,
		MaxBackups: o.MaxBackups,
		MaxAge:     o.MaxAgeDays,
		Compress:   o.Compress,
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder

	var encoder zapcore.Encoder
	if o.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(rotator), zap.DebugLevel)
	zapLogger := zap.New(core)

	handler := slogzap.Option{Level: slog.LevelDebug, Logger: zapLogger}.NewZapHandler()

	return &handlerSink{
		h: handler,
		closeFn: func() error {
			_ = zapLogger.Sync()
			return rotator.Close()
		},
	}, nil
}

func validateFileSink(name string, c HandlerConfig) error {
	var o fileOptions
	if err := DecodeOptions(c.Options, &o); err != nil {
		return err
	}

	return o.validate()
}

func init() {
	RegisterSinkKind(SinkKindFile, SinkKind{
		New:      newFileSink,
		Validate: validateFileSink,
	})
}
