package logroute

import (
	"log/slog"

	"github.com/pkg/errors"
	slogzap "github.com/samber/slog-zap/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type consoleOptions struct {
	// Format selects the zap encoding: "json" (default) or "console".
	Format string `json:"format" yaml:"format"`
	// Stream selects the target: "stdout" (default) or "stderr".
	Stream string `json:"stream" yaml:"stream"`
}

func (o consoleOptions) validate() error {
	switch o.Format {
	case "", "json", "console":
	default:
		return errors.Errorf("unknown console format %q, allowed options are only [console, json]", o.Format)
	}

	switch o.Stream {
	case "", "stdout", "stderr":
	default:
		return errors.Errorf("unknown console stream %q, allowed options are only [stdout, stderr]", o.Stream)
	}

	return nil
}

func newConsoleSink(name string, c HandlerConfig, env SinkEnv) (Sink, error) {
	var o consoleOptions
	if err := DecodeOptions(c.Options, &o); err != nil {
		return nil, err
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	zapC := zap.NewProductionConfig()
	zapC.Level.SetLevel(zap.DebugLevel)
	zapC.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	zapC.DisableCaller = true
	// dropping records is the document's call, not the encoder's
	zapC.Sampling = nil

	if o.Format == "console" {
		zapC.Encoding = "console"
	} else {
		zapC.Encoding = "json"
	}

	stream := o.Stream
	if stream == "" {
		stream = "stdout"
	}
	zapC.OutputPaths = []string{stream}
	zapC.ErrorOutputPaths = []string{"stderr"}

	zapLogger, err := zapC.Build()
	if err != nil {
		return nil, errors.Wrap(err, "cannot build console sink")
	}

	handler := slogzap.Option{Level: slog.LevelDebug, Logger: zapLogger}.NewZapHandler()

	return &handlerSink{
		h: handler,
		closeFn: func() error {
			// Sync on a terminal stream fails with EINVAL, nothing to act on
			_ = zapLogger.Sync()
			return nil
		},
	}, nil
}

func validateConsoleSink(name string, c HandlerConfig) error {
	var o consoleOptions
	if err := DecodeOptions(c.Options, &o); err != nil {
		return err
	}

	return o.validate()
}

func init() {
	RegisterSinkKind(SinkKindConsole, SinkKind{
		New:      newConsoleSink,
		Validate: validateConsoleSink,
	})
}
