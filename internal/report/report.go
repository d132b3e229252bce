// Package report writes progress and failures as GitHub Actions workflow
// commands (::notice::, ::error::) through a zap logger.
package report

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

type Reporter struct {
	z    *zap.Logger
	exit func(code int)
}

type Option func(*Reporter)

// WithExit replaces os.Exit, for tests.
func WithExit(exit func(code int)) Option {
	return func(r *Reporter) {
		r.exit = exit
	}
}

func New(w io.Writer, verbose bool, opts ...Option) *Reporter {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	core := zapcore.NewCore(
		NewEncoder(),
		zapcore.Lock(zapcore.AddSync(w)),
		zap.NewAtomicLevelAt(level),
	)

	r := &Reporter{
		z:    zap.New(core),
		exit: os.Exit,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FromLogger wraps an existing logger, e.g. one built on zaptest/observer.
func FromLogger(z *zap.Logger, opts ...Option) *Reporter {
	r := &Reporter{z: z, exit: os.Exit}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EncoderConfig is the console encoder config underneath the workflow
// command prefix: message only, no timestamps.
func EncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
}

// NewEncoder renders each entry as one workflow command line, the level
// choosing the command.
func NewEncoder() zapcore.Encoder {
	return workflowEncoder{zapcore.NewConsoleEncoder(EncoderConfig())}
}

var pool = buffer.NewPool()

type workflowEncoder struct {
	zapcore.Encoder
}

func (e workflowEncoder) Clone() zapcore.Encoder {
	return workflowEncoder{e.Encoder.Clone()}
}

func (e workflowEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	line, err := e.Encoder.EncodeEntry(ent, fields)
	if err != nil {
		return nil, err
	}
	defer line.Free()

	out := pool.Get()
	out.AppendString(command(ent.Level))
	_, _ = out.Write(line.Bytes())
	return out, nil
}

func command(l zapcore.Level) string {
	switch {
	case l == zapcore.DebugLevel:
		return "::debug::"
	case l == zapcore.InfoLevel:
		return "::notice::"
	case l == zapcore.WarnLevel:
		return "::warning::"
	default:
		return "::error::"
	}
}

func (r *Reporter) Logger() *zap.SugaredLogger {
	return r.z.Sugar()
}

// Fail reports err as the run's terminal failure and exits with status 1.
func (r *Reporter) Fail(err error) {
	r.z.Error(err.Error())
	_ = r.z.Sync()
	r.exit(1)
}

func (r *Reporter) Sync() error {
	return r.z.Sync()
}
