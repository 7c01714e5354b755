package logger

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hatlonely/customobj/log/writer"
)

// SLogOptions 日志初始化选项
type SLogOptions struct {
	// debug, info, warn, error
	Level string `cfg:"level" def:"info" validate:"omitempty,oneof=debug info warn error"`

	Format string `cfg:"format" def:"text" validate:"omitempty,oneof=text json"`

	// 输出目标，为空时输出到 stdout
	Output *writer.Options `cfg:"output"`

	// 为空时使用 RFC3339
	TimeFormat string `cfg:"timeFormat"`

	AddSource bool `cfg:"addSource"`

	// 每条日志都带上的字段，比如 service、env
	Fields map[string]any `cfg:"fields"`
}

// SLog 基于 log/slog 的日志器，级别可以在运行时调整
type SLog struct {
	slogger *slog.Logger
	level   *slog.LevelVar
	closer  writer.Writer
}

func NewSLogWithOptions(options *SLogOptions) (*SLog, error) {
	if options == nil {
		return nil, errors.New("options cannot be nil")
	}

	level, err := parseLevel(options.Level)
	if err != nil {
		return nil, errors.WithMessage(err, "invalid log level")
	}
	lv := &slog.LevelVar{}
	lv.Set(level)

	w, err := writer.NewWithOptions(options.Output)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create writer")
	}

	handler, err := newHandler(w, lv, options)
	if err != nil {
		_ = w.Close()
		return nil, err
	}

	slogger := slog.New(handler)
	if len(options.Fields) > 0 {
		slogger = slogger.With(sortedFields(options.Fields)...)
	}

	return &SLog{slogger: slogger, level: lv, closer: w}, nil
}

func newHandler(w writer.Writer, level slog.Leveler, options *SLogOptions) (slog.Handler, error) {
	timeFormat := options.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}
	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: options.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch {
			case a.Key == slog.TimeKey && len(groups) == 0:
				return slog.String(a.Key, a.Value.Time().Format(timeFormat))
			case a.Value.Kind() == slog.KindDuration:
				// 迁移和查询耗时统一按毫秒输出
				return slog.Float64(a.Key, float64(a.Value.Duration().Microseconds())/1000)
			}
			return a
		},
	}

	switch strings.ToLower(options.Format) {
	case "", "text":
		return slog.NewTextHandler(w, handlerOpts), nil
	case "json":
		return slog.NewJSONHandler(w, handlerOpts), nil
	default:
		return nil, errors.Errorf("unsupported format: %s", options.Format)
	}
}

// sortedFields 按键排序，保证每条日志的字段顺序一致
func sortedFields(fields map[string]any) []any {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		args = append(args, k, fields[k])
	}
	return args
}

// NewSLog 包装已有的 slog.Logger，级别由原 handler 决定
func NewSLog(slogger *slog.Logger) *SLog {
	return &SLog{slogger: slogger}
}

// SetLevel 调整级别，由 With 派生出的日志器一起生效
func (l *SLog) SetLevel(level string) error {
	if l.level == nil {
		return errors.New("logger level is not adjustable")
	}
	lv, err := parseLevel(level)
	if err != nil {
		return err
	}
	l.level.Set(lv)
	return nil
}

// Close 关闭底层输出器，派生出的日志器共享同一个输出器
func (l *SLog) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, errors.Errorf("unknown level: %s", level)
	}
}

func (l *SLog) Debug(msg string, args ...any) {
	l.slogger.Debug(msg, args...)
}

func (l *SLog) Info(msg string, args ...any) {
	l.slogger.Info(msg, args...)
}

func (l *SLog) Warn(msg string, args ...any) {
	l.slogger.Warn(msg, args...)
}

func (l *SLog) Error(msg string, args ...any) {
	l.slogger.Error(msg, args...)
}

func (l *SLog) DebugContext(ctx context.Context, msg string, args ...any) {
	l.slogger.DebugContext(ctx, msg, args...)
}

func (l *SLog) InfoContext(ctx context.Context, msg string, args ...any) {
	l.slogger.InfoContext(ctx, msg, args...)
}

func (l *SLog) WarnContext(ctx context.Context, msg string, args ...any) {
	l.slogger.WarnContext(ctx, msg, args...)
}

func (l *SLog) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.slogger.ErrorContext(ctx, msg, args...)
}

func (l *SLog) With(args ...any) Logger {
	return &SLog{slogger: l.slogger.With(args...), level: l.level, closer: l.closer}
}

func (l *SLog) WithGroup(name string) Logger {
	return &SLog{slogger: l.slogger.WithGroup(name), level: l.level, closer: l.closer}
}
