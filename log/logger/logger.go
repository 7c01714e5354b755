package logger

import (
	"context"
)

// Logger 日志接口
type Logger interface {
	// 基础日志方法
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// 带上下文的日志方法
	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)

	// 带字段的日志器
	With(args ...any) Logger
	WithGroup(name string) Logger
}

// Nop 丢弃所有日志
type Nop struct{}

func (Nop) Debug(string, ...any)                         {}
func (Nop) Info(string, ...any)                          {}
func (Nop) Warn(string, ...any)                          {}
func (Nop) Error(string, ...any)                         {}
func (Nop) DebugContext(context.Context, string, ...any) {}
func (Nop) InfoContext(context.Context, string, ...any)  {}
func (Nop) WarnContext(context.Context, string, ...any)  {}
func (Nop) ErrorContext(context.Context, string, ...any) {}
func (n Nop) With(...any) Logger                         { return n }
func (n Nop) WithGroup(string) Logger                    { return n }
