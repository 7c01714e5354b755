package log

import (
	"sync/atomic"

	"github.com/hatlonely/customobj/log/logger"
)

var defaultLogger atomic.Value

func init() {
	// 默认向终端输出 text 格式日志
	slog, err := logger.NewSLogWithOptions(&logger.SLogOptions{
		Level:  "info",
		Format: "text",
	})
	if err != nil {
		panic("failed to initialize default logger: " + err.Error())
	}
	SetDefault(slog)
}

func Default() logger.Logger {
	return defaultLogger.Load().(*holder).logger
}

// SetDefault 替换默认日志器，nil 时丢弃所有日志
func SetDefault(l logger.Logger) {
	if l == nil {
		l = logger.Nop{}
	}
	defaultLogger.Store(&holder{logger: l})
}

// NewWithOptions 按配置创建日志器
func NewWithOptions(options *logger.SLogOptions) (*logger.SLog, error) {
	return logger.NewSLogWithOptions(options)
}

type holder struct {
	logger logger.Logger
}
