package writer

import (
	"io"

	"github.com/pkg/errors"
)

// Writer 日志输出器接口
type Writer interface {
	io.Writer
	io.Closer
}

// Options 输出器配置，Type 决定使用哪一个子配置
type Options struct {
	// 输出器类型：console, file, multi
	Type string `cfg:"type" def:"console" validate:"omitempty,oneof=console file multi"`

	Console *ConsoleWriterOptions `cfg:"console"`
	File    *FileWriterOptions    `cfg:"file"`
	Multi   *MultiWriterOptions   `cfg:"multi"`
}

// NewWithOptions 按类型创建输出器，options 为 nil 时输出到 stdout
func NewWithOptions(options *Options) (Writer, error) {
	if options == nil {
		return NewConsoleWriterWithOptions(nil)
	}

	switch options.Type {
	case "", "console":
		return NewConsoleWriterWithOptions(options.Console)
	case "file":
		return NewFileWriterWithOptions(options.File)
	case "multi":
		return NewMultiWriterWithOptions(options.Multi)
	default:
		return nil, errors.Errorf("unsupported writer type: %s", options.Type)
	}
}
