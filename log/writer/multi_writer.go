package writer

import (
	"github.com/pkg/errors"
)

// MultiWriterOptions 多输出配置
type MultiWriterOptions struct {
	Writers []*Options `cfg:"writers" validate:"min=1,dive"`
}

// MultiWriter 把同一份日志写到多个输出器
type MultiWriter struct {
	writers []Writer
}

func NewMultiWriterWithOptions(options *MultiWriterOptions) (*MultiWriter, error) {
	if options == nil || len(options.Writers) == 0 {
		return nil, errors.New("at least one writer is required")
	}

	writers := make([]Writer, 0, len(options.Writers))
	for i, opt := range options.Writers {
		w, err := NewWithOptions(opt)
		if err != nil {
			for _, created := range writers {
				_ = created.Close()
			}
			return nil, errors.WithMessagef(err, "create writer %d failed", i)
		}
		writers = append(writers, w)
	}

	return NewMultiWriter(writers...), nil
}

// NewMultiWriter 从已有的输出器创建
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

func (m *MultiWriter) Write(p []byte) (n int, err error) {
	for i, w := range m.writers {
		if _, err := w.Write(p); err != nil {
			return 0, errors.Wrapf(err, "writer %d failed", i)
		}
	}
	return len(p), nil
}

// Close 关闭所有输出器，返回最后一个错误
func (m *MultiWriter) Close() error {
	var lastErr error
	for i, w := range m.writers {
		if err := w.Close(); err != nil {
			lastErr = errors.Wrapf(err, "close writer %d failed", i)
		}
	}
	return lastErr
}
