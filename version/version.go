package version

import (
	"context"

	"github.com/pkg/errors"
)

// Store 每个类型的 schema 版本号，字段变化时递增
//
// 记录类型缓存以 (类型 id, 版本) 为键，多进程部署时使用共享的 RedisStore，
// 任一进程修改字段后其他进程在下一次访问时重建。
type Store interface {
	Get(ctx context.Context, typeID int64) (int64, error)
	Bump(ctx context.Context, typeID int64) (int64, error)
	Close() error
}

// Options 版本存储配置
type Options struct {
	// memory 或 redis
	Type  string             `cfg:"type" def:"memory" validate:"oneof=memory redis"`
	Redis *RedisStoreOptions `cfg:"redis"`
}

func NewStoreWithOptions(options *Options) (Store, error) {
	if options == nil || options.Type == "" || options.Type == "memory" {
		return NewMemoryStore(), nil
	}
	if options.Type == "redis" {
		if options.Redis == nil {
			return nil, errors.New("redis options are required for redis version store")
		}
		return NewRedisStoreWithOptions(options.Redis)
	}
	return nil, errors.Errorf("unsupported version store type %q", options.Type)
}
