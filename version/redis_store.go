package version

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type RedisStoreOptions struct {
	// host:port 地址。
	Endpoint string `cfg:"endpoint" validate:"required"`

	// 使用指定的用户名来验证当前连接，
	// 当连接到使用 Redis ACL 系统的 Redis 6.0 或更高版本实例时需要设置。
	Username string `cfg:"username"`

	// 可选密码。
	Password string `cfg:"password"`

	// 连接到服务器后选择的数据库。
	DB int `cfg:"db" def:"0"`

	// 版本号键的前缀，不同部署共用一个 redis 时用于隔离。
	KeyPrefix string `cfg:"keyPrefix" def:"customobj:version:"`

	// 放弃前的最大重试次数。
	// 默认是 3 次重试；-1（不是 0）禁用重试。
	MaxRetries int `cfg:"maxRetries" def:"3"`

	// 建立新连接的拨号超时时间。
	DialTimeout time.Duration `cfg:"dialTimeout" def:"5s"`

	// 套接字读取的超时时间。
	ReadTimeout time.Duration `cfg:"readTimeout" def:"3s"`

	// 套接字写入的超时时间。
	WriteTimeout time.Duration `cfg:"writeTimeout" def:"3s"`

	// 基础的套接字连接数。
	PoolSize int `cfg:"poolSize" def:"10"`
}

// RedisStore 多进程共享的版本存储，版本号通过 INCR 递增
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

func NewRedisStoreWithOptions(options *RedisStoreOptions) (*RedisStore, error) {
	if options.Endpoint == "" {
		return nil, errors.New("redis endpoint is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         options.Endpoint,
		Username:     options.Username,
		Password:     options.Password,
		DB:           options.DB,
		MaxRetries:   options.MaxRetries,
		DialTimeout:  options.DialTimeout,
		ReadTimeout:  options.ReadTimeout,
		WriteTimeout: options.WriteTimeout,
		PoolSize:     options.PoolSize,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, errors.WithMessage(err, "redis.client.Ping failed")
	}

	return NewRedisStore(client, options.KeyPrefix), nil
}

// NewRedisStore 使用已有的客户端
func NewRedisStore(client redis.UniversalClient, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "customobj:version:"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStore) key(typeID int64) string {
	return fmt.Sprintf("%s%d", s.keyPrefix, typeID)
}

func (s *RedisStore) Get(ctx context.Context, typeID int64) (int64, error) {
	v, err := s.client.Get(ctx, s.key(typeID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "redis.Get failed, typeID: %d", typeID)
	}
	return v, nil
}

func (s *RedisStore) Bump(ctx context.Context, typeID int64) (int64, error) {
	v, err := s.client.Incr(ctx, s.key(typeID)).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "redis.Incr failed, typeID: %d", typeID)
	}
	return v, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
