package store

import (
	"context"
	"time"

	"github.com/coocood/freecache"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/hatlonely/customobj/dialect"
	"github.com/hatlonely/customobj/errs"
	"github.com/hatlonely/customobj/schema"
)

// NameCacheOptions 类型名到 id 的缓存
type NameCacheOptions struct {
	// 缓存容量（字节），0 表示不缓存
	Size int `cfg:"size" def:"1048576"`
	// 过期时间
	TTL time.Duration `cfg:"ttl" def:"5m"`
}

// Store 描述符的持久化，所有方法都接受一个可选的事务，为 nil 时使用 Store 自己的连接
type Store struct {
	db      *gorm.DB
	dialect dialect.Dialect
	names   *nameCache
	group   singleflight.Group
}

func NewStoreWithOptions(db *gorm.DB, options *NameCacheOptions) (*Store, error) {
	d, err := dialect.FromDB(db)
	if err != nil {
		return nil, errors.WithMessage(err, "dialect.FromDB failed")
	}

	s := &Store{db: db, dialect: d}
	if options != nil && options.Size > 0 {
		s.names = &nameCache{
			cache: freecache.NewCache(options.Size),
			ttl:   int(options.TTL / time.Second),
		}
	}
	return s, nil
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) Dialect() dialect.Dialect {
	return s.dialect
}

// Migrate 创建或更新描述符表
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(schema.Models()...); err != nil {
		return errors.Wrap(err, "db.AutoMigrate failed")
	}
	return nil
}

func (s *Store) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx == nil {
		tx = s.db
	}
	return tx.WithContext(ctx)
}

// translate 把未找到和唯一约束冲突翻译成错误类型
func (s *Store) translate(err error, name string, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrapf(errs.ErrNotFound, format, args...)
	}
	if s.dialect.IsUniqueViolation(err) {
		return errs.NewSchemaConflictError(name, "already exists")
	}
	return errors.Wrapf(err, format, args...)
}

func orderedFields(db *gorm.DB) *gorm.DB {
	return db.Order("group_name, weight, name, id")
}
