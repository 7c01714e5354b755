package customobj

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/hatlonely/customobj/log/logger"
	"github.com/hatlonely/customobj/metrics"
	"github.com/hatlonely/customobj/store"
	"github.com/hatlonely/customobj/version"
)

// Options 引擎的全部配置，可以通过 config.Load 从 yaml/toml/json 文件加载
type Options struct {
	Database  DatabaseOptions        `cfg:"database"`
	GormLog   logger.GormOptions     `cfg:"gormLog"`
	Engine    EngineOptions          `cfg:"engine"`
	Version   version.Options        `cfg:"version"`
	NameCache store.NameCacheOptions `cfg:"nameCache"`
	Log       *logger.SLogOptions    `cfg:"log"`
	Metrics   metrics.Options        `cfg:"metrics"`
}

type DatabaseOptions struct {
	Driver string `cfg:"driver" def:"sqlite" validate:"oneof=sqlite mysql postgres"`
	// 设置后忽略下面的连接参数
	DSN string `cfg:"dsn"`
	// sqlite 时为数据库文件路径
	Database string `cfg:"database" def:"customobj.db"`
	Host     string `cfg:"host" def:"localhost"`
	// 为空时 mysql 使用 3306，postgres 使用 5432
	Port     string `cfg:"port"`
	Username string `cfg:"username"`
	Password string `cfg:"password"`
	Charset  string `cfg:"charset" def:"utf8mb4"`

	MaxOpenConns    int           `cfg:"maxOpenConns" def:"10"`
	MaxIdleConns    int           `cfg:"maxIdleConns" def:"5"`
	ConnMaxLifetime time.Duration `cfg:"connMaxLifetime" def:"1h"`
}

type EngineOptions struct {
	// 等待类型锁的最长时间
	LockTimeout time.Duration `cfg:"lockTimeout" def:"30s"`
	// 预热引用目标时的最大递归深度
	MaxDepth int `cfg:"maxDepth" def:"16" validate:"min=1"`
	// 启动时检查并修复缺失的表、列、关联表和约束
	RepairOnStart bool `cfg:"repairOnStart" def:"true"`
}

func (o *DatabaseOptions) dsn() (string, error) {
	if o.DSN != "" {
		return o.DSN, nil
	}
	switch o.Driver {
	case "sqlite":
		return fmt.Sprintf("file:%s?_busy_timeout=10000&_journal_mode=WAL&_txlock=immediate", o.Database), nil
	case "mysql":
		port := o.Port
		if port == "" {
			port = "3306"
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=%s&parseTime=True&loc=UTC",
			o.Username, o.Password, o.Host, port, o.Database, o.Charset), nil
	case "postgres":
		port := o.Port
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			o.Host, port, o.Username, o.Password, o.Database), nil
	default:
		return "", errors.Errorf("unsupported driver %q", o.Driver)
	}
}

// openDB 按驱动打开 gorm 连接
func openDB(options *DatabaseOptions, gormLog *logger.GormLogger) (*gorm.DB, error) {
	dsn, err := options.dsn()
	if err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch options.Driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, errors.Wrapf(err, "gorm.Open failed, driver: %s", options.Driver)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "db.DB failed")
	}
	if options.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(options.MaxOpenConns)
	}
	if options.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(options.MaxIdleConns)
	}
	if options.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(options.ConnMaxLifetime)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrapf(err, "db.Ping failed, driver: %s", options.Driver)
	}
	return db, nil
}
