// Package customobj 运行时定义对象类型的引擎
//
// 每个类型对应一张真实的表，字段的增删改在同一个事务里同步修改描述符和表结构，
// 记录通过 Records 返回的仓库读写，引用字段通过 Relation 返回的句柄访问。
package customobj

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/hatlonely/customobj/config"
	"github.com/hatlonely/customobj/lock"
	"github.com/hatlonely/customobj/log"
	"github.com/hatlonely/customobj/log/logger"
	"github.com/hatlonely/customobj/metrics"
	"github.com/hatlonely/customobj/migrate"
	"github.com/hatlonely/customobj/recordtype"
	"github.com/hatlonely/customobj/store"
	"github.com/hatlonely/customobj/version"
)

type Engine struct {
	db       *gorm.DB
	store    *store.Store
	locks    *lock.Registry
	versions version.Store
	factory  *recordtype.Factory
	migrator *migrate.Migrator
	metrics  *metrics.Metrics

	log    logger.Logger
	tracer trace.Tracer

	closers []func() error
}

type engineOptions struct {
	log        logger.Logger
	registerer prometheus.Registerer
}

type EngineOption func(*engineOptions)

// WithLogger 替换配置中的日志器
func WithLogger(l logger.Logger) EngineOption {
	return func(o *engineOptions) { o.log = l }
}

// WithRegisterer 指标注册到给定的注册表，默认为 prometheus.DefaultRegisterer
func WithRegisterer(r prometheus.Registerer) EngineOption {
	return func(o *engineOptions) { o.registerer = r }
}

// NewEngineWithOptions 按配置连接数据库并创建引擎
func NewEngineWithOptions(options *Options, opts ...EngineOption) (*Engine, error) {
	options, o, err := prepare(options, opts)
	if err != nil {
		return nil, err
	}

	db, err := openDB(&options.Database, logger.NewGormLogger(o.log, &options.GormLog))
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "db.DB failed")
	}

	e, err := newEngine(db, options, o)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	e.closers = append(e.closers, sqlDB.Close)
	return e, nil
}

// NewEngine 使用已有的连接，连接由调用方关闭，options 为 nil 时使用默认配置
func NewEngine(db *gorm.DB, options *Options, opts ...EngineOption) (*Engine, error) {
	options, o, err := prepare(options, opts)
	if err != nil {
		return nil, err
	}
	return newEngine(db, options, o)
}

func prepare(options *Options, opts []EngineOption) (*Options, *engineOptions, error) {
	if options == nil {
		options = &Options{}
		if err := config.SetDefaults(options); err != nil {
			return nil, nil, errors.WithMessage(err, "config.SetDefaults failed")
		}
	}

	o := &engineOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = log.Default()
		if options.Log != nil {
			l, err := log.NewWithOptions(options.Log)
			if err != nil {
				return nil, nil, errors.WithMessage(err, "log.NewWithOptions failed")
			}
			o.log = l
		}
	}
	return options, o, nil
}

func newEngine(db *gorm.DB, options *Options, o *engineOptions) (*Engine, error) {
	ctx := context.Background()

	s, err := store.NewStoreWithOptions(db, &options.NameCache)
	if err != nil {
		return nil, errors.WithMessage(err, "store.NewStoreWithOptions failed")
	}
	if err := s.Migrate(ctx); err != nil {
		return nil, errors.WithMessage(err, "store.Migrate failed")
	}

	versions, err := version.NewStoreWithOptions(&options.Version)
	if err != nil {
		return nil, errors.WithMessage(err, "version.NewStoreWithOptions failed")
	}

	locks := lock.NewRegistryWithOptions(&lock.RegistryOptions{Timeout: options.Engine.LockTimeout})
	factory := recordtype.NewFactoryWithOptions(&recordtype.Options{MaxDepth: options.Engine.MaxDepth}, s, locks, versions)
	factory.SetLogger(o.log)
	migrator := migrate.NewMigrator(s, factory)
	migrator.SetLogger(o.log)

	e := &Engine{
		db:       db,
		store:    s,
		locks:    locks,
		versions: versions,
		factory:  factory,
		migrator: migrator,
		log:      o.log,
		tracer:   otel.Tracer("github.com/hatlonely/customobj"),
		closers:  []func() error{versions.Close},
	}

	if !options.Metrics.Disable {
		m, err := metrics.New(options.Metrics.Namespace, o.registerer)
		if err != nil {
			_ = versions.Close()
			return nil, errors.Wrap(err, "metrics.New failed")
		}
		e.metrics = m
		factory.SetMetrics(m)
		migrator.SetMetrics(m)
		locks.SetObserver(m)
	}

	if options.Engine.RepairOnStart {
		if _, err := e.Repair(ctx); err != nil {
			_ = versions.Close()
			return nil, err
		}
	}

	e.log.Info("customobj engine started", "dialect", s.Dialect().Name())
	return e, nil
}

// DB 引擎使用的连接
func (e *Engine) DB() *gorm.DB {
	return e.db
}

// Repair 检查所有类型的存储并补齐缺失的部分，修复期间持有全部类型的锁
func (e *Engine) Repair(ctx context.Context) (*migrate.RepairReport, error) {
	types, err := e.store.ListTypes(ctx, nil)
	if err != nil {
		return nil, errors.WithMessage(err, "repair failed")
	}
	ids := make([]int64, 0, len(types))
	for _, td := range types {
		ids = append(ids, td.ID)
	}

	ctx, release, err := e.locks.AcquireMany(ctx, ids...)
	if err != nil {
		e.log.WarnContext(ctx, "acquire type locks for repair failed", "error", err)
		return nil, err
	}
	defer release()

	report, err := e.migrator.Repair(ctx, e.db)
	if err != nil {
		return nil, errors.WithMessage(err, "repair failed")
	}
	if !report.Empty() {
		e.log.WarnContext(ctx, "storage repaired", "report", report)
		if err := e.factory.Invalidate(ctx, ids...); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (e *Engine) Close() error {
	var first error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// operation 一次修改操作的上下文
type operation struct {
	id      string
	log     logger.Logger
	ids     map[int64]struct{}
	results []*migrate.Result
}

// record 记录一次迁移，迁移出错时 res 也可能包含已执行的语句
func (op *operation) record(res *migrate.Result) {
	if res != nil {
		op.results = append(op.results, res)
	}
}

// invalidate 事务提交后需要失效的类型
func (op *operation) invalidate(ids ...int64) {
	for _, id := range ids {
		if id != 0 {
			op.ids[id] = struct{}{}
		}
	}
}

func (op *operation) typeIDs() []int64 {
	ids := make([]int64, 0, len(op.ids))
	for id := range op.ids {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// mutate 持有相关类型的锁，在一个事务里执行 fn，提交后使记录类型失效
//
// 锁在事务开始之前获取。不支持事务 DDL 的数据库上，回滚后按相反顺序执行补偿语句。
func (e *Engine) mutate(ctx context.Context, name string, lockIDs []int64, fn func(ctx context.Context, tx *gorm.DB, op *operation) error) error {
	op := &operation{id: uuid.NewString(), ids: map[int64]struct{}{}}
	op.log = e.log.With("op", name, "opID", op.id)
	op.invalidate(lockIDs...)

	ctx, span := e.tracer.Start(ctx, "customobj."+name, trace.WithAttributes(
		attribute.String("opID", op.id),
		attribute.Int64Slice("typeIDs", op.typeIDs()),
	))
	defer span.End()

	ctx, release, err := e.locks.AcquireMany(ctx, op.typeIDs()...)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		op.log.WarnContext(ctx, "acquire type locks failed", "error", err)
		return err
	}
	defer release()

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, tx, op)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		if !e.store.Dialect().TransactionalDDL() {
			e.compensate(ctx, op)
			e.invalidate(ctx, op)
		}
		op.log.WarnContext(ctx, "operation failed", "error", err)
		return err
	}

	if err := e.invalidate(ctx, op); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	op.log.InfoContext(ctx, "operation done", "typeIDs", op.typeIDs())
	return nil
}

func (e *Engine) invalidate(ctx context.Context, op *operation) error {
	if err := e.factory.Invalidate(ctx, op.typeIDs()...); err != nil {
		op.log.ErrorContext(ctx, "invalidate record types failed", "error", err)
		return err
	}
	return nil
}

// compensate 尽力撤销已经自动提交的 DDL，失败只记录日志
func (e *Engine) compensate(ctx context.Context, op *operation) {
	for i := len(op.results) - 1; i >= 0; i-- {
		for _, stmt := range op.results[i].Compensate {
			if err := e.db.WithContext(ctx).Exec(stmt).Error; err != nil {
				op.log.ErrorContext(ctx, "compensate ddl failed, run repair to recover", "statement", stmt, "error", err)
				continue
			}
			op.log.WarnContext(ctx, "ddl compensated", "statement", stmt)
		}
	}
}
