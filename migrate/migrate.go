package migrate

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/hatlonely/customobj/dialect"
	"github.com/hatlonely/customobj/errs"
	"github.com/hatlonely/customobj/log"
	"github.com/hatlonely/customobj/log/logger"
	"github.com/hatlonely/customobj/metrics"
	"github.com/hatlonely/customobj/recordtype"
	"github.com/hatlonely/customobj/store"
)

// Change 修改字段时对存储的影响
type Change int

const (
	ChangeNone Change = iota
	// ChangeAlter 原地修改列，数据被转换
	ChangeAlter
	// ChangeRecreate 删除后重建，原有数据丢失
	ChangeRecreate
)

func (c Change) String() string {
	switch c {
	case ChangeAlter:
		return "alter"
	case ChangeRecreate:
		return "recreate"
	default:
		return "none"
	}
}

// Result 一次迁移执行的语句
type Result struct {
	Change     Change
	Statements []string
	// Compensate 不支持事务 DDL 的数据库在事务回滚后需要执行的反向语句
	Compensate []string
}

func (r *Result) merge(other *Result) {
	r.Statements = append(r.Statements, other.Statements...)
	r.Compensate = append(other.Compensate, r.Compensate...)
}

// Migrator 根据记录类型的前后形态生成并执行 DDL，所有语句在调用方的事务上执行
type Migrator struct {
	dialect dialect.Dialect
	store   *store.Store
	factory *recordtype.Factory

	log     logger.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

func NewMigrator(store *store.Store, factory *recordtype.Factory) *Migrator {
	return &Migrator{
		dialect: store.Dialect(),
		store:   store,
		factory: factory,
		log:     log.Default(),
		tracer:  otel.Tracer("github.com/hatlonely/customobj/migrate"),
	}
}

func (m *Migrator) SetLogger(l logger.Logger) {
	m.log = l
}

func (m *Migrator) SetMetrics(mt *metrics.Metrics) {
	m.metrics = mt
}

func (m *Migrator) Dialect() dialect.Dialect {
	return m.dialect
}

// observe 为一次迁移记录 span、指标和日志
func (m *Migrator) observe(ctx context.Context, op string, typeID int64, fn func(ctx context.Context) (*Result, error)) (*Result, error) {
	ctx, span := m.tracer.Start(ctx, "migrate."+op, trace.WithAttributes(
		attribute.String("dialect", m.dialect.Name()),
		attribute.Int64("typeID", typeID),
	))
	defer span.End()

	res, err := fn(ctx)
	m.metrics.DDL(op, err)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		m.log.ErrorContext(ctx, "migration failed", "op", op, "typeID", typeID, "error", err)
		return res, err
	}
	span.SetStatus(codes.Ok, "")
	span.SetAttributes(attribute.Int("statements", len(res.Statements)))
	return res, nil
}

func (m *Migrator) exec(ctx context.Context, tx *gorm.DB, op string, table string, res *Result, stmts []string) error {
	for _, stmt := range stmts {
		m.log.DebugContext(ctx, "exec ddl", "op", op, "table", table, "statement", stmt)
		if err := tx.WithContext(ctx).Exec(stmt).Error; err != nil {
			return &errs.MigrationError{Op: op, Table: table, Statement: stmt, Err: err}
		}
		res.Statements = append(res.Statements, stmt)
	}
	return nil
}

// compensate 记录反向语句，后执行的操作先撤销
func (m *Migrator) compensate(res *Result, stmts ...string) {
	if m.dialect.TransactionalDDL() {
		return
	}
	res.Compensate = append(append([]string(nil), stmts...), res.Compensate...)
}

func (m *Migrator) shape(ctx context.Context, tx *gorm.DB, typeID int64, opts ...recordtype.GetOption) (*recordtype.RecordType, error) {
	opts = append([]recordtype.GetOption{recordtype.WithoutCache(), recordtype.WithDB(tx)}, opts...)
	return m.factory.Get(ctx, typeID, opts...)
}
