package record

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/hatlonely/customobj/dialect"
	"github.com/hatlonely/customobj/errs"
	"github.com/hatlonely/customobj/field"
	"github.com/hatlonely/customobj/log"
	"github.com/hatlonely/customobj/log/logger"
	"github.com/hatlonely/customobj/record/filter"
	"github.com/hatlonely/customobj/recordtype"
	"github.com/hatlonely/customobj/schema"
)

const maxNameLength = 255

// Repository 一个记录类型上的增删改查
//
// 记录类型在创建时固定，字段变化后需要重新从工厂获取记录类型再创建 Repository。
type Repository struct {
	rt      *recordtype.RecordType
	db      *gorm.DB
	dialect dialect.Dialect
	log     logger.Logger
	now     func() time.Time
}

func NewRepository(db *gorm.DB, d dialect.Dialect, rt *recordtype.RecordType) *Repository {
	return &Repository{
		rt:      rt,
		db:      db,
		dialect: d,
		log:     log.Default(),
		now:     time.Now,
	}
}

func (r *Repository) SetLogger(l logger.Logger) {
	r.log = l
}

// WithDB 返回在 tx 上执行的副本
func (r *Repository) WithDB(tx *gorm.DB) *Repository {
	cp := *r
	cp.db = tx
	return &cp
}

func (r *Repository) RecordType() *recordtype.RecordType {
	return r.rt
}

func (r *Repository) conn(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

func (r *Repository) quote(ident string) string {
	return r.dialect.Quote(ident)
}

// Create 校验并写入一条记录，成功后回填 ID 和时间
func (r *Repository) Create(ctx context.Context, rec *Record) error {
	w, err := r.prepare(ctx, rec.Values, nil)
	if err != nil {
		return err
	}
	if err := r.checkUnique(ctx, w, 0); err != nil {
		return err
	}

	now := r.now().UTC().Truncate(time.Microsecond)
	name := displayName(rec.Name, w, r.rt.Primary())
	columns := []string{schema.ColumnName, schema.ColumnCreated, schema.ColumnLastUpdated}
	args := []any{name, field.FormatTimestamp(now), field.FormatTimestamp(now)}
	for _, b := range w.order {
		columns = append(columns, b.Column.Name)
		args = append(args, w.stored[b])
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		id, err := r.dialect.Insert(ctx, tx, r.rt.Table, columns, args)
		if err != nil {
			return r.translate(ctx, err, w, 0)
		}
		rec.ID = id
		return r.writeEdges(ctx, tx, id, w.many)
	})
	if err != nil {
		return err
	}

	rec.TypeID = r.rt.TypeID
	rec.Name = name
	rec.Created, rec.LastUpdated = now, now
	rec.Values = w.canonical
	r.log.DebugContext(ctx, "record created", "typeID", r.rt.TypeID, "id", rec.ID)
	return nil
}

// Update 只修改 Values 中给出的字段，Name 为空时保留原名称或由主字段重新生成
func (r *Repository) Update(ctx context.Context, rec *Record) error {
	current, err := r.Get(ctx, rec.ID)
	if err != nil {
		return err
	}
	w, err := r.prepare(ctx, rec.Values, current.Values)
	if err != nil {
		return err
	}
	if err := r.checkUnique(ctx, w, rec.ID); err != nil {
		return err
	}

	now := r.now().UTC().Truncate(time.Microsecond)
	name := rec.Name
	if name == "" {
		name = current.Name
		if p := r.rt.Primary(); p != nil && w.has(p) {
			name = displayName("", w, p)
		}
	}
	updates := map[string]any{
		schema.ColumnName:        name,
		schema.ColumnLastUpdated: field.FormatTimestamp(now),
	}
	for _, b := range w.order {
		updates[b.Column.Name] = w.stored[b]
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Table(r.rt.Table).Where(schema.ColumnID+" = ?", rec.ID).Updates(updates).Error; err != nil {
			return r.translate(ctx, err, w, rec.ID)
		}
		return r.replaceEdges(ctx, tx, rec.ID, w.many)
	})
	if err != nil {
		return err
	}

	for k, v := range w.canonical {
		current.Values[k] = v
	}
	rec.Name = name
	rec.Created = current.Created
	rec.LastUpdated = now
	rec.Values = current.Values
	return nil
}

// Delete 删除记录，不支持外键的数据库上同时清理关联表和指向它的引用
func (r *Repository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if !r.dialect.SupportsForeignKeys() {
			if err := r.detach(ctx, tx, []int64{id}); err != nil {
				return err
			}
		}
		result := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE %s = ?", r.quote(r.rt.Table), r.quote(schema.ColumnID)), id)
		if result.Error != nil {
			return errors.Wrapf(result.Error, "delete record %d from %s failed", id, r.rt.Table)
		}
		if result.RowsAffected == 0 {
			return errors.Wrapf(errs.ErrNotFound, "%s %d", r.rt.Name(), id)
		}
		return nil
	})
}

// detach 模拟外键的 ON DELETE 行为
func (r *Repository) detach(ctx context.Context, tx *gorm.DB, ids []int64) error {
	for _, b := range r.rt.Bindings {
		if !b.Many() {
			continue
		}
		stmt := fmt.Sprintf("DELETE FROM %s WHERE %s IN ?", r.quote(b.Relation.JoinTable), r.quote(schema.JoinSourceColumn))
		if err := tx.Exec(stmt, ids).Error; err != nil {
			return errors.Wrapf(err, "delete edges from %s failed", b.Relation.JoinTable)
		}
	}
	for _, in := range r.rt.Incoming {
		var stmt string
		if in.Cardinality == field.CardinalityMany {
			stmt = fmt.Sprintf("DELETE FROM %s WHERE %s IN ?", r.quote(in.Table), r.quote(in.Column))
		} else {
			stmt = fmt.Sprintf("UPDATE %s SET %s = NULL WHERE %s IN ?", r.quote(in.Table), r.quote(in.Column), r.quote(in.Column))
		}
		if err := tx.Exec(stmt, ids).Error; err != nil {
			return errors.Wrapf(err, "detach references from %s failed", in.Table)
		}
	}
	return nil
}

// writeEdges 新记录的多值引用
func (r *Repository) writeEdges(ctx context.Context, tx *gorm.DB, id int64, many map[*recordtype.Binding][]int64) error {
	for b, ids := range many {
		stmt := r.dialect.InsertIgnore(b.Relation.JoinTable, []string{schema.JoinSourceColumn, schema.JoinTargetColumn})
		for _, target := range ids {
			if err := tx.Exec(stmt, id, target).Error; err != nil {
				return errors.Wrapf(err, "insert edge into %s failed", b.Relation.JoinTable)
			}
		}
	}
	return nil
}

// replaceEdges 把多值引用替换为给定的集合
func (r *Repository) replaceEdges(ctx context.Context, tx *gorm.DB, id int64, many map[*recordtype.Binding][]int64) error {
	for b, ids := range many {
		stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", r.quote(b.Relation.JoinTable), r.quote(schema.JoinSourceColumn))
		args := []any{id}
		if len(ids) > 0 {
			stmt += fmt.Sprintf(" AND %s NOT IN ?", r.quote(schema.JoinTargetColumn))
			args = append(args, ids)
		}
		if err := tx.Exec(stmt, args...).Error; err != nil {
			return errors.Wrapf(err, "delete edges from %s failed", b.Relation.JoinTable)
		}
	}
	return r.writeEdges(ctx, tx, id, many)
}

// Get 按 id 读取
func (r *Repository) Get(ctx context.Context, id int64) (*Record, error) {
	recs, err := r.GetMany(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, errors.Wrapf(errs.ErrNotFound, "%s %d", r.rt.Name(), id)
	}
	return recs[0], nil
}

// GetMany 一次查询读取多条记录，按 id 升序，不存在的 id 被忽略
func (r *Repository) GetMany(ctx context.Context, ids []int64) ([]*Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.find(ctx, r.conn(ctx).Where(schema.ColumnID+" IN ?", ids).Order(schema.ColumnID))
}

// ListOptions 分页和排序
type ListOptions struct {
	Limit  int
	Offset int
	// OrderBy 字段名或系统列名，默认按 id
	OrderBy string
	Desc    bool
}

// List 按条件查询，q 为 nil 时返回全部
func (r *Repository) List(ctx context.Context, q filter.Query, options *ListOptions) ([]*Record, error) {
	db, err := r.where(r.conn(ctx), q)
	if err != nil {
		return nil, err
	}
	if options == nil {
		options = &ListOptions{}
	}

	order := r.quote(schema.ColumnID)
	if options.OrderBy != "" {
		if order, err = (resolver{r}).Column(options.OrderBy); err != nil {
			return nil, err
		}
	}
	if options.Desc {
		order += " DESC"
	}
	db = db.Order(order)
	if options.OrderBy != "" && options.OrderBy != schema.ColumnID {
		db = db.Order(r.quote(schema.ColumnID))
	}
	if options.Limit > 0 {
		db = db.Limit(options.Limit)
	}
	if options.Offset > 0 {
		db = db.Offset(options.Offset)
	}
	return r.find(ctx, db)
}

// Count 按条件计数
func (r *Repository) Count(ctx context.Context, q filter.Query) (int64, error) {
	db, err := r.where(r.conn(ctx), q)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.Table(r.rt.Table).Count(&n).Error; err != nil {
		return 0, errors.Wrapf(err, "count %s failed", r.rt.Table)
	}
	return n, nil
}

// Exists 哪些 id 存在于表中
func (r *Repository) Exists(ctx context.Context, ids []int64) (map[int64]bool, error) {
	return existing(ctx, r.db, r.rt.Table, ids)
}

func (r *Repository) where(db *gorm.DB, q filter.Query) (*gorm.DB, error) {
	if q == nil {
		return db, nil
	}
	sql, args, err := q.ToSQL(resolver{r})
	if err != nil {
		return nil, err
	}
	return db.Where(sql, args...), nil
}

func (r *Repository) find(ctx context.Context, db *gorm.DB) ([]*Record, error) {
	var rows []map[string]any
	if err := db.Table(r.rt.Table).Select(r.rt.ColumnNames()).Find(&rows).Error; err != nil {
		return nil, errors.Wrapf(err, "select from %s failed", r.rt.Table)
	}
	recs := make([]*Record, 0, len(rows))
	for _, row := range rows {
		rec, err := r.scan(row)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// scan 把一行存储值转换为规范取值
func (r *Repository) scan(row map[string]any) (*Record, error) {
	rec := &Record{TypeID: r.rt.TypeID, Values: map[string]any{}}
	id, err := toInt64(row[schema.ColumnID])
	if err != nil {
		return nil, errors.Wrapf(err, "scan %s.id failed", r.rt.Table)
	}
	rec.ID = id
	rec.Name = toString(row[schema.ColumnName])
	if v := row[schema.ColumnCreated]; v != nil {
		if rec.Created, err = field.ParseTimestamp(v); err != nil {
			return nil, errors.Wrapf(err, "scan %s.created failed", r.rt.Table)
		}
	}
	if v := row[schema.ColumnLastUpdated]; v != nil {
		if rec.LastUpdated, err = field.ParseTimestamp(v); err != nil {
			return nil, errors.Wrapf(err, "scan %s.last_updated failed", r.rt.Table)
		}
	}

	for _, b := range r.rt.Bindings {
		if b.Column == nil {
			continue
		}
		v, err := b.Plugin.Deserialize(b.Field, row[b.Column.Name])
		if err != nil {
			return nil, errors.WithMessagef(err, "deserialize %s.%s failed", r.rt.Table, b.Column.Name)
		}
		rec.Values[b.Name()] = v
	}
	return rec, nil
}

func existing(ctx context.Context, db *gorm.DB, table string, ids []int64) (map[int64]bool, error) {
	found := map[int64]bool{}
	if len(ids) == 0 {
		return found, nil
	}
	var rows []int64
	if err := db.WithContext(ctx).Table(table).Where(schema.ColumnID+" IN ?", ids).Pluck(schema.ColumnID, &rows).Error; err != nil {
		return nil, errors.Wrapf(err, "select ids from %s failed", table)
	}
	for _, id := range rows {
		found[id] = true
	}
	return found, nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ", ")
}
