// Package relation 引用字段的关联访问：读取、增删和批量预取
package relation

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/hatlonely/customobj/dialect"
	"github.com/hatlonely/customobj/errs"
	"github.com/hatlonely/customobj/field"
	"github.com/hatlonely/customobj/record"
	"github.com/hatlonely/customobj/recordtype"
	"github.com/hatlonely/customobj/schema"
)

// Handle 一条记录上一个引用字段的关联
//
// 多值引用读写关联表，单值引用读写所属表上的外键列，单值引用最多关联一个目标。
type Handle struct {
	db      *gorm.DB
	dialect dialect.Dialect
	owner   *recordtype.RecordType
	binding *recordtype.Binding
	target  *record.Repository
	source  int64
}

// NewHandle target 是引用目标类型上的记录仓库
func NewHandle(db *gorm.DB, d dialect.Dialect, owner *recordtype.RecordType, b *recordtype.Binding, target *record.Repository, source int64) (*Handle, error) {
	if b.Relation == nil {
		return nil, errors.Wrapf(errs.ErrNotImplemented, "field %s is not a reference", b.Name())
	}
	if target.RecordType().TypeID != b.Relation.TargetTypeID {
		return nil, errors.Errorf("field %s targets type %d, got repository of type %d", b.Name(), b.Relation.TargetTypeID, target.RecordType().TypeID)
	}
	return &Handle{db: db, dialect: d, owner: owner, binding: b, target: target, source: source}, nil
}

// Field 关联对应的字段
func (h *Handle) Field() *schema.FieldDescriptor {
	return h.binding.Field
}

func (h *Handle) Source() int64 {
	return h.source
}

func (h *Handle) many() bool {
	return h.binding.Relation.Cardinality == field.CardinalityMany
}

func (h *Handle) withDB(tx *gorm.DB) *Handle {
	cp := *h
	cp.db = tx
	cp.target = h.target.WithDB(tx)
	return &cp
}

func (h *Handle) q(ident string) string {
	return h.dialect.Quote(ident)
}

// All 关联的目标记录，按目标 id 升序
func (h *Handle) All(ctx context.Context) ([]*record.Record, error) {
	ids, err := h.IDs(ctx)
	if err != nil {
		return nil, err
	}
	return h.target.GetMany(ctx, ids)
}

// IDs 关联的目标 id，多值引用按添加顺序
func (h *Handle) IDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if h.many() {
		rel := h.binding.Relation
		err := h.db.WithContext(ctx).Table(rel.JoinTable).
			Where(schema.JoinSourceColumn+" = ?", h.source).
			Order(schema.ColumnID).
			Pluck(schema.JoinTargetColumn, &ids).Error
		if err != nil {
			return nil, errors.Wrapf(err, "select edges from %s failed", rel.JoinTable)
		}
		return ids, nil
	}

	var values []sql.NullInt64
	err := h.db.WithContext(ctx).Table(h.owner.Table).
		Where(schema.ColumnID+" = ?", h.source).
		Pluck(h.binding.Column.Name, &values).Error
	if err != nil {
		return nil, errors.Wrapf(err, "select %s.%s failed", h.owner.Table, h.binding.Column.Name)
	}
	if len(values) == 0 {
		return nil, h.notFound()
	}
	if values[0].Valid {
		ids = append(ids, values[0].Int64)
	}
	return ids, nil
}

// Count 关联数量
func (h *Handle) Count(ctx context.Context) (int64, error) {
	if !h.many() {
		ids, err := h.IDs(ctx)
		return int64(len(ids)), err
	}
	var n int64
	rel := h.binding.Relation
	if err := h.db.WithContext(ctx).Table(rel.JoinTable).Where(schema.JoinSourceColumn+" = ?", h.source).Count(&n).Error; err != nil {
		return 0, errors.Wrapf(err, "count edges in %s failed", rel.JoinTable)
	}
	return n, nil
}

// Add 添加关联，已经存在的关联被忽略，目标不存在时返回 ValidationError
func (h *Handle) Add(ctx context.Context, ids ...int64) error {
	ids = dedup(ids)
	if len(ids) == 0 {
		return nil
	}
	if err := h.checkSource(ctx); err != nil {
		return err
	}
	if err := h.checkTargets(ctx, ids); err != nil {
		return err
	}

	if !h.many() {
		if len(ids) > 1 {
			return errs.NewValidationError(h.binding.Name(), "single-valued reference accepts one object, got %d", len(ids))
		}
		return h.setColumn(ctx, &ids[0])
	}

	rel := h.binding.Relation
	stmt := h.dialect.InsertIgnore(rel.JoinTable, []string{schema.JoinSourceColumn, schema.JoinTargetColumn})
	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			if err := tx.Exec(stmt, h.source, id).Error; err != nil {
				return errors.Wrapf(err, "insert edge into %s failed", rel.JoinTable)
			}
		}
		return nil
	})
}

// Remove 删除关联，不存在的关联被忽略
func (h *Handle) Remove(ctx context.Context, ids ...int64) error {
	ids = dedup(ids)
	if len(ids) == 0 {
		return nil
	}
	if !h.many() {
		col := h.binding.Column.Name
		stmt := fmt.Sprintf("UPDATE %s SET %s = NULL WHERE %s = ? AND %s IN ?", h.q(h.owner.Table), h.q(col), h.q(schema.ColumnID), h.q(col))
		return errors.Wrapf(h.db.WithContext(ctx).Exec(stmt, h.source, ids).Error, "clear %s.%s failed", h.owner.Table, col)
	}

	rel := h.binding.Relation
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = ? AND %s IN ?", h.q(rel.JoinTable), h.q(schema.JoinSourceColumn), h.q(schema.JoinTargetColumn))
	return errors.Wrapf(h.db.WithContext(ctx).Exec(stmt, h.source, ids).Error, "delete edges from %s failed", rel.JoinTable)
}

// Clear 删除全部关联
func (h *Handle) Clear(ctx context.Context) error {
	if !h.many() {
		return h.setColumn(ctx, nil)
	}
	rel := h.binding.Relation
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", h.q(rel.JoinTable), h.q(schema.JoinSourceColumn))
	return errors.Wrapf(h.db.WithContext(ctx).Exec(stmt, h.source).Error, "delete edges from %s failed", rel.JoinTable)
}

// Set 关联结果恰好为 ids
//
// clear 为 true 时先清空再添加，否则只删除多余的、添加缺少的，已有关联的边保持不变。
func (h *Handle) Set(ctx context.Context, ids []int64, clear bool) error {
	ids = dedup(ids)
	if err := h.checkSource(ctx); err != nil {
		return err
	}
	if err := h.checkTargets(ctx, ids); err != nil {
		return err
	}

	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		th := h.withDB(tx)
		if clear {
			if err := th.Clear(ctx); err != nil {
				return err
			}
			return th.Add(ctx, ids...)
		}

		current, err := th.IDs(ctx)
		if err != nil {
			return err
		}
		want := map[int64]bool{}
		for _, id := range ids {
			want[id] = true
		}
		have := map[int64]bool{}
		var stale []int64
		for _, id := range current {
			have[id] = true
			if !want[id] {
				stale = append(stale, id)
			}
		}
		var missing []int64
		for _, id := range ids {
			if !have[id] {
				missing = append(missing, id)
			}
		}
		if err := th.Remove(ctx, stale...); err != nil {
			return err
		}
		return th.Add(ctx, missing...)
	})
}

func (h *Handle) setColumn(ctx context.Context, id *int64) error {
	col := h.binding.Column.Name
	stmt := fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?", h.q(h.owner.Table), h.q(col), h.q(schema.ColumnID))
	var value any
	if id != nil {
		value = *id
	}
	return errors.Wrapf(h.db.WithContext(ctx).Exec(stmt, value, h.source).Error, "update %s.%s failed", h.owner.Table, col)
}

func (h *Handle) checkSource(ctx context.Context) error {
	var n int64
	if err := h.db.WithContext(ctx).Table(h.owner.Table).Where(schema.ColumnID+" = ?", h.source).Count(&n).Error; err != nil {
		return errors.Wrapf(err, "select %s failed", h.owner.Table)
	}
	if n == 0 {
		return h.notFound()
	}
	return nil
}

func (h *Handle) checkTargets(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := h.target.Exists(ctx, ids)
	if err != nil {
		return err
	}
	var missing []int64
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return errs.NewValidationError(h.binding.Name(), "objects with ids %v do not exist", missing)
	}
	return nil
}

func (h *Handle) notFound() error {
	return errors.Wrapf(errs.ErrNotFound, "%s %d", h.owner.Name(), h.source)
}

func dedup(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
