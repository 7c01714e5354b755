package customobj

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/hatlonely/customobj/errs"
	"github.com/hatlonely/customobj/record"
	"github.com/hatlonely/customobj/recordtype"
	"github.com/hatlonely/customobj/relation"
	"github.com/hatlonely/customobj/schema"
)

// RecordType 类型当前的记录类型，并发调用返回同一个实例
func (e *Engine) RecordType(ctx context.Context, typeID int64) (*recordtype.RecordType, error) {
	return e.factory.Get(ctx, typeID)
}

// Records 类型的记录仓库，绑定调用时的记录类型，字段变化后需要重新获取
func (e *Engine) Records(ctx context.Context, typeID int64) (*record.Repository, error) {
	rt, err := e.factory.Get(ctx, typeID)
	if err != nil {
		return nil, err
	}
	repo := record.NewRepository(e.db, e.store.Dialect(), rt)
	repo.SetLogger(e.log)
	return repo, nil
}

// Relation 记录上引用字段的关联句柄
func (e *Engine) Relation(ctx context.Context, rec *record.Record, fieldName string) (*relation.Handle, error) {
	if rec.TypeID == 0 {
		return nil, errors.Errorf("record %d has no type", rec.ID)
	}
	return e.RelationOf(ctx, rec.TypeID, rec.ID, fieldName)
}

// RelationOf 按类型和记录 id 获取关联句柄，不读取记录本身
func (e *Engine) RelationOf(ctx context.Context, typeID int64, id int64, fieldName string) (*relation.Handle, error) {
	owner, b, target, err := e.reference(ctx, typeID, fieldName)
	if err != nil {
		return nil, err
	}
	return relation.NewHandle(e.db, e.store.Dialect(), owner, b, target, id)
}

// Prefetch 批量加载一组记录在引用字段上的关联目标，多值引用固定两次查询
func (e *Engine) Prefetch(ctx context.Context, typeID int64, recs []*record.Record, fieldName string) (map[int64][]*record.Record, error) {
	_, b, target, err := e.reference(ctx, typeID, fieldName)
	if err != nil {
		return nil, err
	}
	return relation.Prefetch(ctx, e.db, b, target, recs)
}

func (e *Engine) reference(ctx context.Context, typeID int64, fieldName string) (*recordtype.RecordType, *recordtype.Binding, *record.Repository, error) {
	owner, err := e.factory.Get(ctx, typeID)
	if err != nil {
		return nil, nil, nil, err
	}
	b := owner.Binding(fieldName)
	if b == nil {
		return nil, nil, nil, errors.Wrapf(errs.ErrNotFound, "field %s on type %d", fieldName, typeID)
	}
	if b.Relation == nil {
		return nil, nil, nil, errors.Wrapf(errs.ErrNotImplemented, "field %s is %s, not a reference", fieldName, b.Field.Kind)
	}
	rt, err := e.factory.Target(ctx, b)
	if err != nil {
		return nil, nil, nil, err
	}
	target := record.NewRepository(e.db, e.store.Dialect(), rt)
	target.SetLogger(e.log)
	return owner, b, target, nil
}

// CreateChoiceSet 创建选项集，选项值不能为空也不能重复
func (e *Engine) CreateChoiceSet(ctx context.Context, cs *schema.ChoiceSet) error {
	verr := &errs.ValidationError{}
	if strings.TrimSpace(cs.Name) == "" {
		verr.Add(errs.NewValidationError("name", "choice set name is required"))
	}
	if len(cs.Choices) == 0 {
		verr.Add(errs.NewValidationError("choices", "at least one choice is required"))
	}
	seen := map[string]bool{}
	for i, c := range cs.Choices {
		if c.Value == "" {
			verr.Add(errs.NewValidationError("choices", "choice %d has an empty value", i))
			continue
		}
		if seen[c.Value] {
			verr.Add(errs.NewValidationError("choices", "duplicate choice %q", c.Value))
		}
		seen[c.Value] = true
		if c.Label == "" {
			cs.Choices[i].Label = c.Value
		}
	}
	if err := verr.OrNil(); err != nil {
		return err
	}
	return e.store.CreateChoiceSet(ctx, nil, cs)
}

func (e *Engine) ListChoiceSets(ctx context.Context) ([]*schema.ChoiceSet, error) {
	return e.store.ListChoiceSets(ctx, nil)
}

// DeleteChoiceSet 仍被字段使用时返回 SchemaConflictError
func (e *Engine) DeleteChoiceSet(ctx context.Context, id int64) error {
	return e.store.DeleteChoiceSet(ctx, nil, id)
}
