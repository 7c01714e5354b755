package customobj

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/hatlonely/customobj/errs"
	"github.com/hatlonely/customobj/field"
	"github.com/hatlonely/customobj/migrate"
	"github.com/hatlonely/customobj/schema"
)

// AddField 添加字段并加列或建关联表，已有记录的新列为默认值或 NULL
func (e *Engine) AddField(ctx context.Context, typeID int64, req *FieldRequest) (*schema.FieldDescriptor, error) {
	fd, err := req.descriptor()
	if err != nil {
		return nil, err
	}
	fd.TypeID = typeID

	err = e.mutate(ctx, "add_field", []int64{typeID, fd.Target()}, func(ctx context.Context, tx *gorm.DB, op *operation) error {
		td, err := e.store.GetType(ctx, tx, typeID)
		if err != nil {
			return err
		}
		if err := e.prepareField(ctx, tx, fd, td.Fields); err != nil {
			return err
		}
		if err := e.store.CreateField(ctx, tx, fd); err != nil {
			return err
		}
		res, err := e.migrator.AddField(ctx, tx, td, fd)
		op.record(res)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fd, nil
}

// AlterField 用请求整体替换字段属性并同步存储
//
// 同一存储族内的类型变化原地转换数据；跨族或更换引用目标时列被删除后重建，
// 原有取值全部丢失，此时 AlterResult.DataDiscarded 为 true。
func (e *Engine) AlterField(ctx context.Context, fieldID int64, req *FieldRequest) (*AlterResult, error) {
	current, err := e.store.GetField(ctx, nil, fieldID)
	if err != nil {
		return nil, err
	}
	to, err := req.descriptor()
	if err != nil {
		return nil, err
	}

	result := &AlterResult{Field: to}
	err = e.mutate(ctx, "alter_field", []int64{current.TypeID, current.Target(), to.Target()}, func(ctx context.Context, tx *gorm.DB, op *operation) error {
		from, err := e.store.GetField(ctx, tx, fieldID)
		if err != nil {
			return err
		}
		td, err := e.store.GetType(ctx, tx, from.TypeID)
		if err != nil {
			return err
		}
		op.invalidate(from.Target())

		to.ID, to.TypeID, to.CreatedAt = from.ID, from.TypeID, from.CreatedAt
		if err := e.prepareField(ctx, tx, to, td.Fields); err != nil {
			return err
		}
		if err := e.store.UpdateField(ctx, tx, to); err != nil {
			return err
		}
		res, err := e.migrator.AlterField(ctx, tx, td, from, to)
		op.record(res)
		if err != nil {
			return err
		}
		result.Change = res.Change
		result.DataDiscarded = res.Change == migrate.ChangeRecreate
		result.Statements = res.Statements
		if result.DataDiscarded {
			op.log.WarnContext(ctx, "field values discarded", "typeID", td.ID, "fieldID", to.ID, "from", from.Kind, "to", to.Kind)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RenameField 只修改字段名，列名由字段 id 决定，不需要迁移
func (e *Engine) RenameField(ctx context.Context, fieldID int64, name string) (*schema.FieldDescriptor, error) {
	if err := schema.ValidateFieldName(name); err != nil {
		return nil, err
	}
	current, err := e.store.GetField(ctx, nil, fieldID)
	if err != nil {
		return nil, err
	}

	var fd *schema.FieldDescriptor
	err = e.mutate(ctx, "rename_field", []int64{current.TypeID, current.Target()}, func(ctx context.Context, tx *gorm.DB, op *operation) error {
		var err error
		if fd, err = e.store.GetField(ctx, tx, fieldID); err != nil {
			return err
		}
		// 由旧名称生成的 label 跟随新名称
		if fd.Label == strings.ReplaceAll(fd.Name, "_", " ") {
			fd.Label = ""
		}
		fd.Name = name
		fd.ApplyDefaults()
		return e.store.UpdateField(ctx, tx, fd)
	})
	if err != nil {
		return nil, err
	}
	return fd, nil
}

// DeleteField 删除列或关联表，再删除描述符
func (e *Engine) DeleteField(ctx context.Context, fieldID int64) error {
	current, err := e.store.GetField(ctx, nil, fieldID)
	if err != nil {
		return err
	}

	return e.mutate(ctx, "delete_field", []int64{current.TypeID, current.Target()}, func(ctx context.Context, tx *gorm.DB, op *operation) error {
		fd, err := e.store.GetField(ctx, tx, fieldID)
		if err != nil {
			return err
		}
		td, err := e.store.GetType(ctx, tx, fd.TypeID)
		if err != nil {
			return err
		}
		op.invalidate(fd.Target())

		res, err := e.migrator.DropField(ctx, tx, td, fd)
		op.record(res)
		if err != nil {
			return err
		}
		return e.store.DeleteField(ctx, tx, fd)
	})
}

func (e *Engine) GetField(ctx context.Context, fieldID int64) (*schema.FieldDescriptor, error) {
	return e.store.GetField(ctx, nil, fieldID)
}

// ListFields 按分组、权重、名称排序
func (e *Engine) ListFields(ctx context.Context, typeID int64) ([]*schema.FieldDescriptor, error) {
	if _, err := e.store.GetType(ctx, nil, typeID); err != nil {
		return nil, err
	}
	return e.store.ListFields(ctx, nil, typeID)
}

// prepareField 校验字段定义，siblings 是类型上已有的字段
func (e *Engine) prepareField(ctx context.Context, tx *gorm.DB, fd *schema.FieldDescriptor, siblings []*schema.FieldDescriptor) error {
	if err := schema.ValidateFieldName(fd.Name); err != nil {
		return err
	}
	fd.ApplyDefaults()

	fd.ChoiceSet = nil
	if fd.ChoiceSetID != nil {
		cs, err := e.store.GetChoiceSet(ctx, tx, *fd.ChoiceSetID)
		if errs.IsNotFound(err) {
			return errs.NewValidationError("choiceSet", "choice set %d does not exist", *fd.ChoiceSetID)
		}
		if err != nil {
			return err
		}
		fd.ChoiceSet = cs
	}

	if err := field.CleanDescriptor(fd); err != nil {
		return err
	}

	if target := fd.Target(); target != 0 && target != fd.TypeID {
		ok, err := e.store.TypeExists(ctx, tx, target)
		if err != nil {
			return err
		}
		if !ok {
			return errs.NewValidationError("targetTypeId", "object type %d does not exist", target)
		}
	}

	if fd.Primary {
		for _, other := range siblings {
			if other.Primary && other.ID != fd.ID {
				return errs.NewValidationError("primary", "type already has a primary field %s", other.Name)
			}
		}
	}
	return nil
}

// collect 把字段定义的校验错误归到字段名下，不是校验错误时返回 false
func collect(verr *errs.ValidationError, name string, err error) bool {
	var ferr *errs.ValidationError
	if !errors.As(err, &ferr) {
		return false
	}
	if len(ferr.Fields) == 0 {
		verr.Add(errs.NewValidationError(name+"."+ferr.Field, "%s", ferr.Message))
		return true
	}
	for _, f := range ferr.Fields {
		verr.Add(errs.NewValidationError(name+"."+f.Field, "%s", f.Message))
	}
	return true
}
