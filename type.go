package customobj

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/hatlonely/customobj/errs"
	"github.com/hatlonely/customobj/recordtype"
	"github.com/hatlonely/customobj/schema"
)

// CreateType 创建类型和它的表，请求中的字段一起创建
func (e *Engine) CreateType(ctx context.Context, req *CreateTypeRequest) (*schema.TypeDescriptor, error) {
	if err := schema.ValidateTypeName(req.Name); err != nil {
		return nil, err
	}

	var targets []int64
	for _, fr := range req.Fields {
		targets = append(targets, fr.target())
	}

	td := &schema.TypeDescriptor{
		Name:        strings.TrimSpace(req.Name),
		PluralName:  req.PluralName,
		Description: req.Description,
		Comments:    req.Comments,
	}
	err := e.mutate(ctx, "create_type", targets, func(ctx context.Context, tx *gorm.DB, op *operation) error {
		if err := e.store.CreateType(ctx, tx, td); err != nil {
			return err
		}
		op.invalidate(td.ID)

		verr := &errs.ValidationError{}
		for _, fr := range req.Fields {
			fd, err := fr.descriptor()
			if err != nil {
				return err
			}
			fd.TypeID = td.ID
			if err := e.prepareField(ctx, tx, fd, td.Fields); err != nil {
				if !collect(verr, fd.Name, err) {
					return err
				}
				continue
			}
			if err := e.store.CreateField(ctx, tx, fd); err != nil {
				return err
			}
			td.Fields = append(td.Fields, fd)
		}
		if err := verr.OrNil(); err != nil {
			return err
		}

		res, err := e.migrator.CreateTable(ctx, tx, td)
		op.record(res)
		return err
	})
	if err != nil {
		return nil, err
	}
	return td, nil
}

// UpdateType 修改名称和展示信息，不涉及表结构
func (e *Engine) UpdateType(ctx context.Context, typeID int64, req *UpdateTypeRequest) (*schema.TypeDescriptor, error) {
	if err := schema.ValidateTypeName(req.Name); err != nil {
		return nil, err
	}

	var td *schema.TypeDescriptor
	err := e.mutate(ctx, "update_type", []int64{typeID}, func(ctx context.Context, tx *gorm.DB, op *operation) error {
		var err error
		if td, err = e.store.GetType(ctx, tx, typeID); err != nil {
			return err
		}
		td.Name = strings.TrimSpace(req.Name)
		td.PluralName = req.PluralName
		td.Description = req.Description
		td.Comments = req.Comments
		return e.store.UpdateType(ctx, tx, td)
	})
	if err != nil {
		return nil, err
	}
	return td, nil
}

// DeleteType 删除类型、它的表和关联表
//
// 仍被其它类型的引用字段指向时返回 SchemaConflictError，自引用不影响删除。
func (e *Engine) DeleteType(ctx context.Context, typeID int64) error {
	td, err := e.store.GetType(ctx, nil, typeID)
	if err != nil {
		return err
	}
	ids := []int64{typeID}
	for _, fd := range td.Fields {
		ids = append(ids, fd.Target())
	}

	return e.mutate(ctx, "delete_type", ids, func(ctx context.Context, tx *gorm.DB, op *operation) error {
		td, err := e.store.GetType(ctx, tx, typeID)
		if err != nil {
			return err
		}
		refs, err := e.store.ListFieldsTargeting(ctx, tx, typeID)
		if err != nil {
			return err
		}
		for _, fd := range refs {
			if fd.TypeID != typeID {
				return errs.NewSchemaConflictError(td.Name, "type is referenced by field %s of type %d", fd.Name, fd.TypeID)
			}
		}
		for _, fd := range td.Fields {
			op.invalidate(fd.Target())
		}

		rt, err := e.factory.Get(ctx, typeID, recordtype.WithoutCache(), recordtype.WithDB(tx))
		if err != nil {
			return err
		}
		res, err := e.migrator.DropTable(ctx, tx, rt)
		op.record(res)
		if err != nil {
			return err
		}
		return e.store.DeleteType(ctx, tx, td)
	})
}

func (e *Engine) GetType(ctx context.Context, typeID int64) (*schema.TypeDescriptor, error) {
	return e.store.GetType(ctx, nil, typeID)
}

// GetTypeByName 名称大小写不敏感
func (e *Engine) GetTypeByName(ctx context.Context, name string) (*schema.TypeDescriptor, error) {
	return e.store.GetTypeByName(ctx, nil, name)
}

func (e *Engine) ListTypes(ctx context.Context) ([]*schema.TypeDescriptor, error) {
	return e.store.ListTypes(ctx, nil)
}
