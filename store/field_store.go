package store

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hatlonely/customobj/errs"
	"github.com/hatlonely/customobj/schema"
)

// ListFields 类型的字段，按 group_name, weight, name 排序
func (s *Store) ListFields(ctx context.Context, tx *gorm.DB, typeID int64) ([]*schema.FieldDescriptor, error) {
	var fds []*schema.FieldDescriptor
	err := orderedFields(s.conn(ctx, tx)).Preload("ChoiceSet").Where("type_id = ?", typeID).Find(&fds).Error
	if err != nil {
		return nil, errors.Wrapf(err, "db.Find fields failed, typeID: %d", typeID)
	}
	return fds, nil
}

func (s *Store) GetField(ctx context.Context, tx *gorm.DB, id int64) (*schema.FieldDescriptor, error) {
	var fd schema.FieldDescriptor
	if err := s.conn(ctx, tx).Preload("ChoiceSet").First(&fd, id).Error; err != nil {
		return nil, s.translate(err, "", "db.First field failed, id: %d", id)
	}
	return &fd, nil
}

// ListFieldsTargeting 其它类型（包括自身）上指向 typeID 的引用字段
func (s *Store) ListFieldsTargeting(ctx context.Context, tx *gorm.DB, typeID int64) ([]*schema.FieldDescriptor, error) {
	var fds []*schema.FieldDescriptor
	err := s.conn(ctx, tx).
		Where("target_type_id = ? AND kind IN ?", typeID, []schema.Kind{schema.KindObject, schema.KindMultiObject}).
		Order("type_id, id").
		Find(&fds).Error
	if err != nil {
		return nil, errors.Wrapf(err, "db.Find fields failed, targetTypeID: %d", typeID)
	}
	return fds, nil
}

// CreateField 写入字段描述符，同一类型内名称重复返回 SchemaConflictError
func (s *Store) CreateField(ctx context.Context, tx *gorm.DB, fd *schema.FieldDescriptor) error {
	if err := s.checkFieldName(ctx, tx, fd.TypeID, fd.Name, 0); err != nil {
		return err
	}
	if err := s.conn(ctx, tx).Omit(clause.Associations).Create(fd).Error; err != nil {
		return s.translate(err, fd.Name, "db.Create field failed, name: %s", fd.Name)
	}
	return nil
}

// UpdateField 保存字段描述符的全部属性
func (s *Store) UpdateField(ctx context.Context, tx *gorm.DB, fd *schema.FieldDescriptor) error {
	if err := s.checkFieldName(ctx, tx, fd.TypeID, fd.Name, fd.ID); err != nil {
		return err
	}
	if err := s.conn(ctx, tx).Omit(clause.Associations).Save(fd).Error; err != nil {
		return s.translate(err, fd.Name, "db.Save field failed, id: %d", fd.ID)
	}
	return nil
}

func (s *Store) DeleteField(ctx context.Context, tx *gorm.DB, fd *schema.FieldDescriptor) error {
	res := s.conn(ctx, tx).Delete(&schema.FieldDescriptor{}, fd.ID)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "db.Delete field failed, id: %d", fd.ID)
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(errs.ErrNotFound, "field %d", fd.ID)
	}
	return nil
}

func (s *Store) checkFieldName(ctx context.Context, tx *gorm.DB, typeID int64, name string, exceptID int64) error {
	var count int64
	q := s.conn(ctx, tx).Model(&schema.FieldDescriptor{}).Where("type_id = ? AND name = ?", typeID, name)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return errors.Wrap(err, "db.Count fields failed")
	}
	if count > 0 {
		return errs.NewSchemaConflictError(name, "field name already exists on type %d", typeID)
	}
	return nil
}
