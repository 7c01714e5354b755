package store

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/hatlonely/customobj/errs"
	"github.com/hatlonely/customobj/schema"
)

func (s *Store) CreateChoiceSet(ctx context.Context, tx *gorm.DB, cs *schema.ChoiceSet) error {
	if err := s.conn(ctx, tx).Create(cs).Error; err != nil {
		return s.translate(err, cs.Name, "db.Create choice set failed, name: %s", cs.Name)
	}
	return nil
}

func (s *Store) GetChoiceSet(ctx context.Context, tx *gorm.DB, id int64) (*schema.ChoiceSet, error) {
	var cs schema.ChoiceSet
	if err := s.conn(ctx, tx).First(&cs, id).Error; err != nil {
		return nil, s.translate(err, "", "db.First choice set failed, id: %d", id)
	}
	return &cs, nil
}

func (s *Store) ListChoiceSets(ctx context.Context, tx *gorm.DB) ([]*schema.ChoiceSet, error) {
	var css []*schema.ChoiceSet
	if err := s.conn(ctx, tx).Order("name").Find(&css).Error; err != nil {
		return nil, errors.Wrap(err, "db.Find choice sets failed")
	}
	return css, nil
}

// UpdateChoiceSet 修改选项不影响已有数据，已存储但不再存在的取值在下次写入时校验失败
func (s *Store) UpdateChoiceSet(ctx context.Context, tx *gorm.DB, cs *schema.ChoiceSet) error {
	if err := s.conn(ctx, tx).Save(cs).Error; err != nil {
		return s.translate(err, cs.Name, "db.Save choice set failed, id: %d", cs.ID)
	}
	return nil
}

// DeleteChoiceSet 仍被字段使用时返回 SchemaConflictError
func (s *Store) DeleteChoiceSet(ctx context.Context, tx *gorm.DB, id int64) error {
	db := s.conn(ctx, tx)

	var used int64
	if err := db.Model(&schema.FieldDescriptor{}).Where("choice_set_id = ?", id).Count(&used).Error; err != nil {
		return errors.Wrap(err, "db.Count fields failed")
	}
	if used > 0 {
		cs, err := s.GetChoiceSet(ctx, tx, id)
		if err != nil {
			return err
		}
		return errs.NewSchemaConflictError(cs.Name, "choice set is used by %d field(s)", used)
	}

	res := db.Delete(&schema.ChoiceSet{}, id)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "db.Delete choice set failed, id: %d", id)
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(errs.ErrNotFound, "choice set %d", id)
	}
	return nil
}
