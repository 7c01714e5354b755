package store

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hatlonely/customobj/errs"
	"github.com/hatlonely/customobj/schema"
)

// CreateType 写入类型描述符，名称大小写不敏感唯一
func (s *Store) CreateType(ctx context.Context, tx *gorm.DB, td *schema.TypeDescriptor) error {
	td.Slug = schema.Slugify(td.Name)
	if err := s.checkSlug(ctx, tx, td.Slug, 0); err != nil {
		return err
	}

	if err := s.conn(ctx, tx).Omit(clause.Associations).Create(td).Error; err != nil {
		return s.translate(err, td.Name, "db.Create type failed, name: %s", td.Name)
	}
	return nil
}

func (s *Store) checkSlug(ctx context.Context, tx *gorm.DB, slug string, exceptID int64) error {
	var count int64
	q := s.conn(ctx, tx).Model(&schema.TypeDescriptor{}).Where("slug = ?", slug)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return errors.Wrap(err, "db.Count types failed")
	}
	if count > 0 {
		return errs.NewSchemaConflictError(slug, "type name already exists")
	}
	return nil
}

// GetType 读取类型及其有序字段
func (s *Store) GetType(ctx context.Context, tx *gorm.DB, id int64) (*schema.TypeDescriptor, error) {
	var td schema.TypeDescriptor
	err := s.conn(ctx, tx).
		Preload("Fields", orderedFields).
		Preload("Fields.ChoiceSet").
		First(&td, id).Error
	if err != nil {
		return nil, s.translate(err, "", "db.First type failed, id: %d", id)
	}
	return &td, nil
}

// GetTypeByName 按名称读取类型，名称缓存只作为 id 提示，结果总是从数据库确认
func (s *Store) GetTypeByName(ctx context.Context, tx *gorm.DB, name string) (*schema.TypeDescriptor, error) {
	slug := schema.Slugify(name)

	if id, ok := s.names.get(slug); ok {
		td, err := s.GetType(ctx, tx, id)
		if err == nil && td.Slug == slug {
			return td, nil
		}
		s.names.del(slug)
	}

	if tx != nil {
		return s.getTypeBySlug(ctx, tx, slug)
	}

	v, err, _ := s.group.Do(slug, func() (any, error) {
		return s.getTypeBySlug(ctx, nil, slug)
	})
	if err != nil {
		return nil, err
	}
	return v.(*schema.TypeDescriptor), nil
}

func (s *Store) getTypeBySlug(ctx context.Context, tx *gorm.DB, slug string) (*schema.TypeDescriptor, error) {
	var td schema.TypeDescriptor
	err := s.conn(ctx, tx).
		Preload("Fields", orderedFields).
		Preload("Fields.ChoiceSet").
		Where("slug = ?", slug).
		First(&td).Error
	if err != nil {
		return nil, s.translate(err, slug, "db.First type failed, slug: %s", slug)
	}
	s.names.set(slug, td.ID)
	return &td, nil
}

// ListTypes 按名称排序，不加载字段
func (s *Store) ListTypes(ctx context.Context, tx *gorm.DB) ([]*schema.TypeDescriptor, error) {
	var tds []*schema.TypeDescriptor
	if err := s.conn(ctx, tx).Order("slug").Find(&tds).Error; err != nil {
		return nil, errors.Wrap(err, "db.Find types failed")
	}
	return tds, nil
}

// UpdateType 更新名称、复数名、描述和备注
func (s *Store) UpdateType(ctx context.Context, tx *gorm.DB, td *schema.TypeDescriptor) error {
	old, err := s.GetType(ctx, tx, td.ID)
	if err != nil {
		return err
	}

	td.Slug = schema.Slugify(td.Name)
	if td.Slug != old.Slug {
		if err := s.checkSlug(ctx, tx, td.Slug, td.ID); err != nil {
			return err
		}
	}

	err = s.conn(ctx, tx).Model(&schema.TypeDescriptor{ID: td.ID}).Select("name", "slug", "plural_name", "description", "comments", "updated_at").Updates(td).Error
	if err != nil {
		return s.translate(err, td.Name, "db.Updates type failed, id: %d", td.ID)
	}
	s.names.del(old.Slug)
	return nil
}

// DeleteType 删除类型和它的字段描述符
func (s *Store) DeleteType(ctx context.Context, tx *gorm.DB, td *schema.TypeDescriptor) error {
	db := s.conn(ctx, tx)
	if err := db.Where("type_id = ?", td.ID).Delete(&schema.FieldDescriptor{}).Error; err != nil {
		return errors.Wrapf(err, "db.Delete fields failed, typeID: %d", td.ID)
	}
	res := db.Delete(&schema.TypeDescriptor{}, td.ID)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "db.Delete type failed, id: %d", td.ID)
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(errs.ErrNotFound, "type %d", td.ID)
	}
	s.names.del(td.Slug)
	return nil
}

// TypeExists 只检查类型是否存在，不加载字段
func (s *Store) TypeExists(ctx context.Context, tx *gorm.DB, id int64) (bool, error) {
	var count int64
	if err := s.conn(ctx, tx).Model(&schema.TypeDescriptor{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, errors.Wrapf(err, "db.Count type failed, id: %d", id)
	}
	return count > 0, nil
}
