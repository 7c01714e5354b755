package migrate

import (
	"context"

	"gorm.io/gorm"

	"github.com/hatlonely/customobj/recordtype"
	"github.com/hatlonely/customobj/schema"
)

// CreateTable 为新类型建表，类型上已有的多值引用字段同时建关联表
func (m *Migrator) CreateTable(ctx context.Context, tx *gorm.DB, td *schema.TypeDescriptor) (*Result, error) {
	return m.observe(ctx, "create_table", td.ID, func(ctx context.Context) (*Result, error) {
		res := &Result{}
		rt, err := m.shape(ctx, tx, td.ID)
		if err != nil {
			return res, err
		}

		if err := m.exec(ctx, tx, "create_table", rt.Table, res, m.dialect.CreateTable(rt.TableDef())); err != nil {
			return res, err
		}
		m.compensate(res, m.dialect.DropTable(rt.Table)...)

		for _, b := range rt.Bindings {
			if !b.Many() {
				continue
			}
			if err := m.createJoinTable(ctx, tx, rt, b, res); err != nil {
				return res, err
			}
		}
		return res, nil
	})
}

// DropTable 删除类型的表和它所有多值引用的关联表，rt 是删除前的形态
func (m *Migrator) DropTable(ctx context.Context, tx *gorm.DB, rt *recordtype.RecordType) (*Result, error) {
	return m.observe(ctx, "drop_table", rt.TypeID, func(ctx context.Context) (*Result, error) {
		res := &Result{}
		for _, b := range rt.Bindings {
			if !b.Many() {
				continue
			}
			if err := m.exec(ctx, tx, "drop_table", b.Relation.JoinTable, res, m.dialect.DropTable(b.Relation.JoinTable)); err != nil {
				return res, err
			}
		}
		for _, skip := range rt.Skipped {
			if skip.Field.Kind != schema.KindMultiObject {
				continue
			}
			join := schema.JoinTableName(rt.TypeID, skip.Field.ID)
			if err := m.exec(ctx, tx, "drop_table", join, res, m.dialect.DropTable(join)); err != nil {
				return res, err
			}
		}
		if err := m.exec(ctx, tx, "drop_table", rt.Table, res, m.dialect.DropTable(rt.Table)); err != nil {
			return res, err
		}
		return res, nil
	})
}

func (m *Migrator) createJoinTable(ctx context.Context, tx *gorm.DB, rt *recordtype.RecordType, b *recordtype.Binding, res *Result) error {
	join := recordtype.JoinTableDef(b.Relation, rt.Table)
	if err := m.exec(ctx, tx, "create_join_table", join.Name, res, m.dialect.CreateTable(join)); err != nil {
		return err
	}
	m.compensate(res, m.dialect.DropTable(join.Name)...)
	return nil
}
