package migrate

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/hatlonely/customobj/dialect"
	"github.com/hatlonely/customobj/errs"
	"github.com/hatlonely/customobj/field"
	"github.com/hatlonely/customobj/recordtype"
	"github.com/hatlonely/customobj/schema"
)

// AddField 为已经写入事务的字段加列或建关联表
func (m *Migrator) AddField(ctx context.Context, tx *gorm.DB, td *schema.TypeDescriptor, fd *schema.FieldDescriptor) (*Result, error) {
	return m.observe(ctx, "add_field", td.ID, func(ctx context.Context) (*Result, error) {
		res := &Result{}
		after, err := m.shape(ctx, tx, td.ID)
		if err != nil {
			return res, err
		}
		b, err := binding(after, fd)
		if err != nil {
			return res, err
		}
		return res, m.addStorage(ctx, tx, after, b, res)
	})
}

// AlterField 字段描述符修改后同步存储
//
// 同一存储族内原地修改列类型并转换数据，跨族或更换引用目标时删除后重建，原有数据丢失。
func (m *Migrator) AlterField(ctx context.Context, tx *gorm.DB, td *schema.TypeDescriptor, from, to *schema.FieldDescriptor) (*Result, error) {
	return m.observe(ctx, "alter_field", td.ID, func(ctx context.Context) (*Result, error) {
		res := &Result{}
		before, err := m.shape(ctx, tx, td.ID, recordtype.WithReplacedField(from))
		if err != nil {
			return res, err
		}
		after, err := m.shape(ctx, tx, td.ID, recordtype.WithReplacedField(to))
		if err != nil {
			return res, err
		}
		nb, err := binding(after, to)
		if err != nil {
			return res, err
		}
		ob := before.BindingByID(from.ID)
		if ob == nil {
			ob = fallbackBinding(from)
		}

		res.Change = classify(ob, nb)
		switch res.Change {
		case ChangeAlter:
			err = m.alterStorage(ctx, tx, after.Table, ob.Column, nb.Column, res)
		case ChangeRecreate:
			m.log.WarnContext(ctx, "field storage recreated, existing values discarded",
				"typeID", td.ID, "fieldID", to.ID, "field", to.Name, "from", from.Kind, "to", to.Kind)
			if err = m.dropStorage(ctx, tx, before, ob, res); err == nil {
				err = m.addStorage(ctx, tx, after, nb, res)
			}
		}
		return res, err
	})
}

// DropField 删除字段的列或关联表，需要在删除描述符之前调用
func (m *Migrator) DropField(ctx context.Context, tx *gorm.DB, td *schema.TypeDescriptor, fd *schema.FieldDescriptor) (*Result, error) {
	return m.observe(ctx, "drop_field", td.ID, func(ctx context.Context) (*Result, error) {
		res := &Result{}
		before, err := m.shape(ctx, tx, td.ID)
		if err != nil {
			return res, err
		}
		b := before.BindingByID(fd.ID)
		if b == nil {
			b = fallbackBinding(fd)
		}
		return res, m.dropStorage(ctx, tx, before, b, res)
	})
}

func (m *Migrator) addStorage(ctx context.Context, tx *gorm.DB, rt *recordtype.RecordType, b *recordtype.Binding, res *Result) error {
	if b.Many() {
		return m.createJoinTable(ctx, tx, rt, b, res)
	}
	if b.Column == nil {
		return nil
	}
	if err := m.exec(ctx, tx, "add_column", rt.Table, res, m.dialect.AddColumn(rt.Table, b.Column)); err != nil {
		return err
	}
	m.compensate(res, m.dialect.DropColumn(rt.Table, b.Column)...)
	return nil
}

func (m *Migrator) dropStorage(ctx context.Context, tx *gorm.DB, rt *recordtype.RecordType, b *recordtype.Binding, res *Result) error {
	if b.Many() {
		return m.exec(ctx, tx, "drop_join_table", b.Relation.JoinTable, res, m.dialect.DropTable(b.Relation.JoinTable))
	}
	if b.Column == nil {
		return nil
	}
	return m.exec(ctx, tx, "drop_column", rt.Table, res, m.dialect.DropColumn(rt.Table, b.Column))
}

func (m *Migrator) alterStorage(ctx context.Context, tx *gorm.DB, table string, oldCol, newCol *dialect.Column, res *Result) error {
	if err := m.exec(ctx, tx, "alter_column", table, res, m.dialect.AlterColumn(table, oldCol, newCol)); err != nil {
		return err
	}
	m.compensate(res, m.dialect.AlterColumn(table, newCol, oldCol)...)
	return nil
}

// classify 判断新旧形态之间需要的存储变化
func classify(ob, nb *recordtype.Binding) Change {
	of, nf := ob.Field, nb.Field
	if of.Kind.Family() != nf.Kind.Family() {
		return ChangeRecreate
	}
	if of.Kind.IsReference() && of.Target() != nf.Target() {
		return ChangeRecreate
	}
	if ob.Many() != nb.Many() || (ob.Column == nil) != (nb.Column == nil) {
		return ChangeRecreate
	}
	if ob.Column == nil || dialect.Equal(ob.Column, nb.Column) {
		return ChangeNone
	}
	return ChangeAlter
}

// binding 生成时被跳过的字段返回跳过原因
func binding(rt *recordtype.RecordType, fd *schema.FieldDescriptor) (*recordtype.Binding, error) {
	if b := rt.BindingByID(fd.ID); b != nil {
		return b, nil
	}
	for _, skip := range rt.Skipped {
		if skip.Field.ID == fd.ID {
			return nil, skip.Err
		}
	}
	return nil, errors.Wrapf(errs.ErrNotFound, "field %d on type %d", fd.ID, rt.TypeID)
}

// fallbackBinding 引用目标已经不存在时字段会被跳过，存储仍然需要清理
func fallbackBinding(fd *schema.FieldDescriptor) *recordtype.Binding {
	b := &recordtype.Binding{Field: fd}
	p, err := field.Lookup(fd.Kind)
	if err != nil {
		return b
	}
	b.Plugin = p
	b.Relation, _ = p.Relation(fd)
	b.Column, _ = p.Column(fd)
	return b
}
