package migrate

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/hatlonely/customobj/dialect"
	"github.com/hatlonely/customobj/recordtype"
)

// RepairReport 修复过程中补建的对象
type RepairReport struct {
	Tables      []string
	Columns     []string
	JoinTables  []string
	Indexes     []string
	ForeignKeys []string
	// Skipped 无法生成的字段，通常是引用目标已经删除
	Skipped []string
}

func (r *RepairReport) Empty() bool {
	return len(r.Tables)+len(r.Columns)+len(r.JoinTables)+len(r.Indexes)+len(r.ForeignKeys) == 0
}

// Repair 对比描述符和数据库中实际存在的表、列、索引和外键，补建缺失的部分，可以重复执行
//
// 先补齐所有类型的表，再补列、关联表、索引和外键，引用其它类型的外键不依赖类型的处理顺序。
func (m *Migrator) Repair(ctx context.Context, db *gorm.DB) (*RepairReport, error) {
	report := &RepairReport{}
	res, err := m.observe(ctx, "repair", 0, func(ctx context.Context) (*Result, error) {
		res := &Result{}
		tds, err := m.store.ListTypes(ctx, db)
		if err != nil {
			return res, err
		}

		rts := make([]*recordtype.RecordType, 0, len(tds))
		for _, td := range tds {
			rt, err := m.shape(ctx, db, td.ID)
			if err != nil {
				return res, err
			}
			rts = append(rts, rt)
			for _, skip := range rt.Skipped {
				report.Skipped = append(report.Skipped, rt.Table+"."+skip.Field.Name+": "+skip.Err.Error())
			}
		}

		migrator := db.WithContext(ctx).Migrator()
		for _, rt := range rts {
			if migrator.HasTable(rt.Table) {
				continue
			}
			if err := m.exec(ctx, db, "repair", rt.Table, res, m.dialect.CreateTable(withoutReferences(rt.TableDef()))); err != nil {
				return res, err
			}
			report.Tables = append(report.Tables, rt.Table)
		}

		for _, rt := range rts {
			if err := m.repairTable(ctx, db, migrator, rt, report, res); err != nil {
				return res, err
			}
		}
		return res, nil
	})
	if err != nil {
		return report, errors.WithMessage(err, "repair failed")
	}

	if !report.Empty() {
		m.log.WarnContext(ctx, "schema repaired", "tables", report.Tables, "columns", report.Columns,
			"joinTables", report.JoinTables, "indexes", report.Indexes, "foreignKeys", report.ForeignKeys,
			"statements", len(res.Statements))
	}
	return report, nil
}

func (m *Migrator) repairTable(ctx context.Context, db *gorm.DB, migrator gorm.Migrator, rt *recordtype.RecordType, report *RepairReport, res *Result) error {
	for _, c := range rt.Columns {
		if c.PrimaryKey {
			continue
		}
		if !migrator.HasColumn(rt.Table, c.Name) {
			col := *c
			col.References = nil
			col.Unique = false
			if err := m.exec(ctx, db, "repair", rt.Table, res, m.dialect.AddColumn(rt.Table, &col)); err != nil {
				return err
			}
			report.Columns = append(report.Columns, rt.Table+"."+c.Name)
		}

		if c.Unique {
			name := dialect.UniqueIndexName(rt.Table, c.Name)
			if !migrator.HasIndex(rt.Table, name) {
				idx := &dialect.Index{Name: name, Columns: []string{c.Name}, Unique: true}
				if err := m.exec(ctx, db, "repair", rt.Table, res, []string{m.dialect.CreateIndex(rt.Table, idx)}); err != nil {
					return err
				}
				report.Indexes = append(report.Indexes, name)
			}
		}

		if c.References != nil && m.dialect.SupportsForeignKeys() {
			name := dialect.ForeignKeyName(rt.Table, c.Name)
			if !migrator.HasConstraint(rt.Table, name) {
				if err := m.exec(ctx, db, "repair", rt.Table, res, m.dialect.AddForeignKey(rt.Table, c)); err != nil {
					return err
				}
				report.ForeignKeys = append(report.ForeignKeys, name)
			}
		}
	}

	for _, b := range rt.Bindings {
		if !b.Many() || migrator.HasTable(b.Relation.JoinTable) {
			continue
		}
		join := recordtype.JoinTableDef(b.Relation, rt.Table)
		if err := m.exec(ctx, db, "repair", join.Name, res, m.dialect.CreateTable(join)); err != nil {
			return err
		}
		report.JoinTables = append(report.JoinTables, join.Name)
	}
	return nil
}

func withoutReferences(t *dialect.Table) *dialect.Table {
	cp := &dialect.Table{Name: t.Name, Indexes: t.Indexes}
	for _, c := range t.Columns {
		col := *c
		col.References = nil
		col.Unique = false
		cp.Columns = append(cp.Columns, &col)
	}
	return cp
}
