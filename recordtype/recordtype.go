package recordtype

import (
	"github.com/hatlonely/customobj/dialect"
	"github.com/hatlonely/customobj/field"
	"github.com/hatlonely/customobj/schema"
)

// SystemColumns 每张记录表都有的列
func SystemColumns() []*dialect.Column {
	return []*dialect.Column{
		{Name: schema.ColumnID, Type: dialect.ColumnTypeBigInt, PrimaryKey: true, AutoIncrement: true, Required: true},
		{Name: schema.ColumnName, Type: dialect.ColumnTypeString, Size: 255},
		{Name: schema.ColumnCreated, Type: dialect.ColumnTypeDateTime},
		{Name: schema.ColumnLastUpdated, Type: dialect.ColumnTypeDateTime},
	}
}

// Binding 字段描述符与它的插件、存储列和关联关系
type Binding struct {
	Field  *schema.FieldDescriptor
	Plugin field.Plugin
	// 多值字段没有存储列
	Column *dialect.Column
	// 只有引用字段有关联关系
	Relation *field.RelationSpec
}

func (b *Binding) Name() string {
	return b.Field.Name
}

// Many 多值引用，值保存在关联表中
func (b *Binding) Many() bool {
	return b.Relation != nil && b.Relation.Cardinality == field.CardinalityMany
}

// Incoming 其它类型指向本类型的引用
type Incoming struct {
	TypeID int64
	Field  *schema.FieldDescriptor
	// 单值引用时为引用方的表和外键列，多值引用时为关联表和 target_id
	Table       string
	Column      string
	Cardinality field.Cardinality
}

// Skip 生成时被跳过的字段
type Skip struct {
	Field *schema.FieldDescriptor
	Err   error
}

// RecordType 某个类型在某个版本下生成的记录类型，发布后不再修改
type RecordType struct {
	TypeID     int64
	Descriptor *schema.TypeDescriptor
	Table      string
	Columns    []*dialect.Column
	Bindings   []*Binding
	Incoming   []*Incoming
	Skipped    []*Skip
	Version    int64

	byName map[string]*Binding
}

func (rt *RecordType) Name() string {
	return rt.Descriptor.Name
}

// Binding 按字段名查找
func (rt *RecordType) Binding(name string) *Binding {
	return rt.byName[name]
}

// BindingByID 按字段 id 查找
func (rt *RecordType) BindingByID(id int64) *Binding {
	for _, b := range rt.Bindings {
		if b.Field.ID == id {
			return b
		}
	}
	return nil
}

// Primary 主字段，它的值在没有给出名称时作为记录的显示名
func (rt *RecordType) Primary() *Binding {
	for _, b := range rt.Bindings {
		if b.Field.Primary {
			return b
		}
	}
	return nil
}

// Column 按列名查找
func (rt *RecordType) Column(name string) *dialect.Column {
	for _, c := range rt.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ColumnNames 所有存储列的列名，系统列在前
func (rt *RecordType) ColumnNames() []string {
	names := make([]string, len(rt.Columns))
	for i, c := range rt.Columns {
		names[i] = c.Name
	}
	return names
}

// Relations 引用字段
func (rt *RecordType) Relations() []*Binding {
	var bindings []*Binding
	for _, b := range rt.Bindings {
		if b.Relation != nil {
			bindings = append(bindings, b)
		}
	}
	return bindings
}

// TableDef 建表用的表定义
func (rt *RecordType) TableDef() *dialect.Table {
	return &dialect.Table{Name: rt.Table, Columns: rt.Columns}
}

// JoinTableDef 多值引用的关联表定义
func JoinTableDef(rel *field.RelationSpec, sourceTable string) *dialect.Table {
	return &dialect.Table{
		Name: rel.JoinTable,
		Columns: []*dialect.Column{
			{Name: schema.ColumnID, Type: dialect.ColumnTypeBigInt, PrimaryKey: true, AutoIncrement: true, Required: true},
			{Name: schema.JoinSourceColumn, Type: dialect.ColumnTypeBigInt, Required: true, References: &dialect.ForeignKey{
				Table: sourceTable, Column: schema.ColumnID, OnDelete: dialect.OnDeleteCascade,
			}},
			{Name: schema.JoinTargetColumn, Type: dialect.ColumnTypeBigInt, Required: true, References: &dialect.ForeignKey{
				Table: rel.TargetTable, Column: schema.ColumnID, OnDelete: dialect.OnDeleteCascade,
			}},
		},
		Indexes: []*dialect.Index{
			{Name: "uk_" + rel.JoinTable + "_pair", Columns: []string{schema.JoinSourceColumn, schema.JoinTargetColumn}, Unique: true},
			{Name: "idx_" + rel.JoinTable + "_target", Columns: []string{schema.JoinTargetColumn}},
		},
	}
}
