package dialect

import "reflect"

// ColumnType 逻辑列类型，由各方言映射为具体的 SQL 类型
type ColumnType string

const (
	ColumnTypeString   ColumnType = "string"
	ColumnTypeText     ColumnType = "text"
	ColumnTypeBigInt   ColumnType = "bigint"
	ColumnTypeDecimal  ColumnType = "decimal"
	ColumnTypeBool     ColumnType = "bool"
	ColumnTypeDate     ColumnType = "date"
	ColumnTypeDateTime ColumnType = "datetime"
	ColumnTypeJSON     ColumnType = "json"
)

const (
	OnDeleteCascade = "CASCADE"
	OnDeleteSetNull = "SET NULL"
)

// Column 列定义
type Column struct {
	Name      string
	Type      ColumnType
	Size      int // VARCHAR(Size)
	Precision int
	Scale     int
	Required  bool // NOT NULL
	Default   any  // 已序列化的存储值
	Unique    bool

	PrimaryKey    bool
	AutoIncrement bool

	References *ForeignKey
}

// ForeignKey 外键定义
type ForeignKey struct {
	Table    string
	Column   string
	OnDelete string
}

// Index 索引定义
type Index struct {
	Name    string
	Columns []string
	Unique  bool
}

// Table 表定义
type Table struct {
	Name    string
	Columns []*Column
	Indexes []*Index
}

// Column 按名称查找列
func (t *Table) Column(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// SameStorage 除唯一约束外存储形态是否一致
func SameStorage(a, b *Column) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Type != b.Type || a.Size != b.Size || a.Precision != b.Precision || a.Scale != b.Scale || a.Required != b.Required {
		return false
	}
	if !reflect.DeepEqual(a.Default, b.Default) {
		return false
	}
	return reflect.DeepEqual(a.References, b.References)
}

// Equal 两列定义完全一致
func Equal(a, b *Column) bool {
	return SameStorage(a, b) && (a == nil || a.Unique == b.Unique)
}
