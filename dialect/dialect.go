package dialect

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Dialect 生成特定数据库的 DDL/DML，并识别该数据库的错误
type Dialect interface {
	Name() string
	Quote(ident string) string
	ColumnType(c *Column) string

	CreateTable(t *Table) []string
	DropTable(name string) []string
	AddColumn(table string, c *Column) []string
	DropColumn(table string, c *Column) []string
	// AlterColumn 原地修改列，调用方保证新旧列属于同一存储族
	AlterColumn(table string, oldCol, newCol *Column) []string
	CreateIndex(table string, idx *Index) string
	DropIndex(table string, name string) string
	AddForeignKey(table string, c *Column) []string

	// InsertIgnore 唯一约束冲突时跳过
	InsertIgnore(table string, columns []string) string
	// Insert 插入一行并返回自增 id
	Insert(ctx context.Context, db *gorm.DB, table string, columns []string, args []any) (int64, error)

	SupportsForeignKeys() bool
	TransactionalDDL() bool
	IsUniqueViolation(err error) bool
}

// New 根据驱动名创建方言
func New(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return &SQLite{}, nil
	case "mysql":
		return &MySQL{}, nil
	case "postgres", "postgresql", "pgx":
		return &Postgres{}, nil
	default:
		return nil, errors.Errorf("unsupported driver %q", driver)
	}
}

// FromDB 根据 gorm 连接推断方言
func FromDB(db *gorm.DB) (Dialect, error) {
	return New(db.Dialector.Name())
}

func quoteAll(d Dialect, idents []string) string {
	quoted := make([]string, len(idents))
	for i, ident := range idents {
		quoted[i] = d.Quote(ident)
	}
	return strings.Join(quoted, ", ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// formatDefaultValue 默认值字面量
func formatDefaultValue(value any, boolLiteral func(bool) string) string {
	switch v := value.(type) {
	case string:
		return fmt.Sprintf("'%s'", strings.ReplaceAll(v, "'", "''"))
	case []byte:
		return fmt.Sprintf("'%s'", strings.ReplaceAll(string(v), "'", "''"))
	case bool:
		return boolLiteral(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func buildCreateTableSQL(d Dialect, t *Table, columnDef func(c *Column) string, suffix string) []string {
	var parts []string
	for _, c := range t.Columns {
		parts = append(parts, "  "+columnDef(c))
	}
	if d.SupportsForeignKeys() {
		for _, c := range t.Columns {
			if c.References == nil {
				continue
			}
			parts = append(parts, "  "+foreignKeyClause(d, t.Name, c))
		}
	}

	stmts := []string{fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)%s", d.Quote(t.Name), strings.Join(parts, ",\n"), suffix)}
	for _, c := range t.Columns {
		if c.Unique && !c.PrimaryKey {
			stmts = append(stmts, d.CreateIndex(t.Name, uniqueIndex(t.Name, c.Name)))
		}
	}
	for _, idx := range t.Indexes {
		stmts = append(stmts, d.CreateIndex(t.Name, idx))
	}
	return stmts
}

func foreignKeyClause(d Dialect, table string, c *Column) string {
	onDelete := c.References.OnDelete
	if onDelete == "" {
		onDelete = OnDeleteSetNull
	}
	return fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE %s",
		d.Quote(ForeignKeyName(table, c.Name)), d.Quote(c.Name),
		d.Quote(c.References.Table), d.Quote(c.References.Column), onDelete)
}

func uniqueIndex(table, column string) *Index {
	return &Index{Name: UniqueIndexName(table, column), Columns: []string{column}, Unique: true}
}

// UniqueIndexName 单列唯一索引名
func UniqueIndexName(table, column string) string {
	return fmt.Sprintf("uk_%s_%s", table, column)
}

// ForeignKeyName 外键约束名
func ForeignKeyName(table, column string) string {
	return fmt.Sprintf("fk_%s_%s", table, column)
}

// uniqueChange 唯一约束变化对应的索引语句
func uniqueChange(d Dialect, table string, oldCol, newCol *Column) []string {
	if oldCol.Unique == newCol.Unique {
		return nil
	}
	if newCol.Unique {
		return []string{d.CreateIndex(table, uniqueIndex(table, newCol.Name))}
	}
	return []string{d.DropIndex(table, UniqueIndexName(table, oldCol.Name))}
}

func insertReturning(ctx context.Context, d Dialect, db *gorm.DB, table string, columns []string, args []any) (int64, error) {
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		d.Quote(table), quoteAll(d, columns), placeholders(len(columns)), d.Quote("id"))
	var id int64
	if err := db.WithContext(ctx).Raw(sql, args...).Scan(&id).Error; err != nil {
		return 0, err
	}
	return id, nil
}
