package dialect

import (
	"context"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// SQLite 不支持在线增删外键，引用完整性由记录层维护
type SQLite struct{}

func (d *SQLite) Name() string {
	return "sqlite"
}

func (d *SQLite) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (d *SQLite) ColumnType(c *Column) string {
	switch c.Type {
	case ColumnTypeBigInt, ColumnTypeBool:
		return "INTEGER"
	case ColumnTypeDecimal:
		return "REAL"
	default:
		return "TEXT"
	}
}

func (d *SQLite) columnDefinition(c *Column) string {
	if c.PrimaryKey && c.AutoIncrement {
		return d.Quote(c.Name) + " INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	parts := []string{d.Quote(c.Name), d.ColumnType(c)}
	if c.PrimaryKey {
		parts = append(parts, "PRIMARY KEY")
	}
	if c.Required {
		parts = append(parts, "NOT NULL")
	}
	if c.Default != nil {
		parts = append(parts, "DEFAULT "+formatDefaultValue(c.Default, d.boolLiteral))
	}
	return strings.Join(parts, " ")
}

func (d *SQLite) boolLiteral(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func (d *SQLite) CreateTable(t *Table) []string {
	return buildCreateTableSQL(d, t, d.columnDefinition, "")
}

func (d *SQLite) DropTable(name string) []string {
	return []string{fmt.Sprintf("DROP TABLE IF EXISTS %s", d.Quote(name))}
}

func (d *SQLite) AddColumn(table string, c *Column) []string {
	stmts := []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.Quote(table), d.columnDefinition(c))}
	if c.Unique {
		stmts = append(stmts, d.CreateIndex(table, uniqueIndex(table, c.Name)))
	}
	return stmts
}

func (d *SQLite) DropColumn(table string, c *Column) []string {
	return []string{
		d.DropIndex(table, UniqueIndexName(table, c.Name)),
		fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.Quote(table), d.Quote(c.Name)),
	}
}

// AlterColumn sqlite 不支持修改列类型，通过临时列复制数据后替换
func (d *SQLite) AlterColumn(table string, oldCol, newCol *Column) []string {
	if SameStorage(oldCol, newCol) {
		return uniqueChange(d, table, oldCol, newCol)
	}

	tmp := *newCol
	tmp.Name = newCol.Name + "_tmp"
	tmp.Unique = false

	stmts := []string{
		fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.Quote(table), d.columnDefinition(&tmp)),
		fmt.Sprintf("UPDATE %s SET %s = CAST(%s AS %s)", d.Quote(table), d.Quote(tmp.Name), d.Quote(oldCol.Name), d.ColumnType(newCol)),
		d.DropIndex(table, UniqueIndexName(table, oldCol.Name)),
		fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.Quote(table), d.Quote(oldCol.Name)),
		fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", d.Quote(table), d.Quote(tmp.Name), d.Quote(newCol.Name)),
	}
	if newCol.Unique {
		stmts = append(stmts, d.CreateIndex(table, uniqueIndex(table, newCol.Name)))
	}
	return stmts
}

func (d *SQLite) CreateIndex(table string, idx *Index) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)", unique, d.Quote(idx.Name), d.Quote(table), quoteAll(d, idx.Columns))
}

func (d *SQLite) DropIndex(table string, name string) string {
	return fmt.Sprintf("DROP INDEX IF EXISTS %s", d.Quote(name))
}

func (d *SQLite) AddForeignKey(table string, c *Column) []string {
	return nil
}

func (d *SQLite) InsertIgnore(table string, columns []string) string {
	return fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) VALUES (%s)", d.Quote(table), quoteAll(d, columns), placeholders(len(columns)))
}

func (d *SQLite) Insert(ctx context.Context, db *gorm.DB, table string, columns []string, args []any) (int64, error) {
	return insertReturning(ctx, d, db, table, columns, args)
}

func (d *SQLite) SupportsForeignKeys() bool {
	return false
}

func (d *SQLite) TransactionalDDL() bool {
	return true
}

func (d *SQLite) IsUniqueViolation(err error) bool {
	var e sqlite3.Error
	if errors.As(err, &e) {
		return e.ExtendedCode == sqlite3.ErrConstraintUnique || e.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
