package dialect

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

const mysqlErrDuplicateEntry = 1062

// MySQL 的 DDL 会隐式提交事务，失败时需要调用方执行补偿语句
type MySQL struct{}

func (d *MySQL) Name() string {
	return "mysql"
}

func (d *MySQL) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (d *MySQL) ColumnType(c *Column) string {
	switch c.Type {
	case ColumnTypeString:
		if c.Size > 0 {
			return fmt.Sprintf("VARCHAR(%d)", c.Size)
		}
		return "VARCHAR(255)"
	case ColumnTypeText:
		return "LONGTEXT"
	case ColumnTypeBigInt:
		return "BIGINT"
	case ColumnTypeDecimal:
		return fmt.Sprintf("DECIMAL(%d,%d)", precisionOr(c.Precision, 12), c.Scale)
	case ColumnTypeBool:
		return "BOOLEAN"
	case ColumnTypeDate:
		return "DATE"
	case ColumnTypeDateTime:
		return "DATETIME(6)"
	case ColumnTypeJSON:
		return "JSON"
	default:
		return "VARCHAR(255)"
	}
}

func precisionOr(p, def int) int {
	if p > 0 {
		return p
	}
	return def
}

// mysql 的 TEXT/JSON 列不能有字面量默认值
func (d *MySQL) literalDefault(c *Column) bool {
	return c.Default != nil && c.Type != ColumnTypeText && c.Type != ColumnTypeJSON
}

func (d *MySQL) columnDefinition(c *Column) string {
	parts := []string{d.Quote(c.Name)}
	if c.PrimaryKey && c.AutoIncrement {
		parts = append(parts, "BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY")
		return strings.Join(parts, " ")
	}
	parts = append(parts, d.ColumnType(c))
	if c.Required {
		parts = append(parts, "NOT NULL")
	} else {
		parts = append(parts, "NULL")
	}
	if d.literalDefault(c) {
		parts = append(parts, "DEFAULT "+formatDefaultValue(c.Default, d.boolLiteral))
	}
	return strings.Join(parts, " ")
}

func (d *MySQL) boolLiteral(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func (d *MySQL) CreateTable(t *Table) []string {
	return buildCreateTableSQL(d, t, d.columnDefinition, " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4")
}

func (d *MySQL) DropTable(name string) []string {
	return []string{fmt.Sprintf("DROP TABLE IF EXISTS %s", d.Quote(name))}
}

func (d *MySQL) AddColumn(table string, c *Column) []string {
	stmts := []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.Quote(table), d.columnDefinition(c))}
	if c.Default != nil && !d.literalDefault(c) {
		stmts = append(stmts, fmt.Sprintf("UPDATE %s SET %s = %s", d.Quote(table), d.Quote(c.Name), formatDefaultValue(c.Default, d.boolLiteral)))
	}
	if c.References != nil {
		stmts = append(stmts, d.AddForeignKey(table, c)...)
	}
	if c.Unique {
		stmts = append(stmts, d.CreateIndex(table, uniqueIndex(table, c.Name)))
	}
	return stmts
}

func (d *MySQL) DropColumn(table string, c *Column) []string {
	var stmts []string
	if c.References != nil {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", d.Quote(table), d.Quote(ForeignKeyName(table, c.Name))))
	}
	return append(stmts, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.Quote(table), d.Quote(c.Name)))
}

func (d *MySQL) AlterColumn(table string, oldCol, newCol *Column) []string {
	if SameStorage(oldCol, newCol) {
		return uniqueChange(d, table, oldCol, newCol)
	}
	stmts := []string{fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s", d.Quote(table), d.columnDefinition(newCol))}
	return append(stmts, uniqueChange(d, table, oldCol, newCol)...)
}

func (d *MySQL) CreateIndex(table string, idx *Index) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)", unique, d.Quote(idx.Name), d.Quote(table), quoteAll(d, idx.Columns))
}

func (d *MySQL) DropIndex(table string, name string) string {
	return fmt.Sprintf("DROP INDEX %s ON %s", d.Quote(name), d.Quote(table))
}

func (d *MySQL) AddForeignKey(table string, c *Column) []string {
	if c.References == nil {
		return nil
	}
	return []string{fmt.Sprintf("ALTER TABLE %s ADD %s", d.Quote(table), foreignKeyClause(d, table, c))}
}

func (d *MySQL) InsertIgnore(table string, columns []string) string {
	return fmt.Sprintf("INSERT IGNORE INTO %s (%s) VALUES (%s)", d.Quote(table), quoteAll(d, columns), placeholders(len(columns)))
}

// Insert mysql 没有 RETURNING，在同一连接上读取 LAST_INSERT_ID
func (d *MySQL) Insert(ctx context.Context, db *gorm.DB, table string, columns []string, args []any) (int64, error) {
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", d.Quote(table), quoteAll(d, columns), placeholders(len(columns)))
	var id int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(sql, args...).Error; err != nil {
			return err
		}
		return tx.Raw("SELECT LAST_INSERT_ID()").Scan(&id).Error
	})
	return id, err
}

func (d *MySQL) SupportsForeignKeys() bool {
	return true
}

func (d *MySQL) TransactionalDDL() bool {
	return false
}

func (d *MySQL) IsUniqueViolation(err error) bool {
	var e *mysql.MySQLError
	return errors.As(err, &e) && e.Number == mysqlErrDuplicateEntry
}
