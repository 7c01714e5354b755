package dialect

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

type Postgres struct{}

func (d *Postgres) Name() string {
	return "postgres"
}

func (d *Postgres) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (d *Postgres) ColumnType(c *Column) string {
	switch c.Type {
	case ColumnTypeString:
		if c.Size > 0 {
			return fmt.Sprintf("VARCHAR(%d)", c.Size)
		}
		return "VARCHAR(255)"
	case ColumnTypeText:
		return "TEXT"
	case ColumnTypeBigInt:
		return "BIGINT"
	case ColumnTypeDecimal:
		return fmt.Sprintf("NUMERIC(%d,%d)", precisionOr(c.Precision, 12), c.Scale)
	case ColumnTypeBool:
		return "BOOLEAN"
	case ColumnTypeDate:
		return "DATE"
	case ColumnTypeDateTime:
		return "TIMESTAMP(6)"
	case ColumnTypeJSON:
		return "JSONB"
	default:
		return "VARCHAR(255)"
	}
}

func (d *Postgres) boolLiteral(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}

func (d *Postgres) columnDefinition(c *Column) string {
	if c.PrimaryKey && c.AutoIncrement {
		return d.Quote(c.Name) + " BIGSERIAL PRIMARY KEY"
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

func (d *Postgres) CreateTable(t *Table) []string {
	return buildCreateTableSQL(d, t, d.columnDefinition, "")
}

func (d *Postgres) DropTable(name string) []string {
	return []string{fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", d.Quote(name))}
}

func (d *Postgres) AddColumn(table string, c *Column) []string {
	stmts := []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.Quote(table), d.columnDefinition(c))}
	if c.References != nil {
		stmts = append(stmts, d.AddForeignKey(table, c)...)
	}
	if c.Unique {
		stmts = append(stmts, d.CreateIndex(table, uniqueIndex(table, c.Name)))
	}
	return stmts
}

func (d *Postgres) DropColumn(table string, c *Column) []string {
	return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN IF EXISTS %s", d.Quote(table), d.Quote(c.Name))}
}

func (d *Postgres) AlterColumn(table string, oldCol, newCol *Column) []string {
	if SameStorage(oldCol, newCol) {
		return uniqueChange(d, table, oldCol, newCol)
	}

	t, col := d.Quote(table), d.Quote(newCol.Name)
	typ := d.ColumnType(newCol)
	stmts := []string{
		fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT", t, col),
		fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s", t, col, typ, col, typ),
	}
	if newCol.Default != nil {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s", t, col, formatDefaultValue(newCol.Default, d.boolLiteral)))
	}
	return append(stmts, uniqueChange(d, table, oldCol, newCol)...)
}

func (d *Postgres) CreateIndex(table string, idx *Index) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)", unique, d.Quote(idx.Name), d.Quote(table), quoteAll(d, idx.Columns))
}

func (d *Postgres) DropIndex(table string, name string) string {
	return fmt.Sprintf("DROP INDEX IF EXISTS %s", d.Quote(name))
}

func (d *Postgres) AddForeignKey(table string, c *Column) []string {
	if c.References == nil {
		return nil
	}
	return []string{fmt.Sprintf("ALTER TABLE %s ADD %s", d.Quote(table), foreignKeyClause(d, table, c))}
}

func (d *Postgres) InsertIgnore(table string, columns []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING", d.Quote(table), quoteAll(d, columns), placeholders(len(columns)))
}

func (d *Postgres) Insert(ctx context.Context, db *gorm.DB, table string, columns []string, args []any) (int64, error) {
	return insertReturning(ctx, d, db, table, columns, args)
}

func (d *Postgres) SupportsForeignKeys() bool {
	return true
}

func (d *Postgres) TransactionalDDL() bool {
	return true
}

func (d *Postgres) IsUniqueViolation(err error) bool {
	var e *pgconn.PgError
	return errors.As(err, &e) && e.Code == pgUniqueViolation
}
