package schema

import (
	"context"
	"database/sql/driver"
	"strconv"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormschema "gorm.io/gorm/schema"
)

// JSON 描述符上的 JSON 取值，比如默认值和引用过滤条件
//
// sqlite 的 JSON 列是 NUMERIC 亲和性，数字和布尔字面量读回来不再是文本，因此在 sqlite 上按 TEXT 存储，
// 其它数据库与 datatypes.JSON 一致。
type JSON datatypes.JSON

func (j JSON) Value() (driver.Value, error) {
	return datatypes.JSON(j).Value()
}

func (j *JSON) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*j = nil
	case int64:
		*j = JSON(strconv.FormatInt(v, 10))
	case float64:
		*j = JSON(strconv.FormatFloat(v, 'g', -1, 64))
	case bool:
		*j = JSON(strconv.FormatBool(v))
	default:
		return (*datatypes.JSON)(j).Scan(value)
	}
	return nil
}

func (j JSON) MarshalJSON() ([]byte, error) {
	return datatypes.JSON(j).MarshalJSON()
}

func (j *JSON) UnmarshalJSON(b []byte) error {
	return (*datatypes.JSON)(j).UnmarshalJSON(b)
}

func (j JSON) String() string {
	return string(j)
}

func (JSON) GormDBDataType(db *gorm.DB, field *gormschema.Field) string {
	if db.Dialector.Name() == "sqlite" {
		return "TEXT"
	}
	return datatypes.JSON{}.GormDBDataType(db, field)
}

func (j JSON) GormValue(ctx context.Context, db *gorm.DB) clause.Expr {
	return datatypes.JSON(j).GormValue(ctx, db)
}
