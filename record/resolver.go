package record

import (
	"time"

	"github.com/hatlonely/customobj/errs"
	"github.com/hatlonely/customobj/field"
	"github.com/hatlonely/customobj/schema"
)

// resolver 查询中的字段名映射为列，取值经过插件转换为存储形式
type resolver struct {
	r *Repository
}

func (rs resolver) Column(name string) (string, error) {
	switch name {
	case schema.ColumnID, schema.ColumnName, schema.ColumnCreated, schema.ColumnLastUpdated:
		return rs.r.quote(name), nil
	}
	b := rs.r.rt.Binding(name)
	if b == nil {
		return "", errs.NewValidationError(name, "unknown field")
	}
	if b.Column == nil {
		return "", errs.NewValidationError(name, "field has no column and cannot be filtered")
	}
	return rs.r.quote(b.Column.Name), nil
}

func (rs resolver) Value(name string, v any) (any, error) {
	switch name {
	case schema.ColumnID:
		id, err := toInt64(v)
		if err != nil {
			return nil, errs.NewValidationError(name, "%v", err)
		}
		return id, nil
	case schema.ColumnName:
		return toString(v), nil
	case schema.ColumnCreated, schema.ColumnLastUpdated:
		if t, ok := v.(time.Time); ok {
			return field.FormatTimestamp(t), nil
		}
		return v, nil
	}

	b := rs.r.rt.Binding(name)
	if b == nil {
		return nil, errs.NewValidationError(name, "unknown field")
	}
	c, err := b.Plugin.Clean(b.Field, v)
	if err != nil {
		return nil, err
	}
	return b.Plugin.Serialize(b.Field, c)
}
