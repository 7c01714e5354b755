package field

import (
	"time"

	"github.com/hatlonely/customobj/dialect"
	"github.com/hatlonely/customobj/schema"
)

// 日期以 UTC 零点的 time.Time 表示，存储为 2006-01-02 文本
type datePlugin struct {
	base
}

func (p *datePlugin) Kind() schema.Kind {
	return schema.KindDate
}

func (p *datePlugin) Column(f *schema.FieldDescriptor) (*dialect.Column, error) {
	def, err := DefaultStorage(p, f)
	if err != nil {
		return nil, err
	}
	return &dialect.Column{Name: schema.FieldColumn(f.ID), Type: dialect.ColumnTypeDate, Default: def, Unique: f.Unique}, nil
}

func (p *datePlugin) Clean(f *schema.FieldDescriptor, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	t, err := toTime(f, raw)
	if err != nil {
		return nil, err
	}
	return toDate(t), nil
}

func (p *datePlugin) Validate(f *schema.FieldDescriptor, value any) error {
	if value == nil {
		return missing(f)
	}
	t, ok := value.(time.Time)
	if !ok {
		return invalid(f, "expected a date, got %T", value)
	}
	if t.IsZero() {
		return missing(f)
	}
	if t.Location() != time.UTC || !t.Equal(toDate(t)) {
		return invalid(f, "expected a date at UTC midnight, got %s", t.Format(time.RFC3339Nano))
	}
	return nil
}

func (p *datePlugin) Serialize(f *schema.FieldDescriptor, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	t, err := toTime(f, value)
	if err != nil {
		return nil, err
	}
	return toDate(t).Format(DateLayout), nil
}

func (p *datePlugin) Deserialize(f *schema.FieldDescriptor, stored any) (any, error) {
	if stored == nil {
		return nil, nil
	}
	t, err := toTime(f, stored)
	if err != nil {
		return nil, err
	}
	return toDate(t), nil
}

func (p *datePlugin) Wire(f *schema.FieldDescriptor) *WireField {
	return wire(f, "date")
}

// 时间统一为 UTC，精确到微秒
type dateTimePlugin struct {
	base
}

func (p *dateTimePlugin) Kind() schema.Kind {
	return schema.KindDateTime
}

func (p *dateTimePlugin) Column(f *schema.FieldDescriptor) (*dialect.Column, error) {
	def, err := DefaultStorage(p, f)
	if err != nil {
		return nil, err
	}
	return &dialect.Column{Name: schema.FieldColumn(f.ID), Type: dialect.ColumnTypeDateTime, Default: def, Unique: f.Unique}, nil
}

func (p *dateTimePlugin) Clean(f *schema.FieldDescriptor, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	t, err := toTime(f, raw)
	if err != nil {
		return nil, err
	}
	return toDateTime(t), nil
}

func (p *dateTimePlugin) Validate(f *schema.FieldDescriptor, value any) error {
	if value == nil {
		return missing(f)
	}
	t, ok := value.(time.Time)
	if !ok {
		return invalid(f, "expected a datetime, got %T", value)
	}
	if t.IsZero() {
		return missing(f)
	}
	// 存储只保留到微秒
	if t.Location() != time.UTC || t.Nanosecond()%int(time.Microsecond) != 0 {
		return invalid(f, "expected a UTC datetime with microsecond precision, got %s", t.Format(time.RFC3339Nano))
	}
	return nil
}

func (p *dateTimePlugin) Serialize(f *schema.FieldDescriptor, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	t, err := toTime(f, value)
	if err != nil {
		return nil, err
	}
	return toDateTime(t).Format(DateTimeLayout), nil
}

func (p *dateTimePlugin) Deserialize(f *schema.FieldDescriptor, stored any) (any, error) {
	if stored == nil {
		return nil, nil
	}
	t, err := toTime(f, stored)
	if err != nil {
		return nil, err
	}
	return toDateTime(t), nil
}

func (p *dateTimePlugin) Wire(f *schema.FieldDescriptor) *WireField {
	return wire(f, "datetime")
}

// FormatTimestamp 系统时间列的存储格式
func FormatTimestamp(t time.Time) string {
	return toDateTime(t).Format(DateTimeLayout)
}

// ParseTimestamp 读取系统时间列
func ParseTimestamp(stored any) (time.Time, error) {
	if stored == nil {
		return time.Time{}, nil
	}
	t, err := toTime(&schema.FieldDescriptor{Name: schema.ColumnCreated}, stored)
	if err != nil {
		return time.Time{}, err
	}
	return toDateTime(t), nil
}
