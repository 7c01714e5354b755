package field

import (
	"math"

	"github.com/hatlonely/customobj/dialect"
	"github.com/hatlonely/customobj/schema"
)

const (
	DecimalPrecision = 12
	DecimalScale     = 4
)

type integerPlugin struct {
	base
}

func (p *integerPlugin) Kind() schema.Kind {
	return schema.KindInteger
}

func (p *integerPlugin) Column(f *schema.FieldDescriptor) (*dialect.Column, error) {
	def, err := DefaultStorage(p, f)
	if err != nil {
		return nil, err
	}
	return &dialect.Column{Name: schema.FieldColumn(f.ID), Type: dialect.ColumnTypeBigInt, Default: def, Unique: f.Unique}, nil
}

func (p *integerPlugin) Clean(f *schema.FieldDescriptor, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	return toInt64(f, raw)
}

func (p *integerPlugin) Validate(f *schema.FieldDescriptor, value any) error {
	if value == nil {
		return missing(f)
	}
	i, ok := value.(int64)
	if !ok {
		return invalid(f, "expected an integer, got %T", value)
	}
	if f.MinValue != nil && i < *f.MinValue {
		return invalid(f, "ensure this value is greater than or equal to %d", *f.MinValue)
	}
	if f.MaxValue != nil && i > *f.MaxValue {
		return invalid(f, "ensure this value is less than or equal to %d", *f.MaxValue)
	}
	return nil
}

func (p *integerPlugin) Serialize(f *schema.FieldDescriptor, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	return toInt64(f, value)
}

func (p *integerPlugin) Deserialize(f *schema.FieldDescriptor, stored any) (any, error) {
	if stored == nil {
		return nil, nil
	}
	return toInt64(f, stored)
}

func (p *integerPlugin) Wire(f *schema.FieldDescriptor) *WireField {
	w := wire(f, "number")
	w.Min, w.Max = f.MinValue, f.MaxValue
	return w
}

type decimalPlugin struct {
	base
}

func (p *decimalPlugin) Kind() schema.Kind {
	return schema.KindDecimal
}

func (p *decimalPlugin) Column(f *schema.FieldDescriptor) (*dialect.Column, error) {
	def, err := DefaultStorage(p, f)
	if err != nil {
		return nil, err
	}
	return &dialect.Column{
		Name:      schema.FieldColumn(f.ID),
		Type:      dialect.ColumnTypeDecimal,
		Precision: DecimalPrecision,
		Scale:     DecimalScale,
		Default:   def,
		Unique:    f.Unique,
	}, nil
}

func (p *decimalPlugin) Clean(f *schema.FieldDescriptor, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	return toFloat64(f, raw)
}

func (p *decimalPlugin) Validate(f *schema.FieldDescriptor, value any) error {
	if value == nil {
		return missing(f)
	}
	v, ok := value.(float64)
	if !ok {
		return invalid(f, "expected a decimal, got %T", value)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return invalid(f, "enter a finite number")
	}
	if math.Abs(v) >= math.Pow10(DecimalPrecision-DecimalScale) {
		return invalid(f, "ensure there are no more than %d digits before the decimal point", DecimalPrecision-DecimalScale)
	}
	scaled := v * math.Pow10(DecimalScale)
	if math.Abs(scaled-math.Round(scaled)) > 1e-6 {
		return invalid(f, "ensure there are no more than %d decimal places", DecimalScale)
	}
	if f.MinValue != nil && v < float64(*f.MinValue) {
		return invalid(f, "ensure this value is greater than or equal to %d", *f.MinValue)
	}
	if f.MaxValue != nil && v > float64(*f.MaxValue) {
		return invalid(f, "ensure this value is less than or equal to %d", *f.MaxValue)
	}
	return nil
}

func (p *decimalPlugin) Serialize(f *schema.FieldDescriptor, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	return toFloat64(f, value)
}

func (p *decimalPlugin) Deserialize(f *schema.FieldDescriptor, stored any) (any, error) {
	if stored == nil {
		return nil, nil
	}
	return toFloat64(f, stored)
}

func (p *decimalPlugin) Wire(f *schema.FieldDescriptor) *WireField {
	w := wire(f, "decimal")
	w.Min, w.Max = f.MinValue, f.MaxValue
	return w
}

type booleanPlugin struct {
	base
}

func (p *booleanPlugin) Kind() schema.Kind {
	return schema.KindBoolean
}

func (p *booleanPlugin) Column(f *schema.FieldDescriptor) (*dialect.Column, error) {
	def, err := DefaultStorage(p, f)
	if err != nil {
		return nil, err
	}
	return &dialect.Column{Name: schema.FieldColumn(f.ID), Type: dialect.ColumnTypeBool, Default: def}, nil
}

func (p *booleanPlugin) Clean(f *schema.FieldDescriptor, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	return toBool(f, raw)
}

func (p *booleanPlugin) Validate(f *schema.FieldDescriptor, value any) error {
	if value == nil {
		return missing(f)
	}
	if _, ok := value.(bool); !ok {
		return invalid(f, "expected a boolean, got %T", value)
	}
	return nil
}

func (p *booleanPlugin) Serialize(f *schema.FieldDescriptor, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	return toBool(f, value)
}

func (p *booleanPlugin) Deserialize(f *schema.FieldDescriptor, stored any) (any, error) {
	if stored == nil {
		return nil, nil
	}
	return toBool(f, stored)
}

func (p *booleanPlugin) Wire(f *schema.FieldDescriptor) *WireField {
	return wire(f, "checkbox")
}
