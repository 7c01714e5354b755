package field

import (
	"sort"

	"github.com/hatlonely/customobj/dialect"
	"github.com/hatlonely/customobj/schema"
)

const selectMaxLength = 100

func choices(f *schema.FieldDescriptor) []schema.Choice {
	if f.ChoiceSet == nil {
		return nil
	}
	out := append([]schema.Choice(nil), f.ChoiceSet.Choices...)
	if f.ChoiceSet.OrderAlphabetically {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	}
	return out
}

// 选项集合未加载时不做取值范围检查
func checkChoice(f *schema.FieldDescriptor, value string) error {
	if f.ChoiceSet != nil && !f.ChoiceSet.Has(value) {
		return invalid(f, "invalid choice %q", value)
	}
	return nil
}

type selectPlugin struct {
	base
}

func (p *selectPlugin) Kind() schema.Kind {
	return schema.KindSelect
}

func (p *selectPlugin) Column(f *schema.FieldDescriptor) (*dialect.Column, error) {
	def, err := DefaultStorage(p, f)
	if err != nil {
		return nil, err
	}
	return &dialect.Column{Name: schema.FieldColumn(f.ID), Type: dialect.ColumnTypeString, Size: selectMaxLength, Default: def, Unique: f.Unique}, nil
}

func (p *selectPlugin) Clean(f *schema.FieldDescriptor, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	return toString(f, raw)
}

func (p *selectPlugin) Validate(f *schema.FieldDescriptor, value any) error {
	if value == nil {
		return missing(f)
	}
	s, ok := value.(string)
	if !ok {
		return invalid(f, "expected a string, got %T", value)
	}
	if s == "" {
		return missing(f)
	}
	if len(s) > selectMaxLength {
		return invalid(f, "ensure this value has at most %d characters", selectMaxLength)
	}
	return checkChoice(f, s)
}

func (p *selectPlugin) Serialize(f *schema.FieldDescriptor, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	return toString(f, value)
}

func (p *selectPlugin) Deserialize(f *schema.FieldDescriptor, stored any) (any, error) {
	if stored == nil {
		return nil, nil
	}
	if s, err := toString(f, stored); err == nil {
		return s, nil
	}
	return toTextFromScalar(stored), nil
}

func (p *selectPlugin) Wire(f *schema.FieldDescriptor) *WireField {
	w := wire(f, "select")
	w.Choices = choices(f)
	return w
}

// multiselect 以 JSON 数组存储
type multiSelectPlugin struct {
	base
}

func (p *multiSelectPlugin) Kind() schema.Kind {
	return schema.KindMultiSelect
}

func (p *multiSelectPlugin) Column(f *schema.FieldDescriptor) (*dialect.Column, error) {
	def, err := DefaultStorage(p, f)
	if err != nil {
		return nil, err
	}
	return &dialect.Column{Name: schema.FieldColumn(f.ID), Type: dialect.ColumnTypeJSON, Default: def}, nil
}

func (p *multiSelectPlugin) Clean(f *schema.FieldDescriptor, raw any) (any, error) {
	switch x := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{x}, nil
	case []string:
		return append([]string{}, x...), nil
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, err := toString(f, item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, invalid(f, "expected a list of strings, got %T", raw)
	}
}

func (p *multiSelectPlugin) Validate(f *schema.FieldDescriptor, value any) error {
	if value == nil {
		return missing(f)
	}
	values, ok := value.([]string)
	if !ok {
		return invalid(f, "expected a list of strings, got %T", value)
	}
	if len(values) == 0 {
		return missing(f)
	}
	for _, v := range values {
		if err := checkChoice(f, v); err != nil {
			return err
		}
	}
	return nil
}

func (p *multiSelectPlugin) Serialize(f *schema.FieldDescriptor, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	values, err := p.Clean(f, value)
	if err != nil {
		return nil, err
	}
	return encodeJSONText(f, values)
}

func (p *multiSelectPlugin) Deserialize(f *schema.FieldDescriptor, stored any) (any, error) {
	if stored == nil {
		return nil, nil
	}
	v, err := decodeJSONText(f, stored)
	if err != nil {
		return nil, err
	}
	return p.Clean(f, v)
}

func (p *multiSelectPlugin) Wire(f *schema.FieldDescriptor) *WireField {
	w := wire(f, "multiselect")
	w.Choices = choices(f)
	w.Many = true
	return w
}

type jsonPlugin struct {
	base
}

func (p *jsonPlugin) Kind() schema.Kind {
	return schema.KindJSON
}

func (p *jsonPlugin) Column(f *schema.FieldDescriptor) (*dialect.Column, error) {
	def, err := DefaultStorage(p, f)
	if err != nil {
		return nil, err
	}
	return &dialect.Column{Name: schema.FieldColumn(f.ID), Type: dialect.ColumnTypeJSON, Default: def}, nil
}

func (p *jsonPlugin) Clean(f *schema.FieldDescriptor, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	return normalizeJSON(f, raw)
}

func (p *jsonPlugin) Validate(f *schema.FieldDescriptor, value any) error {
	if value == nil {
		return missing(f)
	}
	if !decodedJSON(value) {
		return invalid(f, "expected a decoded JSON value, got %T", value)
	}
	return nil
}

// decodedJSON 取值只由 json.Unmarshal 到 any 时产生的类型组成
func decodedJSON(v any) bool {
	switch x := v.(type) {
	case nil, bool, float64, string:
		return true
	case []any:
		for _, item := range x {
			if !decodedJSON(item) {
				return false
			}
		}
		return true
	case map[string]any:
		for _, item := range x {
			if !decodedJSON(item) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (p *jsonPlugin) Serialize(f *schema.FieldDescriptor, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	return encodeJSONText(f, value)
}

func (p *jsonPlugin) Deserialize(f *schema.FieldDescriptor, stored any) (any, error) {
	if stored == nil {
		return nil, nil
	}
	return decodeJSONText(f, stored)
}

func (p *jsonPlugin) Wire(f *schema.FieldDescriptor) *WireField {
	return wire(f, "json")
}
