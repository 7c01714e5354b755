package field

import (
	"net/url"
	"regexp"
	"unicode/utf8"

	"github.com/hatlonely/customobj/dialect"
	"github.com/hatlonely/customobj/schema"
)

const urlMaxLength = 2048

// textPlugin text、longtext、url 共用，区别在于列类型和 url 格式校验
type textPlugin struct {
	base
	kind   schema.Kind
	widget string
}

func (p *textPlugin) Kind() schema.Kind {
	return p.kind
}

func (p *textPlugin) maxLength(f *schema.FieldDescriptor) int {
	switch p.kind {
	case schema.KindText:
		if f.MaxLength > 0 {
			return f.MaxLength
		}
		return schema.DefaultTextMaxLength
	case schema.KindURL:
		return urlMaxLength
	}
	return 0
}

func (p *textPlugin) Column(f *schema.FieldDescriptor) (*dialect.Column, error) {
	def, err := DefaultStorage(p, f)
	if err != nil {
		return nil, err
	}
	c := &dialect.Column{Name: schema.FieldColumn(f.ID), Type: dialect.ColumnTypeString, Size: p.maxLength(f), Default: def, Unique: f.Unique}
	if p.kind == schema.KindLongText {
		c.Type, c.Size = dialect.ColumnTypeText, 0
	}
	return c, nil
}

func (p *textPlugin) Clean(f *schema.FieldDescriptor, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	return toString(f, raw)
}

func (p *textPlugin) Validate(f *schema.FieldDescriptor, value any) error {
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
	if n := p.maxLength(f); n > 0 && utf8.RuneCountInString(s) > n {
		return invalid(f, "ensure this value has at most %d characters", n)
	}
	if p.kind == schema.KindURL {
		u, err := url.Parse(s)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return invalid(f, "enter a valid URL")
		}
	}
	if f.Regex != "" {
		re, err := regexp.Compile(f.Regex)
		if err != nil {
			return invalid(f, "invalid regular expression: %v", err)
		}
		if !re.MatchString(s) {
			return invalid(f, "values must match this regex: %s", f.Regex)
		}
	}
	return nil
}

func (p *textPlugin) Serialize(f *schema.FieldDescriptor, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	return toString(f, value)
}

func (p *textPlugin) Deserialize(f *schema.FieldDescriptor, stored any) (any, error) {
	if stored == nil {
		return nil, nil
	}
	switch x := stored.(type) {
	case string, []byte:
		return toString(f, x)
	default:
		// sqlite 在类型转换后可能返回数值
		return toTextFromScalar(x), nil
	}
}

func (p *textPlugin) Wire(f *schema.FieldDescriptor) *WireField {
	w := wire(f, p.widget)
	w.MaxLength = p.maxLength(f)
	w.Regex = f.Regex
	return w
}
