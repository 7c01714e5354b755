package field

import (
	"github.com/pkg/errors"

	"github.com/hatlonely/customobj/dialect"
	"github.com/hatlonely/customobj/errs"
	"github.com/hatlonely/customobj/schema"
)

// Plugin 一种字段类型的全部行为：存储列、取值校验、序列化、表单描述以及引用类型的关联关系
//
// 插件集合是固定的，通过未导出方法封闭实现。不支持的操作返回 errs.ErrNotImplemented，
// 调用方应当把它当作功能不可用处理。
type Plugin interface {
	Kind() schema.Kind
	// Column 字段对应的存储列，multiobject 没有存储列
	Column(f *schema.FieldDescriptor) (*dialect.Column, error)
	// Clean 把外部输入转换为规范取值
	Clean(f *schema.FieldDescriptor, raw any) (any, error)
	// Validate 校验规范取值
	Validate(f *schema.FieldDescriptor, value any) error
	Serialize(f *schema.FieldDescriptor, value any) (any, error)
	Deserialize(f *schema.FieldDescriptor, stored any) (any, error)
	// Wire 给表单和序列化层使用的字段描述
	Wire(f *schema.FieldDescriptor) *WireField
	// Relation 引用类型的关联关系
	Relation(f *schema.FieldDescriptor) (*RelationSpec, error)

	sealed()
}

// Cardinality 关联基数
type Cardinality string

const (
	CardinalityOne  Cardinality = "one"
	CardinalityMany Cardinality = "many"
)

// RelationSpec 引用字段的关联关系
type RelationSpec struct {
	TargetTypeID int64
	TargetTable  string
	// 单值引用为空，外键列在所属表上
	JoinTable    string
	SourceColumn string
	TargetColumn string
	Cardinality  Cardinality
}

// WireField 字段的外部描述，供表单、API 序列化使用
type WireField struct {
	Name         string          `json:"name"`
	Label        string          `json:"label"`
	Kind         schema.Kind     `json:"kind"`
	Widget       string          `json:"widget"`
	Description  string          `json:"description,omitempty"`
	Group        string          `json:"group,omitempty"`
	Required     bool            `json:"required"`
	ReadOnly     bool            `json:"readOnly"`
	Hidden       bool            `json:"hidden"`
	Default      any             `json:"default,omitempty"`
	Min          *int64          `json:"min,omitempty"`
	Max          *int64          `json:"max,omitempty"`
	MaxLength    int             `json:"maxLength,omitempty"`
	Regex        string          `json:"regex,omitempty"`
	Choices      []schema.Choice `json:"choices,omitempty"`
	TargetTypeID int64           `json:"targetTypeId,omitempty"`
	TargetFilter map[string]any  `json:"targetFilter,omitempty"`
	Many         bool            `json:"many"`
}

// Identifiable 可以作为引用目标的对象
type Identifiable interface {
	RecordID() int64
}

var registry = map[schema.Kind]Plugin{
	schema.KindText:        &textPlugin{kind: schema.KindText, widget: "text"},
	schema.KindLongText:    &textPlugin{kind: schema.KindLongText, widget: "textarea"},
	schema.KindURL:         &textPlugin{kind: schema.KindURL, widget: "url"},
	schema.KindInteger:     &integerPlugin{},
	schema.KindDecimal:     &decimalPlugin{},
	schema.KindBoolean:     &booleanPlugin{},
	schema.KindDate:        &datePlugin{},
	schema.KindDateTime:    &dateTimePlugin{},
	schema.KindJSON:        &jsonPlugin{},
	schema.KindSelect:      &selectPlugin{},
	schema.KindMultiSelect: &multiSelectPlugin{},
	schema.KindObject:      &objectPlugin{},
	schema.KindMultiObject: &multiObjectPlugin{},
}

// Lookup 查找字段类型插件
func Lookup(kind schema.Kind) (Plugin, error) {
	p, ok := registry[kind]
	if !ok {
		return nil, errs.NewValidationError("kind", "unknown field kind %q", kind)
	}
	return p, nil
}

// MustLookup 查找插件，类型未知时 panic，只用于已校验过的字段
func MustLookup(kind schema.Kind) Plugin {
	p, err := Lookup(kind)
	if err != nil {
		panic(err)
	}
	return p
}

// CleanDescriptor 校验字段定义，包括默认值是否满足字段类型
func CleanDescriptor(f *schema.FieldDescriptor) error {
	if err := f.Clean(); err != nil {
		return err
	}
	p, err := Lookup(f.Kind)
	if err != nil {
		return err
	}
	def, err := f.DefaultValue()
	if err != nil {
		return errs.NewValidationError("default", "default must be valid JSON")
	}
	if def == nil {
		return nil
	}
	v, err := p.Clean(f, def)
	if err != nil {
		return relabel(err, "default")
	}
	if err := p.Validate(f, v); err != nil {
		return relabel(err, "default")
	}
	return nil
}

// DefaultStorage 默认值的存储形式，未设置时为 nil
func DefaultStorage(p Plugin, f *schema.FieldDescriptor) (any, error) {
	def, err := f.DefaultValue()
	if err != nil || def == nil {
		return nil, err
	}
	v, err := p.Clean(f, def)
	if err != nil {
		return nil, err
	}
	return p.Serialize(f, v)
}

// DefaultCanonical 默认值的规范取值，未设置时为 nil
func DefaultCanonical(p Plugin, f *schema.FieldDescriptor) (any, error) {
	def, err := f.DefaultValue()
	if err != nil || def == nil {
		return nil, err
	}
	return p.Clean(f, def)
}

func relabel(err error, field string) error {
	var verr *errs.ValidationError
	if errors.As(err, &verr) {
		return errs.NewValidationError(field, "%s", verr.Message)
	}
	return err
}

// base 默认实现，不支持的操作返回 ErrNotImplemented
type base struct{}

func (base) sealed() {}

func (base) Relation(f *schema.FieldDescriptor) (*RelationSpec, error) {
	return nil, errs.ErrNotImplemented
}

func wire(f *schema.FieldDescriptor, widget string) *WireField {
	w := &WireField{
		Name:        f.Name,
		Label:       f.DisplayLabel(),
		Kind:        f.Kind,
		Widget:      widget,
		Description: f.Description,
		Group:       f.GroupName,
		Required:    f.Required,
		ReadOnly:    f.UIEditable == schema.UIEditableNo,
		Hidden:      f.UIVisible == schema.UIVisibleHidden || f.UIEditable == schema.UIEditableHidden,
	}
	if def, err := f.DefaultValue(); err == nil {
		w.Default = def
	}
	return w
}

// missing 空值只在必填字段上报错
func missing(f *schema.FieldDescriptor) error {
	if f.Required {
		return errs.NewValidationError(f.Name, "this field is required")
	}
	return nil
}
