package schema

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"
)

const (
	FilterLogicLoose    = "loose"
	FilterLogicExact    = "exact"
	FilterLogicDisabled = "disabled"

	UIVisibleAlways = "always"
	UIVisibleIfSet  = "if-set"
	UIVisibleHidden = "hidden"

	UIEditableYes    = "yes"
	UIEditableNo     = "no"
	UIEditableHidden = "hidden"
)

// TypeDescriptor 用户定义的对象类型
type TypeDescriptor struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string `gorm:"size:100;not null" json:"name"`
	Slug        string `gorm:"size:100;not null;uniqueIndex:uk_customobj_types_slug" json:"slug"`
	Description string `gorm:"type:text" json:"description"`
	PluralName  string `gorm:"size:100" json:"pluralName"`
	Comments    string `gorm:"type:text" json:"comments"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Fields []*FieldDescriptor `gorm:"foreignKey:TypeID;constraint:OnDelete:CASCADE" json:"fields,omitempty"`
}

func (TypeDescriptor) TableName() string {
	return "customobj_types"
}

// DisplayPlural 复数展示名，未设置时在名称后追加 s
func (t *TypeDescriptor) DisplayPlural() string {
	if t.PluralName != "" {
		return t.PluralName
	}
	return t.Name + "s"
}

// Field 按名称查找字段
func (t *TypeDescriptor) Field(name string) *FieldDescriptor {
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// FieldDescriptor 类型上的一个字段
type FieldDescriptor struct {
	ID     int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	TypeID int64  `gorm:"not null;uniqueIndex:uk_customobj_fields_type_name,priority:1" json:"typeId"`
	Name   string `gorm:"size:50;not null;uniqueIndex:uk_customobj_fields_type_name,priority:2" json:"name"`

	Label       string `gorm:"size:50" json:"label"`
	GroupName   string `gorm:"size:50" json:"groupName"`
	Description string `gorm:"size:200" json:"description"`
	Kind        Kind   `gorm:"size:50;not null" json:"kind"`
	Primary     bool   `json:"primary"`

	Required  bool   `json:"required"`
	Unique    bool   `json:"unique"`
	Default   JSON   `json:"default,omitempty"`
	MinValue  *int64 `json:"minValue,omitempty"`
	MaxValue  *int64 `json:"maxValue,omitempty"`
	MaxLength int    `json:"maxLength,omitempty"`
	Regex     string `gorm:"size:500" json:"regex,omitempty"`

	ChoiceSetID *int64     `gorm:"index" json:"choiceSetId,omitempty"`
	ChoiceSet   *ChoiceSet `gorm:"constraint:OnDelete:RESTRICT" json:"choiceSet,omitempty"`

	TargetTypeID *int64 `gorm:"index" json:"targetTypeId,omitempty"`
	TargetFilter JSON   `json:"targetFilter,omitempty"`

	Weight       int    `gorm:"default:100" json:"weight"`
	SearchWeight int    `gorm:"default:1000" json:"searchWeight"`
	FilterLogic  string `gorm:"size:50;default:loose" json:"filterLogic"`
	UIVisible    string `gorm:"size:50;default:always" json:"uiVisible"`
	UIEditable   string `gorm:"size:50;default:yes" json:"uiEditable"`
	IsCloneable  bool   `json:"isCloneable"`
	Comments     string `gorm:"type:text" json:"comments"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (FieldDescriptor) TableName() string {
	return "customobj_fields"
}

// DefaultValue 解码默认值，未设置时返回 nil
func (f *FieldDescriptor) DefaultValue() (any, error) {
	if len(f.Default) == 0 || string(f.Default) == "null" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(f.Default, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Target 引用目标类型 id，非引用字段返回 0
func (f *FieldDescriptor) Target() int64 {
	if f.TargetTypeID == nil {
		return 0
	}
	return *f.TargetTypeID
}

// DisplayLabel 未设置 label 时由名称生成
func (f *FieldDescriptor) DisplayLabel() string {
	if f.Label != "" {
		return f.Label
	}
	return strings.ReplaceAll(f.Name, "_", " ")
}

// Clone 浅拷贝，用于在迁移中构造新旧两种形态
func (f *FieldDescriptor) Clone() *FieldDescriptor {
	c := *f
	return &c
}

// Choice 选项
type Choice struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// ChoiceSet 可被多个 select 字段共享的选项集合
type ChoiceSet struct {
	ID                  int64                       `gorm:"primaryKey;autoIncrement" json:"id"`
	Name                string                      `gorm:"size:100;not null;uniqueIndex:uk_customobj_choice_sets_name" json:"name"`
	Description         string                      `gorm:"size:200" json:"description"`
	Choices             datatypes.JSONSlice[Choice] `json:"choices"`
	OrderAlphabetically bool                        `json:"orderAlphabetically"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (ChoiceSet) TableName() string {
	return "customobj_choice_sets"
}

// Has 判断取值是否在选项中
func (c *ChoiceSet) Has(value string) bool {
	for _, choice := range c.Choices {
		if choice.Value == value {
			return true
		}
	}
	return false
}

// Models 描述符表，按依赖顺序
func Models() []any {
	return []any{&ChoiceSet{}, &TypeDescriptor{}, &FieldDescriptor{}}
}
