package customobj

import (
	"encoding/json"

	"github.com/hatlonely/customobj/errs"
	"github.com/hatlonely/customobj/migrate"
	"github.com/hatlonely/customobj/schema"
)

// CreateTypeRequest 新类型，Fields 与类型在同一个事务里创建
type CreateTypeRequest struct {
	Name        string          `json:"name"`
	PluralName  string          `json:"pluralName"`
	Description string          `json:"description"`
	Comments    string          `json:"comments"`
	Fields      []*FieldRequest `json:"fields"`
}

// UpdateTypeRequest 修改类型的展示信息，表名不随名称变化
type UpdateTypeRequest struct {
	Name        string `json:"name"`
	PluralName  string `json:"pluralName"`
	Description string `json:"description"`
	Comments    string `json:"comments"`
}

// FieldRequest 字段的全部可编辑属性，AlterField 时整体替换原有属性
type FieldRequest struct {
	Name        string      `json:"name"`
	Label       string      `json:"label"`
	GroupName   string      `json:"groupName"`
	Description string      `json:"description"`
	Kind        schema.Kind `json:"kind"`
	Primary     bool        `json:"primary"`

	Required  bool   `json:"required"`
	Unique    bool   `json:"unique"`
	Default   any    `json:"default,omitempty"`
	MinValue  *int64 `json:"minValue,omitempty"`
	MaxValue  *int64 `json:"maxValue,omitempty"`
	MaxLength int    `json:"maxLength,omitempty"`
	Regex     string `json:"regex,omitempty"`

	ChoiceSetID  *int64         `json:"choiceSetId,omitempty"`
	TargetTypeID *int64         `json:"targetTypeId,omitempty"`
	TargetFilter map[string]any `json:"targetFilter,omitempty"`

	Weight       int    `json:"weight"`
	SearchWeight int    `json:"searchWeight"`
	FilterLogic  string `json:"filterLogic"`
	UIVisible    string `json:"uiVisible"`
	UIEditable   string `json:"uiEditable"`
	IsCloneable  bool   `json:"isCloneable"`
	Comments     string `json:"comments"`
}

func (r *FieldRequest) descriptor() (*schema.FieldDescriptor, error) {
	fd := &schema.FieldDescriptor{
		Name:         r.Name,
		Label:        r.Label,
		GroupName:    r.GroupName,
		Description:  r.Description,
		Kind:         r.Kind,
		Primary:      r.Primary,
		Required:     r.Required,
		Unique:       r.Unique,
		MinValue:     r.MinValue,
		MaxValue:     r.MaxValue,
		MaxLength:    r.MaxLength,
		Regex:        r.Regex,
		ChoiceSetID:  r.ChoiceSetID,
		TargetTypeID: r.TargetTypeID,
		Weight:       r.Weight,
		SearchWeight: r.SearchWeight,
		FilterLogic:  r.FilterLogic,
		UIVisible:    r.UIVisible,
		UIEditable:   r.UIEditable,
		IsCloneable:  r.IsCloneable,
		Comments:     r.Comments,
	}
	if r.Default != nil {
		buf, err := json.Marshal(r.Default)
		if err != nil {
			return nil, errs.NewValidationError("default", "default must be JSON serializable: %v", err)
		}
		fd.Default = schema.JSON(buf)
	}
	if r.TargetFilter != nil {
		buf, err := json.Marshal(r.TargetFilter)
		if err != nil {
			return nil, errs.NewValidationError("targetFilter", "filter must be JSON serializable: %v", err)
		}
		fd.TargetFilter = schema.JSON(buf)
	}
	return fd, nil
}

func (r *FieldRequest) target() int64 {
	if r.TargetTypeID == nil {
		return 0
	}
	return *r.TargetTypeID
}

// AlterResult 修改字段的结果
type AlterResult struct {
	Field  *schema.FieldDescriptor
	Change migrate.Change
	// DataDiscarded 存储不兼容，列被删除后重建，原有取值全部丢失
	DataDiscarded bool
	Statements    []string
}
