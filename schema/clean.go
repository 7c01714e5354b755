package schema

import (
	"encoding/json"
	"regexp"

	"github.com/hatlonely/customobj/errs"
)

const (
	DefaultTextMaxLength = 255
	MaxTextMaxLength     = 4096
)

// Clean 检查字段定义自身的约束组合，类型无关的部分在这里，取值相关的默认值检查由字段插件完成
func (f *FieldDescriptor) Clean() error {
	verr := &errs.ValidationError{}

	if !f.Kind.Valid() {
		verr.Add(errs.NewValidationError("kind", "unknown field kind %q", f.Kind))
		return verr.OrNil()
	}

	if f.MinValue != nil || f.MaxValue != nil {
		if !f.Kind.IsNumeric() {
			verr.Add(errs.NewValidationError("minValue", "a minimum/maximum value may be set only for numeric fields"))
		} else if f.MinValue != nil && f.MaxValue != nil && *f.MinValue > *f.MaxValue {
			verr.Add(errs.NewValidationError("maxValue", "maximum value must be greater than or equal to minimum value"))
		}
	}

	if f.Regex != "" {
		if !f.Kind.IsText() {
			verr.Add(errs.NewValidationError("regex", "regular expression validation is supported only for text and URL fields"))
		} else if _, err := regexp.Compile(f.Regex); err != nil {
			verr.Add(errs.NewValidationError("regex", "invalid regular expression: %v", err))
		}
	}

	if f.MaxLength != 0 {
		if f.Kind != KindText {
			verr.Add(errs.NewValidationError("maxLength", "a maximum length may be set only for text fields"))
		} else if f.MaxLength < 1 || f.MaxLength > MaxTextMaxLength {
			verr.Add(errs.NewValidationError("maxLength", "maximum length must be between 1 and %d", MaxTextMaxLength))
		}
	}

	if f.Unique {
		switch f.Kind {
		case KindBoolean, KindJSON, KindMultiSelect, KindMultiObject:
			verr.Add(errs.NewValidationError("unique", "uniqueness cannot be enforced for %s fields", f.Kind))
		}
	}

	if f.Kind.IsSelect() {
		if f.ChoiceSetID == nil && f.ChoiceSet == nil {
			verr.Add(errs.NewValidationError("choiceSet", "selection fields must specify a set of choices"))
		}
	} else if f.ChoiceSetID != nil || f.ChoiceSet != nil {
		verr.Add(errs.NewValidationError("choiceSet", "choices may be set only on selection fields"))
	}

	if f.Kind.IsReference() {
		if f.TargetTypeID == nil || *f.TargetTypeID <= 0 {
			verr.Add(errs.NewValidationError("targetTypeId", "object fields must define an object type"))
		}
		if len(f.TargetFilter) > 0 && string(f.TargetFilter) != "null" {
			var m map[string]any
			if err := json.Unmarshal(f.TargetFilter, &m); err != nil {
				verr.Add(errs.NewValidationError("targetFilter", "filter must be a JSON object"))
			}
		}
	} else {
		if f.TargetTypeID != nil {
			verr.Add(errs.NewValidationError("targetTypeId", "%s fields may not specify an object type", f.Kind))
		}
		if len(f.TargetFilter) > 0 && string(f.TargetFilter) != "null" {
			verr.Add(errs.NewValidationError("targetFilter", "a related object filter can be set only for object fields"))
		}
	}

	if f.Primary && (f.Kind.IsMulti() || f.Kind == KindJSON) {
		verr.Add(errs.NewValidationError("primary", "%s fields cannot be the primary field", f.Kind))
	}

	switch f.FilterLogic {
	case "", FilterLogicLoose, FilterLogicExact, FilterLogicDisabled:
	default:
		verr.Add(errs.NewValidationError("filterLogic", "unknown filter logic %q", f.FilterLogic))
	}
	switch f.UIVisible {
	case "", UIVisibleAlways, UIVisibleIfSet, UIVisibleHidden:
	default:
		verr.Add(errs.NewValidationError("uiVisible", "unknown ui visibility %q", f.UIVisible))
	}
	switch f.UIEditable {
	case "", UIEditableYes, UIEditableNo, UIEditableHidden:
	default:
		verr.Add(errs.NewValidationError("uiEditable", "unknown ui editability %q", f.UIEditable))
	}

	return verr.OrNil()
}

// ApplyDefaults 填充展示相关的默认值
func (f *FieldDescriptor) ApplyDefaults() {
	if f.Label == "" {
		f.Label = f.DisplayLabel()
	}
	if f.Weight == 0 {
		f.Weight = 100
	}
	if f.SearchWeight == 0 {
		f.SearchWeight = 1000
	}
	if f.FilterLogic == "" {
		f.FilterLogic = FilterLogicLoose
	}
	if f.UIVisible == "" {
		f.UIVisible = UIVisibleAlways
	}
	if f.UIEditable == "" {
		f.UIEditable = UIEditableYes
	}
	if f.Kind == KindText && f.MaxLength == 0 {
		f.MaxLength = DefaultTextMaxLength
	}
}
