package schema

// Kind 字段类型
type Kind string

const (
	KindText        Kind = "text"
	KindLongText    Kind = "longtext"
	KindInteger     Kind = "integer"
	KindDecimal     Kind = "decimal"
	KindBoolean     Kind = "boolean"
	KindDate        Kind = "date"
	KindDateTime    Kind = "datetime"
	KindURL         Kind = "url"
	KindJSON        Kind = "json"
	KindSelect      Kind = "select"
	KindMultiSelect Kind = "multiselect"
	KindObject      Kind = "object"
	KindMultiObject Kind = "multiobject"
)

// Kinds 全部字段类型，顺序固定
var Kinds = []Kind{
	KindText, KindLongText, KindInteger, KindDecimal, KindBoolean, KindDate, KindDateTime,
	KindURL, KindJSON, KindSelect, KindMultiSelect, KindObject, KindMultiObject,
}

func (k Kind) Valid() bool {
	for _, kind := range Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (k Kind) IsNumeric() bool {
	return k == KindInteger || k == KindDecimal
}

func (k Kind) IsText() bool {
	return k == KindText || k == KindLongText || k == KindURL
}

func (k Kind) IsSelect() bool {
	return k == KindSelect || k == KindMultiSelect
}

func (k Kind) IsReference() bool {
	return k == KindObject || k == KindMultiObject
}

// IsMulti 多值类型，multiobject 没有存储列，使用关联表
func (k Kind) IsMulti() bool {
	return k == KindMultiSelect || k == KindMultiObject
}

// Family 存储族，同族之间可以原地转换列类型，跨族只能删除重建
func (k Kind) Family() string {
	switch k {
	case KindText, KindLongText, KindURL, KindSelect:
		return "string"
	case KindInteger, KindDecimal:
		return "numeric"
	case KindDate, KindDateTime:
		return "temporal"
	default:
		return string(k)
	}
}
