package field

import (
	"encoding/json"

	"github.com/hatlonely/customobj/dialect"
	"github.com/hatlonely/customobj/errs"
	"github.com/hatlonely/customobj/schema"
)

func targetFilter(f *schema.FieldDescriptor) map[string]any {
	if len(f.TargetFilter) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(f.TargetFilter, &m); err != nil {
		return nil
	}
	return m
}

func referenceWire(f *schema.FieldDescriptor, widget string, many bool) *WireField {
	w := wire(f, widget)
	w.TargetTypeID = f.Target()
	w.TargetFilter = targetFilter(f)
	w.Many = many
	return w
}

// objectPlugin 单值引用，所属表上的外键列保存目标 id
type objectPlugin struct {
	base
}

func (p *objectPlugin) Kind() schema.Kind {
	return schema.KindObject
}

func (p *objectPlugin) Column(f *schema.FieldDescriptor) (*dialect.Column, error) {
	if f.Target() == 0 {
		return nil, errs.NewValidationError(f.Name, "object fields must define an object type")
	}
	return &dialect.Column{
		Name:   schema.FieldColumn(f.ID),
		Type:   dialect.ColumnTypeBigInt,
		Unique: f.Unique,
		References: &dialect.ForeignKey{
			Table:    schema.TableName(f.Target()),
			Column:   schema.ColumnID,
			OnDelete: dialect.OnDeleteSetNull,
		},
	}, nil
}

func (p *objectPlugin) Clean(f *schema.FieldDescriptor, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	return toID(f, raw)
}

func (p *objectPlugin) Validate(f *schema.FieldDescriptor, value any) error {
	if value == nil {
		return missing(f)
	}
	id, ok := value.(int64)
	if !ok {
		return invalid(f, "expected an object id, got %T", value)
	}
	if id <= 0 {
		return invalid(f, "invalid object id %d", id)
	}
	return nil
}

func (p *objectPlugin) Serialize(f *schema.FieldDescriptor, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	return toID(f, value)
}

func (p *objectPlugin) Deserialize(f *schema.FieldDescriptor, stored any) (any, error) {
	if stored == nil {
		return nil, nil
	}
	return toInt64(f, stored)
}

func (p *objectPlugin) Wire(f *schema.FieldDescriptor) *WireField {
	return referenceWire(f, "object", false)
}

func (p *objectPlugin) Relation(f *schema.FieldDescriptor) (*RelationSpec, error) {
	if f.Target() == 0 {
		return nil, errs.NewValidationError(f.Name, "object fields must define an object type")
	}
	return &RelationSpec{
		TargetTypeID: f.Target(),
		TargetTable:  schema.TableName(f.Target()),
		SourceColumn: schema.FieldColumn(f.ID),
		TargetColumn: schema.ColumnID,
		Cardinality:  CardinalityOne,
	}, nil
}

// multiObjectPlugin 多值引用，没有存储列，关系保存在独立的关联表中
type multiObjectPlugin struct {
	base
}

func (p *multiObjectPlugin) Kind() schema.Kind {
	return schema.KindMultiObject
}

func (p *multiObjectPlugin) Column(f *schema.FieldDescriptor) (*dialect.Column, error) {
	return nil, errs.ErrNotImplemented
}

func (p *multiObjectPlugin) Clean(f *schema.FieldDescriptor, raw any) (any, error) {
	var items []any
	switch x := raw.(type) {
	case nil:
		return nil, nil
	case []int64:
		return dedupIDs(x), nil
	case []any:
		items = x
	case []Identifiable:
		for _, item := range x {
			items = append(items, item)
		}
	default:
		id, err := toID(f, raw)
		if err != nil {
			return nil, invalid(f, "expected a list of object ids, got %T", raw)
		}
		return []int64{id}, nil
	}
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		id, err := toID(f, item)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return dedupIDs(ids), nil
}

func dedupIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (p *multiObjectPlugin) Validate(f *schema.FieldDescriptor, value any) error {
	if value == nil {
		return missing(f)
	}
	ids, ok := value.([]int64)
	if !ok {
		return invalid(f, "expected a list of object ids, got %T", value)
	}
	if len(ids) == 0 {
		return missing(f)
	}
	for _, id := range ids {
		if id <= 0 {
			return invalid(f, "invalid object id %d", id)
		}
	}
	return nil
}

func (p *multiObjectPlugin) Serialize(f *schema.FieldDescriptor, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	return p.Clean(f, value)
}

func (p *multiObjectPlugin) Deserialize(f *schema.FieldDescriptor, stored any) (any, error) {
	if stored == nil {
		return nil, nil
	}
	return p.Clean(f, stored)
}

func (p *multiObjectPlugin) Wire(f *schema.FieldDescriptor) *WireField {
	return referenceWire(f, "multiobject", true)
}

func (p *multiObjectPlugin) Relation(f *schema.FieldDescriptor) (*RelationSpec, error) {
	if f.Target() == 0 {
		return nil, errs.NewValidationError(f.Name, "object fields must define an object type")
	}
	return &RelationSpec{
		TargetTypeID: f.Target(),
		TargetTable:  schema.TableName(f.Target()),
		JoinTable:    schema.JoinTableName(f.TypeID, f.ID),
		SourceColumn: schema.JoinSourceColumn,
		TargetColumn: schema.JoinTargetColumn,
		Cardinality:  CardinalityMany,
	}, nil
}
