package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hatlonely/customobj/errs"
)

const (
	TablePrefix = "custom_objects_"

	ColumnID          = "id"
	ColumnName        = "name"
	ColumnCreated     = "created"
	ColumnLastUpdated = "last_updated"

	JoinSourceColumn = "source_id"
	JoinTargetColumn = "target_id"

	MaxFieldNameLength = 50
	MaxTypeNameLength  = 100
)

// 表名与列名只由 id 生成，改名不需要迁移存储

func TableName(typeID int64) string {
	return fmt.Sprintf("%s%d", TablePrefix, typeID)
}

func FieldColumn(fieldID int64) string {
	return fmt.Sprintf("field_%d", fieldID)
}

func JoinTableName(typeID int64, fieldID int64) string {
	return fmt.Sprintf("%s%d_m2m_%d", TablePrefix, typeID, fieldID)
}

// ReservedFieldNames 不能用作字段名
var ReservedFieldNames = map[string]struct{}{
	"_meta": {}, "_state": {}, "objects": {}, "id": {}, "pk": {},
	"clean": {}, "delete": {}, "full_clean": {}, "refresh_from_db": {}, "save": {},
	"clone": {}, "custom_object_type": {}, "custom_object_type_id": {}, "custom_field_data": {},
	"model": {}, "created": {}, "last_updated": {}, "serialize_object": {}, "snapshot": {},
	"to_objectchange": {}, "bookmarks": {}, "contacts": {}, "images": {}, "jobs": {},
	"journal_entries": {}, "subscriptions": {}, "get_absolute_url": {},
	"source_id": {}, "target_id": {},
}

func IsReserved(name string) bool {
	_, ok := ReservedFieldNames[strings.ToLower(name)]
	return ok
}

var fieldNameRegex = regexp.MustCompile(`^[a-z0-9_]+$`)

// ValidateFieldName 检查字段名格式，保留名冲突返回 SchemaConflictError
func ValidateFieldName(name string) error {
	if name == "" {
		return errs.NewValidationError("name", "field name is required")
	}
	if len(name) > MaxFieldNameLength {
		return errs.NewValidationError("name", "field name must be at most %d characters", MaxFieldNameLength)
	}
	if !fieldNameRegex.MatchString(name) {
		return errs.NewValidationError("name", "only lowercase alphanumeric characters and underscores are allowed")
	}
	if strings.Contains(name, "__") {
		return errs.NewValidationError("name", "double underscores are not permitted in field names")
	}
	if IsReserved(name) {
		return errs.NewSchemaConflictError(name, "field name is reserved")
	}
	return nil
}

// Slugify 类型名的归一化形式，用于大小写不敏感的唯一约束
func Slugify(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// ValidateTypeName 检查类型名
func ValidateTypeName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errs.NewValidationError("name", "type name is required")
	}
	if len(name) > MaxTypeNameLength {
		return errs.NewValidationError("name", "type name must be at most %d characters", MaxTypeNameLength)
	}
	return nil
}
