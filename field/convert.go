package field

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/hatlonely/customobj/errs"
	"github.com/hatlonely/customobj/schema"
)

const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04:05.999999"
)

var timeLayouts = []string{
	DateTimeLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07:00",
	"2006-01-02 15:04:05.999999Z07:00",
	DateLayout,
}

func invalid(f *schema.FieldDescriptor, format string, args ...any) error {
	return errs.NewValidationError(f.Name, format, args...)
}

func toString(f *schema.FieldDescriptor, v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	default:
		return "", invalid(f, "expected a string, got %T", v)
	}
}

func toInt64(f *schema.FieldDescriptor, v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, invalid(f, "value %d out of range", x)
		}
		return int64(x), nil
	case float32:
		return floatToInt64(f, float64(x))
	case float64:
		return floatToInt64(f, x)
	case json.Number:
		return parseInt64(f, string(x))
	case string:
		return parseInt64(f, x)
	case []byte:
		return parseInt64(f, string(x))
	default:
		return 0, invalid(f, "expected an integer, got %T", v)
	}
}

func floatToInt64(f *schema.FieldDescriptor, x float64) (int64, error) {
	if x != math.Trunc(x) || math.IsInf(x, 0) || math.IsNaN(x) || math.Abs(x) > math.MaxInt64 {
		return 0, invalid(f, "expected an integer, got %v", x)
	}
	return int64(x), nil
}

func parseInt64(f *schema.FieldDescriptor, s string) (int64, error) {
	s = strings.TrimSpace(s)
	i, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return i, nil
	}
	// DECIMAL 列转换后的文本形式，例如 "42.0000"
	if fl, ferr := strconv.ParseFloat(s, 64); ferr == nil {
		return floatToInt64(f, fl)
	}
	return 0, invalid(f, "%q is not a valid integer", s)
}

func toFloat64(f *schema.FieldDescriptor, v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case json.Number:
		return parseFloat64(f, string(x))
	case string:
		return parseFloat64(f, x)
	case []byte:
		return parseFloat64(f, string(x))
	default:
		i, err := toInt64(f, v)
		if err != nil {
			return 0, invalid(f, "expected a number, got %T", v)
		}
		return float64(i), nil
	}
}

func parseFloat64(f *schema.FieldDescriptor, s string) (float64, error) {
	fl, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, invalid(f, "%q is not a valid number", s)
	}
	return fl, nil
}

func toBool(f *schema.FieldDescriptor, v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		return parseBool(f, x)
	case []byte:
		return parseBool(f, string(x))
	default:
		i, err := toInt64(f, v)
		if err != nil || (i != 0 && i != 1) {
			return false, invalid(f, "expected a boolean, got %v", v)
		}
		return i == 1, nil
	}
}

func parseBool(f *schema.FieldDescriptor, s string) (bool, error) {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, invalid(f, "%q is not a valid boolean", s)
	}
	return b, nil
}

func toTime(f *schema.FieldDescriptor, v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case *time.Time:
		if x == nil {
			return time.Time{}, invalid(f, "expected a time")
		}
		return *x, nil
	case string:
		return parseTime(f, x)
	case []byte:
		return parseTime(f, string(x))
	default:
		return time.Time{}, invalid(f, "expected a date/time, got %T", v)
	}
}

func parseTime(f *schema.FieldDescriptor, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, invalid(f, "%q is not a valid date/time", s)
}

func toDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func toDateTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// normalizeJSON 通过编解码得到 JSON 的规范形式
func normalizeJSON(f *schema.FieldDescriptor, v any) (any, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, invalid(f, "value is not JSON serializable: %v", err)
	}
	var out any
	if err := json.Unmarshal(buf, &out); err != nil {
		return nil, invalid(f, "value is not JSON serializable: %v", err)
	}
	return out, nil
}

func decodeJSONText(f *schema.FieldDescriptor, v any) (any, error) {
	var buf []byte
	switch x := v.(type) {
	case string:
		buf = []byte(x)
	case []byte:
		buf = x
	default:
		return normalizeJSON(f, v)
	}
	var out any
	if err := json.Unmarshal(buf, &out); err != nil {
		return nil, invalid(f, "stored value is not valid JSON: %v", err)
	}
	return out, nil
}

func encodeJSONText(f *schema.FieldDescriptor, v any) (string, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return "", invalid(f, "value is not JSON serializable: %v", err)
	}
	return string(buf), nil
}

func toID(f *schema.FieldDescriptor, v any) (int64, error) {
	if obj, ok := v.(Identifiable); ok {
		return obj.RecordID(), nil
	}
	id, err := toInt64(f, v)
	if err != nil {
		return 0, invalid(f, "expected an object id, got %T", v)
	}
	return id, nil
}

func toTextFromScalar(v any) string {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format(DateTimeLayout)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
