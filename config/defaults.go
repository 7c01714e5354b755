package config

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// SetDefaults 按 def tag 为零值字段设置默认值，nil 指针视为未配置，不会被分配
func SetDefaults(object any) error {
	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("object must be a non-nil pointer")
	}
	return setDefaults(rv.Elem())
}

func setDefaults(rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		return setDefaults(rv.Elem())
	case reflect.Slice:
		for i := 0; i < rv.Len(); i++ {
			if err := setDefaults(rv.Index(i)); err != nil {
				return err
			}
		}
		return nil
	case reflect.Struct:
	default:
		return nil
	}

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		fieldValue := rv.Field(i)
		if !fieldValue.CanSet() {
			continue
		}

		if err := setDefaults(fieldValue); err != nil {
			return errors.WithMessagef(err, "field %s", field.Name)
		}

		def, ok := field.Tag.Lookup("def")
		if !ok || !fieldValue.IsZero() {
			continue
		}
		if err := setDefaultValue(fieldValue, def); err != nil {
			return errors.WithMessagef(err, "field %s", field.Name)
		}
	}
	return nil
}

func setDefaultValue(rv reflect.Value, def string) error {
	if rv.Type() == durationType {
		d, err := time.ParseDuration(def)
		if err != nil {
			return errors.Wrapf(err, "invalid duration value %q", def)
		}
		rv.SetInt(int64(d))
		return nil
	}

	switch rv.Kind() {
	case reflect.String:
		rv.SetString(def)
	case reflect.Bool:
		v, err := strconv.ParseBool(def)
		if err != nil {
			return errors.Wrapf(err, "invalid bool value %q", def)
		}
		rv.SetBool(v)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v, err := strconv.ParseInt(def, 0, rv.Type().Bits())
		if err != nil {
			return errors.Wrapf(err, "invalid int value %q", def)
		}
		rv.SetInt(v)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v, err := strconv.ParseUint(def, 0, rv.Type().Bits())
		if err != nil {
			return errors.Wrapf(err, "invalid uint value %q", def)
		}
		rv.SetUint(v)
	case reflect.Float32, reflect.Float64:
		v, err := strconv.ParseFloat(def, rv.Type().Bits())
		if err != nil {
			return errors.Wrapf(err, "invalid float value %q", def)
		}
		rv.SetFloat(v)
	case reflect.Slice:
		if rv.Type().Elem().Kind() != reflect.String {
			return errors.Errorf("unsupported slice type %v", rv.Type())
		}
		parts := strings.Split(def, ",")
		s := reflect.MakeSlice(rv.Type(), len(parts), len(parts))
		for i, p := range parts {
			s.Index(i).SetString(strings.TrimSpace(p))
		}
		rv.Set(s)
	default:
		return errors.Errorf("unsupported type %v", rv.Type())
	}
	return nil
}
