package config

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Bind 把解码后的数据按 cfg tag 写入 object，key 不区分大小写
func Bind(data any, object any) error {
	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("object must be a non-nil pointer")
	}
	return bindValue("", data, rv.Elem())
}

func bindValue(path string, src any, dst reflect.Value) error {
	if src == nil {
		return nil
	}

	if dst.Kind() == reflect.Ptr {
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return bindValue(path, src, dst.Elem())
	}

	sv := reflect.ValueOf(src)
	if dst.Type() == durationType {
		return bindDuration(path, sv, dst)
	}

	switch dst.Kind() {
	case reflect.Struct:
		return bindStruct(path, sv, dst)
	case reflect.Map:
		return bindMap(path, sv, dst)
	case reflect.Slice:
		return bindSlice(path, sv, dst)
	case reflect.Interface:
		if dst.NumMethod() == 0 {
			dst.Set(sv)
			return nil
		}
	}

	if sv.Type().AssignableTo(dst.Type()) {
		dst.Set(sv)
		return nil
	}

	if isNumber(sv.Kind()) && isNumber(dst.Kind()) {
		if isFloat(sv.Kind()) && !isFloat(dst.Kind()) && sv.Float() != math.Trunc(sv.Float()) {
			return errors.Errorf("%s: %v is not an integer", path, src)
		}
		dst.Set(sv.Convert(dst.Type()))
		return nil
	}

	if sv.Kind() == dst.Kind() && sv.Type().ConvertibleTo(dst.Type()) {
		dst.Set(sv.Convert(dst.Type()))
		return nil
	}

	return errors.Errorf("%s: cannot convert %v to %v", path, sv.Type(), dst.Type())
}

func bindStruct(path string, sv reflect.Value, dst reflect.Value) error {
	if sv.Kind() != reflect.Map {
		return errors.Errorf("%s: expect a map, got %v", path, sv.Type())
	}

	values := make(map[string]any, sv.Len())
	for _, key := range sv.MapKeys() {
		values[strings.ToLower(fmt.Sprint(key.Interface()))] = sv.MapIndex(key).Interface()
	}

	rt := dst.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		fieldValue := dst.Field(i)
		if !fieldValue.CanSet() {
			continue
		}

		name := strings.Split(field.Tag.Get("cfg"), ",")[0]
		if name == "-" {
			continue
		}
		if name == "" && field.Anonymous {
			if err := bindValue(path, sv.Interface(), fieldValue); err != nil {
				return err
			}
			continue
		}
		if name == "" {
			name = field.Name
		}

		v, ok := values[strings.ToLower(name)]
		if !ok {
			continue
		}
		if err := bindValue(join(path, name), v, fieldValue); err != nil {
			return err
		}
	}
	return nil
}

func bindMap(path string, sv reflect.Value, dst reflect.Value) error {
	if sv.Kind() != reflect.Map {
		return errors.Errorf("%s: expect a map, got %v", path, sv.Type())
	}
	if dst.Type().Key().Kind() != reflect.String {
		return errors.Errorf("%s: map key must be string", path)
	}

	m := reflect.MakeMapWithSize(dst.Type(), sv.Len())
	for _, key := range sv.MapKeys() {
		k := fmt.Sprint(key.Interface())
		elem := reflect.New(dst.Type().Elem()).Elem()
		if err := bindValue(join(path, k), sv.MapIndex(key).Interface(), elem); err != nil {
			return err
		}
		m.SetMapIndex(reflect.ValueOf(k).Convert(dst.Type().Key()), elem)
	}
	dst.Set(m)
	return nil
}

func bindSlice(path string, sv reflect.Value, dst reflect.Value) error {
	if sv.Kind() != reflect.Slice && sv.Kind() != reflect.Array {
		return errors.Errorf("%s: expect a list, got %v", path, sv.Type())
	}

	s := reflect.MakeSlice(dst.Type(), sv.Len(), sv.Len())
	for i := 0; i < sv.Len(); i++ {
		if err := bindValue(fmt.Sprintf("%s[%d]", path, i), sv.Index(i).Interface(), s.Index(i)); err != nil {
			return err
		}
	}
	dst.Set(s)
	return nil
}

// bindDuration 支持 "30s" 这样的字符串，数字按纳秒处理
func bindDuration(path string, sv reflect.Value, dst reflect.Value) error {
	switch {
	case sv.Kind() == reflect.String:
		d, err := time.ParseDuration(sv.String())
		if err != nil {
			return errors.Wrapf(err, "%s: invalid duration", path)
		}
		dst.SetInt(int64(d))
	case isNumber(sv.Kind()):
		dst.Set(sv.Convert(durationType))
	default:
		return errors.Errorf("%s: cannot convert %v to duration", path, sv.Type())
	}
	return nil
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}
