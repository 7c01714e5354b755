package record

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/hatlonely/customobj/errs"
	"github.com/hatlonely/customobj/field"
	"github.com/hatlonely/customobj/recordtype"
	"github.com/hatlonely/customobj/schema"
)

// write 一次写入校验后的取值
type write struct {
	// 有存储列的字段，按记录类型中的顺序
	order     []*recordtype.Binding
	stored    map[*recordtype.Binding]any
	many      map[*recordtype.Binding][]int64
	canonical map[string]any
}

func (w *write) has(b *recordtype.Binding) bool {
	_, ok := w.canonical[b.Name()]
	return ok
}

// prepare 清洗、校验并序列化取值，current 不为 nil 时只处理 values 中出现的字段
func (r *Repository) prepare(ctx context.Context, values map[string]any, current map[string]any) (*write, error) {
	partial := current != nil
	w := &write{
		stored:    map[*recordtype.Binding]any{},
		many:      map[*recordtype.Binding][]int64{},
		canonical: map[string]any{},
	}
	verr := &errs.ValidationError{}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if r.rt.Binding(name) == nil {
			verr.Add(errs.NewValidationError(name, "unknown field"))
		}
	}

	for _, b := range r.rt.Bindings {
		raw, present := values[b.Name()]
		if partial && !present {
			continue
		}

		var v any
		var err error
		if present {
			v, err = b.Plugin.Clean(b.Field, raw)
		} else {
			v, err = field.DefaultCanonical(b.Plugin, b.Field)
		}
		if s, ok := v.(string); ok && s == "" {
			v = nil
		}
		if err == nil {
			err = b.Plugin.Validate(b.Field, v)
		}
		if err != nil {
			verr.Add(asValidation(b.Name(), err))
			continue
		}
		w.canonical[b.Name()] = v

		if b.Many() {
			ids, _ := v.([]int64)
			w.many[b] = ids
			continue
		}
		if b.Column == nil {
			continue
		}
		s, err := b.Plugin.Serialize(b.Field, v)
		if err != nil {
			verr.Add(asValidation(b.Name(), err))
			continue
		}
		w.stored[b] = s
		w.order = append(w.order, b)
	}

	if err := r.checkTargets(ctx, w, verr); err != nil {
		return nil, err
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return w, nil
}

// checkTargets 引用的记录必须存在
func (r *Repository) checkTargets(ctx context.Context, w *write, verr *errs.ValidationError) error {
	for _, b := range r.rt.Relations() {
		v, ok := w.canonical[b.Name()]
		if !ok || v == nil {
			continue
		}
		var ids []int64
		switch x := v.(type) {
		case int64:
			ids = []int64{x}
		case []int64:
			ids = x
		}
		if len(ids) == 0 {
			continue
		}

		found, err := existing(ctx, r.db, b.Relation.TargetTable, ids)
		if err != nil {
			return err
		}
		var missing []int64
		for _, id := range ids {
			if !found[id] {
				missing = append(missing, id)
			}
		}
		if len(missing) == 1 {
			verr.Add(errs.NewValidationError(b.Name(), "object with id %d does not exist", missing[0]))
		} else if len(missing) > 1 {
			verr.Add(errs.NewValidationError(b.Name(), "objects with ids %s do not exist", joinIDs(missing)))
		}
	}
	return nil
}

// checkUnique 唯一字段的值不能和其它记录重复
func (r *Repository) checkUnique(ctx context.Context, w *write, exceptID int64) error {
	verr := &errs.ValidationError{}
	for _, b := range w.order {
		v := w.stored[b]
		if !b.Field.Unique || v == nil {
			continue
		}
		var n int64
		db := r.conn(ctx).Table(r.rt.Table).Where(r.quote(b.Column.Name)+" = ?", v)
		if exceptID != 0 {
			db = db.Where(r.quote(schema.ColumnID)+" <> ?", exceptID)
		}
		if err := db.Count(&n).Error; err != nil {
			return errors.Wrapf(err, "check unique %s.%s failed", r.rt.Table, b.Column.Name)
		}
		if n > 0 {
			verr.Add(errs.NewValidationError(b.Name(), "%s with this %s already exists", r.rt.Name(), b.Field.DisplayLabel()))
		}
	}
	return verr.OrNil()
}

// translate 并发写入绕过了预检查时，把唯一冲突还原为字段错误
func (r *Repository) translate(ctx context.Context, err error, w *write, exceptID int64) error {
	if !r.dialect.IsUniqueViolation(err) {
		return errors.Wrapf(err, "write %s failed", r.rt.Table)
	}
	if uerr := r.checkUnique(ctx, w, exceptID); errs.IsValidation(uerr) {
		return uerr
	}
	return errs.NewValidationError("", "%s violates a unique constraint", r.rt.Name())
}

func asValidation(name string, err error) *errs.ValidationError {
	var verr *errs.ValidationError
	if errors.As(err, &verr) {
		return verr
	}
	return errs.NewValidationError(name, "%v", err)
}

// displayName 没有给出名称时使用主字段的取值
func displayName(name string, w *write, primary *recordtype.Binding) string {
	if name == "" && primary != nil {
		name = human(primary.Field, w.canonical[primary.Name()])
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		name = string([]rune(name)[:maxNameLength])
	}
	return name
}

func human(f *schema.FieldDescriptor, v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case time.Time:
		if f.Kind == schema.KindDate {
			return x.Format(field.DateLayout)
		}
		return x.Format(field.DateTimeLayout)
	case []string:
		return strings.Join(x, ", ")
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint64:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case []byte:
		return strconv.ParseInt(string(x), 10, 64)
	case string:
		return strconv.ParseInt(x, 10, 64)
	default:
		return 0, errors.Errorf("unexpected id type %T", v)
	}
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}
