package errs

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func TestValidationError(t *testing.T) {
	Convey("单个字段错误", t, func() {
		err := NewValidationError("max_length", "must be between %d and %d", 1, 255)
		So(err.Error(), ShouldEqual, "max_length: must be between 1 and 255")
		So(IsValidation(errors.Wrap(err, "create field")), ShouldBeTrue)
	})

	Convey("聚合多个字段错误", t, func() {
		verr := &ValidationError{}
		So(verr.OrNil(), ShouldBeNil)

		verr.Add(NewValidationError("a", "bad"))
		So(verr.OrNil(), ShouldEqual, verr.Fields[0])

		verr.Add(NewValidationError("b", "worse"))
		So(verr.OrNil(), ShouldEqual, verr)
		So(verr.Error(), ShouldEqual, "validation failed: a: bad; b: worse")
	})

	Convey("nil 聚合错误", t, func() {
		var verr *ValidationError
		So(verr.OrNil(), ShouldBeNil)
	})
}

func TestClassify(t *testing.T) {
	Convey("错误分类", t, func() {
		So(IsNotFound(errors.Wrapf(ErrNotFound, "type %d", 3)), ShouldBeTrue)
		So(IsNotImplemented(errors.Wrap(ErrNotImplemented, "boolean")), ShouldBeTrue)
		So(IsNotFound(ErrNotImplemented), ShouldBeFalse)

		conflict := NewSchemaConflictError("Asset", "type is referenced by field %s", "owner")
		So(IsSchemaConflict(conflict), ShouldBeTrue)
		So(conflict.Error(), ShouldEqual, `schema conflict on "Asset": type is referenced by field owner`)

		merr := &MigrationError{Op: "add_column", Table: "custom_objects_1", Err: ErrNotFound}
		So(IsMigration(errors.WithStack(merr)), ShouldBeTrue)
		So(IsNotFound(merr), ShouldBeTrue)
		So(merr.Error(), ShouldEqual, "migration add_column on custom_objects_1 failed: not found")

		So(IsRecursionGuard(&RecursionGuardError{TypeID: 1, Path: []int64{1, 2}}), ShouldBeTrue)
		So(IsValidation(conflict), ShouldBeFalse)
	})

	Convey("只有锁超时可以重试", t, func() {
		err := &ConcurrencyTimeoutError{TypeID: 2, Waited: 50 * time.Millisecond}
		So(IsRetryable(errors.Wrap(err, "add field")), ShouldBeTrue)
		So(err.Error(), ShouldEqual, "timed out after 50ms waiting for lock on type 2")
		So(IsRetryable(&MigrationError{Err: errors.New("boom")}), ShouldBeFalse)
		So(IsRetryable(nil), ShouldBeFalse)
	})
}
