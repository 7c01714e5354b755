package log

import (
	"testing"

	"github.com/hatlonely/customobj/log/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDefault(t *testing.T) {
	Convey("测试默认日志器", t, func() {
		So(Default(), ShouldNotBeNil)
		old := Default()
		defer SetDefault(old)

		SetDefault(nil)
		So(Default(), ShouldHaveSameTypeAs, logger.Nop{})
		So(func() { Default().With("k", "v").Info("dropped") }, ShouldNotPanic)

		l, err := NewWithOptions(&logger.SLogOptions{Level: "warn", Format: "json"})
		So(err, ShouldBeNil)
		SetDefault(l)
		So(Default(), ShouldEqual, l)
	})
}
