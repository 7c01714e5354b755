package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetrics(t *testing.T) {
	Convey("测试指标", t, func() {
		m, err := New("test", prometheus.NewRegistry())
		So(err, ShouldBeNil)

		Convey("缓存命中和未命中", func() {
			m.CacheHit()
			m.CacheHit()
			m.CacheMiss()
			So(testutil.ToFloat64(m.cacheTotal.WithLabelValues("hit")), ShouldEqual, 2)
			So(testutil.ToFloat64(m.cacheTotal.WithLabelValues("miss")), ShouldEqual, 1)
		})

		Convey("DDL 按结果计数", func() {
			m.DDL("add_field", nil)
			m.DDL("add_field", errors.New("boom"))
			So(testutil.ToFloat64(m.ddlTotal.WithLabelValues("add_field", "true")), ShouldEqual, 1)
			So(testutil.ToFloat64(m.ddlTotal.WithLabelValues("add_field", "false")), ShouldEqual, 1)
		})

		Convey("锁等待超时计数", func() {
			m.ObserveLockWait(1, time.Millisecond, false)
			m.ObserveLockWait(1, time.Second, true)
			So(testutil.ToFloat64(m.lockTimeouts), ShouldEqual, 1)
		})

		Convey("重复注册报错", func() {
			reg := prometheus.NewRegistry()
			_, err := New("dup", reg)
			So(err, ShouldBeNil)
			_, err = New("dup", reg)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("nil 指标是空操作", t, func() {
		var m *Metrics
		So(func() {
			m.CacheHit()
			m.CacheMiss()
			m.ObserveBuild(time.Second)
			m.DDL("x", nil)
			m.ObserveLockWait(1, time.Second, true)
		}, ShouldNotPanic)
	})
}
