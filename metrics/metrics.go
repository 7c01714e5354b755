package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Options 指标配置
type Options struct {
	Disable   bool   `cfg:"disable"`
	Namespace string `cfg:"namespace" def:"customobj"`
}

// Metrics 记录类型缓存、DDL 和类型锁的指标，nil 接收者上的方法都是空操作
type Metrics struct {
	cacheTotal    *prometheus.CounterVec
	buildDuration prometheus.Histogram
	ddlTotal      *prometheus.CounterVec
	lockWait      prometheus.Histogram
	lockTimeouts  prometheus.Counter
}

// New 创建并注册指标，registerer 为 nil 时使用默认注册表
func New(namespace string, registerer prometheus.Registerer) (*Metrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		cacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordtype_cache_total",
			Help:      "Record-type cache lookups by result.",
		}, []string{"result"}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recordtype_build_duration_seconds",
			Help:      "Time spent generating a record-type.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		ddlTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ddl_operations_total",
			Help:      "DDL operations by operation and result.",
		}, []string{"op", "success"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "type_lock_wait_seconds",
			Help:      "Time spent waiting for a per-type lock.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		lockTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "type_lock_timeouts_total",
			Help:      "Per-type lock acquisitions that gave up.",
		}),
	}
	for _, c := range []prometheus.Collector{m.cacheTotal, m.buildDuration, m.ddlTotal, m.lockWait, m.lockTimeouts} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.cacheTotal.WithLabelValues("hit").Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.cacheTotal.WithLabelValues("miss").Inc()
	}
}

func (m *Metrics) ObserveBuild(d time.Duration) {
	if m != nil {
		m.buildDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) DDL(op string, err error) {
	if m != nil {
		m.ddlTotal.WithLabelValues(op, strconv.FormatBool(err == nil)).Inc()
	}
}

// ObserveLockWait 实现 lock.Observer
func (m *Metrics) ObserveLockWait(typeID int64, waited time.Duration, timedOut bool) {
	if m == nil {
		return
	}
	m.lockWait.Observe(waited.Seconds())
	if timedOut {
		m.lockTimeouts.Inc()
	}
}
