package recordtype

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/hatlonely/customobj/errs"
	"github.com/hatlonely/customobj/field"
	"github.com/hatlonely/customobj/lock"
	"github.com/hatlonely/customobj/log"
	"github.com/hatlonely/customobj/log/logger"
	"github.com/hatlonely/customobj/metrics"
	"github.com/hatlonely/customobj/schema"
	"github.com/hatlonely/customobj/store"
	"github.com/hatlonely/customobj/version"
)

// Options 记录类型工厂配置
type Options struct {
	// 预热引用目标时的最大递归深度
	MaxDepth int `cfg:"maxDepth" def:"16" validate:"min=1"`
}

// Factory 生成并缓存记录类型
//
// 每个类型 id 在每个版本下只有一个规范的 *RecordType。生成在类型锁内进行，
// 发布到缓存后释放锁，再按需预热引用的目标类型。
type Factory struct {
	store    *store.Store
	locks    *lock.Registry
	versions version.Store
	maxDepth int

	log     logger.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	mu    sync.RWMutex
	cache map[int64]*RecordType
}

func NewFactoryWithOptions(options *Options, store *store.Store, locks *lock.Registry, versions version.Store) *Factory {
	f := &Factory{
		store:    store,
		locks:    locks,
		versions: versions,
		maxDepth: 16,
		log:      log.Default(),
		tracer:   otel.Tracer("github.com/hatlonely/customobj/recordtype"),
		cache:    map[int64]*RecordType{},
	}
	if options != nil && options.MaxDepth > 0 {
		f.maxDepth = options.MaxDepth
	}
	return f
}

func (f *Factory) SetLogger(l logger.Logger) {
	f.log = l
}

func (f *Factory) SetMetrics(m *metrics.Metrics) {
	f.metrics = m
}

type getOptions struct {
	noCache  bool
	db       *gorm.DB
	extra    []*schema.FieldDescriptor
	without  map[int64]bool
	replaced map[int64]*schema.FieldDescriptor
}

func (o *getOptions) cacheable() bool {
	return !o.noCache && o.db == nil && len(o.extra) == 0 && len(o.without) == 0 && len(o.replaced) == 0
}

type GetOption func(*getOptions)

// WithoutCache 直接从描述符生成，不读写缓存
func WithoutCache() GetOption {
	return func(o *getOptions) { o.noCache = true }
}

// WithDB 在事务内读取描述符，生成结果不进入缓存
func WithDB(tx *gorm.DB) GetOption {
	return func(o *getOptions) { o.db = tx }
}

// WithExtraFields 追加尚未提交的字段
func WithExtraFields(fds ...*schema.FieldDescriptor) GetOption {
	return func(o *getOptions) { o.extra = append(o.extra, fds...) }
}

// WithoutFields 排除指定字段
func WithoutFields(ids ...int64) GetOption {
	return func(o *getOptions) {
		if o.without == nil {
			o.without = map[int64]bool{}
		}
		for _, id := range ids {
			o.without[id] = true
		}
	}
}

// WithReplacedField 用新的描述符替换同 id 的字段
func WithReplacedField(fd *schema.FieldDescriptor) GetOption {
	return func(o *getOptions) {
		if o.replaced == nil {
			o.replaced = map[int64]*schema.FieldDescriptor{}
		}
		o.replaced[fd.ID] = fd
	}
}

// Get 获取类型的记录类型
//
// 带有任何覆盖选项时结果只反映调用方给出的形态，不会进入缓存，也不会预热引用目标。
// 这种生成同样在类型锁内进行，已经持有锁的调用方可以重入。
func (f *Factory) Get(ctx context.Context, typeID int64, opts ...GetOption) (*RecordType, error) {
	o := &getOptions{}
	for _, opt := range opts {
		opt(o)
	}

	if !o.cacheable() {
		lctx, release, err := f.locks.Acquire(ctx, typeID)
		if err != nil {
			return nil, err
		}
		defer release()
		return f.build(lctx, o.db, typeID, o, 0)
	}

	return f.resolve(ctx, typeID, map[int64]bool{typeID: true}, []int64{typeID})
}

// Target 引用字段的目标记录类型
func (f *Factory) Target(ctx context.Context, b *Binding) (*RecordType, error) {
	if b.Relation == nil {
		return nil, errors.Wrapf(errs.ErrNotImplemented, "field %s is not a reference", b.Name())
	}
	return f.Get(ctx, b.Relation.TargetTypeID)
}

// Invalidate 递增版本并丢弃本地缓存，其它进程在下次 Get 时发现版本变化
func (f *Factory) Invalidate(ctx context.Context, typeIDs ...int64) error {
	for _, id := range typeIDs {
		f.mu.Lock()
		delete(f.cache, id)
		f.mu.Unlock()

		if _, err := f.versions.Bump(ctx, id); err != nil {
			return errors.WithMessagef(err, "bump version failed, typeID: %d", id)
		}
	}
	return nil
}

// Cached 本地缓存中的记录类型，不检查版本
func (f *Factory) Cached(typeID int64) *RecordType {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.cache[typeID]
}

func (f *Factory) lookup(ctx context.Context, typeID int64) (*RecordType, int64, error) {
	v, err := f.versions.Get(ctx, typeID)
	if err != nil {
		return nil, 0, errors.WithMessagef(err, "get version failed, typeID: %d", typeID)
	}
	f.mu.RLock()
	rt := f.cache[typeID]
	f.mu.RUnlock()
	if rt != nil && rt.Version == v {
		return rt, v, nil
	}
	return nil, v, nil
}

func (f *Factory) resolve(ctx context.Context, typeID int64, visited map[int64]bool, path []int64) (*RecordType, error) {
	rt, _, err := f.lookup(ctx, typeID)
	if err != nil {
		return nil, err
	}
	if rt != nil {
		f.metrics.CacheHit()
		return rt, nil
	}
	f.metrics.CacheMiss()

	rt, built, err := f.generate(ctx, typeID)
	if err != nil {
		return nil, err
	}
	if built {
		f.warm(ctx, rt, visited, path)
	}
	return rt, nil
}

// generate 在类型锁内再次检查缓存，生成并发布
func (f *Factory) generate(ctx context.Context, typeID int64) (*RecordType, bool, error) {
	lctx, release, err := f.locks.Acquire(ctx, typeID)
	if err != nil {
		return nil, false, err
	}
	defer release()

	rt, v, err := f.lookup(lctx, typeID)
	if err != nil {
		return nil, false, err
	}
	if rt != nil {
		return rt, false, nil
	}

	rt, err = f.build(lctx, nil, typeID, &getOptions{}, v)
	if err != nil {
		return nil, false, err
	}

	f.mu.Lock()
	f.cache[typeID] = rt
	f.mu.Unlock()
	return rt, true, nil
}

// warm 预热引用目标，visited 在整个递归中共享，已经在处理中的类型不会再次进入
func (f *Factory) warm(ctx context.Context, rt *RecordType, visited map[int64]bool, path []int64) {
	for _, b := range rt.Relations() {
		target := b.Relation.TargetTypeID
		if visited[target] {
			continue
		}
		visited[target] = true

		next := append(path[:len(path):len(path)], target)
		if len(next)-1 > f.maxDepth {
			err := &errs.RecursionGuardError{TypeID: target, Path: next}
			f.log.WarnContext(ctx, "stop resolving referenced record type", "typeID", rt.TypeID, "field", b.Name(), "error", err)
			continue
		}

		if _, err := f.resolve(ctx, target, visited, next); err != nil {
			f.log.WarnContext(ctx, "resolve referenced record type failed", "typeID", rt.TypeID, "field", b.Name(), "target", target, "error", err)
		}
	}
}

func (f *Factory) build(ctx context.Context, db *gorm.DB, typeID int64, o *getOptions, v int64) (*RecordType, error) {
	ctx, span := f.tracer.Start(ctx, "recordtype.build", trace.WithAttributes(attribute.Int64("typeID", typeID)))
	defer span.End()
	start := time.Now()

	td, err := f.store.GetType(ctx, db, typeID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	rt := &RecordType{
		TypeID:     typeID,
		Descriptor: td,
		Table:      schema.TableName(typeID),
		Columns:    SystemColumns(),
		Version:    v,
		byName:     map[string]*Binding{},
	}

	for _, fd := range f.fields(td, o) {
		b, err := f.bind(ctx, db, typeID, fd)
		if err != nil {
			rt.Skipped = append(rt.Skipped, &Skip{Field: fd, Err: err})
			f.log.WarnContext(ctx, "skip field", "typeID", typeID, "fieldID", fd.ID, "field", fd.Name, "error", err)
			continue
		}
		rt.Bindings = append(rt.Bindings, b)
		rt.byName[fd.Name] = b
		if b.Column != nil {
			rt.Columns = append(rt.Columns, b.Column)
		}
	}

	incoming, err := f.incoming(ctx, db, typeID, o)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	rt.Incoming = incoming

	f.metrics.ObserveBuild(time.Since(start))
	return rt, nil
}

func (f *Factory) fields(td *schema.TypeDescriptor, o *getOptions) []*schema.FieldDescriptor {
	fds := make([]*schema.FieldDescriptor, 0, len(td.Fields)+len(o.extra))
	for _, fd := range td.Fields {
		if o.without[fd.ID] {
			continue
		}
		if r, ok := o.replaced[fd.ID]; ok {
			fd = r
		}
		fds = append(fds, fd)
	}
	for _, fd := range o.extra {
		if !o.without[fd.ID] {
			fds = append(fds, fd)
		}
	}
	return fds
}

// bind 插件返回 ErrNotImplemented 以外的错误，或者引用的目标类型已经不存在时返回错误，字段被跳过
func (f *Factory) bind(ctx context.Context, db *gorm.DB, typeID int64, fd *schema.FieldDescriptor) (*Binding, error) {
	p, err := field.Lookup(fd.Kind)
	if err != nil {
		return nil, err
	}
	b := &Binding{Field: fd, Plugin: p}

	if fd.Kind.IsReference() {
		if target := fd.Target(); target != typeID {
			ok, err := f.store.TypeExists(ctx, db, target)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, errors.Wrapf(errs.ErrNotFound, "target type %d", target)
			}
		}
		if b.Relation, err = p.Relation(fd); err != nil {
			return nil, err
		}
	}

	col, err := p.Column(fd)
	switch {
	case err == nil:
		b.Column = col
	case !errs.IsNotImplemented(err):
		return nil, err
	}
	return b, nil
}

func (f *Factory) incoming(ctx context.Context, db *gorm.DB, typeID int64, o *getOptions) ([]*Incoming, error) {
	fds, err := f.store.ListFieldsTargeting(ctx, db, typeID)
	if err != nil {
		return nil, err
	}
	for _, fd := range o.extra {
		if fd.Kind.IsReference() && fd.Target() == typeID {
			fds = append(fds, fd)
		}
	}

	incoming := make([]*Incoming, 0, len(fds))
	for _, fd := range fds {
		if o.without[fd.ID] {
			continue
		}
		if r, ok := o.replaced[fd.ID]; ok {
			if !r.Kind.IsReference() || r.Target() != typeID {
				continue
			}
			fd = r
		}
		rel, err := field.MustLookup(fd.Kind).Relation(fd)
		if err != nil {
			continue
		}
		in := &Incoming{TypeID: fd.TypeID, Field: fd, Cardinality: rel.Cardinality}
		if rel.Cardinality == field.CardinalityMany {
			in.Table, in.Column = rel.JoinTable, rel.TargetColumn
		} else {
			in.Table, in.Column = schema.TableName(fd.TypeID), rel.SourceColumn
		}
		incoming = append(incoming, in)
	}
	return incoming, nil
}
