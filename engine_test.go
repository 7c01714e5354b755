package customobj

import (
	"context"
	"path/filepath"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/hatlonely/customobj/config"
	"github.com/hatlonely/customobj/errs"
	"github.com/hatlonely/customobj/internal/testdb"
	"github.com/hatlonely/customobj/log/logger"
	"github.com/hatlonely/customobj/migrate"
	"github.com/hatlonely/customobj/record"
	"github.com/hatlonely/customobj/recordtype"
	"github.com/hatlonely/customobj/schema"
)

func newTestEngine(t *testing.T, options *Options) *Engine {
	e, err := NewEngine(testdb.Open(t), options, WithLogger(logger.Nop{}), WithRegisterer(prometheus.NewRegistry()))
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func defaultOptions() *Options {
	options := &Options{}
	So(config.SetDefaults(options), ShouldBeNil)
	return options
}

func int64Ptr(v int64) *int64 {
	return &v
}

func fieldOf(td *schema.TypeDescriptor, name string) *schema.FieldDescriptor {
	fd := td.Field(name)
	So(fd, ShouldNotBeNil)
	return fd
}

func recordIDs(recs []*record.Record) []int64 {
	ids := make([]int64, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func countQueries(db *gorm.DB) *atomic.Int64 {
	n := &atomic.Int64{}
	So(db.Callback().Query().After("gorm:query").Register("test:count_queries", func(*gorm.DB) {
		n.Add(1)
	}), ShouldBeNil)
	return n
}

func TestAssetTags(t *testing.T) {
	Convey("测试 Asset 通过 tags 关联 Label", t, func() {
		ctx := context.Background()
		e := newTestEngine(t, nil)

		label, err := e.CreateType(ctx, &CreateTypeRequest{Name: "Label", Fields: []*FieldRequest{
			{Name: "title", Kind: schema.KindText, Primary: true},
		}})
		So(err, ShouldBeNil)
		asset, err := e.CreateType(ctx, &CreateTypeRequest{Name: "Asset", Fields: []*FieldRequest{
			{Name: "name", Kind: schema.KindText, Required: true},
			{Name: "tags", Kind: schema.KindMultiObject, TargetTypeID: &label.ID},
		}})
		So(err, ShouldBeNil)
		So(asset.Fields, ShouldHaveLength, 2)

		labels, err := e.Records(ctx, label.ID)
		So(err, ShouldBeNil)
		var ls []*record.Record
		for _, title := range []string{"l1", "l2", "l3"} {
			rec := &record.Record{Values: map[string]any{"title": title}}
			So(labels.Create(ctx, rec), ShouldBeNil)
			ls = append(ls, rec)
		}

		assets, err := e.Records(ctx, asset.ID)
		So(err, ShouldBeNil)
		a1 := &record.Record{Values: map[string]any{"name": "a1"}}
		So(assets.Create(ctx, a1), ShouldBeNil)
		a2 := &record.Record{Values: map[string]any{"name": "a2"}}
		So(assets.Create(ctx, a2), ShouldBeNil)

		tags, err := e.Relation(ctx, a1, "tags")
		So(err, ShouldBeNil)
		So(tags.Set(ctx, []int64{ls[0].ID, ls[1].ID}, true), ShouldBeNil)

		Convey("all 返回设置的目标", func() {
			all, err := tags.All(ctx)
			So(err, ShouldBeNil)
			So(recordIDs(all), ShouldResemble, []int64{ls[0].ID, ls[1].ID})
		})

		Convey("预取两条记录只需要两次查询", func() {
			other, err := e.Relation(ctx, a2, "tags")
			So(err, ShouldBeNil)
			So(other.Set(ctx, []int64{ls[1].ID, ls[2].ID}, true), ShouldBeNil)

			_, err = e.RecordType(ctx, label.ID)
			So(err, ShouldBeNil)
			queries := countQueries(e.DB())

			result, err := e.Prefetch(ctx, asset.ID, []*record.Record{a1, a2}, "tags")
			So(err, ShouldBeNil)
			So(queries.Load(), ShouldEqual, 2)
			So(recordIDs(result[a1.ID]), ShouldResemble, []int64{ls[0].ID, ls[1].ID})
			So(recordIDs(result[a2.ID]), ShouldResemble, []int64{ls[1].ID, ls[2].ID})
		})

		Convey("必填字段", func() {
			err := assets.Create(ctx, &record.Record{Values: map[string]any{}})
			So(errs.IsValidation(err), ShouldBeTrue)
		})

		Convey("非引用字段没有关联句柄", func() {
			_, err := e.Relation(ctx, a1, "name")
			So(errs.IsNotImplemented(err), ShouldBeTrue)
			_, err = e.Relation(ctx, a1, "missing")
			So(errs.IsNotFound(err), ShouldBeTrue)
		})

		Convey("被引用的类型不能删除", func() {
			err := e.DeleteType(ctx, label.ID)
			So(errs.IsSchemaConflict(err), ShouldBeTrue)
			So(e.DB().Migrator().HasTable(schema.TableName(label.ID)), ShouldBeTrue)

			So(e.DeleteType(ctx, asset.ID), ShouldBeNil)
			So(e.DB().Migrator().HasTable(schema.TableName(asset.ID)), ShouldBeFalse)
			So(e.DB().Migrator().HasTable(schema.JoinTableName(asset.ID, fieldOf(asset, "tags").ID)), ShouldBeFalse)
			So(e.DeleteType(ctx, label.ID), ShouldBeNil)
		})
	})
}

func TestAlterField(t *testing.T) {
	Convey("测试修改字段类型", t, func() {
		ctx := context.Background()
		e := newTestEngine(t, nil)

		td, err := e.CreateType(ctx, &CreateTypeRequest{Name: "Thing", Fields: []*FieldRequest{
			{Name: "label", Kind: schema.KindText, Primary: true},
			{Name: "count", Kind: schema.KindInteger},
		}})
		So(err, ShouldBeNil)
		count := fieldOf(td, "count")

		repo, err := e.Records(ctx, td.ID)
		So(err, ShouldBeNil)
		rec := &record.Record{Values: map[string]any{"label": "x", "count": 5}}
		So(repo.Create(ctx, rec), ShouldBeNil)

		Convey("integer 改为 text 丢弃原有取值，之后按 text 约束校验", func() {
			res, err := e.AlterField(ctx, count.ID, &FieldRequest{Name: "count", Kind: schema.KindText, MaxLength: 3, Regex: "^[a-z]+$"})
			So(err, ShouldBeNil)
			So(res.Change, ShouldEqual, migrate.ChangeRecreate)
			So(res.DataDiscarded, ShouldBeTrue)
			So(res.Statements, ShouldNotBeEmpty)

			repo, err := e.Records(ctx, td.ID)
			So(err, ShouldBeNil)
			got, err := repo.Get(ctx, rec.ID)
			So(err, ShouldBeNil)
			So(got.Get("count"), ShouldBeNil)
			So(got.Get("label"), ShouldEqual, "x")

			So(errs.IsValidation(repo.Create(ctx, &record.Record{Values: map[string]any{"count": "abcd"}})), ShouldBeTrue)
			So(errs.IsValidation(repo.Create(ctx, &record.Record{Values: map[string]any{"count": "12"}})), ShouldBeTrue)
			ok := &record.Record{Values: map[string]any{"count": "abc"}}
			So(repo.Create(ctx, ok), ShouldBeNil)
			So(ok.Get("count"), ShouldEqual, "abc")
		})

		Convey("integer 改为 decimal 保留取值", func() {
			res, err := e.AlterField(ctx, count.ID, &FieldRequest{Name: "count", Kind: schema.KindDecimal})
			So(err, ShouldBeNil)
			So(res.Change, ShouldEqual, migrate.ChangeAlter)
			So(res.DataDiscarded, ShouldBeFalse)

			repo, err := e.Records(ctx, td.ID)
			So(err, ShouldBeNil)
			got, err := repo.Get(ctx, rec.ID)
			So(err, ShouldBeNil)
			So(got.Get("count"), ShouldEqual, 5.0)
		})

		Convey("非法定义不修改字段", func() {
			_, err := e.AlterField(ctx, count.ID, &FieldRequest{Name: "count", Kind: schema.KindInteger, Regex: "x"})
			So(errs.IsValidation(err), ShouldBeTrue)
			fd, err := e.GetField(ctx, count.ID)
			So(err, ShouldBeNil)
			So(fd.Regex, ShouldBeEmpty)
		})

		Convey("不存在的字段", func() {
			_, err := e.AlterField(ctx, 9999, &FieldRequest{Name: "x", Kind: schema.KindInteger})
			So(errs.IsNotFound(err), ShouldBeTrue)
		})
	})
}

func TestAddAndDeleteField(t *testing.T) {
	Convey("测试添加和删除字段", t, func() {
		ctx := context.Background()
		e := newTestEngine(t, nil)

		td, err := e.CreateType(ctx, &CreateTypeRequest{Name: "Device"})
		So(err, ShouldBeNil)
		repo, err := e.Records(ctx, td.ID)
		So(err, ShouldBeNil)
		for i := 0; i < 3; i++ {
			So(repo.Create(ctx, &record.Record{}), ShouldBeNil)
		}

		Convey("已有记录保留并填充默认值", func() {
			fd, err := e.AddField(ctx, td.ID, &FieldRequest{Name: "score", Kind: schema.KindInteger, Default: 7})
			So(err, ShouldBeNil)
			So(fd.ID, ShouldBeGreaterThan, 0)

			repo, err := e.Records(ctx, td.ID)
			So(err, ShouldBeNil)
			recs, err := repo.List(ctx, nil, nil)
			So(err, ShouldBeNil)
			So(recs, ShouldHaveLength, 3)
			for _, rec := range recs {
				So(rec.Get("score"), ShouldEqual, int64(7))
			}

			rec := &record.Record{Values: map[string]any{"score": 9}}
			So(repo.Create(ctx, rec), ShouldBeNil)
			So(rec.Get("score"), ShouldEqual, int64(9))

			Convey("删除后记录类型不再包含该字段", func() {
				So(e.DeleteField(ctx, fd.ID), ShouldBeNil)
				rt, err := e.RecordType(ctx, td.ID)
				So(err, ShouldBeNil)
				So(rt.Binding("score"), ShouldBeNil)
				So(e.DB().Migrator().HasColumn(rt.Table, schema.FieldColumn(fd.ID)), ShouldBeFalse)

				_, err = e.GetField(ctx, fd.ID)
				So(errs.IsNotFound(err), ShouldBeTrue)
			})
		})

		Convey("删除多值引用字段删除关联表", func() {
			fd, err := e.AddField(ctx, td.ID, &FieldRequest{Name: "peers", Kind: schema.KindMultiObject, TargetTypeID: &td.ID})
			So(err, ShouldBeNil)
			join := schema.JoinTableName(td.ID, fd.ID)
			So(e.DB().Migrator().HasTable(join), ShouldBeTrue)

			So(e.DeleteField(ctx, fd.ID), ShouldBeNil)
			So(e.DB().Migrator().HasTable(join), ShouldBeFalse)
		})

		Convey("字段定义错误", func() {
			_, err := e.AddField(ctx, td.ID, &FieldRequest{Name: "id", Kind: schema.KindText})
			So(errs.IsSchemaConflict(err), ShouldBeTrue)

			_, err = e.AddField(ctx, td.ID, &FieldRequest{Name: "Bad Name", Kind: schema.KindText})
			So(errs.IsValidation(err), ShouldBeTrue)

			_, err = e.AddField(ctx, td.ID, &FieldRequest{Name: "owner", Kind: schema.KindObject, TargetTypeID: int64Ptr(9999)})
			So(errs.IsValidation(err), ShouldBeTrue)

			_, err = e.AddField(ctx, td.ID, &FieldRequest{Name: "status", Kind: schema.KindSelect, ChoiceSetID: int64Ptr(9999)})
			So(errs.IsValidation(err), ShouldBeTrue)

			_, err = e.AddField(ctx, td.ID, &FieldRequest{Name: "a", Kind: schema.KindText, Primary: true})
			So(err, ShouldBeNil)
			_, err = e.AddField(ctx, td.ID, &FieldRequest{Name: "b", Kind: schema.KindText, Primary: true})
			So(errs.IsValidation(err), ShouldBeTrue)

			_, err = e.AddField(ctx, td.ID, &FieldRequest{Name: "a", Kind: schema.KindInteger})
			So(errs.IsSchemaConflict(err), ShouldBeTrue)

			fds, err := e.ListFields(ctx, td.ID)
			So(err, ShouldBeNil)
			So(fds, ShouldHaveLength, 1)
		})

		Convey("选项字段", func() {
			cs := &schema.ChoiceSet{Name: "status", Choices: []schema.Choice{{Value: "active"}, {Value: "retired"}}}
			So(e.CreateChoiceSet(ctx, cs), ShouldBeNil)
			So(cs.Choices[0].Label, ShouldEqual, "active")

			fd, err := e.AddField(ctx, td.ID, &FieldRequest{Name: "status", Kind: schema.KindSelect, ChoiceSetID: &cs.ID, Default: "active"})
			So(err, ShouldBeNil)

			repo, err := e.Records(ctx, td.ID)
			So(err, ShouldBeNil)
			So(errs.IsValidation(repo.Create(ctx, &record.Record{Values: map[string]any{"status": "lost"}})), ShouldBeTrue)

			So(errs.IsSchemaConflict(e.DeleteChoiceSet(ctx, cs.ID)), ShouldBeTrue)
			So(e.DeleteField(ctx, fd.ID), ShouldBeNil)
			So(e.DeleteChoiceSet(ctx, cs.ID), ShouldBeNil)

			sets, err := e.ListChoiceSets(ctx)
			So(err, ShouldBeNil)
			So(sets, ShouldBeEmpty)
		})

		Convey("选项集定义错误", func() {
			err := e.CreateChoiceSet(ctx, &schema.ChoiceSet{Name: " ", Choices: []schema.Choice{{Value: "a"}, {Value: "a"}, {Value: ""}}})
			var verr *errs.ValidationError
			So(errors.As(err, &verr), ShouldBeTrue)
			So(verr.Fields, ShouldHaveLength, 3)
		})
	})
}

func TestCreateType(t *testing.T) {
	Convey("测试创建类型", t, func() {
		ctx := context.Background()
		e := newTestEngine(t, nil)

		Convey("字段定义错误全部返回，类型不创建", func() {
			_, err := e.CreateType(ctx, &CreateTypeRequest{Name: "Broken", Fields: []*FieldRequest{
				{Name: "a", Kind: schema.KindInteger, Regex: "x"},
				{Name: "b", Kind: "bogus"},
				{Name: "c", Kind: schema.KindText},
			}})
			var verr *errs.ValidationError
			So(errors.As(err, &verr), ShouldBeTrue)
			So(verr.Fields, ShouldHaveLength, 2)
			So(verr.Fields[0].Field, ShouldEqual, "a.regex")

			_, err = e.GetTypeByName(ctx, "broken")
			So(errs.IsNotFound(err), ShouldBeTrue)
			types, err := e.ListTypes(ctx)
			So(err, ShouldBeNil)
			So(types, ShouldBeEmpty)
		})

		Convey("类型名大小写不敏感唯一", func() {
			_, err := e.CreateType(ctx, &CreateTypeRequest{Name: "Server"})
			So(err, ShouldBeNil)
			_, err = e.CreateType(ctx, &CreateTypeRequest{Name: "  server "})
			So(errs.IsSchemaConflict(err), ShouldBeTrue)
			_, err = e.CreateType(ctx, &CreateTypeRequest{Name: " "})
			So(errs.IsValidation(err), ShouldBeTrue)
		})

		Convey("字段名重复", func() {
			_, err := e.CreateType(ctx, &CreateTypeRequest{Name: "Dup", Fields: []*FieldRequest{
				{Name: "a", Kind: schema.KindText},
				{Name: "a", Kind: schema.KindInteger},
			}})
			So(errs.IsSchemaConflict(err), ShouldBeTrue)
		})
	})
}

func TestRename(t *testing.T) {
	Convey("测试改名", t, func() {
		ctx := context.Background()
		e := newTestEngine(t, nil)

		td, err := e.CreateType(ctx, &CreateTypeRequest{Name: "Rack", Fields: []*FieldRequest{
			{Name: "serial_no", Kind: schema.KindText, Primary: true},
		}})
		So(err, ShouldBeNil)
		_, err = e.AddField(ctx, td.ID, &FieldRequest{Name: "children", Kind: schema.KindMultiObject, TargetTypeID: &td.ID})
		So(err, ShouldBeNil)

		before, err := e.RecordType(ctx, td.ID)
		So(err, ShouldBeNil)
		repo, err := e.Records(ctx, td.ID)
		So(err, ShouldBeNil)
		parent := &record.Record{Values: map[string]any{"serial_no": "r1"}}
		So(repo.Create(ctx, parent), ShouldBeNil)
		child := &record.Record{Values: map[string]any{"serial_no": "r2"}}
		So(repo.Create(ctx, child), ShouldBeNil)
		h, err := e.Relation(ctx, parent, "children")
		So(err, ShouldBeNil)
		So(h.Add(ctx, child.ID), ShouldBeNil)

		Convey("类型改名不改变表名，关联仍然可用", func() {
			updated, err := e.UpdateType(ctx, td.ID, &UpdateTypeRequest{Name: "Cabinet", PluralName: "Cabinets"})
			So(err, ShouldBeNil)
			So(updated.Slug, ShouldEqual, "cabinet")

			after, err := e.RecordType(ctx, td.ID)
			So(err, ShouldBeNil)
			So(after, ShouldNotPointTo, before)
			So(after.Table, ShouldEqual, before.Table)
			So(after.Name(), ShouldEqual, "Cabinet")

			ids, err := h.IDs(ctx)
			So(err, ShouldBeNil)
			So(ids, ShouldResemble, []int64{child.ID})

			got, err := e.GetTypeByName(ctx, "CABINET")
			So(err, ShouldBeNil)
			So(got.ID, ShouldEqual, td.ID)
			_, err = e.GetTypeByName(ctx, "Rack")
			So(errs.IsNotFound(err), ShouldBeTrue)
		})

		Convey("字段改名保留数据和生成的标签", func() {
			fd, err := e.RenameField(ctx, fieldOf(td, "serial_no").ID, "asset_tag")
			So(err, ShouldBeNil)
			So(fd.Label, ShouldEqual, "asset tag")

			repo, err := e.Records(ctx, td.ID)
			So(err, ShouldBeNil)
			got, err := repo.Get(ctx, parent.ID)
			So(err, ShouldBeNil)
			So(got.Get("asset_tag"), ShouldEqual, "r1")
			So(repo.RecordType().Table, ShouldEqual, before.Table)

			_, err = e.RenameField(ctx, fd.ID, "children")
			So(errs.IsSchemaConflict(err), ShouldBeTrue)
		})

		Convey("自引用的类型可以删除", func() {
			So(e.DeleteType(ctx, td.ID), ShouldBeNil)
			_, err := e.GetType(ctx, td.ID)
			So(errs.IsNotFound(err), ShouldBeTrue)
			So(e.DB().Migrator().HasTable(before.Table), ShouldBeFalse)
		})
	})
}

func TestConcurrentRecordType(t *testing.T) {
	Convey("测试并发获取记录类型", t, func() {
		ctx := context.Background()
		e := newTestEngine(t, nil)

		a, err := e.CreateType(ctx, &CreateTypeRequest{Name: "A"})
		So(err, ShouldBeNil)
		b, err := e.CreateType(ctx, &CreateTypeRequest{Name: "B", Fields: []*FieldRequest{
			{Name: "a", Kind: schema.KindObject, TargetTypeID: &a.ID},
		}})
		So(err, ShouldBeNil)
		_, err = e.AddField(ctx, a.ID, &FieldRequest{Name: "b", Kind: schema.KindObject, TargetTypeID: &b.ID})
		So(err, ShouldBeNil)

		var g errgroup.Group
		results := make([]*recordtype.RecordType, 16)
		for i := range results {
			g.Go(func() error {
				rt, err := e.RecordType(ctx, a.ID)
				results[i] = rt
				return err
			})
		}
		So(g.Wait(), ShouldBeNil)
		for _, rt := range results {
			So(rt, ShouldPointTo, results[0])
		}
		So(results[0].Binding("b"), ShouldNotBeNil)
		So(results[0].Incoming, ShouldHaveLength, 1)

		rt, err := e.RecordType(ctx, b.ID)
		So(err, ShouldBeNil)
		So(rt.Binding("a").Relation.TargetTypeID, ShouldEqual, a.ID)
	})
}

func TestLockTimeout(t *testing.T) {
	Convey("测试类型锁超时", t, func() {
		ctx := context.Background()
		options := defaultOptions()
		options.Engine.LockTimeout = 50 * time.Millisecond
		e := newTestEngine(t, options)

		td, err := e.CreateType(ctx, &CreateTypeRequest{Name: "Busy"})
		So(err, ShouldBeNil)

		_, release, err := e.locks.Acquire(ctx, td.ID)
		So(err, ShouldBeNil)
		_, err = e.AddField(ctx, td.ID, &FieldRequest{Name: "x", Kind: schema.KindInteger})
		So(errs.IsRetryable(err), ShouldBeTrue)
		release()

		_, err = e.AddField(ctx, td.ID, &FieldRequest{Name: "x", Kind: schema.KindInteger})
		So(err, ShouldBeNil)

		Convey("修复等待类型锁", func() {
			_, release, err := e.locks.Acquire(ctx, td.ID)
			So(err, ShouldBeNil)
			_, err = e.Repair(ctx)
			So(errs.IsRetryable(err), ShouldBeTrue)
			release()

			report, err := e.Repair(ctx)
			So(err, ShouldBeNil)
			So(report.Empty(), ShouldBeTrue)
		})
	})
}

func TestCompensate(t *testing.T) {
	Convey("测试补偿语句按相反顺序执行", t, func() {
		ctx := context.Background()
		e := newTestEngine(t, nil)
		So(e.DB().Exec("CREATE TABLE t1 (id INTEGER)").Error, ShouldBeNil)
		So(e.DB().Exec("CREATE TABLE t2 (id INTEGER)").Error, ShouldBeNil)

		op := &operation{log: logger.Nop{}, ids: map[int64]struct{}{}}
		op.record(&migrate.Result{Compensate: []string{"DROP TABLE t1"}})
		op.record(&migrate.Result{Compensate: []string{"DROP TABLE t2", "DROP TABLE missing"}})
		e.compensate(ctx, op)

		So(e.DB().Migrator().HasTable("t1"), ShouldBeFalse)
		So(e.DB().Migrator().HasTable("t2"), ShouldBeFalse)
	})
}

func TestOptions(t *testing.T) {
	Convey("测试从配置创建引擎", t, func() {
		var options Options
		err := config.LoadMap(map[string]any{
			"database": map[string]any{
				"driver":   "sqlite",
				"database": filepath.Join(t.TempDir(), "customobj.db"),
			},
			"engine":  map[string]any{"lockTimeout": "5s"},
			"gormLog": map[string]any{"level": "silent"},
		}, &options)
		So(err, ShouldBeNil)
		So(options.Engine.LockTimeout, ShouldEqual, 5*time.Second)
		So(options.Engine.MaxDepth, ShouldEqual, 16)
		So(options.Engine.RepairOnStart, ShouldBeTrue)
		So(options.Version.Type, ShouldEqual, "memory")
		So(options.NameCache.Size, ShouldEqual, 1048576)
		So(options.Metrics.Namespace, ShouldEqual, "customobj")

		e, err := NewEngineWithOptions(&options, WithLogger(logger.Nop{}), WithRegisterer(prometheus.NewRegistry()))
		So(err, ShouldBeNil)
		defer e.Close()

		td, err := e.CreateType(context.Background(), &CreateTypeRequest{Name: "Configured"})
		So(err, ShouldBeNil)
		So(e.DB().Migrator().HasTable(schema.TableName(td.ID)), ShouldBeTrue)

		report, err := e.Repair(context.Background())
		So(err, ShouldBeNil)
		So(report.Empty(), ShouldBeTrue)
		So(e.metrics, ShouldNotBeNil)
	})

	Convey("测试关闭指标", t, func() {
		var options Options
		err := config.LoadMap(map[string]any{
			"database": map[string]any{
				"driver":   "sqlite",
				"database": filepath.Join(t.TempDir(), "customobj.db"),
			},
			"gormLog": map[string]any{"level": "silent"},
			"metrics": map[string]any{"disable": true},
		}, &options)
		So(err, ShouldBeNil)
		So(options.Metrics.Disable, ShouldBeTrue)

		registry := prometheus.NewRegistry()
		e, err := NewEngineWithOptions(&options, WithLogger(logger.Nop{}), WithRegisterer(registry))
		So(err, ShouldBeNil)
		defer e.Close()
		So(e.metrics, ShouldBeNil)

		_, err = e.CreateType(context.Background(), &CreateTypeRequest{Name: "Quiet"})
		So(err, ShouldBeNil)
		families, err := registry.Gather()
		So(err, ShouldBeNil)
		So(families, ShouldBeEmpty)
	})

	Convey("测试非法配置", t, func() {
		var options Options
		err := config.LoadMap(map[string]any{"database": map[string]any{"driver": "oracle"}}, &options)
		So(err, ShouldNotBeNil)

		So(config.SetDefaults(&options), ShouldBeNil)
		options.Database.Driver = "oracle"
		_, err = NewEngineWithOptions(&options)
		So(err, ShouldNotBeNil)
	})

	Convey("测试 dsn 拼接", t, func() {
		o := &DatabaseOptions{Driver: "mysql", Host: "db", Username: "u", Password: "p", Database: "d", Charset: "utf8mb4"}
		dsn, err := o.dsn()
		So(err, ShouldBeNil)
		So(dsn, ShouldEqual, "u:p@tcp(db:3306)/d?charset=utf8mb4&parseTime=True&loc=UTC")

		o = &DatabaseOptions{Driver: "postgres", Host: "db", Port: "6432", Username: "u", Password: "p", Database: "d"}
		dsn, err = o.dsn()
		So(err, ShouldBeNil)
		So(dsn, ShouldEqual, "host=db port=6432 user=u password=p dbname=d sslmode=disable TimeZone=UTC")

		o = &DatabaseOptions{Driver: "mysql", DSN: "custom"}
		dsn, err = o.dsn()
		So(err, ShouldBeNil)
		So(dsn, ShouldEqual, "custom")
	})
}
