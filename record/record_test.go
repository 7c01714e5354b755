package record

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/hatlonely/customobj/errs"
	"github.com/hatlonely/customobj/internal/testkit"
	"github.com/hatlonely/customobj/record/filter"
	"github.com/hatlonely/customobj/schema"
)

type assetFixture struct {
	kit    *testkit.Kit
	asset  *schema.TypeDescriptor
	label  *schema.TypeDescriptor
	assets *Repository
	labels *Repository
}

func newAssetFixture(t *testing.T) *assetFixture {
	kit := testkit.New(t)
	asset := kit.CreateType("Asset")
	label := kit.CreateType("Label")
	status := kit.ChoiceSet("status", "new", "used")

	kit.AddField(label, &schema.FieldDescriptor{Name: "title", Kind: schema.KindText, Primary: true, Required: true})
	kit.AddField(asset, &schema.FieldDescriptor{Name: "serial", Kind: schema.KindText, Primary: true, Unique: true})
	kit.AddField(asset, &schema.FieldDescriptor{Name: "count", Kind: schema.KindInteger, Default: []byte("1")})
	kit.AddField(asset, &schema.FieldDescriptor{Name: "price", Kind: schema.KindDecimal})
	kit.AddField(asset, &schema.FieldDescriptor{Name: "active", Kind: schema.KindBoolean})
	kit.AddField(asset, &schema.FieldDescriptor{Name: "bought", Kind: schema.KindDate})
	kit.AddField(asset, &schema.FieldDescriptor{Name: "seen", Kind: schema.KindDateTime})
	kit.AddField(asset, &schema.FieldDescriptor{Name: "extra", Kind: schema.KindJSON})
	kit.AddField(asset, &schema.FieldDescriptor{Name: "status", Kind: schema.KindSelect, ChoiceSetID: &status.ID})
	kit.AddField(asset, &schema.FieldDescriptor{Name: "flags", Kind: schema.KindMultiSelect, ChoiceSetID: &status.ID})
	kit.AddField(asset, &schema.FieldDescriptor{Name: "owner", Kind: schema.KindObject, TargetTypeID: &label.ID})
	kit.AddField(asset, &schema.FieldDescriptor{Name: "tags", Kind: schema.KindMultiObject, TargetTypeID: &label.ID})

	return &assetFixture{
		kit:    kit,
		asset:  asset,
		label:  label,
		assets: NewRepository(kit.DB, kit.Dialect(), kit.RecordType(asset.ID)),
		labels: NewRepository(kit.DB, kit.Dialect(), kit.RecordType(label.ID)),
	}
}

func (fx *assetFixture) newLabel(title string) *Record {
	rec := &Record{Values: map[string]any{"title": title}}
	So(fx.labels.Create(fx.kit.Ctx, rec), ShouldBeNil)
	return rec
}

func (fx *assetFixture) edges(rec *Record) int64 {
	var n int64
	join := fx.assets.RecordType().Binding("tags").Relation.JoinTable
	So(fx.kit.DB.Table(join).Where("source_id = ?", rec.ID).Count(&n).Error, ShouldBeNil)
	return n
}

func TestCreateAndGet(t *testing.T) {
	Convey("测试创建和读取记录", t, func() {
		fx := newAssetFixture(t)
		ctx := fx.kit.Ctx
		red := fx.newLabel("red")
		blue := fx.newLabel("blue")
		So(red.Name, ShouldEqual, "red")

		fx.assets.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 123456789, time.UTC) }
		rec := &Record{Values: map[string]any{
			"serial": "SN-1",
			"price":  "12.5",
			"active": true,
			"bought": "2024-01-02",
			"seen":   time.Date(2024, 1, 2, 3, 4, 5, 600000000, time.FixedZone("x", 3600)),
			"extra":  map[string]any{"rack": "A1"},
			"status": "new",
			"flags":  []string{"used", "new"},
			"owner":  red,
			"tags":   []any{red.ID, blue},
		}}
		So(fx.assets.Create(ctx, rec), ShouldBeNil)
		So(rec.ID, ShouldBeGreaterThan, 0)
		So(rec.Name, ShouldEqual, "SN-1")
		So(rec.Created, ShouldEqual, time.Date(2024, 5, 6, 7, 8, 9, 123456000, time.UTC))
		So(fx.edges(rec), ShouldEqual, 2)

		got, err := fx.assets.Get(ctx, rec.ID)
		So(err, ShouldBeNil)
		So(got.Name, ShouldEqual, "SN-1")
		So(got.Created, ShouldEqual, rec.Created)
		So(got.Get("serial"), ShouldEqual, "SN-1")
		So(got.Get("count"), ShouldEqual, int64(1))
		So(got.Get("price"), ShouldEqual, 12.5)
		So(got.Get("active"), ShouldEqual, true)
		So(got.Get("bought"), ShouldEqual, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
		So(got.Get("seen"), ShouldEqual, time.Date(2024, 1, 2, 2, 4, 5, 600000000, time.UTC))
		So(got.Get("extra"), ShouldResemble, map[string]any{"rack": "A1"})
		So(got.Get("status"), ShouldEqual, "new")
		So(got.Get("flags"), ShouldResemble, rec.Get("flags"))
		So(got.Get("owner"), ShouldEqual, red.ID)
		So(got.Values, ShouldNotContainKey, "tags")

		Convey("不存在的记录", func() {
			_, err := fx.assets.Get(ctx, 999)
			So(errs.IsNotFound(err), ShouldBeTrue)
		})

		Convey("GetMany 按 id 排序并忽略不存在的 id", func() {
			recs, err := fx.labels.GetMany(ctx, []int64{blue.ID, 999, red.ID})
			So(err, ShouldBeNil)
			So(recs, ShouldHaveLength, 2)
			So(recs[0].ID, ShouldEqual, red.ID)
			So(recs[1].ID, ShouldEqual, blue.ID)
		})
	})
}

func TestValidation(t *testing.T) {
	Convey("测试写入校验", t, func() {
		fx := newAssetFixture(t)
		ctx := fx.kit.Ctx

		Convey("必填字段", func() {
			err := fx.labels.Create(ctx, &Record{Values: map[string]any{}})
			So(errs.IsValidation(err), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "title")
		})

		Convey("未知字段和非法取值聚合返回", func() {
			err := fx.assets.Create(ctx, &Record{Values: map[string]any{"nope": 1, "count": "abc", "status": "broken"}})
			So(errs.IsValidation(err), ShouldBeTrue)
			var verr *errs.ValidationError
			So(errors.As(err, &verr), ShouldBeTrue)
			So(verr.Fields, ShouldHaveLength, 3)
		})

		Convey("唯一字段重复", func() {
			So(fx.assets.Create(ctx, &Record{Values: map[string]any{"serial": "SN-1"}}), ShouldBeNil)
			err := fx.assets.Create(ctx, &Record{Values: map[string]any{"serial": "SN-1"}})
			So(errs.IsValidation(err), ShouldBeTrue)
			var verr *errs.ValidationError
			So(errors.As(err, &verr), ShouldBeTrue)
			So(verr.Field, ShouldEqual, "serial")
		})

		Convey("并发写入绕过预检查时由唯一索引兜底", func() {
			So(fx.assets.Create(ctx, &Record{Values: map[string]any{"serial": "SN-1"}}), ShouldBeNil)
			w, err := fx.assets.prepare(ctx, map[string]any{"serial": "SN-1"}, nil)
			So(err, ShouldBeNil)
			serial := fx.assets.RecordType().Binding("serial")
			_, err = fx.kit.Dialect().Insert(ctx, fx.kit.DB, fx.assets.RecordType().Table, []string{serial.Column.Name}, []any{"SN-1"})
			So(err, ShouldNotBeNil)
			err = fx.assets.translate(ctx, err, w, 0)
			So(errs.IsValidation(err), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "serial")
		})

		Convey("空字符串视为空值，不触发唯一冲突", func() {
			So(fx.assets.Create(ctx, &Record{Values: map[string]any{"serial": ""}}), ShouldBeNil)
			So(fx.assets.Create(ctx, &Record{Values: map[string]any{"serial": ""}}), ShouldBeNil)
		})

		Convey("引用不存在的记录", func() {
			err := fx.assets.Create(ctx, &Record{Values: map[string]any{"owner": 42, "tags": []int64{43, 44}}})
			So(errs.IsValidation(err), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "object with id 42 does not exist")
			So(err.Error(), ShouldContainSubstring, "objects with ids 43, 44 do not exist")
		})
	})
}

func TestUpdate(t *testing.T) {
	Convey("测试更新记录", t, func() {
		fx := newAssetFixture(t)
		ctx := fx.kit.Ctx
		red := fx.newLabel("red")
		blue := fx.newLabel("blue")

		rec := &Record{Values: map[string]any{"serial": "SN-1", "count": 3, "tags": []int64{red.ID}}}
		So(fx.assets.Create(ctx, rec), ShouldBeNil)
		created := rec.Created

		fx.assets.now = func() time.Time { return created.Add(time.Hour) }
		update := &Record{ID: rec.ID, Values: map[string]any{"serial": "SN-2", "tags": []int64{blue.ID}}}
		So(fx.assets.Update(ctx, update), ShouldBeNil)
		So(update.Name, ShouldEqual, "SN-2")
		So(update.Created, ShouldEqual, created)
		So(update.LastUpdated, ShouldEqual, created.Add(time.Hour))
		So(update.Get("count"), ShouldEqual, int64(3))

		got, err := fx.assets.Get(ctx, rec.ID)
		So(err, ShouldBeNil)
		So(got.Get("serial"), ShouldEqual, "SN-2")
		So(got.Get("count"), ShouldEqual, int64(3))
		So(fx.edges(rec), ShouldEqual, 1)

		Convey("显式名称优先", func() {
			So(fx.assets.Update(ctx, &Record{ID: rec.ID, Name: "custom", Values: map[string]any{"count": 4}}), ShouldBeNil)
			got, err := fx.assets.Get(ctx, rec.ID)
			So(err, ShouldBeNil)
			So(got.Name, ShouldEqual, "custom")

			So(fx.assets.Update(ctx, &Record{ID: rec.ID, Values: map[string]any{"count": 5}}), ShouldBeNil)
			got, err = fx.assets.Get(ctx, rec.ID)
			So(err, ShouldBeNil)
			So(got.Name, ShouldEqual, "custom")
		})

		Convey("清空多值引用", func() {
			So(fx.assets.Update(ctx, &Record{ID: rec.ID, Values: map[string]any{"tags": nil}}), ShouldBeNil)
			So(fx.edges(rec), ShouldEqual, 0)
		})

		Convey("更新时唯一字段可以保持原值", func() {
			So(fx.assets.Update(ctx, &Record{ID: rec.ID, Values: map[string]any{"serial": "SN-2"}}), ShouldBeNil)
		})

		Convey("不存在的记录", func() {
			err := fx.assets.Update(ctx, &Record{ID: 999, Values: map[string]any{"count": 1}})
			So(errs.IsNotFound(err), ShouldBeTrue)
		})
	})
}

func TestDelete(t *testing.T) {
	Convey("测试删除记录", t, func() {
		fx := newAssetFixture(t)
		ctx := fx.kit.Ctx
		red := fx.newLabel("red")

		rec := &Record{Values: map[string]any{"serial": "SN-1", "owner": red.ID, "tags": []int64{red.ID}}}
		So(fx.assets.Create(ctx, rec), ShouldBeNil)

		Convey("删除被引用的记录时清理引用", func() {
			labels := NewRepository(fx.kit.DB, fx.kit.Dialect(), fx.kit.RecordType(fx.label.ID))
			So(labels.RecordType().Incoming, ShouldHaveLength, 2)
			So(labels.Delete(ctx, red.ID), ShouldBeNil)

			got, err := fx.assets.Get(ctx, rec.ID)
			So(err, ShouldBeNil)
			So(got.Get("owner"), ShouldBeNil)
			So(fx.edges(rec), ShouldEqual, 0)
		})

		Convey("删除记录时清理它的关联", func() {
			So(fx.assets.Delete(ctx, rec.ID), ShouldBeNil)
			So(fx.edges(rec), ShouldEqual, 0)
			_, err := fx.assets.Get(ctx, rec.ID)
			So(errs.IsNotFound(err), ShouldBeTrue)
		})

		Convey("不存在的记录", func() {
			So(errs.IsNotFound(fx.assets.Delete(ctx, 999)), ShouldBeTrue)
		})
	})
}

func TestList(t *testing.T) {
	Convey("测试查询记录", t, func() {
		fx := newAssetFixture(t)
		ctx := fx.kit.Ctx
		for i, serial := range []string{"a-1", "a-2", "b-1", "b-2", "c-1"} {
			rec := &Record{Values: map[string]any{"serial": serial, "count": i, "bought": time.Date(2024, 1, i+1, 0, 0, 0, 0, time.UTC)}}
			So(fx.assets.Create(ctx, rec), ShouldBeNil)
		}

		Convey("全部", func() {
			recs, err := fx.assets.List(ctx, nil, nil)
			So(err, ShouldBeNil)
			So(recs, ShouldHaveLength, 5)
			n, err := fx.assets.Count(ctx, nil)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 5)
		})

		Convey("按条件过滤", func() {
			q := &filter.BoolQuery{
				Must:    []filter.Query{&filter.PrefixQuery{Field: "serial", Value: "a-"}},
				MustNot: []filter.Query{&filter.TermQuery{Field: "count", Value: "0"}},
			}
			recs, err := fx.assets.List(ctx, q, nil)
			So(err, ShouldBeNil)
			So(recs, ShouldHaveLength, 1)
			So(recs[0].Get("serial"), ShouldEqual, "a-2")

			n, err := fx.assets.Count(ctx, &filter.RangeQuery{Field: "bought", Gte: "2024-01-03"})
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 3)
		})

		Convey("排序和分页", func() {
			recs, err := fx.assets.List(ctx, nil, &ListOptions{OrderBy: "count", Desc: true, Limit: 2, Offset: 1})
			So(err, ShouldBeNil)
			So(recs, ShouldHaveLength, 2)
			So(recs[0].Get("serial"), ShouldEqual, "b-2")
			So(recs[1].Get("serial"), ShouldEqual, "b-1")
		})

		Convey("未知字段", func() {
			_, err := fx.assets.List(ctx, &filter.ExistsQuery{Field: "nope"}, nil)
			So(errs.IsValidation(err), ShouldBeTrue)
			_, err = fx.assets.List(ctx, &filter.ExistsQuery{Field: "tags"}, nil)
			So(errs.IsValidation(err), ShouldBeTrue)
		})
	})
}

func TestDisplay(t *testing.T) {
	Convey("测试显示名", t, func() {
		So((&Record{ID: 3}).Display(), ShouldEqual, "unnamed row 3")
		So((&Record{ID: 3, Name: "x"}).Display(), ShouldEqual, "x")

		date := &schema.FieldDescriptor{Kind: schema.KindDate}
		So(human(date, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)), ShouldEqual, "2024-01-02")
		So(human(date, []string{"a", "b"}), ShouldEqual, "a, b")
		So(human(date, 1.50), ShouldEqual, "1.5")
	})
}
