package migrate

import (
	"context"
	"database/sql"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"gorm.io/gorm"

	"github.com/hatlonely/customobj/errs"
	"github.com/hatlonely/customobj/internal/testdb"
	"github.com/hatlonely/customobj/lock"
	"github.com/hatlonely/customobj/recordtype"
	"github.com/hatlonely/customobj/schema"
	"github.com/hatlonely/customobj/store"
	"github.com/hatlonely/customobj/version"
)

type fixture struct {
	ctx      context.Context
	db       *gorm.DB
	store    *store.Store
	migrator *Migrator
}

func newFixture(t *testing.T) *fixture {
	db := testdb.Open(t)
	s, err := store.NewStoreWithOptions(db, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	factory := recordtype.NewFactoryWithOptions(nil, s, lock.NewRegistryWithOptions(nil), version.NewMemoryStore())
	return &fixture{ctx: context.Background(), db: db, store: s, migrator: NewMigrator(s, factory)}
}

func (fx *fixture) createType(name string) *schema.TypeDescriptor {
	td := &schema.TypeDescriptor{Name: name}
	err := fx.db.Transaction(func(tx *gorm.DB) error {
		if err := fx.store.CreateType(fx.ctx, tx, td); err != nil {
			return err
		}
		_, err := fx.migrator.CreateTable(fx.ctx, tx, td)
		return err
	})
	So(err, ShouldBeNil)
	return td
}

func (fx *fixture) addField(td *schema.TypeDescriptor, fd *schema.FieldDescriptor) *schema.FieldDescriptor {
	fd.TypeID = td.ID
	fd.ApplyDefaults()
	err := fx.db.Transaction(func(tx *gorm.DB) error {
		if err := fx.store.CreateField(fx.ctx, tx, fd); err != nil {
			return err
		}
		_, err := fx.migrator.AddField(fx.ctx, tx, td, fd)
		return err
	})
	So(err, ShouldBeNil)
	return fd
}

func (fx *fixture) alterField(td *schema.TypeDescriptor, from, to *schema.FieldDescriptor) (*Result, error) {
	var res *Result
	err := fx.db.Transaction(func(tx *gorm.DB) error {
		if err := fx.store.UpdateField(fx.ctx, tx, to); err != nil {
			return err
		}
		var err error
		res, err = fx.migrator.AlterField(fx.ctx, tx, td, from, to)
		return err
	})
	return res, err
}

func (fx *fixture) hasColumn(table, column string) bool {
	return fx.db.Migrator().HasColumn(table, column)
}

func (fx *fixture) count(table string) int64 {
	var n int64
	So(fx.db.Table(table).Count(&n).Error, ShouldBeNil)
	return n
}

func TestCreateAndDropTable(t *testing.T) {
	Convey("测试建表和删表", t, func() {
		fx := newFixture(t)
		asset := fx.createType("Asset")
		table := schema.TableName(asset.ID)

		So(fx.db.Migrator().HasTable(table), ShouldBeTrue)
		for _, col := range []string{"id", "name", "created", "last_updated"} {
			So(fx.hasColumn(table, col), ShouldBeTrue)
		}

		tags := fx.addField(asset, &schema.FieldDescriptor{Name: "tags", Kind: schema.KindMultiObject, TargetTypeID: &asset.ID})
		join := schema.JoinTableName(asset.ID, tags.ID)
		So(fx.db.Migrator().HasTable(join), ShouldBeTrue)

		rt, err := fx.migrator.factory.Get(fx.ctx, asset.ID, recordtype.WithoutCache())
		So(err, ShouldBeNil)
		res, err := fx.migrator.DropTable(fx.ctx, fx.db, rt)
		So(err, ShouldBeNil)
		So(res.Statements, ShouldHaveLength, 2)
		So(fx.db.Migrator().HasTable(table), ShouldBeFalse)
		So(fx.db.Migrator().HasTable(join), ShouldBeFalse)
	})
}

func TestAddField(t *testing.T) {
	Convey("测试添加字段保留已有数据", t, func() {
		fx := newFixture(t)
		asset := fx.createType("Asset")
		table := schema.TableName(asset.ID)
		for _, name := range []string{"a", "b", "c"} {
			So(fx.db.Exec("INSERT INTO "+table+" (name) VALUES (?)", name).Error, ShouldBeNil)
		}

		count := fx.addField(asset, &schema.FieldDescriptor{Name: "count", Kind: schema.KindInteger, Default: []byte("7")})
		So(fx.hasColumn(table, schema.FieldColumn(count.ID)), ShouldBeTrue)
		So(fx.count(table), ShouldEqual, 3)

		var values []int64
		So(fx.db.Table(table).Pluck(schema.FieldColumn(count.ID), &values).Error, ShouldBeNil)
		So(values, ShouldResemble, []int64{7, 7, 7})

		Convey("唯一字段建唯一索引", func() {
			serial := fx.addField(asset, &schema.FieldDescriptor{Name: "serial", Kind: schema.KindText, Unique: true})
			So(fx.db.Migrator().HasIndex(table, "uk_"+table+"_"+schema.FieldColumn(serial.ID)), ShouldBeTrue)
		})

		Convey("DDL 失败时描述符回滚", func() {
			So(fx.db.Exec("ALTER TABLE "+table+" ADD COLUMN field_100 TEXT").Error, ShouldBeNil)
			fd := &schema.FieldDescriptor{ID: 100, TypeID: asset.ID, Name: "dup", Kind: schema.KindText}
			err := fx.db.Transaction(func(tx *gorm.DB) error {
				if err := fx.store.CreateField(fx.ctx, tx, fd); err != nil {
					return err
				}
				_, err := fx.migrator.AddField(fx.ctx, tx, asset, fd)
				return err
			})
			So(errs.IsMigration(err), ShouldBeTrue)
			_, err = fx.store.GetField(fx.ctx, nil, 100)
			So(errs.IsNotFound(err), ShouldBeTrue)
		})
	})
}

func TestAlterField(t *testing.T) {
	Convey("测试修改字段", t, func() {
		fx := newFixture(t)
		asset := fx.createType("Asset")
		table := schema.TableName(asset.ID)
		count := fx.addField(asset, &schema.FieldDescriptor{Name: "count", Kind: schema.KindInteger})
		col := schema.FieldColumn(count.ID)
		So(fx.db.Exec("INSERT INTO "+table+" (name, "+col+") VALUES (?, ?), (?, ?)", "a", 1, "b", 2).Error, ShouldBeNil)

		Convey("同族原地修改，数据保留", func() {
			to := count.Clone()
			to.Kind = schema.KindDecimal
			res, err := fx.alterField(asset, count, to)
			So(err, ShouldBeNil)
			So(res.Change, ShouldEqual, ChangeAlter)

			var values []float64
			So(fx.db.Table(table).Order("id").Pluck(col, &values).Error, ShouldBeNil)
			So(values, ShouldResemble, []float64{1, 2})
		})

		Convey("跨族删除重建，数据丢弃", func() {
			to := count.Clone()
			to.Kind = schema.KindText
			to.MaxLength = 10
			res, err := fx.alterField(asset, count, to)
			So(err, ShouldBeNil)
			So(res.Change, ShouldEqual, ChangeRecreate)
			So(fx.hasColumn(table, col), ShouldBeTrue)
			So(fx.count(table), ShouldEqual, 2)

			var values []sql.NullString
			So(fx.db.Table(table).Pluck(col, &values).Error, ShouldBeNil)
			So(values, ShouldHaveLength, 2)
			So(values[0].Valid, ShouldBeFalse)
			So(values[1].Valid, ShouldBeFalse)
		})

		Convey("只改名称不需要 DDL", func() {
			to := count.Clone()
			to.Name = "quantity"
			to.Label = "Quantity"
			res, err := fx.alterField(asset, count, to)
			So(err, ShouldBeNil)
			So(res.Change, ShouldEqual, ChangeNone)
			So(res.Statements, ShouldBeEmpty)
		})

		Convey("增加唯一约束", func() {
			to := count.Clone()
			to.Unique = true
			res, err := fx.alterField(asset, count, to)
			So(err, ShouldBeNil)
			So(res.Change, ShouldEqual, ChangeAlter)
			So(fx.db.Migrator().HasIndex(table, "uk_"+table+"_"+col), ShouldBeTrue)
		})

		Convey("更换引用目标", func() {
			label := fx.createType("Label")
			owner := fx.addField(asset, &schema.FieldDescriptor{Name: "owner", Kind: schema.KindMultiObject, TargetTypeID: &asset.ID})
			to := owner.Clone()
			to.TargetTypeID = &label.ID
			res, err := fx.alterField(asset, owner, to)
			So(err, ShouldBeNil)
			So(res.Change, ShouldEqual, ChangeRecreate)
			So(fx.db.Migrator().HasTable(schema.JoinTableName(asset.ID, owner.ID)), ShouldBeTrue)
		})
	})
}

func TestDropField(t *testing.T) {
	Convey("测试删除字段", t, func() {
		fx := newFixture(t)
		asset := fx.createType("Asset")
		table := schema.TableName(asset.ID)
		serial := fx.addField(asset, &schema.FieldDescriptor{Name: "serial", Kind: schema.KindText, Unique: true})
		tags := fx.addField(asset, &schema.FieldDescriptor{Name: "tags", Kind: schema.KindMultiObject, TargetTypeID: &asset.ID})

		for _, fd := range []*schema.FieldDescriptor{serial, tags} {
			err := fx.db.Transaction(func(tx *gorm.DB) error {
				if _, err := fx.migrator.DropField(fx.ctx, tx, asset, fd); err != nil {
					return err
				}
				return fx.store.DeleteField(fx.ctx, tx, fd)
			})
			So(err, ShouldBeNil)
		}

		So(fx.hasColumn(table, schema.FieldColumn(serial.ID)), ShouldBeFalse)
		So(fx.db.Migrator().HasTable(schema.JoinTableName(asset.ID, tags.ID)), ShouldBeFalse)
	})
}

func TestRepair(t *testing.T) {
	Convey("测试修复缺失的表和列", t, func() {
		fx := newFixture(t)
		asset := fx.createType("Asset")
		table := schema.TableName(asset.ID)
		serial := fx.addField(asset, &schema.FieldDescriptor{Name: "serial", Kind: schema.KindText, Unique: true})
		tags := fx.addField(asset, &schema.FieldDescriptor{Name: "tags", Kind: schema.KindMultiObject, TargetTypeID: &asset.ID})

		report, err := fx.migrator.Repair(fx.ctx, fx.db)
		So(err, ShouldBeNil)
		So(report.Empty(), ShouldBeTrue)

		So(fx.db.Exec("DROP INDEX uk_"+table+"_"+schema.FieldColumn(serial.ID)).Error, ShouldBeNil)
		So(fx.db.Exec("ALTER TABLE "+table+" DROP COLUMN "+schema.FieldColumn(serial.ID)).Error, ShouldBeNil)
		So(fx.db.Exec("DROP TABLE "+schema.JoinTableName(asset.ID, tags.ID)).Error, ShouldBeNil)

		report, err = fx.migrator.Repair(fx.ctx, fx.db)
		So(err, ShouldBeNil)
		So(report.Columns, ShouldResemble, []string{table + "." + schema.FieldColumn(serial.ID)})
		So(report.Indexes, ShouldHaveLength, 1)
		So(report.JoinTables, ShouldResemble, []string{schema.JoinTableName(asset.ID, tags.ID)})
		So(fx.hasColumn(table, schema.FieldColumn(serial.ID)), ShouldBeTrue)

		Convey("整张表缺失", func() {
			So(fx.db.Exec("DROP TABLE "+table).Error, ShouldBeNil)
			report, err := fx.migrator.Repair(fx.ctx, fx.db)
			So(err, ShouldBeNil)
			So(report.Tables, ShouldResemble, []string{table})
			So(report.Indexes, ShouldHaveLength, 1)
			So(fx.hasColumn(table, schema.FieldColumn(serial.ID)), ShouldBeTrue)
		})

		report, err = fx.migrator.Repair(fx.ctx, fx.db)
		So(err, ShouldBeNil)
		So(report.Empty(), ShouldBeTrue)
	})
}

func TestClassify(t *testing.T) {
	Convey("测试变化分类", t, func() {
		count := &schema.FieldDescriptor{ID: 1, TypeID: 1, Name: "count", Kind: schema.KindInteger}

		for _, c := range []struct {
			kind   schema.Kind
			change Change
		}{
			{schema.KindInteger, ChangeNone},
			{schema.KindDecimal, ChangeAlter},
			{schema.KindBoolean, ChangeRecreate},
			{schema.KindDate, ChangeRecreate},
			{schema.KindJSON, ChangeRecreate},
		} {
			to := count.Clone()
			to.Kind = c.kind
			So(classify(fallbackBinding(count), fallbackBinding(to)), ShouldEqual, c.change)
		}

		text := &schema.FieldDescriptor{ID: 2, TypeID: 1, Name: "title", Kind: schema.KindText}
		long := text.Clone()
		long.Kind = schema.KindLongText
		So(classify(fallbackBinding(text), fallbackBinding(long)), ShouldEqual, ChangeAlter)
	})
}
