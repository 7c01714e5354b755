// Package testkit 在 sqlite 上搭建完整的类型存储、工厂和迁移器，供记录和关联的测试使用
package testkit

import (
	"context"
	"testing"

	"gorm.io/gorm"

	"github.com/hatlonely/customobj/dialect"
	"github.com/hatlonely/customobj/internal/testdb"
	"github.com/hatlonely/customobj/lock"
	"github.com/hatlonely/customobj/migrate"
	"github.com/hatlonely/customobj/recordtype"
	"github.com/hatlonely/customobj/schema"
	"github.com/hatlonely/customobj/store"
	"github.com/hatlonely/customobj/version"
)

type Kit struct {
	Ctx      context.Context
	DB       *gorm.DB
	Store    *store.Store
	Factory  *recordtype.Factory
	Migrator *migrate.Migrator

	t testing.TB
}

func New(t testing.TB) *Kit {
	t.Helper()

	db := testdb.Open(t)
	s, err := store.NewStoreWithOptions(db, nil)
	if err != nil {
		t.Fatalf("store.NewStoreWithOptions failed: %v", err)
	}
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("store.Migrate failed: %v", err)
	}
	factory := recordtype.NewFactoryWithOptions(nil, s, lock.NewRegistryWithOptions(nil), version.NewMemoryStore())
	return &Kit{
		Ctx:      context.Background(),
		DB:       db,
		Store:    s,
		Factory:  factory,
		Migrator: migrate.NewMigrator(s, factory),
		t:        t,
	}
}

func (k *Kit) Dialect() dialect.Dialect {
	return k.Store.Dialect()
}

// CreateType 创建类型和它的表
func (k *Kit) CreateType(name string) *schema.TypeDescriptor {
	k.t.Helper()
	td := &schema.TypeDescriptor{Name: name}
	err := k.DB.Transaction(func(tx *gorm.DB) error {
		if err := k.Store.CreateType(k.Ctx, tx, td); err != nil {
			return err
		}
		_, err := k.Migrator.CreateTable(k.Ctx, tx, td)
		return err
	})
	if err != nil {
		k.t.Fatalf("create type %s failed: %v", name, err)
	}
	return td
}

// AddField 添加字段并使缓存失效
func (k *Kit) AddField(td *schema.TypeDescriptor, fd *schema.FieldDescriptor) *schema.FieldDescriptor {
	k.t.Helper()
	fd.TypeID = td.ID
	fd.ApplyDefaults()
	err := k.DB.Transaction(func(tx *gorm.DB) error {
		if err := k.Store.CreateField(k.Ctx, tx, fd); err != nil {
			return err
		}
		_, err := k.Migrator.AddField(k.Ctx, tx, td, fd)
		return err
	})
	if err != nil {
		k.t.Fatalf("add field %s failed: %v", fd.Name, err)
	}
	ids := []int64{td.ID}
	if target := fd.Target(); target != 0 && target != td.ID {
		ids = append(ids, target)
	}
	if err := k.Factory.Invalidate(k.Ctx, ids...); err != nil {
		k.t.Fatalf("invalidate failed: %v", err)
	}
	return fd
}

// ChoiceSet 创建选项集
func (k *Kit) ChoiceSet(name string, values ...string) *schema.ChoiceSet {
	k.t.Helper()
	cs := &schema.ChoiceSet{Name: name}
	for _, v := range values {
		cs.Choices = append(cs.Choices, schema.Choice{Value: v, Label: v})
	}
	if err := k.Store.CreateChoiceSet(k.Ctx, nil, cs); err != nil {
		k.t.Fatalf("create choice set %s failed: %v", name, err)
	}
	return cs
}

// RecordType 从缓存获取记录类型
func (k *Kit) RecordType(typeID int64) *recordtype.RecordType {
	k.t.Helper()
	rt, err := k.Factory.Get(k.Ctx, typeID)
	if err != nil {
		k.t.Fatalf("get record type %d failed: %v", typeID, err)
	}
	return rt
}
