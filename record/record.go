// Package record 在生成的记录类型上读写记录
package record

import (
	"fmt"
	"time"
)

// Record 一行记录，Values 以字段名为键保存规范取值
//
// 多值引用字段的取值只在写入时使用，读取时通过关联句柄访问。
type Record struct {
	ID int64
	// 所属类型，读取和创建时由仓库填充
	TypeID      int64
	Name        string
	Created     time.Time
	LastUpdated time.Time
	Values      map[string]any
}

// RecordID 实现 field.Identifiable
func (r *Record) RecordID() int64 {
	return r.ID
}

// Get 字段的取值
func (r *Record) Get(name string) any {
	return r.Values[name]
}

// Display 显示名，没有名称时使用 id
func (r *Record) Display() string {
	if r.Name != "" {
		return r.Name
	}
	return fmt.Sprintf("unnamed row %d", r.ID)
}
