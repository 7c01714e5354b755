package relation

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/hatlonely/customobj/record"
	"github.com/hatlonely/customobj/recordtype"
	"github.com/hatlonely/customobj/schema"
)

type edge struct {
	SourceID int64 `gorm:"column:source_id"`
	TargetID int64 `gorm:"column:target_id"`
}

// Prefetch 批量读取一组记录在某个引用字段上的目标记录，结果以源记录 id 为键
//
// 多值引用只执行两次查询：一次读取关联表中的边，一次读取去重后的目标记录。
// 单值引用的目标 id 已经在源记录上，只读取目标记录。没有源记录或没有边时不执行查询。
func Prefetch(ctx context.Context, db *gorm.DB, b *recordtype.Binding, target *record.Repository, sources []*record.Record) (map[int64][]*record.Record, error) {
	result := make(map[int64][]*record.Record, len(sources))
	if len(sources) == 0 || b.Relation == nil {
		return result, nil
	}

	var edges []edge
	if b.Many() {
		ids := make([]int64, 0, len(sources))
		for _, src := range sources {
			ids = append(ids, src.ID)
		}
		err := db.WithContext(ctx).Table(b.Relation.JoinTable).
			Select(schema.JoinSourceColumn, schema.JoinTargetColumn).
			Where(schema.JoinSourceColumn+" IN ?", ids).
			Order(schema.ColumnID).
			Find(&edges).Error
		if err != nil {
			return nil, errors.Wrapf(err, "select edges from %s failed", b.Relation.JoinTable)
		}
	} else {
		for _, src := range sources {
			if id, ok := src.Get(b.Name()).(int64); ok {
				edges = append(edges, edge{SourceID: src.ID, TargetID: id})
			}
		}
	}
	if len(edges) == 0 {
		return result, nil
	}

	seen := map[int64]bool{}
	targets := make([]int64, 0, len(edges))
	for _, e := range edges {
		if !seen[e.TargetID] {
			seen[e.TargetID] = true
			targets = append(targets, e.TargetID)
		}
	}
	recs, err := target.GetMany(ctx, targets)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*record.Record, len(recs))
	for _, rec := range recs {
		byID[rec.ID] = rec
	}

	for _, e := range edges {
		if rec, ok := byID[e.TargetID]; ok {
			result[e.SourceID] = append(result[e.SourceID], rec)
		}
	}
	return result, nil
}
