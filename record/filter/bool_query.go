package filter

import (
	"fmt"
	"strings"
)

// BoolQuery 布尔查询
type BoolQuery struct {
	Must           []Query `json:"must,omitempty"`
	Should         []Query `json:"should,omitempty"`
	MustNot        []Query `json:"must_not,omitempty"`
	MinShouldMatch *int    `json:"minimum_should_match,omitempty"`
}

func (q *BoolQuery) Type() QueryType {
	return QueryTypeBool
}

func (q *BoolQuery) ToSQL(r Resolver) (string, []any, error) {
	var conditions []string
	var args []any

	must, mustArgs, err := clauses(r, q.Must, "%s")
	if err != nil {
		return "", nil, err
	}
	if len(must) > 0 {
		conditions = append(conditions, "("+strings.Join(must, " AND ")+")")
		args = append(args, mustArgs...)
	}

	should, shouldArgs, err := clauses(r, q.Should, "%s")
	if err != nil {
		return "", nil, err
	}
	if len(should) > 0 {
		if q.MinShouldMatch != nil && *q.MinShouldMatch != 1 {
			cases := make([]string, len(should))
			for i, c := range should {
				cases[i] = fmt.Sprintf("CASE WHEN (%s) THEN 1 ELSE 0 END", c)
			}
			conditions = append(conditions, fmt.Sprintf("(%s) >= %d", strings.Join(cases, " + "), *q.MinShouldMatch))
		} else {
			conditions = append(conditions, "("+strings.Join(should, " OR ")+")")
		}
		args = append(args, shouldArgs...)
	}

	mustNot, mustNotArgs, err := clauses(r, q.MustNot, "NOT (%s)")
	if err != nil {
		return "", nil, err
	}
	if len(mustNot) > 0 {
		conditions = append(conditions, "("+strings.Join(mustNot, " AND ")+")")
		args = append(args, mustNotArgs...)
	}

	if len(conditions) == 0 {
		return "1=1", nil, nil
	}
	return strings.Join(conditions, " AND "), args, nil
}

func clauses(r Resolver, queries []Query, format string) ([]string, []any, error) {
	var sqls []string
	var args []any
	for _, query := range queries {
		sql, queryArgs, err := query.ToSQL(r)
		if err != nil {
			return nil, nil, err
		}
		sqls = append(sqls, fmt.Sprintf(format, sql))
		args = append(args, queryArgs...)
	}
	return sqls, args, nil
}
