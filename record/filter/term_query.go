package filter

import (
	"fmt"
	"strings"
)

// TermQuery 精确匹配查询，Value 为 nil 时匹配空值
type TermQuery struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

func (q *TermQuery) Type() QueryType {
	return QueryTypeTerm
}

func (q *TermQuery) ToSQL(r Resolver) (string, []any, error) {
	if q.Value == nil {
		col, _, err := field(r, q.Field)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%s IS NULL", col), nil, nil
	}
	col, args, err := field(r, q.Field, q.Value)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("%s = ?", col), args, nil
}

// TermsQuery 匹配任意一个取值
type TermsQuery struct {
	Field  string `json:"field"`
	Values []any  `json:"values"`
}

func (q *TermsQuery) Type() QueryType {
	return QueryTypeTerms
}

func (q *TermsQuery) ToSQL(r Resolver) (string, []any, error) {
	col, args, err := field(r, q.Field, q.Values...)
	if err != nil {
		return "", nil, err
	}
	if len(args) == 0 {
		return "1=0", nil, nil
	}
	return fmt.Sprintf("%s IN (%s)", col, strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")), args, nil
}
