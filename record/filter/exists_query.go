package filter

import "fmt"

// ExistsQuery 字段有值
type ExistsQuery struct {
	Field string `json:"field"`
}

func (q *ExistsQuery) Type() QueryType {
	return QueryTypeExists
}

func (q *ExistsQuery) ToSQL(r Resolver) (string, []any, error) {
	col, _, err := field(r, q.Field)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("%s IS NOT NULL", col), nil, nil
}
