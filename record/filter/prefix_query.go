package filter

import (
	"fmt"
	"strings"
)

// mysql 默认把反斜杠当作字符串转义，这里用 ! 作为 LIKE 的转义符
var likeEscaper = strings.NewReplacer(`!`, `!!`, `%`, `!%`, `_`, `!_`)

// PrefixQuery 前缀查询，只用于字符串列
type PrefixQuery struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (q *PrefixQuery) Type() QueryType {
	return QueryTypePrefix
}

func (q *PrefixQuery) ToSQL(r Resolver) (string, []any, error) {
	col, _, err := field(r, q.Field)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf(`%s LIKE ? ESCAPE '!'`, col), []any{likeEscaper.Replace(q.Value) + "%"}, nil
}

// MatchQuery 包含子串
type MatchQuery struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (q *MatchQuery) Type() QueryType {
	return QueryTypeMatch
}

func (q *MatchQuery) ToSQL(r Resolver) (string, []any, error) {
	col, _, err := field(r, q.Field)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf(`%s LIKE ? ESCAPE '!'`, col), []any{"%" + likeEscaper.Replace(q.Value) + "%"}, nil
}
