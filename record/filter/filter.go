// Package filter 记录查询条件，字段名在生成 SQL 时通过 Resolver 映射为列名并转换取值
package filter

// QueryType 查询类型
type QueryType string

const (
	QueryTypeBool   QueryType = "bool"
	QueryTypeTerm   QueryType = "term"
	QueryTypeTerms  QueryType = "terms"
	QueryTypeMatch  QueryType = "match"
	QueryTypeRange  QueryType = "range"
	QueryTypeExists QueryType = "exists"
	QueryTypePrefix QueryType = "prefix"
)

// Resolver 把字段名解析为带引号的列名，把查询值转换为存储形式
type Resolver interface {
	Column(field string) (string, error)
	Value(field string, v any) (any, error)
}

// Query 查询节点接口
type Query interface {
	Type() QueryType
	ToSQL(r Resolver) (string, []any, error)
}

// field 解析列名并转换一组取值
func field(r Resolver, name string, values ...any) (string, []any, error) {
	col, err := r.Column(name)
	if err != nil {
		return "", nil, err
	}
	args := make([]any, 0, len(values))
	for _, v := range values {
		sv, err := r.Value(name, v)
		if err != nil {
			return "", nil, err
		}
		args = append(args, sv)
	}
	return col, args, nil
}
