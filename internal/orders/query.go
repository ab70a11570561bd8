package orders

import (
	"strconv"
	"strings"
)

// Query accumulates conditions and bound values for a SELECT. Conditions use
// '?' placeholders which Build renumbers to $1..$n, so caller values only
// ever travel as arguments.
type Query struct {
	base    string
	conds   []string
	args    []any
	orderBy string
	limit   int
}

func Select(base string) *Query {
	return &Query{base: base}
}

func (q *Query) Where(cond string, args ...any) *Query {
	q.conds = append(q.conds, q.bind(cond, args))
	return q
}

// WhereAny groups alternatives as (a OR b ...).
func (q *Query) WhereAny(conds []string, args ...any) *Query {
	return q.Where("("+strings.Join(conds, " OR ")+")", args...)
}

func (q *Query) OrderBy(expr string) *Query {
	q.orderBy = expr
	return q
}

func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

func (q *Query) Build() (string, []any) {
	var sb strings.Builder
	sb.WriteString(q.base)
	if len(q.conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(q.conds, " AND "))
	}
	if q.orderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(q.orderBy)
	}
	args := q.args
	if q.limit > 0 {
		args = append(args[:len(args):len(args)], q.limit)
		sb.WriteString(" LIMIT $")
		sb.WriteString(strconv.Itoa(len(args)))
	}
	return sb.String(), args
}

func (q *Query) bind(cond string, args []any) string {
	var sb strings.Builder
	next := 0
	for _, r := range cond {
		if r == '?' && next < len(args) {
			q.args = append(q.args, args[next])
			next++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(len(q.args)))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
