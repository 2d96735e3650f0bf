package docstore

import (
	"fmt"
	"time"
)

type Op string

const (
	Eq       Op = "=="
	Ne       Op = "!="
	Lt       Op = "<"
	Lte      Op = "<="
	Gt       Op = ">"
	Gte      Op = ">="
	Contains Op = "array-contains"
)

type Filter struct {
	Field string
	Op    Op
	Value any
}

// Sort orders results by a timestamp field.
type Sort struct {
	Field string
	Desc  bool
}

// Query is a conjunction of filters with an optional single sort key.
type Query struct {
	Filters []Filter
	Sort    *Sort
	Limit   int
}

func NewQuery() Query { return Query{} }

// Where returns a copy of q with an extra filter.
func (q Query) Where(field string, op Op, value any) Query {
	out := q
	out.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Op: op, Value: value})
	return out
}

func (q Query) OrderBy(field string, desc bool) Query {
	out := q
	out.Sort = &Sort{Field: field, Desc: desc}
	return out
}

// Unsorted drops the sort key. The limit is dropped too, since a limit
// without an order would return an arbitrary subset.
func (q Query) Unsorted() Query {
	out := q
	out.Sort = nil
	out.Limit = 0
	return out
}

func (q Query) WithLimit(n int) Query {
	out := q
	out.Limit = n
	return out
}

func (q Query) validate() error {
	for _, f := range q.Filters {
		switch f.Op {
		case Eq, Ne, Lt, Lte, Gt, Gte, Contains:
		default:
			return fmt.Errorf("docstore: unsupported operator %q on %s", f.Op, f.Field)
		}
		if f.Field == "" {
			return fmt.Errorf("docstore: filter without field")
		}
	}
	if q.Sort != nil && q.Sort.Field == "" {
		return fmt.Errorf("docstore: sort without field")
	}
	return nil
}

// compareValues orders two JSON-decoded scalars. Strings that both parse as
// RFC 3339 timestamps compare as times. ok is false when the values are not
// comparable.
func compareValues(a, b any) (c int, ok bool) {
	switch av := a.(type) {
	case float64:
		bv, isNum := b.(float64)
		if !isNum {
			return 0, false
		}
		return cmpOrdered(av, bv), true
	case string:
		bv, isStr := b.(string)
		if !isStr {
			return 0, false
		}
		at, aerr := time.Parse(time.RFC3339Nano, av)
		bt, berr := time.Parse(time.RFC3339Nano, bv)
		if aerr == nil && berr == nil {
			return at.Compare(bt), true
		}
		return cmpOrdered(av, bv), true
	case bool:
		bv, isBool := b.(bool)
		if !isBool {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		default:
			return 1, true
		}
	case nil:
		if b == nil {
			return 0, true
		}
		return 0, false
	}
	return 0, false
}

func cmpOrdered[T float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func matchFilter(v any, present bool, f Filter, want any) bool {
	if f.Op == Contains {
		arr, ok := v.([]any)
		if !ok {
			return false
		}
		for _, el := range arr {
			if c, ok := compareValues(el, want); ok && c == 0 {
				return true
			}
		}
		return false
	}
	if !present {
		return f.Op == Ne
	}
	c, ok := compareValues(v, want)
	if !ok {
		return f.Op == Ne
	}
	switch f.Op {
	case Eq:
		return c == 0
	case Ne:
		return c != 0
	case Lt:
		return c < 0
	case Lte:
		return c <= 0
	case Gt:
		return c > 0
	case Gte:
		return c >= 0
	}
	return false
}
