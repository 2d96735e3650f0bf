package docstore

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestBuildSelect(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q := NewQuery().
		Where("approved", Eq, true).
		Where("category", Eq, "books").
		Where("price", Lte, decimal.NewFromInt(10)).
		Where("stock", Gt, 0).
		Where("createdAt", Gte, at).
		Where("participants", Contains, "u1").
		Where("status", Ne, "cancelled").
		OrderBy("createdAt", true).
		WithLimit(20)

	sql, args := buildSelect("products", q)

	assert.Equal(t, "SELECT id, doc FROM documents WHERE collection = $1"+
		" AND (doc #>> $2::text[])::boolean = $3::boolean"+
		" AND (doc #>> $4::text[]) = $5::text"+
		" AND (doc #>> $6::text[])::numeric <= $7::text::numeric"+
		" AND (doc #>> $8::text[])::numeric > $9::text::numeric"+
		" AND (doc #>> $10::text[])::timestamptz >= $11::timestamptz"+
		" AND doc #> $12::text[] @> jsonb_build_array($13::text)"+
		" AND (doc #>> $14::text[]) IS DISTINCT FROM $15::text"+
		" ORDER BY (doc #>> $16::text[])::timestamptz DESC, id LIMIT 20", sql)
	assert.Len(t, args, 16)
	assert.Equal(t, "products", args[0])
	assert.Equal(t, []string{"approved"}, args[1])
	assert.Equal(t, true, args[2])
	assert.Equal(t, "10", args[6])
	assert.Equal(t, "0", args[8])
	assert.Equal(t, at, args[10])
	assert.Equal(t, []string{"createdAt"}, args[15])
}

func TestBuildSelect_UnsortedIgnoresLimit(t *testing.T) {
	sql, args := buildSelect("orders", NewQuery().Where("id", Eq, "o1").WithLimit(5))
	assert.Equal(t, "SELECT id, doc FROM documents WHERE collection = $1 AND id = $2", sql)
	assert.Equal(t, []any{"orders", "o1"}, args)
}

func TestSQLFilter_NestedPath(t *testing.T) {
	cond, args := sqlFilter(Filter{Field: "unreadCount.u1", Op: Gt, Value: 0}, nil)
	assert.Equal(t, "(doc #>> $1::text[])::numeric > $2::text::numeric", cond)
	assert.Equal(t, []any{[]string{"unreadCount", "u1"}, "0"}, args)
}
