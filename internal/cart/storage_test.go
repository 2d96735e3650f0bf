package cart

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type RedisStorageSuite struct {
	suite.Suite
	mr      *miniredis.Miniredis
	rdb     *redis.Client
	storage *RedisStorage
}

func (s *RedisStorageSuite) SetupTest() {
	s.mr = miniredis.RunT(s.T())
	s.rdb = redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	s.storage = NewRedisStorage(s.rdb, time.Hour)
}

func (s *RedisStorageSuite) TearDownTest() {
	_ = s.rdb.Close()
}

func (s *RedisStorageSuite) TestLoadMissingIsEmpty() {
	items, err := s.storage.Load(context.Background(), "nobody")
	s.Require().NoError(err)
	s.Empty(items)
}

func (s *RedisStorageSuite) TestSaveAndLoad() {
	ctx := context.Background()
	want := []Item{
		{ProductID: "p1", Name: "Lab coat", Price: decimal.RequireFromString("350.00"), Quantity: 1, SellerID: "s1", SellerName: "Ana"},
		{ProductID: "p2", Name: "Goggles", Price: decimal.RequireFromString("99.99"), Quantity: 2, SellerID: "s2", SellerName: "Ben"},
	}
	s.Require().NoError(s.storage.Save(ctx, "u1", want))
	s.True(s.mr.Exists("cart:u1"))
	s.Equal(time.Hour, s.mr.TTL("cart:u1"))

	got, err := s.storage.Load(ctx, "u1")
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal("p1", got[0].ProductID)
	s.True(got[1].Price.Equal(want[1].Price))
}

func (s *RedisStorageSuite) TestSaveEmptyDeletesKey() {
	ctx := context.Background()
	s.Require().NoError(s.storage.Save(ctx, "u1", []Item{{ProductID: "p1", Quantity: 1, SellerID: "s1"}}))
	s.Require().NoError(s.storage.Save(ctx, "u1", nil))
	s.False(s.mr.Exists("cart:u1"))
}

func (s *RedisStorageSuite) TestCartSurvivesReload() {
	ctx := context.Background()
	c, err := Load(ctx, "u1", s.storage, zerolog.Nop())
	s.Require().NoError(err)
	s.Require().NoError(c.Add(ctx, Item{ProductID: "p1", Price: decimal.NewFromInt(3), Quantity: 2, SellerID: "s1"}))

	reloaded, err := Load(ctx, "u1", s.storage, zerolog.Nop())
	s.Require().NoError(err)
	s.Equal(2, reloaded.Count())
}

func (s *RedisStorageSuite) TestRedisDownFailsMutation() {
	ctx := context.Background()
	c, err := Load(ctx, "u1", s.storage, zerolog.Nop())
	s.Require().NoError(err)

	s.mr.Close()
	err = c.Add(ctx, Item{ProductID: "p1", Price: decimal.NewFromInt(3), Quantity: 1, SellerID: "s1"})
	s.Error(err)
	s.Empty(c.Items())
}

func TestRedisStorageSuite(t *testing.T) {
	suite.Run(t, new(RedisStorageSuite))
}

func (s *RedisStorageSuite) TestRegistryLoadsOnceAndEvicts() {
	ctx := context.Background()
	reg := NewRegistry(s.storage, zerolog.Nop())

	a, err := reg.For(ctx, "u1")
	s.Require().NoError(err)
	b, err := reg.For(ctx, "u1")
	s.Require().NoError(err)
	s.Same(a, b)
	s.True(reg.Loaded("u1"))

	s.Require().NoError(a.Add(ctx, Item{ProductID: "p1", Price: decimal.NewFromInt(1), Quantity: 1, SellerID: "s1"}))
	reg.Evict("u1")
	s.False(reg.Loaded("u1"))

	c, err := reg.For(ctx, "u1")
	s.Require().NoError(err)
	s.NotSame(a, c)
	s.Equal(1, c.Count())
}

func (s *RedisStorageSuite) TestRegistrySubscriptionSurvivesEviction() {
	ctx := context.Background()
	reg := NewRegistry(s.storage, zerolog.Nop())

	var got [][]Item
	unsubscribe, err := reg.Subscribe(ctx, "u1", func(items []Item) { got = append(got, items) })
	s.Require().NoError(err)
	s.Require().Len(got, 1, "current items delivered on subscribe")
	s.Empty(got[0])

	a, err := reg.For(ctx, "u1")
	s.Require().NoError(err)
	s.Require().NoError(a.Add(ctx, Item{ProductID: "p1", Price: decimal.NewFromInt(1), Quantity: 1, SellerID: "s1"}))
	s.Require().Len(got, 2)

	reg.Evict("u1")
	s.Zero(a.Subscribers())

	b, err := reg.For(ctx, "u1")
	s.Require().NoError(err)
	s.Require().NoError(b.Add(ctx, Item{ProductID: "p2", Price: decimal.NewFromInt(1), Quantity: 1, SellerID: "s1"}))
	s.Require().Len(got, 3, "changes after a reload still reach the watcher")
	s.Len(got[2], 2)

	unsubscribe()
	unsubscribe()
	s.Zero(reg.Watchers("u1"))
	s.Zero(b.Subscribers())
	s.Require().NoError(b.Clear(ctx))
	s.Len(got, 3)
}
