package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Server error codes that mean a sorted query cannot be served without an
// index.
const (
	codeOperationFailed            = 96
	codeNoQueryExecutionPlans      = 291
	codeSortMemoryLimitNoDiskUsage = 292
)

// pollInterval drives subscriptions when change streams are unavailable
// (standalone servers).
const pollInterval = 2 * time.Second

type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	reg    *bsoncodec.Registry
	log    zerolog.Logger
}

// ConnectMongo dials uri and returns a store over database name.
func ConnectMongo(ctx context.Context, uri, name string, log zerolog.Logger) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	reg := NewRegistry()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetRegistry(reg))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping failed: %w", err)
	}
	s := NewMongoStore(client.Database(name), reg, log)
	s.client = client
	return s, nil
}

// NewMongoStore wraps an existing database handle.
func NewMongoStore(db *mongo.Database, reg *bsoncodec.Registry, log zerolog.Logger) *MongoStore {
	if reg == nil {
		reg = NewRegistry()
	}
	return &MongoStore{db: db, reg: reg, log: log}
}

type bsonDoc struct {
	id  string
	raw bson.Raw
	reg *bsoncodec.Registry
}

func (d bsonDoc) ID() string { return d.id }

func (d bsonDoc) Decode(v any) error { return bson.UnmarshalWithRegistry(d.reg, d.raw, v) }

func (s *MongoStore) wrap(raw bson.Raw) Document {
	cp := make(bson.Raw, len(raw))
	copy(cp, raw)
	id, _ := cp.Lookup("_id").StringValueOK()
	return bsonDoc{id: id, raw: cp, reg: s.reg}
}

func (s *MongoStore) Create(ctx context.Context, coll, id string, doc any) error {
	b, err := bson.MarshalWithRegistry(s.reg, doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", coll, id, err)
	}
	var m bson.M
	if err := bson.UnmarshalWithRegistry(s.reg, b, &m); err != nil {
		return fmt.Errorf("encode %s/%s: %w", coll, id, err)
	}
	m["_id"] = id
	delete(m, "id")

	if _, err := s.db.Collection(coll).InsertOne(ctx, m); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert %s/%s: %w", coll, id, err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, coll, id string) (Document, error) {
	raw, err := s.db.Collection(coll).FindOne(ctx, bson.M{"_id": id}).Raw()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s/%s: %w", coll, id, err)
	}
	return s.wrap(raw), nil
}

func (s *MongoStore) Update(ctx context.Context, coll, id string, fields map[string]any) error {
	set := bson.M{}
	for k, v := range fields {
		set[k] = v
	}
	res, err := s.db.Collection(coll).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", coll, id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) Increment(ctx context.Context, coll, id, field string, delta int64) error {
	res, err := s.db.Collection(coll).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{field: delta}})
	if err != nil {
		return fmt.Errorf("increment %s/%s.%s: %w", coll, id, field, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) IncrementIfAtLeast(ctx context.Context, coll, id, field string, delta, min int64) error {
	res, err := s.db.Collection(coll).UpdateOne(ctx,
		bson.M{"_id": id, field: bson.M{"$gte": min}},
		bson.M{"$inc": bson.M{field: delta}})
	if err != nil {
		return fmt.Errorf("increment %s/%s.%s: %w", coll, id, field, err)
	}
	if res.MatchedCount == 0 {
		return s.unmatched(ctx, coll, id)
	}
	return nil
}

func (s *MongoStore) UpdateIf(ctx context.Context, coll, id, field string, want any, fields map[string]any) error {
	set := bson.M{}
	for k, v := range fields {
		set[k] = v
	}
	res, err := s.db.Collection(coll).UpdateOne(ctx, bson.M{"_id": id, field: want}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", coll, id, err)
	}
	if res.MatchedCount == 0 {
		return s.unmatched(ctx, coll, id)
	}
	return nil
}

// unmatched tells a missing document from one that failed the guard.
func (s *MongoStore) unmatched(ctx context.Context, coll, id string) error {
	n, err := s.db.Collection(coll).CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("count %s/%s: %w", coll, id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrConditionFailed
}

func (s *MongoStore) Delete(ctx context.Context, coll, id string) error {
	res, err := s.db.Collection(coll).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", coll, id, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

var mongoOps = map[Op]string{
	Eq: "$eq", Ne: "$ne", Lt: "$lt", Lte: "$lte", Gt: "$gt", Gte: "$gte",
}

func mongoFilter(q Query) bson.D {
	if len(q.Filters) == 0 {
		return bson.D{}
	}
	conds := make(bson.A, 0, len(q.Filters))
	for _, f := range q.Filters {
		field := f.Field
		if field == "id" {
			field = "_id"
		}
		if f.Op == Contains {
			conds = append(conds, bson.D{{Key: field, Value: bson.D{{Key: "$elemMatch", Value: bson.D{{Key: "$eq", Value: f.Value}}}}}})
			continue
		}
		conds = append(conds, bson.D{{Key: field, Value: bson.D{{Key: mongoOps[f.Op], Value: f.Value}}}})
	}
	return bson.D{{Key: "$and", Value: conds}}
}

// isIndexError reports whether err means the sort needs an index.
func isIndexError(err error) bool {
	var se mongo.ServerError
	if !errors.As(err, &se) {
		return false
	}
	return se.HasErrorCode(codeNoQueryExecutionPlans) ||
		se.HasErrorCode(codeSortMemoryLimitNoDiskUsage) ||
		se.HasErrorCodeWithMessage(codeOperationFailed, "Sort exceeded memory limit")
}

func (s *MongoStore) Find(ctx context.Context, coll string, q Query) ([]Document, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	opts := options.Find()
	if q.Sort != nil {
		dir := 1
		if q.Sort.Desc {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: q.Sort.Field, Value: dir}, {Key: "_id", Value: 1}})
		if q.Limit > 0 {
			opts.SetLimit(int64(q.Limit))
		}
	}

	cur, err := s.db.Collection(coll).Find(ctx, mongoFilter(q), opts)
	if err != nil {
		if q.Sort != nil && isIndexError(err) {
			return nil, fmt.Errorf("%w: %s by %s: %v", ErrIndexUnavailable, coll, q.Sort.Field, err)
		}
		return nil, fmt.Errorf("find %s: %w", coll, err)
	}
	defer cur.Close(ctx)

	var out []Document
	for cur.Next(ctx) {
		out = append(out, s.wrap(cur.Current))
	}
	if err := cur.Err(); err != nil {
		if q.Sort != nil && isIndexError(err) {
			return nil, fmt.Errorf("%w: %s by %s: %v", ErrIndexUnavailable, coll, q.Sort.Field, err)
		}
		return nil, fmt.Errorf("find %s: %w", coll, err)
	}
	return out, nil
}

func (s *MongoStore) Subscribe(ctx context.Context, coll string, q Query, fn func([]Document)) (*Subscription, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	lctx, lcancel := context.WithCancel(ctx)
	ch := make(chan struct{}, 1)
	listenerDone := make(chan struct{})

	go func() {
		defer close(listenerDone)
		cs, err := s.db.Collection(coll).Watch(lctx, mongo.Pipeline{})
		if err != nil {
			if lctx.Err() != nil {
				return
			}
			s.log.Warn().Err(err).Str("collection", coll).Msg("change stream unavailable, polling")
			s.poll(lctx, ch)
			return
		}
		defer cs.Close(context.Background())
		for cs.Next(lctx) {
			signal(ch)
		}
		if err := cs.Err(); err != nil && lctx.Err() == nil {
			s.log.Warn().Err(err).Str("collection", coll).Msg("change stream ended, polling")
			s.poll(lctx, ch)
		}
	}()

	stop := func() {
		lcancel()
		<-listenerDone
	}
	query := func(ctx context.Context) ([]Document, error) { return s.Find(ctx, coll, q) }
	return startFeed(ctx, s.log, coll, ch, stop, query, fn), nil
}

func (s *MongoStore) poll(ctx context.Context, ch chan struct{}) {
	t := time.NewTicker(pollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			signal(ch)
		}
	}
}

// EnsureIndexes creates the compound indexes the listing queries sort on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	specs := map[string][]bson.D{
		Products: {
			{{Key: "approved", Value: 1}, {Key: "createdAt", Value: -1}},
			{{Key: "sellerId", Value: 1}, {Key: "createdAt", Value: -1}},
		},
		Orders: {
			{{Key: "customerId", Value: 1}, {Key: "createdAt", Value: -1}},
			{{Key: "sellerId", Value: 1}, {Key: "createdAt", Value: -1}},
		},
		Chats:              {{{Key: "participants", Value: 1}, {Key: "lastMessageAt", Value: -1}}},
		Messages:           {{{Key: "chatId", Value: 1}, {Key: "createdAt", Value: 1}}},
		SellerApplications: {{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}},
		Notifications:      {{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
	}
	for coll, keys := range specs {
		models := make([]mongo.IndexModel, 0, len(keys))
		for _, k := range keys {
			models = append(models, mongo.IndexModel{Keys: k})
		}
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}
