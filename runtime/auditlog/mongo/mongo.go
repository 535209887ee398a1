// Package mongo wires auditlog.Store to MongoDB, for deployments that want
// a durable, queryable compliance trail outside the session store itself.
// Grounded on features/runlog/mongo.Store (thin delegating adapter) and
// features/runlog/mongo/clients/mongo.client (the collection wrapper,
// narrowed interfaces, and index setup), ported to
// go.mongodb.org/mongo-driver/v2 per this module's go.mod.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"goa.design/apron-incident/runtime/auditlog"
)

const (
	defaultCollection = "apron_incident_audit_log"
	defaultTimeout    = 5 * time.Second
)

// entryDocument is the BSON representation of an auditlog.Entry.
type entryDocument struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	SessionID string        `bson:"session_id"`
	Kind      string        `bson:"kind"`
	Payload   []byte        `bson:"payload"`
	Timestamp time.Time     `bson:"timestamp"`
}

// collection narrows *mongodriver.Collection to what this store needs, so
// tests can substitute a fake instead of a live MongoDB deployment.
type collection interface {
	InsertOne(ctx context.Context, document any, opts ...options.Lister[options.InsertOneOptions]) (*mongodriver.InsertOneResult, error)
	Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (cursor, error)
	Indexes() indexView
}

type indexView interface {
	CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...options.Lister[options.CreateIndexesOptions]) (string, error)
}

type cursor interface {
	Next(ctx context.Context) bool
	Decode(val any) error
	Err() error
	Close(ctx context.Context) error
}

// Store implements auditlog.Store by delegating to a Mongo collection.
type Store struct {
	mongo   *mongodriver.Client
	coll    collection
	timeout time.Duration
}

// Options configures New.
type Options struct {
	// Client is the connected Mongo client. Required.
	Client *mongodriver.Client
	// Database is the database name. Required.
	Database string
	// Collection defaults to "apron_incident_audit_log".
	Collection string
	// Timeout bounds each operation. Defaults to 5s.
	Timeout time.Duration
}

// New builds a Mongo-backed audit log store and ensures its index exists.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongo: database name is required")
	}
	name := opts.Collection
	if name == "" {
		name = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	coll := opts.Client.Database(opts.Database).Collection(name)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	wrapper := mongoCollection{coll: coll}
	if err := ensureIndexes(ctx, wrapper); err != nil {
		return nil, err
	}
	return &Store{mongo: opts.Client, coll: wrapper, timeout: timeout}, nil
}

// Ping reports whether the backing Mongo deployment is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.mongo.Ping(ctx, readpref.Primary())
}

// Append implements auditlog.Store.
func (s *Store) Append(ctx context.Context, e *auditlog.Entry) error {
	if e == nil {
		return errors.New("mongo: entry is required")
	}
	if e.SessionID == "" {
		return errors.New("mongo: session_id is required")
	}
	if e.Kind == "" {
		return errors.New("mongo: kind is required")
	}
	if e.Timestamp.IsZero() {
		return errors.New("mongo: timestamp is required")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	doc := entryDocument{
		SessionID: e.SessionID,
		Kind:      string(e.Kind),
		Payload:   append([]byte(nil), e.Payload...),
		Timestamp: e.Timestamp.UTC(),
	}
	res, err := s.coll.InsertOne(ctx, doc)
	if err != nil {
		return err
	}
	oid, ok := res.InsertedID.(bson.ObjectID)
	if !ok {
		return fmt.Errorf("mongo: unexpected inserted id type %T", res.InsertedID)
	}
	e.ID = oid.Hex()
	return nil
}

// List implements auditlog.Store.
func (s *Store) List(ctx context.Context, sessionID string, cursorID string, limit int) (page auditlog.Page, err error) {
	if sessionID == "" {
		return auditlog.Page{}, errors.New("mongo: session_id is required")
	}
	if limit <= 0 {
		return auditlog.Page{}, errors.New("mongo: limit must be > 0")
	}

	filter := bson.M{"session_id": sessionID}
	if cursorID != "" {
		oid, err := bson.ObjectIDFromHex(cursorID)
		if err != nil {
			return auditlog.Page{}, fmt.Errorf("mongo: invalid cursor %q: %w", cursorID, err)
		}
		filter["_id"] = bson.M{"$gt": oid}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	findOpts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetLimit(int64(limit + 1))
	cur, err := s.coll.Find(ctx, filter, findOpts)
	if err != nil {
		return auditlog.Page{}, err
	}
	defer func() {
		if cerr := cur.Close(ctx); err == nil && cerr != nil {
			err = cerr
		}
	}()

	var entries []*auditlog.Entry
	for cur.Next(ctx) {
		var doc entryDocument
		if err := cur.Decode(&doc); err != nil {
			return auditlog.Page{}, err
		}
		entries = append(entries, &auditlog.Entry{
			ID:        doc.ID.Hex(),
			SessionID: doc.SessionID,
			Kind:      auditlog.EntryKind(doc.Kind),
			Payload:   append([]byte(nil), doc.Payload...),
			Timestamp: doc.Timestamp,
		})
	}
	if err := cur.Err(); err != nil {
		return auditlog.Page{}, err
	}

	var next string
	if len(entries) > limit {
		next = entries[limit-1].ID
		entries = entries[:limit]
	}
	return auditlog.Page{Entries: entries, NextCursor: next}, nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func ensureIndexes(ctx context.Context, coll collection) error {
	index := mongodriver.IndexModel{
		Keys: bson.D{
			{Key: "session_id", Value: 1},
			{Key: "_id", Value: 1},
		},
	}
	_, err := coll.Indexes().CreateOne(ctx, index)
	return err
}

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) InsertOne(ctx context.Context, document any, opts ...options.Lister[options.InsertOneOptions]) (*mongodriver.InsertOneResult, error) {
	return c.coll.InsertOne(ctx, document, opts...)
}

func (c mongoCollection) Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (cursor, error) {
	cur, err := c.coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return mongoCursor{cur: cur}, nil
}

func (c mongoCollection) Indexes() indexView {
	return mongoIndexView{view: c.coll.Indexes()}
}

type mongoCursor struct {
	cur *mongodriver.Cursor
}

func (c mongoCursor) Next(ctx context.Context) bool  { return c.cur.Next(ctx) }
func (c mongoCursor) Decode(val any) error           { return c.cur.Decode(val) }
func (c mongoCursor) Err() error                     { return c.cur.Err() }
func (c mongoCursor) Close(ctx context.Context) error { return c.cur.Close(ctx) }

type mongoIndexView struct {
	view mongodriver.IndexView
}

func (v mongoIndexView) CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...options.Lister[options.CreateIndexesOptions]) (string, error) {
	return v.view.CreateOne(ctx, model, opts...)
}
