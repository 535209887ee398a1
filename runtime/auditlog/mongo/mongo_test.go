package mongo

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"goa.design/apron-incident/runtime/auditlog"
)

func TestStoreAppendAssignsID(t *testing.T) {
	oid := mustOID(t, "000000000000000000000001")
	coll := &fakeCollection{insertedID: oid}
	s := &Store{coll: coll, timeout: time.Second}

	e := &auditlog.Entry{
		SessionID: "s1",
		Kind:      auditlog.KindActionTaken,
		Payload:   []byte(`{"action":"deploy_absorbent"}`),
		Timestamp: time.Unix(1, 0).UTC(),
	}
	require.NoError(t, s.Append(context.Background(), e))
	assert.Equal(t, oid.Hex(), e.ID)
}

func TestStoreAppendRejectsMissingFields(t *testing.T) {
	s := &Store{coll: &fakeCollection{}, timeout: time.Second}
	err := s.Append(context.Background(), &auditlog.Entry{})
	assert.Error(t, err)
}

func TestStoreListNextCursor(t *testing.T) {
	cases := []struct {
		name     string
		count    int
		limit    int
		wantNext string
	}{
		{"fewer_than_limit", 2, 3, ""},
		{"exactly_limit_no_more", 3, 3, ""},
		{"more_than_limit_has_next", 4, 3, "000000000000000000000003"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			coll := &fakeCollection{findDocs: fakeEntryDocuments("s1", tc.count)}
			s := &Store{coll: coll, timeout: time.Second}

			page, err := s.List(context.Background(), "s1", "", tc.limit)
			require.NoError(t, err)
			assert.Len(t, page.Entries, min(tc.count, tc.limit))
			assert.Equal(t, tc.wantNext, page.NextCursor)

			if tc.wantNext == "" {
				return
			}
			next, err := s.List(context.Background(), "s1", page.NextCursor, tc.limit)
			require.NoError(t, err)
			assert.Len(t, next.Entries, tc.count-tc.limit)
			assert.Empty(t, next.NextCursor)
		})
	}
}

func fakeEntryDocuments(sessionID string, n int) []entryDocument {
	docs := make([]entryDocument, 0, n)
	for i := 1; i <= n; i++ {
		docs = append(docs, entryDocument{
			ID:        bson.ObjectID{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, byte(i)},
			SessionID: sessionID,
			Kind:      string(auditlog.KindActionTaken),
			Payload:   []byte(`{}`),
			Timestamp: time.Unix(int64(i), 0).UTC(),
		})
	}
	return docs
}

func mustOID(t *testing.T, hex string) bson.ObjectID {
	t.Helper()
	oid, err := bson.ObjectIDFromHex(hex)
	require.NoError(t, err)
	return oid
}

type fakeCollection struct {
	insertedID bson.ObjectID
	findDocs   []entryDocument
}

func (c *fakeCollection) InsertOne(context.Context, any, ...options.Lister[options.InsertOneOptions]) (*mongodriver.InsertOneResult, error) {
	return &mongodriver.InsertOneResult{InsertedID: c.insertedID}, nil
}

// Find ignores the Limit option: Store.List itself slices to limit and
// derives NextCursor from whether more than limit documents matched, so
// the fake only needs to apply the session-id and after-cursor filters.
func (c *fakeCollection) Find(_ context.Context, filter any, _ ...options.Lister[options.FindOptions]) (cursor, error) {
	f, ok := filter.(bson.M)
	if !ok {
		return &fakeCursor{}, nil
	}
	sessionID, _ := f["session_id"].(string)
	var after bson.ObjectID
	if id, ok := f["_id"].(bson.M); ok {
		if gt, ok := id["$gt"].(bson.ObjectID); ok {
			after = gt
		}
	}

	filtered := make([]entryDocument, 0, len(c.findDocs))
	for _, doc := range c.findDocs {
		if doc.SessionID != sessionID {
			continue
		}
		if !after.IsZero() && bytes.Compare(doc.ID[:], after[:]) <= 0 {
			continue
		}
		filtered = append(filtered, doc)
	}
	return &fakeCursor{docs: filtered}, nil
}

func (c *fakeCollection) Indexes() indexView { return fakeIndexView{} }

type fakeIndexView struct{}

func (fakeIndexView) CreateOne(context.Context, mongodriver.IndexModel, ...options.Lister[options.CreateIndexesOptions]) (string, error) {
	return "", nil
}

type fakeCursor struct {
	docs []entryDocument
	pos  int
}

func (c *fakeCursor) Next(context.Context) bool {
	if c.pos >= len(c.docs) {
		return false
	}
	c.pos++
	return true
}

func (c *fakeCursor) Decode(val any) error {
	if c.pos == 0 || c.pos > len(c.docs) {
		return nil
	}
	p, ok := val.(*entryDocument)
	if !ok {
		return nil
	}
	*p = c.docs[c.pos-1]
	return nil
}

func (c *fakeCursor) Err() error              { return nil }
func (c *fakeCursor) Close(context.Context) error { return nil }
