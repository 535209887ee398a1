package memlog

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/apron-incident/runtime/auditlog"
)

func TestAppendAssignsMonotonicIDsPerSession(t *testing.T) {
	s := New()
	ctx := context.Background()

	e1 := &auditlog.Entry{SessionID: "s1", Kind: auditlog.KindReasoningStep, Timestamp: time.Now()}
	e2 := &auditlog.Entry{SessionID: "s1", Kind: auditlog.KindActionTaken, Timestamp: time.Now()}

	require.NoError(t, s.Append(ctx, e1))
	require.NoError(t, s.Append(ctx, e2))
	assert.Equal(t, "1", e1.ID)
	assert.Equal(t, "2", e2.ID)
}

func TestAppendRejectsMissingSessionID(t *testing.T) {
	s := New()
	err := s.Append(context.Background(), &auditlog.Entry{Kind: auditlog.KindReasoningStep})
	assert.Error(t, err)
}

func TestListPaginatesWithCursor(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		payload, _ := json.Marshal(map[string]int{"i": i})
		require.NoError(t, s.Append(ctx, &auditlog.Entry{SessionID: "s1", Kind: auditlog.KindActionTaken, Payload: payload, Timestamp: time.Now()}))
	}

	page, err := s.List(ctx, "s1", "", 2)
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, "1", page.Entries[0].ID)
	assert.NotEmpty(t, page.NextCursor)

	page2, err := s.List(ctx, "s1", page.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, page2.Entries, 2)
	assert.Equal(t, "3", page2.Entries[0].ID)

	page3, err := s.List(ctx, "s1", page2.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, page3.Entries, 1)
	assert.Empty(t, page3.NextCursor)
}

func TestListRejectsUnknownSessionAsEmptyPage(t *testing.T) {
	s := New()
	page, err := s.List(context.Background(), "missing", "", 10)
	require.NoError(t, err)
	assert.Empty(t, page.Entries)
}
