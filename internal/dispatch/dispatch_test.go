package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deltabot/internal/model"
	"deltabot/internal/queue"
)

var testNow = time.Date(2023, time.May, 10, 12, 0, 0, 0, time.UTC)

func validComment() model.QueuedComment {
	return model.QueuedComment{
		ID:         "c1",
		ParentID:   "p1",
		Body:       "!delta you changed my view",
		AuthorName: "alice",
		CreatedUTC: testNow,
	}
}

func TestSubmitCommentEnqueues(t *testing.T) {
	q := queue.New()
	n := NewNormalizer(q)

	require.True(t, n.SubmitComment(validComment()))
	require.Equal(t, 1, q.Len())

	msg, ok := q.Pop(context.Background())
	require.True(t, ok)
	assert.Equal(t, model.KindComment, msg.Kind)
	assert.NotEmpty(t, msg.ID)
	assert.Contains(t, string(msg.Payload), `"id":"c1"`)
}

func TestSubmitCommentDropsMalformed(t *testing.T) {
	q := queue.New()
	n := NewNormalizer(q)

	for name, mutate := range map[string]func(*model.QueuedComment){
		"no id":      func(qc *model.QueuedComment) { qc.ID = "" },
		"no author":  func(qc *model.QueuedComment) { qc.AuthorName = "" },
		"no body":    func(qc *model.QueuedComment) { qc.Body = "" },
		"no created": func(qc *model.QueuedComment) { qc.CreatedUTC = time.Time{} },
	} {
		qc := validComment()
		mutate(&qc)
		assert.False(t, n.SubmitComment(qc), name)
	}
	assert.Zero(t, q.Len())
}

func TestSubmitMessageAllowsEmptyBody(t *testing.T) {
	q := queue.New()
	n := NewNormalizer(q)

	ok := n.SubmitMessage(model.QueuedMessage{
		ID: "m1", Subject: "hello", AuthorName: "alice", CreatedUTC: testNow,
	})
	require.True(t, ok)

	msg, popped := q.Pop(context.Background())
	require.True(t, popped)
	assert.Equal(t, model.KindPrivateMessage, msg.Kind)
}

type fakePoller struct {
	comments []model.QueuedComment
	messages []model.QueuedMessage

	commentSince time.Time
	messageSince time.Time
}

func (f *fakePoller) ListNewComments(ctx context.Context, since time.Time) ([]model.QueuedComment, error) {
	f.commentSince = since
	return f.comments, nil
}

func (f *fakePoller) ListNewMessages(ctx context.Context, since time.Time) ([]model.QueuedMessage, error) {
	f.messageSince = since
	return f.messages, nil
}

type memCursors struct{ m map[string]string }

func newMemCursors() *memCursors { return &memCursors{m: map[string]string{}} }

func (c *memCursors) SaveCursor(ctx context.Context, key, value string) error {
	c.m[key] = value
	return nil
}

func (c *memCursors) LoadCursor(ctx context.Context, key string) (string, error) {
	return c.m[key], nil
}

func TestRunOnceFeedsQueueAndAdvancesCursors(t *testing.T) {
	q := queue.New()
	poller := &fakePoller{
		comments: []model.QueuedComment{validComment()},
		messages: []model.QueuedMessage{{ID: "m1", Subject: "hi", AuthorName: "bob", CreatedUTC: testNow}},
	}
	cursors := newMemCursors()
	m := NewMonitor(poller, NewNormalizer(q), cursors, clockwork.NewFakeClockAt(testNow))

	require.NoError(t, m.RunOnce(context.Background()))
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, testNow.Format(time.RFC3339Nano), cursors.m[commentsCursor])
	assert.Equal(t, testNow.Format(time.RFC3339Nano), cursors.m[messagesCursor])
}

func TestRunOnceFreshInstallUsesHorizon(t *testing.T) {
	poller := &fakePoller{}
	m := NewMonitor(poller, NewNormalizer(queue.New()), newMemCursors(), clockwork.NewFakeClockAt(testNow))

	require.NoError(t, m.RunOnce(context.Background()))
	assert.Equal(t, testNow.Add(-defaultHorizon), poller.commentSince)
	assert.Equal(t, testNow.Add(-defaultHorizon), poller.messageSince)
}

func TestRunOnceResumesFromSavedCursor(t *testing.T) {
	saved := testNow.Add(-5 * time.Minute)
	cursors := newMemCursors()
	cursors.m[commentsCursor] = saved.Format(time.RFC3339Nano)

	poller := &fakePoller{}
	m := NewMonitor(poller, NewNormalizer(queue.New()), cursors, clockwork.NewFakeClockAt(testNow))

	require.NoError(t, m.RunOnce(context.Background()))
	assert.Equal(t, saved, poller.commentSince)
}
