package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deltabot/internal/award"
	"deltabot/internal/config"
	"deltabot/internal/detect"
	"deltabot/internal/model"
	"deltabot/internal/reply"
	"deltabot/internal/validate"
)

var testNow = time.Date(2023, time.May, 10, 12, 0, 0, 0, time.UTC)

// fakeLedger is an in-memory award ledger with call counters.
type fakeLedger struct {
	entries map[string]string // source comment id -> username
}

func newFakeLedger() *fakeLedger { return &fakeLedger{entries: map[string]string{}} }

func (f *fakeLedger) AddDelta(ctx context.Context, username, sourceCommentID string, awardedAt time.Time) (bool, error) {
	if _, ok := f.entries[sourceCommentID]; ok {
		return false, nil
	}
	f.entries[sourceCommentID] = username
	return true, nil
}

func (f *fakeLedger) RemoveDelta(ctx context.Context, sourceCommentID string) (bool, error) {
	if _, ok := f.entries[sourceCommentID]; !ok {
		return false, nil
	}
	delete(f.entries, sourceCommentID)
	return true, nil
}

func (f *fakeLedger) countFor(username string) int {
	n := 0
	for _, u := range f.entries {
		if u == username {
			n++
		}
	}
	return n
}

type fakeBoards struct{ publishes int }

func (f *fakeBoards) Publish(ctx context.Context) error { f.publishes++; return nil }

type fakeCursors struct{ saved map[string]string }

func (f *fakeCursors) SaveCursor(ctx context.Context, key, value string) error {
	if f.saved == nil {
		f.saved = map[string]string{}
	}
	f.saved[key] = value
	return nil
}

// fakeForum serves fetches from a canned thread and records reply
// mutations.
type fakeForum struct {
	parent   *model.Thing
	root     *model.Thing
	children []*model.Thing

	fetches int
	posted  []string // parent ids
	edited  []string // reply ids
	deleted []string // reply ids
	postErr error
}

func (f *fakeForum) FetchParentAndChildren(ctx context.Context, t *model.Thing) error {
	f.fetches++
	t.Parent = f.parent
	t.Root = f.root
	t.Children = f.children
	return nil
}

func (f *fakeForum) PostReply(ctx context.Context, parentID, body string) (*model.Thing, error) {
	if f.postErr != nil {
		return nil, f.postErr
	}
	f.posted = append(f.posted, parentID)
	return &model.Thing{ID: "botreply", Type: model.TypeComment, AuthorName: "DeltaBot", Body: body}, nil
}

func (f *fakeForum) EditReply(ctx context.Context, replyID, body string) error {
	f.edited = append(f.edited, replyID)
	return nil
}

func (f *fakeForum) DeleteReply(ctx context.Context, replyID string) error {
	f.deleted = append(f.deleted, replyID)
	return nil
}

func (f *fakeForum) ReadDocument(ctx context.Context, path string) (string, error) { return "", nil }
func (f *fakeForum) WriteDocument(ctx context.Context, path, content string) error { return nil }
func (f *fakeForum) MarkMessageRead(ctx context.Context, messageID string) error   { return nil }

type fixture struct {
	eng     *Engine
	forum   *fakeForum
	ledger  *fakeLedger
	boards  *fakeBoards
	cursors *fakeCursors
}

func newFixture(forum *fakeForum) *fixture {
	cfg := config.Default()
	clock := clockwork.NewFakeClockAt(testNow)
	ledger := newFakeLedger()
	boards := &fakeBoards{}
	cursors := &fakeCursors{}
	detector := detect.New(cfg.Account.Username, cfg.Replies)
	validator := validate.New(cfg.Validation, cfg.Replies, cfg.Account.Username)
	awarder := award.New(ledger, boards, clock)
	replier := reply.New(forum, cfg.Replies.Wrapper, cfg.ReadOnly)
	eng := New(cfg.Validation, forum, detector, validator, awarder, replier, cursors, clock)
	return &fixture{eng: eng, forum: forum, ledger: ledger, boards: boards, cursors: cursors}
}

func validBody(ind string) string {
	return "Confirmed, " + ind + ". " + strings.Repeat("You genuinely changed my view here. ", 3)
}

func thread() *fakeForum {
	return &fakeForum{
		root:   &model.Thing{ID: "t1", Type: model.TypePost, AuthorName: "opuser"},
		parent: &model.Thing{ID: "c1", Type: model.TypeComment, AuthorName: "bob"},
	}
}

func awardingComment(body string, edited bool) *model.Thing {
	return &model.Thing{
		ID:         "c2",
		Type:       model.TypeComment,
		AuthorName: "alice",
		Body:       body,
		CreatedUTC: testNow.Add(-time.Hour),
		IsEdited:   edited,
	}
}

func successReplyChild() *model.Thing {
	return &model.Thing{
		ID:         "r1",
		Type:       model.TypeComment,
		AuthorName: "DeltaBot",
		Body:       "Confirmed: 1 delta awarded to /u/bob.",
		CreatedUTC: testNow.Add(-30 * time.Minute),
	}
}

func failReplyChild() *model.Thing {
	return &model.Thing{
		ID:         "r1",
		Type:       model.TypeComment,
		AuthorName: "DeltaBot",
		Body:       "This comment is too short to explain how your view changed. Write at least 50 characters and the delta will be rescanned.",
		CreatedUTC: testNow.Add(-30 * time.Minute),
	}
}

func TestNoIndicatorNoEditDoesNothing(t *testing.T) {
	fx := newFixture(thread())
	c := awardingComment("interesting point, but my view stands", false)

	require.NoError(t, fx.eng.Process(context.Background(), c))
	assert.Zero(t, fx.forum.fetches)
	assert.Empty(t, fx.forum.posted)
	assert.Empty(t, fx.ledger.entries)
	assert.Zero(t, fx.boards.publishes)
}

func TestValidDeltaAwardsAndReplies(t *testing.T) {
	fx := newFixture(thread())
	c := awardingComment(validBody("!delta"), false)

	require.NoError(t, fx.eng.Process(context.Background(), c))
	assert.Equal(t, 1, fx.ledger.countFor("bob"))
	assert.Equal(t, []string{"c2"}, fx.forum.posted)
	assert.Empty(t, fx.forum.edited)
	assert.Equal(t, 1, fx.boards.publishes)
}

func TestInvalidDeltaRepliesWithoutAwarding(t *testing.T) {
	fx := newFixture(thread())
	c := awardingComment("!delta", false) // too short

	require.NoError(t, fx.eng.Process(context.Background(), c))
	assert.Empty(t, fx.ledger.entries)
	assert.Equal(t, []string{"c2"}, fx.forum.posted)
	assert.Zero(t, fx.boards.publishes)
}

func TestAlreadySuccessfulIsIdempotent(t *testing.T) {
	forum := thread()
	forum.children = []*model.Thing{successReplyChild()}
	fx := newFixture(forum)
	c := awardingComment(validBody("!delta"), true)

	require.NoError(t, fx.eng.Process(context.Background(), c))
	assert.Empty(t, fx.ledger.entries)
	assert.Empty(t, fx.forum.posted)
	assert.Empty(t, fx.forum.edited)
	assert.Empty(t, fx.forum.deleted)
}

func TestFailReplyThenFixedEditEditsInPlace(t *testing.T) {
	forum := thread()
	forum.children = []*model.Thing{failReplyChild()}
	fx := newFixture(forum)
	c := awardingComment(validBody("!delta"), true)

	require.NoError(t, fx.eng.Process(context.Background(), c))
	assert.Equal(t, 1, fx.ledger.countFor("bob"))
	assert.Empty(t, fx.forum.posted)
	assert.Equal(t, []string{"r1"}, fx.forum.edited)
}

func TestFailReplyStillFailingEditsInPlaceWithoutAward(t *testing.T) {
	forum := thread()
	forum.children = []*model.Thing{failReplyChild()}
	fx := newFixture(forum)
	c := awardingComment("!delta still too short", true)

	require.NoError(t, fx.eng.Process(context.Background(), c))
	assert.Empty(t, fx.ledger.entries)
	assert.Equal(t, []string{"r1"}, fx.forum.edited)
}

func TestEditRemovingDeltaWithinWindowUnawards(t *testing.T) {
	forum := thread()
	forum.children = []*model.Thing{successReplyChild()}
	fx := newFixture(forum)
	fx.ledger.entries["c2"] = "bob"
	c := awardingComment("changed my mind, removing the token", true)

	require.NoError(t, fx.eng.Process(context.Background(), c))
	assert.Zero(t, fx.ledger.countFor("bob"))
	assert.Equal(t, []string{"r1"}, fx.forum.deleted)
	assert.Equal(t, 1, fx.boards.publishes)
}

func TestEditRemovingDeltaOutsideWindowIsPermanent(t *testing.T) {
	forum := thread()
	forum.children = []*model.Thing{successReplyChild()}
	fx := newFixture(forum)
	fx.ledger.entries["c2"] = "bob"
	c := awardingComment("changed my mind, removing the token", true)
	c.CreatedUTC = testNow.Add(-49 * time.Hour) // past the 48h grace window

	require.NoError(t, fx.eng.Process(context.Background(), c))
	assert.Equal(t, 1, fx.ledger.countFor("bob"))
	assert.Empty(t, fx.forum.deleted)
}

func TestEditWithoutPriorSuccessReplyDoesNothing(t *testing.T) {
	forum := thread()
	forum.children = []*model.Thing{failReplyChild()}
	fx := newFixture(forum)
	c := awardingComment("no indicator anymore", true)

	require.NoError(t, fx.eng.Process(context.Background(), c))
	assert.Empty(t, fx.forum.deleted)
	assert.Empty(t, fx.ledger.entries)
}

func TestAwardPrecedesReplyAndSurvivesReplyFailure(t *testing.T) {
	forum := thread()
	forum.postErr = errors.New("network down")
	fx := newFixture(forum)
	c := awardingComment(validBody("!delta"), false)

	err := fx.eng.Process(context.Background(), c)
	require.Error(t, err)
	// ledger mutation committed even though the reply step failed
	assert.Equal(t, 1, fx.ledger.countFor("bob"))
}

func TestRetryAfterPartialFailureDoesNotDoubleCount(t *testing.T) {
	forum := thread() // no bot reply children: the reply step never landed
	fx := newFixture(forum)
	fx.ledger.entries["c2"] = "bob" // award already committed on a prior pass

	c := awardingComment(validBody("!delta"), false)
	require.NoError(t, fx.eng.Process(context.Background(), c))
	assert.Equal(t, 1, fx.ledger.countFor("bob"))
	assert.Equal(t, []string{"c2"}, fx.forum.posted)
}

func TestQuotedIndicatorDoesNotTrigger(t *testing.T) {
	fx := newFixture(thread())
	c := awardingComment("&gt; someone said !delta\nbut I disagree", false)

	require.NoError(t, fx.eng.Process(context.Background(), c))
	assert.Zero(t, fx.forum.fetches)
	assert.Empty(t, fx.forum.posted)
}

func TestInvariantViolationAbortsWithoutReply(t *testing.T) {
	forum := thread()
	forum.parent = &model.Thing{ID: "t1", Type: model.TypePost, AuthorName: "opuser"}
	fx := newFixture(forum)
	c := awardingComment(validBody("!delta"), false)

	err := fx.eng.Process(context.Background(), c)
	var inv *validate.InvariantError
	require.ErrorAs(t, err, &inv)
	assert.Empty(t, fx.forum.posted)
	assert.Empty(t, fx.ledger.entries)
}

func TestProcessRecordsResumeCursor(t *testing.T) {
	fx := newFixture(thread())
	c := awardingComment("nothing to see", false)

	require.NoError(t, fx.eng.Process(context.Background(), c))
	assert.NotEmpty(t, fx.cursors.saved["engine:last_processed_utc"])
}
