package reply

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deltabot/internal/config"
	"deltabot/internal/model"
)

type fakeClient struct {
	posted  map[string]string // parent id -> body
	edited  map[string]string // reply id -> body
	deleted []string
	err     error
}

func newFakeClient() *fakeClient {
	return &fakeClient{posted: map[string]string{}, edited: map[string]string{}}
}

func (f *fakeClient) PostReply(ctx context.Context, parentID, body string) (*model.Thing, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.posted[parentID] = body
	return &model.Thing{ID: "r1", Type: model.TypeComment, Body: body}, nil
}

func (f *fakeClient) EditReply(ctx context.Context, replyID, body string) error {
	if f.err != nil {
		return f.err
	}
	f.edited[replyID] = body
	return nil
}

func (f *fakeClient) DeleteReply(ctx context.Context, replyID string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, replyID)
	return nil
}

func successResult() model.ValidationResult {
	return model.ValidationResult{
		Type:         model.ResultSuccess,
		IsValidDelta: true,
		ReplyBody:    "Confirmed: 1 delta awarded to /u/bob.",
	}
}

func TestReplyWrapsBody(t *testing.T) {
	client := newFakeClient()
	r := New(client, config.Default().Replies.Wrapper, false)
	comment := &model.Thing{ID: "c1", Type: model.TypeComment}

	require.NoError(t, r.Reply(context.Background(), comment, successResult()))
	body := client.posted["c1"]
	assert.True(t, strings.HasPrefix(body, "Confirmed: 1 delta awarded to /u/bob."))
	assert.Contains(t, body, "---")
	assert.NotContains(t, body, "%body%")
}

func TestReplyEmptyWrapperPassesBodyThrough(t *testing.T) {
	client := newFakeClient()
	r := New(client, "", false)

	require.NoError(t, r.Reply(context.Background(), &model.Thing{ID: "c1"}, successResult()))
	assert.Equal(t, "Confirmed: 1 delta awarded to /u/bob.", client.posted["c1"])
}

func TestReplyPropagatesClientError(t *testing.T) {
	client := newFakeClient()
	client.err = errors.New("boom")
	r := New(client, "", false)

	assert.Error(t, r.Reply(context.Background(), &model.Thing{ID: "c1"}, successResult()))
}

func TestEditAndDelete(t *testing.T) {
	client := newFakeClient()
	r := New(client, "", false)
	botReply := &model.Thing{ID: "r1", Type: model.TypeComment}

	require.NoError(t, r.EditReply(context.Background(), botReply, successResult()))
	assert.Equal(t, "Confirmed: 1 delta awarded to /u/bob.", client.edited["r1"])

	require.NoError(t, r.DeleteReply(context.Background(), botReply))
	assert.Equal(t, []string{"r1"}, client.deleted)
}

func TestReadOnlySkipsAllMutationsButSucceeds(t *testing.T) {
	client := newFakeClient()
	client.err = errors.New("must never be called")
	r := New(client, "", true)
	comment := &model.Thing{ID: "c1", Type: model.TypeComment}
	botReply := &model.Thing{ID: "r1", Type: model.TypeComment}

	require.NoError(t, r.Reply(context.Background(), comment, successResult()))
	require.NoError(t, r.EditReply(context.Background(), botReply, successResult()))
	require.NoError(t, r.DeleteReply(context.Background(), botReply))
	assert.Empty(t, client.posted)
	assert.Empty(t, client.edited)
	assert.Empty(t, client.deleted)
}
