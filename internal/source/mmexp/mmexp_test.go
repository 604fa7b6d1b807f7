package mmexp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatport/chatport/internal/fixtures"
	"github.com/chatport/chatport/internal/source"
)

func openFixture(t *testing.T) *Export {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(fixtures.TestMMExportJSONL), 0o644))
	e, err := Open(path)
	require.NoError(t, err)
	return e
}

func TestOpen(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		openFixture(t)
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := Open(filepath.Join(t.TempDir(), "nope.jsonl"))
		assert.Error(t, err)
	})
	t.Run("malformed line", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.jsonl")
		require.NoError(t, os.WriteFile(path, []byte("{\"type\":\"team\"\n"), 0o644))
		_, err := Open(path)
		assert.ErrorContains(t, err, "line 1")
	})
}

func TestRealm(t *testing.T) {
	e := openFixture(t)
	info, err := e.Realm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", info.Name)
	assert.Equal(t, "acme", info.Subdomain)
}

func TestUsers(t *testing.T) {
	e := openFixture(t)
	users, err := e.Users(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].ID)
	assert.Equal(t, "Alice A", users[0].FullName)
	assert.Equal(t, source.RoleAdmin, users[0].Role)
	assert.Equal(t, source.RoleMember, users[1].Role)
}

func TestChannels(t *testing.T) {
	e := openFixture(t)
	channels, err := e.Channels(context.Background())
	require.NoError(t, err)
	require.Len(t, channels, 1)
	ch := channels[0]
	assert.Equal(t, "town-square", ch.ID)
	assert.Equal(t, "Town Square", ch.Name)
	assert.Equal(t, "General chatter", ch.Purpose)
	assert.False(t, ch.Private)
	assert.ElementsMatch(t, []string{"alice", "bob"}, ch.Members)
}

func TestGroups(t *testing.T) {
	e := openFixture(t)
	_, err := e.Groups(context.Background())
	assert.ErrorIs(t, err, source.ErrNotFound, "two-member direct channels are not groups")
}

func TestMessages(t *testing.T) {
	e := openFixture(t)
	it, err := e.Messages(context.Background())
	require.NoError(t, err)
	var msgs []*source.Message
	for m, err := range it {
		require.NoError(t, err)
		msgs = append(msgs, m)
	}
	require.Len(t, msgs, 3, "post, its reply, and one direct post")

	assert.Equal(t, "alice", msgs[0].SenderID)
	assert.Equal(t, int64(1645095505), msgs[0].TS, "create_at milliseconds reduced to seconds")
	assert.Equal(t, source.ToStream, msgs[0].Dest.Kind)

	assert.Equal(t, "bob", msgs[1].SenderID)
	assert.Equal(t, "morning!", msgs[1].Text, "replies flattened into the stream")
	assert.Equal(t, msgs[0].Dest, msgs[1].Dest)

	dm := msgs[2]
	assert.Equal(t, source.ToPersonal, dm.Dest.Kind)
	assert.Equal(t, "alice", dm.Dest.ID, "addressed to the counterparty")

	for i := 1; i < len(msgs); i++ {
		assert.GreaterOrEqual(t, msgs[i].TS, msgs[i-1].TS)
	}
}

func TestDirectID(t *testing.T) {
	assert.Equal(t, directID([]string{"bob", "alice"}), directID([]string{"alice", "bob"}),
		"member order must not matter")
}
