package dbexp

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatport/chatport/internal/source"
)

const testSchema = `
CREATE TABLE workspace (name TEXT, subdomain TEXT, created_at INTEGER);
CREATE TABLE users (
	id TEXT PRIMARY KEY, email TEXT, name TEXT, role TEXT,
	is_bot INTEGER, timezone TEXT, joined_at INTEGER, avatar_url TEXT
);
CREATE TABLE channels (
	id TEXT PRIMARY KEY, name TEXT, purpose TEXT,
	private INTEGER, archived INTEGER, created_at INTEGER
);
CREATE TABLE channel_members (channel_id TEXT, user_id TEXT);
CREATE TABLE dm_groups (id TEXT PRIMARY KEY);
CREATE TABLE dm_group_members (group_id TEXT, user_id TEXT);
CREATE TABLE messages (
	id INTEGER PRIMARY KEY, dest_kind TEXT, dest_id TEXT,
	sender_id TEXT, ts INTEGER, text TEXT, topic TEXT
);
CREATE TABLE files (
	message_id INTEGER, id TEXT, name TEXT, url TEXT,
	local_path TEXT, size INTEGER, is_image INTEGER
);
CREATE TABLE reactions (message_id INTEGER, name TEXT, user_id TEXT);
`

const testData = `
INSERT INTO workspace VALUES ('Initech', 'initech', 1640000000);
INSERT INTO users VALUES
	('u1', 'peter@initech.test', 'Peter Gibbons', 'owner', 0, 'America/Chicago', 1640000000, ''),
	('u2', 'milton@initech.test', 'Milton Waddams', 'member', 0, '', 1640000100, '');
INSERT INTO channels VALUES ('c1', 'tps-reports', 'cover sheets', 0, 0, 1640000200);
INSERT INTO channel_members VALUES ('c1', 'u1'), ('c1', 'u2');
INSERT INTO messages VALUES
	(1, 'stream', 'c1', 'u1', 1645095505, 'did you get the memo', 'memos'),
	(2, 'stream', 'c1', 'u2', 1645095600, 'I was told I could listen at a reasonable volume', ''),
	(3, 'personal', 'u1', 'u2', 1645095700, 'about my stapler', '');
INSERT INTO files VALUES (2, 'f1', 'stapler.png', '', 'data/stapler.png', 512, 1);
INSERT INTO reactions VALUES (1, 'thumbsup', 'u2');
`

func openFixture(t *testing.T) *Archive {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.db")
	db, err := sqlx.Connect("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(testSchema)
	require.NoError(t, err)
	_, err = db.Exec(testData)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	a, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestOpen(t *testing.T) {
	t.Run("valid archive", func(t *testing.T) {
		openFixture(t)
	})
	t.Run("not an archive", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.db")
		db, err := sqlx.Connect("sqlite", path)
		require.NoError(t, err)
		_, err = db.Exec(`CREATE TABLE unrelated (x INTEGER)`)
		require.NoError(t, err)
		require.NoError(t, db.Close())

		_, err = Open(context.Background(), path)
		assert.ErrorContains(t, err, "missing tables")
	})
}

func TestRealm(t *testing.T) {
	a := openFixture(t)
	info, err := a.Realm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, source.RealmInfo{Name: "Initech", Subdomain: "initech", CreatedAt: 1640000000}, info)
}

func TestUsers(t *testing.T) {
	a := openFixture(t)
	users, err := a.Users(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, source.RoleOwner, users[0].Role)
	assert.Equal(t, "Peter Gibbons", users[0].FullName)
	assert.Equal(t, source.RoleMember, users[1].Role)
}

func TestChannels(t *testing.T) {
	a := openFixture(t)
	channels, err := a.Channels(context.Background())
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, "tps-reports", channels[0].Name)
	assert.Equal(t, []string{"u1", "u2"}, channels[0].Members)
}

func TestGroups(t *testing.T) {
	a := openFixture(t)
	_, err := a.Groups(context.Background())
	assert.ErrorIs(t, err, source.ErrNotFound)
}

func TestCustomEmoji(t *testing.T) {
	a := openFixture(t)
	_, err := a.CustomEmoji(context.Background())
	assert.ErrorIs(t, err, source.ErrNotSupported, "fixture has no custom_emoji table")
}

func TestMessages(t *testing.T) {
	a := openFixture(t)
	it, err := a.Messages(context.Background())
	require.NoError(t, err)
	var msgs []*source.Message
	for m, err := range it {
		require.NoError(t, err)
		msgs = append(msgs, m)
	}
	require.Len(t, msgs, 3)

	assert.Equal(t, "memos", msgs[0].Topic)
	require.Len(t, msgs[0].Reactions, 1)
	assert.Equal(t, "thumbsup", msgs[0].Reactions[0].Name)

	require.Len(t, msgs[1].Files, 1)
	assert.Equal(t, "data/stapler.png", msgs[1].Files[0].LocalPath)
	assert.True(t, msgs[1].Files[0].IsImage)

	assert.Equal(t, source.ToPersonal, msgs[2].Dest.Kind)

	t.Run("restartable", func(t *testing.T) {
		it2, err := a.Messages(context.Background())
		require.NoError(t, err)
		n := 0
		for _, err := range it2 {
			require.NoError(t, err)
			n++
		}
		assert.Equal(t, 3, n)
	})
}

func TestConvRowBadKind(t *testing.T) {
	_, err := convRow(&messageRow{ID: 9, DestKind: "smoke-signal"})
	assert.ErrorContains(t, err, "unexpected dest_kind")
}
