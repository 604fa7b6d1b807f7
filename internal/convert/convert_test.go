package convert

import (
	"context"
	"encoding/json"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatport/chatport/internal/emit"
	"github.com/chatport/chatport/internal/fixtures"
	"github.com/chatport/chatport/internal/pipeline"
	"github.com/chatport/chatport/internal/source"
	"github.com/chatport/chatport/internal/source/slackexp"
)

// fakeGetter serves a fixed body for any URL.
type fakeGetter struct{}

func (fakeGetter) Get(ctx context.Context, url string, w io.Writer) error {
	_, err := w.Write([]byte("file-body"))
	return err
}

func readJSON[T any](t *testing.T, path string) T {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var v T
	require.NoError(t, json.Unmarshal(data, &v))
	return v
}

// fixture reference time: 50 seconds after the last message in the slack
// export fixture, so bob's final message falls inside the default 60s
// recency window and alice's day-old history does not.
var testNow = time.Unix(1645181950, 0)

func TestConvertSlackExport(t *testing.T) {
	src, err := slackexp.Open(fixtures.SlackExportDir(t))
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "out")
	cvt := New(src, out,
		WithGetter(fakeGetter{}),
		WithNow(func() time.Time { return testNow }),
	)
	require.NoError(t, cvt.Convert(context.Background()))

	t.Run("realm bundle", func(t *testing.T) {
		bundle := readJSON[emit.RealmBundle](t, filepath.Join(out, "realm.json"))
		require.Len(t, bundle.Realm, 1)
		assert.Contains(t, bundle.Realm[0].Description, "Slack")
		assert.Len(t, bundle.UserProfiles, 3)
		assert.Len(t, bundle.Streams, 2)
		// 3 personal + 2 stream + 1 huddle
		assert.Len(t, bundle.Recipients, 6)
		assert.Len(t, bundle.Huddles, 1)

		var owner int
		for _, u := range bundle.UserProfiles {
			if u.Email == "alice@example.com" {
				owner = u.Role
			}
		}
		assert.Equal(t, 100, owner, "primary owner keeps the owner role")
	})

	t.Run("message chunks", func(t *testing.T) {
		chunk := readJSON[pipeline.Chunk](t, filepath.Join(out, "messages-000001.json"))
		require.Len(t, chunk.Messages, 5)
		assert.Contains(t, chunk.Messages[0].Content, "@**Bob Burns**")
		assert.Contains(t, chunk.Messages[0].Content, "#**random**")
		assert.Contains(t, chunk.Messages[1].Content, "@**all**")
		for i := 1; i < len(chunk.Messages); i++ {
			assert.Greater(t, chunk.Messages[i].ID, chunk.Messages[i-1].ID)
			assert.GreaterOrEqual(t, chunk.Messages[i].DateSent, chunk.Messages[i-1].DateSent)
		}
		require.Len(t, chunk.Reactions, 1)
		assert.Equal(t, "wave", chunk.Reactions[0].EmojiName)
	})

	t.Run("attachment relocated", func(t *testing.T) {
		atts := readJSON[map[string][]json.RawMessage](t, filepath.Join(out, "attachment.json"))
		require.Len(t, atts["zerver_attachment"], 1)

		recs := readJSON[[]json.RawMessage](t, filepath.Join(out, "uploads", "records.json"))
		assert.Len(t, recs, 1)
	})

	t.Run("avatar downloaded", func(t *testing.T) {
		recs := readJSON[[]emit.AvatarRecord](t, filepath.Join(out, "avatars", "records.json"))
		require.Len(t, recs, 1, "only alice has an avatar url")
		body, err := os.ReadFile(filepath.Join(out, "avatars", recs[0].Path))
		require.NoError(t, err)
		assert.Equal(t, "file-body", string(body))
	})

	t.Run("empty emoji records written", func(t *testing.T) {
		recs := readJSON[[]emit.EmojiRecord](t, filepath.Join(out, "emoji", "records.json"))
		assert.Empty(t, recs)
	})

	t.Run("tarball produced", func(t *testing.T) {
		fi, err := os.Stat(out + ".tar.gz")
		require.NoError(t, err)
		assert.Greater(t, fi.Size(), int64(0))
	})

	t.Run("idle classification by recency", func(t *testing.T) {
		bundle := readJSON[emit.RealmBundle](t, filepath.Join(out, "realm.json"))
		byEmail := make(map[string]bool)
		for _, u := range bundle.UserProfiles {
			byEmail[u.Email] = u.LongTermIdle
		}
		assert.False(t, byEmail["bob@example.com"], "bob posted within the window")
		assert.True(t, byEmail["alice@example.com"], "alice's last message is a day old")
	})
}

func TestConvertNonEmptyOutput(t *testing.T) {
	src, err := slackexp.Open(fixtures.SlackExportDir(t))
	require.NoError(t, err)
	out := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(out, "leftover"), nil, 0o644))

	err = New(src, out, WithGetter(fakeGetter{})).Convert(context.Background())
	assert.ErrorContains(t, err, "not empty")
}

// stubSource exercises the paths the file fixtures cannot: a sender missing
// from the roster and an unsupported group listing.
type stubSource struct {
	users []source.User
	msgs  []*source.Message
}

func (s *stubSource) Name() string { return "stub" }
func (s *stubSource) Realm(ctx context.Context) (source.RealmInfo, error) {
	return source.RealmInfo{Name: "Stub", Subdomain: "stub"}, nil
}
func (s *stubSource) Users(ctx context.Context) ([]source.User, error) { return s.users, nil }
func (s *stubSource) Channels(ctx context.Context) ([]source.Channel, error) {
	return []source.Channel{{ID: "c1", Name: "lobby", Members: []string{"u1"}}}, nil
}
func (s *stubSource) Groups(ctx context.Context) ([]source.Group, error) {
	return nil, source.ErrNotSupported
}
func (s *stubSource) Messages(ctx context.Context) (iter.Seq2[*source.Message, error], error) {
	return source.SliceSeq(s.msgs), nil
}
func (s *stubSource) CustomEmoji(ctx context.Context) (map[string]string, error) {
	return nil, source.ErrNotSupported
}

func TestConvertMirrorDummy(t *testing.T) {
	src := &stubSource{
		users: []source.User{{ID: "u1", FullName: "Live User", Email: "live@example.com"}},
		msgs: []*source.Message{
			{Dest: source.Dest{Kind: source.ToStream, ID: "c1"}, SenderID: "ghost", TS: 100, Text: "boo"},
			{Dest: source.Dest{Kind: source.ToStream, ID: "c1"}, SenderID: "u1", TS: 200, Text: "hello"},
		},
	}
	out := filepath.Join(t.TempDir(), "out")
	cvt := New(src, out, WithGetter(fakeGetter{}))
	require.NoError(t, cvt.Convert(context.Background()))

	bundle := readJSON[emit.RealmBundle](t, filepath.Join(out, "realm.json"))
	require.Len(t, bundle.UserProfiles, 2)

	var ghost, live *int
	for i, u := range bundle.UserProfiles {
		if strings.HasPrefix(u.Email, "mirror-dummy-") {
			ghost = &bundle.UserProfiles[i].ID
			assert.True(t, u.IsMirrorDummy)
			assert.False(t, u.IsActive, "mirror dummies come in deactivated")
		} else {
			live = &bundle.UserProfiles[i].ID
		}
	}
	require.NotNil(t, ghost, "sender absent from the roster gets a profile")
	require.NotNil(t, live)

	t.Run("both messages converted", func(t *testing.T) {
		chunk := readJSON[pipeline.Chunk](t, filepath.Join(out, "messages-000001.json"))
		require.Len(t, chunk.Messages, 2)
		assert.Equal(t, *ghost, chunk.Messages[0].Sender)
	})

	t.Run("last active message id injected", func(t *testing.T) {
		for _, u := range bundle.UserProfiles {
			require.NotNil(t, u.LastActiveMessageID, "both users sent something")
		}
	})
}
