package slackexp

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatport/chatport/internal/fixtures"
	"github.com/chatport/chatport/internal/source"
)

func openFixture(t *testing.T) *Export {
	t.Helper()
	e, err := Open(fixtures.SlackExportDir(t))
	require.NoError(t, err)
	return e
}

func TestOpen(t *testing.T) {
	t.Run("valid export", func(t *testing.T) {
		openFixture(t)
	})
	t.Run("missing directory", func(t *testing.T) {
		_, err := Open(filepath.Join(t.TempDir(), "nope"))
		assert.Error(t, err)
	})
	t.Run("not an export", func(t *testing.T) {
		_, err := Open(t.TempDir())
		assert.ErrorContains(t, err, "users.json")
	})
}

func TestUsers(t *testing.T) {
	e := openFixture(t)
	users, err := e.Users(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 3)

	alice := users[0]
	assert.Equal(t, "U01ALICE", alice.ID)
	assert.Equal(t, "Alice Arkwright", alice.FullName)
	assert.Equal(t, source.RoleOwner, alice.Role)
	assert.Equal(t, "alice@example.com", alice.Email)
	assert.Equal(t, "https://avatars.example.com/alice_512.png", alice.AvatarURL)
	assert.Equal(t, "America/New_York", alice.Timezone)

	assert.Equal(t, source.RoleMember, users[1].Role)
	assert.True(t, users[2].IsBot)
}

func TestChannels(t *testing.T) {
	e := openFixture(t)
	channels, err := e.Channels(context.Background())
	require.NoError(t, err)
	require.Len(t, channels, 2)

	general := channels[0]
	assert.Equal(t, "general", general.Name)
	assert.Equal(t, "Company-wide announcements", general.Purpose)
	assert.False(t, general.Archived)
	assert.Equal(t, []string{"U01ALICE", "U02BOB"}, general.Members)

	assert.True(t, channels[1].Archived)
}

func TestGroups(t *testing.T) {
	e := openFixture(t)
	groups, err := e.Groups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "G01TRIO", groups[0].ID)
	assert.Len(t, groups[0].Members, 3)
}

func TestRealm(t *testing.T) {
	e := openFixture(t)
	info, err := e.Realm(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, info.Name)
	assert.NotEmpty(t, info.Subdomain)
	assert.Equal(t, int64(1640000000), info.CreatedAt, "earliest channel creation")
}

func TestCustomEmoji(t *testing.T) {
	e := openFixture(t)
	_, err := e.CustomEmoji(context.Background())
	assert.ErrorIs(t, err, source.ErrNotSupported)
}

func collect(t *testing.T, e *Export) []*source.Message {
	t.Helper()
	it, err := e.Messages(context.Background())
	require.NoError(t, err)
	var out []*source.Message
	for m, err := range it {
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

func TestMessages(t *testing.T) {
	e := openFixture(t)
	msgs := collect(t, e)
	// 2 in general day 1, 1 in general day 2 (join row skipped), 1 mpim, 1 dm.
	require.Len(t, msgs, 5)

	t.Run("globally time ordered", func(t *testing.T) {
		for i := 1; i < len(msgs); i++ {
			assert.GreaterOrEqual(t, msgs[i].TS, msgs[i-1].TS)
		}
	})
	t.Run("mentions normalized", func(t *testing.T) {
		assert.Equal(t, "welcome <@U02BOB> to <#C02RANDOM>", msgs[0].Text)
	})
	t.Run("wildcard reduced to literal", func(t *testing.T) {
		assert.Equal(t, "thanks @channel", msgs[1].Text)
	})
	t.Run("reactions carried", func(t *testing.T) {
		require.Len(t, msgs[0].Reactions, 1)
		assert.Equal(t, "wave", msgs[0].Reactions[0].Name)
		assert.Equal(t, []string{"U02BOB"}, msgs[0].Reactions[0].Users)
	})
	t.Run("dm addressed to counterparty", func(t *testing.T) {
		var dm *source.Message
		for _, m := range msgs {
			if m.Dest.Kind == source.ToPersonal {
				dm = m
			}
		}
		require.NotNil(t, dm)
		assert.Equal(t, "U02BOB", dm.SenderID)
		assert.Equal(t, "U01ALICE", dm.Dest.ID)
	})
	t.Run("files carried with url", func(t *testing.T) {
		var withFile *source.Message
		for _, m := range msgs {
			if len(m.Files) > 0 {
				withFile = m
			}
		}
		require.NotNil(t, withFile)
		f := withFile.Files[0]
		assert.Equal(t, "F01REPORT", f.ID)
		assert.Equal(t, "report q4.pdf", f.Name)
		assert.Equal(t, "https://files.example.com/report.pdf", f.URL)
		assert.False(t, f.IsImage)
	})
	t.Run("restartable", func(t *testing.T) {
		again := collect(t, e)
		assert.Equal(t, len(msgs), len(again))
	})
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"user alias stripped", "hi <@U123|al>", "hi <@U123>"},
		{"channel name stripped", "see <#C42|general>", "see <#C42>"},
		{"here", "<!here> standup", "@here standup"},
		{"everyone maps to all", "<!everyone>", "@all"},
		{"bare link unwrapped", "go to <https://example.com/a>", "go to https://example.com/a"},
		{"labelled link to markdown", "<https://example.com|site>", "[site](https://example.com)"},
		{"self-labelled link unwrapped", "<https://example.com|https://example.com>", "https://example.com"},
		{"entities decoded", "a &lt;b&gt; &amp; c", "a <b> & c"},
		{"plain text untouched", "nothing here", "nothing here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeText(tt.in))
		})
	}
}

func TestParseTS(t *testing.T) {
	assert.Equal(t, int64(1645095505), parseTS("1645095505.023899"))
	assert.Equal(t, int64(1645095505), parseTS("1645095505"))
	assert.Equal(t, int64(0), parseTS("garbage"))
}
