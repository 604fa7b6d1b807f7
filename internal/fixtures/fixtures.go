// Package fixtures holds test data and helpers shared by the package tests.
package fixtures

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

// Load loads a json data into T, or panics.
func Load[T any](js string) T {
	var ret T
	if err := json.Unmarshal([]byte(js), &ret); err != nil {
		panic(err)
	}
	return ret
}

// LoadPtr loads a json data into *T, or panics.
func LoadPtr[T any](js string) *T {
	v := Load[T](js)
	return &v
}

// WriteTree materialises a name->content file map under a new temp dir and
// returns its root.  Subdirectories are created as needed.
func WriteTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

// Slack export fixtures: a two-user workspace with one public channel and
// one group DM, two days of history.

const TestExpUsersJSON = `[
  {
    "id": "U01ALICE",
    "name": "alice",
    "real_name": "Alice Arkwright",
    "tz": "America/New_York",
    "is_owner": true,
    "is_primary_owner": true,
    "profile": {
      "email": "alice@example.com",
      "real_name": "Alice Arkwright",
      "image_512": "https://avatars.example.com/alice_512.png"
    }
  },
  {
    "id": "U02BOB",
    "name": "bob",
    "real_name": "Bob Burns",
    "tz": "Europe/London",
    "profile": {
      "email": "bob@example.com",
      "real_name": "Bob Burns"
    }
  },
  {
    "id": "U03BOT",
    "name": "deploybot",
    "real_name": "Deploy Bot",
    "is_bot": true,
    "profile": {"real_name": "Deploy Bot"}
  }
]`

const TestExpChannelsJSON = `[
  {
    "id": "C01GENERAL",
    "name": "general",
    "created": 1640000000,
    "is_channel": true,
    "is_general": true,
    "members": ["U01ALICE", "U02BOB"],
    "purpose": {"value": "Company-wide announcements"}
  },
  {
    "id": "C02RANDOM",
    "name": "random",
    "created": 1640000100,
    "is_channel": true,
    "is_archived": true,
    "members": ["U02BOB"],
    "purpose": {"value": ""}
  }
]`

const TestExpMpimsJSON = `[
  {
    "id": "G01TRIO",
    "name": "mpdm-alice--bob--carol-1",
    "created": 1640000200,
    "is_mpim": true,
    "members": ["U01ALICE", "U02BOB", "U03BOT"]
  }
]`

const TestExpDMsJSON = `[
  {"id": "D01AB", "created": 1640000300, "members": ["U01ALICE", "U02BOB"]}
]`

const TestExpGeneralDay1JSON = `[
  {
    "type": "message",
    "user": "U01ALICE",
    "text": "welcome <@U02BOB> to <#C02RANDOM|random>",
    "ts": "1645095505.023899",
    "reactions": [{"name": "wave", "count": 1, "users": ["U02BOB"]}]
  },
  {
    "type": "message",
    "user": "U02BOB",
    "text": "thanks <!channel>",
    "ts": "1645095600.000100"
  }
]`

const TestExpGeneralDay2JSON = `[
  {
    "type": "message",
    "user": "U02BOB",
    "text": "uploading the report",
    "ts": "1645181900.000200",
    "files": [
      {
        "id": "F01REPORT",
        "name": "report q4.pdf",
        "mimetype": "application/pdf",
        "size": 2048,
        "url_private_download": "https://files.example.com/report.pdf"
      }
    ]
  },
  {
    "type": "message",
    "subtype": "channel_join",
    "user": "U02BOB",
    "text": "<@U02BOB> has joined the channel",
    "ts": "1645181910.000300"
  }
]`

const TestExpTrioDayJSON = `[
  {
    "type": "message",
    "user": "U01ALICE",
    "text": "group planning",
    "ts": "1645095700.000400"
  }
]`

const TestExpDMDayJSON = `[
  {
    "type": "message",
    "user": "U02BOB",
    "text": "psst, got a minute?",
    "ts": "1645095800.000500"
  }
]`

// SlackExportDir writes the full fixture export tree and returns its root.
func SlackExportDir(t *testing.T) string {
	t.Helper()
	return WriteTree(t, map[string]string{
		"users.json":              TestExpUsersJSON,
		"channels.json":           TestExpChannelsJSON,
		"mpims.json":              TestExpMpimsJSON,
		"dms.json":                TestExpDMsJSON,
		"general/2022-02-17.json": TestExpGeneralDay1JSON,
		"general/2022-02-18.json": TestExpGeneralDay2JSON,
		"mpdm-alice--bob--carol-1/2022-02-17.json": TestExpTrioDayJSON,
		"D01AB/2022-02-17.json":                    TestExpDMDayJSON,
	})
}

// Mattermost bulk export fixture: one team, two users, one channel, direct
// messages, one post with a reply.

const TestMMExportJSONL = `{"type":"version","version":1}
{"type":"team","team":{"name":"acme","display_name":"Acme Corp","type":"O"}}
{"type":"channel","channel":{"team":"acme","name":"town-square","display_name":"Town Square","type":"O","purpose":"General chatter"}}
{"type":"user","user":{"username":"alice","email":"alice@acme.test","nickname":"Alice A","position":"","roles":"system_admin system_user","teams":[{"name":"acme","channels":[{"name":"town-square"}]}]}}
{"type":"user","user":{"username":"bob","email":"bob@acme.test","nickname":"Bob B","roles":"system_user","teams":[{"name":"acme","channels":[{"name":"town-square"}]}]}}
{"type":"post","post":{"team":"acme","channel":"town-square","user":"alice","message":"morning everyone","create_at":1645095505000,"replies":[{"user":"bob","message":"morning!","create_at":1645095600000}]}}
{"type":"direct_channel","direct_channel":{"members":["alice","bob"]}}
{"type":"direct_post","direct_post":{"channel_members":["alice","bob"],"user":"bob","message":"lunch?","create_at":1645095700000}}
`
