// Copyright (c) 2025-2026 The chatport Authors and Contributors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package source defines the canonical intermediate representation every
// platform reader produces, and the Source interface the converter consumes.
// Platform packages (slackexp, mmexp, dbexp) translate their native export
// shapes into these types; everything downstream of this package is platform
// agnostic.
package source

import (
	"context"
	"errors"
	"iter"
)

var (
	// ErrNotFound is returned when a piece of data is absent from the export.
	ErrNotFound = errors.New("no data found")
	// ErrNotSupported is returned by sources that do not carry the requested
	// kind of data at all (e.g. no custom emoji in a database archive).
	ErrNotSupported = errors.New("not supported by this source")
)

// Source is the reader interface over one platform's export bundle.
//
// Messages returns a fresh iterator on every call: the conversion needs two
// full passes (idle classification, then conversion proper), and sources are
// expected to re-open their underlying files rather than buffer the whole
// stream.  The iterator must yield messages in ascending timestamp order
// across all channels.
type Source interface {
	// Name returns the platform name ("Slack", "Mattermost", ...), used in
	// realm descriptions and default topics.
	Name() string
	// Realm returns the workspace-level information.
	Realm(ctx context.Context) (RealmInfo, error)
	// Users returns the full member roster.
	Users(ctx context.Context) ([]User, error)
	// Channels returns all channels/rooms.
	Channels(ctx context.Context) ([]Channel, error)
	// Groups returns all multi-user direct message groups.  Sources without
	// the concept return ErrNotSupported.
	Groups(ctx context.Context) ([]Group, error)
	// Messages returns a restartable, globally time-ordered message iterator.
	Messages(ctx context.Context) (iter.Seq2[*Message, error], error)
	// CustomEmoji returns the name to image-URL (or local path) map of the
	// workspace's custom emoji.  Sources without it return ErrNotSupported.
	CustomEmoji(ctx context.Context) (map[string]string, error)
}

// RealmInfo is the workspace-level data of the export.
type RealmInfo struct {
	Name      string
	Subdomain string
	CreatedAt int64
}

// Role is the platform-agnostic permission level of a user.
type Role int

const (
	RoleMember Role = iota
	RoleOwner
	RoleAdmin
	RoleGuest
)

// User is one roster entry.
type User struct {
	ID        string
	Email     string
	FullName  string
	Role      Role
	IsBot     bool
	Timezone  string
	JoinedAt  int64
	AvatarURL string
}

// Channel is one named channel/room.
type Channel struct {
	ID        string
	Name      string
	Purpose   string
	Private   bool
	Archived  bool
	CreatedAt int64
	Members   []string
}

// Group is one multi-user direct message destination.  Two-member groups are
// collapsed to personal pairs by the graph builder, they never become
// huddles.
type Group struct {
	ID      string
	Members []string
}

// DestKind discriminates the message destination union.
type DestKind int

const (
	// ToStream addresses a channel; Dest.ID is the channel id.
	ToStream DestKind = iota
	// ToPersonal addresses a single user; Dest.ID is the receiving user id.
	ToPersonal
	// ToGroup addresses a multi-user group; Dest.ID is the group id.
	ToGroup
)

// Dest is the tagged destination of a message.  The kind is determined once
// at ingestion by the platform reader and carried explicitly from then on.
type Dest struct {
	Kind DestKind
	ID   string
}

// FileRef is one file carried by a message.  Exactly one of URL and LocalPath
// is set: exports either bundle the bytes or point at a download URL.
type FileRef struct {
	ID        string
	Name      string
	URL       string
	LocalPath string
	Size      int64
	IsImage   bool
}

// Reaction is one emoji reaction with the reacting source user ids.
type Reaction struct {
	Name  string
	Users []string
}

// Message is one source message in canonical form.
type Message struct {
	Dest      Dest
	SenderID  string
	TS        int64 // epoch seconds
	Text      string
	Topic     string // optional; empty means the converter default
	Mentions  []string
	Wildcard  bool // @all / @here / @channel
	Files     []FileRef
	Reactions []Reaction
}

// HasBody reports whether the message carries any usable content.  A message
// with neither text nor files is a corrupt export row and is skipped by the
// pipeline.
func (m *Message) HasBody() bool {
	return m.Text != "" || len(m.Files) > 0
}
