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

// Package zerver defines the target import-format records and the pure
// builder functions that produce them.  Field names follow the server's
// import table layout (zerver_realm, zerver_userprofile, ...), so the structs
// marshal directly into the files the importer consumes.
package zerver

// RecipientType discriminates the three addressing kinds of a Recipient.
type RecipientType int

const (
	RTPersonal RecipientType = 1 // a single user
	RTStream   RecipientType = 2 // a stream (channel)
	RTHuddle   RecipientType = 3 // a multi-user direct message group
)

// UserMessage flag bits.  Only the bits the converters set are defined here;
// the importer understands the full set.
const (
	FlagRead              = 1 << 0
	FlagMentioned         = 1 << 3
	FlagWildcardMentioned = 1 << 4
	FlagIsPrivate         = 1 << 11
)

// Role values for UserProfile.Role.
const (
	RoleOwner  = 100
	RoleAdmin  = 200
	RoleMember = 400
	RoleGuest  = 600
)

// Reaction kinds.
const (
	UnicodeEmoji = "unicode_emoji"
	RealmEmoji   = "realm_emoji"
	ZulipEmoji   = "zulip_extra_emoji"
)

// Realm is the imported organisation.  One per conversion run.
type Realm struct {
	ID          int    `json:"id"`
	DateCreated int64  `json:"date_created"`
	Name        string `json:"name"`
	StringID    string `json:"string_id"`
	Description string `json:"description"`
}

// UserProfile is one imported user.  LongTermIdle and LastActiveMessageID are
// filled in after message conversion; every other field is immutable once the
// user phase completes.
type UserProfile struct {
	ID                  int    `json:"id"`
	Email               string `json:"email"`
	DeliveryEmail       string `json:"delivery_email"`
	FullName            string `json:"full_name"`
	ShortName           string `json:"short_name"`
	IsActive            bool   `json:"is_active"`
	IsMirrorDummy       bool   `json:"is_mirror_dummy"`
	IsBot               bool   `json:"is_bot"`
	BotType             *int   `json:"bot_type"`
	Role                int    `json:"role"`
	Timezone            string `json:"timezone"`
	DateJoined          int64  `json:"date_joined"`
	AvatarSource        string `json:"avatar_source"`
	Pointer             int    `json:"pointer"`
	LongTermIdle        bool   `json:"long_term_idle"`
	LastActiveMessageID *int   `json:"last_active_message_id"`
}

// Stream is one imported channel.
type Stream struct {
	ID                  int    `json:"id"`
	Name                string `json:"name"`
	Description         string `json:"description"`
	RenderedDescription string `json:"rendered_description"`
	InviteOnly          bool   `json:"invite_only"`
	Deactivated         bool   `json:"deactivated"`
	DateCreated         int64  `json:"date_created"`
}

// Recipient is the polymorphic address: exactly one of stream, personal or
// huddle, with TypeID pointing at the underlying entity.  Recipients are
// never mutated after creation.
type Recipient struct {
	ID     int           `json:"id"`
	Type   RecipientType `json:"type"`
	TypeID int           `json:"type_id"`
}

// Huddle is a multi-user direct message group (more than two members).
type Huddle struct {
	ID int `json:"id"`
}

// Subscription joins a user to a recipient.  At most one per
// (recipient, user) pair.
type Subscription struct {
	ID                   int    `json:"id"`
	Recipient            int    `json:"recipient"`
	UserProfile          int    `json:"user_profile"`
	Active               bool   `json:"active"`
	Color                string `json:"color"`
	IsMuted              bool   `json:"is_muted"`
	PinToTop             bool   `json:"pin_to_top"`
	DesktopNotifications bool   `json:"desktop_notifications"`
	AudibleNotifications bool   `json:"audible_notifications"`
}

// Message is one converted message.  Content is never empty: attachment-only
// source messages carry the generated markdown link body.
type Message struct {
	ID              int     `json:"id"`
	Sender          int     `json:"sender"`
	Recipient       int     `json:"recipient"`
	Subject         string  `json:"subject"`
	Content         string  `json:"content"`
	RenderedContent *string `json:"rendered_content"`
	DateSent        int64   `json:"date_sent"`
	SendingClient   int     `json:"sending_client"`
	HasAttachment   bool    `json:"has_attachment"`
	HasImage        bool    `json:"has_image"`
	HasLink         bool    `json:"has_link"`
}

// UserMessage is the per-subscriber delivery record for one message.
type UserMessage struct {
	ID          int `json:"id"`
	UserProfile int `json:"user_profile"`
	Message     int `json:"message"`
	Flags       int `json:"flags"`
}

// Attachment is one uploaded file, possibly referenced by several messages.
type Attachment struct {
	ID            int    `json:"id"`
	Owner         int    `json:"owner"`
	Realm         int    `json:"realm"`
	FileName      string `json:"file_name"`
	PathID        string `json:"path_id"`
	Size          int64  `json:"size"`
	CreateTime    int64  `json:"create_time"`
	Messages      []int  `json:"messages"`
	IsRealmPublic bool   `json:"is_realm_public"`
}

// Reaction is one (message, user, emoji) triple.
type Reaction struct {
	ID           int    `json:"id"`
	Message      int    `json:"message"`
	UserProfile  int    `json:"user_profile"`
	EmojiName    string `json:"emoji_name"`
	EmojiCode    string `json:"emoji_code"`
	ReactionType string `json:"reaction_type"`
}

// RealmEmojiRecord is one custom emoji registered on the realm.
type RealmEmojiRecord struct {
	ID          int    `json:"id"`
	Realm       int    `json:"realm"`
	Name        string `json:"name"`
	FileName    string `json:"file_name"`
	Deactivated bool   `json:"deactivated"`
	Author      *int   `json:"author"`
}
