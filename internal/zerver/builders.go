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

package zerver

import (
	"fmt"
	"unicode/utf8"
)

// Field limits enforced by the builders.  Over-long values are truncated, not
// rejected: imported history is better slightly clipped than dropped.
const (
	MaxTopicLen   = 60
	MaxContentLen = 10000
)

// Legacy dummy values the importer expects verbatim.
const (
	defaultPointer       = -1
	defaultSendingClient = 1
	defaultAvatarSource  = "G"
)

// UserParams carries the validated semantic fields for one user.  The builder
// applies defaults for everything else.
type UserParams struct {
	ID            int
	Email         string
	FullName      string
	Role          int
	IsBot         bool
	IsMirrorDummy bool
	Timezone      string
	DateJoined    int64
}

// NewUserProfile builds one UserProfile record.  It returns an error for an
// unrecognised role value: a bad role means a platform mapper mis-translated
// its source flags, and that must surface immediately, not at import time.
func NewUserProfile(p UserParams) (UserProfile, error) {
	switch p.Role {
	case RoleOwner, RoleAdmin, RoleMember, RoleGuest:
	default:
		return UserProfile{}, fmt.Errorf("user %d: unexpected role value %d", p.ID, p.Role)
	}
	return UserProfile{
		ID:            p.ID,
		Email:         p.Email,
		DeliveryEmail: p.Email,
		FullName:      p.FullName,
		ShortName:     p.FullName,
		IsActive:      !p.IsMirrorDummy,
		IsMirrorDummy: p.IsMirrorDummy,
		IsBot:         p.IsBot,
		Role:          p.Role,
		Timezone:      p.Timezone,
		DateJoined:    p.DateJoined,
		AvatarSource:  defaultAvatarSource,
		Pointer:       defaultPointer,
	}, nil
}

// NewRealm builds the realm record.  The description names the source
// platform so an admin can tell imported realms apart.
func NewRealm(id int, name, subdomain, platform string, createdAt int64) Realm {
	return Realm{
		ID:          id,
		DateCreated: createdAt,
		Name:        name,
		StringID:    subdomain,
		Description: fmt.Sprintf("Organization imported from %s!", platform),
	}
}

// NewStream builds one stream record.
func NewStream(id int, name, description string, inviteOnly, deactivated bool, createdAt int64) Stream {
	return Stream{
		ID:          id,
		Name:        name,
		Description: description,
		InviteOnly:  inviteOnly,
		Deactivated: deactivated,
		DateCreated: createdAt,
	}
}

// NewRecipient builds one recipient of the given type pointing at typeID
// (a user id, stream id or huddle id depending on typ).
func NewRecipient(id int, typ RecipientType, typeID int) (Recipient, error) {
	switch typ {
	case RTPersonal, RTStream, RTHuddle:
	default:
		return Recipient{}, fmt.Errorf("recipient %d: unexpected type value %d", id, typ)
	}
	return Recipient{ID: id, Type: typ, TypeID: typeID}, nil
}

// NewSubscription builds one subscription joining userID to recipientID.
func NewSubscription(id, recipientID, userID int) Subscription {
	return Subscription{
		ID:                   id,
		Recipient:            recipientID,
		UserProfile:          userID,
		Active:               true,
		Color:                subColor(userID),
		DesktopNotifications: true,
		AudibleNotifications: true,
	}
}

// stream colors are assigned round-robin the way the web client does for new
// subscriptions, so imported sidebars don't come up monochrome.
var subColors = []string{
	"#76ce90", "#fae589", "#a6c7e5", "#e79ab5",
	"#bfd56f", "#f4ae55", "#b0a5fd", "#addfe5",
}

func subColor(n int) string {
	return subColors[n%len(subColors)]
}

// MessageParams carries the validated fields for one message.
type MessageParams struct {
	ID            int
	SenderID      int
	RecipientID   int
	Topic         string
	Content       string
	DateSent      int64
	HasAttachment bool
	HasImage      bool
	HasLink       bool
}

// NewMessage builds one message record, truncating the topic and content to
// the import limits.  Content must not be empty; the pipeline guarantees
// attachment-only messages arrive with a link body.
func NewMessage(p MessageParams) (Message, error) {
	if p.Content == "" {
		return Message{}, fmt.Errorf("message %d: empty content", p.ID)
	}
	return Message{
		ID:            p.ID,
		Sender:        p.SenderID,
		Recipient:     p.RecipientID,
		Subject:       truncate(p.Topic, MaxTopicLen),
		Content:       truncate(p.Content, MaxContentLen),
		DateSent:      p.DateSent,
		SendingClient: defaultSendingClient,
		HasAttachment: p.HasAttachment,
		HasImage:      p.HasImage,
		HasLink:       p.HasLink,
	}, nil
}

// NewUserMessage builds one delivery record.
func NewUserMessage(id, userID, messageID, flags int) UserMessage {
	return UserMessage{ID: id, UserProfile: userID, Message: messageID, Flags: flags}
}

// NewAttachment builds one attachment record referencing its first message.
func NewAttachment(id, ownerID, realmID int, fileName, pathID string, size, createTime int64, messageID int) Attachment {
	return Attachment{
		ID:            id,
		Owner:         ownerID,
		Realm:         realmID,
		FileName:      fileName,
		PathID:        pathID,
		Size:          size,
		CreateTime:    createTime,
		Messages:      []int{messageID},
		IsRealmPublic: true,
	}
}

// NewReaction builds one reaction record.  The caller resolves the emoji
// name/code pair first (see the emojidef package).
func NewReaction(id, messageID, userID int, name, code, kind string) Reaction {
	return Reaction{
		ID:           id,
		Message:      messageID,
		UserProfile:  userID,
		EmojiName:    name,
		EmojiCode:    code,
		ReactionType: kind,
	}
}

// NewRealmEmoji builds one custom emoji record.
func NewRealmEmoji(id, realmID int, name, fileName string) RealmEmojiRecord {
	return RealmEmojiRecord{ID: id, Realm: realmID, Name: name, FileName: fileName}
}

// truncate clips s to at most n runes.  Import limits are rune counts, not
// byte counts.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	rr := []rune(s)
	return string(rr[:n])
}
