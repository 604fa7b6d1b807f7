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

// Package emit writes the converted data set in the layout the importer
// consumes: realm.json, numbered message files, attachment.json, the
// per-directory records.json files, and the final gzipped tarball.
//
// All writers go through an fsadapter, so the pre-tar tree can be produced
// on disk for inspection or straight into a zip.
package emit

import (
	"encoding/json"
	"fmt"

	"github.com/rusq/fsadapter"

	"github.com/chatport/chatport/internal/pipeline"
	"github.com/chatport/chatport/internal/uploads"
	"github.com/chatport/chatport/internal/zerver"
)

// RealmBundle is the content of realm.json: the realm record with every
// nested entity collection except messages, reactions and attachments.
type RealmBundle struct {
	Realm         []zerver.Realm            `json:"zerver_realm"`
	UserProfiles  []zerver.UserProfile      `json:"zerver_userprofile"`
	Streams       []zerver.Stream           `json:"zerver_stream"`
	Recipients    []zerver.Recipient        `json:"zerver_recipient"`
	Subscriptions []zerver.Subscription     `json:"zerver_subscription"`
	Huddles       []zerver.Huddle           `json:"zerver_huddle"`
	RealmEmoji    []zerver.RealmEmojiRecord `json:"zerver_realmemoji"`
}

// AvatarRecord is one entry of avatars/records.json.
type AvatarRecord struct {
	Path        string `json:"path"`
	S3Path      string `json:"s3_path"`
	RealmID     int    `json:"realm_id"`
	UserProfile int    `json:"user_profile_id"`
	ContentType string `json:"content_type"`
}

// EmojiRecord is one entry of emoji/records.json.
type EmojiRecord struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	S3Path   string `json:"s3_path"`
	FileName string `json:"file_name"`
	RealmID  int    `json:"realm_id"`
}

// writeJSON writes v as indented JSON to name within the adapter.
func writeJSON(fsa fsadapter.FS, name string, v any) error {
	wc, err := fsa.Create(name)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", name, err)
	}
	defer wc.Close()
	enc := json.NewEncoder(wc)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("error encoding %s: %w", name, err)
	}
	return nil
}

// WriteRealm writes realm.json.
func WriteRealm(fsa fsadapter.FS, b *RealmBundle) error {
	return writeJSON(fsa, "realm.json", b)
}

// WriteAttachments writes attachment.json.
func WriteAttachments(fsa fsadapter.FS, aa []zerver.Attachment) error {
	if aa == nil {
		aa = []zerver.Attachment{}
	}
	return writeJSON(fsa, "attachment.json", map[string][]zerver.Attachment{"zerver_attachment": aa})
}

// WriteUploadRecords writes uploads/records.json.
func WriteUploadRecords(fsa fsadapter.FS, rr []uploads.UploadRecord) error {
	if rr == nil {
		rr = []uploads.UploadRecord{}
	}
	return writeJSON(fsa, "uploads/records.json", rr)
}

// WriteAvatarRecords writes avatars/records.json.
func WriteAvatarRecords(fsa fsadapter.FS, rr []AvatarRecord) error {
	if rr == nil {
		rr = []AvatarRecord{}
	}
	return writeJSON(fsa, "avatars/records.json", rr)
}

// WriteEmojiRecords writes emoji/records.json.
func WriteEmojiRecords(fsa fsadapter.FS, rr []EmojiRecord) error {
	if rr == nil {
		rr = []EmojiRecord{}
	}
	return writeJSON(fsa, "emoji/records.json", rr)
}

// MessageWriter writes numbered message chunk files.  It satisfies
// pipeline.ChunkWriter.
type MessageWriter struct {
	fsa fsadapter.FS
}

func NewMessageWriter(fsa fsadapter.FS) *MessageWriter {
	return &MessageWriter{fsa: fsa}
}

// WriteChunk writes messages-NNNNNN.json for chunk n (1-based).
func (w *MessageWriter) WriteChunk(n int, chunk *pipeline.Chunk) error {
	if chunk.UserMessages == nil {
		chunk.UserMessages = []zerver.UserMessage{}
	}
	if chunk.Reactions == nil {
		chunk.Reactions = []zerver.Reaction{}
	}
	return writeJSON(w.fsa, fmt.Sprintf("messages-%06d.json", n), chunk)
}
