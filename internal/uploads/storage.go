// Package uploads relocates message attachments into the content-addressed
// upload layout and produces the attachment and upload metadata records.
package uploads

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rusq/fsadapter"
)

// Storage is the minimal contract the extraction needs from an upload
// backend: write these bytes at this path.  The local implementation writes
// through an fsadapter; a remote object-store backend satisfies the same
// interface without the extractor knowing.
type Storage interface {
	Put(path string, r io.Reader) (int64, error)
}

// FSStorage writes uploads into a filesystem adapter under a fixed prefix
// ("uploads" in the standard output layout).
type FSStorage struct {
	fsa    fsadapter.FS
	prefix string
}

func NewFSStorage(fsa fsadapter.FS, prefix string) *FSStorage {
	return &FSStorage{fsa: fsa, prefix: prefix}
}

func (s *FSStorage) Put(p string, r io.Reader) (int64, error) {
	wc, err := s.fsa.Create(path.Join(s.prefix, p))
	if err != nil {
		return 0, err
	}
	defer wc.Close()
	return io.Copy(wc, r)
}

// UploadPath builds the content-addressed target path for one file:
// {realm_id}/{2-hex shard}/{random token}/{sanitized name}.
func UploadPath(realmID int, name string) string {
	var shard [1]byte
	if _, err := rand.Read(shard[:]); err != nil {
		// crypto/rand failing means the process is in a bad way; the token
		// below would fail the same way.
		panic(err)
	}
	token := strings.ReplaceAll(uuid.New().String(), "-", "")[:22]
	return fmt.Sprintf("%d/%s/%s/%s", realmID, hex.EncodeToString(shard[:]), token, SanitizeName(name))
}

// SanitizeName strips path separators and control characters from a source
// file name so it is safe as the final path element.
func SanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	// path.Base maps "" to "." and leaves ".." alone; neither is a name.
	if name == "." || name == ".." || name == "/" {
		name = ""
	}
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20, r == 0x7f:
			// drop control characters
		case r == ' ':
			sb.WriteByte('-')
		default:
			sb.WriteRune(r)
		}
	}
	if sb.Len() == 0 {
		return "uploaded-file"
	}
	return sb.String()
}
