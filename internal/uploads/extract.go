package uploads

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/chatport/chatport/internal/ids"
	"github.com/chatport/chatport/internal/source"
	"github.com/chatport/chatport/internal/zerver"
)

// UploadRecord is one entry of uploads/records.json, describing a relocated
// physical file.
type UploadRecord struct {
	Path         string `json:"path"`
	S3Path       string `json:"s3_path"`
	RealmID      int    `json:"realm_id"`
	UserProfile  int    `json:"user_profile_id"`
	Size         int64  `json:"size"`
	LastModified int64  `json:"last_modified"`
}

// DownloadFunc queues a remote file for download to the given target path
// within the upload storage.  Wired to the downloader pool by the converter.
type DownloadFunc func(url, trgpath string)

// Extractor relocates message files and accumulates attachment records,
// deduplicated by the source file's stable identifier.
type Extractor struct {
	storage  Storage
	realmID  int
	seq      *ids.Sequencer
	srcRoot  string       // export bundle root, for LocalPath resolution
	download DownloadFunc // nil when the source has no remote files
	lg       *slog.Logger

	byFile  map[string]*zerver.Attachment // source file id -> attachment
	pathFor map[string]string             // source file id -> target path
	records []UploadRecord
	order   []string // file ids in first-seen order
}

type ExtractorOption func(*Extractor)

// WithDownloader sets the remote download hook.
func WithDownloader(fn DownloadFunc) ExtractorOption {
	return func(e *Extractor) {
		e.download = fn
	}
}

// WithLogger sets the logger.
func WithLogger(lg *slog.Logger) ExtractorOption {
	return func(e *Extractor) {
		if lg != nil {
			e.lg = lg
		}
	}
}

func NewExtractor(storage Storage, realmID int, seq *ids.Sequencer, srcRoot string, opt ...ExtractorOption) *Extractor {
	e := &Extractor{
		storage: storage,
		realmID: realmID,
		seq:     seq,
		srcRoot: srcRoot,
		lg:      slog.Default(),
		byFile:  make(map[string]*zerver.Attachment),
		pathFor: make(map[string]string),
	}
	for _, o := range opt {
		o(e)
	}
	return e
}

// Result is the flag set Extract reports back for the message record.
type Result struct {
	Suffix        string // markdown links to append to the message body
	HasAttachment bool
	HasImage      bool
	HasLink       bool
}

// Extract relocates every file of the message and returns the markdown link
// suffix plus the message flags.  A file already seen in this run (same
// source file referenced from another message, e.g. a thread reply) only
// extends the existing attachment's message list.
func (e *Extractor) Extract(msg *source.Message, msgID, senderID int) Result {
	var res Result
	var links []string
	for _, f := range msg.Files {
		trgpath, known := e.pathFor[f.ID]
		if !known {
			trgpath = UploadPath(e.realmID, f.Name)
			e.pathFor[f.ID] = trgpath
			size := e.place(f, trgpath)
			att := zerver.NewAttachment(e.seq.Next("attachment"), senderID, e.realmID,
				SanitizeName(f.Name), trgpath, size, msg.TS, msgID)
			e.byFile[f.ID] = &att
			e.order = append(e.order, f.ID)
			e.records = append(e.records, UploadRecord{
				Path:         trgpath,
				S3Path:       trgpath,
				RealmID:      e.realmID,
				UserProfile:  senderID,
				Size:         size,
				LastModified: msg.TS,
			})
		} else {
			att := e.byFile[f.ID]
			if !contains(att.Messages, msgID) {
				att.Messages = append(att.Messages, msgID)
			}
		}

		links = append(links, fmt.Sprintf("[%s](/user_uploads/%s)", SanitizeName(f.Name), trgpath))
		res.HasAttachment = true
		res.HasLink = true
		if f.IsImage {
			res.HasImage = true
		}
	}
	res.Suffix = strings.Join(links, "\n")
	return res
}

// place moves the physical bytes into storage and returns the stored size.
// A local file missing from the bundle is synthesised as an empty file:
// export bundles are routinely inconsistent about files, and one lost
// attachment must not abort the run.
func (e *Extractor) place(f source.FileRef, trgpath string) int64 {
	if f.URL != "" {
		if e.download != nil {
			e.download(f.URL, trgpath)
		}
		return f.Size
	}
	in, err := os.Open(e.localPath(f))
	if err != nil {
		e.lg.Warn("attachment file missing from bundle, synthesising empty file",
			"file", f.Name, "path", f.LocalPath, "err", err)
		if _, err := e.storage.Put(trgpath, bytes.NewReader(nil)); err != nil {
			e.lg.Warn("failed to write placeholder", "path", trgpath, "err", err)
		}
		return 0
	}
	defer in.Close()
	n, err := e.storage.Put(trgpath, in)
	if err != nil {
		e.lg.Warn("failed to store attachment", "path", trgpath, "err", err)
		return 0
	}
	e.lg.Debug("attachment stored", "path", trgpath, "size", humanize.Bytes(uint64(n)))
	return n
}

func (e *Extractor) localPath(f source.FileRef) string {
	if strings.HasPrefix(f.LocalPath, "/") {
		return f.LocalPath
	}
	return e.srcRoot + "/" + f.LocalPath
}

// Attachments returns the accumulated attachment records in first-seen
// order.
func (e *Extractor) Attachments() []zerver.Attachment {
	out := make([]zerver.Attachment, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, *e.byFile[id])
	}
	return out
}

// Records returns the upload metadata records.
func (e *Extractor) Records() []UploadRecord {
	return e.records
}

func contains(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
