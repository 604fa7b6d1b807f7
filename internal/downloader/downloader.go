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

// Package downloader provides the bounded worker-pool file fetcher used for
// avatars, custom emoji images and remote message attachments.  Downloads
// are side-effect-free with respect to each other (independent files at
// distinct paths), so the workers share nothing but the request channel; a
// single failed download is logged and counted, never propagated.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"sync"
	"sync/atomic"

	"github.com/rusq/fsadapter"
	"golang.org/x/time/rate"

	"github.com/chatport/chatport/internal/network"
)

const (
	defRetries    = 3   // attempts per file
	defNumWorkers = 4   // download goroutines
	defLimit      = 20  // requests per second
	defFileBufSz  = 100 // request channel buffer
)

var (
	ErrNoFS       = errors.New("fs adapter not initialised")
	ErrNotStarted = errors.New("downloader not started")
)

// Getter fetches the contents of a URL into the writer.  It exists primarily
// for mocking in tests.
type Getter interface {
	Get(ctx context.Context, url string, w io.Writer) error
}

// HTTPGetter is the production Getter over an http.Client.
type HTTPGetter struct {
	Client *http.Client
}

func (g *HTTPGetter) Get(ctx context.Context, url string, w io.Writer) error {
	cl := g.Client
	if cl == nil {
		cl = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := cl.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &network.StatusError{Code: resp.StatusCode, Status: resp.Status}
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

// Client is the downloader instance.  Zero value is not usable, use New.
type Client struct {
	g       Getter
	fsa     fsadapter.FS
	limiter *rate.Limiter
	lg      *slog.Logger

	retries int
	workers int

	mu       sync.Mutex // guards start/stop
	requests chan request
	wg       *sync.WaitGroup
	started  bool

	failed atomic.Int64
}

type request struct {
	fullpath string
	url      string
}

// Option is the functional option for New.
type Option func(*Client)

// Limiter uses the given limiter instead of the built-in one.
func Limiter(l *rate.Limiter) Option {
	return func(c *Client) {
		if l != nil {
			c.limiter = l
		}
	}
}

// Retries sets the number of attempts per file.
func Retries(n int) Option {
	return func(c *Client) {
		if n <= 0 {
			n = defRetries
		}
		c.retries = n
	}
}

// Workers sets the worker count.
func Workers(n int) Option {
	return func(c *Client) {
		if n <= 0 {
			n = defNumWorkers
		}
		c.workers = n
	}
}

// WithLogger sets the logger.
func WithLogger(lg *slog.Logger) Option {
	return func(c *Client) {
		if lg != nil {
			c.lg = lg
		}
	}
}

// New initialises a downloader writing through the given adapter.
func New(g Getter, fsa fsadapter.FS, opts ...Option) *Client {
	if g == nil {
		// better safe than sorry
		panic("programming error: getter is nil")
	}
	c := &Client{
		g:       g,
		fsa:     fsa,
		limiter: rate.NewLimiter(defLimit, 1),
		lg:      slog.Default(),
		retries: defRetries,
		workers: defNumWorkers,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start starts the worker pool.  If already started, it does nothing.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return
	}
	req := make(chan request, defFileBufSz)
	c.requests = req
	c.wg = c.startWorkers(ctx, req)
	c.started = true
}

func (c *Client) startWorkers(ctx context.Context, req <-chan request) *sync.WaitGroup {
	if c.workers == 0 {
		c.workers = defNumWorkers
	}
	seenC := c.fltSeen(req)
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func(workerNum int) {
			c.worker(ctx, seenC)
			wg.Done()
			c.lg.Debug("download worker terminated", "worker", workerNum)
		}(i)
	}
	return &wg
}

// fltSeen drops requests for URLs that have already been queued, so the same
// file referenced from several messages is fetched once.
func (c *Client) fltSeen(reqC <-chan request) <-chan request {
	filtered := make(chan request)
	go func() {
		defer close(filtered)
		seen := make(map[string]bool)
		for r := range reqC {
			if seen[r.url] {
				c.lg.Debug("already seen, skipping", "url", r.url)
				continue
			}
			seen[r.url] = true
			filtered <- r
		}
	}()
	return filtered
}

// worker pulls requests until the channel closes or the context is done.
func (c *Client) worker(ctx context.Context, reqC <-chan request) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, more := <-reqC:
			if !more {
				return
			}
			n, err := c.download(ctx, req.fullpath, req.url)
			if err != nil {
				c.failed.Add(1)
				c.lg.Warn("download failed", "url", path.Base(req.url), "path", req.fullpath, "err", err)
				break
			}
			c.lg.Debug("file saved", "path", req.fullpath, "bytes", n)
		}
	}
}

// download fetches one URL into a temporary file, then copies it into the
// adapter.  The temp file keeps a partially-fetched body out of the output
// tree.
func (c *Client) download(ctx context.Context, fullpath, url string) (int64, error) {
	if c.fsa == nil {
		return 0, ErrNoFS
	}
	tf, err := os.CreateTemp("", "")
	if err != nil {
		return 0, err
	}
	defer func() {
		tf.Close()
		os.Remove(tf.Name())
	}()

	if err := network.WithRetry(ctx, c.limiter, c.retries, func() error {
		if _, err := tf.Seek(0, io.SeekStart); err != nil {
			return err
		}
		if err := tf.Truncate(0); err != nil {
			return err
		}
		if err := c.g.Get(ctx, url, tf); err != nil {
			return fmt.Errorf("download to %q failed, [src=%s]: %w", fullpath, url, err)
		}
		return nil
	}); err != nil {
		return 0, err
	}

	if _, err := tf.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	out, err := c.fsa.Create(fullpath)
	if err != nil {
		return 0, err
	}
	defer out.Close()
	return io.Copy(out, tf)
}

// Download queues one file.  It returns ErrNotStarted if Start was not
// called.  Blocks when the request buffer is full.
func (c *Client) Download(fullpath, url string) error {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()

	if !started {
		return ErrNotStarted
	}
	c.requests <- request{fullpath: fullpath, url: url}
	return nil
}

// Stop waits for all queued transfers to finish and stops the pool.
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return
	}
	close(c.requests)
	c.wg.Wait()
	c.requests = nil
	c.wg = nil
	c.started = false
}

// Failed returns the number of downloads that did not complete.
func (c *Client) Failed() int {
	return int(c.failed.Load())
}
