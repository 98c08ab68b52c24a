package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxSettleChecks bounds how long a file that keeps growing can hold up the
// queue before it is processed anyway.
const maxSettleChecks = 50

// Run processes the backlog and then watches the ingest directory until ctx
// is cancelled or a persistence error occurs. The watch is registered before
// the backlog scan so files arriving during the scan are not missed; the
// registry makes the resulting duplicate triggers harmless.
func (c *Coordinator) Run(ctx context.Context) error {
	defer c.setState(StateStopped)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(c.opts.IngestDir); err != nil {
		return fmt.Errorf("watch %s: %w", c.opts.IngestDir, err)
	}

	if err := c.RunOnce(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	c.rest = StateWatching
	c.setState(StateWatching)
	c.log.Info("ingest: watching", zap.String("dir", c.opts.IngestDir))

	q := newQueue(c.opts.QueueSize)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if !c.wantsEvent(ev) {
					continue
				}
				if !q.push(gctx, ev.Name) {
					return nil
				}
			case werr, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				c.log.Warn("ingest: watcher error", zap.Error(werr))
			}
		}
	})

	g.Go(func() error {
		for {
			path, ok := q.pop(gctx)
			if !ok {
				return nil
			}
			if err := c.handleEvent(gctx, path); err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	})

	err = g.Wait()
	s := c.Summary()
	c.log.Info("ingest: stopped", s.LogFields()...)
	return err
}

// wantsEvent keeps creations and writes of candidate files. A rename event
// names the old path; the new name arrives as its own create event.
func (c *Coordinator) wantsEvent(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return false
	}
	return c.accepts(ev.Name)
}

// handleEvent settles and processes one queued path. A path that no longer
// exists was moved or deleted after its event and is dropped quietly.
func (c *Coordinator) handleEvent(ctx context.Context, path string) error {
	if !c.settle(ctx, path) {
		return ctx.Err()
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		c.log.Debug("ingest: file gone before processing", zap.String("file", filepath.Base(path)))
		return nil
	}
	_, err := c.ProcessFile(ctx, path)
	return err
}

// settle waits until path's size is unchanged across one SettleDelay. It
// returns false only when ctx is cancelled; a vanished file is left to the
// caller.
func (c *Coordinator) settle(ctx context.Context, path string) bool {
	if c.opts.SettleDelay <= 0 {
		return ctx.Err() == nil
	}
	last := int64(-1)
	for i := 0; i < maxSettleChecks; i++ {
		info, err := os.Stat(path)
		if err != nil {
			return ctx.Err() == nil
		}
		if info.Size() == last {
			return true
		}
		last = info.Size()

		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.opts.SettleDelay):
		}
	}
	c.log.Warn("ingest: file still changing, processing anyway", zap.String("file", filepath.Base(path)))
	return true
}

// queue is a FIFO of paths in which a path appears at most once while it
// waits to be processed.
type queue struct {
	ch      chan string
	mu      sync.Mutex
	pending map[string]bool
}

func newQueue(size int) *queue {
	return &queue{
		ch:      make(chan string, size),
		pending: make(map[string]bool),
	}
}

// push enqueues path unless it is already pending. It blocks while the
// queue is full and returns false if ctx is cancelled meanwhile.
func (q *queue) push(ctx context.Context, path string) bool {
	q.mu.Lock()
	if q.pending[path] {
		q.mu.Unlock()
		return true
	}
	q.pending[path] = true
	q.mu.Unlock()

	select {
	case q.ch <- path:
		return true
	case <-ctx.Done():
		return false
	}
}

// pop dequeues the next path. The path stops being pending before it is
// processed, so writes that land during processing queue it again.
func (q *queue) pop(ctx context.Context) (string, bool) {
	select {
	case path := <-q.ch:
		q.mu.Lock()
		delete(q.pending, path)
		q.mu.Unlock()
		return path, true
	case <-ctx.Done():
		return "", false
	}
}
