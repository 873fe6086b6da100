package host

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultSettle is how long a file must go without further writes before
// it is read
const defaultSettle = 250 * time.Millisecond

// Spool runs one invocation per *.json file dropped into a directory.
// Completion removes the file. A file is read only once writes to it have
// settled, so writers may rename into place or write in chunks.
type Spool struct {
	dir    string
	runner Runner
	settle time.Duration

	mu       sync.Mutex
	inflight map[string]bool
	pending  map[string]*time.Timer
}

func NewSpool(dir string, runner Runner) *Spool {
	return &Spool{
		dir:      dir,
		runner:   runner,
		settle:   defaultSettle,
		inflight: make(map[string]bool),
		pending:  make(map[string]*time.Timer),
	}
}

func (s *Spool) Name() string { return "spool" }

// Start processes files already present, then watches for new ones until
// ctx is cancelled.
func (s *Spool) Start(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0750); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return err
	}
	slog.Info("spool host watching", "dir", s.dir)

	s.Scan()

	defer s.stopPending()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			s.schedule(event.Name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("spool watcher error", "error", err)
		}
	}
}

// schedule processes path once it has seen no events for the settle
// period. Every new event restarts the wait.
func (s *Spool) schedule(path string) {
	if !strings.HasSuffix(path, ".json") {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.pending[path]; ok {
		t.Reset(s.settle)
		return
	}
	s.pending[path] = time.AfterFunc(s.settle, func() {
		s.mu.Lock()
		delete(s.pending, path)
		s.mu.Unlock()
		s.Process(path)
	})
}

func (s *Spool) stopPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, t := range s.pending {
		t.Stop()
		delete(s.pending, path)
	}
}

// Scan processes every payload currently in the directory
func (s *Spool) Scan() {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		slog.Error("spool scan failed", "dir", s.dir, "error", err)
		return
	}
	for _, path := range matches {
		s.Process(path)
	}
}

// Process runs the pipeline on one file. A file already being processed,
// or one without the .json suffix, is ignored.
func (s *Spool) Process(path string) {
	if !strings.HasSuffix(path, ".json") {
		return
	}

	s.mu.Lock()
	if s.inflight[path] {
		s.mu.Unlock()
		return
	}
	s.inflight[path] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inflight, path)
		s.mu.Unlock()
	}()

	raw, err := os.ReadFile(path)
	if err != nil {
		// removed between the event and the read
		if !os.IsNotExist(err) {
			slog.Error("reading spool file", "path", path, "error", err)
		}
		return
	}

	res := s.runner.Run(raw, func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Error("removing spool file", "path", path, "error", err)
		}
	})
	slog.Debug("spool file handled", "path", path, "run", res.RunID, "state", res.State)
}
