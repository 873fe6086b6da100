package host

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Fullex26/smsrelay/internal/config"
	"github.com/Fullex26/smsrelay/internal/store"
	"github.com/Fullex26/smsrelay/pkg/models"
)

func newTestBot(t *testing.T) (*TelegramBot, *store.Store) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.DefaultConfig()
	cfg.Notifications.Telegram = config.TelegramConfig{Enabled: true, BotToken: "tok", ChatID: "42", Interactive: true}
	return NewTelegramBot(cfg, db), db
}

func TestTelegramBot_Name(t *testing.T) {
	b := &TelegramBot{}
	if got := b.Name(); got != "telegram-bot" {
		t.Errorf("Name() = %q, want %q", got, "telegram-bot")
	}
}

func TestTelegramBot_DisabledWithoutToken(t *testing.T) {
	b := NewTelegramBot(config.DefaultConfig(), nil)
	if err := b.Start(context.Background()); err != nil {
		t.Errorf("Start() = %v, want nil", err)
	}
}

func TestHandleCommand(t *testing.T) {
	b, _ := newTestBot(t)

	tests := []struct {
		text string
		want string
	}{
		{"/help", "/status"},
		{"/start", "/recent"},
		{"/status", "Completed: 0"},
		{"/status@smsrelay_bot", "Completed: 0"},
		{"/recent", "No activity"},
		{"/rules", "(权益超市|和生活)"},
		{"/bogus", "Unknown command: /bogus"},
		{"hello", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := b.handleCommand(tt.text)
			if tt.want == "" {
				if got != "" {
					t.Errorf("non-command should get no reply, got %q", got)
				}
				return
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("handleCommand(%q) = %q, want it to contain %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestCmdStatus_WithRecords(t *testing.T) {
	b, db := newTestBot(t)
	now := time.Now()
	records := []models.Record{
		{ID: "1", Kind: models.RecordRun, RunID: "r1", Timestamp: now, State: "completed"},
		{ID: "2", Kind: models.RecordRun, RunID: "r2", Timestamp: now, State: "aborted", Error: "parse error"},
		{ID: "3", Kind: models.RecordDelivery, RunID: "r1", Timestamp: now, State: "delivered",
			Outcome: &models.DispatchOutcome{RunID: "r1", Sink: "gotify", Success: true, StatusCode: 200}},
		{ID: "4", Kind: models.RecordDelivery, RunID: "r1", Timestamp: now, State: "failed",
			Outcome: &models.DispatchOutcome{RunID: "r1", Sink: "conditional", Error: "timeout"}},
	}
	for _, r := range records {
		if err := db.SaveRecord(r); err != nil {
			t.Fatalf("SaveRecord: %v", err)
		}
	}

	status := b.cmdStatus()
	for _, want := range []string{"Completed: 1", "Aborted: 1", "gotify [██████████] 100% (1/1)", "conditional [░░░░░░░░░░] 0% (0/1)"} {
		if !strings.Contains(status, want) {
			t.Errorf("status missing %q:\n%s", want, status)
		}
	}

	recent := b.cmdRecent()
	for _, want := range []string{"delivered to gotify (200)", "conditional failed: timeout", "run aborted: parse error"} {
		if !strings.Contains(recent, want) {
			t.Errorf("recent missing %q:\n%s", want, recent)
		}
	}
}

func TestCmdStatus_NoStore(t *testing.T) {
	b := NewTelegramBot(config.DefaultConfig(), nil)
	if got := b.cmdStatus(); !strings.Contains(got, "not available") {
		t.Errorf("cmdStatus() = %q", got)
	}
	if got := b.cmdRecent(); !strings.Contains(got, "not available") {
		t.Errorf("cmdRecent() = %q", got)
	}
}

func TestPoll_RepliesOnlyToConfiguredChat(t *testing.T) {
	var mu sync.Mutex
	var replies []url.Values

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			_, _ = io.WriteString(w, `{"ok":true,"result":[
				{"update_id":7,"message":{"chat":{"id":42},"text":"/help"}},
				{"update_id":8,"message":{"chat":{"id":99},"text":"/status","from":{"username":"mallory"}}}
			]}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			r.ParseForm()
			mu.Lock()
			replies = append(replies, r.PostForm)
			mu.Unlock()
			_, _ = io.WriteString(w, `{"ok":true}`)
		}
	}))
	defer srv.Close()

	b, _ := newTestBot(t)
	b.apiBase = srv.URL
	b.poll(context.Background())

	if b.offset != 9 {
		t.Errorf("offset = %d, want 9", b.offset)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(replies) != 1 {
		t.Fatalf("replies = %d, want 1", len(replies))
	}
	if replies[0].Get("chat_id") != "42" || replies[0].Get("parse_mode") != "HTML" {
		t.Errorf("reply form = %v", replies[0])
	}
	if !strings.Contains(replies[0].Get("text"), "SMSRelay Commands") {
		t.Errorf("reply text = %q", replies[0].Get("text"))
	}
}

func TestPoll_OffsetSurvivesRestart(t *testing.T) {
	var mu sync.Mutex
	var offsets []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/getUpdates") {
			return
		}
		mu.Lock()
		offsets = append(offsets, r.URL.Query().Get("offset"))
		first := len(offsets) == 1
		mu.Unlock()
		if first {
			_, _ = io.WriteString(w, `{"ok":true,"result":[{"update_id":41,"message":{"chat":{"id":42},"text":"hi"}}]}`)
			return
		}
		_, _ = io.WriteString(w, `{"ok":true,"result":[]}`)
	}))
	defer srv.Close()

	b, db := newTestBot(t)
	b.apiBase = srv.URL
	b.poll(context.Background())

	if v, err := db.GetState(offsetKey); err != nil || v != "42" {
		t.Fatalf("stored offset = %q, %v; want 42", v, err)
	}

	// a fresh bot on the same store resumes from the saved offset
	restarted := NewTelegramBot(b.cfg, db)
	restarted.apiBase = srv.URL
	restarted.loadOffset()
	restarted.poll(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(offsets) != 2 || offsets[0] != "0" || offsets[1] != "42" {
		t.Errorf("requested offsets = %v, want [0 42]", offsets)
	}
}

func TestLoadOffset_Missing(t *testing.T) {
	b, _ := newTestBot(t)
	b.loadOffset()
	if b.offset != 0 {
		t.Errorf("offset = %d, want 0 with nothing stored", b.offset)
	}
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		percent int
		want    string
	}{
		{0, "[░░░░░░░░░░]"},
		{10, "[█░░░░░░░░░]"},
		{50, "[█████░░░░░]"},
		{100, "[██████████]"},
		{110, "[██████████]"}, // capped
		{-5, "[░░░░░░░░░░]"},
	}
	for _, tt := range tests {
		if got := progressBar(tt.percent); got != tt.want {
			t.Errorf("progressBar(%d) = %q, want %q", tt.percent, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		s    string
		max  int
		want string
	}{
		{"short", "short", 10, "short"},
		{"exact", "exact", 5, "exact"},
		{"long", "long string here", 5, "long ..."},
		{"runes", "权益超市消费", 4, "权益超市..."},
		{"empty", "", 5, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncate(tt.s, tt.max); got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.s, tt.max, got, tt.want)
			}
		})
	}
}
