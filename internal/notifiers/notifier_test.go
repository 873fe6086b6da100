package notifiers

import (
	"testing"

	"github.com/Fullex26/smsrelay/internal/config"
)

// Compile-time checks that all notifier types implement the Notifier interface.
var (
	_ Notifier = (*Telegram)(nil)
	_ Notifier = (*Discord)(nil)
	_ Notifier = (*Ntfy)(nil)
	_ Notifier = (*Log)(nil)
	_ Notifier = (*Multi)(nil)
	_ Notifier = (*Recorder)(nil)
)

func TestFromConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.NotificationConfig
		want string
	}{
		{"none", config.NotificationConfig{}, "log"},
		{"telegram", config.NotificationConfig{Telegram: config.TelegramConfig{Enabled: true}}, "telegram"},
		{"ntfy", config.NotificationConfig{Ntfy: config.NtfyConfig{Enabled: true}}, "ntfy"},
		{"discord", config.NotificationConfig{Discord: config.DiscordConfig{Enabled: true}}, "discord"},
		{"several", config.NotificationConfig{
			Ntfy:    config.NtfyConfig{Enabled: true},
			Discord: config.DiscordConfig{Enabled: true},
		}, "multi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromConfig(tt.cfg).Name(); got != tt.want {
				t.Errorf("FromConfig().Name() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMulti_PostsToAll(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	m := NewMulti(a, b)

	if err := m.Post("t", "s", "b"); err != nil {
		t.Fatalf("Post() error: %v", err)
	}
	if len(a.Posted()) != 1 || len(b.Posted()) != 1 {
		t.Errorf("a=%d b=%d, want 1 each", len(a.Posted()), len(b.Posted()))
	}
}

func TestMulti_JoinsErrors(t *testing.T) {
	rec := NewRecorder()
	f := &failingNotifier{}
	m := NewMulti(f, rec)

	err := m.Post("t", "", "b")
	if err == nil {
		t.Fatal("expected error from failing notifier")
	}
	if len(rec.Posted()) != 1 {
		t.Error("a failing notifier must not stop the others")
	}

	if err := m.Test(); err == nil {
		t.Error("Test() should report the failing notifier")
	}
}

func TestRecorder_Count(t *testing.T) {
	rec := NewRecorder()
	rec.Post("✅ one", "", "")
	rec.Post("❌ two", "", "")
	rec.Post("✅ three", "", "")

	if got := rec.Count("✅"); got != 2 {
		t.Errorf("Count(✅) = %d, want 2", got)
	}
	if got := rec.Count("❌"); got != 1 {
		t.Errorf("Count(❌) = %d, want 1", got)
	}
}

func TestLog_Post(t *testing.T) {
	if err := NewLog().Post("t", "s", "b"); err != nil {
		t.Errorf("Post() error: %v", err)
	}
}
