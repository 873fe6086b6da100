package daemon

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Fullex26/smsrelay/internal/config"
	"github.com/Fullex26/smsrelay/internal/notifiers"
	"github.com/Fullex26/smsrelay/internal/pipeline"
	"github.com/Fullex26/smsrelay/pkg/models"
)

func newTestDaemon(t *testing.T, primaryStatus int) (*Daemon, *notifiers.Recorder, *atomic.Int32) {
	t.Helper()
	return newTestDaemonWith(t, primaryStatus, nil)
}

func newTestDaemonWith(t *testing.T, primaryStatus int, mutate func(*config.Config)) (*Daemon, *notifiers.Recorder, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(primaryStatus)
	}))
	t.Cleanup(primary.Close)
	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	t.Cleanup(secondary.Close)

	cfg := config.DefaultConfig()
	cfg.Primary.URL = primary.URL
	cfg.Primary.Token = "tok"
	cfg.Secondary[0].URL = secondary.URL
	cfg.Store.Path = filepath.Join(t.TempDir(), "state", "relay.db")
	if mutate != nil {
		mutate(cfg)
	}

	rec := notifiers.NewRecorder()
	d, err := New(cfg, WithChannel(rec))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return d, rec, &calls
}

const matchingPayload = `{"query":{"sender":"10086","message":{"text":"权益超市"}}}`

func TestProcess_RecordsRunAndDeliveries(t *testing.T) {
	d, _, calls := newTestDaemon(t, http.StatusOK)

	res := d.Process([]byte(matchingPayload))
	if res.State != pipeline.StateCompleted {
		t.Fatalf("result = %+v", res)
	}
	if calls.Load() != 2 {
		t.Errorf("sink calls = %d, want 2", calls.Load())
	}
	d.bus.Drain()

	counts, err := d.Store().GetRunCounts(1)
	if err != nil {
		t.Fatalf("GetRunCounts: %v", err)
	}
	if counts["completed"] != 1 {
		t.Errorf("run counts = %v", counts)
	}

	stats, err := d.Store().GetSinkStats(1)
	if err != nil {
		t.Fatalf("GetSinkStats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("sink stats = %+v, want 2 sinks", stats)
	}
	for _, s := range stats {
		if s.Delivered != 1 || s.Failed != 0 {
			t.Errorf("stats for %s = %+v", s.Sink, s)
		}
	}

	var sb strings.Builder
	if err := d.Metrics().Write(&sb); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.Contains(sb.String(), `smsrelay_deliveries_total{result="success",sink="gotify"} 1`) {
		t.Errorf("metrics missing gotify delivery:\n%s", sb.String())
	}

	d.Close()
}

func TestProcess_FailedDeliveryRecorded(t *testing.T) {
	unreachable := httptest.NewServer(http.NotFoundHandler())
	unreachable.Close()
	d, rec, _ := newTestDaemonWith(t, http.StatusOK, func(c *config.Config) {
		c.Primary.URL = unreachable.URL
	})
	defer d.Close()

	d.Process([]byte(`{"query":{"message":{"text":"hello"}}}`))
	d.bus.Drain()

	stats, _ := d.Store().GetSinkStats(1)
	if len(stats) != 1 || stats[0].Sink != "gotify" || stats[0].Failed != 1 {
		t.Errorf("sink stats = %+v", stats)
	}
	if rec.Count("❌ Forward to gotify failed") != 1 {
		t.Errorf("notifications = %+v", rec.Posted())
	}
}

func TestProcess_ErrorStatusRecordedAsDelivered(t *testing.T) {
	d, rec, _ := newTestDaemon(t, http.StatusBadGateway)
	defer d.Close()

	d.Process([]byte(`{"query":{"message":{"text":"hello"}}}`))
	d.bus.Drain()

	stats, _ := d.Store().GetSinkStats(1)
	if len(stats) != 1 || stats[0].Delivered != 1 || stats[0].Failed != 0 {
		t.Errorf("sink stats = %+v", stats)
	}
	if rec.Count("⚠️ gotify rejected the request") != 1 {
		t.Errorf("notifications = %+v", rec.Posted())
	}
}

func TestProcess_AbortedRun(t *testing.T) {
	d, rec, calls := newTestDaemon(t, http.StatusOK)
	defer d.Close()

	res := d.Process([]byte(`{}`))
	if res.State != pipeline.StateAborted {
		t.Fatalf("result = %+v", res)
	}
	if calls.Load() != 0 {
		t.Error("aborted run must not call any sink")
	}
	if rec.Count(models.SeverityError.Emoji()) != 1 {
		t.Errorf("notifications = %+v", rec.Posted())
	}

	d.bus.Drain()
	counts, _ := d.Store().GetRunCounts(1)
	if counts["aborted"] != 1 {
		t.Errorf("run counts = %v", counts)
	}
}

func TestHandler_PostSMS(t *testing.T) {
	d, _, calls := newTestDaemon(t, http.StatusOK)
	defer d.Close()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sms", strings.NewReader(matchingPayload))
	d.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK || rr.Body.String() != "{}" {
		t.Errorf("response = %d %q", rr.Code, rr.Body.String())
	}
	d.dispatcher.Wait()
	if calls.Load() != 2 {
		t.Errorf("sink calls = %d, want 2", calls.Load())
	}
}

func TestTestSinks(t *testing.T) {
	d, rec, calls := newTestDaemon(t, http.StatusOK)
	defer d.Close()

	if err := d.TestSinks(); err != nil {
		t.Fatalf("TestSinks() error: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("sink calls = %d, want 2", calls.Load())
	}
	if len(rec.Posted()) != 1 {
		t.Errorf("channel should receive one test message, got %+v", rec.Posted())
	}
}

func TestTestSinks_ReportsFailure(t *testing.T) {
	d, _, _ := newTestDaemon(t, http.StatusUnauthorized)
	defer d.Close()

	err := d.TestSinks()
	if err == nil {
		t.Fatal("expected error from failing primary")
	}
	if !strings.Contains(err.Error(), "gotify") {
		t.Errorf("error = %q, want it to name the sink", err.Error())
	}
}

func TestPrune_Disabled(t *testing.T) {
	d, _, _ := newTestDaemon(t, http.StatusOK)
	defer d.Close()

	d.cfg.Store.RetentionDays = 0
	d.prune()
}

func TestNew_SpoolHost(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Store.Path = filepath.Join(t.TempDir(), "relay.db")
	cfg.Spool = config.SpoolConfig{Enabled: true, Dir: t.TempDir()}

	d, err := New(cfg, WithChannel(notifiers.NewRecorder()))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer d.Close()

	names := make([]string, 0, len(d.hosts))
	for _, h := range d.hosts {
		names = append(names, h.Name())
	}
	if strings.Join(names, ",") != "http,spool" {
		t.Errorf("hosts = %v", names)
	}
}
