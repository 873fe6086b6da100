package host

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Fullex26/smsrelay/internal/config"
	"github.com/Fullex26/smsrelay/internal/store"
	"github.com/Fullex26/smsrelay/pkg/models"
)

const telegramAPI = "https://api.telegram.org"

// offsetKey persists the next update id so a restart does not replay
// commands Telegram has already delivered
const offsetKey = "telegram_offset"

// TelegramBot answers status commands from the configured chat
type TelegramBot struct {
	cfg     *config.Config
	token   string
	chatID  string
	apiBase string
	client  *http.Client
	offset  int
	store   *store.Store
}

func NewTelegramBot(cfg *config.Config, db *store.Store) *TelegramBot {
	return &TelegramBot{
		cfg:     cfg,
		token:   cfg.Notifications.Telegram.BotToken,
		chatID:  cfg.Notifications.Telegram.ChatID,
		apiBase: telegramAPI,
		client:  &http.Client{Timeout: 35 * time.Second},
		store:   db,
	}
}

func (b *TelegramBot) Name() string { return "telegram-bot" }

func (b *TelegramBot) Start(ctx context.Context) error {
	if b.token == "" || b.chatID == "" {
		slog.Info("telegram bot disabled (no token/chat_id)")
		return nil
	}

	b.loadOffset()
	slog.Info("starting telegram bot command handler", "offset", b.offset)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			b.poll(ctx)
		}
	}
}

// poll uses long polling to get updates from Telegram
func (b *TelegramBot) poll(ctx context.Context) {
	apiURL := fmt.Sprintf("%s/bot%s/getUpdates?offset=%d&timeout=30&allowed_updates=[\"message\"]",
		b.apiBase, b.token, b.offset)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return
	}

	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("telegram poll failed", "error", err)
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
		}
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return
	}

	var result struct {
		OK     bool `json:"ok"`
		Result []struct {
			UpdateID int `json:"update_id"`
			Message  struct {
				Chat struct {
					ID int64 `json:"id"`
				} `json:"chat"`
				Text string `json:"text"`
				From struct {
					Username string `json:"username"`
				} `json:"from"`
			} `json:"message"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return
	}

	if len(result.Result) > 0 {
		defer b.saveOffset()
	}

	chatID, _ := strconv.ParseInt(b.chatID, 10, 64)
	for _, update := range result.Result {
		b.offset = update.UpdateID + 1

		// only the configured chat may query the relay
		if update.Message.Chat.ID != chatID {
			slog.Warn("ignoring message from unauthorized chat",
				"chat_id", update.Message.Chat.ID,
				"username", update.Message.From.Username)
			continue
		}

		if reply := b.handleCommand(update.Message.Text); reply != "" {
			b.sendReply(ctx, reply)
		}
	}
}

func (b *TelegramBot) loadOffset() {
	if b.store == nil {
		return
	}
	v, err := b.store.GetState(offsetKey)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Warn("failed to load telegram offset", "error", err)
		}
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		b.offset = n
	}
}

func (b *TelegramBot) saveOffset() {
	if b.store == nil {
		return
	}
	if err := b.store.SetState(offsetKey, strconv.Itoa(b.offset)); err != nil {
		slog.Warn("failed to save telegram offset", "error", err)
	}
}

// handleCommand returns the reply for text, or "" for non-commands
func (b *TelegramBot) handleCommand(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return ""
	}

	cmd := strings.ToLower(strings.Fields(text)[0])
	// commands in groups arrive as /status@botname
	cmd, _, _ = strings.Cut(cmd, "@")
	slog.Info("telegram command received", "command", cmd)

	switch cmd {
	case "/start", "/help":
		return b.cmdHelp()
	case "/status":
		return b.cmdStatus()
	case "/recent", "/logs":
		return b.cmdRecent()
	case "/rules":
		return b.cmdRules()
	default:
		return fmt.Sprintf("Unknown command: %s\nSend /help for available commands.", html.EscapeString(cmd))
	}
}

func (b *TelegramBot) sendReply(ctx context.Context, text string) {
	apiURL := fmt.Sprintf("%s/bot%s/sendMessage", b.apiBase, b.token)

	data := url.Values{}
	data.Set("chat_id", b.chatID)
	data.Set("parse_mode", "HTML")
	data.Set("text", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(data.Encode()))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.client.Do(req)
	if err != nil {
		slog.Error("telegram reply failed", "error", err)
		return
	}
	resp.Body.Close()
}

// ── Command implementations ──

func (b *TelegramBot) cmdHelp() string {
	return `💬 <b>SMSRelay Commands</b>

/status — Runs and deliveries (24h)
/recent — Latest runs and deliveries
/rules — Forwarding rules and sinks`
}

func (b *TelegramBot) cmdStatus() string {
	if b.store == nil {
		return "❌ Record store not available"
	}

	counts, err := b.store.GetRunCounts(24)
	if err != nil {
		return "❌ Failed to read runs"
	}
	stats, err := b.store.GetSinkStats(24)
	if err != nil {
		return "❌ Failed to read deliveries"
	}
	lastRun, _ := b.store.GetLastRunTime()

	var sb strings.Builder
	sb.WriteString("💬 <b>SMSRelay — last 24h</b>\n\n")
	sb.WriteString(fmt.Sprintf("  ✅ Completed: %d\n  ❌ Aborted: %d\n  ⏱️ Last run: %s\n",
		counts["completed"], counts["aborted"], lastRun))

	if len(stats) > 0 {
		sb.WriteString("\n<b>Deliveries</b>\n")
	}
	for _, s := range stats {
		total := s.Delivered + s.Failed
		percent := 0
		if total > 0 {
			percent = s.Delivered * 100 / total
		}
		sb.WriteString(fmt.Sprintf("  %s %s %d%% (%d/%d)\n",
			html.EscapeString(s.Sink), progressBar(percent), percent, s.Delivered, total))
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func (b *TelegramBot) cmdRecent() string {
	if b.store == nil {
		return "❌ Record store not available"
	}

	records, err := b.store.GetRecentRecords(24)
	if err != nil {
		return "❌ Failed to read records"
	}
	if len(records) == 0 {
		return "✅ No activity in last 24 hours"
	}

	var sb strings.Builder
	sb.WriteString("📋 <b>Recent Activity (24h)</b>\n\n")

	limit := 15
	if len(records) < limit {
		limit = len(records)
	}
	loc := b.cfg.Location()
	for _, r := range records[:limit] {
		sb.WriteString(fmt.Sprintf("%s <code>%s</code> %s\n",
			recordEmoji(r), r.Timestamp.In(loc).Format("15:04"), html.EscapeString(describeRecord(r))))
	}
	if len(records) > limit {
		sb.WriteString(fmt.Sprintf("\n... and %d more", len(records)-limit))
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func (b *TelegramBot) cmdRules() string {
	var sb strings.Builder
	sb.WriteString("📜 <b>Forwarding Rules</b>\n\n")
	sb.WriteString(fmt.Sprintf("Every SMS → <b>gotify</b> (%s)\n", html.EscapeString(b.cfg.Primary.URL)))
	for _, r := range b.cfg.Rules {
		sb.WriteString(fmt.Sprintf("<code>%s</code> → %s\n",
			html.EscapeString(r.Pattern), html.EscapeString(strings.Join(r.Sinks, ", "))))
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func recordEmoji(r models.Record) string {
	switch {
	case r.Kind == models.RecordDelivery && r.Outcome != nil && r.Outcome.Success:
		return models.SeveritySuccess.Emoji()
	case r.Kind == models.RecordRun && r.State == "completed":
		return models.SeverityInfo.Emoji()
	default:
		return models.SeverityError.Emoji()
	}
}

func describeRecord(r models.Record) string {
	if r.Kind == models.RecordDelivery && r.Outcome != nil {
		if r.Outcome.Success {
			return fmt.Sprintf("delivered to %s (%d)", r.Outcome.Sink, r.Outcome.StatusCode)
		}
		return truncate(fmt.Sprintf("%s failed: %s", r.Outcome.Sink, r.Outcome.Error), 120)
	}
	if r.Error != "" {
		return truncate(fmt.Sprintf("run %s: %s", r.State, r.Error), 120)
	}
	return "run " + r.State
}

// progressBar creates a visual bar like [████████░░]
func progressBar(percent int) string {
	filled := percent / 10
	if filled > 10 {
		filled = 10
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", 10-filled) + "]"
}

// truncate limits string length in runes
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
