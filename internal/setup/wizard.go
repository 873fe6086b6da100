// Package setup implements the interactive SMSRelay setup wizard.
package setup

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/Fullex26/smsrelay/internal/config"
	"github.com/Fullex26/smsrelay/internal/keychain"
)

const DefaultEnvPath = "/etc/smsrelay/env"

const (
	tokenEnvVar     = "SMSRELAY_GOTIFY_TOKEN"
	keychainAccount = "gotify"
)

// defaultConfigTemplate is written when no config file exists yet.
// Keep in sync with config.DefaultConfig.
const defaultConfigTemplate = `# SMSRelay Configuration

# ── Primary sink: every intercepted SMS goes here ──
primary:
  url: "https://gotify.cn/message"
  token: "${SMSRELAY_GOTIFY_TOKEN}"
  title: "iPhone 🆕💬"
  priority: 5

# ── Secondary sinks, used only when a rule matches ──
secondary:
  - name: "conditional"
    url: "http://127.0.0.1:8000/hsh?z5"

# ── Rules (case-insensitive regular expressions) ──
rules:
  - name: "conditional"
    pattern: "(权益超市|和生活)"
    sinks: ["conditional"]

http:
  timeout: "10s"

# ── Operator notifications ──
notifications:
  detailed: true
  debug: false
  subtitle: ""
  telegram:
    enabled: false
    bot_token: "${SMSRELAY_TELEGRAM_TOKEN}"
    chat_id: "${SMSRELAY_TELEGRAM_CHAT_ID}"
    interactive: true  # Enable /commands in Telegram
  ntfy:
    enabled: false
    topic: "smsrelay"
    server: "https://ntfy.sh"
    token: ""
  discord:
    enabled: false
    webhook_url: "${SMSRELAY_DISCORD_WEBHOOK}"

timezone: "Asia/Shanghai"

# ── Interception hosts ──
server:
  listen: "127.0.0.1:8787"

spool:
  enabled: false
  dir: "/var/spool/smsrelay"

# ── Run and delivery history ──
store:
  path: "/var/lib/smsrelay/relay.db"
  retention_days: 30
`

type wizardAnswers struct {
	gotifyURL      string
	token          string
	useKeychain    bool
	conditionalURL string
	pattern        string
	channel        string            // "", telegram, discord or ntfy
	envVars        map[string]string // written to env file
	ntfyTopic      string
	ntfyServer     string
	detailed       bool
	debug          bool
}

// Run is the entry point for the interactive setup wizard.
func Run(configPath, envPath string) error {
	fmt.Println()
	fmt.Println("💬 SMSRelay Setup")
	fmt.Println("─────────────────")
	fmt.Println()

	if err := ensureConfig(configPath); err != nil {
		return err
	}

	r := bufio.NewReader(os.Stdin)
	a := wizardAnswers{envVars: make(map[string]string)}

	// ── Primary sink ────────────────────────────────────────────
	fmt.Println("  Gotify (primary sink)")
	fmt.Println("  ──────────────────────────────────────────────────────────")
	fmt.Print("  Message URL [https://gotify.cn/message]: ")
	a.gotifyURL = strings.TrimSpace(readLine(r))

	token, err := readMasked(r, "  App token:   ")
	if err != nil {
		return err
	}
	a.token = strings.TrimSpace(token)

	if a.token != "" {
		fmt.Println()
		fmt.Println("  Where should the token be stored?")
		fmt.Println("    [1] Env file        (" + envPath + ")")
		fmt.Println("    [2] System keychain")
		fmt.Print("  Selection [1]: ")
		a.useKeychain = readLine(r) == "2"
	}
	fmt.Println()

	// ── Conditional forwarding ──────────────────────────────────
	fmt.Println("  Conditional forwarding")
	fmt.Println("  ──────────────────────────────────────────────────────────")
	fmt.Print("  Secondary URL [http://127.0.0.1:8000/hsh?z5]: ")
	a.conditionalURL = strings.TrimSpace(readLine(r))
	fmt.Print("  Keyword pattern [(权益超市|和生活)]: ")
	a.pattern = strings.TrimSpace(readLine(r))
	if a.pattern != "" {
		if _, err := config.CompilePattern(a.pattern); err != nil {
			return fmt.Errorf("invalid pattern: %w", err)
		}
	}
	fmt.Println()

	// ── Operator channel ────────────────────────────────────────
	fmt.Println("  Where should relay status notifications go?")
	fmt.Println("    [1] Log only")
	fmt.Println("    [2] Telegram")
	fmt.Println("    [3] Discord")
	fmt.Println("    [4] ntfy.sh  (push notifications, no account needed)")
	fmt.Print("  Selection [1]: ")
	switch readLine(r) {
	case "2":
		a.channel = "telegram"
	case "3":
		a.channel = "discord"
	case "4":
		a.channel = "ntfy"
	}
	fmt.Println()

	if err := collectChannel(r, &a); err != nil {
		return err
	}

	fmt.Print("  Report progress notifications (info)? [Y/n]: ")
	a.detailed = readBool(r, true)
	fmt.Print("  Report debug notifications? [y/N]: ")
	a.debug = readBool(r, false)
	fmt.Println()

	// ── Store the token ─────────────────────────────────────────
	if err := storeToken(&a); err != nil {
		return err
	}

	// ── Write env file ──────────────────────────────────────────
	if len(a.envVars) > 0 {
		if err := writeEnvFile(envPath, a.envVars); err != nil {
			return fmt.Errorf("writing env file: %w", err)
		}
		// Set in current process so the test subprocess inherits them
		for k, v := range a.envVars {
			_ = os.Setenv(k, v)
		}
		fmt.Printf("  ✅ Credentials saved to %s\n", envPath)
	}

	// ── Update config ───────────────────────────────────────────
	configData, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	updated := applyAnswers(string(configData), a)
	if err := os.WriteFile(configPath, []byte(updated), 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	fmt.Printf("  ✅ Config updated: %s\n", configPath)
	fmt.Println()

	// ── Test sinks ──────────────────────────────────────────────
	fmt.Print("  Send a test message through every sink? [Y/n]: ")
	if readBool(r, true) {
		fmt.Print("  Sending... ")
		if err := runTest(configPath); err != nil {
			fmt.Printf("\n  ⚠️  Test failed: %v\n", err)
			fmt.Println("  Check your settings, then retry: sudo smsrelay test")
		} else {
			fmt.Println("✅")
		}
	}
	fmt.Println()

	// ── Start service ───────────────────────────────────────────
	fmt.Print("  Enable and start smsrelay service? [Y/n]: ")
	if readBool(r, true) {
		if err := startService(); err != nil {
			fmt.Printf("  ⚠️  %v\n", err)
			fmt.Println("  Start manually: sudo systemctl enable --now smsrelay")
		} else {
			fmt.Println("  ✅ Service enabled and started!")
		}
	}

	fmt.Println()
	fmt.Println("✅ Setup complete!")
	fmt.Println("   Run 'sudo smsrelay status' to see forwarded messages.")
	fmt.Println()
	return nil
}

// ensureConfig creates the config file from the default template if absent.
func ensureConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0600); err != nil {
		return fmt.Errorf("creating default config: %w", err)
	}
	fmt.Printf("  Created default config: %s\n\n", path)
	return nil
}

// collectChannel prompts for the chosen channel's settings.
func collectChannel(r *bufio.Reader, a *wizardAnswers) error {
	switch a.channel {
	case "telegram":
		fmt.Println("  Telegram")
		fmt.Println("  ──────────────────────────────────────────────────────────")
		fmt.Println("  1. Open Telegram and message @BotFather → /newbot")
		fmt.Println("  2. Get your Chat ID by messaging @userinfobot")
		fmt.Println()

		token, err := readMasked(r, "  Bot token:  ")
		if err != nil {
			return err
		}
		fmt.Print("  Chat ID:    ")
		chatID := readLine(r)
		a.envVars["SMSRELAY_TELEGRAM_TOKEN"] = strings.TrimSpace(token)
		a.envVars["SMSRELAY_TELEGRAM_CHAT_ID"] = strings.TrimSpace(chatID)

	case "discord":
		fmt.Println("  Discord")
		fmt.Println("  ──────────────────────────────────────────────────────────")
		fmt.Println("  Server Settings → Integrations → Webhooks → New Webhook")
		fmt.Println()

		u, err := readMasked(r, "  Webhook URL: ")
		if err != nil {
			return err
		}
		a.envVars["SMSRELAY_DISCORD_WEBHOOK"] = strings.TrimSpace(u)

	case "ntfy":
		fmt.Println("  ntfy.sh")
		fmt.Println("  ──────────────────────────────────────────────────────────")
		fmt.Print("  Topic name [smsrelay]: ")
		a.ntfyTopic = strings.TrimSpace(readLine(r))
		fmt.Print("  Server     [https://ntfy.sh]: ")
		a.ntfyServer = strings.TrimSpace(readLine(r))
	}
	fmt.Println()
	return nil
}

// storeToken puts the Gotify token in the keychain or queues it for the
// env file.
func storeToken(a *wizardAnswers) error {
	if a.token == "" {
		return nil
	}
	if a.useKeychain {
		if err := keychain.Set(keychainAccount, a.token); err != nil {
			return fmt.Errorf("saving token to keychain: %w", err)
		}
		fmt.Println("  ✅ Token saved to system keychain")
		return nil
	}
	a.envVars[tokenEnvVar] = a.token
	return nil
}

// applyAnswers rewrites the config YAML with the wizard's answers. Lines
// the operator already changed are left alone.
func applyAnswers(cfg string, a wizardAnswers) string {
	if a.gotifyURL != "" {
		cfg = strings.Replace(cfg, `  url: "https://gotify.cn/message"`, "  url: "+strconv.Quote(a.gotifyURL), 1)
	}
	if a.useKeychain {
		cfg = strings.Replace(cfg, `  token: "${`+tokenEnvVar+`}"`, `  token: "keychain:`+keychainAccount+`"`, 1)
	}
	if a.conditionalURL != "" {
		cfg = strings.Replace(cfg, `    url: "http://127.0.0.1:8000/hsh?z5"`, "    url: "+strconv.Quote(a.conditionalURL), 1)
	}
	if a.pattern != "" {
		cfg = strings.Replace(cfg, `    pattern: "(权益超市|和生活)"`, "    pattern: "+strconv.Quote(a.pattern), 1)
	}

	if a.channel != "" {
		cfg = setInBlock(cfg, a.channel, "    enabled: false", "    enabled: true")
	}
	if a.channel == "ntfy" {
		if a.ntfyTopic != "" {
			cfg = setInBlock(cfg, "ntfy", `    topic: "smsrelay"`, "    topic: "+strconv.Quote(a.ntfyTopic))
		}
		if a.ntfyServer != "" {
			cfg = setInBlock(cfg, "ntfy", `    server: "https://ntfy.sh"`, "    server: "+strconv.Quote(a.ntfyServer))
		}
	}

	if !a.detailed {
		cfg = strings.Replace(cfg, "  detailed: true", "  detailed: false", 1)
	}
	if a.debug {
		cfg = strings.Replace(cfg, "  debug: false", "  debug: true", 1)
	}
	return cfg
}

// setInBlock replaces old with replacement within the YAML block that begins
// with "  {name}:\n". The block ends at the first non-empty line whose
// indentation is less than 4 spaces (i.e. a sibling or parent key).
func setInBlock(cfg, name, old, replacement string) string {
	marker := "  " + name + ":\n"
	idx := strings.Index(cfg, marker)
	if idx == -1 {
		return cfg
	}

	after := cfg[idx+len(marker):]

	// Walk lines to find the end of this block.
	end := len(after)
	pos := 0
	for pos < len(after) {
		nl := strings.IndexByte(after[pos:], '\n')
		if nl == -1 {
			break
		}
		line := after[pos : pos+nl]
		if len(line) > 0 && !strings.HasPrefix(line, "    ") {
			end = pos
			break
		}
		pos += nl + 1
	}

	block := strings.Replace(after[:end], old, replacement, 1)
	return cfg[:idx+len(marker)] + block + after[end:]
}

// writeEnvFile writes KEY=value pairs to path (one per line, mode 0600).
func writeEnvFile(path string, vars map[string]string) error {
	var sb strings.Builder
	for k, v := range vars {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(v)
		sb.WriteByte('\n')
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(sb.String()), 0600)
}

// runTest invokes the current binary's "test" subcommand to verify sinks.
// The child inherits the parent's environment, so os.Setenv calls made
// before this are visible to config.Load.
func runTest(configPath string) error {
	self, err := os.Executable()
	if err != nil {
		self = "smsrelay"
	}
	cmd := exec.Command(self, "--config", configPath, "test")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// startService enables and starts the smsrelay systemd service.
func startService() error {
	out, err := exec.Command("systemctl", "enable", "--now", "smsrelay").CombinedOutput()
	if err != nil {
		return fmt.Errorf("systemctl: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

// readLine reads one line from r, stripping the trailing newline.
func readLine(r *bufio.Reader) string {
	line, _ := r.ReadString('\n')
	return strings.TrimRight(line, "\r\n")
}

// readMasked reads a secret without echoing characters when stdin is a TTY.
// Falls back to plain line reading for non-interactive contexts (pipes, CI).
func readMasked(r *bufio.Reader, prompt string) (string, error) {
	fmt.Print(prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("reading secret: %w", err)
		}
		return string(b), nil
	}
	return readLine(r), nil
}

// readBool parses a y/n response; returns defaultVal on empty input.
func readBool(r *bufio.Reader, defaultVal bool) bool {
	line := strings.ToLower(strings.TrimSpace(readLine(r)))
	if line == "" {
		return defaultVal
	}
	return line == "y" || line == "yes"
}
