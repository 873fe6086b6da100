package notifiers

import (
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/Fullex26/smsrelay/internal/config"
)

// Ntfy sends notifications via ntfy.sh
type Ntfy struct {
	server string
	topic  string
	token  string
	client *http.Client
}

func NewNtfy(cfg config.NtfyConfig) *Ntfy {
	server := cfg.Server
	if server == "" {
		server = "https://ntfy.sh"
	}
	return &Ntfy{
		server: server,
		topic:  cfg.Topic,
		token:  cfg.Token,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *Ntfy) Name() string { return "ntfy" }

func (n *Ntfy) Post(title, subtitle, body string) error {
	if subtitle != "" {
		body = subtitle + "\n" + body
	}
	return n.send(title, body, "default", "speech_balloon")
}

func (n *Ntfy) Test() error {
	return n.send("SMSRelay", "Test notification — SMSRelay is connected!", "default", "white_check_mark")
}

func (n *Ntfy) send(title, body, priority, tags string) error {
	url := fmt.Sprintf("%s/%s", n.server, n.topic)
	req, err := http.NewRequest("POST", url, strings.NewReader(body))
	if err != nil {
		return err
	}

	// Titles carry emoji; RFC 2047 keeps the header ASCII
	req.Header.Set("Title", mime.QEncoding.Encode("utf-8", title))
	req.Header.Set("Priority", priority)
	req.Header.Set("Tags", tags)

	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("ntfy send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ntfy returned status %d", resp.StatusCode)
	}
	return nil
}
