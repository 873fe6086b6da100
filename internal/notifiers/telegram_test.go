package notifiers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestTelegram_Name(t *testing.T) {
	tg := &Telegram{}
	if got := tg.Name(); got != "telegram" {
		t.Errorf("Name() = %q, want %q", got, "telegram")
	}
}

func TestTelegram_Post_Success(t *testing.T) {
	var form url.Values
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		r.ParseForm()
		form = r.PostForm
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := &Telegram{
		token:  "test-token",
		chatID: "12345",
		client: &http.Client{Transport: redirectTransport(srv.URL)},
	}

	if err := tg.Post("✅ Forwarded", "", "status 200"); err != nil {
		t.Fatalf("Post() error: %v", err)
	}
	if path != "/bottest-token/sendMessage" {
		t.Errorf("path = %q", path)
	}
	if form.Get("chat_id") != "12345" {
		t.Errorf("chat_id = %q", form.Get("chat_id"))
	}
	if form.Get("parse_mode") != "HTML" {
		t.Errorf("parse_mode = %q", form.Get("parse_mode"))
	}
	if !strings.Contains(form.Get("text"), "<b>✅ Forwarded</b>") {
		t.Errorf("text = %q", form.Get("text"))
	}
}

func TestTelegram_Post_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tg := &Telegram{token: "t", chatID: "1", client: &http.Client{Transport: redirectTransport(srv.URL)}}
	err := tg.Post("x", "", "y")
	if err == nil {
		t.Fatal("expected error for 500 status")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestTelegram_Test(t *testing.T) {
	var text string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		text = r.PostForm.Get("text")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := &Telegram{token: "t", chatID: "1", client: &http.Client{Transport: redirectTransport(srv.URL)}}
	if err := tg.Test(); err != nil {
		t.Errorf("Test() error: %v", err)
	}
	if !strings.Contains(text, "SMSRelay") {
		t.Error("test message should contain 'SMSRelay'")
	}
}

func TestFormatHTML(t *testing.T) {
	got := formatHTML("ℹ️ SMS received", "iPhone", "From: 10086\nContent: <b>1</b> & more")

	if !strings.Contains(got, "<b>ℹ️ SMS received</b>") {
		t.Errorf("missing bold title: %q", got)
	}
	if !strings.Contains(got, "<i>iPhone</i>") {
		t.Errorf("missing subtitle: %q", got)
	}
	if !strings.Contains(got, "&lt;b&gt;1&lt;/b&gt; &amp; more") {
		t.Errorf("body should be escaped: %q", got)
	}
}

func TestFormatHTML_NoSubtitle(t *testing.T) {
	got := formatHTML("title", "", "body")
	if strings.Contains(got, "<i>") {
		t.Errorf("empty subtitle should be omitted: %q", got)
	}
}

// -- helpers --

type roundTripFunc func(req *http.Request) *http.Response

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req), nil
}

// redirectTransport creates a transport that redirects all requests to the given base URL.
func redirectTransport(baseURL string) http.RoundTripper {
	return roundTripFunc(func(req *http.Request) *http.Response {
		newURL := baseURL + req.URL.Path
		req2, _ := http.NewRequest(req.Method, newURL, req.Body)
		req2.Header = req.Header
		resp, err := http.DefaultTransport.RoundTrip(req2)
		if err != nil {
			return &http.Response{
				StatusCode: http.StatusBadGateway,
				Body:       io.NopCloser(strings.NewReader(err.Error())),
			}
		}
		return resp
	})
}
