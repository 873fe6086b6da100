package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadPayload_Stdin(t *testing.T) {
	for _, args := range [][]string{nil, {"-"}} {
		got, err := readPayload(strings.NewReader(`{"a":1}`), args)
		if err != nil {
			t.Fatalf("readPayload(%v): %v", args, err)
		}
		if string(got) != `{"a":1}` {
			t.Errorf("readPayload(%v) = %q", args, got)
		}
	}
}

func TestReadPayload_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sms.json")
	os.WriteFile(path, []byte(`{"b":2}`), 0600)

	got, err := readPayload(strings.NewReader("ignored"), []string{path})
	if err != nil {
		t.Fatalf("readPayload: %v", err)
	}
	if string(got) != `{"b":2}` {
		t.Errorf("readPayload = %q", got)
	}
}

func TestReadPayload_MissingFile(t *testing.T) {
	if _, err := readPayload(nil, []string{"/nonexistent/sms.json"}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestProcessCmd_Args(t *testing.T) {
	cmd := processCmd()
	if err := cmd.Args(cmd, []string{"a", "b"}); err == nil {
		t.Error("process should accept at most one argument")
	}
}
