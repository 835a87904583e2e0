package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLogMailer_MasksAddress(t *testing.T) {
	var buf bytes.Buffer
	m := NewLogMailer(zerolog.New(&buf), false)

	if err := m.SendVerificationCode(context.Background(), "guest@example.com", "123456", time.Unix(0, 0)); err != nil {
		t.Fatalf("send: %v", err)
	}
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["to"] != "g***@example.com" {
		t.Fatalf("to = %v", line["to"])
	}
	if _, ok := line["code"]; ok {
		t.Fatalf("code must not be logged unless revealed")
	}
}

func TestLogMailer_RevealInDev(t *testing.T) {
	var buf bytes.Buffer
	m := NewLogMailer(zerolog.New(&buf), true)
	_ = m.SendVerificationCode(context.Background(), "a@b.c", "000042", time.Now())
	if !bytes.Contains(buf.Bytes(), []byte(`"code":"000042"`)) {
		t.Fatalf("expected code in dev log: %s", buf.String())
	}
}

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"x@y.z":    "x***@y.z",
		"nope":     "***",
		"@host.io": "***",
	}
	for in, want := range cases {
		if got := maskEmail(in); got != want {
			t.Fatalf("maskEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
