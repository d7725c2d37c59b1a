package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/punchamoorthee/payoutops/internal/signature"
)

func TestSignCommandOutputVerifies(t *testing.T) {
	cmd := signCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"42", "paid", "--secret", "s3cret", "--request-id", "corr-42"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and body lines, got %q", out.String())
	}
	sig := strings.TrimPrefix(lines[0], signature.Header+": ")
	payload, err := signature.DecodePayload([]byte(lines[1]))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["new_status"] != "PAID" || payload["request_id"] != "corr-42" {
		t.Fatalf("unexpected payload %v", payload)
	}
	if !signature.Verify(payload, sig, "s3cret") {
		t.Fatalf("printed signature does not verify")
	}
}

func TestSignCommandSends(t *testing.T) {
	var mu sync.Mutex
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotSig = r.Header.Get(signature.Header)
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"message":"ok"}`))
	}))
	defer srv.Close()

	cmd := signCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"7", "BOUNCED", "--secret", "s3cret", "--send", srv.URL})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	payload, err := signature.DecodePayload(gotBody)
	if err != nil || !signature.Verify(payload, gotSig, "s3cret") {
		t.Fatalf("sent notification does not verify: %v", err)
	}
	if !strings.Contains(out.String(), "-> 200") {
		t.Fatalf("expected response status in output, got %q", out.String())
	}
}

func TestSignCommandRejectsBadID(t *testing.T) {
	cmd := signCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"abc", "PAID", "--secret", "s"})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error for non-numeric payout id")
	}
}
