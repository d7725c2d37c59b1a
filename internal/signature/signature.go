// Package signature canonicalizes webhook payloads and signs them with a
// shared secret (HMAC-SHA256, hex encoded).
package signature

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Header carries the signature next to the JSON body.
const Header = "X-Payout-Signature"

var ErrEmptySecret = errors.New("signature: secret is required")

// Canonicalize serializes payload with lexicographically sorted keys and no
// insignificant whitespace. encoding/json already sorts map keys at every level.
func Canonicalize(payload map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("signature: canonicalize payload: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Sign returns the hex HMAC-SHA256 of the canonical payload.
func Sign(payload map[string]any, secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	canonical, err := Canonicalize(payload)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(mac(canonical, secret)), nil
}

// Verify recomputes the signature and compares it in constant time.
func Verify(payload map[string]any, signature string, secret string) bool {
	if secret == "" {
		return false
	}
	given, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(given) != sha256.Size {
		return false
	}
	canonical, err := Canonicalize(payload)
	if err != nil {
		return false
	}
	return hmac.Equal(given, mac(canonical, secret))
}

// DecodePayload parses a received body into the map form used for
// verification. Number literals are kept verbatim so the canonical bytes
// match what the sender signed.
func DecodePayload(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("signature: decode payload: %w", err)
	}
	if payload == nil {
		return nil, errors.New("signature: payload must be a JSON object")
	}
	if err := dec.Decode(&json.RawMessage{}); err != io.EOF {
		return nil, errors.New("signature: trailing data after payload")
	}
	return payload, nil
}

func mac(message []byte, secret string) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(message)
	return h.Sum(nil)
}
