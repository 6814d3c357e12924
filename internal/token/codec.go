// Package token encodes and decodes the payload shown in a student's QR code.
//
// The payload is a JSON object such as {"uid":"<identity id>","t":1760771400000}
// where t is the issue time in Unix milliseconds. It is not signed and carries
// no expiry: decoding checks shape only, so a captured payload can be replayed.
package token

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	// ErrMalformedPayload means the payload is not a JSON object.
	ErrMalformedPayload = errors.New("token: malformed payload")
	// ErrMissingField means the uid field is absent, empty or not a string.
	ErrMissingField = errors.New("token: missing uid")
)

// ScanToken is a decoded QR payload.
type ScanToken struct {
	UserID   string
	IssuedAt time.Time
}

type wire struct {
	UID json.RawMessage `json:"uid"`
	T   json.RawMessage `json:"t"`
}

// Encode serializes userID and issuedAt into the QR payload.
func Encode(userID string, issuedAt time.Time) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", ErrMissingField
	}
	out, err := json.Marshal(struct {
		UID string `json:"uid"`
		T   int64  `json:"t"`
	}{UID: userID, T: issuedAt.UnixMilli()})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Decode parses a QR payload. Fields other than uid and t are ignored.
func Decode(payload string) (ScanToken, error) {
	trimmed := bytes.TrimSpace([]byte(payload))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ScanToken{}, ErrMalformedPayload
	}
	var w wire
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return ScanToken{}, ErrMalformedPayload
	}

	var uid string
	if len(w.UID) == 0 || json.Unmarshal(w.UID, &uid) != nil || strings.TrimSpace(uid) == "" {
		return ScanToken{}, ErrMissingField
	}

	tok := ScanToken{UserID: uid}
	var ms float64
	if len(w.T) > 0 && json.Unmarshal(w.T, &ms) == nil && ms > 0 {
		tok.IssuedAt = time.UnixMilli(int64(ms))
	}
	return tok, nil
}
