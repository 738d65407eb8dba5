// Package qrcodec converts ticket payloads to and from the string
// embedded in a QR code: standard base64 of
// {"payload":{...},"signature":"<hex>"}.
package qrcodec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/ceremony-admission/internal/model"
)

var (
	// ErrMalformed covers bad base64, bad JSON and a missing payload or
	// signature member.
	ErrMalformed = errors.New("qrcodec: malformed qr string")
	// ErrInvalidPayload means the envelope decoded but the payload is
	// missing a field or carries one with the wrong type.
	ErrInvalidPayload = errors.New("qrcodec: invalid payload")
)

// Envelope is a decoded QR string.  Payload is kept raw until
// ValidatePayload checks its shape.
type Envelope struct {
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

// Encode builds the QR transport string for a signed payload.
func Encode(p model.QRPayload, signature string) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode qr payload: %w", err)
	}
	b, err := json.Marshal(Envelope{Payload: raw, Signature: signature})
	if err != nil {
		return "", fmt.Errorf("encode qr envelope: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// Decode parses a QR string.  Unknown members are ignored.
func Decode(s string) (Envelope, error) {
	var env Envelope
	data, err := decodeBase64(strings.TrimSpace(s))
	if err != nil {
		return env, ErrMalformed
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil || members == nil {
		return env, ErrMalformed
	}
	payload, ok := members["payload"]
	if !ok || isNull(payload) {
		return env, ErrMalformed
	}
	sig, ok := members["signature"]
	if !ok || isNull(sig) {
		return env, ErrMalformed
	}
	if err := json.Unmarshal(sig, &env.Signature); err != nil {
		return env, ErrMalformed
	}
	env.Payload = payload
	return env, nil
}

// ValidatePayload checks that raw is an object carrying eventId and
// ticketId as integers and nonce and issuedAt as non-empty strings,
// issuedAt in RFC 3339 form.
func ValidatePayload(raw json.RawMessage) (model.QRPayload, error) {
	var p model.QRPayload
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return p, ErrInvalidPayload
	}
	var err error
	if p.EventID, err = integerField(fields, "eventId"); err != nil {
		return p, err
	}
	if p.TicketID, err = integerField(fields, "ticketId"); err != nil {
		return p, err
	}
	if p.Nonce, err = stringField(fields, "nonce"); err != nil {
		return p, err
	}
	if p.IssuedAt, err = stringField(fields, "issuedAt"); err != nil {
		return p, err
	}
	if _, err := time.Parse(time.RFC3339Nano, p.IssuedAt); err != nil {
		return p, fmt.Errorf("%w: issuedAt is not a timestamp", ErrInvalidPayload)
	}
	return p, nil
}

// PeekTicketID extracts payload.ticketId without validating anything
// else.  It returns nil when the string cannot be read that far.
func PeekTicketID(s string) *uint64 {
	env, err := Decode(s)
	if err != nil {
		return nil
	}
	var fields map[string]json.RawMessage
	if json.Unmarshal(env.Payload, &fields) != nil {
		return nil
	}
	id, err := integerField(fields, "ticketId")
	if err != nil {
		return nil
	}
	return &id
}

func decodeBase64(s string) ([]byte, error) {
	if s == "" {
		return nil, ErrMalformed
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return b, nil
	}
	// Some scanners strip the trailing padding.
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// integerField reads a non-negative integer that fits the signed BIGINT
// range of the database, so ids never wrap when stored.
func integerField(fields map[string]json.RawMessage, name string) (uint64, error) {
	raw, ok := fields[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s missing", ErrInvalidPayload, name)
	}
	n, err := strconv.ParseUint(string(bytes.TrimSpace(raw)), 10, 63)
	if err != nil {
		return 0, fmt.Errorf("%w: %s is not an integer", ErrInvalidPayload, name)
	}
	return n, nil
}

func stringField(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok {
		return "", fmt.Errorf("%w: %s missing", ErrInvalidPayload, name)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return "", fmt.Errorf("%w: %s is not a string", ErrInvalidPayload, name)
	}
	return s, nil
}
