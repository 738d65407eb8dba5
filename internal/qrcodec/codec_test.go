package qrcodec

import (
	"encoding/base64"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ceremony-admission/internal/model"
)

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func TestEncodeDecodeValidate(t *testing.T) {
	p := model.QRPayload{EventID: 3, TicketID: 17, Nonce: "n-1", IssuedAt: "2025-06-01T09:00:00.123456Z"}
	qr, err := Encode(p, "cafe")
	require.NoError(t, err)

	env, err := Decode(qr)
	require.NoError(t, err)
	assert.Equal(t, "cafe", env.Signature)

	got, err := ValidatePayload(env.Payload)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":             "",
		"not base64":        "invalid_base64",
		"not json":          b64("hello"),
		"json array":        b64(`[1,2]`),
		"missing signature": b64(`{"payload":{}}`),
		"missing payload":   b64(`{"signature":"ab"}`),
		"null payload":      b64(`{"payload":null,"signature":"ab"}`),
		"numeric signature": b64(`{"payload":{},"signature":12}`),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(in)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestDecodeIgnoresUnknownMembersAndPadding(t *testing.T) {
	raw := base64.RawStdEncoding.EncodeToString([]byte(`{"payload":{"a":1},"signature":"ff","v":2}`))
	env, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "ff", env.Signature)
	assert.JSONEq(t, `{"a":1}`, string(env.Payload))
}

func TestValidatePayloadRejectsBadShapes(t *testing.T) {
	cases := map[string]string{
		"not an object":       `"x"`,
		"missing nonce":       `{"eventId":1,"ticketId":2,"issuedAt":"2025-06-01T09:00:00Z"}`,
		"string eventId":      `{"eventId":"1","ticketId":2,"nonce":"n","issuedAt":"2025-06-01T09:00:00Z"}`,
		"float ticketId":      `{"eventId":1,"ticketId":2.5,"nonce":"n","issuedAt":"2025-06-01T09:00:00Z"}`,
		"negative ticketId":   `{"eventId":1,"ticketId":-2,"nonce":"n","issuedAt":"2025-06-01T09:00:00Z"}`,
		"ticketId over int64": `{"eventId":1,"ticketId":9223372036854775808,"nonce":"n","issuedAt":"2025-06-01T09:00:00Z"}`,
		"numeric nonce":       `{"eventId":1,"ticketId":2,"nonce":5,"issuedAt":"2025-06-01T09:00:00Z"}`,
		"bad issuedAt":        `{"eventId":1,"ticketId":2,"nonce":"n","issuedAt":"yesterday"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ValidatePayload([]byte(raw))
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}

func TestPeekTicketID(t *testing.T) {
	qr, err := Encode(model.QRPayload{EventID: 1, TicketID: 99, Nonce: "n", IssuedAt: "2025-06-01T09:00:00Z"}, "ab")
	require.NoError(t, err)
	id := PeekTicketID(qr)
	require.NotNil(t, id)
	assert.Equal(t, uint64(99), *id)

	assert.Nil(t, PeekTicketID("invalid_base64"))
	assert.Nil(t, PeekTicketID(b64(`{"payload":{"ticketId":"x"},"signature":"ab"}`)))

	assert.Nil(t, PeekTicketID(b64(`{"payload":{"ticketId":18446744073709551615},"signature":"ab"}`)),
		"ids beyond the signed 64-bit range are not reported")
	largest := PeekTicketID(b64(`{"payload":{"ticketId":9223372036854775807},"signature":"ab"}`))
	require.NotNil(t, largest)
	assert.Equal(t, uint64(math.MaxInt64), *largest)

	partial := PeekTicketID(b64(`{"payload":{"ticketId":7},"signature":"ab"}`))
	require.NotNil(t, partial)
	assert.Equal(t, uint64(7), *partial)
}
