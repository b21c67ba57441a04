package mailfilter

import (
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEncodedHeader(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"plain ascii passes through", "Hello world", "Hello world"},
		{"utf-8 base64", "=?UTF-8?B?SMOpbGxv?=", "Héllo"},
		{"utf-8 quoted-printable", "=?UTF-8?Q?H=C3=A9llo?=", "Héllo"},
		{"iso-8859-1", "=?ISO-8859-1?Q?H=E9llo?=", "Héllo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeEncodedHeader(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractTextFromPlainMessage(t *testing.T) {
	raw := "From: a@b.c\r\nSubject: hi\r\n\r\nplain text body\r\n"
	msg, err := mail.ReadMessage(strings.NewReader(raw))
	require.NoError(t, err)

	text, err := extractTextFromMessage(msg)
	require.NoError(t, err)
	assert.Contains(t, text, "plain text body")
}

func TestExtractTextFromMultipartMessage(t *testing.T) {
	raw := strings.Join([]string{
		"From: a@b.c",
		"Content-Type: multipart/alternative; boundary=BOUNDARY",
		"",
		"--BOUNDARY",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"the plain part",
		"--BOUNDARY",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>the html part</p>",
		"--BOUNDARY--",
		"",
	}, "\r\n")

	msg, err := mail.ReadMessage(strings.NewReader(raw))
	require.NoError(t, err)

	text, err := extractTextFromMessage(msg)
	require.NoError(t, err)
	assert.Contains(t, text, "the plain part")
	assert.NotContains(t, text, "html part")
}

func TestExtractTextFromMultipartWithoutPlainPart(t *testing.T) {
	raw := strings.Join([]string{
		"From: a@b.c",
		"Content-Type: multipart/mixed; boundary=XYZ",
		"",
		"--XYZ",
		"Content-Type: application/octet-stream",
		"",
		"binarybinary",
		"--XYZ--",
		"",
	}, "\r\n")

	msg, err := mail.ReadMessage(strings.NewReader(raw))
	require.NoError(t, err)

	text, err := extractTextFromMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, "[No text content found in multipart message]", text)
}

func TestExtractEmailAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Alice Example <alice@example.com>", "alice@example.com"},
		{"<bob@example.com>", "bob@example.com"},
		{"carol@example.com", "carol@example.com"},
		{"  dave@example.com  ", "dave@example.com"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractEmailAddress(tt.in))
	}
}
