package mail

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitMailAuth(t *testing.T) {
	host, port, user, err := splitMailAuth("smtp.example.com:587:alerts")
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com", host)
	assert.Equal(t, "587", port)
	assert.Equal(t, "alerts", user)
}

func TestSplitMailAuthNoUser(t *testing.T) {
	host, port, user, err := splitMailAuth("mail.internal:25")
	require.NoError(t, err)
	assert.Equal(t, "mail.internal", host)
	assert.Equal(t, "25", port)
	assert.Equal(t, "", user)
}

func TestSplitMailAuthBadPort(t *testing.T) {
	_, _, _, err := splitMailAuth("mail.internal:smtp")
	assert.Error(t, err)
}

func TestComposePlainBody(t *testing.T) {
	msg, err := compose(Options{From: "a@x.com", To: []string{"b@x.com"}}, "subj", "hello world")
	require.NoError(t, err)
	s := string(msg)
	assert.Contains(t, s, "Subject: subj")
	assert.Contains(t, s, "hello world")
	assert.Contains(t, s, "To: b@x.com")
}

func TestComposeGzipsLargeBody(t *testing.T) {
	body := strings.Repeat("x", 1000)
	msg, err := compose(Options{From: "a@x.com", GzipThreshold: 100}, "subj", body)
	require.NoError(t, err)
	s := string(msg)
	assert.Contains(t, s, "application/gzip")
	assert.NotContains(t, s, body)
}

func TestSendDryRunWritesToOut(t *testing.T) {
	var buf bytes.Buffer
	opts := Options{From: "a@x.com", To: []string{"b@x.com"}, Subject: "s", DryRun: true, DryRunOut: &buf}
	err := Send(opts, []string{"body one", "body two"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "body one")
	assert.Contains(t, buf.String(), "body two")
	assert.Contains(t, buf.String(), "s (1/2)")
	assert.Contains(t, buf.String(), "s (2/2)")
}
