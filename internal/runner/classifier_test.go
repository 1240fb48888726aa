package runner

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	c := NewClassifier(nil)
	tests := []struct {
		name     string
		exitCode int
		output   string
		want     Outcome
	}{
		{"clean exit", 0, "[download] 100% of 5.00MiB", Success},
		{"clean exit with warnings", 0, "WARNING: HTTP Error 403 on fragment, retrying", Success},
		{"proxy unreachable", 1, "ERROR: Unable to download webpage: ('Unable to connect to proxy', OSError('Tunnel connection failed: 502 Bad Gateway'))", Retry},
		{"read timeout", 1, "ERROR: [youtube] abc: Read timed out. (read timeout=20.0)", Retry},
		{"forbidden", 1, "ERROR: unable to download video data: HTTP Error 403: Forbidden", Retry},
		{"bot check", 1, "ERROR: [youtube] abc: Sign in to confirm you're not a bot.", Retry},
		{"truncated", 1, "ERROR: 1024 bytes read, 4096 more expected", Retry},
		{"unsupported url", 1, "ERROR: Unsupported URL: https://example.com", Fatal},
		{"usage", 2, "yt-dlp: error: no such option: --bogus", Fatal},
		{"private video", 1, "ERROR: [youtube] abc: Private video. Sign in if you've been granted access", Fatal},
		{"unknown", 1, "something else went wrong", Fatal},
		{"killed", -1, "", Fatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := c.Classify(tt.exitCode, tt.output)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_CustomSignatures(t *testing.T) {
	c := NewClassifier([]Signature{{regexp.MustCompile(`flaky`), Retry, "flaky"}})
	got, reason := c.Classify(1, "the network is flaky today")
	assert.Equal(t, Retry, got)
	assert.Equal(t, "flaky", reason)

	got, _ = c.Classify(1, "ERROR: Unable to connect to proxy")
	assert.Equal(t, Fatal, got, "only the supplied signatures apply")
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "success", Success.String())
	assert.Equal(t, "retry", Retry.String())
	assert.Equal(t, "fatal", Fatal.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}
