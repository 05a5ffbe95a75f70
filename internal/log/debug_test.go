package log

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// swapSink installs a fresh sink for the test and restores the old one.
func swapSink(t *testing.T) {
	t.Helper()
	prev := debugSink
	debugSink = &sink{}
	std.SetOutput(debugSink)
	t.Cleanup(func() {
		debugSink.mu.Lock()
		_ = debugSink.detach()
		debugSink.mu.Unlock()
		debugSink = prev
		std.SetOutput(prev)
	})
}

func bufferedText() string {
	debugSink.mu.Lock()
	defer debugSink.mu.Unlock()
	return string(debugSink.pending)
}

func TestBufferedMessagesFlushToFile(t *testing.T) {
	swapSink(t)

	Printf("before file %d", 1)
	Named("workflow").Printf("refresh generation %d", 2)
	assert.Contains(t, bufferedText(), "before file 1")
	assert.Contains(t, bufferedText(), "[workflow] refresh generation 2")

	logPath := filepath.Join(t.TempDir(), "debug.log")
	require.NoError(t, SetFile(logPath))
	Println("after file")
	require.NoError(t, Close())

	data, err := os.ReadFile(logPath) //nolint:gosec
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "before file 1")
	assert.Contains(t, text, "after file")
	assert.Less(t, strings.Index(text, "before file 1"), strings.Index(text, "after file"))
}

func TestSetFileEmptyDiscards(t *testing.T) {
	swapSink(t)

	Printf("dropped")
	require.NoError(t, SetFile(""))
	Printf("also dropped")
	assert.Empty(t, bufferedText())
}

func TestSetFileFailureDiscardsLogs(t *testing.T) {
	swapSink(t)

	missingDir := filepath.Join(t.TempDir(), "missing", "nested")
	err := SetFile(filepath.Join(missingDir, "debug.log"))
	require.Error(t, err)

	Printf("should be discarded")
	assert.Empty(t, bufferedText())
}

func TestErrorfReturnsError(t *testing.T) {
	swapSink(t)

	l := Named("credentials")
	assert.NoError(t, l.Errorf(nil, "ignored"))

	cause := errors.New("bad padding")
	got := l.Errorf(cause, "decrypt %s", "https://example.com")
	assert.Same(t, cause, got)
	assert.Contains(t, bufferedText(), "[credentials] decrypt https://example.com: bad padding")
}

func TestPendingBufferKeepsNewestLines(t *testing.T) {
	swapSink(t)

	line := strings.Repeat("x", 1023)
	for i := 0; i < 2*maxPending/len(line); i++ {
		Printf("%06d %s", i, line)
	}
	Printf("newest")

	text := bufferedText()
	assert.LessOrEqual(t, len(text), maxPending)
	assert.NotContains(t, text, "000000 ")
	assert.True(t, strings.HasSuffix(text, "newest\n"))
	// trimming happens on line boundaries
	first, _, _ := strings.Cut(text, " ")
	assert.Regexp(t, `^\d{4}/\d{2}/\d{2}$`, first)
}

func TestCloseReturnsToBuffering(t *testing.T) {
	swapSink(t)

	logPath := filepath.Join(t.TempDir(), "debug.log")
	require.NoError(t, SetFile(logPath))
	require.NoError(t, Close())
	Printf("held again")
	assert.Contains(t, bufferedText(), "held again")

	require.NoError(t, SetFile(""))
	require.NoError(t, Close())
	Printf("still dropped")
	assert.Empty(t, bufferedText())
}
