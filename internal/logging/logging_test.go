package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFile satisfies FileDescriptor without being a real terminal, so
// New falls back to the JSON handler regardless of the test runner's
// own stdout.
type fakeFile struct {
	*bytes.Buffer
}

func (f fakeFile) Fd() uintptr { return ^uintptr(0) }

func TestNewNonTerminalWritesJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(fakeFile{buf}, false)

	log.Info("hello", "key", "value")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "hello", decoded["msg"])
	assert.Equal(t, "value", decoded["key"])
}

func TestNewVerboseEnablesDebugLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(fakeFile{buf}, true)

	log.Debug("debugging")

	assert.Contains(t, buf.String(), "debugging")
}

func TestNewDefaultLevelSuppressesDebug(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(fakeFile{buf}, false)

	log.Debug("should not appear")

	assert.Empty(t, buf.String())
}

func TestNewAcceptsRealOSFile(t *testing.T) {
	// os.File satisfies FileDescriptor; exercised here to catch any
	// accidental interface drift even though a test runner's stdout is
	// rarely a terminal.
	var _ FileDescriptor = os.Stdout
	_ = slog.Default()
}
