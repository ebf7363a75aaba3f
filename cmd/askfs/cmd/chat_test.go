package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executeWithInput runs the CLI with scripted stdin.
func executeWithInput(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader(input))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestChatCmd_QuitImmediately(t *testing.T) {
	// Given: an indexed project
	dir := writeFixture(t)
	_, err := execute(t, "index", "--root", dir, "--name", "demo")
	require.NoError(t, err)

	// When: quitting right away
	out, err := executeWithInput(t, ":q\n",
		"chat", "--root", dir, "--name", "demo", "--plain")

	// Then: the session directory was still created and reported
	require.NoError(t, err)
	assert.Contains(t, out, "Session saved")

	entries, err := os.ReadDir(filepath.Join(dir, ".askfs", "demo", "sessions"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.FileExists(t, filepath.Join(dir, ".askfs", "demo", "sessions",
		entries[0].Name(), "session.json"))
}

func TestChatCmd_QuestionIsAnsweredAndRecorded(t *testing.T) {
	// Given: an indexed project
	dir := writeFixture(t)
	_, err := execute(t, "index", "--root", dir, "--name", "demo")
	require.NoError(t, err)

	// When: asking one question then quitting
	out, err := executeWithInput(t, "where is ValidateToken defined\n:q\n",
		"chat", "--root", dir, "--name", "demo", "--plain")

	// Then: the answer cites the file and both session files hold the exchange
	require.NoError(t, err)
	assert.Contains(t, out, "auth.go:")

	sessions := filepath.Join(dir, ".askfs", "demo", "sessions")
	entries, err := os.ReadDir(sessions)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	transcript, err := os.ReadFile(filepath.Join(sessions, entries[0].Name(), "transcript.md"))
	require.NoError(t, err)
	assert.Contains(t, string(transcript), "**You:** where is ValidateToken defined")
	assert.Contains(t, string(transcript), "**askfs:**")
	assert.Contains(t, string(transcript), "auth.go:")

	messages, err := os.ReadFile(filepath.Join(sessions, entries[0].Name(), "messages.jsonl"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(messages)), "\n")
	assert.Len(t, lines, 2)
}

func TestChatCmd_Commands(t *testing.T) {
	// Given: an indexed project
	dir := writeFixture(t)
	_, err := execute(t, "index", "--root", dir, "--name", "demo")
	require.NoError(t, err)

	// When: driving the loop commands
	out, err := executeWithInput(t, ":help\n:k 3\n:sources off\n:show session\n:q\n",
		"chat", "--root", dir, "--name", "demo", "--plain")

	// Then: each command produced its feedback
	require.NoError(t, err)
	assert.Contains(t, out, ":sources on|off")
	assert.Contains(t, out, "k set to 3")
	assert.Contains(t, out, "sources off")
	assert.Contains(t, out, "transcript:")
}

func TestChatCmd_BadCommand(t *testing.T) {
	dir := writeFixture(t)
	_, err := execute(t, "index", "--root", dir, "--name", "demo")
	require.NoError(t, err)

	out, err := executeWithInput(t, ":k zero\n:bogus\n:q\n",
		"chat", "--root", dir, "--name", "demo", "--plain")

	require.NoError(t, err)
	assert.Contains(t, out, "k must be a positive integer")
	assert.Contains(t, out, "unknown command")
}
