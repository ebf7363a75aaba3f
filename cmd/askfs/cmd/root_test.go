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

// execute runs the CLI with args and returns combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// writeFixture creates a small indexable project under a temp dir.
func writeFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"auth.go": "package auth\n\nfunc ValidateToken(token string) bool {\n\treturn token != \"\"\n}\n",
		"store.go": "package auth\n\n// persistSession writes the session record.\nfunc persistSession(id string) error {\n\treturn nil\n}\n",
		"README.md": "# demo\n\nToken validation lives in auth.go.\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestRootCmd_ShowsHelp(t *testing.T) {
	// When: executing with --help
	out, err := execute(t, "--help")

	// Then: usage and the main commands are listed
	require.NoError(t, err)
	assert.Contains(t, out, "askfs")
	assert.Contains(t, out, "connect")
	assert.Contains(t, out, "index")
	assert.Contains(t, out, "ask")
	assert.Contains(t, out, "chat")
}

func TestRootCmd_UnknownCommand(t *testing.T) {
	_, err := execute(t, "frobnicate")
	assert.Error(t, err)
}

func TestConnectCmd_CreatesIndex(t *testing.T) {
	// Given: an empty project
	dir := t.TempDir()

	// When: connecting
	out, err := execute(t, "connect", "--root", dir, "--name", "demo", "--plain")

	// Then: the manifest exists and the output names the index
	require.NoError(t, err)
	assert.Contains(t, out, `Connected to index "demo"`)
	assert.FileExists(t, filepath.Join(dir, ".askfs", "demo", "manifest.json"))
	assert.FileExists(t, filepath.Join(dir, ".askfs.yaml"))
}

func TestConnectCmd_PreservesExistingConfig(t *testing.T) {
	// Given: a project with a hand-written config
	dir := t.TempDir()
	custom := []byte("version: 1\nretrieval:\n  k: 3\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".askfs.yaml"), custom, 0o644))

	// When: connecting
	_, err := execute(t, "connect", "--root", dir, "--name", "demo", "--plain")

	// Then: the config is untouched
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(dir, ".askfs.yaml"))
	require.NoError(t, err)
	assert.Equal(t, custom, got)
}

func TestConnectCmd_NoConfigFlag(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, "connect", "--root", dir, "--name", "demo", "--no-config")

	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dir, ".askfs.yaml"))
}

func TestConnectCmd_Idempotent(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "connect", "--root", dir, "--name", "demo")
	require.NoError(t, err)
	_, err = execute(t, "connect", "--root", dir, "--name", "demo")
	require.NoError(t, err)
}

func TestIndexCmd_BuildsAndReportsStats(t *testing.T) {
	// Given: a project with a few files
	dir := writeFixture(t)

	// When: indexing
	out, err := execute(t, "index", "--root", dir, "--name", "demo", "--plain")

	// Then: both snapshot files exist and the stats mention the files
	require.NoError(t, err)
	assert.Contains(t, out, "Index ready")
	assert.Contains(t, out, "files: 3")
	assert.FileExists(t, filepath.Join(dir, ".askfs", "demo", "manifest.json"))
	assert.FileExists(t, filepath.Join(dir, ".askfs", "demo", "inverted_index.json"))
}

func TestIndexCmd_SecondRunIsUnchanged(t *testing.T) {
	dir := writeFixture(t)
	_, err := execute(t, "index", "--root", dir, "--name", "demo")
	require.NoError(t, err)

	out, err := execute(t, "index", "--root", dir, "--name", "demo", "--plain")
	require.NoError(t, err)
	assert.Contains(t, out, "0 changed")
	assert.Contains(t, out, "3 unchanged")
}

func TestStatusCmd_NotIndexed(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "status", "--root", dir, "--name", "demo", "--plain")

	require.NoError(t, err)
	assert.Contains(t, out, "not indexed")
}

func TestStatusCmd_ReportsCounts(t *testing.T) {
	// Given: an indexed project
	dir := writeFixture(t)
	_, err := execute(t, "index", "--root", dir, "--name", "demo")
	require.NoError(t, err)

	// When: asking for status
	out, err := execute(t, "status", "--root", dir, "--name", "demo", "--plain")

	// Then: file, chunk and vocabulary counts are reported
	require.NoError(t, err)
	assert.Contains(t, out, "files:      3")
	assert.Contains(t, out, "chunks:")
	assert.Contains(t, out, "vocabulary:")
}

func TestVersionCmd_Default(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "askfs")
	assert.Contains(t, out, "commit:")
}

func TestVersionCmd_Short(t *testing.T) {
	out, err := execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, "dev", strings.TrimSpace(out))
}

func TestVersionCmd_JSON(t *testing.T) {
	out, err := execute(t, "version", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"version"`)
	assert.Contains(t, out, `"go_version"`)
}
