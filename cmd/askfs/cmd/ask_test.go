package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAskCmd_RequiresQuestion(t *testing.T) {
	_, err := execute(t, "ask")
	assert.Error(t, err)
}

func TestAskCmd_NotIndexed(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, "ask", "--root", dir, "--name", "demo", "how does auth work")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR_210_NOT_INDEXED")
}

func TestAskCmd_BaselineAnswerWithSources(t *testing.T) {
	// Given: an indexed project
	dir := writeFixture(t)
	_, err := execute(t, "index", "--root", dir, "--name", "demo")
	require.NoError(t, err)

	// When: asking about a term that appears in one file
	out, err := execute(t, "ask", "--root", dir, "--name", "demo", "--plain",
		"where is ValidateToken defined")

	// Then: the baseline answer previews the hit and cites it
	require.NoError(t, err)
	assert.Contains(t, out, "ValidateToken")
	assert.Contains(t, out, "auth.go:")
	assert.Contains(t, out, "Sources")
}

func TestAskCmd_NoMatches(t *testing.T) {
	dir := writeFixture(t)
	_, err := execute(t, "index", "--root", dir, "--name", "demo")
	require.NoError(t, err)

	out, err := execute(t, "ask", "--root", dir, "--name", "demo", "--plain",
		"zzzqqqxxyy")

	require.NoError(t, err)
	assert.Contains(t, out, "No matches")
}

func TestAskCmd_RecordsTelemetry(t *testing.T) {
	// Given: an indexed project
	dir := writeFixture(t)
	_, err := execute(t, "index", "--root", dir, "--name", "demo")
	require.NoError(t, err)

	// When: asking a question
	_, err = execute(t, "ask", "--root", dir, "--name", "demo",
		"where is ValidateToken defined")
	require.NoError(t, err)

	// Then: the telemetry database exists next to the index
	assert.FileExists(t, filepath.Join(dir, ".askfs", "telemetry.db"))
}

func TestAskCmd_JaccardAlgorithm(t *testing.T) {
	dir := writeFixture(t)
	_, err := execute(t, "index", "--root", dir, "--name", "demo")
	require.NoError(t, err)

	out, err := execute(t, "ask", "--root", dir, "--name", "demo", "--plain",
		"--algorithm", "jaccard", "persistSession record")

	require.NoError(t, err)
	assert.Contains(t, out, "store.go:")
}
