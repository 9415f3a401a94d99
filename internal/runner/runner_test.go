package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEngine hands out a fresh temp directory per task id without any of
// the real Workspace Engine's copy/snapshot behavior — the runner only
// needs a path to run the agent in.
type stubEngine struct {
	t        *testing.T
	fail     bool
	sandboxes map[string]string
}

func newStubEngine(t *testing.T) *stubEngine {
	return &stubEngine{t: t, sandboxes: map[string]string{}}
}

func (s *stubEngine) PrepareSandbox(taskID string) (string, error) {
	if s.fail {
		return "", assert.AnError
	}
	dir := filepath.Join(s.t.TempDir(), "task_"+taskID)
	require.NoError(s.t, os.MkdirAll(dir, 0o755))
	s.sandboxes[taskID] = dir
	return dir, nil
}

// writeScript creates an executable shell script standing in for the agent
// binary the spec treats as an opaque external collaborator.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-agent.sh")
	full := "#!/bin/sh\n" + body
	require.NoError(t, os.WriteFile(path, []byte(full), 0o755))
	return path
}

func TestRunner_Execute_Success_WritesClaudeOutput(t *testing.T) {
	agent := writeScript(t, `
echo "did work" > produced.txt
echo "stdout body"
exit 0
`)
	engine := newStubEngine(t)
	r := New(agent, 1, 5*time.Second, nil)

	result := r.Execute(context.Background(), TaskInput{TaskID: "t1", Prompt: "do the thing"}, engine)

	require.True(t, result.Success)
	assert.Contains(t, result.Stdout, "stdout body")
	assert.Contains(t, result.Artifacts, "produced.txt")
	assert.Contains(t, result.Artifacts, claudeOutputFile)

	content, err := os.ReadFile(filepath.Join(engine.sandboxes["t1"], claudeOutputFile))
	require.NoError(t, err)
	assert.Equal(t, "stdout body\n", string(content))
}

func TestRunner_Execute_NonZeroExit_ReturnsFailureResult(t *testing.T) {
	agent := writeScript(t, `
echo "boom" >&2
exit 3
`)
	engine := newStubEngine(t)
	r := New(agent, 1, 5*time.Second, nil)

	result := r.Execute(context.Background(), TaskInput{TaskID: "t1", Prompt: "x"}, engine)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "exited with code 3")
	assert.Contains(t, result.Stderr, "boom")
}

func TestRunner_Execute_Timeout_KillsAndReportsFailure(t *testing.T) {
	agent := writeScript(t, `
sleep 5
`)
	engine := newStubEngine(t)
	r := New(agent, 1, 50*time.Millisecond, nil)

	start := time.Now()
	result := r.Execute(context.Background(), TaskInput{TaskID: "t1", Prompt: "x"}, engine)
	elapsed := time.Since(start)

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "timeout")
	assert.Less(t, elapsed, 4*time.Second, "the runner must not wait for the full sleep duration")
}

func TestRunner_Execute_NoEngine_FailsWithArtifactManagerRequired(t *testing.T) {
	r := New("irrelevant", 1, time.Second, nil)
	result := r.Execute(context.Background(), TaskInput{TaskID: "t1", Prompt: "x"}, nil)

	assert.False(t, result.Success)
	assert.Equal(t, "ArtifactManager required.", result.Error)
}

func TestRunner_Execute_NoFilesProduced_SalvagesFencedCodeBlock(t *testing.T) {
	agent := writeScript(t, `
cat <<'EOF'
Here is the result:

`+"```python\nprint(\"hello\")\n```"+`
EOF
exit 0
`)
	engine := newStubEngine(t)
	r := New(agent, 1, 5*time.Second, nil)

	result := r.Execute(context.Background(), TaskInput{TaskID: "t1", Prompt: "x"}, engine)

	require.True(t, result.Success)
	assert.Contains(t, result.Artifacts, "salvaged_output.txt")

	content, err := os.ReadFile(filepath.Join(engine.sandboxes["t1"], "salvaged_output.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "print(\"hello\")")
}

func TestRunner_BatchExecute_PreservesInputOrder(t *testing.T) {
	agent := writeScript(t, `
sleep 0.05
exit 0
`)
	engine := newStubEngine(t)
	r := New(agent, 2, 5*time.Second, nil)

	inputs := []TaskInput{
		{TaskID: "a", Prompt: "x"},
		{TaskID: "b", Prompt: "x"},
		{TaskID: "c", Prompt: "x"},
	}

	results := r.BatchExecute(context.Background(), inputs, engine)

	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].TaskID)
	assert.Equal(t, "b", results[1].TaskID)
	assert.Equal(t, "c", results[2].TaskID)
	for _, res := range results {
		assert.True(t, res.Success)
	}
}

func TestNew_NonPositiveConcurrency_DefaultsToOne(t *testing.T) {
	r := New("agent", 0, 0, nil)
	assert.Equal(t, 1, r.MaxConcurrent)
	assert.Equal(t, DefaultTimeout, r.DefaultTimeout)
}
