package integration

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandaloneBinaryWorksOutsideRepo(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("standalone binary copy/exec test is unix-focused")
	}
	if testing.Short() {
		t.Skip("builds the binary")
	}

	goModPathBytes, err := exec.Command("go", "env", "GOMOD").Output()
	require.NoError(t, err, "go env GOMOD")
	goModPath := strings.TrimSpace(string(goModPathBytes))
	require.NotEmpty(t, goModPath, "go env GOMOD returned empty")
	repoRoot := filepath.Dir(goModPath)

	outside := t.TempDir()
	binaryPath := filepath.Join(outside, "recipegate")

	build := exec.Command("go", "build", "-o", binaryPath, "./cmd/recipegate")
	build.Dir = repoRoot
	build.Env = os.Environ()
	out, err := build.CombinedOutput()
	require.NoError(t, err, "go build: %s", out)

	env := append(os.Environ(), "HOME="+outside, "XDG_CONFIG_HOME="+outside)

	version := exec.Command(binaryPath, "version")
	version.Dir = outside
	version.Env = env
	out, err = version.CombinedOutput()
	require.NoError(t, err, "version failed: %s", out)
	assert.True(t, strings.HasPrefix(string(out), "recipegate "))

	help := exec.Command(binaryPath, "--help")
	help.Dir = outside
	help.Env = env
	out, err = help.CombinedOutput()
	require.NoError(t, err, "--help failed: %s", out)
	assert.Contains(t, string(out), "serve")

	rules := exec.Command(binaryPath, "rules", "--output-format", "json")
	rules.Dir = outside
	rules.Env = append(env, "RECIPEGATE_RATE_LIMITS_SEARCH_REQUESTS=4")
	stdout, err := rules.Output()
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(stdout, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "search", rows[1]["name"])
	assert.EqualValues(t, 4, rows[1]["requests"])
}
