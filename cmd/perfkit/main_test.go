// main_test.go - Tests for CLI routing, exit codes and command output.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME and the working directory at an empty temp dir and
// blanks PERFKIT_* so only flags influence the config.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)
	for _, kv := range os.Environ() {
		if k, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, "PERFKIT_") {
			t.Setenv(k, "")
		}
	}
	return dir
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), append([]string{"perfkit"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

type jsonResult struct {
	Success bool            `json:"success"`
	Command string          `json:"command"`
	Summary string          `json:"summary"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func decodeResult(t *testing.T, out string) jsonResult {
	t.Helper()
	var r jsonResult
	require.NoError(t, json.Unmarshal([]byte(out), &r), out)
	return r
}

func TestRunHelp(t *testing.T) {
	isolate(t)
	code, out, _ := runCLI(t, "--help")
	assert.Equal(t, exitOK, code)
	for _, cmd := range []string{"serve", "probe", "score", "bundle", "range", "mcp"} {
		assert.Contains(t, out, cmd)
	}
}

func TestRunVersion(t *testing.T) {
	isolate(t)
	code, out, _ := runCLI(t, "--version")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, version)
}

func TestInvalidConfigIsUsageError(t *testing.T) {
	isolate(t)
	code, _, errOut := runCLI(t, "--format", "xml", "range", "--item-height", "10", "--container-height", "100", "--count", "5")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, errOut, "format")
}

// ============================================
// range
// ============================================

func TestRangeHuman(t *testing.T) {
	isolate(t)
	code, out, _ := runCLI(t, "range",
		"--scroll-top", "2500", "--item-height", "50", "--container-height", "500",
		"--count", "1000", "--index", "999", "--align", "end")
	require.Equal(t, exitOK, code, out)
	assert.Contains(t, out, "[OK] range: Render rows 45-65 (21 of 1000)")
	assert.Contains(t, out, "50000px")
	assert.Contains(t, out, "49500px")
}

func TestRangeJSON(t *testing.T) {
	isolate(t)
	code, out, _ := runCLI(t, "--format", "json", "range",
		"--scroll-top", "0", "--item-height", "20", "--container-height", "100", "--count", "3")
	require.Equal(t, exitOK, code, out)

	r := decodeResult(t, out)
	assert.True(t, r.Success)
	var data struct {
		Range struct {
			Start int `json:"start"`
			End   int `json:"end"`
		} `json:"range"`
		Rendered     int      `json:"rendered"`
		TotalSize    float64  `json:"total_size"`
		ScrollOffset *float64 `json:"scroll_offset"`
	}
	require.NoError(t, json.Unmarshal(r.Data, &data))
	assert.Equal(t, 0, data.Range.Start)
	assert.Equal(t, 2, data.Range.End)
	assert.Equal(t, 3, data.Rendered)
	assert.Equal(t, 60.0, data.TotalSize)
	assert.Nil(t, data.ScrollOffset)
}

func TestRangeRejectsNonPositiveHeight(t *testing.T) {
	isolate(t)
	code, _, errOut := runCLI(t, "range", "--item-height", "0", "--container-height", "100", "--count", "5")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, errOut, "--item-height must be positive")
}

// ============================================
// score
// ============================================

func TestScoreSnapshot(t *testing.T) {
	dir := isolate(t)
	snap := writeFile(t, dir, "snap.json", `{"lcp":3000,"fid":150,"cls":0.02}`)

	code, out, _ := runCLI(t, "score", snap)
	require.Equal(t, exitOK, code, out)
	assert.Contains(t, out, "Performance score 70/100")
	assert.Contains(t, out, "3000ms (needs-improvement)")
	assert.Contains(t, out, "0.020 (good)")

	code, out, _ = runCLI(t, "--format", "json", "score", snap)
	require.Equal(t, exitOK, code)
	var report struct {
		Score   int               `json:"score"`
		Ratings map[string]string `json:"ratings"`
	}
	require.NoError(t, json.Unmarshal(decodeResult(t, out).Data, &report))
	assert.Equal(t, 70, report.Score)
	assert.Equal(t, "needs-improvement", report.Ratings["fid"])
}

func TestScoreFailUnder(t *testing.T) {
	dir := isolate(t)
	snap := writeFile(t, dir, "snap.json", `{"lcp":3000,"fid":150}`)

	code, out, _ := runCLI(t, "score", "--fail-under", "80", snap)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, out, "[Error] score")
	assert.Contains(t, out, "score 70 is below 80")
}

func TestScoreBaselineRegression(t *testing.T) {
	dir := isolate(t)
	before := writeFile(t, dir, "before.json", `{"lcp":2000}`)
	after := writeFile(t, dir, "after.json", `{"lcp":3000}`)

	code, out, _ := runCLI(t, "--format", "json", "score", "--baseline", before, after)
	assert.Equal(t, exitFailure, code)
	r := decodeResult(t, out)
	assert.False(t, r.Success)
	var data struct {
		Diff struct {
			Verdict string `json:"verdict"`
		} `json:"diff"`
	}
	require.NoError(t, json.Unmarshal(r.Data, &data))
	assert.Equal(t, "regressed", data.Diff.Verdict)

	code, _, _ = runCLI(t, "score", "--baseline", after, before)
	assert.Equal(t, exitOK, code, "an improvement passes")
}

func TestScoreErrors(t *testing.T) {
	dir := isolate(t)

	code, _, _ := runCLI(t, "score")
	assert.Equal(t, exitUsage, code)

	code, out, _ := runCLI(t, "score", filepath.Join(dir, "missing.json"))
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, out, "read snapshot")

	bad := writeFile(t, dir, "bad.json", "{")
	code, out, _ = runCLI(t, "--format", "json", "score", bad)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, decodeResult(t, out).Error, "parse snapshot")
}

// ============================================
// bundle
// ============================================

const metafile = `{
  "inputs": {
    "src/index.ts": {"bytes": 2000},
    "node_modules/react/index.js": {"bytes": 7000},
    "node_modules/lib/node_modules/react/index.js": {"bytes": 6000}
  },
  "outputs": {
    "dist/main.js": {
      "bytes": 14000,
      "entryPoint": "src/index.ts",
      "inputs": {
        "src/index.ts": {"bytesInOutput": 1500},
        "node_modules/react/index.js": {"bytesInOutput": 6500}
      }
    },
    "dist/lazy.js": {
      "bytes": 6000,
      "inputs": {
        "node_modules/lib/node_modules/react/index.js": {"bytesInOutput": 5500}
      }
    }
  }
}`

func TestBundleCommand(t *testing.T) {
	dir := isolate(t)
	path := writeFile(t, dir, "meta.json", metafile)

	code, out, _ := runCLI(t, "--format", "json", "bundle", path)
	require.Equal(t, exitOK, code, out)
	r := decodeResult(t, out)
	assert.Equal(t, "bundle", r.Command)
	var report struct {
		Score   int `json:"score"`
		Metrics struct {
			Modules    []json.RawMessage `json:"modules"`
			Duplicates []struct {
				Name string `json:"name"`
			} `json:"duplicates"`
		} `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(r.Data, &report))
	assert.Len(t, report.Metrics.Modules, 3)
	require.Len(t, report.Metrics.Duplicates, 1)
	assert.Equal(t, "react", report.Metrics.Duplicates[0].Name)

	code, out, _ = runCLI(t, "--metafile", path, "bundle")
	require.Equal(t, exitOK, code, out)
	assert.Contains(t, out, "duplicates:")
}

func TestBundleNeedsMetafile(t *testing.T) {
	isolate(t)
	code, _, errOut := runCLI(t, "bundle")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, errOut, "metafile")
}

// ============================================
// probe
// ============================================

func TestProbeRejectsRelativeURL(t *testing.T) {
	isolate(t)
	code, _, errOut := runCLI(t, "probe", "/just/a/path")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, errOut, "absolute")

	code, _, _ = runCLI(t, "probe")
	assert.Equal(t, exitUsage, code)
}
