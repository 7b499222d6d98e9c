package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zirco-lang/zircon/internal/config"
	zerrors "github.com/zirco-lang/zircon/internal/errors"
	"github.com/zirco-lang/zircon/internal/paths"
	"github.com/zirco-lang/zircon/internal/toolchain"
)

type result struct {
	code   int
	stdout string
	stderr string
}

func newRoot(t *testing.T, toolchains ...string) *paths.Layout {
	t.Helper()
	root := t.TempDir()
	t.Setenv(paths.RootEnv, root)
	t.Setenv(config.EnvNoUpdateCheck, "1")
	t.Setenv(config.EnvLogLevel, "error")

	layout := paths.New(root)
	require.NoError(t, layout.EnsureDirectories())
	for _, tc := range toolchains {
		dir := layout.Toolchain(tc)
		require.NoError(t, os.MkdirAll(layout.ToolchainBin(tc), 0o755))
		require.NoError(t, os.MkdirAll(layout.ToolchainInclude(tc), 0o755))
		require.NoError(t, os.WriteFile(layout.ToolchainBinary(tc, paths.ExeName("zrc")), []byte("zrc"), 0o755))
		require.NoError(t, toolchain.WriteReceipt(dir, toolchain.Receipt{Name: tc, Source: toolchain.SourceImport}))
	}
	return layout
}

func zircon(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func TestList_Empty(t *testing.T) {
	newRoot(t)

	res := zircon(t, "", "list")
	assert.Equal(t, zerrors.ExitSuccess, res.code)
	assert.Contains(t, res.stdout, "No toolchains installed")
}

func TestSwitchThenCurrent(t *testing.T) {
	layout := newRoot(t, "v0.1.0", "v0.2.0")

	res := zircon(t, "", "switch", "v0.2.0")
	require.Equal(t, zerrors.ExitSuccess, res.code, res.stderr)

	res = zircon(t, "", "current")
	assert.Equal(t, zerrors.ExitSuccess, res.code)
	assert.Equal(t, "v0.2.0\n", res.stdout)

	res = zircon(t, "", "ls")
	assert.Equal(t, zerrors.ExitSuccess, res.code)
	assert.Contains(t, res.stdout, "  v0.1.0\n")
	assert.Contains(t, res.stdout, "* v0.2.0 (current)\n")

	target, err := os.Readlink(layout.BinaryLink(paths.ExeName("zrc")))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("..", "toolchains", "current", "bin", paths.ExeName("zrc")), target)
}

func TestCurrent_None(t *testing.T) {
	newRoot(t, "v0.1.0")

	res := zircon(t, "", "current")
	assert.Equal(t, zerrors.ExitSuccess, res.code)
	assert.Empty(t, res.stdout)
	assert.Contains(t, res.stderr, "No active toolchain")
}

func TestDelete_ExitCodes(t *testing.T) {
	layout := newRoot(t, "v0.1.0", "v0.2.0")
	require.Equal(t, zerrors.ExitSuccess, zircon(t, "", "switch", "v0.1.0").code)

	res := zircon(t, "", "delete", "v0.1.0")
	assert.Equal(t, zerrors.ExitUsage, res.code)
	assert.Contains(t, res.stderr, "active toolchain")
	assert.DirExists(t, layout.Toolchain("v0.1.0"))

	res = zircon(t, "", "delete", "missing")
	assert.Equal(t, zerrors.ExitUsage, res.code)

	res = zircon(t, "", "rm", "v0.2.0")
	assert.Equal(t, zerrors.ExitSuccess, res.code)
	assert.NoDirExists(t, layout.Toolchain("v0.2.0"))
}

func TestUsageErrors(t *testing.T) {
	newRoot(t)

	assert.Equal(t, zerrors.ExitUsage, zircon(t, "", "switch").code)
	assert.Equal(t, zerrors.ExitUsage, zircon(t, "", "list", "--bogus").code)
	assert.Equal(t, zerrors.ExitUsage, zircon(t, "", "delete", "a", "b").code)
}

func TestPrune(t *testing.T) {
	layout := newRoot(t, "v0.1.0", "v0.2.0", "nightly")
	require.Equal(t, zerrors.ExitSuccess, zircon(t, "", "switch", "nightly").code)

	t.Run("declined", func(t *testing.T) {
		res := zircon(t, "n\n", "prune")
		assert.Equal(t, zerrors.ExitSuccess, res.code)
		assert.Contains(t, res.stdout, "Aborted.")
		assert.DirExists(t, layout.Toolchain("v0.1.0"))
	})

	t.Run("confirmed", func(t *testing.T) {
		res := zircon(t, "", "prune", "--yes")
		assert.Equal(t, zerrors.ExitSuccess, res.code, res.stderr)
		assert.NoDirExists(t, layout.Toolchain("v0.1.0"))
		assert.NoDirExists(t, layout.Toolchain("v0.2.0"))
		assert.DirExists(t, layout.Toolchain("nightly"))
	})

	t.Run("nothing left", func(t *testing.T) {
		res := zircon(t, "", "prune", "-y")
		assert.Equal(t, zerrors.ExitSuccess, res.code)
		assert.Contains(t, res.stdout, "Nothing to prune.")
	})
}

func TestVerify(t *testing.T) {
	layout := newRoot(t, "v0.1.0", "broken")
	require.NoError(t, os.Remove(layout.ToolchainBinary("broken", paths.ExeName("zrc"))))

	res := zircon(t, "", "verify", "v0.1.0")
	assert.Equal(t, zerrors.ExitSuccess, res.code, res.stdout)

	res = zircon(t, "", "verify")
	assert.Equal(t, zerrors.ExitPayload, res.code)
	assert.Contains(t, res.stdout, "✗ broken")
}
