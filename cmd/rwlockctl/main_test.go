package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srediag/xproc-rwlock/pkg/rwlock"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestReaderCommand(t *testing.T) {
	out, err := execute(t, "--backend", "memory", "--name", t.Name(), "--log-level", "5",
		"reader", "--iterations", "3", "--retry-for", "0")
	require.NoError(t, err)
	assert.Equal(t, "Read 0 Critical Section\nRead 1 Critical Section\nRead 2 Critical Section\n", out)
}

func TestWriterCommand(t *testing.T) {
	out, err := execute(t, "--backend", "memory", "--name", t.Name(), "--log-level", "5",
		"writer", "--iterations", "2", "--hold", "0s")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "Critical Section"))
}

func TestStressCommand(t *testing.T) {
	out, err := execute(t, "--backend", "memory", "--name", t.Name(), "--log-level", "5", "--max-readers", "3",
		"stress", "--readers", "3", "--writers", "1", "--rounds", "5", "--hold", "0s")
	require.NoError(t, err)
	assert.Contains(t, out, "violations=0")
}

func TestRemoveCommand(t *testing.T) {
	_, err := execute(t, "--backend", "memory", "--name", t.Name(), "--log-level", "5", "remove")
	assert.NoError(t, err)
}

func TestBadFlags(t *testing.T) {
	_, err := execute(t, "--backend", "floppy", "--log-level", "5", "reader")
	assert.ErrorContains(t, err, "unknown backend")

	_, err = execute(t, "--backend", "memory", "--max-readers", "0", "--log-level", "5", "reader")
	assert.ErrorIs(t, err, rwlock.ErrInvalidMaxReaders)

	_, err = execute(t, "--backend", "memory", "--name", "", "--log-level", "5", "remove")
	assert.ErrorIs(t, err, rwlock.ErrEmptyName)
}

func TestNegativeTimeoutBlocks(t *testing.T) {
	o := &options{name: "x", maxReaders: 1, timeout: -5, backend: backendMemory}
	cfg, err := o.lockConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, rwlock.Infinite, cfg.Timeout)
}
