package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/MegaGrindStone/chat-web-ui/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintLast(t *testing.T) {
	local, err := services.NewLocalStore(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	defer local.Close()

	var out bytes.Buffer
	require.NoError(t, printLast(&out, local, false))
	assert.Contains(t, out.String(), "no reply kept")

	require.NoError(t, local.BackupResponse("chat-1", "first reply"))
	require.NoError(t, local.BackupResponse("chat-2", "<think>hmm</think>second reply"))

	out.Reset()
	require.NoError(t, printLast(&out, local, false))
	assert.Contains(t, out.String(), "chat chat-2")
	assert.Contains(t, out.String(), "second reply")
	assert.NotContains(t, out.String(), "first reply")

	out.Reset()
	require.NoError(t, printLast(&out, local, true))
	assert.Contains(t, out.String(), "hmm")
	assert.Contains(t, out.String(), "second reply")
	assert.NotContains(t, out.String(), "<think>")
}
