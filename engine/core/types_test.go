package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Version_And_StoreDir(t *testing.T) {
	t.Run("Should read version from env or fallback", func(t *testing.T) {
		t.Setenv("NIKA_VERSION", "v1.2.3")
		assert.Equal(t, "v1.2.3", GetVersion())
		os.Unsetenv("NIKA_VERSION")
		assert.Equal(t, "v0", GetVersion())
	})
	t.Run("Should resolve store dir", func(t *testing.T) {
		assert.Equal(t, ".nika", GetStoreDir(""))
		base := t.TempDir()
		assert.Equal(t, filepath.Join(base, ".nika"), GetStoreDir(base))
	})
}

func Test_Stringers_And_Status(t *testing.T) {
	t.Run("Should stringify source types", func(t *testing.T) {
		assert.Equal(t, "runner.Run", SourceRunner.String())
		assert.Equal(t, "agent.Loop", SourceAgent.String())
	})
	t.Run("Should validate statuses", func(t *testing.T) {
		assert.True(t, StatusPending.IsValid())
		assert.False(t, StatusType("X").IsValid())
		assert.False(t, StatusPending.IsTerminal())
		assert.True(t, StatusFailed.IsTerminal())
		assert.True(t, StatusAbandoned.IsTerminal())
	})
	t.Run("Should classify component types", func(t *testing.T) {
		assert.Equal(t, ComponentType("task"), ComponentTask)
		assert.Equal(t, ComponentType("mcp"), ComponentMcp)
	})
}
