package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/c12s/mlsttree/radio"
	"github.com/c12s/mlsttree/tree"
)

func TestLoad_AppliesDefaultsWithNoFileOrEnv(t *testing.T) {
	cfg, err := Load("")
	assert.NoError(t, err)
	assert.Equal(t, tree.VariantBase, cfg.ToVariant())
	assert.Equal(t, 15*time.Second, cfg.MaxNeighborAge())
	assert.Equal(t, time.Second, cfg.Period())
	assert.Equal(t, 5*time.Second, cfg.MaxParentAge())
	assert.Equal(t, 200*time.Millisecond, cfg.UnicastTimeout())
	assert.Equal(t, 5, cfg.UnicastMaxTries)
}

func TestLoad_ReadsValuesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	contents := "self: 7\nis_root: true\nvariant: ea2\nenergy_state: 2\n"
	assert.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, radio.NodeID(7), cfg.SelfID())
	assert.True(t, cfg.IsRoot)
	assert.Equal(t, tree.VariantEA2, cfg.ToVariant())
	assert.Equal(t, uint8(2), cfg.EnergyState)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	assert.NoError(t, os.WriteFile(path, []byte("self: 7\nvariant: base\n"), 0o644))

	t.Setenv("MLST_SELF", "9")
	t.Setenv("MLST_VARIANT", "ea1")

	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, radio.NodeID(9), cfg.SelfID())
	assert.Equal(t, tree.VariantEA1, cfg.ToVariant())
}

func TestNodeConfig_ToVariantDefaultsToBaseForUnrecognizedName(t *testing.T) {
	cfg := NodeConfig{Variant: "nonsense"}
	assert.Equal(t, tree.VariantBase, cfg.ToVariant())
}
