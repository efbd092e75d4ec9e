package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := Default("plant-1")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "plant-1", cfg.Plant.ID)
	assert.Equal(t, 500, cfg.Orders.LotSizeThreshold)
	assert.Equal(t, 10, cfg.Stock.DefaultLowThreshold)
	assert.Len(t, cfg.Workstations, 9)
	assert.Equal(t, "Plant Warehouse", cfg.Workstations[7].Name)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing plant id", func(c *Config) { c.Plant.ID = "" }},
		{"zero lot size", func(c *Config) { c.Orders.LotSizeThreshold = 0 }},
		{"negative low threshold", func(c *Config) { c.Stock.DefaultLowThreshold = -1 }},
		{"workstation out of range", func(c *Config) {
			c.Workstations[10] = Workstation{Name: "Ghost"}
		}},
		{"unnamed workstation", func(c *Config) {
			c.Workstations[3] = Workstation{}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default("plant-1")
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFromWorkspace(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "factoryline.yml"), []byte(GenerateDefault("plant-x")), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "plant-x", cfg.Plant.ID)

	_, err = Load(t.TempDir())
	assert.Error(t, err)

	cfg, err = LoadOptional(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestFromYAMLRejectsGarbage(t *testing.T) {
	_, err := FromYAML([]byte("plant: ["))
	assert.Error(t, err)
}
