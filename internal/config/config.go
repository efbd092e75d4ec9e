package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models factoryline.yml. It is imported into the database per plant
// and injected into engine calls; the lot-size threshold in particular is
// always passed by value into classification, never read as a global.
type Config struct {
	Plant struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"plant"`
	Orders struct {
		LotSizeThreshold int `yaml:"lot_size_threshold"`
	} `yaml:"orders"`
	Stock struct {
		DefaultLowThreshold int `yaml:"default_low_threshold"`
	} `yaml:"stock"`
	Workstations map[int]Workstation `yaml:"workstations"`
}

type Workstation struct {
	Name string `yaml:"name"`
	Role string `yaml:"role"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with fl plant config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Plant.ID == "" {
		return fmt.Errorf("config.plant.id is required")
	}
	if c.Orders.LotSizeThreshold <= 0 {
		return fmt.Errorf("config.orders.lot_size_threshold must be positive")
	}
	if c.Stock.DefaultLowThreshold < 0 {
		return fmt.Errorf("config.stock.default_low_threshold must not be negative")
	}
	if len(c.Workstations) > 0 {
		for id, ws := range c.Workstations {
			if id < 1 || id > 9 {
				return fmt.Errorf("workstation id %d out of range 1..9", id)
			}
			if ws.Name == "" {
				return fmt.Errorf("workstation %d has no name", id)
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "factoryline.yml")
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a plant.
func Default(plantID string) *Config {
	var cfg Config
	cfg.Plant.ID = plantID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, plantID))).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault(plantID string) string {
	return fmt.Sprintf(defaultTemplate, plantID)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `plant:
  id: %s
  name: Simulated Factory

orders:
  lot_size_threshold: 500

stock:
  default_low_threshold: 10

workstations:
  1: {name: Drilling, role: parts}
  2: {name: Milling, role: parts}
  3: {name: Assembly Prep, role: parts}
  4: {name: Finishing, role: parts}
  5: {name: Modules Supermarket, role: buffer}
  6: {name: Final Assembly, role: assembly}
  7: {name: Plant Warehouse, role: warehouse}
  8: {name: Parts Supply, role: supply}
  9: {name: Production Control, role: control}
`
