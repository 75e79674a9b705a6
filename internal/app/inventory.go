package app

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/atomsai/testflow"
)

// inventoryFile is the YAML lab-inventory schema:
//
//	instruments:
//	  dmm:
//	    driver: scpi.tcp
//	    address: 10.0.0.5:5025
//	  psu:
//	    address: 10.0.0.7:5025
//
// Inventories are shared across scripts; a missing field keeps the script's
// own declaration.
type inventoryFile struct {
	Instruments map[string]inventoryEntry `yaml:"instruments"`
}

type inventoryEntry struct {
	Driver  string `yaml:"driver"`
	Address string `yaml:"address"`
}

// loadInventory reads a YAML instrument inventory into override form.
func loadInventory(path string) (map[string]testflow.Override, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading inventory: %w", err)
	}
	var file inventoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decoding inventory %s: %w", path, err)
	}
	overrides := make(map[string]testflow.Override, len(file.Instruments))
	for alias, entry := range file.Instruments {
		overrides[alias] = testflow.Override{Driver: entry.Driver, Address: entry.Address}
	}
	return overrides, nil
}
