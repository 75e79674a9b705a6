package app

import (
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// runConfigFile is the HCL run-configuration schema:
//
//	on_error       = "continue"
//	max_iterations = 100
//
//	instrument "dmm" {
//	  driver  = "scpi.tcp"
//	  address = "10.0.0.5:5025"
//	}
//
// Instrument blocks rebind script aliases without editing the script.
type runConfigFile struct {
	OnError       *string           `hcl:"on_error,optional"`
	MaxIterations *int              `hcl:"max_iterations,optional"`
	Instruments   []instrumentBlock `hcl:"instrument,block"`
}

type instrumentBlock struct {
	Alias   string `hcl:"alias,label"`
	Driver  string `hcl:"driver,optional"`
	Address string `hcl:"address,optional"`
}

// loadRunConfig parses an HCL run-configuration file.
func loadRunConfig(path string) (*runConfigFile, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing run config %s: %s", path, diags.Error())
	}
	var out runConfigFile
	if diags := gohcl.DecodeBody(file.Body, nil, &out); diags.HasErrors() {
		return nil, fmt.Errorf("decoding run config %s: %s", path, diags.Error())
	}
	return &out, nil
}
