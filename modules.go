package testflow

import (
	"github.com/atomsai/testflow/internal/instrument"
	"github.com/atomsai/testflow/modules/gateway"
	"github.com/atomsai/testflow/modules/lxihttp"
	"github.com/atomsai/testflow/modules/scpitcp"
	"github.com/atomsai/testflow/modules/sim"
)

// DefaultModules is the definitive list of instrument drivers compiled into
// the stock engine and CLI.
func DefaultModules() []instrument.Module {
	return []instrument.Module{
		&sim.Module{},
		&scpitcp.Module{},
		&lxihttp.Module{},
		&gateway.Module{},
	}
}
