package app

import (
	"github.com/nfrund/hexarena/internal/module"
	"github.com/nfrund/hexarena/internal/modules/battle"
)

// NewModules returns the list of all active modules for the application.
// This is the single source of truth for which features are enabled.
func NewModules() []module.Module {
	return []module.Module{
		battle.New(),
	}
}
