package browser

import (
	"fmt"

	"github.com/entrhq/askweb/pkg/config"
	"github.com/entrhq/askweb/pkg/logging"
)

// Pipeline bundles the parts wired together for a running process.
type Pipeline struct {
	Manager  *Manager
	Recovery *RecoveryMachine
	Searcher *Searcher
}

// NewPipeline validates cfg and wires finder, navigator, manager, recovery
// and searcher. rec may be nil.
func NewPipeline(cfg *config.Config, rec Recorder, log *logging.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	finder := NewSelectorFinder(cfg, log)
	nav, err := NewNavigator(cfg, finder, log)
	if err != nil {
		return nil, err
	}

	manager := NewManager(cfg, nav, log)
	recovery := NewRecoveryMachine(manager, log)
	searcher := NewSearcher(cfg, manager, recovery, finder, log)
	recovery.SetRecorder(rec)
	searcher.SetRecorder(rec)

	return &Pipeline{Manager: manager, Recovery: recovery, Searcher: searcher}, nil
}
