package board

import (
	"context"
	"sync"

	"github.com/edaniels/golog"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// A Constructor builds a board from its config.
type Constructor func(ctx context.Context, conf Config, logger golog.Logger) (Board, error)

// An AttributeMapConverter turns a raw attribute map into a model specific config.
type AttributeMapConverter func(attributes map[string]interface{}) (interface{}, error)

// Registration stores how to build one board model.
type Registration struct {
	Constructor           Constructor
	AttributeMapConverter AttributeMapConverter
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Registration{}
)

// Register registers a board model. It panics on duplicate models or a missing constructor.
func Register(model string, reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, old := registry[model]; old {
		panic(model + " board model already registered")
	}
	if reg.Constructor == nil {
		panic("cannot register a nil constructor for board model " + model)
	}
	registry[model] = reg
}

// RegisteredModels returns the names of all registered board models, sorted.
func RegisteredModels() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	models := maps.Keys(registry)
	slices.Sort(models)
	return models
}

func lookup(model string) (Registration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registry[model]
	return reg, ok
}
