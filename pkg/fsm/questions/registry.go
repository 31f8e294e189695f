package questions

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"jobybot/pkg/config"
)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]QuestionStrategy)

	builtinsOnce sync.Once
)

// RegisterBuiltins registers the text, digits and phone strategies and makes
// config validation check steps against the registry.
func RegisterBuiltins() {
	builtinsOnce.Do(func() {
		MustRegister(NewTextStrategy())
		MustRegister(NewDigitsStrategy())
		MustRegister(NewPhoneStrategy())
		config.RegisterStepValidator(validateStep)
	})
}

func validateStep(flowID string, step config.StepConfig) error {
	strat := Get(step.Strategy)
	if strat == nil {
		return fmt.Errorf("config validation failed: state '%s' in flow '%s' has unknown strategy '%s' (known: %s)",
			step.State, flowID, step.Strategy, strings.Join(Names(), ", "))
	}
	return strat.Validate(flowID, step)
}

// MustRegister adds a strategy to the registry, panicking when a duplicate name is registered.
func MustRegister(strategy QuestionStrategy) {
	if strategy == nil {
		panic("cannot register nil strategy")
	}

	key := normalize(strategy.Name())
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[key]; exists {
		panic(fmt.Sprintf("question strategy '%s' already registered", strategy.Name()))
	}
	registry[key] = strategy
}

// Get returns the strategy for the given name, or nil when absent.
func Get(name string) QuestionStrategy {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[normalize(name)]
}

// ForStep returns the strategy a step is configured with.
func ForStep(step config.StepConfig) (QuestionStrategy, error) {
	strat := Get(step.Strategy)
	if strat == nil {
		return nil, fmt.Errorf("no strategy '%s' for state '%s'", step.Strategy, step.State)
	}
	return strat, nil
}

// Names lists the registered strategies in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalize(name string) string {
	return strings.TrimSpace(strings.ToLower(name))
}

// resetRegistryForTests wipes registration state. Only used inside unit tests.
func resetRegistryForTests() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]QuestionStrategy)
	builtinsOnce = sync.Once{}
	config.RegisterStepValidator(nil)
}
