package checker

import (
	"fmt"
	"os/exec"
	"slices"

	"github.com/ludo-technologies/pyqc/domain"
	"github.com/ludo-technologies/pyqc/internal/config"
	"github.com/ludo-technologies/pyqc/internal/constants"
)

// Registry is the explicit, ordered set of available checkers
type Registry struct {
	checkers []domain.Checker
	byName   map[string]domain.Checker
}

// NewRegistry creates a registry from checkers in order
func NewRegistry(checkers ...domain.Checker) (*Registry, error) {
	r := &Registry{byName: make(map[string]domain.Checker, len(checkers))}
	for _, c := range checkers {
		if _, dup := r.byName[c.Name()]; dup {
			return nil, domain.NewConfigError("", fmt.Sprintf("checker %q registered twice", c.Name()), nil)
		}
		r.byName[c.Name()] = c
		r.checkers = append(r.checkers, c)
	}
	return r, nil
}

// FromConfig builds a registry holding the enabled checkers in configured order
func FromConfig(cfg *config.Config) (*Registry, error) {
	opts := Options{Dir: cfg.Root()}

	custom := make(map[string]config.CommandCheckerConfig, len(cfg.CustomCheckers))
	for _, cc := range cfg.CustomCheckers {
		custom[cc.Name] = cc
	}

	checkers := make([]domain.Checker, 0, len(cfg.Checkers.Enabled))
	for _, name := range cfg.Checkers.Enabled {
		switch name {
		case constants.CheckerRuffLint:
			checkers = append(checkers, NewRuffLint(cfg.Checkers, opts))
		case constants.CheckerRuffFormat:
			checkers = append(checkers, NewRuffFormat(cfg.Checkers, opts))
		case constants.CheckerMypy:
			checkers = append(checkers, NewMypy(cfg.Checkers, opts))
		default:
			cc, ok := custom[name]
			if !ok {
				return nil, domain.NewConfigError(cfg.Source(), fmt.Sprintf("unknown checker %q", name), nil)
			}
			c, err := NewCommand(cc, opts)
			if err != nil {
				return nil, err
			}
			checkers = append(checkers, c)
		}
	}
	return NewRegistry(checkers...)
}

// All returns every registered checker in order
func (r *Registry) All() []domain.Checker {
	return slices.Clone(r.checkers)
}

// Names returns the registered checker names in order
func (r *Registry) Names() []string {
	names := make([]string, len(r.checkers))
	for i, c := range r.checkers {
		names[i] = c.Name()
	}
	return names
}

// Get looks up a checker by name
func (r *Registry) Get(name string) (domain.Checker, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// Select returns the named checkers in registry order; empty names selects all
func (r *Registry) Select(names []string) ([]domain.Checker, error) {
	if len(names) == 0 {
		return r.All(), nil
	}
	for _, n := range names {
		if _, ok := r.byName[n]; !ok {
			return nil, domain.NewConfigError("", fmt.Sprintf("checker %q is not enabled", n), nil)
		}
	}
	selected := make([]domain.Checker, 0, len(names))
	for _, c := range r.checkers {
		if slices.Contains(names, c.Name()) {
			selected = append(selected, c)
		}
	}
	return selected, nil
}

// WithCapability returns the names of checkers declaring capability
func (r *Registry) WithCapability(capability domain.Capability) []string {
	var names []string
	for _, c := range r.checkers {
		if slices.Contains(c.Capabilities(), capability) {
			names = append(names, c.Name())
		}
	}
	return names
}

// Fixers filters checkers down to those supporting autofix, keeping order
func Fixers(checkers []domain.Checker) []domain.Checker {
	var fixers []domain.Checker
	for _, c := range checkers {
		if c.SupportsFix() {
			fixers = append(fixers, c)
		}
	}
	return fixers
}

// LookPath is swapped out in tests
var LookPath = exec.LookPath

// Preflight verifies every checker's executable can be found before any
// work is scheduled. A missing tool aborts the run.
func Preflight(checkers []domain.Checker) error {
	for _, c := range checkers {
		if _, err := LookPath(c.Executable()); err != nil {
			return domain.NewToolUnavailableError(c.Name(), c.Executable(), err)
		}
	}
	return nil
}
