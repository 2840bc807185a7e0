// Package remotes collects the remotes bundled with mfshell.
package remotes

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/najoast/mfshell/federation"
	"github.com/najoast/mfshell/remotes/mfe1"
	"github.com/najoast/mfshell/remotes/mfe2"
)

// Bundled builds a fresh registry for every bundled remote, keyed by name.
func Bundled(logger *zap.Logger) map[string]*federation.Registry {
	return map[string]*federation.Registry{
		mfe1.RemoteName: mfe1.NewRegistry(logger),
		mfe2.RemoteName: mfe2.NewRegistry(logger),
	}
}

// Names returns the bundled remote names in order.
func Names() []string {
	names := []string{mfe1.RemoteName, mfe2.RemoteName}
	sort.Strings(names)
	return names
}

// Lookup builds the registry of one bundled remote.
func Lookup(name string, logger *zap.Logger) (*federation.Registry, error) {
	reg, ok := Bundled(logger)[name]
	if !ok {
		return nil, fmt.Errorf("unknown bundled remote %q (have %v)", name, Names())
	}
	return reg, nil
}

// Install registers the implementations of every bundled remote in catalog
// and returns their registries.
func Install(catalog *federation.Catalog, logger *zap.Logger) (map[string]*federation.Registry, error) {
	bundled := Bundled(logger)
	for _, name := range Names() {
		if err := bundled[name].Install(catalog); err != nil {
			return nil, err
		}
	}
	return bundled, nil
}
