package mfe2

import (
	"go.uber.org/zap"

	"github.com/najoast/mfshell/federation"
)

const (
	// RemoteName is the remote's published name.
	RemoteName = "mfe2"

	// Feature2Component is the exposed name of Feature2.
	Feature2Component = "./Feature2Component"
)

// Shared lists the libraries mfe2 shares with the shell, by required version.
var Shared = map[string]string{
	"go.uber.org/zap":                      "^1.27.0",
	"github.com/najoast/mfshell/lifecycle": "^1.0.0",
}

// NewRegistry builds mfe2's registry.
func NewRegistry(logger *zap.Logger) *federation.Registry {
	reg := federation.NewRegistry(RemoteName)
	reg.MustPublish(Feature2Component, func() (federation.Unit, error) {
		return NewFeature2(logger), nil
	})
	if err := reg.ShareAll(Shared, true, true); err != nil {
		panic(err)
	}
	return reg
}
