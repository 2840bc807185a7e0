package mfe1

import (
	"time"

	"go.uber.org/zap"

	"github.com/najoast/mfshell/federation"
)

const (
	// RemoteName is the remote's published name.
	RemoteName = "mfe1"

	// Feature1Component is the exposed name of Feature1.
	Feature1Component = "./Feature1Component"
)

// Shared lists the libraries mfe1 shares with the shell, by required version.
var Shared = map[string]string{
	"go.uber.org/zap":                      "^1.27.0",
	"github.com/najoast/mfshell/lifecycle": "^1.0.0",
}

// NewRegistry builds mfe1's registry. Units log through logger.
func NewRegistry(logger *zap.Logger) *federation.Registry {
	reg := federation.NewRegistry(RemoteName)
	reg.MustPublish(Feature1Component, func() (federation.Unit, error) {
		return NewFeature1(logger, time.Second), nil
	})
	if err := reg.ShareAll(Shared, true, true); err != nil {
		panic(err)
	}
	return reg
}
