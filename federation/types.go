// Package federation defines what a remote publishes and what the shell
// consumes: remote descriptors, exposed-unit references, the manifest wire
// form and the Unit contract every exposed implementation satisfies.
package federation

import (
	"context"
	"fmt"
)

// RemoteDescriptor identifies one independently deployed remote.
type RemoteDescriptor struct {
	// Name is unique per remote
	Name string `yaml:"name" json:"name"`

	// EntryLocation is the URL of the remote's fetchable manifest
	EntryLocation string `yaml:"entry" json:"entry"`
}

// String returns a string representation of the descriptor.
func (d RemoteDescriptor) String() string {
	return fmt.Sprintf("%s(%s)", d.Name, d.EntryLocation)
}

// ExposedRef points at one exposed unit of a remote.
type ExposedRef struct {
	Remote      RemoteDescriptor
	ExposedName string
}

// String returns a string representation of the reference.
func (r ExposedRef) String() string {
	return r.Remote.Name + "/" + r.ExposedName
}

// SharedLib declares a library shared between the shell and remotes rather
// than bundled privately.
type SharedLib struct {
	Name            string `json:"name" yaml:"name"`
	RequiredVersion string `json:"requiredVersion" yaml:"required_version"`

	// Singleton allows at most one active instance across shell and remotes
	Singleton bool `json:"singleton" yaml:"singleton"`

	// StrictVersion fails loading on an incompatible active version
	StrictVersion bool `json:"strictVersion" yaml:"strict_version"`
}

// Unit is the capability every exposed implementation satisfies.
type Unit interface {
	// Name returns the unit's display name.
	Name() string

	// Mount attaches the unit to the active view.
	Mount(ctx context.Context) error

	// Render returns the unit's current presentation.
	Render() string

	// Teardown is called exactly once when the unit leaves the view.
	Teardown()
}

// Action executes a unit command and returns a short result.
type Action func() (string, error)

// Actionable is implemented by units that accept commands while mounted.
type Actionable interface {
	Actions() map[string]Action
}

// Factory constructs a fresh unit instance.
type Factory func() (Unit, error)
