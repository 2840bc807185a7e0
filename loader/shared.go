package loader

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/mod/semver"

	"github.com/najoast/mfshell/federation"
)

// ActiveLib is a shared library instance currently active in the process.
type ActiveLib struct {
	Name      string
	Version   string
	Owner     string
	Singleton bool
}

// SharedScope is the set of active shared libraries. It is written only
// during dependency negotiation and scoped to one shell instance.
type SharedScope struct {
	mu     sync.RWMutex
	active map[string]ActiveLib
	logger *zap.Logger
}

// NewSharedScope creates an empty scope.
func NewSharedScope(logger *zap.Logger) *SharedScope {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SharedScope{
		active: make(map[string]ActiveLib),
		logger: logger,
	}
}

// Provide activates a library owned by the shell itself. It is meant for
// startup, before any remote is loaded.
func (s *SharedScope) Provide(name, version string, singleton bool) error {
	if _, ok := canonical(version); !ok {
		return fmt.Errorf("shared library %s: invalid version %q", name, version)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.active[name]; ok {
		return fmt.Errorf("shared library %s already active at %s (owner %s)",
			name, existing.Version, existing.Owner)
	}
	s.active[name] = ActiveLib{Name: name, Version: strings.TrimPrefix(version, "v"), Owner: "shell", Singleton: singleton}
	return nil
}

// Negotiate checks the shared requirements of remote against the active
// set and activates the libraries not yet present. Nothing is activated
// when any requirement conflicts.
func (s *SharedScope) Negotiate(remote string, libs []federation.SharedLib) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make([]ActiveLib, 0, len(libs))
	for _, lib := range libs {
		active, ok := s.active[lib.Name]
		if !ok {
			version, _ := canonical(lib.RequiredVersion)
			staged = append(staged, ActiveLib{
				Name:      lib.Name,
				Version:   strings.TrimPrefix(version, "v"),
				Owner:     remote,
				Singleton: lib.Singleton,
			})
			continue
		}

		if Satisfies(active.Version, lib.RequiredVersion) {
			continue
		}

		singleton := lib.Singleton || active.Singleton
		if singleton && lib.StrictVersion {
			return fmt.Errorf("%w: %s requires %s %s but %s is active (owner %s)",
				ErrDependencyConflict, remote, lib.Name, lib.RequiredVersion, active.Version, active.Owner)
		}

		s.logger.Warn("shared library version mismatch tolerated",
			zap.String("remote", remote),
			zap.String("library", lib.Name),
			zap.String("required", lib.RequiredVersion),
			zap.String("active", active.Version),
			zap.Bool("singleton", singleton))
	}

	for _, lib := range staged {
		s.active[lib.Name] = lib
		s.logger.Debug("shared library activated",
			zap.String("library", lib.Name),
			zap.String("version", lib.Version),
			zap.String("owner", lib.Owner))
	}
	return nil
}

// Active returns the active libraries sorted by name.
func (s *SharedScope) Active() []ActiveLib {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]ActiveLib, 0, len(s.active))
	for _, lib := range s.active {
		list = append(list, lib)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list
}

// Satisfies reports whether the active version meets a required version
// constraint. Supported forms: "^1.2.3", "~1.2.3", "=1.2.3", a bare version
// (treated like "^"), and "*" or "" for any version. Unparseable versions
// only match themselves.
func Satisfies(active, required string) bool {
	required = strings.TrimSpace(required)
	if required == "" || required == "*" {
		return true
	}

	op := byte('^')
	switch required[0] {
	case '^', '~', '=':
		op = required[0]
		required = required[1:]
	}

	have, okHave := canonical(active)
	want, okWant := canonical(required)
	if !okHave || !okWant {
		return strings.TrimPrefix(active, "v") == strings.TrimPrefix(required, "v")
	}

	switch op {
	case '=':
		return semver.Compare(have, want) == 0
	case '~':
		return semver.MajorMinor(have) == semver.MajorMinor(want) && semver.Compare(have, want) >= 0
	default:
		if semver.Major(want) == "v0" {
			return semver.MajorMinor(have) == semver.MajorMinor(want) && semver.Compare(have, want) >= 0
		}
		return semver.Major(have) == semver.Major(want) && semver.Compare(have, want) >= 0
	}
}

func canonical(version string) (string, bool) {
	version = strings.TrimSpace(version)
	version = strings.TrimLeft(version, "^~=")
	if !strings.HasPrefix(version, "v") {
		version = "v" + version
	}
	if !semver.IsValid(version) {
		return version, false
	}
	return semver.Canonical(version), true
}
