package lifecycle

import (
	"go.uber.org/zap"
)

// Scope is the lifecycle capability a unit holds by composition. It owns
// exactly one Token for the lifetime of the unit instance.
type Scope struct {
	name   string
	token  *Token
	logger *zap.Logger
}

// NewScope creates a scope with a fresh token. A nil logger disables logging.
func NewScope(name string, logger *zap.Logger) *Scope {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scope{
		name:   name,
		token:  NewToken(),
		logger: logger,
	}
}

// Token returns the cancellation signal subscriptions register against.
func (s *Scope) Token() *Token {
	return s.token
}

// Destroy fires the scope's token. The hosting environment calls it once
// when the unit is removed from the active view.
func (s *Scope) Destroy() {
	pending := s.token.pending()
	s.token.Signal()
	s.logger.Debug("unit destroyed, subscriptions cancelled",
		zap.String("unit", s.name),
		zap.Int("subscriptions", pending))
}

// Track ties sub to the scope: the subscription is cancelled on Destroy.
func (s *Scope) Track(sub *Subscription) {
	s.token.OnCancel(sub.Unsubscribe)
}
