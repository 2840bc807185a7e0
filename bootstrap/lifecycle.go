package bootstrap

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LifecycleManager starts services in dependency order and stops them in
// reverse.
type LifecycleManager struct {
	// services holds all registered services
	services map[string]Service

	// dependencies tracks service dependencies
	dependencies map[string][]string

	// startOrder tracks the order services were started
	startOrder []string

	mutex    sync.RWMutex
	started  bool
	stopping bool

	listeners []func(LifecycleEvent)
	logger    *zap.Logger

	// timeout for a single service operation
	timeout time.Duration
}

// NewLifecycleManager creates a new lifecycle manager
func NewLifecycleManager(logger *zap.Logger) *LifecycleManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleManager{
		services:     make(map[string]Service),
		dependencies: make(map[string][]string),
		logger:       logger,
		timeout:      30 * time.Second,
	}
}

// Register registers a service with the services it depends on
func (lm *LifecycleManager) Register(service Service, deps ...string) error {
	if service == nil {
		return fmt.Errorf("service cannot be nil")
	}
	name := service.Name()
	if name == "" {
		return fmt.Errorf("service name cannot be empty")
	}

	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if lm.started {
		return fmt.Errorf("cannot register service %s: lifecycle manager already started", name)
	}
	if _, exists := lm.services[name]; exists {
		return fmt.Errorf("service %s is already registered", name)
	}

	lm.services[name] = service
	lm.dependencies[name] = deps

	lm.emit(LifecycleEvent{
		Type:    EventRegistered,
		Service: name,
		Data:    map[string]interface{}{"dependencies": deps},
	})
	return nil
}

// Start starts all services in dependency order. When a service fails to
// start, the services already started are stopped again.
func (lm *LifecycleManager) Start(ctx context.Context) error {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if lm.started {
		return fmt.Errorf("lifecycle manager already started")
	}

	order, err := lm.calculateStartOrder()
	if err != nil {
		return &ApplicationError{Operation: "start", Err: err}
	}

	for _, name := range order {
		service := lm.services[name]
		lm.emit(LifecycleEvent{Type: EventStarting, Service: name})

		startCtx, cancel := context.WithTimeout(ctx, lm.timeout)
		err := service.Start(startCtx)
		cancel()

		if err != nil {
			lm.emit(LifecycleEvent{Type: EventStartFailed, Service: name, Error: err})
			lm.rollback(ctx)
			return &ApplicationError{Operation: "start", Service: name, Err: err}
		}

		lm.startOrder = append(lm.startOrder, name)
		lm.emit(LifecycleEvent{Type: EventStarted, Service: name})
	}

	lm.started = true
	lm.emit(LifecycleEvent{
		Type: EventAllStarted,
		Data: map[string]interface{}{"order": order},
	})
	return nil
}

func (lm *LifecycleManager) rollback(ctx context.Context) {
	if len(lm.startOrder) == 0 {
		return
	}
	lm.emit(LifecycleEvent{
		Type: EventRollingBack,
		Data: map[string]interface{}{"started": lm.startOrder},
	})
	lm.stopStarted(ctx)
}

// Stop stops all services in reverse start order and returns the last
// stop error.
func (lm *LifecycleManager) Stop(ctx context.Context) error {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if !lm.started {
		return nil
	}
	if lm.stopping {
		return fmt.Errorf("lifecycle manager already stopping")
	}

	lm.stopping = true
	err := lm.stopStarted(ctx)
	lm.started = false
	lm.stopping = false

	lm.emit(LifecycleEvent{Type: EventAllStopped})
	return err
}

func (lm *LifecycleManager) stopStarted(ctx context.Context) error {
	var lastError error
	for i := len(lm.startOrder) - 1; i >= 0; i-- {
		name := lm.startOrder[i]
		lm.emit(LifecycleEvent{Type: EventStopping, Service: name})

		stopCtx, cancel := context.WithTimeout(ctx, lm.timeout)
		err := lm.services[name].Stop(stopCtx)
		cancel()

		if err != nil {
			lastError = &ApplicationError{Operation: "stop", Service: name, Err: err}
			lm.emit(LifecycleEvent{Type: EventStopFailed, Service: name, Error: err})
			continue
		}
		lm.emit(LifecycleEvent{Type: EventStopped, Service: name})
	}
	lm.startOrder = nil
	return lastError
}

// Health returns the health status of all services
func (lm *LifecycleManager) Health(ctx context.Context) map[string]HealthStatus {
	lm.mutex.RLock()
	defer lm.mutex.RUnlock()

	health := make(map[string]HealthStatus, len(lm.services))
	for name, service := range lm.services {
		healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		status, err := service.Health(healthCtx)
		cancel()

		if err != nil {
			status = HealthStatus{State: HealthUnhealthy, Message: err.Error()}
		}
		status.LastCheck = time.Now()
		health[name] = status
	}
	return health
}

// Services returns all registered service names
func (lm *LifecycleManager) Services() []string {
	lm.mutex.RLock()
	defer lm.mutex.RUnlock()

	names := make([]string, 0, len(lm.services))
	for name := range lm.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AddListener adds a lifecycle event listener. Listeners run synchronously
// on the goroutine driving the lifecycle.
func (lm *LifecycleManager) AddListener(listener func(LifecycleEvent)) {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()
	lm.listeners = append(lm.listeners, listener)
}

// SetTimeout sets the timeout for service operations
func (lm *LifecycleManager) SetTimeout(timeout time.Duration) {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()
	lm.timeout = timeout
}

// IsStarted returns true if the lifecycle manager has been started
func (lm *LifecycleManager) IsStarted() bool {
	lm.mutex.RLock()
	defer lm.mutex.RUnlock()
	return lm.started
}

// calculateStartOrder orders services with Kahn's algorithm. Services with
// no pending dependencies start in name order.
func (lm *LifecycleManager) calculateStartOrder() ([]string, error) {
	inDegree := make(map[string]int, len(lm.services))
	graph := make(map[string][]string, len(lm.services))

	for service := range lm.services {
		inDegree[service] = 0
	}
	for service, deps := range lm.dependencies {
		for _, dep := range deps {
			if _, exists := lm.services[dep]; !exists {
				return nil, fmt.Errorf("dependency %s of service %s is not registered", dep, service)
			}
			graph[dep] = append(graph[dep], service)
			inDegree[service]++
		}
	}

	var queue []string
	for service, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, service)
		}
	}
	sort.Strings(queue)

	result := make([]string, 0, len(lm.services))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		var ready []string
		for _, dependent := range graph[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
		sort.Strings(ready)
		queue = append(queue, ready...)
	}

	if len(result) != len(lm.services) {
		return nil, fmt.Errorf("circular dependency detected")
	}
	return result, nil
}

// emit logs event and hands it to every listener. Called with the mutex held.
func (lm *LifecycleManager) emit(event LifecycleEvent) {
	event.Timestamp = time.Now()

	fields := []zap.Field{zap.String("event", string(event.Type))}
	if event.Service != "" {
		fields = append(fields, zap.String("service", event.Service))
	}
	if event.Error != nil {
		lm.logger.Error("lifecycle event", append(fields, zap.Error(event.Error))...)
	} else {
		lm.logger.Debug("lifecycle event", fields...)
	}

	for _, listener := range lm.listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					lm.logger.Error("lifecycle listener panicked", zap.Any("panic", r))
				}
			}()
			listener(event)
		}()
	}
}
