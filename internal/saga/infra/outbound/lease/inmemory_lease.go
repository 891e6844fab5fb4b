package lease

import (
	"context"
	"sync"
	"time"

	sagaDomain "github.com/davicafu/sagalab/internal/saga/domain"
)

// InMemoryLease implementa el claim por instancia dentro de un solo proceso.
type InMemoryLease struct {
	mu     sync.Mutex
	claims map[string]time.Time // instance_id -> expiración
}

func NewInMemoryLease() *InMemoryLease {
	return &InMemoryLease{claims: make(map[string]time.Time)}
}

func (l *InMemoryLease) Acquire(_ context.Context, instanceID string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if exp, ok := l.claims[instanceID]; ok && time.Now().Before(exp) {
		return false, nil
	}
	l.claims[instanceID] = time.Now().Add(ttl)
	return true, nil
}

func (l *InMemoryLease) Release(_ context.Context, instanceID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.claims, instanceID)
	return nil
}

// Verificación en tiempo de compilación.
var _ sagaDomain.InstanceLease = (*InMemoryLease)(nil)
