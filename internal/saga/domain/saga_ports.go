package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ---------- Errores de dominio ----------
var (
	ErrDuplicateSaga      = errors.New("saga already registered")
	ErrUnknownSaga        = errors.New("unknown saga")
	ErrInstanceNotFound   = errors.New("saga instance not found")
	ErrNotCompensatable   = errors.New("saga instance cannot be compensated in its current status")
	ErrInstanceNotClaimed = errors.New("saga instance claimed by another worker")
)

// StepExecutionError envuelve el error de la acción de un paso una vez
// agotados los reintentos. Dispara la compensación.
type StepExecutionError struct {
	Step     string
	Attempts int
	Err      error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %q failed after %d attempt(s): %v", e.Step, e.Attempts, e.Err)
}

func (e *StepExecutionError) Unwrap() error { return e.Err }

// CompensationError captura el fallo de una compensación. Se loguea y se
// acumula, nunca aborta el resto de la secuencia de rollback.
type CompensationError struct {
	Step string
	Err  error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensation of step %q failed: %v", e.Step, e.Err)
}

func (e *CompensationError) Unwrap() error { return e.Err }

// ---------- Puertos ----------

// InstanceLease reclama la ejecución exclusiva de una instancia cuando el
// orquestador se despliega en varios procesos. En un solo proceso basta la
// implementación en memoria.
type InstanceLease interface {
	// Acquire devuelve true si este worker obtuvo el claim de la instancia.
	Acquire(ctx context.Context, instanceID string, ttl time.Duration) (bool, error)
	// Release libera el claim.
	Release(ctx context.Context, instanceID string) error
}

// HistoryArchiver archiva instancias terminadas para auditoría antes de que
// el cleanup las retire de memoria.
type HistoryArchiver interface {
	ArchiveBatch(ctx context.Context, instances []Instance) error
}
