package domain

import (
	"context"
	"time"
)

// Status es el estado de ciclo de vida de una instancia de saga.
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusRunning      Status = "RUNNING"
	StatusCompleted    Status = "COMPLETED"
	StatusCompensating Status = "COMPENSATING"
	StatusFailed       Status = "FAILED"
	StatusTimeout      Status = "TIMEOUT"
)

// Context es la bolsa de clave/valor que viaja entre los pasos de una saga.
// La muta únicamente la goroutine que ejecuta esa instancia.
type Context map[string]interface{}

// Merge incorpora los datos devueltos por un paso.
func (c Context) Merge(data map[string]interface{}) {
	for k, v := range data {
		c[k] = v
	}
}

// Clone devuelve una copia superficial para snapshots de solo lectura.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Action ejecuta la lógica de un paso. Los datos devueltos se fusionan en el
// contexto de la instancia.
type Action func(ctx context.Context, sagaCtx Context) (map[string]interface{}, error)

// Compensation deshace semánticamente el efecto de un paso ya completado.
type Compensation func(ctx context.Context, sagaCtx Context) error

// RetryPolicy gobierna los reintentos locales de un paso.
// El delay entre intentos es Backoff * Multiplier^(intento-1) si Exponential,
// o Backoff constante si no.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts"`
	Backoff     time.Duration `json:"backoff"`
	Multiplier  float64       `json:"multiplier"`
	Exponential bool          `json:"exponential"`
}

// Delay calcula la espera antes del intento attempt+1 (attempt empieza en 1).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if !p.Exponential || p.Multiplier <= 0 {
		return p.Backoff
	}
	d := float64(p.Backoff)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
	}
	return time.Duration(d)
}

// Attempts normaliza MaxAttempts: como mínimo un intento.
func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Step es un paso de la saga: acción, compensación opcional, timeout y
// política de reintentos opcionales.
type Step struct {
	Name         string
	Action       Action
	Compensation Compensation
	Timeout      time.Duration
	Retry        *RetryPolicy
}

// Definition es la plantilla inmutable de una saga.
type Definition struct {
	ID      string
	Name    string
	Steps   []Step
	Timeout time.Duration // timeout global de la instancia; 0 = sin límite
}

// StepError captura el paso que falló y su mensaje, para que el caller pueda
// distinguir "negocio rechazó" de "timeout" vía GetSagaStatus.
type StepError struct {
	Step    string `json:"step"`
	Message string `json:"message"`
}

// Instance es el registro mutable de una ejecución de saga.
// Solo la muta el orquestador que ejecuta esa instancia; los lectores reciben
// snapshots.
type Instance struct {
	ID           string     `json:"id"`
	DefinitionID string     `json:"definition_id"`
	Status       Status     `json:"status"`
	CurrentStep  int        `json:"current_step"`
	Context      Context    `json:"context"`
	Completed    []string   `json:"completed_steps"` // pasos elegibles para compensación, en orden de ejecución
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	FailedAt     *time.Time `json:"failed_at,omitempty"`
	Error        *StepError `json:"error,omitempty"`
}

// Snapshot devuelve una copia segura para lectura concurrente.
func (i *Instance) Snapshot() Instance {
	out := *i
	out.Context = i.Context.Clone()
	out.Completed = append([]string(nil), i.Completed...)
	if i.Error != nil {
		e := *i.Error
		out.Error = &e
	}
	return out
}

// Finished indica si la instancia ya no va a avanzar más.
func (i *Instance) Finished() bool {
	switch i.Status {
	case StatusCompleted, StatusFailed, StatusTimeout:
		return true
	}
	return false
}
