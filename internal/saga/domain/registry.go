package domain

import (
	"reflect"
	"time"

	sharedEvents "github.com/davicafu/sagalab/internal/shared/domain/events"
)

// Las constantes de los tipos de evento se definen aquí, como valores string.
const (
	SagaStarted       = "saga.started"
	SagaStepCompleted = "saga.step.completed"
	SagaCompleted     = "saga.completed"
	SagaFailed        = "saga.failed"
	SagaCompensated   = "saga.compensated"
)

const SagaTopic = "saga"

// ---------- Payloads de los eventos de ciclo de vida ----------

type SagaStartedEvent struct {
	InstanceID   string    `json:"instance_id"`
	DefinitionID string    `json:"definition_id"`
	StartedAt    time.Time `json:"started_at"`
}

type SagaStepCompletedEvent struct {
	InstanceID string `json:"instance_id"`
	Step       string `json:"step"`
	Index      int    `json:"index"`
}

type SagaCompletedEvent struct {
	InstanceID  string    `json:"instance_id"`
	CompletedAt time.Time `json:"completed_at"`
}

type SagaFailedEvent struct {
	InstanceID string `json:"instance_id"`
	Step       string `json:"step"`
	Message    string `json:"message"`
	Status     Status `json:"status"` // FAILED o TIMEOUT
}

type SagaCompensatedEvent struct {
	InstanceID  string   `json:"instance_id"`
	Compensated []string `json:"compensated_steps"`
	Errors      []string `json:"errors,omitempty"`
}

func NewEventRegistry() map[string]sharedEvents.EventMetadata {
	return map[string]sharedEvents.EventMetadata{
		SagaStarted: {
			Type:  reflect.TypeOf(SagaStartedEvent{}),
			Topic: SagaTopic,
		},
		SagaStepCompleted: {
			Type:  reflect.TypeOf(SagaStepCompletedEvent{}),
			Topic: SagaTopic,
		},
		SagaCompleted: {
			Type:  reflect.TypeOf(SagaCompletedEvent{}),
			Topic: SagaTopic,
		},
		SagaFailed: {
			Type:  reflect.TypeOf(SagaFailedEvent{}),
			Topic: SagaTopic,
		},
		SagaCompensated: {
			Type:  reflect.TypeOf(SagaCompensatedEvent{}),
			Topic: SagaTopic,
		},
	}
}
