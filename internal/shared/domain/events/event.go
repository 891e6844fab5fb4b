package events

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Metadata transporta información contextual opcional del evento
// (quién lo originó, desde qué servicio, etiquetas libres...).
type Metadata struct {
	UserID string            `json:"user_id,omitempty"`
	Tenant string            `json:"tenant,omitempty"`
	Source string            `json:"source,omitempty"`
	Tags   map[string]string `json:"tags,omitempty"`
}

// Event es el sobre (envelope) de todos los eventos de dominio.
// Es inmutable una vez construido: el store y el bus lo serializan tal cual.
type Event struct {
	ID            uuid.UUID       `json:"id"`
	Type          string          `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Payload       json.RawMessage `json:"payload"` // contenido específico del evento
	Version       int             `json:"version"` // monótono por agregado, empieza en 1
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id,omitempty"` // agrupa una operación de negocio
	CausationID   string          `json:"causation_id,omitempty"`   // id del evento que lo produjo
	Metadata      *Metadata       `json:"metadata,omitempty"`
}

// New construye un evento serializando el payload a JSON.
func New(eventType, aggregateID, aggregateType string, payload interface{}, version int) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{
		ID:            uuid.New(),
		Type:          eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Payload:       data,
		Version:       version,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// WithCorrelation devuelve una copia del evento con los ids de trazabilidad.
func (e Event) WithCorrelation(correlationID, causationID string) Event {
	e.CorrelationID = correlationID
	e.CausationID = causationID
	return e
}

// EventMetadata asocia un tipo de evento con el struct Go de su payload
// y el topic donde se publica.
type EventMetadata struct {
	Type  reflect.Type
	Topic string
}
