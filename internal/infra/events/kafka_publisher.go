package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	sharedEvents "github.com/davicafu/sagalab/internal/shared/domain/events"
	sharedBus "github.com/davicafu/sagalab/internal/shared/infra/platform/bus"
)

// KafkaPublisher publica eventos de dominio en Kafka. El topic se deriva del
// tipo de evento (TopicForType) y el sobre se serializa tal cual, enriquecido
// con metadatos del publicador (servicio y timestamp de publicación).
type KafkaPublisher struct {
	writer      *kafka.Writer // writer genérico, sin topic fijo
	serviceName string
	log         *zap.Logger
}

func NewKafkaPublisher(writer *kafka.Writer, serviceName string, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, serviceName: serviceName, log: log}
}

// NewEventWriter crea el writer genérico que usa el publisher: sin topic
// fijo, porque el topic de cada mensaje se deriva del tipo de evento. Un
// writer con topic fijo haría que kafka-go rechazara todos los envíos al
// venir el topic también en el mensaje.
func NewEventWriter(brokers []string) *kafka.Writer {
	return kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Balancer: &kafka.Hash{}, // misma key (aggregate_id) -> misma partición
	})
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt sharedEvents.Event) error {
	// Enriquecer con metadatos del publicador sin tocar el resto del sobre.
	meta := sharedEvents.Metadata{}
	if evt.Metadata != nil {
		meta = *evt.Metadata
	}
	meta.Source = p.serviceName
	evt.Metadata = &meta

	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: TopicForType(evt.Type),
		Key:   []byte(evt.AggregateID), // particionado por agregado: preserva el orden por stream
		Value: data,
		Headers: []kafka.Header{
			{Key: "published_by", Value: []byte(p.serviceName)},
			{Key: "published_at", Value: []byte(time.Now().UTC().Format(time.RFC3339Nano))},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error("Error publishing to Kafka", zap.String("event_type", evt.Type), zap.Error(err))
		return err
	}

	p.log.Debug("Event published successfully",
		zap.String("event_id", evt.ID.String()),
		zap.String("topic", TopicForType(evt.Type)),
	)
	return nil
}

// Verificación estática
var _ sharedBus.EventPublisher = (*KafkaPublisher)(nil)
