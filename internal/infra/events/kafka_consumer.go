package events

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	sharedDomain "github.com/davicafu/sagalab/internal/shared/domain"
	sharedEvents "github.com/davicafu/sagalab/internal/shared/domain/events"
	sharedBus "github.com/davicafu/sagalab/internal/shared/infra/platform/bus"
)

// ConsumerAdapter es el "oído" que escucha un topic de Kafka y entrega los
// eventos al handler con la misma semántica que el bus en memoria.
// Cada topic lleva su propio consumer group para escalar horizontalmente.
type ConsumerAdapter struct {
	reader  *kafka.Reader
	handler sharedBus.Handler
	inbox   sharedDomain.Inbox // opcional: si está, protege contra duplicados
	log     *zap.Logger
}

// ReaderConfigsForRegistry construye una configuración de lector por cada
// tipo de evento del registro. El mapeo tipo <-> topic es 1:1, así que un
// solo lector cubriría un único tipo: hace falta un lector por topic para no
// perder el resto. El consumer group se nombra por el grupo lógico del
// registro (order, saga...).
func ReaderConfigsForRegistry(brokers []string, serviceName string, registry map[string]sharedEvents.EventMetadata) []kafka.ReaderConfig {
	types := make([]string, 0, len(registry))
	for eventType := range registry {
		types = append(types, eventType)
	}
	sort.Strings(types)

	configs := make([]kafka.ReaderConfig, 0, len(types))
	for _, eventType := range types {
		configs = append(configs, kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    TopicForType(eventType),
			GroupID:  serviceName + "-" + registry[eventType].Topic + "-projection",
			MinBytes: 10e3, // 10KB
			MaxBytes: 10e6, // 10MB
		})
	}
	return configs
}

func NewConsumerAdapter(reader *kafka.Reader, handler sharedBus.Handler, inbox sharedDomain.Inbox, log *zap.Logger) *ConsumerAdapter {
	return &ConsumerAdapter{
		reader:  reader,
		handler: handler,
		inbox:   inbox,
		log:     log,
	}
}

// Start inicia el bucle de consumo de mensajes en una goroutine.
func (c *ConsumerAdapter) Start(ctx context.Context) {
	c.log.Info("🎧 Iniciando consumidor de Kafka...",
		zap.String("topic", c.reader.Config().Topic),
		zap.Strings("brokers", c.reader.Config().Brokers),
	)

	go func() {
		for {
			// ReadMessage es una llamada bloqueante.
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				// Si el contexto se cancela, el error es normal y salimos limpiamente.
				if ctx.Err() != nil {
					c.log.Info("Consumidor de Kafka detenido.", zap.String("topic", c.reader.Config().Topic))
					return
				}
				c.log.Error("Error al leer mensaje de Kafka", zap.Error(err))
				continue // Continuamos con el siguiente mensaje
			}

			c.handleMessage(ctx, msg)
		}
	}()
}

func (c *ConsumerAdapter) handleMessage(ctx context.Context, msg kafka.Message) {
	var evt sharedEvents.Event
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		c.log.Warn("Failed to unmarshal event envelope",
			zap.String("topic", msg.Topic),
			zap.Error(err),
		)
		return
	}

	// Idempotencia: la entrega del broker es at-least-once, así que los
	// duplicados se filtran contra el inbox antes de tocar negocio.
	if c.inbox != nil {
		dup, err := c.inbox.Seen(ctx, evt.ID)
		if err != nil {
			c.log.Warn("Inbox check failed, processing anyway", zap.String("event_id", evt.ID.String()), zap.Error(err))
		} else if dup {
			c.log.Info("Evento duplicado ignorado", zap.String("event_id", evt.ID.String()))
			return
		}
	}

	if err := c.handler(ctx, evt); err != nil {
		c.log.Warn("Failed to process event",
			zap.String("event_id", evt.ID.String()),
			zap.String("event_type", evt.Type),
			zap.Error(err),
		)
	}
}
