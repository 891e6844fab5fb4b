package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	sharedDomain "github.com/davicafu/sagalab/internal/shared/domain"
)

// OutboxRepoMongoDB implementa la interfaz sharedDomain.OutboxRepository.
type OutboxRepoMongoDB struct {
	outboxColl *mongo.Collection
}

func NewOutboxRepoMongoDB(client *mongo.Client, dbName string) *OutboxRepoMongoDB {
	outboxColl := client.Database(dbName).Collection("outbox")
	return &OutboxRepoMongoDB{outboxColl: outboxColl}
}

// mongoOutboxEvent es un helper para mapear los documentos de la base de datos a un struct.
type mongoOutboxEvent struct {
	ID            uuid.UUID   `bson:"_id"`
	AggregateType string      `bson:"aggregateType"`
	AggregateID   string      `bson:"aggregateId"`
	EventType     string      `bson:"eventType"`
	Payload       interface{} `bson:"payload"`
	CreatedAt     time.Time   `bson:"createdAt"`
	Processed     bool        `bson:"processed"`
}

func fromMongoOutboxEvent(mo *mongoOutboxEvent) sharedDomain.OutboxEvent {
	return sharedDomain.OutboxEvent{
		ID:            mo.ID,
		AggregateType: mo.AggregateType,
		AggregateID:   mo.AggregateID,
		EventType:     mo.EventType,
		Payload:       mo.Payload,
		CreatedAt:     mo.CreatedAt,
		Processed:     mo.Processed,
	}
}

// Enqueue inserta el evento en la colección outbox.
func (r *OutboxRepoMongoDB) Enqueue(ctx context.Context, evt sharedDomain.OutboxEvent) error {
	doc := mongoOutboxEvent{
		ID:            evt.ID,
		AggregateType: evt.AggregateType,
		AggregateID:   evt.AggregateID,
		EventType:     evt.EventType,
		Payload:       evt.Payload,
		CreatedAt:     evt.CreatedAt,
		Processed:     false,
	}
	if _, err := r.outboxColl.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

// FetchPendingOutbox obtiene los eventos no procesados de la colección outbox.
func (r *OutboxRepoMongoDB) FetchPendingOutbox(ctx context.Context, limit int) ([]sharedDomain.OutboxEvent, error) {
	// Filtro para buscar documentos no procesados.
	filter := bson.M{"processed": false}

	// Opciones para ordenar por fecha y limitar el número de documentos.
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}).SetLimit(int64(limit))

	cursor, err := r.outboxColl.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var events []sharedDomain.OutboxEvent
	for cursor.Next(ctx) {
		var mo mongoOutboxEvent
		if err := cursor.Decode(&mo); err != nil {
			return nil, err
		}
		events = append(events, fromMongoOutboxEvent(&mo))
	}

	return events, cursor.Err()
}

// MarkOutboxProcessed marca un evento como procesado.
func (r *OutboxRepoMongoDB) MarkOutboxProcessed(ctx context.Context, id uuid.UUID) error {
	filter := bson.M{"_id": id}
	update := bson.M{"$set": bson.M{"processed": true}}

	res, err := r.outboxColl.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}

	if res.MatchedCount == 0 {
		return fmt.Errorf("outbox event not found: %s", id)
	}

	return nil
}

// Drain extrae hasta batch documentos pendientes en orden FIFO. El pop por
// entrada es atómico gracias a FindOneAndUpdate.
func (r *OutboxRepoMongoDB) Drain(ctx context.Context, batch int) ([]sharedDomain.OutboxEvent, error) {
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "createdAt", Value: 1}}).
		SetReturnDocument(options.After)

	var events []sharedDomain.OutboxEvent
	for len(events) < batch {
		var mo mongoOutboxEvent
		err := r.outboxColl.FindOneAndUpdate(ctx,
			bson.M{"processed": false},
			bson.M{"$set": bson.M{"processed": true}},
			opts,
		).Decode(&mo)
		if err == mongo.ErrNoDocuments {
			break
		}
		if err != nil {
			return events, err
		}
		events = append(events, fromMongoOutboxEvent(&mo))
	}
	return events, nil
}

// Verificación en tiempo de compilación.
var _ sharedDomain.OutboxRepository = (*OutboxRepoMongoDB)(nil)
