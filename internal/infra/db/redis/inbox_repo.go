package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	sharedDomain "github.com/davicafu/sagalab/internal/shared/domain"
)

// InboxRedis registra en Redis los ids de eventos ya procesados.
// SETNX hace el test-and-set en una sola operación; el TTL acota la retención
// del registro de duplicados.
type InboxRedis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewInboxRedis(client *redis.Client, ttl time.Duration) *InboxRedis {
	return &InboxRedis{client: client, ttl: ttl}
}

func inboxKey(eventID uuid.UUID) string {
	return fmt.Sprintf("inbox:event:%s", eventID.String())
}

// Seen devuelve true si el id ya estaba registrado.
func (i *InboxRedis) Seen(ctx context.Context, eventID uuid.UUID) (bool, error) {
	inserted, err := i.client.SetNX(ctx, inboxKey(eventID), 1, i.ttl).Result()
	if err != nil {
		return false, err
	}
	// SetNX devuelve false si la key ya existía => duplicado.
	return !inserted, nil
}

// Verificación en tiempo de compilación.
var _ sharedDomain.Inbox = (*InboxRedis)(nil)
