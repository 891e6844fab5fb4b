package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	sagaDomain "github.com/davicafu/sagalab/internal/saga/domain"
)

// RedisLease reclama instancias vía SETNX con TTL, para que solo un worker
// conduzca una instancia cuando el orquestador escala horizontalmente.
type RedisLease struct {
	client *redis.Client
	owner  string // identifica a este worker en el valor del claim
}

func NewRedisLease(client *redis.Client, owner string) *RedisLease {
	return &RedisLease{client: client, owner: owner}
}

func leaseKey(instanceID string) string {
	return fmt.Sprintf("saga:lease:%s", instanceID)
}

func (l *RedisLease) Acquire(ctx context.Context, instanceID string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, leaseKey(instanceID), l.owner, ttl).Result()
}

// Release borra el claim solo si sigue siendo nuestro.
func (l *RedisLease) Release(ctx context.Context, instanceID string) error {
	val, err := l.client.Get(ctx, leaseKey(instanceID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil // ya expiró
		}
		return err
	}
	if val != l.owner {
		return nil // lo reclamó otro worker tras expirar el TTL
	}
	return l.client.Del(ctx, leaseKey(instanceID)).Err()
}

// Verificación en tiempo de compilación.
var _ sagaDomain.InstanceLease = (*RedisLease)(nil)
