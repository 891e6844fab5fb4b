package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	sharedDomain "github.com/davicafu/sagalab/internal/shared/domain"
)

// OutboxRepoMemory implementa la interfaz sharedDomain.OutboxRepository
// en memoria. Pensado para tests y para correr el servicio sin base de datos.
type OutboxRepoMemory struct {
	mu      sync.Mutex
	entries []sharedDomain.OutboxEvent // orden FIFO de encolado
}

func NewOutboxRepoMemory() *OutboxRepoMemory {
	return &OutboxRepoMemory{}
}

func (r *OutboxRepoMemory) Enqueue(_ context.Context, evt sharedDomain.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, evt)
	return nil
}

func (r *OutboxRepoMemory) FetchPendingOutbox(_ context.Context, limit int) ([]sharedDomain.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []sharedDomain.OutboxEvent
	for _, evt := range r.entries {
		if evt.Processed {
			continue
		}
		out = append(out, evt)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *OutboxRepoMemory) MarkOutboxProcessed(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.entries {
		if r.entries[i].ID == id {
			r.entries[i].Processed = true
			return nil
		}
	}
	return fmt.Errorf("outbox event not found: %s", id)
}

// Drain extrae hasta batch entradas pendientes en orden FIFO, marcándolas
// como procesadas bajo el mismo lock (pop atómico por entrada).
func (r *OutboxRepoMemory) Drain(_ context.Context, batch int) ([]sharedDomain.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []sharedDomain.OutboxEvent
	for i := range r.entries {
		if r.entries[i].Processed {
			continue
		}
		r.entries[i].Processed = true
		out = append(out, r.entries[i])
		if batch > 0 && len(out) >= batch {
			break
		}
	}
	return out, nil
}

// InboxMemory registra en memoria los ids de eventos ya procesados.
type InboxMemory struct {
	mu   sync.Mutex
	seen map[uuid.UUID]struct{}
}

func NewInboxMemory() *InboxMemory {
	return &InboxMemory{seen: make(map[uuid.UUID]struct{})}
}

// Seen comprueba y registra el id bajo el mismo lock.
func (i *InboxMemory) Seen(_ context.Context, eventID uuid.UUID) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.seen[eventID]; ok {
		return true, nil
	}
	i.seen[eventID] = struct{}{}
	return false, nil
}

// Verificación en tiempo de compilación.
var _ sharedDomain.OutboxRepository = (*OutboxRepoMemory)(nil)
var _ sharedDomain.Inbox = (*InboxMemory)(nil)
