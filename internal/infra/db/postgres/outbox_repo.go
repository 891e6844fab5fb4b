package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	sharedDomain "github.com/davicafu/sagalab/internal/shared/domain"
)

// OutboxRepoPostgres implementa la interfaz sharedDomain.OutboxRepository.
// Drain usa FOR UPDATE SKIP LOCKED para que varios relayers puedan drenar la
// misma tabla sin pisarse.
type OutboxRepoPostgres struct {
	db *sql.DB
}

func NewOutboxRepoPostgres(db *sql.DB) *OutboxRepoPostgres {
	return &OutboxRepoPostgres{db: db}
}

// Enqueue inserta el evento en la tabla outbox.
func (r *OutboxRepoPostgres) Enqueue(ctx context.Context, evt sharedDomain.OutboxEvent) error {
	payloadBytes, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox payload: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at, processed)
		 VALUES ($1, $2, $3, $4, $5, $6, false)`,
		evt.ID, evt.AggregateType, evt.AggregateID, evt.EventType, payloadBytes, evt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

// FetchPendingOutbox obtiene los eventos no procesados de la tabla outbox.
func (r *OutboxRepoPostgres) FetchPendingOutbox(ctx context.Context, limit int) ([]sharedDomain.OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
		 FROM outbox WHERE processed=false ORDER BY created_at LIMIT $1`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanOutboxRows(rows)
}

// MarkOutboxProcessed marca un evento como procesado.
func (r *OutboxRepoPostgres) MarkOutboxProcessed(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `UPDATE outbox SET processed=true WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get RowsAffected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("outbox event not found: %s", id)
	}
	return nil
}

// Drain extrae hasta batch entradas en orden FIFO marcándolas como procesadas
// en una sola sentencia. SKIP LOCKED evita que dos workers drenen lo mismo.
func (r *OutboxRepoPostgres) Drain(ctx context.Context, batch int) ([]sharedDomain.OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`UPDATE outbox SET processed = true
		 WHERE id IN (
			SELECT id FROM outbox
			WHERE processed = false
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, aggregate_type, aggregate_id, event_type, payload, created_at`, batch,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanOutboxRows(rows)
}

func scanOutboxRows(rows *sql.Rows) ([]sharedDomain.OutboxEvent, error) {
	var events []sharedDomain.OutboxEvent
	for rows.Next() {
		var evt sharedDomain.OutboxEvent
		var payloadBytes []byte // el payload se lee como JSONB

		if err := rows.Scan(&evt.ID, &evt.AggregateType, &evt.AggregateID, &evt.EventType, &payloadBytes, &evt.CreatedAt); err != nil {
			return nil, err
		}

		var payload map[string]interface{}
		if err := json.Unmarshal(payloadBytes, &payload); err != nil {
			return nil, fmt.Errorf("invalid JSON payload in outbox row %s: %w", evt.ID, err)
		}
		evt.Payload = payload

		events = append(events, evt)
	}
	return events, rows.Err()
}

// Verificación en tiempo de compilación.
var _ sharedDomain.OutboxRepository = (*OutboxRepoPostgres)(nil)
