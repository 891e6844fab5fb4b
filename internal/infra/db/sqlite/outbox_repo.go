package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	sharedDomain "github.com/davicafu/sagalab/internal/shared/domain"
)

// OutboxRepoSQLite implementa la interfaz sharedDomain.OutboxRepository.
type OutboxRepoSQLite struct {
	db *sql.DB
}

func NewOutboxRepoSQLite(db *sql.DB) *OutboxRepoSQLite {
	return &OutboxRepoSQLite{db: db}
}

// InitSchema crea las tablas outbox e inbox si no existen.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS outbox (
			id             TEXT PRIMARY KEY,
			aggregate_type TEXT NOT NULL,
			aggregate_id   TEXT NOT NULL,
			event_type     TEXT NOT NULL,
			payload        TEXT NOT NULL,
			created_at     TIMESTAMP NOT NULL,
			processed      INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS inbox (
			event_id TEXT PRIMARY KEY,
			seen_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	return err
}

// Enqueue inserta el evento en la tabla outbox, en su propia transacción.
func (r *OutboxRepoSQLite) Enqueue(ctx context.Context, evt sharedDomain.OutboxEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := EnqueueTx(ctx, tx, evt); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// EnqueueTx inserta el evento dentro de la transacción del cambio de negocio
// que lo produjo (write-ahead): si el negocio hace rollback, el evento
// desaparece con él.
func EnqueueTx(ctx context.Context, tx *sql.Tx, evt sharedDomain.OutboxEvent) error {
	payloadBytes, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox payload: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO outbox (id,aggregate_type,aggregate_id,event_type,payload,created_at,processed)
		 VALUES (?,?,?,?,?,?,0)`,
		evt.ID.String(), evt.AggregateType, evt.AggregateID, evt.EventType, string(payloadBytes), evt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

// FetchPendingOutbox obtiene los eventos no procesados de la tabla outbox.
func (r *OutboxRepoSQLite) FetchPendingOutbox(ctx context.Context, limit int) ([]sharedDomain.OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
		 FROM outbox
		 WHERE processed = 0
		 ORDER BY rowid
		 LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanOutboxRows(rows)
}

// MarkOutboxProcessed marca un evento como procesado.
func (r *OutboxRepoSQLite) MarkOutboxProcessed(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `UPDATE outbox SET processed = 1 WHERE id = ?`, id.String())
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

// Drain extrae hasta batch entradas pendientes en orden FIFO, marcándolas como
// procesadas en la misma transacción (pop transaccional).
func (r *OutboxRepoSQLite) Drain(ctx context.Context, batch int) ([]sharedDomain.OutboxEvent, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
		 FROM outbox
		 WHERE processed = 0
		 ORDER BY rowid
		 LIMIT ?`, batch,
	)
	if err != nil {
		return nil, err
	}

	events, err := scanOutboxRows(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	for _, evt := range events {
		if _, err = tx.ExecContext(ctx, `UPDATE outbox SET processed = 1 WHERE id = ?`, evt.ID.String()); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return events, nil
}

func scanOutboxRows(rows *sql.Rows) ([]sharedDomain.OutboxEvent, error) {
	var events []sharedDomain.OutboxEvent
	for rows.Next() {
		var evt sharedDomain.OutboxEvent
		var idStr, payloadStr string

		if err := rows.Scan(&idStr, &evt.AggregateType, &evt.AggregateID, &evt.EventType, &payloadStr, &evt.CreatedAt); err != nil {
			return nil, err
		}

		parsedID, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("invalid UUID in outbox row: %w", err)
		}
		evt.ID = parsedID

		if err := json.Unmarshal([]byte(payloadStr), &evt.Payload); err != nil {
			return nil, fmt.Errorf("invalid JSON payload in outbox row %s: %w", evt.ID, err)
		}

		events = append(events, evt)
	}
	return events, rows.Err()
}

// InboxSQLite registra los ids de eventos ya procesados.
type InboxSQLite struct {
	db *sql.DB
}

func NewInboxSQLite(db *sql.DB) *InboxSQLite {
	return &InboxSQLite{db: db}
}

// Seen hace el test-and-set en una sola sentencia: INSERT OR IGNORE y mirar
// cuántas filas se insertaron.
func (i *InboxSQLite) Seen(ctx context.Context, eventID uuid.UUID) (bool, error) {
	res, err := i.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO inbox (event_id) VALUES (?)`, eventID.String())
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get RowsAffected: %w", err)
	}
	// 0 filas insertadas => el id ya estaba => duplicado.
	return rows == 0, nil
}

// Verificación en tiempo de compilación.
var _ sharedDomain.OutboxRepository = (*OutboxRepoSQLite)(nil)
var _ sharedDomain.Inbox = (*InboxSQLite)(nil)
