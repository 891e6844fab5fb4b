package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	// _ "github.com/mattn/go-sqlite3" // better performance but requires gcc
	_ "modernc.org/sqlite"

	sharedDomain "github.com/davicafu/sagalab/internal/shared/domain"
	sharedEvents "github.com/davicafu/sagalab/internal/shared/domain/events"
)

// EventStoreSQLite implementa la interfaz sharedDomain.EventStore sobre SQLite.
// El índice UNIQUE(aggregate_id, version) es la red de seguridad última del
// control de concurrencia optimista.
type EventStoreSQLite struct {
	db *sql.DB
}

func NewEventStoreSQLite(db *sql.DB) *EventStoreSQLite {
	return &EventStoreSQLite{db: db}
}

// InitSchema crea la tabla de eventos si no existe.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id             TEXT PRIMARY KEY,
			type           TEXT NOT NULL,
			aggregate_id   TEXT NOT NULL,
			aggregate_type TEXT NOT NULL,
			payload        TEXT NOT NULL,
			version        INTEGER NOT NULL,
			timestamp      TIMESTAMP NOT NULL,
			correlation_id TEXT NOT NULL DEFAULT '',
			causation_id   TEXT NOT NULL DEFAULT '',
			metadata       TEXT,
			UNIQUE (aggregate_id, version)
		);
		CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
		CREATE INDEX IF NOT EXISTS idx_events_correlation ON events(correlation_id);
	`)
	return err
}

func (s *EventStoreSQLite) Append(ctx context.Context, evt sharedEvents.Event) error {
	return s.AppendBatch(ctx, []sharedEvents.Event{evt})
}

// AppendBatch inserta el lote en una transacción, validando que cada versión
// sea exactamente la última almacenada + 1.
func (s *EventStoreSQLite) AppendBatch(ctx context.Context, evts []sharedEvents.Event) error {
	if len(evts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	last := make(map[string]int)
	for _, evt := range evts {
		cur, ok := last[evt.AggregateID]
		if !ok {
			row := tx.QueryRowContext(ctx,
				`SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = ?`, evt.AggregateID)
			if err = row.Scan(&cur); err != nil {
				return err
			}
		}
		if evt.Version != cur+1 {
			err = &sharedDomain.ConcurrencyError{
				AggregateID:     evt.AggregateID,
				ExpectedVersion: cur + 1,
				ActualVersion:   evt.Version,
			}
			return err
		}
		last[evt.AggregateID] = evt.Version

		if err = insertEventTx(ctx, tx, evt); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func insertEventTx(ctx context.Context, tx *sql.Tx, evt sharedEvents.Event) error {
	var metaStr sql.NullString
	if evt.Metadata != nil {
		metaBytes, err := json.Marshal(evt.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal event metadata: %w", err)
		}
		metaStr = sql.NullString{String: string(metaBytes), Valid: true}
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO events (id,type,aggregate_id,aggregate_type,payload,version,timestamp,correlation_id,causation_id,metadata)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		evt.ID.String(), evt.Type, evt.AggregateID, evt.AggregateType, string(evt.Payload),
		evt.Version, evt.Timestamp, evt.CorrelationID, evt.CausationID, metaStr,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (s *EventStoreSQLite) GetEvents(ctx context.Context, aggregateID string, fromVersion int) ([]sharedEvents.Event, error) {
	return s.queryEvents(ctx,
		`SELECT id,type,aggregate_id,aggregate_type,payload,version,timestamp,correlation_id,causation_id,metadata
		 FROM events WHERE aggregate_id = ? AND version >= ? ORDER BY version`,
		aggregateID, fromVersion,
	)
}

func (s *EventStoreSQLite) GetEventsByType(ctx context.Context, eventType string, limit int) ([]sharedEvents.Event, error) {
	if limit <= 0 {
		limit = -1 // en SQLite, LIMIT -1 equivale a sin límite
	}
	return s.queryEvents(ctx,
		`SELECT id,type,aggregate_id,aggregate_type,payload,version,timestamp,correlation_id,causation_id,metadata
		 FROM events WHERE type = ? ORDER BY rowid LIMIT ?`,
		eventType, limit,
	)
}

func (s *EventStoreSQLite) GetEventsByCorrelation(ctx context.Context, correlationID string) ([]sharedEvents.Event, error) {
	return s.queryEvents(ctx,
		`SELECT id,type,aggregate_id,aggregate_type,payload,version,timestamp,correlation_id,causation_id,metadata
		 FROM events WHERE correlation_id = ? ORDER BY rowid`,
		correlationID,
	)
}

func (s *EventStoreSQLite) queryEvents(ctx context.Context, query string, args ...interface{}) ([]sharedEvents.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []sharedEvents.Event
	for rows.Next() {
		var evt sharedEvents.Event
		var idStr, payloadStr string
		var metaStr sql.NullString
		var ts time.Time

		if err := rows.Scan(&idStr, &evt.Type, &evt.AggregateID, &evt.AggregateType, &payloadStr,
			&evt.Version, &ts, &evt.CorrelationID, &evt.CausationID, &metaStr); err != nil {
			return nil, err
		}

		parsedID, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("invalid UUID in events row: %w", err)
		}
		evt.ID = parsedID
		evt.Payload = json.RawMessage(payloadStr)
		evt.Timestamp = ts

		if metaStr.Valid {
			var meta sharedEvents.Metadata
			if err := json.Unmarshal([]byte(metaStr.String), &meta); err != nil {
				return nil, fmt.Errorf("invalid metadata in events row %s: %w", idStr, err)
			}
			evt.Metadata = &meta
		}

		events = append(events, evt)
	}
	return events, rows.Err()
}

// Verificación en tiempo de compilación.
var _ sharedDomain.EventStore = (*EventStoreSQLite)(nil)
