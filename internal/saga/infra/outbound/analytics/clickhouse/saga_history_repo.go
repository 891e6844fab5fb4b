package clickhouse

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	sagaDomain "github.com/davicafu/sagalab/internal/saga/domain"
)

// SagaHistoryRepo archiva instancias de saga terminadas en ClickHouse para
// auditoría y reporting, antes de que el cleanup las retire de memoria.
type SagaHistoryRepo struct {
	db *sql.DB
}

// NewSagaHistoryRepo es el constructor.
func NewSagaHistoryRepo(addr string, dbName string) (*SagaHistoryRepo, error) {
	conn := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: dbName,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
	})

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("could not ping clickhouse: %w", err)
	}

	return &SagaHistoryRepo{db: conn}, nil
}

// ArchiveBatch inserta un lote de instancias. ClickHouse funciona mejor con
// inserciones en lotes.
func (r *SagaHistoryRepo) ArchiveBatch(ctx context.Context, instances []sagaDomain.Instance) error {
	if len(instances) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO saga_history (id, definition_id, status, current_step, context, error_step, error_message, started_at, finished_at, archived_at)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	archivedAt := time.Now()
	for _, instance := range instances {
		ctxBytes, err := json.Marshal(instance.Context)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to marshal saga context %s: %w", instance.ID, err)
		}

		var errStep, errMsg string
		if instance.Error != nil {
			errStep = instance.Error.Step
			errMsg = instance.Error.Message
		}

		finishedAt := instance.StartedAt
		if instance.CompletedAt != nil {
			finishedAt = *instance.CompletedAt
		} else if instance.FailedAt != nil {
			finishedAt = *instance.FailedAt
		}

		if _, err := stmt.ExecContext(
			ctx,
			instance.ID,
			instance.DefinitionID,
			string(instance.Status),
			instance.CurrentStep,
			string(ctxBytes),
			errStep,
			errMsg,
			instance.StartedAt,
			finishedAt,
			archivedAt,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to exec statement for saga %s: %w", instance.ID, err)
		}
	}

	return tx.Commit()
}

// Verificación en tiempo de compilación.
var _ sagaDomain.HistoryArchiver = (*SagaHistoryRepo)(nil)
