package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	sagaDomain "github.com/davicafu/sagalab/internal/saga/domain"
	sharedDomain "github.com/davicafu/sagalab/internal/shared/domain"
)

// State agrupa las definiciones y las instancias del orquestador de forma
// explícita: se construye una vez al arrancar el proceso y se inyecta donde
// haga falta, sin estado global.
type State struct {
	mu          sync.RWMutex
	definitions map[string]sagaDomain.Definition
	instances   map[string]*sagaDomain.Instance
}

func NewState() *State {
	return &State{
		definitions: make(map[string]sagaDomain.Definition),
		instances:   make(map[string]*sagaDomain.Instance),
	}
}

// Orchestrator ejecuta definiciones de saga como instancias independientes.
// Cada instancia avanza secuencialmente en su propia goroutine; entre
// instancias no hay ninguna garantía de orden.
type Orchestrator struct {
	state       *State
	outbox      sharedDomain.OutboxRepository // opcional: eventos de ciclo de vida
	lease       sagaDomain.InstanceLease      // opcional: claim por instancia en despliegues horizontales
	archiver    sagaDomain.HistoryArchiver    // opcional: archivado de instancias terminadas
	leaseTTL    time.Duration
	serviceName string
	log         *zap.Logger
}

// Option configura el orquestador.
type Option func(*Orchestrator)

func WithOutbox(repo sharedDomain.OutboxRepository) Option {
	return func(o *Orchestrator) { o.outbox = repo }
}

func WithLease(lease sagaDomain.InstanceLease, ttl time.Duration) Option {
	return func(o *Orchestrator) { o.lease = lease; o.leaseTTL = ttl }
}

func WithArchiver(a sagaDomain.HistoryArchiver) Option {
	return func(o *Orchestrator) { o.archiver = a }
}

func NewOrchestrator(state *State, log *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		state:       state,
		leaseTTL:    time.Minute,
		serviceName: "sagalab",
		log:         log,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RegisterSaga almacena la definición por id.
func (o *Orchestrator) RegisterSaga(def sagaDomain.Definition) error {
	if def.ID == "" {
		return fmt.Errorf("saga definition requires an id")
	}

	o.state.mu.Lock()
	defer o.state.mu.Unlock()

	if _, ok := o.state.definitions[def.ID]; ok {
		return fmt.Errorf("%w: %s", sagaDomain.ErrDuplicateSaga, def.ID)
	}
	o.state.definitions[def.ID] = def
	return nil
}

// StartSaga crea una instancia y arranca su ejecución asíncrona. La llamada
// devuelve el id de la instancia inmediatamente; el progreso se observa con
// GetSagaStatus.
func (o *Orchestrator) StartSaga(ctx context.Context, sagaID string, initial sagaDomain.Context) (string, error) {
	o.state.mu.Lock()
	def, ok := o.state.definitions[sagaID]
	if !ok {
		o.state.mu.Unlock()
		return "", fmt.Errorf("%w: %s", sagaDomain.ErrUnknownSaga, sagaID)
	}

	instance := &sagaDomain.Instance{
		ID:           uuid.New().String(),
		DefinitionID: sagaID,
		Status:       sagaDomain.StatusPending,
		CurrentStep:  -1,
		Context:      initial.Clone(),
		StartedAt:    time.Now().UTC(),
	}
	if instance.Context == nil {
		instance.Context = sagaDomain.Context{}
	}
	o.state.instances[instance.ID] = instance
	o.state.mu.Unlock()

	o.log.Info("🎬 Saga iniciada",
		zap.String("saga_id", sagaID),
		zap.String("instance_id", instance.ID),
	)
	o.emit(instance.ID, sagaDomain.SagaStarted, sagaDomain.SagaStartedEvent{
		InstanceID:   instance.ID,
		DefinitionID: sagaID,
		StartedAt:    instance.StartedAt,
	})

	// La ejecución no depende del contexto del caller: la goroutine vive
	// hasta que la instancia termina.
	go o.run(context.Background(), def, instance.ID)

	return instance.ID, nil
}

// GetSagaStatus devuelve un snapshot de la instancia.
func (o *Orchestrator) GetSagaStatus(instanceID string) (sagaDomain.Instance, error) {
	o.state.mu.RLock()
	defer o.state.mu.RUnlock()

	instance, ok := o.state.instances[instanceID]
	if !ok {
		return sagaDomain.Instance{}, fmt.Errorf("%w: %s", sagaDomain.ErrInstanceNotFound, instanceID)
	}
	return instance.Snapshot(), nil
}

// CompensateSaga deshace una instancia ya terminada (COMPLETED o FAILED):
// reproduce las compensaciones registradas en orden inverso, best-effort, y
// deja la instancia en FAILED para reflejar que el efecto de negocio se anuló.
func (o *Orchestrator) CompensateSaga(ctx context.Context, instanceID string) error {
	o.state.mu.Lock()
	instance, ok := o.state.instances[instanceID]
	if !ok {
		o.state.mu.Unlock()
		return fmt.Errorf("%w: %s", sagaDomain.ErrInstanceNotFound, instanceID)
	}
	if instance.Status != sagaDomain.StatusCompleted && instance.Status != sagaDomain.StatusFailed {
		status := instance.Status
		o.state.mu.Unlock()
		return fmt.Errorf("%w: status %s", sagaDomain.ErrNotCompensatable, status)
	}
	def, ok := o.state.definitions[instance.DefinitionID]
	if !ok {
		o.state.mu.Unlock()
		return fmt.Errorf("%w: %s", sagaDomain.ErrUnknownSaga, instance.DefinitionID)
	}
	instance.Status = sagaDomain.StatusCompensating
	sagaCtx := instance.Context
	completed := append([]string(nil), instance.Completed...)
	o.state.mu.Unlock()

	o.compensate(ctx, def, instanceID, completed, sagaCtx)

	now := time.Now().UTC()
	o.update(instanceID, func(i *sagaDomain.Instance) {
		i.Status = sagaDomain.StatusFailed
		i.FailedAt = &now
	})
	return nil
}

// CleanupInstances retira de memoria las instancias terminadas hace más de
// maxAge, archivándolas antes si hay un archiver configurado. Devuelve
// cuántas retiró.
func (o *Orchestrator) CleanupInstances(ctx context.Context, maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)

	o.state.mu.Lock()
	var expired []sagaDomain.Instance
	var ids []string
	for id, instance := range o.state.instances {
		if !instance.Finished() {
			continue
		}
		finishedAt := instance.StartedAt
		if instance.CompletedAt != nil {
			finishedAt = *instance.CompletedAt
		} else if instance.FailedAt != nil {
			finishedAt = *instance.FailedAt
		}
		if finishedAt.Before(cutoff) {
			expired = append(expired, instance.Snapshot())
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		delete(o.state.instances, id)
	}
	o.state.mu.Unlock()

	if o.archiver != nil && len(expired) > 0 {
		if err := o.archiver.ArchiveBatch(ctx, expired); err != nil {
			o.log.Warn("⚠️ No se pudieron archivar instancias terminadas", zap.Error(err))
		}
	}
	return len(ids)
}

// ---------- Ejecución ----------

func (o *Orchestrator) run(ctx context.Context, def sagaDomain.Definition, instanceID string) {
	if o.lease != nil {
		acquired, err := o.lease.Acquire(ctx, instanceID, o.leaseTTL)
		if err != nil || !acquired {
			now := time.Now().UTC()
			o.update(instanceID, func(i *sagaDomain.Instance) {
				i.Status = sagaDomain.StatusFailed
				i.FailedAt = &now
				i.Error = &sagaDomain.StepError{Message: sagaDomain.ErrInstanceNotClaimed.Error()}
			})
			o.log.Warn("⚠️ No se pudo reclamar la instancia",
				zap.String("instance_id", instanceID), zap.Error(err))
			return
		}
		defer func() {
			if err := o.lease.Release(context.Background(), instanceID); err != nil {
				o.log.Warn("⚠️ No se pudo liberar el claim", zap.String("instance_id", instanceID), zap.Error(err))
			}
		}()
	}

	// Timeout global de la saga: acota el tiempo de pared de todos los pasos.
	cancel := func() {}
	if def.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, def.Timeout)
	}
	defer cancel()

	o.update(instanceID, func(i *sagaDomain.Instance) {
		i.Status = sagaDomain.StatusRunning
	})

	var sagaCtx sagaDomain.Context
	o.state.mu.RLock()
	sagaCtx = o.state.instances[instanceID].Context
	o.state.mu.RUnlock()

	for idx, step := range def.Steps {
		o.update(instanceID, func(i *sagaDomain.Instance) {
			i.CurrentStep = idx
		})

		data, err := o.executeStep(ctx, step, sagaCtx)
		if err != nil {
			o.failAndCompensate(ctx, def, instanceID, step.Name, sagaCtx, err)
			return
		}

		o.update(instanceID, func(i *sagaDomain.Instance) {
			i.Context.Merge(data)
			if step.Compensation != nil {
				i.Completed = append(i.Completed, step.Name)
			}
		})
		o.emit(instanceID, sagaDomain.SagaStepCompleted, sagaDomain.SagaStepCompletedEvent{
			InstanceID: instanceID,
			Step:       step.Name,
			Index:      idx,
		})
		o.log.Debug("Paso completado",
			zap.String("instance_id", instanceID),
			zap.String("step", step.Name),
		)
	}

	now := time.Now().UTC()
	o.update(instanceID, func(i *sagaDomain.Instance) {
		i.Status = sagaDomain.StatusCompleted
		i.CompletedAt = &now
	})
	o.emit(instanceID, sagaDomain.SagaCompleted, sagaDomain.SagaCompletedEvent{
		InstanceID:  instanceID,
		CompletedAt: now,
	})
	o.log.Info("✅ Saga completada", zap.String("instance_id", instanceID))
}

// executeStep ejecuta la acción del paso bajo su política de reintentos y su
// timeout. Los reintentos son locales al paso: nunca re-ejecutan pasos ya
// completados.
func (o *Orchestrator) executeStep(ctx context.Context, step sagaDomain.Step, sagaCtx sagaDomain.Context) (map[string]interface{}, error) {
	policy := sagaDomain.RetryPolicy{MaxAttempts: 1}
	if step.Retry != nil {
		policy = *step.Retry
	}

	var lastErr error
	for attempt := 1; attempt <= policy.Attempts(); attempt++ {
		data, err := o.runAction(ctx, step, sagaCtx)
		if err == nil {
			return data, nil
		}
		lastErr = err

		// El vencimiento del timeout global no se reintenta.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if attempt < policy.Attempts() {
			o.log.Warn("⚠️ Paso fallido, reintentando",
				zap.String("step", step.Name),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			select {
			case <-time.After(policy.Delay(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return nil, &sagaDomain.StepExecutionError{
		Step:     step.Name,
		Attempts: policy.Attempts(),
		Err:      lastErr,
	}
}

// runAction corre la acción contra el timer del paso. No hay cancelación a
// mitad de paso: si el timer vence, la acción sigue corriendo hasta terminar,
// pero su resultado se descarta.
func (o *Orchestrator) runAction(ctx context.Context, step sagaDomain.Step, sagaCtx sagaDomain.Context) (map[string]interface{}, error) {
	cancel := func() {}
	if step.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, step.Timeout)
	}
	defer cancel()

	type result struct {
		data map[string]interface{}
		err  error
	}
	done := make(chan result, 1)
	// La acción recibe una copia del contexto: si el timer vence y la acción
	// sigue corriendo, no comparte el mapa con las compensaciones.
	actionCtx := sagaCtx.Clone()
	go func() {
		data, err := step.Action(ctx, actionCtx)
		done <- result{data: data, err: err}
	}()

	select {
	case res := <-done:
		return res.data, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// failAndCompensate registra el error, compensa en orden inverso los pasos ya
// completados y deja la instancia en FAILED (o TIMEOUT si venció el plazo
// global de la saga).
func (o *Orchestrator) failAndCompensate(ctx context.Context, def sagaDomain.Definition, instanceID, stepName string, sagaCtx sagaDomain.Context, cause error) {
	// El timeout de un paso se trata como un fallo del paso (FAILED); solo el
	// vencimiento del plazo global de la saga marca TIMEOUT. El primero llega
	// envuelto en StepExecutionError, el segundo es el error crudo del contexto.
	finalStatus := sagaDomain.StatusFailed
	var stepErr *sagaDomain.StepExecutionError
	if !errors.As(cause, &stepErr) && errors.Is(cause, context.DeadlineExceeded) {
		finalStatus = sagaDomain.StatusTimeout
	}

	o.log.Warn("❌ Paso de saga fallido, compensando",
		zap.String("instance_id", instanceID),
		zap.String("step", stepName),
		zap.Error(cause),
	)

	var completed []string
	o.update(instanceID, func(i *sagaDomain.Instance) {
		i.Status = sagaDomain.StatusCompensating
		i.Error = &sagaDomain.StepError{Step: stepName, Message: cause.Error()}
		completed = append([]string(nil), i.Completed...)
	})

	// Las compensaciones corren con un contexto limpio: el timeout de la saga
	// ya pudo haber vencido y el rollback tiene que poder avanzar igualmente.
	o.compensate(context.Background(), def, instanceID, completed, sagaCtx)

	now := time.Now().UTC()
	o.update(instanceID, func(i *sagaDomain.Instance) {
		i.Status = finalStatus
		i.FailedAt = &now
	})
	o.emit(instanceID, sagaDomain.SagaFailed, sagaDomain.SagaFailedEvent{
		InstanceID: instanceID,
		Step:       stepName,
		Message:    cause.Error(),
		Status:     finalStatus,
	})
}

// compensate reproduce las compensaciones en orden estrictamente inverso,
// best-effort: el fallo de una se acumula y se continúa con la siguiente para
// garantizar que el rollback avance siempre.
func (o *Orchestrator) compensate(ctx context.Context, def sagaDomain.Definition, instanceID string, completed []string, sagaCtx sagaDomain.Context) {
	steps := make(map[string]sagaDomain.Step, len(def.Steps))
	for _, s := range def.Steps {
		steps[s.Name] = s
	}

	var compensated []string
	var failures []string
	for i := len(completed) - 1; i >= 0; i-- {
		step, ok := steps[completed[i]]
		if !ok || step.Compensation == nil {
			continue
		}
		if err := step.Compensation(ctx, sagaCtx); err != nil {
			cerr := &sagaDomain.CompensationError{Step: step.Name, Err: err}
			failures = append(failures, cerr.Error())
			o.log.Warn("⚠️ Compensación fallida, continuando",
				zap.String("instance_id", instanceID),
				zap.String("step", step.Name),
				zap.Error(err),
			)
			continue
		}
		compensated = append(compensated, step.Name)
		o.log.Info("↩️ Paso compensado",
			zap.String("instance_id", instanceID),
			zap.String("step", step.Name),
		)
	}

	o.emit(instanceID, sagaDomain.SagaCompensated, sagaDomain.SagaCompensatedEvent{
		InstanceID:  instanceID,
		Compensated: compensated,
		Errors:      failures,
	})
}

// ---------- Helpers ----------

func (o *Orchestrator) update(instanceID string, fn func(*sagaDomain.Instance)) {
	o.state.mu.Lock()
	defer o.state.mu.Unlock()
	if instance, ok := o.state.instances[instanceID]; ok {
		fn(instance)
	}
}

// emit encola un evento de ciclo de vida en el outbox, si hay uno configurado.
func (o *Orchestrator) emit(instanceID, eventType string, payload interface{}) {
	if o.outbox == nil {
		return
	}

	evt := sharedDomain.OutboxEvent{
		ID:            uuid.New(),
		AggregateType: "saga",
		AggregateID:   instanceID,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
	}
	if err := o.outbox.Enqueue(context.Background(), evt); err != nil {
		o.log.Warn("⚠️ No se pudo encolar evento de saga",
			zap.String("event_type", eventType),
			zap.String("instance_id", instanceID),
			zap.Error(err),
		)
	}
}
