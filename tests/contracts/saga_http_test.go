package contracts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	sagaApp "github.com/davicafu/sagalab/internal/saga/application"
	sagaDomain "github.com/davicafu/sagalab/internal/saga/domain"
	sagaHttp "github.com/davicafu/sagalab/internal/saga/infra/inbound/http"
)

// newSagaRouter monta el router HTTP con una saga trivial registrada.
func newSagaRouter(t *testing.T) (*gin.Engine, *sagaApp.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	orchestrator := sagaApp.NewOrchestrator(sagaApp.NewState(), zap.NewNop())
	require.NoError(t, orchestrator.RegisterSaga(sagaDomain.Definition{
		ID: "demo",
		Steps: []sagaDomain.Step{
			{
				Name: "unico",
				Action: func(ctx context.Context, sagaCtx sagaDomain.Context) (map[string]interface{}, error) {
					return nil, nil
				},
			},
		},
	}))

	router := gin.New()
	sagaHttp.RegisterSagaRoutes(router, sagaHttp.NewSagaHandler(orchestrator))
	return router, orchestrator
}

func TestStartSaga_HTTPContract(t *testing.T) {
	router, orchestrator := newSagaRouter(t)

	// ACT
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sagas/demo/start",
		strings.NewReader(`{"context":{"order_id":"o-1"}}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	// ASSERT: 202 con el id de la instancia; la ejecución es asíncrona.
	assert.Equal(t, http.StatusAccepted, w.Code)

	var resp struct {
		InstanceID string `json:"instance_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.InstanceID)

	require.Eventually(t, func() bool {
		s, err := orchestrator.GetSagaStatus(resp.InstanceID)
		return err == nil && s.Finished()
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStartSaga_UnknownSagaReturns404(t *testing.T) {
	router, _ := newSagaRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sagas/no-existe/start", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetSagaStatus_HTTPContract(t *testing.T) {
	router, orchestrator := newSagaRouter(t)

	instanceID, err := orchestrator.StartSaga(context.Background(), "demo", sagaDomain.Context{"k": "v"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		s, err := orchestrator.GetSagaStatus(instanceID)
		return err == nil && s.Finished()
	}, 2*time.Second, 5*time.Millisecond)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sagas/instances/"+instanceID, nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	// El snapshot expone el contrato JSON documentado de la instancia.
	var resp struct {
		ID           string                 `json:"id"`
		DefinitionID string                 `json:"definition_id"`
		Status       string                 `json:"status"`
		Context      map[string]interface{} `json:"context"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, instanceID, resp.ID)
	assert.Equal(t, "demo", resp.DefinitionID)
	assert.Equal(t, string(sagaDomain.StatusCompleted), resp.Status)
	assert.Equal(t, "v", resp.Context["k"])
}

func TestGetSagaStatus_NotFoundReturns404(t *testing.T) {
	router, _ := newSagaRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sagas/instances/no-existe", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCompensateSaga_HTTPContract(t *testing.T) {
	router, orchestrator := newSagaRouter(t)

	instanceID, err := orchestrator.StartSaga(context.Background(), "demo", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		s, err := orchestrator.GetSagaStatus(instanceID)
		return err == nil && s.Finished()
	}, 2*time.Second, 5*time.Millisecond)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sagas/instances/"+instanceID+"/compensate", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	// Una instancia inexistente devuelve 404.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/sagas/instances/no-existe/compensate", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCompensateSaga_RunningReturns409(t *testing.T) {
	gin.SetMode(gin.TestMode)
	release := make(chan struct{})

	orchestrator := sagaApp.NewOrchestrator(sagaApp.NewState(), zap.NewNop())
	require.NoError(t, orchestrator.RegisterSaga(sagaDomain.Definition{
		ID: "bloqueante",
		Steps: []sagaDomain.Step{
			{
				Name: "espera",
				Action: func(ctx context.Context, sagaCtx sagaDomain.Context) (map[string]interface{}, error) {
					<-release
					return nil, nil
				},
			},
		},
	}))
	router := gin.New()
	sagaHttp.RegisterSagaRoutes(router, sagaHttp.NewSagaHandler(orchestrator))

	instanceID, err := orchestrator.StartSaga(context.Background(), "bloqueante", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		s, err := orchestrator.GetSagaStatus(instanceID)
		return err == nil && s.Status == sagaDomain.StatusRunning
	}, 2*time.Second, 5*time.Millisecond)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sagas/instances/"+instanceID+"/compensate", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)

	close(release)
	require.Eventually(t, func() bool {
		s, err := orchestrator.GetSagaStatus(instanceID)
		return err == nil && s.Finished()
	}, 2*time.Second, 5*time.Millisecond)
}
