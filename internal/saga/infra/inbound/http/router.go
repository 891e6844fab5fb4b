package http

import "github.com/gin-gonic/gin"

func RegisterSagaRoutes(r *gin.Engine, handler *SagaHandler) {
	sagas := r.Group("/sagas")
	{
		sagas.POST("/:id/start", handler.StartSaga)
		sagas.GET("/instances/:id", handler.GetSagaStatus)
		sagas.POST("/instances/:id/compensate", handler.CompensateSaga)
	}
}
