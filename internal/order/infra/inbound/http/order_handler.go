package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	orderApp "github.com/davicafu/sagalab/internal/order/application"
	orderDomain "github.com/davicafu/sagalab/internal/order/domain"
	"github.com/davicafu/sagalab/pkg/utils"
)

// OrderHandler expone el modelo de lectura de pedidos.
type OrderHandler struct {
	service *orderApp.OrderService
}

func NewOrderHandler(service *orderApp.OrderService) *OrderHandler {
	return &OrderHandler{service: service}
}

// GetOrder endpoint GET /orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	orderID := c.Param("id")

	summary, err := h.service.GetOrderSummary(c.Request.Context(), orderID)
	if err != nil {
		if errors.Is(err, orderDomain.ErrOrderNotFound) {
			utils.SendNotFound(c, "order not found")
			return
		}
		utils.SendInternalServerError(c, err.Error())
		return
	}

	utils.SendSuccess(c, http.StatusOK, summary)
}
