package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/fatflowers/paydesk/internal/models"
	"github.com/fatflowers/paydesk/pkg/response"
	"github.com/fatflowers/paydesk/pkg/types"
)

const maxOrderPageSize = 100

// Orders is the read side of the order ledger.
type Orders interface {
	FindByReference(ctx context.Context, reference string) (*models.Order, error)
	ListByUser(ctx context.Context, userID string, offset, limit int) ([]*models.Order, int64, error)
}

type OrderItemView struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

type OrderView struct {
	Reference  string            `json:"reference"`
	Kind       types.OrderKind   `json:"kind"`
	Status     types.OrderStatus `json:"status"`
	Total      string            `json:"total"`
	Currency   types.Currency    `json:"currency"`
	TrackingID string            `json:"tracking_id,omitempty"`
	PaidAt     *time.Time        `json:"paid_at,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	Items      []OrderItemView   `json:"items"`
}

type OrderPage struct {
	Total int64        `json:"total"`
	Items []*OrderView `json:"items"`
}

func orderView(o *models.Order) *OrderView {
	return &OrderView{
		Reference:  o.Reference,
		Kind:       o.Kind,
		Status:     o.Status,
		Total:      o.Total.StringFixed(2),
		Currency:   o.Currency,
		TrackingID: lo.FromPtr(o.TrackingID),
		PaidAt:     o.PaidAt,
		CreatedAt:  o.CreatedAt,
		Items: lo.Map(o.Items, func(it *models.OrderItem, _ int) OrderItemView {
			return OrderItemView{
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				UnitPrice: it.UnitPrice.StringFixed(2),
				LineTotal: it.LineTotal.StringFixed(2),
			}
		}),
	}
}

// @Summary      Get order
// @Tags         Order
// @Produce      json
// @Param        reference path string true "Order reference"
// @Success      200  {object}  handlers.RespOrder
// @Router       /api/v1/orders/{reference} [get]
func ApiOrderGet(orders Orders, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := orders.FindByReference(c.Request.Context(), c.Param("reference"))
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(orderView(o)))
	}
}

// @Summary      List orders of a user
// @Description  Newest first.
// @Tags         Order
// @Produce      json
// @Param        user_id query string true  "User ID"
// @Param        from    query int    false "Offset"
// @Param        size    query int    false "Page size, at most 100"
// @Success      200  {object}  handlers.RespOrderPage
// @Router       /api/v1/orders [get]
func ApiOrderList(orders Orders, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("user_id")
		if userID == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing user_id"))
			return
		}
		from := 0
		if v := c.Query("from"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				from = n
			}
		}
		size := 20
		if v := c.Query("size"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > maxOrderPageSize {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "invalid size"))
				return
			}
			size = n
		}
		list, total, err := orders.ListByUser(c.Request.Context(), userID, from, size)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(OrderPage{Total: total, Items: lo.Map(list, func(o *models.Order, _ int) *OrderView { return orderView(o) })}))
	}
}

func RegisterOrderRoutes(r gin.IRouter, orders Orders, log *zap.SugaredLogger) {
	g := r.Group("/orders")
	g.GET("", ApiOrderList(orders, log))
	g.GET("/:reference", ApiOrderGet(orders, log))
}
