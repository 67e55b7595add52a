package order

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"librastore/app/echoServer/jwtx"
	"librastore/model"
	inventorysvc "librastore/service/inventory"
	ordersvc "librastore/service/order"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type Controller struct {
	Svc ordersvc.Service
	V   *validator.Validate
	Log *slog.Logger
}

// POST /v1/orders
func (h *Controller) Checkout(c echo.Context) error {
	var req CheckoutReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid JSON"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "validation error", "errors": err.Error()})
	}
	uid, _ := c.Get("user_id").(int64)

	o, err := h.Svc.Checkout(c.Request().Context(), uid, ordersvc.ShippingInfo{
		Name:    req.ShippingName,
		Phone:   req.ShippingPhone,
		Address: req.ShippingAddress,
		Notes:   req.Notes,
	})
	if err != nil {
		h.Log.Error("checkout", "err", err)
		switch ordersvc.Code(err) {
		case ordersvc.ErrEmptyCart:
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "cart is empty"})
		case ordersvc.ErrCartInvalid:
			return c.JSON(http.StatusConflict, echo.Map{"message": err.Error()})
		}
		var se *inventorysvc.StockError
		if errors.As(err, &se) {
			return c.JSON(http.StatusConflict, echo.Map{
				"message":   se.Error(),
				"item_id":   se.ItemID,
				"requested": se.Requested,
				"available": se.Available,
			})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"data": o})
}

// GET /v1/orders/:code
func (h *Controller) Get(c echo.Context) error {
	uid, _ := c.Get("user_id").(int64)
	if jwtx.IsLibrarian(c) {
		uid = 0
	}
	o, err := h.Svc.Get(c.Request().Context(), uid, c.Param("code"))
	if err != nil {
		return h.fail(c, err, "order get")
	}
	return c.JSON(http.StatusOK, echo.Map{"data": o})
}

// GET /v1/orders
func (h *Controller) ListMine(c echo.Context) error {
	uid, _ := c.Get("user_id").(int64)
	orders, err := h.Svc.ListMine(c.Request().Context(), uid)
	if err != nil {
		h.Log.Error("order list", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"data": orders})
}

// POST /v1/orders/:code/cancel
func (h *Controller) Cancel(c echo.Context) error {
	uid, _ := c.Get("user_id").(int64)
	if jwtx.IsLibrarian(c) {
		uid = 0
	}
	if err := h.Svc.Cancel(c.Request().Context(), uid, c.Param("code")); err != nil {
		return h.fail(c, err, "order cancel")
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "cancelled"})
}

// POST /v1/admin/orders/:code/advance
func (h *Controller) Advance(c echo.Context) error {
	if !jwtx.IsLibrarian(c) {
		return c.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
	}
	var req AdvanceReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid JSON"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "validation error", "errors": err.Error()})
	}

	var at *time.Time
	if req.At != "" {
		t, err := time.Parse(time.RFC3339, req.At)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid timestamp"})
		}
		at = &t
	}

	if err := h.Svc.Advance(c.Request().Context(), c.Param("code"), model.OrderStatus(req.Status), at); err != nil {
		return h.fail(c, err, "order advance")
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "advanced"})
}

// POST /v1/admin/orders/:code/refund
func (h *Controller) Refund(c echo.Context) error {
	if !jwtx.IsLibrarian(c) {
		return c.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
	}
	var req RefundReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid JSON"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "validation error", "errors": err.Error()})
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid amount"})
	}

	if err := h.Svc.Refund(c.Request().Context(), c.Param("code"), amount, req.Reason, req.RestoreStock); err != nil {
		return h.fail(c, err, "order refund")
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "refunded"})
}

// GET /v1/admin/orders/attention
func (h *Controller) Attention(c echo.Context) error {
	if !jwtx.IsLibrarian(c) {
		return c.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
	}
	report, err := h.Svc.AttentionReport(c.Request().Context(), time.Now().UTC())
	if err != nil {
		h.Log.Error("order attention", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"data": report})
}

func (h *Controller) fail(c echo.Context, err error, op string) error {
	h.Log.Error(op, "err", err)
	switch ordersvc.Code(err) {
	case ordersvc.ErrNotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"message": "order not found"})
	case ordersvc.ErrNotOwner:
		return c.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
	case ordersvc.ErrInvalidTransition:
		return c.JSON(http.StatusConflict, echo.Map{"message": err.Error()})
	case ordersvc.ErrNotPaid:
		return c.JSON(http.StatusConflict, echo.Map{"message": "order is not paid"})
	case ordersvc.ErrInvalidAmount:
		return c.JSON(http.StatusBadRequest, echo.Map{"message": err.Error()})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
}
