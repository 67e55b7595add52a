package payment

import (
	"log/slog"
	"net/http"

	ordersvc "librastore/service/order"
	paymentsvc "librastore/service/payment"

	"github.com/labstack/echo/v4"
)

type Controller struct {
	Svc paymentsvc.Service
	Log *slog.Logger
}

type createAttemptReq struct {
	OrderCode string `json:"order_code" validate:"required"`
}

// POST /v1/payments
func (h *Controller) CreateAttempt(c echo.Context) error {
	var req createAttemptReq
	if err := c.Bind(&req); err != nil || req.OrderCode == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "order_code is required"})
	}
	uid, _ := c.Get("user_id").(int64)

	attempt, err := h.Svc.CreateAttempt(c.Request().Context(), uid, req.OrderCode, c.RealIP())
	if err != nil {
		return h.fail(c, err, "payment create")
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"payment": attempt.Payment,
		"pay_url": attempt.PayURL,
	})
}

// GET /v1/payments/vnpay/return — the browser redirect channel.
func (h *Controller) HandleReturn(c echo.Context) error {
	outcome, err := h.Svc.Reconcile(c.Request().Context(), c.QueryParams())
	if err != nil {
		return h.failCallback(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"data": outcome})
}

// GET /v1/payments/vnpay/ipn — the server-to-server channel. Same
// reconciliation; the provider only wants an acknowledgement code back.
func (h *Controller) HandleIPN(c echo.Context) error {
	outcome, err := h.Svc.Reconcile(c.Request().Context(), c.QueryParams())
	if err != nil {
		h.Log.Error("payment ipn", "err", err)
		switch paymentsvc.Code(err) {
		case paymentsvc.ErrInvalidSignature:
			return c.JSON(http.StatusOK, echo.Map{"RspCode": "97", "Message": "Invalid signature"})
		case paymentsvc.ErrNotFound:
			return c.JSON(http.StatusOK, echo.Map{"RspCode": "01", "Message": "Order not found"})
		}
		return c.JSON(http.StatusOK, echo.Map{"RspCode": "99", "Message": "Unknown error"})
	}
	if outcome.Duplicate {
		return c.JSON(http.StatusOK, echo.Map{"RspCode": "02", "Message": "Order already confirmed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"RspCode": "00", "Message": "Confirm success"})
}

// POST /v1/payments/cancel
func (h *Controller) CancelPending(c echo.Context) error {
	var req createAttemptReq
	if err := c.Bind(&req); err != nil || req.OrderCode == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "order_code is required"})
	}
	uid, _ := c.Get("user_id").(int64)

	if err := h.Svc.CancelPending(c.Request().Context(), uid, req.OrderCode); err != nil {
		return h.fail(c, err, "payment cancel")
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "cancelled"})
}

// GET /v1/orders/:code/payments
func (h *Controller) ListByOrder(c echo.Context) error {
	uid, _ := c.Get("user_id").(int64)
	payments, err := h.Svc.ListByOrder(c.Request().Context(), uid, c.Param("code"))
	if err != nil {
		return h.fail(c, err, "payment list")
	}
	return c.JSON(http.StatusOK, echo.Map{"data": payments})
}

func (h *Controller) fail(c echo.Context, err error, op string) error {
	h.Log.Error(op, "err", err)
	switch paymentsvc.Code(err) {
	case paymentsvc.ErrDuplicatePending:
		return c.JSON(http.StatusConflict, echo.Map{"message": "a payment attempt is already pending for this order"})
	case paymentsvc.ErrOrderNotPayable:
		return c.JSON(http.StatusConflict, echo.Map{"message": "order is not awaiting payment"})
	case paymentsvc.ErrNotPending:
		return c.JSON(http.StatusConflict, echo.Map{"message": "no pending payment for this order"})
	case paymentsvc.ErrNotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"message": "payment not found"})
	}
	switch ordersvc.Code(err) {
	case ordersvc.ErrNotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"message": "order not found"})
	case ordersvc.ErrNotOwner:
		return c.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
}

func (h *Controller) failCallback(c echo.Context, err error) error {
	h.Log.Error("payment callback error", "err", err)
	switch paymentsvc.Code(err) {
	case paymentsvc.ErrInvalidSignature:
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "signature verification failed"})
	case paymentsvc.ErrNotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"message": "payment not found"})
	}
	return c.JSON(http.StatusBadRequest, echo.Map{"message": "payment rejected"})
}
