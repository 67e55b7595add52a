package loan

import (
	"log/slog"
	"net/http"
	"strconv"

	"librastore/app/echoServer/jwtx"
	inventorysvc "librastore/service/inventory"
	loansvc "librastore/service/loan"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type Controller struct {
	Svc loansvc.Service
	V   *validator.Validate
	Log *slog.Logger
}

// POST /v1/loans
func (h *Controller) Request(c echo.Context) error {
	var req RequestLoanReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid JSON"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "validation error", "errors": err.Error()})
	}
	uid, _ := c.Get("user_id").(int64)

	l, err := h.Svc.Request(c.Request().Context(), uid, req.ItemID, req.Notes)
	if err != nil {
		return h.fail(c, err, "loan request")
	}
	return c.JSON(http.StatusCreated, echo.Map{"data": l})
}

// POST /v1/admin/loans/:id/approve
func (h *Controller) Approve(c echo.Context) error {
	if !jwtx.IsLibrarian(c) {
		return c.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
	}
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	var req ApproveReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid JSON"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "validation error", "errors": err.Error()})
	}
	uid, _ := c.Get("user_id").(int64)

	l, err := h.Svc.Approve(c.Request().Context(), uid, id, req.CustomPeriodDays)
	if err != nil {
		return h.fail(c, err, "loan approve")
	}
	return c.JSON(http.StatusOK, echo.Map{"data": l})
}

// POST /v1/admin/loans/:id/reject
func (h *Controller) Reject(c echo.Context) error {
	if !jwtx.IsLibrarian(c) {
		return c.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
	}
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	var req RejectReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid JSON"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "rejection reason is required"})
	}
	uid, _ := c.Get("user_id").(int64)

	if err := h.Svc.Reject(c.Request().Context(), uid, id, req.Reason); err != nil {
		return h.fail(c, err, "loan reject")
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "rejected"})
}

// POST /v1/admin/loans/:id/borrow
func (h *Controller) MarkBorrowed(c echo.Context) error {
	if !jwtx.IsLibrarian(c) {
		return c.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
	}
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	uid, _ := c.Get("user_id").(int64)

	if err := h.Svc.MarkBorrowed(c.Request().Context(), uid, id); err != nil {
		return h.fail(c, err, "loan borrow")
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "borrowed"})
}

// POST /v1/loans/:id/cancel
func (h *Controller) Cancel(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	uid, _ := c.Get("user_id").(int64)

	if err := h.Svc.Cancel(c.Request().Context(), uid, id); err != nil {
		return h.fail(c, err, "loan cancel")
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "cancelled"})
}

// POST /v1/admin/loans/:id/return
func (h *Controller) Return(c echo.Context) error {
	if !jwtx.IsLibrarian(c) {
		return c.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
	}
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	var req ReturnReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid JSON"})
	}
	uid, _ := c.Get("user_id").(int64)

	params := loansvc.ReturnParams{
		LibrarianID:       uid,
		Notes:             req.Notes,
		Damaged:           req.Damaged,
		DamageDescription: req.DamageDescription,
	}
	if req.CustomFine != nil {
		fine, err := decimal.NewFromString(*req.CustomFine)
		if err != nil || fine.IsNegative() {
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid custom fine"})
		}
		params.CustomFine = &fine
	}

	l, err := h.Svc.Return(c.Request().Context(), id, params)
	if err != nil {
		return h.fail(c, err, "loan return")
	}
	return c.JSON(http.StatusOK, echo.Map{"data": l})
}

// GET /v1/loans/my
func (h *Controller) MyLoans(c echo.Context) error {
	uid, _ := c.Get("user_id").(int64)
	loans, err := h.Svc.MyLoans(c.Request().Context(), uid)
	if err != nil {
		h.Log.Error("loan history", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"data": loans})
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.ErrBadRequest
	}
	return id, nil
}

func (h *Controller) fail(c echo.Context, err error, op string) error {
	h.Log.Error(op, "err", err)
	switch loansvc.Code(err) {
	case loansvc.ErrDuplicateRequest:
		return c.JSON(http.StatusConflict, echo.Map{"message": "you already have an active loan on this book"})
	case loansvc.ErrMaxLoansExceeded:
		return c.JSON(http.StatusConflict, echo.Map{"message": "active loan limit reached"})
	case loansvc.ErrBookNotAvailable:
		return c.JSON(http.StatusConflict, echo.Map{"message": "book is not available for loan"})
	case loansvc.ErrNotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"message": "loan not found"})
	case loansvc.ErrNotOwner:
		return c.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
	case loansvc.ErrInvalidTransition:
		return c.JSON(http.StatusConflict, echo.Map{"message": "loan is not in a valid state for this action"})
	case loansvc.ErrReasonRequired:
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "rejection reason is required"})
	}
	switch inventorysvc.Code(err) {
	case inventorysvc.ErrItemNotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"message": "book not found"})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
}
