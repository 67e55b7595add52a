package catalog

import (
	"log/slog"
	"net/http"
	"strconv"

	"librastore/app/echoServer/jwtx"
	inventorysvc "librastore/service/inventory"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// Controller exposes the narrow read view onto the external catalog, plus the
// administrative loan-copy override. Catalog authoring lives elsewhere.
type Controller struct {
	Svc inventorysvc.Service
	V   *validator.Validate
	Log *slog.Logger
}

// GET /v1/items
func (h *Controller) List(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	items, err := h.Svc.ListItems(c.Request().Context(), limit, offset)
	if err != nil {
		h.Log.Error("item list", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"data": items})
}

// GET /v1/items/:id
func (h *Controller) Detail(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	item, err := h.Svc.GetItem(c.Request().Context(), id)
	if err != nil {
		h.Log.Error("item detail", "err", err)
		if inventorysvc.Code(err) == inventorysvc.ErrItemNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"message": "book not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"data": item})
}

type setLoanTotalsReq struct {
	Total     int64 `json:"total" validate:"gte=0"`
	Available int64 `json:"available" validate:"gte=0"`
}

// PUT /v1/admin/items/:id/loan-copies
func (h *Controller) SetLoanTotals(c echo.Context) error {
	if !jwtx.IsLibrarian(c) {
		return c.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	var req setLoanTotalsReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid JSON"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "validation error", "errors": err.Error()})
	}

	if err := h.Svc.SetLoanCopyTotals(c.Request().Context(), id, req.Total, req.Available); err != nil {
		h.Log.Error("set loan totals", "err", err)
		switch inventorysvc.Code(err) {
		case inventorysvc.ErrInvalidRange:
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "available must be between 0 and total"})
		case inventorysvc.ErrItemNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"message": "book not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "updated"})
}
