package cart

import (
	"log/slog"
	"net/http"
	"strconv"

	cartsvc "librastore/service/cart"
	inventorysvc "librastore/service/inventory"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type Controller struct {
	Svc cartsvc.Service
	V   *validator.Validate
	Log *slog.Logger
}

// POST /v1/cart/items
func (h *Controller) Add(c echo.Context) error {
	var req AddItemReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid JSON"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"message": "validation error",
			"errors":  err.Error(),
		})
	}
	uid, _ := c.Get("user_id").(int64)

	entry, err := h.Svc.AddItem(c.Request().Context(), uid, req.ItemID, req.Quantity)
	if err != nil {
		return h.fail(c, err, "cart add")
	}
	return c.JSON(http.StatusCreated, echo.Map{"data": entry})
}

// PUT /v1/cart/items/:itemId
func (h *Controller) UpdateQuantity(c echo.Context) error {
	itemID, err := strconv.ParseInt(c.Param("itemId"), 10, 64)
	if err != nil || itemID <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid item id"})
	}
	var req UpdateQuantityReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid JSON"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "validation error", "errors": err.Error()})
	}
	uid, _ := c.Get("user_id").(int64)

	entry, err := h.Svc.UpdateQuantity(c.Request().Context(), uid, itemID, req.Quantity)
	if err != nil {
		return h.fail(c, err, "cart update")
	}
	return c.JSON(http.StatusOK, echo.Map{"data": entry})
}

// DELETE /v1/cart/items/:itemId
func (h *Controller) Remove(c echo.Context) error {
	itemID, err := strconv.ParseInt(c.Param("itemId"), 10, 64)
	if err != nil || itemID <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid item id"})
	}
	uid, _ := c.Get("user_id").(int64)

	if err := h.Svc.RemoveItem(c.Request().Context(), uid, itemID); err != nil {
		return h.fail(c, err, "cart remove")
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "removed"})
}

// DELETE /v1/cart
func (h *Controller) Clear(c echo.Context) error {
	uid, _ := c.Get("user_id").(int64)
	if err := h.Svc.Clear(c.Request().Context(), uid); err != nil {
		h.Log.Error("cart clear", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "cleared"})
}

// GET /v1/cart
func (h *Controller) Summary(c echo.Context) error {
	uid, _ := c.Get("user_id").(int64)
	sum, err := h.Svc.Summarize(c.Request().Context(), uid)
	if err != nil {
		h.Log.Error("cart summary", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"data": sum})
}

// POST /v1/cart/reconcile
func (h *Controller) Reconcile(c echo.Context) error {
	uid, _ := c.Get("user_id").(int64)
	notes, err := h.Svc.Reconcile(c.Request().Context(), uid)
	if err != nil {
		h.Log.Error("cart reconcile", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"adjustments": notes})
}

func (h *Controller) fail(c echo.Context, err error, op string) error {
	h.Log.Error(op, "err", err)
	switch cartsvc.Code(err) {
	case cartsvc.ErrInvalidQuantity:
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "quantity must be positive"})
	case cartsvc.ErrBookNotAvailable:
		return c.JSON(http.StatusConflict, echo.Map{"message": "book is not available for sale"})
	case cartsvc.ErrNoStock, cartsvc.ErrQuantityCap:
		return c.JSON(http.StatusConflict, echo.Map{"message": err.Error()})
	case cartsvc.ErrNotInCart:
		return c.JSON(http.StatusNotFound, echo.Map{"message": "item not in cart"})
	}
	switch inventorysvc.Code(err) {
	case inventorysvc.ErrItemNotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"message": "book not found"})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
}
