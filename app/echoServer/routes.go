package echoServer

import (
	"net/http"

	"librastore/app/echoServer/controller/cart"
	"librastore/app/echoServer/controller/catalog"
	"librastore/app/echoServer/controller/loan"
	"librastore/app/echoServer/controller/order"
	"librastore/app/echoServer/controller/payment"
	"librastore/app/echoServer/jwtx"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
)

type C struct {
	Catalog *catalog.Controller
	Cart    *cart.Controller
	Order   *order.Controller
	Loan    *loan.Controller
	Payment *payment.Controller

	JWTSecret string
}

func Register(e *echo.Echo, c C) {
	// Public: gateway callbacks arrive unauthenticated and are trusted only
	// through their signature.
	pub := e.Group("/v1")
	pub.GET("/payments/vnpay/return", c.Payment.HandleReturn)
	pub.GET("/payments/vnpay/ipn", c.Payment.HandleIPN)

	// Auth
	auth := e.Group("/v1")
	auth.Use(echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(c.JWTSecret),
		NewClaimsFunc: func(c echo.Context) jwt.Claims { return jwt.MapClaims{} },
		TokenLookup:   "header:Authorization",
	}))
	auth.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			uid, err := jwtx.UserIDFromContext(ctx)
			if err != nil {
				return ctx.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
			}
			ctx.Set("user_id", uid)
			return next(ctx)
		}
	})

	// Catalog view
	auth.GET("/items", c.Catalog.List)
	auth.GET("/items/:id", c.Catalog.Detail)
	auth.PUT("/admin/items/:id/loan-copies", c.Catalog.SetLoanTotals)

	// Cart
	auth.GET("/cart", c.Cart.Summary)
	auth.POST("/cart/items", c.Cart.Add)
	auth.PUT("/cart/items/:itemId", c.Cart.UpdateQuantity)
	auth.DELETE("/cart/items/:itemId", c.Cart.Remove)
	auth.DELETE("/cart", c.Cart.Clear)
	auth.POST("/cart/reconcile", c.Cart.Reconcile)

	// Orders
	auth.POST("/orders", c.Order.Checkout)
	auth.GET("/orders", c.Order.ListMine)
	auth.GET("/orders/:code", c.Order.Get)
	auth.POST("/orders/:code/cancel", c.Order.Cancel)
	auth.GET("/orders/:code/payments", c.Payment.ListByOrder)
	auth.GET("/admin/orders/attention", c.Order.Attention)
	auth.POST("/admin/orders/:code/advance", c.Order.Advance)
	auth.POST("/admin/orders/:code/refund", c.Order.Refund)

	// Payments
	auth.POST("/payments", c.Payment.CreateAttempt)
	auth.POST("/payments/cancel", c.Payment.CancelPending)

	// Loans
	auth.POST("/loans", c.Loan.Request)
	auth.GET("/loans/my", c.Loan.MyLoans)
	auth.POST("/loans/:id/cancel", c.Loan.Cancel)
	auth.POST("/admin/loans/:id/approve", c.Loan.Approve)
	auth.POST("/admin/loans/:id/reject", c.Loan.Reject)
	auth.POST("/admin/loans/:id/borrow", c.Loan.MarkBorrowed)
	auth.POST("/admin/loans/:id/return", c.Loan.Return)
}
