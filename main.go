// Package main librastore API.
//
// @title           Librastore API
// @version         1.0
// @description     Book store and lending service (catalog, cart, orders, loans, payments).
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description  Use:  Bearer <JWT>
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"librastore/app/echoServer"
	cartctrl "librastore/app/echoServer/controller/cart"
	catalogctrl "librastore/app/echoServer/controller/catalog"
	loanctrl "librastore/app/echoServer/controller/loan"
	orderctrl "librastore/app/echoServer/controller/order"
	paymentctrl "librastore/app/echoServer/controller/payment"
	"librastore/app/echoServer/validation"
	"librastore/config"
	cartrepo "librastore/repository/cart"
	catalogrepo "librastore/repository/catalog"
	loanrepo "librastore/repository/loan"
	orderrepo "librastore/repository/order"
	paymentrepo "librastore/repository/payment"
	vnpayrepo "librastore/repository/vnpay"
	cartsvc "librastore/service/cart"
	inventorysvc "librastore/service/inventory"
	loansvc "librastore/service/loan"
	ordersvc "librastore/service/order"
	paymentsvc "librastore/service/payment"
	"librastore/service/sweeper"
	"librastore/util/database"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	echoSwagger "github.com/swaggo/echo-swagger"
)

func main() {

	cfg := config.Load()
	pol := config.DefaultPolicy()
	ctx := context.Background()

	// logger
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// DB: *sql.DB
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// repos
	catR := catalogrepo.New(db)
	cartR := cartrepo.New(db)
	ordR := orderrepo.New(db)
	loanR := loanrepo.New(db)
	payR := paymentrepo.New(db)
	gw := vnpayrepo.New(vnpayrepo.Config{
		TmnCode:    cfg.VNPTmnCode,
		HashSecret: cfg.VNPHashSecret,
		PayURL:     cfg.VNPPayURL,
		ReturnURL:  cfg.VNPReturnURL,
	})

	// services
	invS := inventorysvc.New(db, catR, log)
	cartS := cartsvc.New(db, cartR, invS, pol.Commerce)
	ordS := ordersvc.New(db, ordR, cartR, cartS, invS, pol.Commerce)
	loanS := loansvc.New(db, loanR, invS, pol.Loan, log)
	payS := paymentsvc.New(db, payR, gw, ordS, pol.Payment, log)

	// controllers
	v := validator.New()
	catalogC := &catalogctrl.Controller{Svc: invS, V: v, Log: log}
	cartC := &cartctrl.Controller{Svc: cartS, V: v, Log: log}
	orderC := &orderctrl.Controller{Svc: ordS, V: v, Log: log}
	loanC := &loanctrl.Controller{Svc: loanS, V: v, Log: log}
	paymentC := &paymentctrl.Controller{Svc: payS, Log: log}

	// background sweeps
	runner := sweeper.NewRunner(cfg.SweepInterval, log,
		sweeper.Sweep{Name: "overdue_loans", Run: func(ctx context.Context, now time.Time) (int64, error) {
			n, err := loanS.SweepOverdue(ctx, now)
			return int64(n), err
		}},
		sweeper.Sweep{Name: "expired_payments", Run: payS.ProcessExpired},
	)
	runner.Start(ctx)

	// echo
	e := echo.New()
	echoServer.RegisterMiddlewares(e)
	e.Validator = validation.New()

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]any{
			"status":  "ok",
			"message": "Service is healthy and connected",
		})
	})

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	echoServer.Register(e, echoServer.C{
		Catalog: catalogC,
		Cart:    cartC,
		Order:   orderC,
		Loan:    loanC,
		Payment: paymentC,

		JWTSecret: cfg.JWTSecret,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Port
	}
	if port == "" {
		port = "8080"
	}

	slog.Info("starting server", "chosen_port", port)

	e.Logger.Fatal(e.Start(":" + port))
}
