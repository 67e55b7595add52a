package config

import "time"

type App struct {
	Port        string `env:"APP_PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	JWTSecret   string `env:"JWT_SECRET,required"`
	Env         string `env:"APP_ENV" default:"dev"`

	SweepInterval time.Duration `env:"SWEEP_INTERVAL" default:"1m"`

	// VNPay gateway credentials
	VNPTmnCode    string `env:"VNP_TMN_CODE"`
	VNPHashSecret string `env:"VNP_HASH_SECRET"`
	VNPPayURL     string `env:"VNP_PAY_URL" default:"https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"`
	VNPReturnURL  string `env:"VNP_RETURN_URL"`
}
