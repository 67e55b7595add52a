package order

type CheckoutReq struct {
	ShippingName    string `json:"shipping_name" validate:"required"`
	ShippingPhone   string `json:"shipping_phone" validate:"required"`
	ShippingAddress string `json:"shipping_address" validate:"required"`
	Notes           string `json:"notes"`
}

type AdvanceReq struct {
	Status string `json:"status" validate:"required,oneof=PROCESSING SHIPPED DELIVERED"`
	At     string `json:"at"` // RFC3339, optional
}

type RefundReq struct {
	Amount       string `json:"amount" validate:"required"`
	Reason       string `json:"reason" validate:"required"`
	RestoreStock bool   `json:"restore_stock"`
}
