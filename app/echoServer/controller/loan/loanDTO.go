package loan

type RequestLoanReq struct {
	ItemID int64  `json:"item_id" validate:"required,gt=0"`
	Notes  string `json:"notes"`
}

type ApproveReq struct {
	CustomPeriodDays *int `json:"custom_period_days" validate:"omitempty,gt=0"`
}

type RejectReq struct {
	Reason string `json:"reason" validate:"required"`
}

type ReturnReq struct {
	Notes             string  `json:"notes"`
	CustomFine        *string `json:"custom_fine"`
	Damaged           bool    `json:"damaged"`
	DamageDescription string  `json:"damage_description"`
}
