package cart

type AddItemReq struct {
	ItemID   int64 `json:"item_id" validate:"required,gt=0"`
	Quantity int   `json:"quantity" validate:"required,gt=0"`
}

type UpdateQuantityReq struct {
	Quantity int `json:"quantity" validate:"required,gt=0"`
}
