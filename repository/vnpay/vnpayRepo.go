package vnpayrepo

import (
	"net/url"
	"time"
)

// ResponseCodeOK is the provider's success code; anything else is a failure.
const ResponseCodeOK = "00"

type Config struct {
	TmnCode    string
	HashSecret string
	PayURL     string
	ReturnURL  string
}

type PayURLReq struct {
	TxnRef    string
	AmountVND int64 // major units; the wire carries minor units (x100)
	OrderInfo string
	Locale    string
	ClientIP  string
	CreatedAt time.Time
}

// Callback is the verified parameter set common to the return redirect and
// the server-to-server notification. Both channels carry the same fields.
type Callback struct {
	TxnRef        string
	AmountVND     int64
	ResponseCode  string
	TransactionNo string
	BankCode      string
	PayDate       string
}

type Repo interface {
	// BuildPayURL renders the signed redirect to the provider's payment page.
	BuildPayURL(req PayURLReq) (string, error)

	// ParseCallback verifies the signature over the received parameters and
	// decodes them. Fails closed on any mismatch: unsigned fields are never
	// trusted.
	ParseCallback(values url.Values) (*Callback, error)
}
