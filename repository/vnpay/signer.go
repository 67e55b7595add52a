package vnpayrepo

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrBadSignature = errors.New("vnpay: signature mismatch")
	ErrBadCallback  = errors.New("vnpay: malformed callback")
)

type gateway struct {
	cfg Config
}

func New(cfg Config) Repo { return &gateway{cfg: cfg} }

func (g *gateway) BuildPayURL(req PayURLReq) (string, error) {
	if req.TxnRef == "" || req.AmountVND <= 0 {
		return "", errors.New("vnpay: txn ref and positive amount required")
	}
	locale := req.Locale
	if locale == "" {
		locale = "vn"
	}

	params := map[string]string{
		"vnp_Version":    "2.1.0",
		"vnp_Command":    "pay",
		"vnp_TmnCode":    g.cfg.TmnCode,
		"vnp_Amount":     strconv.FormatInt(req.AmountVND*100, 10),
		"vnp_CurrCode":   "VND",
		"vnp_TxnRef":     req.TxnRef,
		"vnp_OrderInfo":  req.OrderInfo,
		"vnp_OrderType":  "other",
		"vnp_Locale":     locale,
		"vnp_ReturnUrl":  g.cfg.ReturnURL,
		"vnp_IpAddr":     req.ClientIP,
		"vnp_CreateDate": req.CreatedAt.Format("20060102150405"),
	}

	query := signedQuery(params, g.cfg.HashSecret)
	return g.cfg.PayURL + "?" + query, nil
}

func (g *gateway) ParseCallback(values url.Values) (*Callback, error) {
	received := values.Get("vnp_SecureHash")
	if received == "" {
		return nil, ErrBadSignature
	}

	params := make(map[string]string)
	for k := range values {
		if k == "vnp_SecureHash" || k == "vnp_SecureHashType" {
			continue
		}
		if strings.HasPrefix(k, "vnp_") {
			params[k] = values.Get(k)
		}
	}

	expected := sign(params, g.cfg.HashSecret)
	if !hmac.Equal([]byte(strings.ToLower(received)), []byte(expected)) {
		return nil, ErrBadSignature
	}

	cb := &Callback{
		TxnRef:        params["vnp_TxnRef"],
		ResponseCode:  params["vnp_ResponseCode"],
		TransactionNo: params["vnp_TransactionNo"],
		BankCode:      params["vnp_BankCode"],
		PayDate:       params["vnp_PayDate"],
	}
	if cb.TxnRef == "" || cb.ResponseCode == "" {
		return nil, ErrBadCallback
	}
	if raw := params["vnp_Amount"]; raw != "" {
		minor, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad amount %q", ErrBadCallback, raw)
		}
		cb.AmountVND = minor / 100
	}
	return cb, nil
}

// sign computes the HMAC-SHA512 hex digest over the parameters sorted by key
// and query-encoded, the provider's canonical form.
func sign(params map[string]string, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(hashData(params)))
	return hex.EncodeToString(mac.Sum(nil))
}

func hashData(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}

func signedQuery(params map[string]string, secret string) string {
	data := hashData(params)
	return data + "&vnp_SecureHash=" + sign(params, secret)
}
