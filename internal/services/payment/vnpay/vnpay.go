// Package vnpay implements the VNPay redirect-payment contract: building the
// signed pay URL and verifying the HMAC-SHA512 signature the gateway attaches
// to both the browser return and the server-to-server IPN call.
package vnpay

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// IPN response codes the gateway parses to decide on redelivery.
const (
	RspCodeSuccess          = "00"
	RspCodeOrderNotFound    = "01"
	RspCodeAlreadyConfirmed = "02"
	RspCodeInvalidAmount    = "04"
	RspCodeInvalidSignature = "97"
	RspCodeUnknownError     = "99"
)

const (
	version        = "2.1.0"
	commandPay     = "pay"
	currencyVND    = "VND"
	localeVN       = "vn"
	orderTypeOther = "other"
	dateLayout     = "20060102150405"
	payExpiry      = 15 * time.Minute
	txnRefPrefix   = "ORDER_"
)

var (
	ErrNotConfigured = fmt.Errorf("vnpay gateway is not configured")
	ErrBadTxnRef     = fmt.Errorf("malformed transaction reference")
)

type Config struct {
	TmnCode    string
	HashSecret string
	PayURL     string
	ReturnURL  string
}

type Gateway struct {
	cfg Config
	now func() time.Time
}

func New(cfg Config) *Gateway {
	return &Gateway{cfg: cfg, now: time.Now}
}

// Enabled reports whether merchant credentials are present. Without them the
// redirect path surfaces as gateway-unavailable.
func (g *Gateway) Enabled() bool {
	return g.cfg.TmnCode != "" && g.cfg.HashSecret != ""
}

// FormatTxnRef builds the transaction reference embedded in the pay URL. The
// order id is recovered from it when the gateway calls back.
func FormatTxnRef(orderID int64, t time.Time) string {
	return fmt.Sprintf("%s%d_%d", txnRefPrefix, orderID, t.Unix())
}

// ParseTxnRef extracts the order id from an ORDER_{id}_{timestamp} reference.
func ParseTxnRef(ref string) (int64, error) {
	if !strings.HasPrefix(ref, txnRefPrefix) {
		return 0, ErrBadTxnRef
	}
	parts := strings.Split(strings.TrimPrefix(ref, txnRefPrefix), "_")
	if len(parts) != 2 {
		return 0, ErrBadTxnRef
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrBadTxnRef
	}
	if _, err := strconv.ParseInt(parts[1], 10, 64); err != nil {
		return 0, ErrBadTxnRef
	}
	return id, nil
}

type PaymentRequest struct {
	OrderID   int64
	Amount    decimal.Decimal
	OrderInfo string
	ClientIP  string
	ReturnURL string // optional override of the configured return URL
}

// BuildPaymentURL constructs the signed redirect URL. The amount is converted
// to the gateway's minor-unit convention (VND x100). Returns the URL and the
// transaction reference it carries.
func (g *Gateway) BuildPaymentURL(req PaymentRequest) (string, string, error) {
	if !g.Enabled() {
		return "", "", ErrNotConfigured
	}

	now := g.now()
	txnRef := FormatTxnRef(req.OrderID, now)

	returnURL := g.cfg.ReturnURL
	if req.ReturnURL != "" {
		returnURL = req.ReturnURL
	}

	orderInfo := req.OrderInfo
	if orderInfo == "" {
		orderInfo = fmt.Sprintf("Thanh toan don hang %d", req.OrderID)
	}

	params := url.Values{}
	params.Set("vnp_Version", version)
	params.Set("vnp_Command", commandPay)
	params.Set("vnp_TmnCode", g.cfg.TmnCode)
	params.Set("vnp_Amount", strconv.FormatInt(req.Amount.Shift(2).IntPart(), 10))
	params.Set("vnp_CurrCode", currencyVND)
	params.Set("vnp_TxnRef", txnRef)
	params.Set("vnp_OrderInfo", orderInfo)
	params.Set("vnp_OrderType", orderTypeOther)
	params.Set("vnp_Locale", localeVN)
	params.Set("vnp_ReturnUrl", returnURL)
	params.Set("vnp_IpAddr", req.ClientIP)
	params.Set("vnp_CreateDate", now.Format(dateLayout))
	params.Set("vnp_ExpireDate", now.Add(payExpiry).Format(dateLayout))

	query := encodeSorted(params)
	hash := hmacSHA512(g.cfg.HashSecret, query)

	return g.cfg.PayURL + "?" + query + "&vnp_SecureHash=" + hash, txnRef, nil
}

// VerifySignature checks the vnp_SecureHash over the remaining vnp_ params.
// The comparison is constant-time; a forged-but-structurally-valid payload
// fails here before any state is touched.
func (g *Gateway) VerifySignature(values url.Values) bool {
	if !g.Enabled() {
		return false
	}

	received := values.Get("vnp_SecureHash")
	if received == "" {
		return false
	}

	expected := hmacSHA512(g.cfg.HashSecret, encodeSorted(values))
	return hmac.Equal([]byte(strings.ToLower(received)), []byte(expected))
}

// CallbackResult is the reconciliation-relevant view of a verified callback or
// IPN payload.
type CallbackResult struct {
	TxnRef            string
	OrderID           int64
	Amount            decimal.Decimal // major units
	TransactionNo     string
	BankCode          string
	ResponseCode      string
	TransactionStatus string
	Success           bool
}

// ParseCallback extracts the reconciliation fields. The caller must have
// verified the signature first.
func ParseCallback(values url.Values) (*CallbackResult, error) {
	txnRef := values.Get("vnp_TxnRef")
	orderID, err := ParseTxnRef(txnRef)
	if err != nil {
		return nil, err
	}

	minor, err := strconv.ParseInt(values.Get("vnp_Amount"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid vnp_Amount: %w", err)
	}

	responseCode := values.Get("vnp_ResponseCode")
	txnStatus := values.Get("vnp_TransactionStatus")

	return &CallbackResult{
		TxnRef:            txnRef,
		OrderID:           orderID,
		Amount:            decimal.NewFromInt(minor).Shift(-2),
		TransactionNo:     values.Get("vnp_TransactionNo"),
		BankCode:          values.Get("vnp_BankCode"),
		ResponseCode:      responseCode,
		TransactionStatus: txnStatus,
		Success:           responseCode == "00" && txnStatus == "00",
	}, nil
}

// encodeSorted builds the canonical sign data: vnp_ params sorted by key,
// url-encoded, joined with &. The hash fields themselves are excluded.
func encodeSorted(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k == "vnp_SecureHash" || k == "vnp_SecureHashType" {
			continue
		}
		if values.Get(k) == "" {
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
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(values.Get(k)))
	}
	return b.String()
}

func hmacSHA512(secret, data string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}
