package vnpay

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGateway() *Gateway {
	g := New(Config{
		TmnCode:    "TESTTMN1",
		HashSecret: "SECRETSECRETSECRETSECRET",
		PayURL:     "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
		ReturnURL:  "http://localhost:8080/api/v1/payments/vnpay/callback",
	})
	g.now = func() time.Time {
		return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	}
	return g
}

func TestBuildPaymentURLSignatureRoundTrip(t *testing.T) {
	g := testGateway()

	payURL, txnRef, err := g.BuildPaymentURL(PaymentRequest{
		OrderID:  42,
		Amount:   decimal.RequireFromString("80000"),
		ClientIP: "203.0.113.9",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(txnRef, "ORDER_42_"))

	parsed, err := url.Parse(payURL)
	require.NoError(t, err)
	values := parsed.Query()

	// A URL this gateway produced must verify against its own secret.
	assert.True(t, g.VerifySignature(values))

	// Amount is carried in minor units (x100).
	assert.Equal(t, "8000000", values.Get("vnp_Amount"))
	assert.Equal(t, "TESTTMN1", values.Get("vnp_TmnCode"))
	assert.Equal(t, txnRef, values.Get("vnp_TxnRef"))
}

func TestVerifySignatureRejectsTampering(t *testing.T) {
	g := testGateway()

	payURL, _, err := g.BuildPaymentURL(PaymentRequest{
		OrderID:  42,
		Amount:   decimal.RequireFromString("80000"),
		ClientIP: "203.0.113.9",
	})
	require.NoError(t, err)

	parsed, err := url.Parse(payURL)
	require.NoError(t, err)

	// Inflating the amount invalidates the signature.
	tampered := parsed.Query()
	tampered.Set("vnp_Amount", "1")
	assert.False(t, g.VerifySignature(tampered))

	// Dropping the hash entirely also fails.
	missing := parsed.Query()
	missing.Del("vnp_SecureHash")
	assert.False(t, g.VerifySignature(missing))
}

func TestVerifySignatureWrongSecret(t *testing.T) {
	g := testGateway()

	payURL, _, err := g.BuildPaymentURL(PaymentRequest{
		OrderID:  7,
		Amount:   decimal.RequireFromString("125000"),
		ClientIP: "203.0.113.9",
	})
	require.NoError(t, err)

	parsed, err := url.Parse(payURL)
	require.NoError(t, err)

	forger := New(Config{TmnCode: "TESTTMN1", HashSecret: "WRONGSECRET"})
	assert.False(t, forger.VerifySignature(parsed.Query()))
}

func TestParseTxnRef(t *testing.T) {
	tests := []struct {
		ref     string
		wantID  int64
		wantErr bool
	}{
		{ref: "ORDER_42_1750000000", wantID: 42},
		{ref: "ORDER_1_1", wantID: 1},
		{ref: "ORDER_42", wantErr: true},
		{ref: "ORDER__1750000000", wantErr: true},
		{ref: "ORDER_abc_1750000000", wantErr: true},
		{ref: "ORDER_0_1750000000", wantErr: true},
		{ref: "PAY_42_1750000000", wantErr: true},
		{ref: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			id, err := ParseTxnRef(tt.ref)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrBadTxnRef)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestParseCallback(t *testing.T) {
	values := url.Values{}
	values.Set("vnp_TxnRef", "ORDER_42_1750000000")
	values.Set("vnp_Amount", "8000000")
	values.Set("vnp_TransactionNo", "14422574")
	values.Set("vnp_BankCode", "NCB")
	values.Set("vnp_ResponseCode", "00")
	values.Set("vnp_TransactionStatus", "00")

	cb, err := ParseCallback(values)
	require.NoError(t, err)

	assert.Equal(t, int64(42), cb.OrderID)
	assert.True(t, decimal.RequireFromString("80000").Equal(cb.Amount), "got %s", cb.Amount)
	assert.Equal(t, "14422574", cb.TransactionNo)
	assert.Equal(t, "NCB", cb.BankCode)
	assert.True(t, cb.Success)
}

func TestParseCallbackFailureCodes(t *testing.T) {
	base := func() url.Values {
		values := url.Values{}
		values.Set("vnp_TxnRef", "ORDER_42_1750000000")
		values.Set("vnp_Amount", "8000000")
		values.Set("vnp_ResponseCode", "00")
		values.Set("vnp_TransactionStatus", "00")
		return values
	}

	declined := base()
	declined.Set("vnp_ResponseCode", "24")
	cb, err := ParseCallback(declined)
	require.NoError(t, err)
	assert.False(t, cb.Success)

	pending := base()
	pending.Set("vnp_TransactionStatus", "01")
	cb, err = ParseCallback(pending)
	require.NoError(t, err)
	assert.False(t, cb.Success)

	badRef := base()
	badRef.Set("vnp_TxnRef", "not-a-ref")
	_, err = ParseCallback(badRef)
	require.Error(t, err)

	badAmount := base()
	badAmount.Set("vnp_Amount", "lots")
	_, err = ParseCallback(badAmount)
	require.Error(t, err)
}

func TestDisabledGateway(t *testing.T) {
	g := New(Config{})

	assert.False(t, g.Enabled())

	_, _, err := g.BuildPaymentURL(PaymentRequest{
		OrderID: 1,
		Amount:  decimal.NewFromInt(1000),
	})
	require.ErrorIs(t, err, ErrNotConfigured)

	assert.False(t, g.VerifySignature(url.Values{}))
}
