package product

import (
	"testing"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRaw(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantID       string
		wantPrice    string
		wantDiscount string
		wantErrText  string
	}{
		{
			name:         "integer id",
			input:        `{"id":1,"title":"Essence Mascara","price":9.99,"discountPercentage":7.17,"tags":["beauty"]}`,
			wantID:       "1",
			wantPrice:    "9.99",
			wantDiscount: "7.17",
		},
		{
			name:         "string id without discount",
			input:        `{"id":"p-7","price":120}`,
			wantID:       "p-7",
			wantPrice:    "120",
			wantDiscount: "0",
		},
		{
			name:         "numeric string price",
			input:        `{"id":3,"price":"6.50","discountPercentage":0}`,
			wantID:       "3",
			wantPrice:    "6.5",
			wantDiscount: "0",
		},
		{name: "array record", input: `[1,2]`, wantErrText: "want object"},
		{name: "missing price", input: `{"id":1}`, wantErrText: "missing price"},
		{name: "missing id", input: `{"price":1}`, wantErrText: "missing id"},
		{name: "negative price", input: `{"id":1,"price":-1}`, wantErrText: "negative price"},
		{name: "discount above 100", input: `{"id":1,"price":1,"discountPercentage":101}`, wantErrText: "out of range"},
		{name: "fractional id", input: `{"id":1.5,"price":1}`, wantErrText: "non-integer id"},
		{name: "boolean price", input: `{"id":1,"price":true}`, wantErrText: "price"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRaw(jx.Raw(tt.input))
			if tt.wantErrText != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErrText)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantID, got.ID)
			assert.True(t, decimal.RequireFromString(tt.wantPrice).Equal(got.Price), "price %s", got.Price)
			assert.True(t, decimal.RequireFromString(tt.wantDiscount).Equal(got.DiscountPercentage))
			assert.JSONEq(t, tt.input, got.Raw.String())
		})
	}
}

func TestEncode_KeepsOriginalRecord(t *testing.T) {
	const record = `{"id":1,"title":"Essence Mascara","price":9.99,"rating":4.94}`
	pr, err := DecodeRaw(jx.Raw(record))
	require.NoError(t, err)

	var e jx.Encoder
	pr.Encode(&e)
	assert.Equal(t, record, e.String())
}

func TestEncode_WithoutPayload(t *testing.T) {
	pr := Product{ID: "x", Price: decimal.RequireFromString("2.5")}

	var e jx.Encoder
	pr.Encode(&e)
	assert.JSONEq(t, `{"id":"x","price":2.5,"discountPercentage":0}`, e.String())

	back, err := DecodeRaw(e.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "x", back.ID)
	assert.True(t, pr.Price.Equal(back.Price))
}
