package persist

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-catalog/internal/catalog"
	"github.com/xenking/kart-catalog/internal/domain/product"
)

func mustDecode(t *testing.T, raw string) product.Product {
	t.Helper()
	p, err := product.DecodeRaw([]byte(raw))
	require.NoError(t, err)
	return p
}

func TestEncodeState_Layout(t *testing.T) {
	st := catalog.State{
		RawProducts:     []product.Product{mustDecode(t, `{"id":1,"title":"Mug","price":10}`)},
		SortOrder:       product.SortAscending,
		DerivedProducts: []product.Product{mustDecode(t, `{"id":1,"title":"Mug","price":10}`)},
		Status:          catalog.StatusSucceeded,
	}

	assert.JSONEq(t, `{
		"version": 1,
		"rawProducts": [{"id":1,"title":"Mug","price":10}],
		"sortOrder": "ascending",
		"derivedProducts": [{"id":1,"title":"Mug","price":10}],
		"status": "succeeded",
		"error": null
	}`, string(EncodeState(st)))
}

func TestEncodeState_FailedCarriesMessage(t *testing.T) {
	st := catalog.InitialState()
	st.Status = catalog.StatusFailed
	st.Error = "HTTP 503"

	assert.JSONEq(t, `{
		"version": 1,
		"rawProducts": [],
		"sortOrder": "default",
		"derivedProducts": [],
		"status": "failed",
		"error": "HTTP 503"
	}`, string(EncodeState(st)))
}

func TestDecodeState_RoundTrip(t *testing.T) {
	raw := []product.Product{
		mustDecode(t, `{"id":1,"price":10,"discountPercentage":5.5,"tags":["a"]}`),
		mustDecode(t, `{"id":"x-2","price":"3.25"}`),
	}
	in := catalog.State{
		RawProducts:     raw,
		SortOrder:       product.SortDescending,
		DerivedProducts: product.Sort(raw, product.SortDescending),
		Status:          catalog.StatusFailed,
		Error:           "timeout",
	}

	out, err := DecodeState(EncodeState(in))
	require.NoError(t, err)

	assert.Equal(t, product.SortDescending, out.SortOrder)
	assert.Equal(t, catalog.StatusFailed, out.Status)
	assert.Equal(t, "timeout", out.Error)
	require.Len(t, out.RawProducts, 2)
	assert.Equal(t, "1", out.RawProducts[0].ID)
	assert.True(t, decimal.RequireFromString("5.5").Equal(out.RawProducts[0].DiscountPercentage))
	assert.Equal(t, "x-2", out.RawProducts[1].ID)
	assert.JSONEq(t, `{"id":1,"price":10,"discountPercentage":5.5,"tags":["a"]}`, string(out.RawProducts[0].Raw))
	assert.Nil(t, out.DerivedProducts, "derived view is rebuilt by the store")
}

func TestDecodeState(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    catalog.State
		wantErr string
	}{
		{
			name: "empty descending",
			data: `{"version":1,"rawProducts":[],"sortOrder":"descending","derivedProducts":[],"status":"succeeded","error":null}`,
			want: catalog.State{
				RawProducts: []product.Product{},
				SortOrder:   product.SortDescending,
				Status:      catalog.StatusSucceeded,
			},
		},
		{
			name: "loading kept for rehydration",
			data: `{"version":1,"rawProducts":[],"sortOrder":"default","status":"loading","error":null}`,
			want: catalog.State{
				RawProducts: []product.Product{},
				SortOrder:   product.SortDefault,
				Status:      catalog.StatusLoading,
			},
		},
		{
			name: "unknown fields skipped",
			data: `{"version":1,"extra":{"a":[1,2]},"status":"idle"}`,
			want: catalog.State{
				SortOrder: product.SortDefault,
				Status:    catalog.StatusIdle,
			},
		},
		{
			name:    "unknown version",
			data:    `{"version":2,"status":"idle"}`,
			wantErr: "unsupported version 2",
		},
		{
			name:    "missing version",
			data:    `{"status":"idle"}`,
			wantErr: "missing version",
		},
		{
			name:    "unknown status",
			data:    `{"version":1,"status":"done"}`,
			wantErr: `unknown status "done"`,
		},
		{
			name:    "unknown sort order",
			data:    `{"version":1,"sortOrder":"random"}`,
			wantErr: `unknown sort order "random"`,
		},
		{
			name:    "bad product",
			data:    `{"version":1,"rawProducts":[{"id":1}]}`,
			wantErr: "rawProducts",
		},
		{
			name:    "truncated",
			data:    `{"version":1,"rawProducts":[`,
			wantErr: "decode state",
		},
		{
			name:    "not an object",
			data:    `[]`,
			wantErr: "decode state",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeState([]byte(tt.data))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
