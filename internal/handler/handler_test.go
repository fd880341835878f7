package handler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-catalog/internal/catalog"
	"github.com/xenking/kart-catalog/internal/domain/product"
	"github.com/xenking/kart-catalog/internal/pagination"
)

type catalogView struct {
	Status    string
	Error     string
	SortOrder string
	Ready     bool
	Total     int
	Window    windowView
	Grown     bool
}

type windowView struct {
	Size     int
	Total    int
	Boundary uint64
	Complete bool
	IDs      []string
}

func decodeWindow(d *jx.Decoder, v *windowView) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "size":
			v.Size, err = d.Int()
		case "total":
			v.Total, err = d.Int()
		case "boundary":
			v.Boundary, err = d.UInt64()
		case "complete":
			v.Complete, err = d.Bool()
		case "items":
			v.IDs = []string{}
			err = d.Arr(func(d *jx.Decoder) error {
				p, err := product.Decode(d)
				if err != nil {
					return err
				}
				v.IDs = append(v.IDs, p.ID)
				return nil
			})
		default:
			err = d.Skip()
		}
		return err
	})
}

func decodeView(t *testing.T, body []byte) catalogView {
	t.Helper()
	var v catalogView
	err := jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "status":
			v.Status, err = d.Str()
		case "error":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v.Error, err = d.Str()
		case "sortOrder":
			v.SortOrder, err = d.Str()
		case "ready":
			v.Ready, err = d.Bool()
		case "total":
			v.Total, err = d.Int()
		case "grown":
			v.Grown, err = d.Bool()
		case "window":
			err = decodeWindow(d, &v.Window)
		default:
			err = d.Skip()
		}
		return err
	})
	require.NoError(t, err, string(body))
	return v
}

type fixture struct {
	srv   *httptest.Server
	store *catalog.Store
	fail  atomic.Bool
}

func decimalOf(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func uintText(v uint64) string { return strconv.FormatUint(v, 10) }

func newFixture(t *testing.T, initial int) *fixture {
	t.Helper()
	f := &fixture{}
	fetch := catalog.FetcherFunc(func(context.Context) ([]product.Product, error) {
		if f.fail.Load() {
			return nil, errors.New("HTTP 503")
		}
		return []product.Product{
			{ID: "1", Price: decimalOf(10)},
			{ID: "2", Price: decimalOf(5)},
			{ID: "3", Price: decimalOf(20)},
		}, nil
	})
	store, err := catalog.Open(context.Background(), fetch)
	require.NoError(t, err)
	t.Cleanup(store.Dispose)

	pager, err := pagination.New(pagination.Config{InitialPageSize: initial, IncrementPageSize: 10})
	require.NoError(t, err)

	mux := http.NewServeMux()
	New(store, pager).Register(mux)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	f.store = store
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	require.NoError(t, err)
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	return resp.StatusCode, data
}

func TestCatalogScenario(t *testing.T) {
	f := newFixture(t, 2)

	code, body := f.do(t, http.MethodGet, "/api/catalog", "")
	require.Equal(t, http.StatusOK, code)
	v := decodeView(t, body)
	assert.Equal(t, "idle", v.Status)
	assert.True(t, v.Ready)
	assert.Empty(t, v.Window.IDs)

	code, body = f.do(t, http.MethodPost, "/api/catalog/load", "")
	require.Equal(t, http.StatusOK, code)
	v = decodeView(t, body)
	assert.Equal(t, "succeeded", v.Status)
	assert.Equal(t, 3, v.Total)
	assert.Equal(t, []string{"1", "2"}, v.Window.IDs)

	code, body = f.do(t, http.MethodPut, "/api/catalog/sort", `{"order":"ascending"}`)
	require.Equal(t, http.StatusOK, code)
	v = decodeView(t, body)
	assert.Equal(t, "ascending", v.SortOrder)
	assert.Equal(t, []string{"2", "1"}, v.Window.IDs)
	require.NotZero(t, v.Window.Boundary)

	code, body = f.do(t, http.MethodPost, "/api/catalog/boundary", `{"token":`+uintText(v.Window.Boundary)+`}`)
	require.Equal(t, http.StatusOK, code)
	grown := decodeView(t, body)
	assert.True(t, grown.Grown)
	assert.Equal(t, []string{"2", "1", "3"}, grown.Window.IDs)
	assert.True(t, grown.Window.Complete)

	// The same token again is stale.
	code, body = f.do(t, http.MethodPost, "/api/catalog/boundary", `{"token":`+uintText(v.Window.Boundary)+`}`)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, decodeView(t, body).Grown)
}

func TestLoadFailureAndReset(t *testing.T) {
	f := newFixture(t, 20)
	f.fail.Store(true)

	_, body := f.do(t, http.MethodPost, "/api/catalog/load", "")
	v := decodeView(t, body)
	assert.Equal(t, "failed", v.Status)
	assert.Equal(t, "HTTP 503", v.Error)

	_, body = f.do(t, http.MethodPost, "/api/catalog/reset", "")
	v = decodeView(t, body)
	assert.Equal(t, "idle", v.Status)
	assert.Empty(t, v.Error)

	f.fail.Store(false)
	_, body = f.do(t, http.MethodPost, "/api/catalog/load", "")
	assert.Equal(t, "succeeded", decodeView(t, body).Status)
}

func TestSetSort_BadRequest(t *testing.T) {
	f := newFixture(t, 20)

	for _, body := range []string{``, `{"order":"random"}`, `{"order":1}`, `[]`} {
		code, _ := f.do(t, http.MethodPut, "/api/catalog/sort", body)
		assert.Equal(t, http.StatusBadRequest, code, body)
	}
	assert.Equal(t, product.SortDefault, f.store.Snapshot().SortOrder)
}

func TestBoundary_BadRequest(t *testing.T) {
	f := newFixture(t, 20)

	code, _ := f.do(t, http.MethodPost, "/api/catalog/boundary", `{"token":-1}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := f.do(t, http.MethodPost, "/api/catalog/boundary", `{"token":0}`)
	assert.Equal(t, http.StatusOK, code)
	assert.False(t, decodeView(t, body).Grown)
}

func TestGetProduct(t *testing.T) {
	f := newFixture(t, 20)

	code, _ := f.do(t, http.MethodGet, "/api/product/2", "")
	assert.Equal(t, http.StatusNotFound, code)

	f.do(t, http.MethodPost, "/api/catalog/load", "")
	code, body := f.do(t, http.MethodGet, "/api/product/2", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"id":"2","price":5,"discountPercentage":0}`, string(body))
}

func TestCommandsAfterDispose(t *testing.T) {
	f := newFixture(t, 20)
	f.store.Dispose()

	code, _ := f.do(t, http.MethodPost, "/api/catalog/load", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	code, _ = f.do(t, http.MethodPut, "/api/catalog/sort", `{"order":"descending"}`)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestRoutesRejectWrongMethod(t *testing.T) {
	f := newFixture(t, 20)

	req, err := http.NewRequest(http.MethodDelete, f.srv.URL+"/api/catalog", nil)
	require.NoError(t, err)
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
