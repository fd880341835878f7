// Package handler exposes the catalog store and its visible window over
// HTTP/JSON.
package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-catalog/internal/catalog"
	"github.com/xenking/kart-catalog/internal/domain/product"
	"github.com/xenking/kart-catalog/internal/pagination"
)

const maxBodySize = 1 << 20

// Catalog is the store surface the handler drives.
type Catalog interface {
	Snapshot() catalog.Snapshot
	Load(ctx context.Context) (catalog.Snapshot, error)
	ResetStatus() error
	SetSortOrder(order product.SortOrder) error
	Lookup(id string) (product.Product, error)
}

// Pager is the pagination surface the handler drives.
type Pager interface {
	Sync(snap catalog.Snapshot)
	Window() pagination.Window
	NotifyBoundaryVisible(token pagination.Token) bool
}

var (
	_ Catalog = (*catalog.Store)(nil)
	_ Pager   = (*pagination.Controller)(nil)
)

// Handler serves the catalog API.
type Handler struct {
	catalog Catalog
	pager   Pager
}

// New creates a Handler.
func New(c Catalog, p Pager) *Handler {
	return &Handler{catalog: c, pager: p}
}

// Register adds the API routes to mux under /api.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/catalog", h.getCatalog)
	mux.HandleFunc("POST /api/catalog/load", h.load)
	mux.HandleFunc("POST /api/catalog/reset", h.reset)
	mux.HandleFunc("PUT /api/catalog/sort", h.setSort)
	mux.HandleFunc("POST /api/catalog/boundary", h.boundary)
	mux.HandleFunc("GET /api/product/{id}", h.getProduct)
}

func (h *Handler) getCatalog(w http.ResponseWriter, _ *http.Request) {
	h.writeCatalog(w, h.catalog.Snapshot())
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) {
	snap, err := h.catalog.Load(r.Context())
	if err != nil {
		h.writeCommandError(w, r, err)
		return
	}
	h.writeCatalog(w, snap)
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.ResetStatus(); err != nil {
		h.writeCommandError(w, r, err)
		return
	}
	h.writeCatalog(w, h.catalog.Snapshot())
}

func (h *Handler) setSort(w http.ResponseWriter, r *http.Request) {
	var raw string
	err := decodeBody(w, r, func(d *jx.Decoder, key []byte) error {
		if string(key) != "order" {
			return d.Skip()
		}
		v, err := d.Str()
		raw = v
		return err
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	order, err := product.ParseSortOrder(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.catalog.SetSortOrder(order); err != nil {
		h.writeCommandError(w, r, err)
		return
	}
	h.writeCatalog(w, h.catalog.Snapshot())
}

func (h *Handler) boundary(w http.ResponseWriter, r *http.Request) {
	var token uint64
	err := decodeBody(w, r, func(d *jx.Decoder, key []byte) error {
		if string(key) != "token" {
			return d.Skip()
		}
		v, err := d.UInt64()
		token = v
		return err
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.pager.Sync(h.catalog.Snapshot())
	grown := h.pager.NotifyBoundaryVisible(pagination.Token(token))
	win := h.pager.Window()

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.Obj(func(e *jx.Encoder) {
		e.Field("grown", func(e *jx.Encoder) { e.Bool(grown) })
		e.Field("window", func(e *jx.Encoder) { encodeWindow(e, win) })
	})
	writeJSON(w, http.StatusOK, e.Bytes())
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.Lookup(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		h.writeCommandError(w, r, err)
		return
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	p.Encode(e)
	writeJSON(w, http.StatusOK, e.Bytes())
}

// writeCatalog renders snap together with the window synced to it.
func (h *Handler) writeCatalog(w http.ResponseWriter, snap catalog.Snapshot) {
	h.pager.Sync(snap)
	win := h.pager.Window()

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.Obj(func(e *jx.Encoder) {
		e.Field("status", func(e *jx.Encoder) { e.Str(string(snap.Status)) })
		e.Field("error", func(e *jx.Encoder) {
			if snap.Error == "" {
				e.Null()
				return
			}
			e.Str(snap.Error)
		})
		e.Field("sortOrder", func(e *jx.Encoder) { e.Str(string(snap.SortOrder)) })
		e.Field("ready", func(e *jx.Encoder) { e.Bool(snap.Ready) })
		e.Field("revision", func(e *jx.Encoder) { e.UInt64(snap.Revision) })
		e.Field("version", func(e *jx.Encoder) { e.UInt64(snap.Version) })
		e.Field("total", func(e *jx.Encoder) { e.Int(len(snap.DerivedProducts)) })
		e.Field("window", func(e *jx.Encoder) { encodeWindow(e, win) })
	})
	writeJSON(w, http.StatusOK, e.Bytes())
}

func encodeWindow(e *jx.Encoder, win pagination.Window) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("size", func(e *jx.Encoder) { e.Int(win.Size) })
		e.Field("total", func(e *jx.Encoder) { e.Int(win.Total) })
		e.Field("boundary", func(e *jx.Encoder) { e.UInt64(uint64(win.Boundary)) })
		e.Field("revision", func(e *jx.Encoder) { e.UInt64(win.Revision) })
		e.Field("complete", func(e *jx.Encoder) { e.Bool(win.Complete()) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, p := range win.Items {
					p.Encode(e)
				}
			})
		})
	})
}

func (h *Handler) writeCommandError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, product.ErrInvalidSortOrder):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, catalog.ErrNotReady), errors.Is(err, catalog.ErrDisposed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// The client went away while waiting for the shared fetch.
		zctx.From(r.Context()).Debug("Request abandoned", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "request canceled")
	default:
		zctx.From(r.Context()).Error("Catalog command", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeBody reads a JSON object body and hands each field to fn.
func decodeBody(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder, key []byte) error) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return errors.Wrap(err, "read body")
	}
	if err := jx.DecodeBytes(data).ObjBytes(fn); err != nil {
		return errors.Wrap(err, "decode body")
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.Obj(func(e *jx.Encoder) {
		e.Field("error", func(e *jx.Encoder) { e.Str(msg) })
	})
	writeJSON(w, status, e.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
