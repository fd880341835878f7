package persist

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-catalog/internal/catalog"
	"github.com/xenking/kart-catalog/internal/domain/product"
)

// StateVersion is the version of the stored document layout.
const StateVersion = 1

// EncodeState serializes st as a version 1 document.
func EncodeState(st catalog.State) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.Obj(func(e *jx.Encoder) {
		e.Field("version", func(e *jx.Encoder) { e.Int(StateVersion) })
		e.Field("rawProducts", func(e *jx.Encoder) { encodeProducts(e, st.RawProducts) })
		e.Field("sortOrder", func(e *jx.Encoder) { e.Str(string(st.SortOrder)) })
		e.Field("derivedProducts", func(e *jx.Encoder) { encodeProducts(e, st.DerivedProducts) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(st.Status)) })
		e.Field("error", func(e *jx.Encoder) {
			if st.Error == "" {
				e.Null()
				return
			}
			e.Str(st.Error)
		})
	})
	return append([]byte(nil), e.Bytes()...)
}

func encodeProducts(e *jx.Encoder, products []product.Product) {
	e.Arr(func(e *jx.Encoder) {
		for _, p := range products {
			p.Encode(e)
		}
	})
}

// DecodeState parses a stored document. The stored derived view is skipped;
// callers rebuild it with catalog.Rehydrate.
func DecodeState(data []byte) (catalog.State, error) {
	var (
		st         catalog.State
		version    int
		hasVersion bool
	)
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "version":
			v, err := d.Int()
			if err != nil {
				return errors.Wrap(err, "version")
			}
			version, hasVersion = v, true
		case "rawProducts":
			products, err := decodeProducts(d)
			if err != nil {
				return errors.Wrap(err, "rawProducts")
			}
			st.RawProducts = products
		case "sortOrder":
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "sortOrder")
			}
			order := product.SortOrder(s)
			if !order.Valid() {
				return errors.Errorf("unknown sort order %q", s)
			}
			st.SortOrder = order
		case "status":
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "status")
			}
			status := catalog.Status(s)
			if !status.Valid() {
				return errors.Errorf("unknown status %q", s)
			}
			st.Status = status
		case "error":
			if d.Next() == jx.Null {
				return d.Null()
			}
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "error")
			}
			st.Error = s
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return catalog.State{}, errors.Wrap(err, "decode state")
	}
	if !hasVersion {
		return catalog.State{}, errors.New("decode state: missing version")
	}
	if version != StateVersion {
		return catalog.State{}, errors.Errorf("decode state: unsupported version %d", version)
	}
	if st.SortOrder == "" {
		st.SortOrder = product.SortDefault
	}
	if st.Status == "" {
		st.Status = catalog.StatusIdle
	}
	return st, nil
}

func decodeProducts(d *jx.Decoder) ([]product.Product, error) {
	out := []product.Product{}
	err := d.Arr(func(d *jx.Decoder) error {
		p, err := product.Decode(d)
		if err != nil {
			return errors.Wrapf(err, "item %d", len(out))
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
