package product

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

var maxDiscount = decimal.NewFromInt(100)

// Product represents a catalog record. Only the identity, price and discount
// are interpreted; the full record is kept in Raw and re-emitted unchanged.
type Product struct {
	// ID is the record identity as it appeared on the wire. Integer ids keep
	// their literal text.
	ID                 string
	Price              decimal.Decimal
	DiscountPercentage decimal.Decimal
	Raw                jx.Raw
}

// Validate checks the fields the catalog relies on.
func (p Product) Validate() error {
	if p.ID == "" {
		return errors.New("missing id")
	}
	if p.Price.IsNegative() {
		return errors.Errorf("product %s: negative price %s", p.ID, p.Price)
	}
	if p.DiscountPercentage.IsNegative() || p.DiscountPercentage.GreaterThan(maxDiscount) {
		return errors.Errorf("product %s: discount %s out of range", p.ID, p.DiscountPercentage)
	}
	return nil
}

// Decode reads one product record from d. The record must be a JSON object.
func Decode(d *jx.Decoder) (Product, error) {
	raw, err := d.Raw()
	if err != nil {
		return Product{}, errors.Wrap(err, "read record")
	}
	return DecodeRaw(raw)
}

// DecodeRaw parses a product from an already captured JSON record.
func DecodeRaw(raw jx.Raw) (Product, error) {
	if raw.Type() != jx.Object {
		return Product{}, errors.Errorf("record is %s, want object", raw.Type())
	}

	p := Product{Raw: append(jx.Raw(nil), raw...)}
	var hasPrice bool
	err := jx.DecodeBytes(raw).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "id":
			id, err := decodeID(d)
			if err != nil {
				return errors.Wrap(err, "id")
			}
			p.ID = id
		case "price":
			v, err := decodeDecimal(d)
			if err != nil {
				return errors.Wrap(err, "price")
			}
			p.Price = v
			hasPrice = true
		case "discountPercentage":
			v, err := decodeDecimal(d)
			if err != nil {
				return errors.Wrap(err, "discountPercentage")
			}
			p.DiscountPercentage = v
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return Product{}, errors.Wrap(err, "decode product")
	}
	if !hasPrice {
		return Product{}, errors.Errorf("product %q: missing price", p.ID)
	}
	if err := p.Validate(); err != nil {
		return Product{}, err
	}
	return p, nil
}

// Encode writes the original record to e.
func (p Product) Encode(e *jx.Encoder) {
	if len(p.Raw) == 0 {
		// Records built in code carry no payload; emit the known fields.
		e.Obj(func(e *jx.Encoder) {
			e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
			e.Field("price", func(e *jx.Encoder) { e.Raw([]byte(p.Price.String())) })
			e.Field("discountPercentage", func(e *jx.Encoder) { e.Raw([]byte(p.DiscountPercentage.String())) })
		})
		return
	}
	e.Raw(p.Raw)
}

func decodeID(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		if !n.IsInt() {
			return "", errors.Errorf("non-integer id %s", n)
		}
		return n.String(), nil
	default:
		return "", errors.Errorf("unexpected %s", d.Next())
	}
}

// decodeDecimal accepts a JSON number or a numeric string.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	var s string
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		s = n.String()
	case jx.String:
		v, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		s = v
	default:
		return decimal.Decimal{}, errors.Errorf("unexpected %s", d.Next())
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(err, "parse %q", s)
	}
	return v, nil
}
