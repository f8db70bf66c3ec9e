package models

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// ProductID accepts both numeric and string identifiers from the catalog.
type ProductID string

// UnmarshalJSON implements json.Unmarshaler
func (id *ProductID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ProductID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ProductID(strings.TrimSpace(n.String()))
	return nil
}

// Price is a catalog price. It is written as a JSON number, or null when the
// catalog has none.
type Price struct {
	decimal.NullDecimal
}

// NewPrice returns a set price.
func NewPrice(d decimal.Decimal) Price {
	return Price{decimal.NewNullDecimal(d)}
}

func (p Price) String() string {
	if !p.Valid {
		return ""
	}
	return p.Decimal.String()
}

// MarshalJSON implements json.Marshaler
func (p Price) MarshalJSON() ([]byte, error) {
	if !p.Valid {
		return []byte("null"), nil
	}
	return []byte(p.Decimal.String()), nil
}

// UnmarshalJSON accepts numbers, numeric strings and null.
func (p *Price) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*p = Price{}
		return nil
	}
	if err := p.Decimal.UnmarshalJSON(data); err != nil {
		return err
	}
	p.Valid = true
	return nil
}

// Product is a catalog record as returned to clients.
type Product struct {
	ID         ProductID       `json:"id"`
	Name       string          `json:"name"`
	Brand      string          `json:"brand"`
	Price      Price           `json:"price"`
	ImageURL   string          `json:"image_url"`
	ProductURL string          `json:"product_url"`
}

// MatchCandidate is a product returned by similarity search together with its score.
type MatchCandidate struct {
	Product
	Similarity float64 `json:"similarity"`
}
