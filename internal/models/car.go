package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Decimal is a decimal amount as sent by the server. The API is not
// consistent about quoting, so both "450000.00" and 450000 are accepted and
// kept as text.
type Decimal string

func (d *Decimal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*d = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*d = Decimal(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decimal: %w", err)
	}
	*d = Decimal(n.String())
	return nil
}

func (d Decimal) String() string {
	return string(d)
}

type Car struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Brand       int64   `json:"brand"`
	BrandName   string  `json:"brand_name"`
	Model       string  `json:"model"`
	Year        int     `json:"year"`
	Seats       int     `json:"seats"`
	PricePerDay Decimal `json:"price_per_day"`
	Image       string  `json:"image"`
	Description string  `json:"description"`
}

type Brand struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// AllBrands is the pseudo-brand that disables brand filtering.
const AllBrands = "All"

// CarFilter narrows a car list for the search screen.
type CarFilter struct {
	Brand string
	Query string
}
