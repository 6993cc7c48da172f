package core

import (
	"encoding/json"
	"strings"
)

// Product is the canonical catalog schema used everywhere inside the service.
// The remote catalog is inconsistent about field names (title/producto,
// price/precio); normalization happens once in UnmarshalJSON so nothing past
// the client boundary ever sees the aliases.
type Product struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Stock       int     `json:"stock"`
	Image       string  `json:"image"`
}

// productWire mirrors the remote payload including legacy alias fields.
// The id arrives either as a JSON string or a bare number depending on which
// catalog collection served the row.
type productWire struct {
	ID          json.RawMessage `json:"id"`
	Title       string          `json:"title"`
	Producto    string          `json:"producto"`
	Name        string          `json:"name"`
	Price       *float64        `json:"price"`
	Precio      *float64        `json:"precio"`
	Description string          `json:"description"`
	Descripcion string          `json:"descripcion"`
	Category    string          `json:"category"`
	Categoria   string          `json:"categoria"`
	Stock       *int            `json:"stock"`
	Image       string          `json:"image"`
	Imagen      string          `json:"imagen"`
}

func idFromRaw(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// UnmarshalJSON decodes remote payloads, preferring canonical names and
// falling back to the legacy aliases seen in older catalog rows.
func (p *Product) UnmarshalJSON(data []byte) error {
	var w productWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	p.ID = strings.TrimSpace(idFromRaw(w.ID))
	p.Title = firstNonEmpty(w.Title, w.Producto, w.Name)
	p.Description = firstNonEmpty(w.Description, w.Descripcion)
	p.Category = firstNonEmpty(w.Category, w.Categoria)
	p.Image = firstNonEmpty(w.Image, w.Imagen)

	switch {
	case w.Price != nil:
		p.Price = *w.Price
	case w.Precio != nil:
		p.Price = *w.Precio
	}
	if p.Price < 0 {
		p.Price = 0
	}

	if w.Stock != nil {
		p.Stock = *w.Stock
	}
	if p.Stock < 0 {
		p.Stock = 0
	}
	return nil
}

// InStock reports whether the product has purchasable units.
func (p Product) InStock() bool { return p.Stock > 0 }
