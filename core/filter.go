package core

import "strings"

// FilterOptions narrows a product list. Zero value filters nothing.
type FilterOptions struct {
	InStockOnly bool
	Category    string // exact, case-sensitive match; empty disables the stage
	SearchTerm  string // case-insensitive substring; empty disables the stage
}

// FilterProducts applies the stock, category and search stages in that order,
// each over the previous stage's output. It is pure: the input slice is never
// mutated and the same inputs always yield the same result.
func FilterProducts(products []Product, opts FilterOptions) []Product {
	out := make([]Product, 0, len(products))
	for _, p := range products {
		out = append(out, p)
	}

	if opts.InStockOnly {
		out = keep(out, func(p Product) bool { return p.InStock() })
	}
	if opts.Category != "" {
		out = keep(out, func(p Product) bool { return p.Category == opts.Category })
	}
	if term := strings.ToLower(opts.SearchTerm); term != "" {
		out = keep(out, func(p Product) bool {
			return strings.Contains(strings.ToLower(p.Title), term) ||
				strings.Contains(strings.ToLower(p.Description), term) ||
				strings.Contains(strings.ToLower(p.Category), term)
		})
	}
	return out
}

func keep(products []Product, pred func(Product) bool) []Product {
	out := products[:0]
	for _, p := range products {
		if pred(p) {
			out = append(out, p)
		}
	}
	return out
}
