package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Product is one catalog entry: the reference weight and price for a SKU,
// plus the expected stock level when the catalog carries one.
type Product struct {
	SKU         string
	WeightGrams float64
	Price       float64
	Quantity    int
}

// Catalog is the read-only SKU reference consumed by the weight, barcode and
// inventory rules. A nil *Catalog is valid and means "no catalog loaded".
type Catalog struct {
	products map[string]Product
}

// Load reads a CSV catalog. The header row names the columns; sku and
// weight_grams are required, price and quantity optional.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads catalog rows from r.
func Parse(r io.Reader) (*Catalog, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read catalog header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	skuCol, ok := cols["sku"]
	if !ok {
		return nil, fmt.Errorf("catalog header missing sku column")
	}
	weightCol, ok := cols["weight_grams"]
	if !ok {
		weightCol, ok = cols["weight"]
	}
	if !ok {
		return nil, fmt.Errorf("catalog header missing weight column")
	}
	priceCol, hasPrice := cols["price"]
	qtyCol, hasQty := cols["quantity"]

	products := make(map[string]Product)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("catalog line %d: %w", line, err)
		}
		p := Product{SKU: strings.TrimSpace(rec[skuCol])}
		if p.SKU == "" {
			continue
		}
		if p.WeightGrams, err = strconv.ParseFloat(strings.TrimSpace(rec[weightCol]), 64); err != nil {
			return nil, fmt.Errorf("catalog line %d: bad weight: %w", line, err)
		}
		if hasPrice && priceCol < len(rec) {
			p.Price, _ = strconv.ParseFloat(strings.TrimSpace(rec[priceCol]), 64)
		}
		if hasQty && qtyCol < len(rec) {
			p.Quantity, _ = strconv.Atoi(strings.TrimSpace(rec[qtyCol]))
		}
		products[p.SKU] = p
	}
	return &Catalog{products: products}, nil
}

// Lookup returns the catalog entry for a SKU.
func (c *Catalog) Lookup(sku string) (Product, bool) {
	if c == nil {
		return Product{}, false
	}
	p, ok := c.products[sku]
	return p, ok
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.products)
}

// MatchByWeight returns the catalog product whose expected weight is closest
// to grams and strictly within tolerance, skipping excludeSKU. Used by the
// barcode-switching rule to find which item the scale actually saw.
func (c *Catalog) MatchByWeight(grams, tolerance float64, excludeSKU string) (Product, bool) {
	if c == nil {
		return Product{}, false
	}
	var best Product
	bestDiff := math.Inf(1)
	for _, p := range c.products {
		if p.SKU == excludeSKU {
			continue
		}
		diff := math.Abs(p.WeightGrams - grams)
		if diff < tolerance && diff < bestDiff {
			best, bestDiff = p, diff
		}
	}
	return best, !math.IsInf(bestDiff, 1)
}
