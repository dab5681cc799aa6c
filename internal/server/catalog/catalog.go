// Package catalog defines the immutable price list payments are validated
// against. The catalog is read-only at runtime: a charge is valid only when
// its amount equals the catalog amount for its package exactly.
package catalog

import (
	"time"

	"github.com/livebell/engine/internal/common"
)

// Package describes one purchasable package. Point packages credit Points to
// the account balance; premium packages grant an entitlement window of
// Duration starting at the payment's completion time.
type Package struct {
	ID       string
	Title    string
	Amount   int64
	Points   int64
	Duration time.Duration
}

// Premium reports whether the package grants an entitlement window rather
// than points.
func (p Package) Premium() bool {
	return p.Duration > 0
}

// Catalog maps package identifiers to their definitions.
type Catalog struct {
	packages map[string]Package
}

func New(packages []Package) *Catalog {
	m := make(map[string]Package, len(packages))
	for _, p := range packages {
		m[p.ID] = p
	}
	return &Catalog{packages: m}
}

// Lookup returns the package for id or common.ErrUnknownPackage.
func (c *Catalog) Lookup(id string) (Package, error) {
	p, ok := c.packages[id]
	if !ok {
		return Package{}, common.ErrUnknownPackage
	}
	return p, nil
}

const day = 24 * time.Hour

// Default returns the production price list.
func Default() *Catalog {
	return New([]Package{
		{ID: "points_50", Title: "50 Points", Amount: 50, Points: 50},
		{ID: "points_100", Title: "100 Points", Amount: 90, Points: 100},
		{ID: "points_500", Title: "500 Points", Amount: 400, Points: 500},
		{ID: "premium_7d", Title: "7 Days Premium", Amount: 150, Duration: 7 * day},
		{ID: "premium_30d", Title: "30 Days Premium", Amount: 500, Duration: 30 * day},
		{ID: "premium_6m", Title: "6 Months Premium", Amount: 2500, Duration: 180 * day},
		{ID: "premium_1y", Title: "1 Year Premium", Amount: 4500, Duration: 365 * day},
	})
}
