package credits

import "fmt"

// Pack is one purchasable bundle of like credits.
type Pack struct {
	ProductID  string
	Name       string
	Credits    int64
	PriceCents int64
}

// Catalog is the closed table of purchasable packs. Lookups fail closed:
// an unknown product id is rejected, never defaulted.
type Catalog struct {
	packs map[string]Pack
}

// NewCatalog validates the pack table at startup.
func NewCatalog(packs []Pack) (Catalog, error) {
	if len(packs) == 0 {
		return Catalog{}, fmt.Errorf("%w: no packs configured", ErrInvalidCatalog)
	}
	indexed := make(map[string]Pack, len(packs))
	for _, pack := range packs {
		productID, err := NewProductID(pack.ProductID)
		if err != nil {
			return Catalog{}, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
		}
		if _, exists := indexed[productID.String()]; exists {
			return Catalog{}, fmt.Errorf("%w: duplicate product id %q", ErrInvalidCatalog, pack.ProductID)
		}
		if pack.Credits <= 0 {
			return Catalog{}, fmt.Errorf("%w: pack %q has non-positive credits", ErrInvalidCatalog, pack.ProductID)
		}
		if pack.PriceCents <= 0 {
			return Catalog{}, fmt.Errorf("%w: pack %q has non-positive price", ErrInvalidCatalog, pack.ProductID)
		}
		indexed[productID.String()] = pack
	}
	return Catalog{packs: indexed}, nil
}

// Resolve maps a product id to its pack.
func (catalog Catalog) Resolve(productID ProductID) (Pack, error) {
	pack, found := catalog.packs[productID.String()]
	if !found {
		return Pack{}, fmt.Errorf("%w: %s", ErrUnknownProduct, productID)
	}
	return pack, nil
}

// Packs returns the configured packs for listing endpoints.
func (catalog Catalog) Packs() []Pack {
	packs := make([]Pack, 0, len(catalog.packs))
	for _, pack := range catalog.packs {
		packs = append(packs, pack)
	}
	return packs
}
