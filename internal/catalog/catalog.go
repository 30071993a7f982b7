package catalog

import (
	"encoding/json"
	"fmt"
	"os"
)

// Product is one orderable menu entry.
type Product struct {
	ID    string  `json:"product_id"`
	Name  string  `json:"name"`
	Cost  float64 `json:"cost"`
	Image string  `json:"image_url,omitempty"`
}

// ModifierOption is one selectable choice inside a modifier group.
type ModifierOption struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	PriceAdjustment float64 `json:"price_adjustment"`
	Default         bool    `json:"default,omitempty"`
}

// ModifierGroup is a named set of options, or a numeric range when
// Type is "range".
type ModifierGroup struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Required    bool             `json:"required,omitempty"`
	MultiSelect bool             `json:"multi_select,omitempty"`
	Type        string           `json:"type,omitempty"`
	Min         float64          `json:"min,omitempty"`
	Max         float64          `json:"max,omitempty"`
	Step        float64          `json:"step,omitempty"`
	Default     *float64         `json:"default,omitempty"`
	Options     []ModifierOption `json:"options,omitempty"`
}

// ModifierChain is the ordered list of modifier groups that applies to
// one product.
type ModifierChain struct {
	ProductID string          `json:"product_id"`
	Groups    []ModifierGroup `json:"groups"`
}

// Category groups related products for display.
type Category struct {
	Name     string    `json:"name"`
	Products []Product `json:"products"`
}

// Catalog holds the loaded menu. It is read-only after Load and safe
// for concurrent use.
type Catalog struct {
	categories     []Category
	products       []Product
	byID           map[string]*Product
	chains         []ModifierChain
	chainsByID     map[string]*ModifierChain
	defaultChainID string
	defaultChain   *ModifierChain
}

// productID tolerates both numeric and string identifiers in vendor
// menu exports.
type productID string

func (p *productID) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*p = productID(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid product id %s", string(data))
	}
	*p = productID(s)
	return nil
}

type menuFile struct {
	Categories []menuCategory `json:"categories"`
}

type menuCategory struct {
	Name     string        `json:"name"`
	Products []menuProduct `json:"products"`
}

type menuProduct struct {
	ChainProductID productID `json:"chainproductid"`
	Name           string    `json:"name"`
	Cost           float64   `json:"cost"`
	Image          menuImage `json:"image"`
}

type menuImage struct {
	Default string `json:"default"`
}

type modifiersFile struct {
	DefaultChain string              `json:"default_chain"`
	Chains       []modifiersFileChain `json:"chains"`
}

type modifiersFileChain struct {
	ChainProductID productID       `json:"chainproductid"`
	Groups         []ModifierGroup `json:"groups"`
}

// Load reads the menu and modifier chain files and builds a Catalog.
// The modifiers file is optional; without it no product has a chain.
func Load(menuPath, modifiersPath string) (*Catalog, error) {
	data, err := os.ReadFile(menuPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read menu file: %w", err)
	}

	var mf menuFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("failed to parse menu file: %w", err)
	}

	c := &Catalog{
		byID:       make(map[string]*Product),
		chainsByID: make(map[string]*ModifierChain),
	}

	for _, fc := range mf.Categories {
		cat := Category{Name: fc.Name}
		for _, fp := range fc.Products {
			p := Product{
				ID:    string(fp.ChainProductID),
				Name:  fp.Name,
				Cost:  fp.Cost,
				Image: fp.Image.Default,
			}
			cat.Products = append(cat.Products, p)
			c.products = append(c.products, p)
		}
		c.categories = append(c.categories, cat)
	}

	if len(c.products) == 0 {
		return nil, fmt.Errorf("menu file %s contains no products", menuPath)
	}

	// Index after the slice is fully built so the pointers stay valid.
	for i := range c.products {
		p := &c.products[i]
		if _, ok := c.byID[p.ID]; !ok {
			c.byID[p.ID] = p
		}
	}

	data, err = os.ReadFile(modifiersPath)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("failed to read modifiers file: %w", err)
	}

	var xf modifiersFile
	if err := json.Unmarshal(data, &xf); err != nil {
		return nil, fmt.Errorf("failed to parse modifiers file: %w", err)
	}

	c.defaultChainID = xf.DefaultChain
	for _, fc := range xf.Chains {
		c.chains = append(c.chains, ModifierChain{
			ProductID: string(fc.ChainProductID),
			Groups:    fc.Groups,
		})
	}
	for i := range c.chains {
		ch := &c.chains[i]
		if _, ok := c.chainsByID[ch.ProductID]; !ok {
			c.chainsByID[ch.ProductID] = ch
		}
		if ch.ProductID == c.defaultChainID {
			c.defaultChain = ch
		}
	}

	return c, nil
}

// Categories returns the menu categories in declaration order.
func (c *Catalog) Categories() []Category {
	return c.categories
}

// Products returns every product in menu declaration order.
func (c *Catalog) Products() []Product {
	return c.products
}

// ProductByID looks up a product by its chain product id.
func (c *Catalog) ProductByID(id string) (*Product, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// Chains returns every modifier chain in file declaration order.
func (c *Catalog) Chains() []ModifierChain {
	return c.chains
}

// DefaultChainID returns the id of the fallback chain, if any.
func (c *Catalog) DefaultChainID() string {
	return c.defaultChainID
}

// ChainFor returns the modifier chain mapped to the given product id,
// falling back to the default chain. Returns nil when neither exists.
func (c *Catalog) ChainFor(productID string) *ModifierChain {
	if ch, ok := c.chainsByID[productID]; ok {
		return ch
	}
	return c.defaultChain
}
