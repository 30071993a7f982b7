package catalog

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"
)

// ErrNoMatch is returned when a product hint resolves to nothing.
var ErrNoMatch = errors.New("no matching product")

// temperatureKeywords are checked against the temperature hint in
// order, so "iced" wins over "ice".
var temperatureKeywords = []string{"hot", "iced", "ice", "blended"}

// Hint is one recognized drink request extracted from a transcript.
type Hint struct {
	Product     string
	Quantity    int
	Size        string
	Temperature string
	Modifiers   []string
}

// Selection is one resolved modifier choice. Option is nil for numeric
// range groups, where Value carries the selected amount.
type Selection struct {
	Group  *ModifierGroup
	Option *ModifierOption
	Value  float64
}

// ResolvedItem is a fully priced order line ready for the cart.
type ResolvedItem struct {
	Product    *Product
	Size       string
	Quantity   int
	UnitPrice  float64
	Selections []Selection
}

// Matcher resolves hints against a catalog. It is safe for concurrent
// use.
type Matcher struct {
	catalog   *Catalog
	normNames []string
}

// NewMatcher builds a matcher over the given catalog.
func NewMatcher(c *Catalog) *Matcher {
	m := &Matcher{
		catalog:   c,
		normNames: make([]string, len(c.products)),
	}
	for i := range c.products {
		m.normNames[i] = Normalize(c.products[i].Name)
	}
	return m
}

// Resolve matches a hint to a product, applies size, temperature and
// modifier hints against the product's modifier chain, backfills group
// defaults, and computes the unit price.
func (m *Matcher) Resolve(hint Hint) (*ResolvedItem, error) {
	product := m.matchProduct(hint.Product)
	if product == nil {
		return nil, fmt.Errorf("%w for hint %q", ErrNoMatch, hint.Product)
	}

	item := &ResolvedItem{
		Product:  product,
		Quantity: hint.Quantity,
	}
	if item.Quantity < 1 {
		item.Quantity = 1
	}

	chain := m.catalog.ChainFor(product.ID)
	if chain == nil {
		item.UnitPrice = round2(product.Cost)
		return item, nil
	}

	sel := newSelectionSet(chain)
	if hint.Size != "" {
		sel.applySize(hint.Size)
	}
	if hint.Temperature != "" {
		sel.applyTemperature(hint.Temperature)
	}
	for _, label := range hint.Modifiers {
		sel.applyModifier(label)
	}
	sel.backfillDefaults()

	item.Selections = sel.ordered()
	item.Size = sel.sizeName()
	item.UnitPrice = round2(product.Cost + sel.priceAdjustments())
	return item, nil
}

// matchProduct prefers an exact normalized name match, then the first
// product whose name contains the hint or vice versa.
func (m *Matcher) matchProduct(hint string) *Product {
	norm := Normalize(hint)
	if norm == "" {
		return nil
	}
	for i, name := range m.normNames {
		if name == norm {
			return &m.catalog.products[i]
		}
	}
	for i, name := range m.normNames {
		if strings.Contains(name, norm) || strings.Contains(norm, name) {
			return &m.catalog.products[i]
		}
	}
	return nil
}

// selectionSet accumulates per-group selections while a hint is being
// resolved.
type selectionSet struct {
	chain   *ModifierChain
	byGroup map[string][]Selection
}

func newSelectionSet(chain *ModifierChain) *selectionSet {
	return &selectionSet{
		chain:   chain,
		byGroup: make(map[string][]Selection),
	}
}

// sizeGroup finds the chain's size group by id or by name.
func (s *selectionSet) sizeGroup() *ModifierGroup {
	for i := range s.chain.Groups {
		g := &s.chain.Groups[i]
		if g.ID == "size" || strings.Contains(Normalize(g.Name), "size") {
			return g
		}
	}
	return nil
}

// applySize matches the size hint against the size group's options,
// preferring a prefix match over a substring match.
func (s *selectionSet) applySize(hint string) {
	g := s.sizeGroup()
	if g == nil {
		return
	}
	norm := Normalize(hint)
	if norm == "" {
		return
	}
	for i := range g.Options {
		if strings.HasPrefix(Normalize(g.Options[i].Name), norm) {
			s.apply(g, &g.Options[i])
			return
		}
	}
	for i := range g.Options {
		if strings.Contains(Normalize(g.Options[i].Name), norm) {
			s.apply(g, &g.Options[i])
			return
		}
	}
}

// applyTemperature scans the hint for a known temperature keyword and
// selects the first option anywhere in the chain whose name contains
// it.
func (s *selectionSet) applyTemperature(hint string) {
	norm := Normalize(hint)
	var keyword string
	for _, kw := range temperatureKeywords {
		if strings.Contains(norm, kw) {
			keyword = kw
			break
		}
	}
	if keyword == "" {
		return
	}
	for i := range s.chain.Groups {
		g := &s.chain.Groups[i]
		for j := range g.Options {
			if strings.Contains(Normalize(g.Options[j].Name), keyword) {
				s.apply(g, &g.Options[j])
				return
			}
		}
	}
}

// applyModifier selects the first option anywhere in the chain whose
// normalized name contains the label.
func (s *selectionSet) applyModifier(label string) {
	norm := Normalize(label)
	if norm == "" {
		return
	}
	for i := range s.chain.Groups {
		g := &s.chain.Groups[i]
		for j := range g.Options {
			if strings.Contains(Normalize(g.Options[j].Name), norm) {
				s.apply(g, &g.Options[j])
				return
			}
		}
	}
}

// apply records an option selection. Multi-select groups accumulate
// distinct options; single-select groups keep only the latest.
func (s *selectionSet) apply(g *ModifierGroup, opt *ModifierOption) {
	if g.MultiSelect {
		for _, existing := range s.byGroup[g.ID] {
			if existing.Option != nil && existing.Option.ID == opt.ID {
				return
			}
		}
		s.byGroup[g.ID] = append(s.byGroup[g.ID], Selection{Group: g, Option: opt})
		return
	}
	s.byGroup[g.ID] = []Selection{{Group: g, Option: opt}}
}

// backfillDefaults populates every still-empty group that declares a
// default, in chain declaration order.
func (s *selectionSet) backfillDefaults() {
	for i := range s.chain.Groups {
		g := &s.chain.Groups[i]
		if len(s.byGroup[g.ID]) > 0 {
			continue
		}
		if g.Type == "range" {
			if g.Default != nil {
				s.byGroup[g.ID] = []Selection{{Group: g, Value: *g.Default}}
			}
			continue
		}
		for j := range g.Options {
			if g.Options[j].Default {
				s.apply(g, &g.Options[j])
				break
			}
		}
	}
}

// ordered flattens the selections in chain declaration order.
func (s *selectionSet) ordered() []Selection {
	var out []Selection
	for i := range s.chain.Groups {
		out = append(out, s.byGroup[s.chain.Groups[i].ID]...)
	}
	return out
}

// sizeName returns the display name of the selected size option.
func (s *selectionSet) sizeName() string {
	g := s.sizeGroup()
	if g == nil {
		return ""
	}
	sels := s.byGroup[g.ID]
	if len(sels) == 0 || sels[0].Option == nil {
		return ""
	}
	return sels[0].Option.Name
}

// priceAdjustments sums the adjustments of every selected option.
// Range selections carry no price.
func (s *selectionSet) priceAdjustments() float64 {
	var total float64
	for _, sels := range s.byGroup {
		for _, sel := range sels {
			if sel.Option != nil {
				total += sel.Option.PriceAdjustment
			}
		}
	}
	return total
}

// Normalize lowercases s and collapses every run of characters that
// are not letters or digits into a single space.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
		} else if !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
