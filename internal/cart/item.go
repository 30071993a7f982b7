package cart

import (
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/sbenstewart/dutch-bros-hackathon/internal/catalog"
)

// ChildLine is one modifier rendered under a cart item.
type ChildLine struct {
	Name      string  `json:"name"`
	GroupID   string  `json:"modifier_group"`
	UnitPrice float64 `json:"unit_price"`
}

// Item is one cart line.
type Item struct {
	ID        string      `json:"item_id"`
	ProductID string      `json:"product_id"`
	Name      string      `json:"name"`
	Size      string      `json:"size,omitempty"`
	Quantity  int         `json:"quantity"`
	UnitPrice float64     `json:"unit_price"`
	Children  []ChildLine `json:"child_items,omitempty"`

	signature string
}

// newItem converts a resolved hint into a cart line. Numeric range
// selections shape the signature but produce no child line.
func newItem(resolved *catalog.ResolvedItem) *Item {
	item := &Item{
		ID:        uuid.New().String(),
		ProductID: resolved.Product.ID,
		Name:      resolved.Product.Name,
		Size:      resolved.Size,
		Quantity:  resolved.Quantity,
		UnitPrice: resolved.UnitPrice,
		signature: signature(resolved),
	}
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	for _, sel := range resolved.Selections {
		if sel.Option == nil {
			continue
		}
		item.Children = append(item.Children, ChildLine{
			Name:      sel.Option.Name,
			GroupID:   sel.Group.ID,
			UnitPrice: sel.Option.PriceAdjustment,
		})
	}
	return item
}

// signature builds the canonical merge key for a resolved hint:
// product id, normalized size, and the sorted group:selection pairs.
func signature(resolved *catalog.ResolvedItem) string {
	parts := make([]string, 0, len(resolved.Selections))
	for _, sel := range resolved.Selections {
		group := catalog.Normalize(sel.Group.ID)
		if sel.Option != nil {
			parts = append(parts, group+":"+catalog.Normalize(sel.Option.Name))
		} else {
			parts = append(parts, group+":"+strconv.FormatFloat(sel.Value, 'f', -1, 64))
		}
	}
	sort.Strings(parts)
	return resolved.Product.ID + "|" + catalog.Normalize(resolved.Size) + "|" + strings.Join(parts, ",")
}

func (i *Item) clone() *Item {
	out := *i
	out.Children = append([]ChildLine(nil), i.Children...)
	return &out
}
