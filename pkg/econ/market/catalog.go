package market

import (
	"fmt"
	"sort"

	"github.com/minsu-cho/agorasim/pkg/econ/ledger"
)

// ItemKind distinguishes consumer goods from firm shares. Goods enter the CPI
// basket; shares do not.
type ItemKind int8

const (
	Good ItemKind = iota
	Share
)

func (k ItemKind) String() string {
	switch k {
	case Good:
		return "good"
	case Share:
		return "share"
	default:
		return fmt.Sprintf("item_kind(%d)", int8(k))
	}
}

// Item describes one tradable item: its kind, the fixed weight it carries in
// the CPI basket (goods only), the floor corrupted prices are clamped to, and
// the reference price markets open at.
type Item struct {
	ID           ledger.ItemID
	Kind         ItemKind
	BasketWeight float64
	PriceFloor   float64
	InitialPrice float64
}

// Catalog is the registry of tradable items. Registered once at world build;
// share items are added as firms are created.
type Catalog struct {
	items map[ledger.ItemID]*Item
	order []ledger.ItemID
}

func NewCatalog() *Catalog {
	return &Catalog{items: make(map[ledger.ItemID]*Item)}
}

// Register adds an item. Duplicate ids are a configuration error.
func (c *Catalog) Register(it *Item) error {
	if it == nil {
		return fmt.Errorf("cannot register nil item")
	}
	if it.ID == "" {
		return fmt.Errorf("item id must be non-empty")
	}
	if _, exists := c.items[it.ID]; exists {
		return fmt.Errorf("item %s already registered", it.ID)
	}
	if it.PriceFloor <= 0 {
		return fmt.Errorf("item %s: price floor must be positive, got %g", it.ID, it.PriceFloor)
	}
	c.items[it.ID] = it
	c.order = append(c.order, it.ID)
	return nil
}

// Get returns the item, or nil if unknown.
func (c *Catalog) Get(id ledger.ItemID) *Item { return c.items[id] }

// Has reports whether the item is registered.
func (c *Catalog) Has(id ledger.ItemID) bool {
	_, ok := c.items[id]
	return ok
}

// List returns all items in registration order.
func (c *Catalog) List() []*Item {
	out := make([]*Item, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id])
	}
	return out
}

// Goods returns CPI basket items sorted by id. An empty basket returns nil.
func (c *Catalog) Goods() []*Item {
	var goods []*Item
	total := 0.0
	for _, id := range c.order {
		it := c.items[id]
		if it.Kind == Good && it.BasketWeight > 0 {
			goods = append(goods, it)
			total += it.BasketWeight
		}
	}
	if total == 0 {
		return nil
	}
	sort.Slice(goods, func(i, j int) bool { return goods[i].ID < goods[j].ID })
	return goods
}

// BasketWeightTotal sums raw basket weights across goods.
func (c *Catalog) BasketWeightTotal() float64 {
	total := 0.0
	for _, it := range c.items {
		if it.Kind == Good {
			total += it.BasketWeight
		}
	}
	return total
}

// DefaultGoods returns the stock consumer-good catalog used by the runner and
// tests: a staple, a manufactured good, and a service proxy.
func DefaultGoods() []*Item {
	return []*Item{
		{ID: "grain", Kind: Good, BasketWeight: 0.5, PriceFloor: 0.01, InitialPrice: 2.0},
		{ID: "goods", Kind: Good, BasketWeight: 0.3, PriceFloor: 0.01, InitialPrice: 5.0},
		{ID: "services", Kind: Good, BasketWeight: 0.2, PriceFloor: 0.01, InitialPrice: 3.0},
	}
}

// ShareItem builds the share item for a firm's equity market.
func ShareItem(firmID ledger.PartyID) *Item {
	return &Item{
		ID:           ledger.ItemID(fmt.Sprintf("shares/%d", firmID)),
		Kind:         Share,
		PriceFloor:   0.01,
		InitialPrice: 10.0,
	}
}
