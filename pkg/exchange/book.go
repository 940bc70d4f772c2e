package exchange

import "fmt"

// Book holds the resting orders of one (token, side) pair. Orders are
// indexed by id for O(1) lookup and kept in an insertion-order list so
// enumeration always reports oldest first. The ordering is an
// observable contract, not a matching priority.
type Book struct {
	orders map[string]*Order
	ids    []string
}

func NewBook() *Book {
	return &Book{orders: make(map[string]*Order)}
}

// Insert adds a fresh order to the book.
func (b *Book) Insert(o *Order) {
	b.orders[o.ID] = o
	b.ids = append(b.ids, o.ID)
}

// Get returns the resting order with the given id.
func (b *Book) Get(id string) (*Order, error) {
	o, ok := b.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	return o, nil
}

// Has reports whether an order with the given id is resting.
func (b *Book) Has(id string) bool {
	_, ok := b.orders[id]
	return ok
}

// Remove deletes the order with the given id.
func (b *Book) Remove(id string) {
	if _, ok := b.orders[id]; !ok {
		return
	}
	delete(b.orders, id)
	for i, v := range b.ids {
		if v == id {
			b.ids = append(b.ids[:i], b.ids[i+1:]...)
			break
		}
	}
}

// IDs returns the resting order ids, oldest first. The slice is a
// copy; callers may keep it across further book mutations.
func (b *Book) IDs() []string {
	out := make([]string, len(b.ids))
	copy(out, b.ids)
	return out
}

// Len returns the number of resting orders.
func (b *Book) Len() int {
	return len(b.orders)
}
