package memory

import (
	"encoding/json"
	"fmt"
	"github.com/ariefcatur/go-realtime-market/internal/orders"
	"io"
)

// Seed is the fixture format for STORE=memory, e.g.
//
//	{"users": [{"id": 1, "active": true}],
//	 "products": [{"id": 1, "sku": "MUG-01", "name": "Mug", "price": "12.50", "active": true, "stock": 10}]}
type Seed struct {
	Users []struct {
		ID     int64 `json:"id"`
		Active bool  `json:"active"`
	} `json:"users"`
	Products []struct {
		orders.Product
		Stock int `json:"stock"`
	} `json:"products"`
}

// LoadSeed reads a Seed document from r and puts its users and products.
func (s *Store) LoadSeed(r io.Reader) (nUsers, nProducts int, err error) {
	var sd Seed
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sd); err != nil {
		return 0, 0, fmt.Errorf("decode seed: %w", err)
	}
	for _, p := range sd.Products {
		if p.Stock < 0 {
			return 0, 0, fmt.Errorf("product %d: negative stock %d", p.ID, p.Stock)
		}
	}
	for _, u := range sd.Users {
		s.PutUser(u.ID, u.Active)
	}
	for _, p := range sd.Products {
		s.PutProduct(p.Product, p.Stock)
	}
	return len(sd.Users), len(sd.Products), nil
}
