package catalog

import (
	"context"
	"fmt"
	"strings"
	"sync"

	domain "github.com/artfolio/exchange/internal/domain"
	"github.com/artfolio/exchange/internal/services"
)

// StubCatalog serves snapshots from memory and tracks inventory counts. Used
// for local development and as the catalog backend in the memory registry.
type StubCatalog struct {
	mu        sync.Mutex
	artworks  map[string]services.ArtworkSnapshot
	inventory map[string]int
}

var _ services.ArtworkCatalog = (*StubCatalog)(nil)

// NewStubCatalog seeds the stub with the given snapshots. Inventory defaults
// to one unit per artwork and per edition set.
func NewStubCatalog(snapshots ...services.ArtworkSnapshot) *StubCatalog {
	s := &StubCatalog{
		artworks:  make(map[string]services.ArtworkSnapshot, len(snapshots)),
		inventory: make(map[string]int),
	}
	for _, snapshot := range snapshots {
		s.artworks[snapshot.ID] = snapshot
		s.inventory[inventoryKey(snapshot.ID, nil)] = 1
		for _, es := range snapshot.EditionSets {
			s.inventory[inventoryKey(snapshot.ID, &es.ID)] = 1
		}
	}
	return s
}

// SetInventory overrides the available count for an artwork or edition set.
func (s *StubCatalog) SetInventory(artworkID string, editionSetID *string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inventory[inventoryKey(artworkID, editionSetID)] = count
}

func (s *StubCatalog) FetchArtwork(ctx context.Context, artworkID string) (services.ArtworkSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, ok := s.artworks[strings.TrimSpace(artworkID)]
	if !ok {
		return services.ArtworkSnapshot{}, domain.NewError(domain.CodeUnknownArtwork, "artwork "+artworkID+" does not exist")
	}
	return snapshot, nil
}

func (s *StubCatalog) DeductInventory(ctx context.Context, order services.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check every item before committing any so a failure leaves counts intact.
	for _, item := range order.LineItems {
		key := inventoryKey(item.ArtworkID, item.EditionSetID)
		if s.inventory[key] < item.Quantity {
			return fmt.Errorf("catalog: %d of %s available, %d requested", s.inventory[key], key, item.Quantity)
		}
	}
	for _, item := range order.LineItems {
		s.inventory[inventoryKey(item.ArtworkID, item.EditionSetID)] -= item.Quantity
	}
	return nil
}

func (s *StubCatalog) UndeductInventory(ctx context.Context, order services.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range order.LineItems {
		s.inventory[inventoryKey(item.ArtworkID, item.EditionSetID)] += item.Quantity
	}
	return nil
}

func inventoryKey(artworkID string, editionSetID *string) string {
	if editionSetID != nil && *editionSetID != "" {
		return strings.TrimSpace(artworkID) + "/" + *editionSetID
	}
	return strings.TrimSpace(artworkID)
}
