package detail

import (
	"context"
	"errors"
	"log"

	"github.com/yourorg/portal-api/internal/canon"
	"github.com/yourorg/portal-api/viacep"
	"golang.org/x/sync/errgroup"
)

// Entity types as stored in the shared side tables.
const (
	EntityCondominium = "condominium"
	EntityListing     = "listing"
)

// Property types a condominium's child listings are split by.
const (
	PropertyTypeApartment = "apartment"
	PropertyTypePlant     = "plant"
)

// ErrNotFound means the primary entity row does not exist. It is the only
// per-entity condition surfaced as a hard failure; every other source is
// optional and degrades to absent fields.
var ErrNotFound = errors.New("entity not found")

// Sources is the read surface of the externally-owned collections.
// "Not found" is a nil row with a nil error; an error means the transport
// itself failed.
type Sources interface {
	Condominium(ctx context.Context, id string) (canon.Row, error)
	Listing(ctx context.Context, id string) (canon.Row, error)
	LaunchSearch(ctx context.Context, condominiumID string) (canon.Row, error)
	ListingDetails(ctx context.Context, id string) (canon.Row, error)
	Location(ctx context.Context, entityType, id string) (canon.Row, error)
	Features(ctx context.Context, entityType, id string) (canon.Row, error)
	Media(ctx context.Context, entityType, id string) ([]canon.Row, error)
	City(ctx context.Context, id int64) (canon.Row, error)
	State(ctx context.Context, id int64) (canon.Row, error)
	ListingsByParent(ctx context.Context, parentID, propertyType string) ([]canon.Row, error)
	ListingDetailsByIDs(ctx context.Context, ids []string) ([]canon.Row, error)
	LocationsByIDs(ctx context.Context, entityType string, ids []string) ([]canon.Row, error)
	FeaturesByIDs(ctx context.Context, entityType string, ids []string) ([]canon.Row, error)
	MediaByIDs(ctx context.Context, entityType string, ids []string) ([]canon.Row, error)
}

// Enricher is the postal-code enrichment client. nil address means no
// enrichment is available for the code.
type Enricher interface {
	Lookup(ctx context.Context, postalCode string) (*viacep.Address, error)
}

type Service struct {
	Sources  Sources
	Enricher Enricher
}

// CondominiumDetail reconciles a condominium and aggregates its child
// listings. Child aggregation failures degrade to empty lists.
func (s *Service) CondominiumDetail(ctx context.Context, id string) (canon.Row, error) {
	rec, err := s.reconcile(ctx, EntityCondominium, id)
	if err != nil {
		return nil, err
	}

	apartments := []canon.Row{}
	plants := []canon.Row{}
	var g errgroup.Group
	g.Go(func() error {
		rows, err := s.Children(ctx, id, PropertyTypeApartment)
		if err != nil {
			log.Printf("[WARN] apartments aggregation failed for %s: %v", id, err)
			return nil
		}
		apartments = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.Children(ctx, id, PropertyTypePlant)
		if err != nil {
			log.Printf("[WARN] plants aggregation failed for %s: %v", id, err)
			return nil
		}
		plants = rows
		return nil
	})
	_ = g.Wait()

	rec["apartments"] = apartments
	rec["plants"] = plants
	return rec, nil
}

// ListingDetail reconciles a single listing. Listings have no denormalized
// projection and no children.
func (s *Service) ListingDetail(ctx context.Context, id string) (canon.Row, error) {
	return s.reconcile(ctx, EntityListing, id)
}
