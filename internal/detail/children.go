package detail

import (
	"context"
	"fmt"
	"log"

	"github.com/yourorg/portal-api/internal/canon"
	"golang.org/x/sync/errgroup"
)

// Children fetches the listings under a condominium for one property type
// and joins in their details, location, features and media, producing
// display-ready summaries. An empty listing set short-circuits before any
// side-table fetch. The returned order is the fetch order.
func (s *Service) Children(ctx context.Context, parentID, propertyType string) ([]canon.Row, error) {
	listings, err := s.Sources.ListingsByParent(ctx, parentID, propertyType)
	if err != nil {
		return nil, fmt.Errorf("fetch %s listings of %s: %w", propertyType, parentID, err)
	}
	if len(listings) == 0 {
		return []canon.Row{}, nil
	}

	ids := make([]string, 0, len(listings))
	for _, l := range listings {
		if id, ok := canon.String(l, "id"); ok {
			ids = append(ids, id)
		}
	}

	// The four side tables are independent; each branch degrades to "no
	// rows" on its own failure.
	var details, locations, features, media []canon.Row
	var g errgroup.Group
	g.Go(func() error {
		rows, err := s.Sources.ListingDetailsByIDs(ctx, ids)
		if err != nil {
			log.Printf("[WARN] listing details batch failed for %s: %v", parentID, err)
			return nil
		}
		details = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.Sources.LocationsByIDs(ctx, EntityListing, ids)
		if err != nil {
			log.Printf("[WARN] listing locations batch failed for %s: %v", parentID, err)
			return nil
		}
		locations = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.Sources.FeaturesByIDs(ctx, EntityListing, ids)
		if err != nil {
			log.Printf("[WARN] listing features batch failed for %s: %v", parentID, err)
			return nil
		}
		features = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.Sources.MediaByIDs(ctx, EntityListing, ids)
		if err != nil {
			log.Printf("[WARN] listing media batch failed for %s: %v", parentID, err)
			return nil
		}
		media = rows
		return nil
	})
	_ = g.Wait()

	detailsBy := keyRows(details, "listing_id")
	locationsBy := keyRows(locations, "entity_id")
	featuresBy := keyRows(features, "entity_id")
	mediaBy := groupRows(media, "entity_id")

	out := make([]canon.Row, 0, len(listings))
	for _, listing := range listings {
		summary := cloneRow(listing)
		id, _ := canon.String(listing, "id")
		mergeAbsent(summary, detailsBy[id])
		mergeAbsent(summary, locationsBy[id])
		mergeAbsent(summary, featuresBy[id])

		items := mediaBy[id]
		if items == nil {
			items = []canon.Row{}
		}
		summary["media"] = items

		tt, _ := canon.String(summary, "transaction_type")
		forRent := tt == "rent"
		priceKey := "price"
		if forRent {
			priceKey = "rental_price"
		}
		price := canon.PriceOnRequest
		if v, ok := canon.Number(summary, priceKey); ok {
			price = canon.FormatBRL(v)
		}
		summary["price"] = price
		if v, ok := canon.Number(summary, "iptu"); ok {
			summary["iptu"] = canon.FormatBRL(v)
		} else {
			delete(summary, "iptu")
		}
		summary["image"] = primaryImage(items)
		summary["forRent"] = forRent

		out = append(out, summary)
	}
	return out, nil
}

// keyRows maps rows by an id field, last write wins (at most one row per
// listing exists in each side table).
func keyRows(rows []canon.Row, keyField string) map[string]canon.Row {
	out := make(map[string]canon.Row, len(rows))
	for _, r := range rows {
		if id, ok := canon.String(r, keyField); ok {
			out[id] = r
		}
	}
	return out
}

func groupRows(rows []canon.Row, keyField string) map[string][]canon.Row {
	out := make(map[string][]canon.Row)
	for _, r := range rows {
		if id, ok := canon.String(r, keyField); ok {
			out[id] = append(out[id], r)
		}
	}
	return out
}

// mergeAbsent is a shallow merge where the destination's own keys win.
func mergeAbsent(dst, src canon.Row) {
	for k, v := range src {
		if _, exists := dst[k]; !exists {
			dst[k] = v
		}
	}
}
