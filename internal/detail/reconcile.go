package detail

import (
	"context"
	"fmt"
	"log"

	"github.com/yourorg/portal-api/internal/canon"
	"github.com/yourorg/portal-api/viacep"
	"golang.org/x/sync/errgroup"
)

// Numeric aggregate fields the launch_search projection precomputes; when
// the projection carries one it wins over the primary row.
var rangeFields = []string{
	"min_price", "max_price",
	"min_area", "max_area",
	"min_rooms", "max_rooms",
	"min_bathrooms", "max_bathrooms",
	"min_garages", "max_garages",
	"available_units",
}

// reconcile assembles the merged detail record for one entity. Only the
// primary fetch can fail the operation; the projection, location, city,
// state, media and enrichment sources each degrade to absence.
func (s *Service) reconcile(ctx context.Context, entityType, id string) (canon.Row, error) {
	var primary canon.Row
	var err error
	switch entityType {
	case EntityCondominium:
		primary, err = s.Sources.Condominium(ctx, id)
	default:
		primary, err = s.Sources.Listing(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s: %w", entityType, id, err)
	}
	if primary == nil {
		return nil, ErrNotFound
	}

	merged := cloneRow(primary)
	if _, ok := merged["id"]; !ok {
		merged["id"] = id
	}

	// The projection override step only exists for condominiums.
	var projLoc canon.Row
	if entityType == EntityCondominium {
		proj, err := s.Sources.LaunchSearch(ctx, id)
		if err != nil {
			log.Printf("[WARN] launch_search lookup failed for %s: %v", id, err)
			proj = nil
		}
		projLoc = canon.Coerce(rowVal(proj, "location"))
		for _, k := range rangeFields {
			if v, ok := presentVal(proj, k); ok {
				merged[k] = v
			}
		}
		if v, ok := firstPresent(
			func() (any, bool) { return presentVal(proj, "delivery_forecast") },
			func() (any, bool) { return presentVal(primary, "delivery_forecast") },
			func() (any, bool) { return presentVal(primary, "year_built") },
		); ok {
			merged["delivery_forecast"] = v
		}
		if v, ok := canon.String(proj, "display_address"); ok {
			merged["display_address"] = v
		}
		if f := canon.Coerce(rowVal(proj, "features")); f != nil {
			merged["features"] = f
		}
	}

	// Listings carry an extra details row; its fields fill gaps only.
	if entityType == EntityListing {
		details, err := s.Sources.ListingDetails(ctx, id)
		if err != nil {
			log.Printf("[WARN] listing details lookup failed for %s: %v", id, err)
			details = nil
		}
		mergeAbsent(merged, details)
	}

	// The features row is the fallback when neither the projection nor the
	// primary row carried one.
	if _, ok := merged["features"]; !ok {
		feat, err := s.Sources.Features(ctx, entityType, id)
		if err != nil {
			log.Printf("[WARN] features lookup failed for %s %s: %v", entityType, id, err)
			feat = nil
		}
		if len(feat) > 0 {
			merged["features"] = feat
		}
	}

	loc, err := s.Sources.Location(ctx, entityType, id)
	if err != nil {
		log.Printf("[WARN] location lookup failed for %s %s: %v", entityType, id, err)
		loc = nil
	}

	display, _ := canon.FirstString(
		func() (string, bool) { return canon.String(merged, "display_address") },
		func() (string, bool) { return canon.String(loc, "display_address") },
		func() (string, bool) { return canon.String(loc, "address") },
		func() (string, bool) {
			street, okS := canon.String(projLoc, "street")
			number, okN := canon.String(projLoc, "number")
			if okS && okN {
				return street + ", " + number, true
			}
			return "", false
		},
		func() (string, bool) { return canon.String(projLoc, "street") },
		func() (string, bool) { return canon.String(merged, "address") },
	)

	neighborhood, _ := canon.FirstString(
		func() (string, bool) { return canon.String(merged, "neighborhood") },
		func() (string, bool) { return canon.String(loc, "neighborhood") },
		func() (string, bool) { return canon.String(projLoc, "neighborhood") },
	)

	cityID, cityOK := canon.FirstNumber(
		func() (float64, bool) { return canon.Number(merged, "city_id") },
		func() (float64, bool) { return canon.Number(loc, "city_id") },
		func() (float64, bool) { return canon.Number(projLoc, "city_id") },
	)

	postal, _ := canon.FirstString(
		func() (string, bool) { return canon.String(merged, "postal_code") },
		func() (string, bool) { return canon.String(loc, "postal_code") },
		func() (string, bool) { return canon.String(projLoc, "postal_code") },
		func() (string, bool) { return canon.String(projLoc, "zip_code") },
		func() (string, bool) { return canon.String(merged, "zip_code") },
	)
	postal = canon.NormalizeCEP(postal)

	// Independent branches: city->state (gated), media, enrichment. Each
	// converts its own failure to absence so the joint wait never cancels
	// a sibling.
	var (
		cityName, stateName, stateAbbr string
		media                          []canon.Row
		enriched                       *viacep.Address
	)
	var g errgroup.Group
	if cityOK {
		g.Go(func() error {
			city, err := s.Sources.City(ctx, int64(cityID))
			if err != nil {
				log.Printf("[WARN] city lookup failed for %.0f: %v", cityID, err)
				return nil
			}
			cityName, _ = canon.String(city, "name")
			stateID, ok := canon.Number(city, "state_id")
			if !ok {
				return nil
			}
			state, err := s.Sources.State(ctx, int64(stateID))
			if err != nil {
				log.Printf("[WARN] state lookup failed for %.0f: %v", stateID, err)
				return nil
			}
			stateName, _ = canon.String(state, "name")
			stateAbbr, _ = canon.String(state, "abbreviation")
			return nil
		})
	}
	g.Go(func() error {
		rows, err := s.Sources.Media(ctx, entityType, id)
		if err != nil {
			log.Printf("[WARN] media lookup failed for %s %s: %v", entityType, id, err)
			return nil
		}
		media = rows
		return nil
	})
	if postal != "" && s.Enricher != nil {
		g.Go(func() error {
			addr, err := s.Enricher.Lookup(ctx, postal)
			if err != nil {
				log.Printf("[WARN] postal enrichment failed for %s: %v", postal, err)
				return nil
			}
			enriched = addr
			return nil
		})
	}
	_ = g.Wait()

	// Enrichment wins per field when present.
	if enriched != nil {
		if enriched.Street != "" {
			display = enriched.Street
		}
		if enriched.Neighborhood != "" {
			neighborhood = enriched.Neighborhood
		}
		if enriched.CityName != "" {
			cityName = enriched.CityName
		}
		if enriched.StateName != "" {
			stateName = enriched.StateName
		}
		if enriched.StateAbbr != "" {
			stateAbbr = enriched.StateAbbr
		}
		if enriched.PostalCode != "" {
			postal = enriched.PostalCode
		}
	}

	// A source that stores the city name in an address slot is noise.
	if display != "" && cityName != "" && canon.SameText(display, cityName) {
		display = ""
	}
	if neighborhood != "" && cityName != "" && canon.SameText(neighborhood, cityName) {
		neighborhood = ""
	}

	setString(merged, "display_address", display)
	setString(merged, "neighborhood", neighborhood)
	setString(merged, "city_name", cityName)
	setString(merged, "state_name", stateName)
	setString(merged, "state_abbreviation", stateAbbr)
	setString(merged, "postal_code", postal)
	if cityOK {
		merged["city_id"] = cityID
	}
	delete(merged, "zip_code")

	if media == nil {
		media = []canon.Row{}
	}
	merged["media"] = media
	merged["image"] = primaryImage(media)

	return merged, nil
}

func cloneRow(r canon.Row) canon.Row {
	out := make(canon.Row, len(r)+8)
	for k, v := range r {
		out[k] = v
	}
	return out
}

// rowVal reads a key from a possibly-nil row.
func rowVal(r canon.Row, key string) any {
	if r == nil {
		return nil
	}
	return r[key]
}

// presentVal reports a key that exists and is non-nil.
func presentVal(r canon.Row, key string) (any, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func firstPresent(candidates ...func() (any, bool)) (any, bool) {
	for _, c := range candidates {
		if v, ok := c(); ok {
			return v, true
		}
	}
	return nil, false
}

// setString writes a resolved field, deleting the key entirely when the
// value resolved to absent so stale source values do not leak through.
func setString(r canon.Row, key, val string) {
	if val == "" {
		delete(r, key)
		return
	}
	r[key] = val
}

// primaryImage returns the first primary media URL. Media arrives ordered
// primary-first, so only the head can qualify.
func primaryImage(media []canon.Row) string {
	for _, m := range media {
		primary, _ := canon.Bool(m, "is_primary")
		if !primary {
			break
		}
		if url, ok := canon.String(m, "url"); ok {
			return url
		}
	}
	return canon.PlaceholderImage
}
