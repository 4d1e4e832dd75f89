// Package reconciler implements the mirror reconciler (C2): it diffs a
// freshly crawled mirror list against the registry store and brings the
// store in line, inside a single transaction.
package reconciler

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"

	"github.com/kiwix/mirrors-qa/internal/crawler"
	apperrors "github.com/kiwix/mirrors-qa/internal/errors"
	"github.com/kiwix/mirrors-qa/internal/models"
	"github.com/kiwix/mirrors-qa/internal/store"
)

// Result reports how many mirrors were added (including re-enabled) versus
// disabled in a single reconciliation pass.
type Result struct {
	Added    int
	Disabled int
}

// Reconcile runs the 5-step diff against db inside a single transaction.
// fresh must be non-empty; an empty crawl never disables the whole registry.
func Reconcile(ctx context.Context, db *sql.DB, fresh []crawler.CrawledMirror, log zerolog.Logger) (Result, error) {
	if len(fresh) == 0 {
		return Result{}, apperrors.NewEmptyInput("mirror list")
	}

	var result Result
	err := store.WithTx(ctx, db, func(q *store.Queries) error {
		freshByID := make(map[string]crawler.CrawledMirror, len(fresh))
		for _, m := range fresh {
			freshByID[m.ID] = m
		}

		current, err := q.ListAllMirrors(ctx)
		if err != nil {
			return err
		}
		dbByID := make(map[string]models.Mirror, len(current))
		for _, m := range current {
			dbByID[m.ID] = m
		}

		for id, crawled := range freshByID {
			if _, exists := dbByID[id]; exists {
				continue
			}
			if err := insertMirror(ctx, q, crawled, log); err != nil {
				return err
			}
			result.Added++
		}

		for id := range dbByID {
			if _, exists := freshByID[id]; exists {
				continue
			}
			if err := q.SetMirrorEnabled(ctx, id, false); err != nil {
				return err
			}
			result.Disabled++
		}

		for id, crawled := range freshByID {
			existing, exists := dbByID[id]
			if !exists {
				continue
			}
			if err := attachCountry(ctx, q, id, crawled, log); err != nil {
				return err
			}
			if !existing.Enabled {
				if err := q.SetMirrorEnabled(ctx, id, true); err != nil {
					return err
				}
				result.Added++
			}
		}

		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

func insertMirror(ctx context.Context, q *store.Queries, crawled crawler.CrawledMirror, log zerolog.Logger) error {
	code := crawled.CountryCode
	mirror := models.Mirror{
		ID:      crawled.ID,
		BaseURL: crawled.BaseURL,
		Enabled: true,
	}
	if code != "" {
		mirror.CountryCode = &code
	}
	if _, err := q.GetOrInsertMirror(ctx, mirror); err != nil {
		return err
	}
	return attachCountry(ctx, q, crawled.ID, crawled, log)
}

func attachCountry(ctx context.Context, q *store.Queries, mirrorID string, crawled crawler.CrawledMirror, log zerolog.Logger) error {
	if crawled.CountryCode == "" {
		return nil
	}
	country, err := q.GetCountry(ctx, crawled.CountryCode)
	if apperrors.IsType(err, apperrors.NotFoundError) {
		country = &models.Country{Code: crawled.CountryCode, Name: crawled.CountryName}
		if err := q.CreateCountry(ctx, *country); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if err := q.SetMirrorCountry(ctx, mirrorID, &crawled.CountryCode); err != nil {
		return err
	}
	if country.RegionCode != nil {
		if err := q.SetMirrorRegion(ctx, mirrorID, country.RegionCode); err != nil {
			return err
		}
	}
	log.Debug().Str("mirror_id", mirrorID).Str("country_code", crawled.CountryCode).Msg("attached mirror country")
	return nil
}
