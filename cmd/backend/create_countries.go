package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kiwix/mirrors-qa/internal/config"
	"github.com/kiwix/mirrors-qa/internal/db"
	"github.com/kiwix/mirrors-qa/internal/logging"
	"github.com/kiwix/mirrors-qa/internal/models"
	"github.com/kiwix/mirrors-qa/internal/store"
)

var createCountriesCmd = &cobra.Command{
	Use:   "create-countries <csv-file|->",
	Short: "import Country+Region rows from a CSV file",
	Args:  cobra.ExactArgs(1),
	RunE:  runCreateCountries,
}

// countryCSVColumns lists the required header in create-countries input.
var countryCSVColumns = []string{"country_iso_code", "country_name", "continent_code", "continent_name"}

func runCreateCountries(cmd *cobra.Command, args []string) error {
	var in io.Reader
	if args[0] == "-" {
		in = os.Stdin
	} else {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open csv file: %w", err)
		}
		defer f.Close()
		in = f
	}

	r := csv.NewReader(in)
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read csv header: %w", err)
	}
	cols, err := csvColumnIndex(header)
	if err != nil {
		return err
	}

	cfg := config.LoadBackend()
	database, err := db.Initialize(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	q := store.New(database.DB)
	ctx := context.Background()
	log := logging.L()

	seenRegions := map[string]bool{}
	var countRegions, countCountries int
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read csv row: %w", err)
		}

		countryCode := strings.ToLower(strings.TrimSpace(row[cols["country_iso_code"]]))
		countryName := strings.TrimSpace(row[cols["country_name"]])
		regionCode := strings.ToLower(strings.TrimSpace(row[cols["continent_code"]]))
		regionName := strings.TrimSpace(row[cols["continent_name"]])
		if countryCode == "" {
			continue
		}

		var regionCodePtr *string
		if regionCode != "" {
			if !seenRegions[regionCode] {
				if err := q.CreateRegion(ctx, models.Region{Code: regionCode, Name: regionName}); err != nil {
					return fmt.Errorf("create region %q: %w", regionCode, err)
				}
				seenRegions[regionCode] = true
				countRegions++
			}
			regionCodePtr = &regionCode
		}

		if err := q.CreateCountry(ctx, models.Country{Code: countryCode, Name: countryName, RegionCode: regionCodePtr}); err != nil {
			return fmt.Errorf("create country %q: %w", countryCode, err)
		}
		countCountries++
	}

	log.Info().Int("regions", countRegions).Int("countries", countCountries).Msg("country import complete")
	return nil
}

func csvColumnIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	for _, want := range countryCSVColumns {
		if _, ok := idx[want]; !ok {
			return nil, fmt.Errorf("csv missing required column %q", want)
		}
	}
	return idx, nil
}
