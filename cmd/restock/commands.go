package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/andresuchdata/autorestock/internal/app"
	"github.com/andresuchdata/autorestock/internal/domain"
	"github.com/andresuchdata/autorestock/internal/drive"
	"github.com/andresuchdata/autorestock/internal/pipeline"
	"github.com/andresuchdata/autorestock/internal/service"
	"github.com/andresuchdata/autorestock/pkg/logger"
	"github.com/urfave/cli/v2"
)

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func coverageFlag(c *cli.Context) *float64 {
	if !c.IsSet("coverage") {
		return nil
	}
	v := c.Float64("coverage")
	return &v
}

func restockService(c *cli.Context) (*service.RestockService, error) {
	e := envFrom(c)
	return app.NewRestockService(c.Context, e.cfg, e.stores, e.runs)
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the restock decision over one or more sectors",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "sector", Usage: "Sector to run, repeatable; defaults to RESTOCK_SECTORS"},
			newDateFlag(),
			&cli.Float64Flag{Name: "coverage", Usage: "Coverage days, defaults to the order schedule"},
		},
		Action: func(c *cli.Context) error {
			date, err := parseDate(c)
			if err != nil {
				return err
			}
			svc, err := restockService(c)
			if err != nil {
				return err
			}

			sectors := c.StringSlice("sector")
			if len(sectors) == 0 && len(svc.Sectors()) == 0 {
				return errors.New("no sector given and RESTOCK_SECTORS is empty")
			}
			if len(sectors) == 0 {
				runs, err := svc.RunAll(c.Context, date, coverageFlag(c))
				if perr := printJSON(runs); perr != nil {
					return perr
				}
				return err
			}

			var (
				runs    []*pipeline.RestockRun
				lastErr error
			)
			for _, sector := range sectors {
				run, err := svc.RunSector(c.Context, sector, date, coverageFlag(c))
				if err != nil {
					logger.Log.Error().Err(err).Str("sector", sector).Msg("sector run failed")
					lastErr = err
				}
				if run != nil {
					runs = append(runs, run)
				}
			}
			if err := printJSON(runs); err != nil {
				return err
			}
			return lastErr
		},
	}
}

func explainCommand() *cli.Command {
	return &cli.Command{
		Name:  "explain",
		Usage: "Show the reasoning behind the decision on one product",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "sector", Usage: "Sector of the run, defaults to the product sector"},
			&cli.IntFlag{Name: "cod", Required: true},
			&cli.IntFlag{Name: "var", Value: 1},
			newDateFlag(),
			&cli.Float64Flag{Name: "coverage", Usage: "Coverage days, defaults to the order schedule"},
		},
		Action: func(c *cli.Context) error {
			date, err := parseDate(c)
			if err != nil {
				return err
			}
			svc, err := restockService(c)
			if err != nil {
				return err
			}
			key := domain.ProductKey{Code: c.Int("cod"), Variant: c.Int("var")}
			trace, err := svc.Explain(c.Context, c.String("sector"), date, coverageFlag(c), key)
			if err != nil {
				return err
			}
			return printJSON(trace)
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export the orders of a recorded run again",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "sector", Required: true},
			newDateFlag(),
		},
		Action: func(c *cli.Context) error {
			e := envFrom(c)
			date, err := parseDate(c)
			if err != nil {
				return err
			}
			run, err := e.runs.GetRunByDate(c.Context, c.String("sector"), date)
			if err != nil {
				return err
			}
			if run == nil || run.Results == nil || run.Results.Decisions == nil {
				return fmt.Errorf("no recorded decisions for %s on %s", c.String("sector"), date.Format(dateLayout))
			}

			exporter, err := app.Exporter(c.Context, e.cfg)
			if err != nil {
				return err
			}
			uri, err := exporter.Export(c.Context, run.Results.Decisions)
			if err != nil {
				return err
			}
			fmt.Println(uri)
			return nil
		},
	}
}

func sheetCommand(name, usage string, kind drive.SheetKind) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<file.csv|file.xlsx>",
		Flags: []cli.Flag{
			newDateFlag(),
		},
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return errors.New("a csv or xlsx file is required")
			}
			date, err := parseDate(c)
			if err != nil {
				return err
			}

			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			records, err := drive.ReadSheet(filepath.Base(path), f)
			if err != nil {
				return err
			}

			ingest := drive.NewIngestService(nil, service.NewInventoryService(envFrom(c).stores.Store))
			report, err := ingest.ApplySheet(c.Context, records, kind, date)
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}
}

func verifyCommand() *cli.Command {
	return sheetCommand("verify", "Apply a stock count sheet (cod, v, stock)", drive.SheetVerification)
}

func lossesCommand() *cli.Command {
	return sheetCommand("losses", "Register broken, expired and internal use losses (cod, v, type, qty)", drive.SheetLosses)
}

func observeCommand() *cli.Command {
	return sheetCommand("observe", "Fold month to date sold and bought readings into the stats (cod, v, sold, bought)", drive.SheetObservations)
}

func parseKey(raw string) (domain.ProductKey, error) {
	code, variant, _ := strings.Cut(strings.TrimSpace(raw), ".")
	cod, err := strconv.Atoi(code)
	if err != nil {
		return domain.ProductKey{}, fmt.Errorf("invalid product key %q", raw)
	}
	v := 1
	if variant != "" {
		if v, err = strconv.Atoi(variant); err != nil {
			return domain.ProductKey{}, fmt.Errorf("invalid product key %q", raw)
		}
	}
	return domain.ProductKey{Code: cod, Variant: v}, nil
}

func purgeCommand() *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Flag products for removal and delete flagged products without stock",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "flag", Usage: "Product to flag as cod.var, repeatable"},
		},
		Action: func(c *cli.Context) error {
			inventory := service.NewInventoryService(envFrom(c).stores.Store)

			var keys []domain.ProductKey
			for _, raw := range c.StringSlice("flag") {
				key, err := parseKey(raw)
				if err != nil {
					return err
				}
				keys = append(keys, key)
			}
			if len(keys) > 0 {
				report, err := inventory.FlagForPurge(c.Context, keys)
				if err != nil {
					return err
				}
				if err := printJSON(report); err != nil {
					return err
				}
			}

			purged, err := inventory.PurgeFlagged(c.Context)
			if err != nil {
				return err
			}
			logger.Log.Info().Int("purged", purged).Msg("flagged products purged")
			return nil
		},
	}
}
