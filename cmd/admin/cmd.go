package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/escuelademusica/liquidaciones/export"
	"github.com/escuelademusica/liquidaciones/factory"
	"github.com/escuelademusica/liquidaciones/formula"
	"github.com/escuelademusica/liquidaciones/payroll"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	svc      *payroll.Service
	rates    *factory.RateFactory
	renderer export.Renderer
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  formula [-set EXPR] [-check EXPR]              - show, replace or check the pricing formula")
	fmt.Fprintln(cli.out, "  rates-export [-o FILE]                          - write the rate sheet as JSON")
	fmt.Fprintln(cli.out, "  rates-import -f FILE                            - replace the rate sheet from JSON")
	fmt.Fprintln(cli.out, "  export-zip -o FILE [-teacher ID] [-month M] [-year Y] - bundle statement PDFs")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "formula":
		cmd := flag.NewFlagSet("formula", flag.ContinueOnError)
		set := cmd.String("set", "", "New formula")
		check := cmd.String("check", "", "Formula to check without saving")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.formula(ctx, *set, *check)

	case "rates-export":
		cmd := flag.NewFlagSet("rates-export", flag.ContinueOnError)
		path := cmd.String("o", "", "Output file (default: stdout)")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.exportRates(ctx, *path)

	case "rates-import":
		cmd := flag.NewFlagSet("rates-import", flag.ContinueOnError)
		path := cmd.String("f", "", "Rate sheet JSON file")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *path == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.importRates(ctx, *path)

	case "export-zip":
		cmd := flag.NewFlagSet("export-zip", flag.ContinueOnError)
		path := cmd.String("o", "", "Output ZIP file")
		teacher := cmd.Int64("teacher", 0, "Teacher ID")
		month := cmd.String("month", "", "Month name")
		year := cmd.Int("year", 0, "Year")
		if err := cmd.Parse(args[2:]); err != nil {
			return err
		}
		if *path == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.exportZip(ctx, *path, payroll.StatementFilter{TeacherID: *teacher, Month: *month, Year: *year})

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) formula(ctx context.Context, set, check string) error {
	if check != "" {
		if err := formula.Validate(check); err != nil {
			return err
		}
		fmt.Fprintln(cli.out, "ok")
		return nil
	}
	if set != "" {
		if err := formula.Validate(set); err != nil {
			fmt.Fprintf(cli.out, "warning: %v (saved anyway, items will price at zero)\n", err)
		}
		if err := cli.svc.SaveFormula(ctx, set); err != nil {
			return err
		}
	}
	cfg, err := cli.svc.RateConfig(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, cfg.Formula)
	return nil
}

func (cli *commandLine) exportRates(ctx context.Context, path string) error {
	cfg, err := cli.svc.RateConfig(ctx)
	if err != nil {
		return err
	}
	if path == "" {
		return cli.rates.WriteRates(cli.out, cfg)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := cli.rates.WriteRates(f, cfg); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (cli *commandLine) importRates(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cfg, warnings, err := cli.rates.ReadRates(f)
	if err != nil {
		return err
	}
	if err := cli.svc.ReplaceRateConfig(ctx, cfg); err != nil {
		return err
	}
	for _, w := range warnings {
		fmt.Fprintf(cli.out, "warning: %s\n", w)
	}
	fmt.Fprintf(cli.out, "imported %d base rates, %d bands\n", len(cfg.BaseRates), len(cfg.Bands))
	return nil
}

func (cli *commandLine) exportZip(ctx context.Context, path string, filter payroll.StatementFilter) error {
	views, err := cli.svc.FilteredViews(ctx, filter)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	res, err := export.Archive(ctx, f, cli.renderer, views)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return err
	}

	fmt.Fprintf(cli.out, "wrote %d statements to %s\n", len(res.Entries), path)
	if len(res.Skipped) > 0 {
		skipped := make([]string, len(res.Skipped))
		for i, s := range res.Skipped {
			skipped[i] = fmt.Sprintf("%d (%s)", s.StatementID, s.Reason)
		}
		fmt.Fprintf(cli.out, "skipped: %s\n", strings.Join(skipped, ", "))
	}
	return nil
}
