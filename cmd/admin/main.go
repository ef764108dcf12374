/*
main.go - Admin command line

PURPOSE:
  Maintenance tasks against the same database the server uses: inspect or
  replace the pricing formula, move rate sheets in and out as JSON, and
  bundle statement PDFs into a ZIP without going through HTTP.

EXAMPLES:
  ./admin formula -check "(valor_profesor + valor_alumnos) * horas"
  ./admin rates-export -o tarifas.json
  ./admin rates-import -f tarifas.json
  ./admin export-zip -o marzo.zip -month Marzo -year 2025

CONFIGURATION:
  Same sources as the server (.env, LIQ_* variables). -db overrides the path.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/escuelademusica/liquidaciones/config"
	"github.com/escuelademusica/liquidaciones/factory"
	"github.com/escuelademusica/liquidaciones/internal/logger"
	"github.com/escuelademusica/liquidaciones/payroll"
	"github.com/escuelademusica/liquidaciones/render"
	"github.com/escuelademusica/liquidaciones/store/sqlite"
)

func main() {
	// Global flags come before the subcommand.
	global := flag.NewFlagSet("admin", flag.ExitOnError)
	dbPath := global.String("db", "", "SQLite database path")
	envFile := global.String("env", ".env", "Environment file")
	global.Parse(os.Args[1:])

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	logger.Init(cfg.LogLevel)

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		logger.LogError("failed to open database", err, "path", cfg.DBPath)
		os.Exit(1)
	}

	cli := commandLine{
		svc:      payroll.NewService(store),
		rates:    factory.NewRateFactory(),
		renderer: render.New(cfg.LogoPath),
		out:      os.Stdout,
	}
	args := append([]string{os.Args[0]}, global.Args()...)
	err = cli.run(context.Background(), args)
	store.Close()
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
