package main

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escuelademusica/liquidaciones/factory"
	"github.com/escuelademusica/liquidaciones/payroll"
	"github.com/escuelademusica/liquidaciones/render"
	"github.com/escuelademusica/liquidaciones/store/sqlite"
)

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	var out bytes.Buffer
	return &commandLine{
		svc:      payroll.NewService(store),
		rates:    factory.NewRateFactory(),
		renderer: render.New(""),
		out:      &out,
	}, &out
}

type cliTest struct {
	name    string
	args    []string // without program name
	wantErr error
}

func Test_commandLine_usage(t *testing.T) {
	cli, _ := setup(t)

	tests := []cliTest{
		{name: "no subcommand", args: []string{}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"lol"}, wantErr: errHelp},
		{name: "rates-import: no file", args: []string{"rates-import"}, wantErr: errHelp},
		{name: "export-zip: no output", args: []string{"export-zip", "-month", "Marzo"}, wantErr: errHelp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(context.Background(), append([]string{"admin"}, tt.args...))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func Test_commandLine_formula(t *testing.T) {
	cli, out := setup(t)
	ctx := context.Background()

	require.NoError(t, cli.run(ctx, []string{"admin", "formula"}))
	assert.Equal(t, "(valor_profesor + valor_alumnos) * horas\n", out.String())

	out.Reset()
	require.NoError(t, cli.run(ctx, []string{"admin", "formula", "-check", "valor_profesor * horas"}))
	assert.Equal(t, "ok\n", out.String())

	assert.Error(t, cli.run(ctx, []string{"admin", "formula", "-check", "valor_profesor *"}))

	// Broken formulas are saved with a warning
	out.Reset()
	require.NoError(t, cli.run(ctx, []string{"admin", "formula", "-set", "horas ** 2"}))
	assert.Contains(t, out.String(), "warning:")
	assert.Contains(t, out.String(), "horas ** 2\n")
}

func Test_commandLine_rates(t *testing.T) {
	cli, out := setup(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tarifas.json")

	require.NoError(t, os.WriteFile(path, []byte(`{
		"formula": "valor_profesor * horas",
		"base_rates": [{"scale": 1, "hourly_rate": "1000"}],
		"bands": [{"scale": 1, "min": 1, "max": 99, "hourly_rate": "0"}]
	}`), 0o644))

	// WHEN: Importing a sheet that only covers scale 1
	require.NoError(t, cli.run(ctx, []string{"admin", "rates-import", "-f", path}))

	// THEN: Imported, with coverage warnings for the other scales
	assert.Contains(t, out.String(), "imported 1 base rates, 1 bands")
	assert.Contains(t, out.String(), "warning:")

	cfg, err := cli.svc.RateConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "valor_profesor * horas", cfg.Formula)
	assert.True(t, decimal.NewFromInt(1000).Equal(cfg.BaseRate(1)))

	// Export round-trips through the factory
	exported := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, cli.run(ctx, []string{"admin", "rates-export", "-o", exported}))
	data, err := os.ReadFile(exported)
	require.NoError(t, err)
	again, _, err := cli.rates.ParseRates(string(data))
	require.NoError(t, err)
	assert.Equal(t, cfg.Formula, again.Formula)
	assert.Len(t, again.Bands, 1)

	assert.Error(t, cli.run(ctx, []string{"admin", "rates-import", "-f", filepath.Join(t.TempDir(), "missing.json")}))
}

func Test_commandLine_exportZip(t *testing.T) {
	cli, out := setup(t)
	ctx := context.Background()

	teacher, err := cli.svc.SaveTeacher(ctx, payroll.Teacher{Name: "Ana Pérez", Scale: 1})
	require.NoError(t, err)
	_, err = cli.svc.CreateStatement(ctx, teacher.ID, "Marzo", 2025, nil)
	require.NoError(t, err)
	_, err = cli.svc.CreateStatement(ctx, teacher.ID, "Abril", 2025, nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "marzo.zip")
	require.NoError(t, cli.run(ctx, []string{"admin", "export-zip", "-o", path, "-month", "Marzo", "-year", "2025"}))
	assert.Contains(t, out.String(), "wrote 1 statements")

	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 1)
	assert.Contains(t, zr.File[0].Name, "Marzo")

	// Nothing matches: no file is left behind
	empty := filepath.Join(t.TempDir(), "empty.zip")
	assert.Error(t, cli.run(ctx, []string{"admin", "export-zip", "-o", empty, "-month", "Julio"}))
	assert.NoFileExists(t, empty)
}
