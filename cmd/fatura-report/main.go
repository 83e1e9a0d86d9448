package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/lox/itau-fatura-parser/internal/commands"
	"github.com/lox/itau-fatura-parser/internal/db"
	"github.com/lox/itau-fatura-parser/internal/money"
)

type CLI struct {
	commands.CommonConfig

	ByMonth bool `help:"Group totals by posting month instead of category" default:"false"`
	JSON    bool `help:"Emit the report as JSON" default:"false"`
}

func (c *CLI) Run() error {
	logger := c.SetupLogger()

	database, err := db.New(c.DataDir, logger)
	if err != nil {
		logger.Fatal("Failed to open database", "error", err)
	}
	defer database.Close()

	ctx := context.Background()

	count, err := database.Count(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		logger.Warn("No postings stored yet; run fatura-parse with --store first")
		return nil
	}

	if c.ByMonth {
		return c.reportByMonth(ctx, database)
	}
	if err := c.reportByCategory(ctx, database); err != nil {
		return err
	}

	negatives, err := database.Negatives(ctx)
	if err != nil {
		return err
	}
	logger.Info("Ledger summary", "postings", count, "negative", negatives)
	return nil
}

func (c *CLI) reportByCategory(ctx context.Context, database *db.DB) error {
	totals, err := database.CategoryTotals(ctx)
	if err != nil {
		return err
	}

	if c.JSON {
		return json.NewEncoder(os.Stdout).Encode(totals)
	}
	for _, t := range totals {
		fmt.Printf("%-14s %4d  %14s\n", t.Category, t.Count, money.Format(t.Total))
	}
	return nil
}

func (c *CLI) reportByMonth(ctx context.Context, database *db.DB) error {
	totals, err := database.MonthTotals(ctx)
	if err != nil {
		return err
	}

	if c.JSON {
		return json.NewEncoder(os.Stdout).Encode(totals)
	}
	for _, t := range totals {
		fmt.Printf("%s %4d  %14s\n", t.Month, t.Count, money.Format(t.Total))
	}
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("fatura-report"),
		kong.Description("Summarize stored fatura postings by category or month"),
		kong.UsageOnError(),
	)

	if err := ctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
