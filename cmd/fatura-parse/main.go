package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/lox/itau-fatura-parser/internal/commands"
	"github.com/lox/itau-fatura-parser/internal/csvio"
	"github.com/lox/itau-fatura-parser/internal/db"
	"github.com/lox/itau-fatura-parser/internal/fatura"
	"github.com/lox/itau-fatura-parser/internal/linesource"
	"github.com/lox/itau-fatura-parser/internal/progress"
	"github.com/lox/itau-fatura-parser/internal/types"
)

type CLI struct {
	commands.CommonConfig

	Files       []string `arg:"" help:"Statement text files to parse" type:"existingfile"`
	OutDir      string   `help:"Directory for CSV output (defaults to each input's directory)"`
	Delimiter   string   `help:"CSV field delimiter" default:";"`
	DotDecimals bool     `help:"Write amounts with dot decimals instead of the Brazilian convention" default:"false"`
	Store       bool     `help:"Persist postings to the local database" default:"false"`
	Concurrency int      `help:"Number of statements to parse concurrently" default:"4"`
	NoProgress  bool     `help:"Disable progress bar" default:"false"`
	DryRun      bool     `help:"Print parsed transactions as JSON and exit (no CSV, no store)" default:"false"`
}

func (c *CLI) Run() error {
	logger := c.SetupLogger()

	delim := []rune(c.Delimiter)
	if len(delim) != 1 {
		return fmt.Errorf("delimiter must be a single character, got %q", c.Delimiter)
	}

	var database *db.DB
	if c.Store && !c.DryRun {
		var err error
		database, err = db.New(c.DataDir, logger)
		if err != nil {
			logger.Fatal("Failed to initialize database", "error", err)
		}
		defer database.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	var bar progress.Progress = progress.NewNoopProgress()
	if !c.NoProgress && !c.DryRun && len(c.Files) > 1 {
		bar = progress.NewBarProgress(len(c.Files), "Parsing statements")
	}
	defer bar.Close()

	parser := fatura.New(fatura.DefaultConfig(), logger)

	var mu sync.Mutex
	var total types.Stats
	var stored, parsed int
	var allTxs []types.Transaction

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.Concurrency)

	for _, file := range c.Files {
		file := file
		g.Go(func() error {
			result, err := c.parseFile(gctx, parser, logger, file)
			if err != nil {
				return err
			}

			inserted := 0
			if database != nil {
				inserted, err = database.StoreAll(gctx, filepath.Base(file), result.Transactions)
				if err != nil {
					return err
				}
			}

			mu.Lock()
			addStats(&total, result.Stats)
			stored += inserted
			parsed += len(result.Transactions)
			allTxs = append(allTxs, result.Transactions...)
			mu.Unlock()

			bar.Describe(filepath.Base(file))
			if err := bar.Add(1); err != nil {
				logger.Warn("Failed to update progress", "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	bar.Close()

	if c.DryRun {
		for _, t := range allTxs {
			b, err := json.MarshalIndent(t, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling transaction: %w", err)
			}
			fmt.Println(string(b))
		}
		return nil
	}

	if database != nil {
		logger.Info("Postings stored", "inserted", stored, "skipped", parsed-stored)
	}

	logger.Info("Statements parsed",
		"files", len(c.Files),
		"lines", total.Lines,
		"postings", total.Postings(),
		"fx", total.FX,
		"payments", total.Payments,
		"duplicates", total.Duplicates,
		"suppressed", total.Suppressed,
		"rejected", total.Rejected,
		"unmatched", total.Unmatched,
	)
	return nil
}

// parseFile parses one statement and writes its CSV next to the input (or
// into --out-dir)
func (c *CLI) parseFile(ctx context.Context, parser *fatura.Parser, logger *log.Logger, file string) (fatura.Result, error) {
	st, err := linesource.Load(file, time.Now())
	if err != nil {
		return fatura.Result{}, err
	}

	result, err := parser.Parse(ctx, st.Lines, st.Ref)
	if err != nil {
		return fatura.Result{}, fmt.Errorf("parsing %s: %w", file, err)
	}

	logger.Debug("Statement parsed",
		"file", file,
		"period", fmt.Sprintf("%04d-%02d", st.Ref.Year, st.Ref.Month),
		"postings", result.Stats.Postings(),
		"unmatched", result.Stats.Unmatched,
	)

	if c.DryRun {
		return result, nil
	}

	outPath := c.outputPath(file)
	out, err := os.Create(outPath)
	if err != nil {
		return fatura.Result{}, fmt.Errorf("creating %s: %w", outPath, err)
	}
	defer out.Close()

	w := csvio.NewWriter(out, csvio.Options{
		Delimiter:   []rune(c.Delimiter)[0],
		DotDecimals: c.DotDecimals,
	})
	if err := w.WriteAll(result.Transactions); err != nil {
		return fatura.Result{}, fmt.Errorf("writing %s: %w", outPath, err)
	}

	return result, nil
}

func (c *CLI) outputPath(input string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input)) + ".csv"
	if c.OutDir != "" {
		return filepath.Join(c.OutDir, base)
	}
	return filepath.Join(filepath.Dir(input), base)
}

func addStats(total *types.Stats, s types.Stats) {
	total.Lines += s.Lines
	total.HeaderDrops += s.HeaderDrops
	total.CardHeaders += s.CardHeaders
	total.FX += s.FX
	total.Payments += s.Payments
	total.Domestic += s.Domestic
	total.IOF += s.IOF
	total.Encargos += s.Encargos
	total.Unmatched += s.Unmatched
	total.Duplicates += s.Duplicates
	total.Suppressed += s.Suppressed
	total.Rejected += s.Rejected
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("fatura-parse"),
		kong.Description("Parse Itaú credit-card statement text into normalized CSV"),
		kong.UsageOnError(),
	)

	if err := ctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
