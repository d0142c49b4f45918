// Command inventory-import loads supplier inventory feeds into the product
// catalog. Feeds are CSV files, optionally gzip-compressed, with the columns
// name, price, category, image_url, description, in_stock. Rows are upserted
// by product name; unknown names become new catalog entries.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/islandgrocer/islandgrocer/internal/storage/postgres"
)

const (
	bloomCapacity = 1_000_000
	bloomFPR      = 0.001
	batchSize     = 500
	progressEvery = 50_000
)

// feedRow is one parsed inventory line.
type feedRow struct {
	name        string
	price       decimal.Decimal
	category    string
	imageURL    string
	description string
	inStock     bool
}

func main() {
	var (
		dataDir     string
		databaseURL string
		workers     int
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing inventory feed files (*.csv, *.csv.gz)")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&workers, "workers", 4, "max feed files processed concurrently")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL, workers); err != nil {
		slog.Error("inventory import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("inventory import completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string, workers int) error {
	files, err := discoverFeeds(dataDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		slog.Info("no feed files found", slog.String("dir", dataDir))
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

	// Known product names go into a bloom filter so each feed row can be
	// classified as new or existing without a per-row database lookup. False
	// positives only misclassify a new row as existing; the upsert is correct
	// either way, so the count is approximate but the data never is.
	known, err := loadKnownNames(ctx, pool)
	if err != nil {
		return errors.Wrap(err, "load known product names")
	}

	slog.Info("importing feeds", slog.Int("files", len(files)), slog.Int("workers", workers))

	var imported, added atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, f := range files {
		g.Go(importFeed(ctx, pool, f, known, &imported, &added))
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("import summary",
		slog.Int64("rows", imported.Load()),
		slog.Int64("new_products", added.Load()),
	)
	return nil
}

func discoverFeeds(dataDir string) ([]string, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, errors.Wrapf(err, "read feed directory %s", dataDir)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".csv") || strings.HasSuffix(name, ".csv.gz") {
			files = append(files, filepath.Join(dataDir, name))
		}
	}
	return files, nil
}

// nameSet tracks which product names the catalog already holds. The bloom
// filter is not safe for concurrent use, so test-and-add happens under a
// mutex; all feed workers share one set.
type nameSet struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
}

func newNameSet() *nameSet {
	return &nameSet{filter: bloom.NewWithEstimates(bloomCapacity, bloomFPR)}
}

// add records the name and reports whether it was absent before. For any
// given name at most one caller ever gets true.
func (s *nameSet) add(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.filter.TestString(name) {
		return false
	}
	s.filter.AddString(name)
	return true
}

func loadKnownNames(ctx context.Context, pool *pgxpool.Pool) (*nameSet, error) {
	set := newNameSet()

	rows, err := pool.Query(ctx, `SELECT name FROM products`)
	if err != nil {
		return nil, errors.Wrap(err, "query product names")
	}
	defer rows.Close()

	var count int
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "scan product name")
		}
		set.add(name)
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate product names")
	}

	slog.Info("known products loaded", slog.Int("count", count))
	return set, nil
}

func importFeed(
	ctx context.Context,
	pool *pgxpool.Pool,
	path string,
	known *nameSet,
	imported, added *atomic.Int64,
) func() error {
	return func() error {
		slog.Info("importing feed", slog.String("file", path))

		var (
			pending []feedRow
			rows    int64
		)
		flush := func() error {
			if len(pending) == 0 {
				return nil
			}
			if err := upsertBatch(ctx, pool, pending); err != nil {
				return err
			}
			for _, row := range pending {
				if known.add(row.name) {
					added.Add(1)
				}
			}
			imported.Add(int64(len(pending)))
			pending = pending[:0]
			return nil
		}

		err := streamFeed(ctx, path, func(row feedRow) error {
			pending = append(pending, row)
			rows++
			if rows%progressEvery == 0 {
				slog.Info("import progress", slog.String("file", path), slog.Int64("rows", rows))
			}
			if len(pending) >= batchSize {
				return flush()
			}
			return nil
		})
		if err != nil {
			return errors.Wrapf(err, "import feed %s", path)
		}
		if err := flush(); err != nil {
			return errors.Wrapf(err, "flush feed %s", path)
		}

		slog.Info("feed imported", slog.String("file", path), slog.Int64("rows", rows))
		return nil
	}
}

// streamFeed opens the feed, transparently decompressing .gz files, and calls
// fn for each data row. The first row must be a header.
func streamFeed(ctx context.Context, path string, fn func(feedRow) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var reader io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		reader = gz
	}

	cr := csv.NewReader(reader)
	cr.FieldsPerRecord = 6
	cr.ReuseRecord = true

	header := true
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "read csv record")
		}
		if header {
			header = false
			continue
		}

		row, err := parseRow(record)
		if err != nil {
			return err
		}
		if err := fn(row); err != nil {
			return err
		}
	}
}

func parseRow(record []string) (feedRow, error) {
	name := strings.TrimSpace(record[0])
	if name == "" {
		return feedRow{}, errors.New("empty product name")
	}

	price, err := decimal.NewFromString(strings.TrimSpace(record[1]))
	if err != nil {
		return feedRow{}, errors.Wrapf(err, "parse price for %q", name)
	}
	if price.IsNegative() {
		return feedRow{}, errors.Errorf("negative price for %q", name)
	}

	inStock, err := strconv.ParseBool(strings.TrimSpace(record[5]))
	if err != nil {
		return feedRow{}, errors.Wrapf(err, "parse in_stock for %q", name)
	}

	return feedRow{
		name:        name,
		price:       price,
		category:    strings.TrimSpace(record[2]),
		imageURL:    strings.TrimSpace(record[3]),
		description: strings.TrimSpace(record[4]),
		inStock:     inStock,
	}, nil
}

// upsertBatch writes one chunk of rows in a single round trip. Existing
// products keep their id; everything else about them follows the feed.
func upsertBatch(ctx context.Context, pool *pgxpool.Pool, rows []feedRow) error {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO products (id, name, price, category, image_url, description, in_stock)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (name) DO UPDATE SET
				price = EXCLUDED.price,
				category = EXCLUDED.category,
				image_url = EXCLUDED.image_url,
				description = EXCLUDED.description,
				in_stock = EXCLUDED.in_stock`,
			uuid.New().String(), row.name, row.price, row.category, row.imageURL, row.description, row.inStock,
		)
	}

	results := pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return errors.Wrap(err, "upsert product row")
		}
	}
	return nil
}
