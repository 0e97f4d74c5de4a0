// Command override-ingest bulk loads postal-code shipping fees from gzipped
// carrier exports into shipping_overrides.
//
// Each file holds one "postal_code;amount_cents" row per line. Codes are
// stored verbatim (they are exact-match lookup keys), so exports must use
// the same formatting the storefront sends. When files disagree on a code,
// the last file on the command line wins.
//
// Files can be large, so rows are not held in memory: pass 1 builds a bloom
// filter per file, pass 2 streams every row and writes it straight to the
// database unless another file's filter claims the code too. Only those
// duplicate candidates are kept in memory and resolved exactly in a final
// merge, which also discards the filters' false positives.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/storelink/checkout/internal/domain/shipping"
	"github.com/storelink/checkout/internal/storage/postgres"
)

const (
	bloomCapacity = 50_000_000
	bloomFPR      = 0.001
	progressEvery = 1_000_000
	batchSize     = 1_000
	maxPostalLen  = 16
)

// fileResult holds what pass 2 found in one file: codes that another file's
// filter also claims (kept for exact resolution) and row counters.
type fileResult struct {
	candidates map[string]int64
	written    int
	skipped    int
}

func main() {
	var (
		tenantID    string
		databaseURL string
	)

	flag.StringVar(&tenantID, "tenant", "", "tenant UUID the overrides belong to")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		slog.Error("no input files: pass one or more gzipped override files as arguments")
		os.Exit(1)
	}
	if _, err := uuid.Parse(tenantID); err != nil {
		slog.Error("a valid --tenant UUID is required")
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

	if err := run(ctx, tenantID, databaseURL, files); err != nil {
		slog.Error("override ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("override ingest completed successfully")
}

func run(ctx context.Context, tenantID, databaseURL string, files []string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	repo := postgres.NewOverrideRepository(pool)

	// Pass 1: build per-file bloom filters concurrently.
	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))

	filters, err := buildBloomFilters(ctx, files)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: stream rows, writing codes unique to their file immediately
	// and collecting possible cross-file duplicates.
	slog.Info("pass 2: streaming rows")

	results, err := streamRows(ctx, repo, tenantID, files, filters)
	if err != nil {
		return errors.Wrap(err, "stream rows")
	}

	// Resolve duplicate candidates exactly: later files override earlier
	// ones, and codes the filters flagged that turn out to live in a single
	// file were false positives, not conflicts.
	merged := make(map[string]int64)
	seenIn := make(map[string]int)
	for _, r := range results {
		for code, amount := range r.candidates {
			merged[code] = amount
			seenIn[code]++
		}
	}
	conflicts := 0
	for _, n := range seenIn {
		if n >= 2 {
			conflicts++
		}
	}

	if err := writeMerged(ctx, repo, tenantID, merged); err != nil {
		return errors.Wrap(err, "write merged duplicates")
	}

	var written, skipped int
	for _, r := range results {
		written += r.written
		skipped += r.skipped
	}
	slog.Info("ingest summary",
		slog.Int("written", written+len(merged)),
		slog.Int("cross_file_conflicts", conflicts),
		slog.Int("skipped_rows", skipped),
	)
	return nil
}

// buildBloomFilters creates one bloom filter per file, concurrently.
func buildBloomFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(buildFilterForFile(ctx, i, f, filters))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return filters, nil
}

func buildFilterForFile(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter) func() error {
	return func() error {
		filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		var count uint64

		if err := streamGzFile(ctx, path, func(line string) {
			code, _, ok := parseLine(line)
			if !ok {
				return
			}
			filter.AddString(code)
			count++
			if count%progressEvery == 0 {
				slog.Info("pass 1 progress",
					slog.Int("file", idx+1),
					slog.Uint64("rows", count),
				)
			}
		}); err != nil {
			return errors.Wrapf(err, "build filter for file %d", idx+1)
		}

		slog.Info("pass 1 complete",
			slog.Int("file", idx+1),
			slog.Uint64("total_rows", count),
		)

		filters[idx] = filter
		return nil
	}
}

// streamRows re-streams each file concurrently. Rows whose code no other
// file's filter claims are flushed to the database in batches; the rest
// become duplicate candidates for the merge step.
func streamRows(
	ctx context.Context,
	repo *postgres.OverrideRepository,
	tenantID string,
	files []string,
	filters []*bloom.BloomFilter,
) ([]fileResult, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(streamFileRows(ctx, repo, tenantID, i, f, filters, results))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func streamFileRows(
	ctx context.Context,
	repo *postgres.OverrideRepository,
	tenantID string,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
	results []fileResult,
) func() error {
	return func() error {
		res := fileResult{candidates: make(map[string]int64)}
		batch := make([]shipping.Override, 0, batchSize)
		var (
			count    uint64
			flushErr error
		)

		flush := func() error {
			if err := repo.Upsert(ctx, batch); err != nil {
				return err
			}
			res.written += len(batch)
			batch = batch[:0]
			return nil
		}

		if err := streamGzFile(ctx, path, func(line string) {
			if flushErr != nil {
				return
			}

			code, amount, ok := parseLine(line)
			if !ok {
				if strings.TrimSpace(line) != "" {
					res.skipped++
				}
				return
			}

			count++
			if count%progressEvery == 0 {
				slog.Info("pass 2 progress",
					slog.Int("file", idx+1),
					slog.Uint64("rows", count),
				)
			}

			for j, f := range filters {
				if j == idx {
					continue
				}
				if f.TestString(code) {
					res.candidates[code] = amount
					return
				}
			}

			batch = append(batch, shipping.Override{
				TenantID:   tenantID,
				PostalCode: code,
				Amount:     amount,
			})
			if len(batch) == batchSize {
				flushErr = flush()
			}
		}); err != nil {
			return errors.Wrapf(err, "stream file %d", idx+1)
		}
		if flushErr != nil {
			return errors.Wrapf(flushErr, "flush file %d", idx+1)
		}

		if err := flush(); err != nil {
			return errors.Wrapf(err, "flush file %d", idx+1)
		}

		slog.Info("pass 2 complete",
			slog.Int("file", idx+1),
			slog.Uint64("total_rows", count),
			slog.Int("written", res.written),
			slog.Int("candidates", len(res.candidates)),
		)

		results[idx] = res
		return nil
	}
}

// writeMerged upserts the resolved duplicate candidates in batches.
func writeMerged(ctx context.Context, repo *postgres.OverrideRepository, tenantID string, merged map[string]int64) error {
	if len(merged) == 0 {
		return nil
	}
	slog.Info("writing resolved duplicates", slog.Int("count", len(merged)))

	batch := make([]shipping.Override, 0, batchSize)
	for code, amount := range merged {
		batch = append(batch, shipping.Override{
			TenantID:   tenantID,
			PostalCode: code,
			Amount:     amount,
		})
		if len(batch) == batchSize {
			if err := repo.Upsert(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	return repo.Upsert(ctx, batch)
}

// parseLine parses a "postal_code;amount_cents" row. Codes are kept
// verbatim apart from surrounding whitespace.
func parseLine(line string) (code string, amount int64, ok bool) {
	rawCode, rawAmount, found := strings.Cut(line, ";")
	if !found {
		return "", 0, false
	}
	code = strings.TrimSpace(rawCode)
	if code == "" || len(code) > maxPostalLen {
		return "", 0, false
	}
	amount, err := strconv.ParseInt(strings.TrimSpace(rawAmount), 10, 64)
	if err != nil || amount < 0 {
		return "", 0, false
	}
	return code, amount, true
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
