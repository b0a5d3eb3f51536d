// Package merge fetches and decodes the MERGE/CPTEC daily gridded
// precipitation product.
package merge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hidrodados/coletor/internal/observability"
)

// DayFailure records one day whose download failed.
type DayFailure struct {
	Date time.Time
	Err  error
}

// Report summarizes a batch download. Every enqueued day reaches a terminal
// state; failed days are listed, never retried.
type Report struct {
	Succeeded int
	Skipped   int // already present locally
	Failed    []DayFailure
}

// Downloader drains a queue of per-day grid-file downloads across a fixed
// pool of workers.
type Downloader struct {
	baseURL      string
	dir          string
	workers      int
	abortOnError bool
	httpClient   *http.Client
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// NewDownloader creates a Downloader writing into dir with the given pool
// size (the service default is twenty workers). With abortOnError false, a
// single day's failure is logged, the task is marked done, and the batch
// continues; this is deliberate policy, not accidental error suppression.
func NewDownloader(baseURL, dir string, workers int, abortOnError bool, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Downloader {
	if workers <= 0 {
		workers = 20
	}
	return &Downloader{
		baseURL:      baseURL,
		dir:          dir,
		workers:      workers,
		abortOnError: abortOnError,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
		metrics:      metrics,
	}
}

// FileName returns the local file name for one day's grid file.
func FileName(date time.Time) string {
	return fmt.Sprintf("MERGE_CPTEC_%s.grib2", date.Format("20060102"))
}

// PathFor returns the remote path for one day's grid file.
func (d *Downloader) PathFor(date time.Time) string {
	return fmt.Sprintf("%s/DAILY/%04d/%02d/%s", d.baseURL, date.Year(), int(date.Month()), FileName(date))
}

// Download ensures one grid file per calendar day in [start, end] exists in
// the destination directory. It blocks until every enqueued task reaches a
// terminal state, then returns the batch report. The returned error is
// non-nil only for setup problems or, with abortOnError, the first failed
// day.
func (d *Downloader) Download(ctx context.Context, start, end time.Time) (Report, error) {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return Report{}, fmt.Errorf("create destination dir: %w", err)
	}

	tasks := make(chan time.Time)
	var (
		mu     sync.Mutex
		report Report
		wg     sync.WaitGroup
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		d.metrics.DownloadWorkers.Inc()
		go func() {
			defer wg.Done()
			defer d.metrics.DownloadWorkers.Dec()
			for date := range tasks {
				outcome := d.fetchDay(ctx, date)
				mu.Lock()
				switch {
				case outcome == nil:
					report.Succeeded++
					d.metrics.Downloads.WithLabelValues("success").Inc()
				case outcome == errAlreadyPresent:
					report.Skipped++
				default:
					report.Failed = append(report.Failed, DayFailure{Date: date, Err: outcome})
					d.metrics.Downloads.WithLabelValues("failure").Inc()
					d.logger.Warn("grid download failed",
						"date", date.Format("2006-01-02"), "error", outcome)
					if d.abortOnError {
						cancel()
					}
				}
				mu.Unlock()
			}
		}()
	}

	for date := start; !date.After(end); date = date.AddDate(0, 0, 1) {
		tasks <- date
	}
	close(tasks)
	wg.Wait()

	if d.abortOnError && len(report.Failed) > 0 {
		return report, fmt.Errorf("download aborted: day %s: %w",
			report.Failed[0].Date.Format("2006-01-02"), report.Failed[0].Err)
	}
	return report, nil
}

// errAlreadyPresent marks a day whose file already exists locally.
var errAlreadyPresent = fmt.Errorf("already present")

func (d *Downloader) fetchDay(ctx context.Context, date time.Time) error {
	dest := filepath.Join(d.dir, FileName(date))
	if _, err := os.Stat(dest); err == nil {
		return errAlreadyPresent
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.PathFor(date), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	d.metrics.DownloadDuration.Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize file: %w", err)
	}

	d.logger.Debug("grid file downloaded", "date", date.Format("2006-01-02"), "path", dest)
	return nil
}
