// Package executor applies the enhancement pipeline to every page of a
// volume plan and stages the results for external conversion.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"manga-optimizer/internal/enhance"
	"manga-optimizer/internal/planner"
	"manga-optimizer/internal/util"
)

// Status is the terminal status of a pipeline run.
type Status string

const (
	StatusCompleted             Status = "completed"
	StatusCompletedWithWarnings Status = "completed_with_warnings"
	StatusCancelled             Status = "cancelled"
	StatusFailed                Status = "failed"
)

// RunError is one recoverable failure collected during a run.
type RunError struct {
	Entity  string `json:"entity"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// VolumeResult summarizes one staged volume.
type VolumeResult struct {
	BaseName string `json:"base_name"`
	Dir      string `json:"dir"`
	Pages    int    `json:"pages"`
	Empty    bool   `json:"empty"`
}

// Summary is the end-of-run report. A run always terminates with a
// summary; partial output is never silent.
type Summary struct {
	Status     Status         `json:"status"`
	PagesDone  int            `json:"pages_done"`
	PagesTotal int            `json:"pages_total"`
	Volumes    []VolumeResult `json:"volumes"`
	Errors     []RunError     `json:"errors"`
}

// Options parameterizes a run.
type Options struct {
	// StagingRoot receives one directory per volume.
	StagingRoot string
	// Parallelism bounds the page worker pool (0 = NumCPU).
	Parallelism int
	// CleanStaging removes the staging root before processing.
	CleanStaging bool
	// Progress, if set, is called with monotonically increasing
	// (pagesDone, pagesTotal) after every page.
	Progress func(done, total int)
	Logger   util.Logger
}

// manifest is the per-volume hand-off contract for the external
// converter: the staged pages in their deterministic reading order.
type manifest struct {
	Volume   int             `json:"volume"`
	BaseName string          `json:"base_name"`
	Chapters []manifestEntry `json:"chapters"`
}

type manifestEntry struct {
	Ordinal int      `json:"ordinal"`
	Name    string   `json:"name"`
	Label   string   `json:"label"`
	Pages   []string `json:"pages"` // staged file names, reading order
}

// Run processes every page of every chapter in plans with cfg and
// writes the results under opts.StagingRoot. Page processing runs on a
// bounded worker pool; output paths are determined by (volume, chapter,
// page) ordinals, so completion order never affects the staged layout.
// Cancellation is cooperative and checked between pages: staged pages
// are left in place and the run reports StatusCancelled.
func Run(ctx context.Context, plans []planner.VolumePlan, cfg enhance.Config, opts Options) Summary {
	logger := opts.Logger
	if logger == nil {
		logger = &util.NoopLogger{}
	}

	summary := Summary{Status: StatusCompleted}
	for _, plan := range plans {
		summary.PagesTotal += plan.PageCount()
	}
	if len(plans) == 0 {
		logger.Info("Nothing to process: no volume plans")
		return summary
	}

	if opts.CleanStaging {
		if err := os.RemoveAll(opts.StagingRoot); err != nil {
			logger.Warning(fmt.Sprintf("Could not clean staging root: %v", err))
		}
	}
	if err := os.MkdirAll(opts.StagingRoot, 0755); err != nil {
		summary.Status = StatusFailed
		summary.Errors = append(summary.Errors, RunError{
			Entity:  opts.StagingRoot,
			Kind:    "StagingError",
			Message: err.Error(),
		})
		return summary
	}

	workers := opts.Parallelism
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var mu sync.Mutex // guards counters and error list
	done := 0

	cancelled := false
	for _, plan := range plans {
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		volDir := filepath.Join(opts.StagingRoot, plan.BaseName)
		if err := os.MkdirAll(volDir, 0755); err != nil {
			mu.Lock()
			summary.Errors = append(summary.Errors, RunError{Entity: plan.BaseName, Kind: "StagingError", Message: err.Error()})
			mu.Unlock()
			summary.Volumes = append(summary.Volumes, VolumeResult{BaseName: plan.BaseName, Dir: volDir, Empty: true})
			continue
		}

		logger.Info(fmt.Sprintf("Staging volume %s (%d chapters, %d pages)",
			plan.BaseName, len(plan.Chapters), plan.PageCount()))

		man := manifest{Volume: plan.Number, BaseName: plan.BaseName}
		volPages := 0

		for chIdx, ch := range plan.Chapters {
			if ctx.Err() != nil {
				cancelled = true
				break
			}

			chapterDir := filepath.Join(volDir, fmt.Sprintf("%03d", chIdx+1))
			if err := os.MkdirAll(chapterDir, 0755); err != nil {
				mu.Lock()
				summary.Errors = append(summary.Errors, RunError{Entity: ch.Name, Kind: "StagingError", Message: err.Error()})
				mu.Unlock()
				continue
			}

			entry := manifestEntry{Ordinal: chIdx + 1, Name: ch.Name, Label: ch.Key.Label()}
			staged := make([]bool, len(ch.Pages))

			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(workers)
			for pageIdx, page := range ch.Pages {
				// Cooperative cancellation point between pages.
				if gctx.Err() != nil {
					cancelled = true
					break
				}
				pageIdx, page := pageIdx, page
				g.Go(func() error {
					// Re-check after waiting for a worker slot, so a
					// cancellation during the previous page stops here.
					if gctx.Err() != nil {
						return nil
					}
					outPath := filepath.Join(chapterDir, fmt.Sprintf("%05d.jpg", pageIdx+1))
					if err := processPage(page.Path, outPath, cfg); err != nil {
						mu.Lock()
						summary.Errors = append(summary.Errors, RunError{
							Entity:  fmt.Sprintf("%s/%s", ch.Name, filepath.Base(page.Path)),
							Kind:    errorKind(err),
							Message: err.Error(),
						})
						mu.Unlock()
						logger.Warning(fmt.Sprintf("Page failed, continuing: %v", err))
						return nil
					}
					mu.Lock()
					staged[pageIdx] = true
					done++
					d := done
					mu.Unlock()
					if opts.Progress != nil {
						opts.Progress(d, summary.PagesTotal)
					}
					return nil
				})
			}
			// Workers only report recoverable errors, so Wait is just a
			// barrier here.
			_ = g.Wait()
			if ctx.Err() != nil {
				cancelled = true
			}

			for pageIdx := range ch.Pages {
				if staged[pageIdx] {
					entry.Pages = append(entry.Pages, fmt.Sprintf("%03d/%05d.jpg", chIdx+1, pageIdx+1))
					volPages++
				}
			}
			man.Chapters = append(man.Chapters, entry)
			if cancelled {
				break
			}
		}

		result := VolumeResult{
			BaseName: plan.BaseName,
			Dir:      volDir,
			Pages:    volPages,
			Empty:    volPages == 0,
		}
		if result.Empty && !cancelled {
			logger.Warning(fmt.Sprintf("Volume %s staged zero pages", plan.BaseName))
		}
		summary.Volumes = append(summary.Volumes, result)

		if err := writeManifest(volDir, man); err != nil {
			mu.Lock()
			summary.Errors = append(summary.Errors, RunError{Entity: plan.BaseName, Kind: "StagingError", Message: err.Error()})
			mu.Unlock()
		}

		if cancelled {
			break
		}
	}

	summary.PagesDone = done
	switch {
	case cancelled:
		// Already-staged pages stay in place; no rollback.
		summary.Status = StatusCancelled
		logger.Info(fmt.Sprintf("Run cancelled after %d/%d pages", done, summary.PagesTotal))
	case done == 0 && summary.PagesTotal > 0:
		summary.Status = StatusFailed
		logger.Error("Run failed: no pages could be processed")
	case len(summary.Errors) > 0:
		summary.Status = StatusCompletedWithWarnings
		logger.Warning(fmt.Sprintf("Run completed with %d warning(s), %d/%d pages staged",
			len(summary.Errors), done, summary.PagesTotal))
	default:
		logger.Info(fmt.Sprintf("Run completed: %d/%d pages staged", done, summary.PagesTotal))
	}
	return summary
}

// processPage decodes, enhances and re-encodes a single page. Each page
// is independent: no mutable state is shared between page transforms.
func processPage(srcPath, outPath string, cfg enhance.Config) error {
	img, err := enhance.DecodeFile(srcPath)
	if err != nil {
		return err
	}
	processed := enhance.Process(img, cfg)

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating staged page %s: %w", outPath, err)
	}
	defer out.Close()

	if err := enhance.EncodeJPEG(out, processed, cfg.Quality); err != nil {
		return fmt.Errorf("encoding staged page %s: %w", outPath, err)
	}
	return nil
}

// errorKind maps an error to its summary taxonomy name.
func errorKind(err error) string {
	var unsupported *enhance.UnsupportedImageError
	if errors.As(err, &unsupported) {
		return "UnsupportedImageError"
	}
	return "StagingError"
}

func writeManifest(volDir string, man manifest) error {
	data, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(volDir, "manifest.json"), data, 0644); err != nil {
		return fmt.Errorf("writing manifest: %v", err)
	}
	return nil
}
