// Package index builds and owns the in-memory chapter index for a
// scanned source directory tree.
package index

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"manga-optimizer/internal/profile"
	"manga-optimizer/internal/util"
)

// NoChaptersFoundError means no subdirectory of the root parsed as a
// chapter under the selected profile. The scan is aborted.
type NoChaptersFoundError struct {
	Root    string
	Profile profile.Profile
}

func (e *NoChaptersFoundError) Error() string {
	return fmt.Sprintf("no chapters found under %s with profile %s", e.Root, e.Profile)
}

// Page is a single source image file inside a chapter.
type Page struct {
	Path   string `json:"path"`
	Number int    `json:"number"`
	Ext    string `json:"ext"`
}

// Chapter is one parsed chapter folder with its ordered pages.
// DisplayOrder is the user-adjustable position in the index and is
// independent of the parsed chapter number.
type Chapter struct {
	ID           int                `json:"id"`
	Name         string             `json:"name"`
	Dir          string             `json:"dir"`
	Key          profile.ChapterKey `json:"key"`
	Pages        []Page             `json:"pages"`
	Enabled      bool               `json:"enabled"`
	DisplayOrder int                `json:"display_order"`
}

// PageCount returns the number of pages in the chapter.
func (c *Chapter) PageCount() int {
	return len(c.Pages)
}

// Skip records a directory entry that did not parse and was left out of
// the index. Skips are reported, not fatal.
type Skip struct {
	Entity  string `json:"entity"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Index is the ordered chapter index for one scanned root. Mutations go
// through SetEnabled and MoveChapter; reads return copies so an active
// pipeline run is never affected by later reordering.
type Index struct {
	mu       sync.RWMutex
	root     string
	profile  profile.Profile
	chapters []*Chapter // sorted by DisplayOrder
	skips    []Skip
	version  int
}

// Build scans the immediate subdirectories of root as candidate
// chapters and each candidate's image files as candidate pages.
// Entries that do not parse under the profile are skipped with a
// warning; zero parsed chapters is a NoChaptersFoundError.
func Build(root string, prof profile.Profile, logger util.Logger) (*Index, error) {
	if logger == nil {
		logger = &util.NoopLogger{}
	}
	if !util.DirExists(root) {
		return nil, fmt.Errorf("source directory does not exist: %s", root)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading source directory %s: %w", root, err)
	}

	ix := &Index{root: root, profile: prof, version: 1}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		key, err := prof.ParseChapterName(entry.Name())
		if err != nil {
			logger.Warning(fmt.Sprintf("Skipping folder %q: %v", entry.Name(), err))
			ix.skips = append(ix.skips, Skip{Entity: entry.Name(), Kind: "ParseError", Message: err.Error()})
			continue
		}

		dir := filepath.Join(root, entry.Name())
		pages, pageSkips, err := scanPages(dir, prof, logger)
		if err != nil {
			return nil, err
		}
		ix.skips = append(ix.skips, pageSkips...)
		if len(pages) == 0 {
			logger.Warning(fmt.Sprintf("Skipping folder %q: no readable pages", entry.Name()))
			ix.skips = append(ix.skips, Skip{Entity: entry.Name(), Kind: "ParseError", Message: "no readable pages"})
			continue
		}

		ix.chapters = append(ix.chapters, &Chapter{
			Name:    entry.Name(),
			Dir:     dir,
			Key:     key,
			Pages:   pages,
			Enabled: true,
		})
	}

	if len(ix.chapters) == 0 {
		return nil, &NoChaptersFoundError{Root: root, Profile: prof}
	}

	// Initial display order follows the parsed chapter-number rank.
	sort.SliceStable(ix.chapters, func(i, j int) bool {
		return ix.chapters[i].Key.Compare(ix.chapters[j].Key) < 0
	})
	for i, ch := range ix.chapters {
		ch.ID = i + 1
		ch.DisplayOrder = i
	}

	logger.Info(fmt.Sprintf("Scan complete: %d chapter(s), %d skipped entr(ies). Profile=%s",
		len(ix.chapters), len(ix.skips), prof))
	return ix, nil
}

// scanPages enumerates and parses the image files of one chapter folder.
func scanPages(dir string, prof profile.Profile, logger util.Logger) ([]Page, []Skip, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("reading chapter directory %s: %w", dir, err)
	}

	var pages []Page
	var skips []Skip
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !util.IsImageFile(entry.Name()) {
			continue
		}
		key, err := prof.ParsePageName(entry.Name())
		if err != nil {
			logger.Warning(fmt.Sprintf("Skipping page %q in %s: %v", entry.Name(), filepath.Base(dir), err))
			skips = append(skips, Skip{
				Entity:  filepath.Join(filepath.Base(dir), entry.Name()),
				Kind:    "ParseError",
				Message: err.Error(),
			})
			continue
		}
		pages = append(pages, Page{
			Path:   filepath.Join(dir, entry.Name()),
			Number: key.Number,
			Ext:    key.Ext,
		})
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })
	return pages, skips, nil
}

// Root returns the scanned root directory.
func (ix *Index) Root() string {
	return ix.root
}

// Profile returns the profile the index was built with.
func (ix *Index) Profile() profile.Profile {
	return ix.profile
}

// Version increments on every successful mutation.
func (ix *Index) Version() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.version
}

// Skips returns the entries skipped during the build.
func (ix *Index) Skips() []Skip {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]Skip, len(ix.skips))
	copy(out, ix.skips)
	return out
}

// Chapters returns a snapshot of all chapters in display order.
func (ix *Index) Chapters() []Chapter {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]Chapter, len(ix.chapters))
	for i, ch := range ix.chapters {
		out[i] = *ch
	}
	return out
}

// EnabledChapters returns a snapshot of the enabled chapters in display
// order. Pipeline runs plan from this snapshot, so concurrent mutations
// never affect a run already started.
func (ix *Index) EnabledChapters() []Chapter {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []Chapter
	for _, ch := range ix.chapters {
		if ch.Enabled {
			out = append(out, *ch)
		}
	}
	return out
}

// SetEnabled toggles whether a chapter is included in future plans.
func (ix *Index) SetEnabled(chapterID int, enabled bool) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, ch := range ix.chapters {
		if ch.ID == chapterID {
			ch.Enabled = enabled
			ix.version++
			return nil
		}
	}
	return fmt.Errorf("no chapter with id %d", chapterID)
}

// MoveChapter moves a chapter to newPosition (0-based) in the display
// order, shifting the chapters in between rather than swapping, so the
// order stays a strict gap-free sequence.
func (ix *Index) MoveChapter(chapterID int, newPosition int) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	from := -1
	for i, ch := range ix.chapters {
		if ch.ID == chapterID {
			from = i
			break
		}
	}
	if from == -1 {
		return fmt.Errorf("no chapter with id %d", chapterID)
	}
	if newPosition < 0 || newPosition >= len(ix.chapters) {
		return fmt.Errorf("position %d out of range [0,%d)", newPosition, len(ix.chapters))
	}
	if newPosition == from {
		return nil
	}

	moved := ix.chapters[from]
	ix.chapters = append(ix.chapters[:from], ix.chapters[from+1:]...)
	ix.chapters = append(ix.chapters[:newPosition],
		append([]*Chapter{moved}, ix.chapters[newPosition:]...)...)

	for i, ch := range ix.chapters {
		ch.DisplayOrder = i
	}
	ix.version++
	return nil
}
