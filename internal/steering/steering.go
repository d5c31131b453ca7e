// Package steering is the boundary to the steering repository: it loads
// the current configuration document, writes proposed changes as review
// bundles, and re-points the active symlink after a change is accepted.
// The pipeline never writes to the live document directly.
package steering

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"curator/internal/config"
	"curator/internal/logging"
	"curator/internal/types"
)

// DocumentSource supplies the current document text and accepts proposed
// changes for review.
type DocumentSource interface {
	// Load returns the current raw text of the target document. A
	// document that does not exist yet loads as empty.
	Load() (string, error)

	// Propose records newText plus a human-readable summary as a
	// reviewable change and returns where it was written. It never
	// touches the live document.
	Propose(newText, summary string) (string, error)
}

// FileSource implements DocumentSource on the steering repository
// working tree. Proposals become timestamped bundle directories under
// the review directory, each holding the proposed document and its
// summary.
type FileSource struct {
	docPath   string
	reviewDir string
}

// NewFileSource builds a FileSource from the steering configuration.
func NewFileSource(cfg *config.Config) *FileSource {
	return &FileSource{
		docPath:   cfg.GlobalDocumentPath(),
		reviewDir: cfg.ReviewPath(),
	}
}

// NewFileSourceForCategory routes a tip category to its per-category
// skill file in the steering repository. Categories without a mapping
// land in the global document.
func NewFileSourceForCategory(cfg *config.Config, category types.Category) *FileSource {
	if file, ok := cfg.Steering.CategoryFiles[string(category)]; ok && file != "" {
		logging.Steering("category %s routed to %s", category, file)
		return &FileSource{
			docPath:   filepath.Join(cfg.Steering.RepoDir, file),
			reviewDir: cfg.ReviewPath(),
		}
	}
	return NewFileSource(cfg)
}

// DefaultSkeleton is the document a first integration run starts from
// when the steering repository has no global file yet.
const DefaultSkeleton = "# Claude Configuration\n\n"

// Load reads the current document. A missing file is not an error: the
// first integration run starts from the default skeleton and creates
// the file through review.
func (f *FileSource) Load() (string, error) {
	data, err := os.ReadFile(f.docPath)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Steering("document %s does not exist yet, starting from skeleton", f.docPath)
			return DefaultSkeleton, nil
		}
		return "", fmt.Errorf("failed to load document: %w", err)
	}
	logging.Get(logging.CategorySteering).Debug("loaded document %s: %d bytes", f.docPath, len(data))
	return string(data), nil
}

// Propose writes a review bundle: the full proposed document text plus
// SUMMARY.md. Returns the bundle directory path.
func (f *FileSource) Propose(newText, summary string) (string, error) {
	stamp := time.Now().UTC().Format("20060102-150405")
	bundle := filepath.Join(f.reviewDir, stamp+"-"+slug(summary))

	if err := os.MkdirAll(bundle, 0755); err != nil {
		return "", fmt.Errorf("failed to create review bundle: %w", err)
	}

	docName := filepath.Base(f.docPath)
	if err := os.WriteFile(filepath.Join(bundle, docName), []byte(newText), 0644); err != nil {
		return "", fmt.Errorf("failed to write proposed document: %w", err)
	}
	if err := os.WriteFile(filepath.Join(bundle, "SUMMARY.md"), []byte(summary+"\n"), 0644); err != nil {
		return "", fmt.Errorf("failed to write summary: %w", err)
	}

	logging.Steering("proposed change written to %s", bundle)
	return bundle, nil
}

// slug derives a short filesystem-safe fragment from the summary.
func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
		if b.Len() >= 40 {
			break
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		out = "change"
	}
	return out
}

// Activator re-points the active configuration reference at an accepted
// document. It runs after external review; the pipeline's only
// contribution upstream was the proposed text.
type Activator struct {
	linkPath string
}

// NewActivator builds an Activator for the configured active link.
func NewActivator(cfg *config.Config) *Activator {
	return &Activator{linkPath: cfg.Steering.ActiveLink}
}

// Sync points the active link at target. The swap is atomic: a fresh
// symlink is created beside the link and renamed over it, so a reader
// never observes a missing link. A pre-existing regular file at the
// link path is preserved as a .bak sibling once.
func (a *Activator) Sync(target string) error {
	abs, err := filepath.Abs(target)
	if err != nil {
		return fmt.Errorf("failed to resolve target: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("activation target unreadable: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(a.linkPath), 0755); err != nil {
		return fmt.Errorf("failed to create link directory: %w", err)
	}

	if info, err := os.Lstat(a.linkPath); err == nil && info.Mode()&os.ModeSymlink == 0 {
		backup := a.linkPath + ".bak"
		if _, err := os.Lstat(backup); os.IsNotExist(err) {
			if err := os.Rename(a.linkPath, backup); err != nil {
				return fmt.Errorf("failed to back up existing file: %w", err)
			}
			logging.Steering("backed up existing file to %s", backup)
		}
	}

	tmp := a.linkPath + ".tmp"
	os.Remove(tmp)
	if err := os.Symlink(abs, tmp); err != nil {
		return fmt.Errorf("failed to create symlink: %w", err)
	}
	if err := os.Rename(tmp, a.linkPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to activate symlink: %w", err)
	}

	logging.Steering("active link %s -> %s", a.linkPath, abs)
	return nil
}

// Current returns the path the active link points at, or empty when the
// link does not exist.
func (a *Activator) Current() (string, error) {
	target, err := os.Readlink(a.linkPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read active link: %w", err)
	}
	return target, nil
}
