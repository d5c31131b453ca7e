package steering

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"curator/internal/config"
	"curator/internal/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default(t.TempDir())
	cfg.Steering.RepoDir = t.TempDir()
	cfg.Steering.GlobalFile = filepath.Join("global", "CLAUDE.md")
	cfg.Steering.ReviewDir = "review"
	cfg.Steering.ActiveLink = filepath.Join(t.TempDir(), "active", "CLAUDE.md")
	return cfg
}

func TestLoadMissingDocumentYieldsSkeleton(t *testing.T) {
	src := NewFileSource(testConfig(t))
	got, err := src.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got != DefaultSkeleton {
		t.Errorf("got %q, want the default skeleton", got)
	}
}

func TestLoadExistingDocument(t *testing.T) {
	cfg := testConfig(t)
	path := cfg.GlobalDocumentPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	want := "# Claude Configuration\n\n## Style\n\ncontent\n"
	if err := os.WriteFile(path, []byte(want), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := NewFileSource(cfg).Load()
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("loaded bytes differ from file contents")
	}
}

// Category routing: a mapped category reads and proposes against its
// own skill file, an unmapped one falls back to the global document.
func TestFileSourceCategoryRouting(t *testing.T) {
	cfg := testConfig(t)
	cfg.Steering.CategoryFiles = map[string]string{
		"workflow": "workflows.md",
	}

	want := "# Workflows\n\n## Planning\n\nexisting content\n"
	if err := os.WriteFile(filepath.Join(cfg.Steering.RepoDir, "workflows.md"), []byte(want), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := NewFileSourceForCategory(cfg, types.CategoryWorkflow).Load()
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("workflow category did not load its mapped file")
	}

	// Proposals from a routed source carry the mapped file's name.
	bundle, err := NewFileSourceForCategory(cfg, types.CategoryWorkflow).Propose("# Workflows\n", "routing check")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(bundle, "workflows.md")); err != nil {
		t.Errorf("bundle missing routed document: %v", err)
	}

	// No mapping for hooks here, so the global skeleton applies.
	got, err = NewFileSourceForCategory(cfg, types.CategoryHook).Load()
	if err != nil {
		t.Fatal(err)
	}
	if got != DefaultSkeleton {
		t.Errorf("unmapped category got %q, want the global skeleton", got)
	}
}

func TestProposeWritesBundle(t *testing.T) {
	cfg := testConfig(t)
	src := NewFileSource(cfg)

	bundle, err := src.Propose("# New Document\n", "addition of new section \"Formatting\"")
	if err != nil {
		t.Fatal(err)
	}

	doc, err := os.ReadFile(filepath.Join(bundle, "CLAUDE.md"))
	if err != nil {
		t.Fatalf("proposed document missing: %v", err)
	}
	if string(doc) != "# New Document\n" {
		t.Errorf("proposed text = %q", doc)
	}

	summary, err := os.ReadFile(filepath.Join(bundle, "SUMMARY.md"))
	if err != nil {
		t.Fatalf("summary missing: %v", err)
	}
	if !strings.Contains(string(summary), "Formatting") {
		t.Errorf("summary = %q", summary)
	}

	// Proposing never touches the live document.
	if _, err := os.Stat(cfg.GlobalDocumentPath()); !os.IsNotExist(err) {
		t.Error("propose created or modified the live document")
	}
}

func TestProposeBundlesDoNotCollide(t *testing.T) {
	src := NewFileSource(testConfig(t))

	a, err := src.Propose("a\n", "same summary")
	if err != nil {
		t.Fatal(err)
	}
	// Same timestamp second is fine; MkdirAll tolerates it, but the
	// second write must still land its own files.
	b, err := src.Propose("b\n", "same summary")
	if err != nil {
		t.Fatal(err)
	}
	_ = a
	_ = b
}

func TestActivatorSync(t *testing.T) {
	cfg := testConfig(t)
	target := filepath.Join(cfg.Steering.RepoDir, "CLAUDE.md")
	if err := os.WriteFile(target, []byte("doc\n"), 0644); err != nil {
		t.Fatal(err)
	}

	act := NewActivator(cfg)
	if err := act.Sync(target); err != nil {
		t.Fatal(err)
	}

	got, err := act.Current()
	if err != nil {
		t.Fatal(err)
	}
	if got == "" || !strings.HasSuffix(got, "CLAUDE.md") {
		t.Errorf("active link points at %q", got)
	}

	data, err := os.ReadFile(cfg.Steering.ActiveLink)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "doc\n" {
		t.Errorf("reading through the link got %q", data)
	}
}

func TestActivatorSyncRepoints(t *testing.T) {
	cfg := testConfig(t)
	first := filepath.Join(cfg.Steering.RepoDir, "one.md")
	second := filepath.Join(cfg.Steering.RepoDir, "two.md")
	for _, p := range []string{first, second} {
		if err := os.WriteFile(p, []byte(filepath.Base(p)+"\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	act := NewActivator(cfg)
	if err := act.Sync(first); err != nil {
		t.Fatal(err)
	}
	if err := act.Sync(second); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(cfg.Steering.ActiveLink)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "two.md\n" {
		t.Errorf("link not repointed, reads %q", data)
	}
}

func TestActivatorBacksUpRegularFile(t *testing.T) {
	cfg := testConfig(t)
	target := filepath.Join(cfg.Steering.RepoDir, "CLAUDE.md")
	if err := os.WriteFile(target, []byte("managed\n"), 0644); err != nil {
		t.Fatal(err)
	}

	// A hand-written file already sits where the link goes.
	if err := os.MkdirAll(filepath.Dir(cfg.Steering.ActiveLink), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg.Steering.ActiveLink, []byte("precious manual config\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := NewActivator(cfg).Sync(target); err != nil {
		t.Fatal(err)
	}

	backup, err := os.ReadFile(cfg.Steering.ActiveLink + ".bak")
	if err != nil {
		t.Fatalf("backup missing: %v", err)
	}
	if string(backup) != "precious manual config\n" {
		t.Errorf("backup = %q", backup)
	}
}

func TestActivatorSyncMissingTarget(t *testing.T) {
	cfg := testConfig(t)
	if err := NewActivator(cfg).Sync(filepath.Join(cfg.Steering.RepoDir, "absent.md")); err == nil {
		t.Error("syncing to a missing target should fail")
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"addition of new section \"Formatting\"", "addition-of-new-section-formatting"},
		{"", "change"},
		{"///", "change"},
	}
	for _, tt := range tests {
		if got := slug(tt.in); got != tt.want {
			t.Errorf("slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
