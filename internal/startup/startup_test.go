package startup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	if info.Version == "" {
		t.Error("Expected Version to be set")
	}
	if info.OS == "" || info.Arch == "" {
		t.Error("Expected OS and Arch to be set")
	}
	if info.GoVersion != GoVersion {
		t.Errorf("Expected GoVersion=%s, got %s", GoVersion, info.GoVersion)
	}
}

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestReadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Read("")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if cfg.Port != "3100" {
		t.Errorf("Port = %q, want 3100", cfg.Port)
	}
	if cfg.ScanInterval != 5*time.Minute || cfg.ScanRetryDelay != 5*time.Minute {
		t.Errorf("scan timings = %v/%v, want 5m/5m", cfg.ScanInterval, cfg.ScanRetryDelay)
	}
	if cfg.SearchEngine != EngineFTS5 {
		t.Errorf("SearchEngine = %q, want fts5", cfg.SearchEngine)
	}
	if !cfg.ExtractSubtitles {
		t.Error("ExtractSubtitles should default to true")
	}
	if cfg.SkipHidden {
		t.Error("SkipHidden should default to false")
	}
	if cfg.ExplicitLibraries() {
		t.Error("no library lists configured, ExplicitLibraries() should be false")
	}
	if cfg.DatabasePath != filepath.Join(cfg.DatabaseDir, "subtitle-index.db") {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
}

func TestReadEnvironment(t *testing.T) {
	chdirTemp(t)
	t.Setenv("DEFAULT_LIBRARIES", "Anime, Films,")
	t.Setenv("NONDEFAULT_LIBRARIES", "Extras")
	t.Setenv("SCAN_INTERVAL", "90s")
	t.Setenv("SEARCH_ENGINE", "BLEVE")
	t.Setenv("SKIP_SETUP", "true")
	t.Setenv("SKIP_HIDDEN", "true")

	cfg, err := Read("")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got := strings.Join(cfg.DefaultLibraries, "|"); got != "Anime|Films" {
		t.Errorf("DefaultLibraries = %q, want Anime|Films", got)
	}
	if got := strings.Join(cfg.NondefaultLibraries, "|"); got != "Extras" {
		t.Errorf("NondefaultLibraries = %q, want Extras", got)
	}
	if !cfg.ExplicitLibraries() {
		t.Error("ExplicitLibraries() should be true")
	}
	if cfg.ScanInterval != 90*time.Second {
		t.Errorf("ScanInterval = %v, want 90s", cfg.ScanInterval)
	}
	if cfg.SearchEngine != EngineBleve {
		t.Errorf("SearchEngine = %q, want bleve", cfg.SearchEngine)
	}
	if !cfg.SkipHidden {
		t.Error("SkipHidden should be read from SKIP_HIDDEN")
	}
	if !cfg.SkipSetup {
		t.Error("SkipSetup should be true")
	}
}

func TestReadConfigFile(t *testing.T) {
	dir := chdirTemp(t)
	content := "port: 4000\ndefault_libraries:\n  - Anime\n  - Films\nrender_cache_ttl: 1h\n"
	if err := os.WriteFile(filepath.Join(dir, "subtitle-index.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Read("")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if cfg.Port != "4000" {
		t.Errorf("Port = %q, want 4000", cfg.Port)
	}
	if len(cfg.DefaultLibraries) != 2 || cfg.DefaultLibraries[1] != "Films" {
		t.Errorf("DefaultLibraries = %v, want [Anime Films]", cfg.DefaultLibraries)
	}
	if cfg.RenderCacheTTL != time.Hour {
		t.Errorf("RenderCacheTTL = %v, want 1h", cfg.RenderCacheTTL)
	}
}

func TestReadMissingExplicitConfigFile(t *testing.T) {
	chdirTemp(t)
	if _, err := Read("does-not-exist.yaml"); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestInvalidDurationFallsBack(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SCAN_RETRY_DELAY", "soon")

	cfg, err := Read("")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if cfg.ScanRetryDelay != 5*time.Minute {
		t.Errorf("ScanRetryDelay = %v, want fallback 5m", cfg.ScanRetryDelay)
	}
}

func TestLoadConfigCreatesDirectories(t *testing.T) {
	dir := chdirTemp(t)
	t.Setenv("DATABASE_DIR", filepath.Join(dir, "db"))
	t.Setenv("CACHE_DIR", filepath.Join(dir, "cache"))
	t.Setenv("OUTPUT_DIRECTORY", filepath.Join(dir, "out"))
	t.Setenv("ROOT_DIRECTORY", filepath.Join(dir, "library"))

	cfg, err := LoadConfig("", nil)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	for _, p := range []string{cfg.DatabaseDir, cfg.OutputDirectory, cfg.TempDir, cfg.ThumbnailDir} {
		if info, err := os.Stat(p); err != nil || !info.IsDir() {
			t.Errorf("expected directory %s to exist", p)
		}
	}
	if !cfg.ThumbnailsEnabled {
		t.Error("ThumbnailsEnabled should be true for a writable cache dir")
	}
	if !filepath.IsAbs(cfg.RootDirectory) {
		t.Errorf("RootDirectory %q is not absolute", cfg.RootDirectory)
	}
}

func TestEnsureDirectoryRejectsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ensureDirectory(file, "test"); err == nil {
		t.Error("expected error for non-directory path")
	}
}

func TestGetRouteGroup(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/search", "api/search"},
		{"/api/files/{id}/thumbnail", "api/files"},
		{"/healthz", "healthz"},
		{"/output/", "output"},
		{"/", ""},
	}

	for _, tt := range tests {
		if got := getRouteGroup(tt.path); got != tt.want {
			t.Errorf("getRouteGroup(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestGetRoutes(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/search", nil).Methods("GET").Name("search")
	r.HandleFunc("/api/render", nil).Methods("POST")

	routes, err := GetRoutes(r)
	if err != nil {
		t.Fatalf("GetRoutes() error = %v", err)
	}
	if len(routes) != 2 {
		t.Fatalf("got %d routes, want 2", len(routes))
	}
	if routes[0].Name != "search" || routes[0].Method != "GET" {
		t.Errorf("unexpected first route %+v", routes[0])
	}
}
