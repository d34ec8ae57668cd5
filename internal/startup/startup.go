package startup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"subtitle-index/internal/logging"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Search engines accepted by SEARCH_ENGINE.
const (
	EngineFTS5  = "fts5"
	EngineBleve = "bleve"
)

// Config holds all application configuration
type Config struct {
	RootDirectory       string        `json:"rootDirectory" validate:"required"`
	OutputDirectory     string        `json:"outputDirectory" validate:"required"`
	DatabaseDir         string        `json:"databaseDir" validate:"required"`
	CacheDir            string        `json:"cacheDir" validate:"required"`
	DefaultLibraries    []string      `json:"defaultLibraries"`
	NondefaultLibraries []string      `json:"nondefaultLibraries"`
	SkipSetup           bool          `json:"skipSetup"`
	SymlinkDirectory    string        `json:"symlinkDirectory"`
	Port                string        `json:"port" validate:"required,numeric"`
	MetricsPort         string        `json:"metricsPort" validate:"required,numeric"`
	MetricsEnabled      bool          `json:"metricsEnabled"`
	ScanInterval        time.Duration `json:"scanInterval" validate:"min=1000000000"`
	ScanRetryDelay      time.Duration `json:"scanRetryDelay" validate:"min=1000000000"`
	StatWorkers         int           `json:"statWorkers" validate:"min=0"`
	SkipHidden          bool          `json:"skipHidden"`
	ExtractSubtitles    bool          `json:"extractSubtitles"`
	WatchLibraries      bool          `json:"watchLibraries"`
	SearchEngine        string        `json:"searchEngine" validate:"oneof=fts5 bleve"`
	SearchLimit         int           `json:"searchLimit" validate:"min=1,max=10000"`
	RenderCacheTTL      time.Duration `json:"renderCacheTtl" validate:"min=0"`
	FFmpegPath          string        `json:"ffmpegPath" validate:"required"`
	FFprobePath         string        `json:"ffprobePath" validate:"required"`
	LogLevel            string        `json:"logLevel"`
	LogFormat           string        `json:"logFormat" validate:"omitempty,oneof=console json"`

	// Derived paths
	DatabasePath     string `json:"-"`
	BleveIndexPath   string `json:"-"`
	RenderLedgerPath string `json:"-"`
	ThumbnailDir     string `json:"-"`
	TempDir          string `json:"-"`

	// Feature flags based on directory availability
	ThumbnailsEnabled bool `json:"-"`
}

// ExplicitLibraries reports whether library roots are configured by list
// rather than discovered under RootDirectory.
func (c *Config) ExplicitLibraries() bool {
	return len(c.DefaultLibraries) > 0 || len(c.NondefaultLibraries) > 0
}

// ConfigValidator checks a Config's field constraints.
type ConfigValidator interface {
	Validate(i any) error
}

// setDefaults registers every recognised option. Keys are lower-case so
// they double as config-file keys; AutomaticEnv maps them to the upper-case
// environment variables.
func setDefaults(v *viper.Viper) {
	v.SetDefault("root_directory", "./data/library")
	v.SetDefault("output_directory", "./data/output")
	v.SetDefault("database_dir", "./data")
	v.SetDefault("cache_dir", "./data/cache")
	v.SetDefault("default_libraries", "")
	v.SetDefault("nondefault_libraries", "")
	v.SetDefault("skip_setup", false)
	v.SetDefault("symlink_directory", "")
	v.SetDefault("port", "3100")
	v.SetDefault("metrics_port", "9090")
	v.SetDefault("metrics_enabled", true)
	v.SetDefault("scan_interval", "5m")
	v.SetDefault("scan_retry_delay", "5m")
	v.SetDefault("stat_workers", 0)
	v.SetDefault("skip_hidden", false)
	v.SetDefault("extract_subtitles", true)
	v.SetDefault("watch_libraries", false)
	v.SetDefault("search_engine", EngineFTS5)
	v.SetDefault("search_limit", 200)
	v.SetDefault("render_cache_ttl", "72h")
	v.SetDefault("ffmpeg_path", "ffmpeg")
	v.SetDefault("ffprobe_path", "ffprobe")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
}

// Read builds a Config from a .env file, an optional config file and the
// environment, without touching the filesystem beyond reading them.
// configFile may be empty, in which case subtitle-index.yaml is looked up
// in the working directory.
func Read(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Warn("Failed to load .env file: %v", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("subtitle-index")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := &Config{
		RootDirectory:       v.GetString("root_directory"),
		OutputDirectory:     v.GetString("output_directory"),
		DatabaseDir:         v.GetString("database_dir"),
		CacheDir:            v.GetString("cache_dir"),
		DefaultLibraries:    stringList(v, "default_libraries"),
		NondefaultLibraries: stringList(v, "nondefault_libraries"),
		SkipSetup:           v.GetBool("skip_setup"),
		SymlinkDirectory:    v.GetString("symlink_directory"),
		Port:                v.GetString("port"),
		MetricsPort:         v.GetString("metrics_port"),
		MetricsEnabled:      v.GetBool("metrics_enabled"),
		ScanInterval:        durationOr(v, "scan_interval", 5*time.Minute),
		ScanRetryDelay:      durationOr(v, "scan_retry_delay", 5*time.Minute),
		StatWorkers:         v.GetInt("stat_workers"),
		SkipHidden:          v.GetBool("skip_hidden"),
		ExtractSubtitles:    v.GetBool("extract_subtitles"),
		WatchLibraries:      v.GetBool("watch_libraries"),
		SearchEngine:        strings.ToLower(v.GetString("search_engine")),
		SearchLimit:         v.GetInt("search_limit"),
		RenderCacheTTL:      durationOr(v, "render_cache_ttl", 72*time.Hour),
		FFmpegPath:          v.GetString("ffmpeg_path"),
		FFprobePath:         v.GetString("ffprobe_path"),
		LogLevel:            v.GetString("log_level"),
		LogFormat:           strings.ToLower(v.GetString("log_format")),
	}
	cfg.derivePaths()

	return cfg, nil
}

func (c *Config) derivePaths() {
	c.DatabasePath = filepath.Join(c.DatabaseDir, "subtitle-index.db")
	c.BleveIndexPath = filepath.Join(c.DatabaseDir, "conversations.bleve")
	c.RenderLedgerPath = filepath.Join(c.DatabaseDir, "renders.db")
	c.ThumbnailDir = filepath.Join(c.CacheDir, "thumbnails")
	c.TempDir = filepath.Join(c.CacheDir, "tmp")
}

// LoadConfig reads, validates and prepares configuration: it logs the
// banner and settings, resolves directories to absolute paths and creates
// the ones the server writes to.
func LoadConfig(configFile string, validator ConfigValidator) (*Config, error) {
	cfg, err := Read(configFile)
	if err != nil {
		return nil, err
	}

	logging.Configure(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  ROOT_DIRECTORY:        %s", cfg.RootDirectory)
	logging.Info("  OUTPUT_DIRECTORY:      %s", cfg.OutputDirectory)
	logging.Info("  DATABASE_DIR:          %s", cfg.DatabaseDir)
	logging.Info("  CACHE_DIR:             %s", cfg.CacheDir)
	logging.Info("  DEFAULT_LIBRARIES:     %s", strings.Join(cfg.DefaultLibraries, ","))
	logging.Info("  NONDEFAULT_LIBRARIES:  %s", strings.Join(cfg.NondefaultLibraries, ","))
	logging.Info("  SKIP_SETUP:            %v", cfg.SkipSetup)
	logging.Info("  SYMLINK_DIRECTORY:     %s", cfg.SymlinkDirectory)
	logging.Info("  PORT:                  %s", cfg.Port)
	logging.Info("  METRICS_PORT:          %s", cfg.MetricsPort)
	logging.Info("  METRICS_ENABLED:       %v", cfg.MetricsEnabled)
	logging.Info("  SCAN_INTERVAL:         %s", cfg.ScanInterval)
	logging.Info("  SCAN_RETRY_DELAY:      %s", cfg.ScanRetryDelay)
	logging.Info("  SKIP_HIDDEN:           %v", cfg.SkipHidden)
	logging.Info("  EXTRACT_SUBTITLES:     %v", cfg.ExtractSubtitles)
	logging.Info("  WATCH_LIBRARIES:       %v", cfg.WatchLibraries)
	logging.Info("  SEARCH_ENGINE:         %s", cfg.SearchEngine)
	logging.Info("  RENDER_CACHE_TTL:      %s", cfg.RenderCacheTTL)
	logging.Info("  LOG_LEVEL:             %s", logging.GetLevel())

	if validator != nil {
		if err := validator.Validate(cfg); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	for _, dir := range []*string{&cfg.RootDirectory, &cfg.OutputDirectory, &cfg.DatabaseDir, &cfg.CacheDir} {
		abs, err := filepath.Abs(*dir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve path %s: %w", *dir, err)
		}
		*dir = abs
	}
	if cfg.SymlinkDirectory != "" {
		if abs, err := filepath.Abs(cfg.SymlinkDirectory); err == nil {
			cfg.SymlinkDirectory = abs
		}
	}
	cfg.derivePaths()

	logging.Info("  Library root (absolute):  %s", cfg.RootDirectory)
	logging.Info("  Output (absolute):        %s", cfg.OutputDirectory)
	logging.Info("  Database (absolute):      %s", cfg.DatabaseDir)

	// The library root is only read; a missing root is reported by the scanner.
	if err := ensureDirectory(cfg.RootDirectory, "library"); err != nil {
		logging.Warn("  Library root issue: %v", err)
	}

	for _, required := range []struct{ path, name string }{
		{cfg.DatabaseDir, "database"},
		{cfg.OutputDirectory, "output"},
		{cfg.TempDir, "temp"},
	} {
		if err := ensureDirectory(required.path, required.name); err != nil {
			return nil, fmt.Errorf("%s directory error: %w", required.name, err)
		}
		if err := testWriteAccess(required.path); err != nil {
			return nil, fmt.Errorf("%s directory is not writable: %w", required.name, err)
		}
		logging.Info("  [OK] %s directory is writable", required.name)
	}

	cfg.ThumbnailsEnabled = setupOptionalDir(cfg.ThumbnailDir, "thumbnails")
	if cfg.SymlinkDirectory != "" && !setupOptionalDir(cfg.SymlinkDirectory, "symlink") {
		cfg.SymlinkDirectory = ""
	}

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Subtitle extraction: %s", enabledString(cfg.ExtractSubtitles))
	logging.Info("    Thumbnails:          %s", enabledString(cfg.ThumbnailsEnabled))
	logging.Info("    Path proxy:          %s", enabledString(cfg.SymlinkDirectory != ""))
	logging.Info("    Library watcher:     %s", enabledString(cfg.WatchLibraries))
	logging.Info("    Metrics:             %s", enabledString(cfg.MetricsEnabled))

	return cfg, nil
}

func stringList(v *viper.Viper, key string) []string {
	var raw []string
	switch value := v.Get(key).(type) {
	case []string:
		raw = value
	case []interface{}:
		for _, item := range value {
			raw = append(raw, fmt.Sprint(item))
		}
	case nil:
	default:
		raw = strings.Split(fmt.Sprint(value), ",")
	}

	list := make([]string, 0, len(raw))
	for _, item := range raw {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}

func durationOr(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	d := v.GetDuration(key)
	if d <= 0 && v.GetString(key) != "0" && v.GetString(key) != "0s" {
		logging.Warn("  Invalid %s %q, using default: %s", strings.ToUpper(key), v.GetString(key), fallback)
		return fallback
	}
	return d
}

func setupOptionalDir(path, name string) bool {
	logging.Debug("  Setting up %s directory: %s", name, path)

	if err := os.MkdirAll(path, 0o755); err != nil {
		logging.Warn("    Failed to create %s directory: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}

	if err := testWriteAccess(path); err != nil {
		logging.Warn("    %s directory is not writable: %v", name, err)
		logging.Warn("    %s will be disabled", name)
		return false
	}

	logging.Debug("    [OK] %s directory ready", name)
	return true
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DATABASE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Database initialized in %v", duration)
}

// LogSearchInit logs which search engine serves queries
func LogSearchInit(engine string, duration time.Duration) {
	logging.Info("  [OK] Search engine %q ready in %v", engine, duration)
}

// LogTranscoderInit logs FFmpeg availability. Missing binaries only disable
// extraction and rendering at run time, so this never fails startup.
func LogTranscoderInit(ffmpegPath, ffprobePath string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("FFMPEG")
	logging.Info("------------------------------------------------------------")

	for _, bin := range []string{ffmpegPath, ffprobePath} {
		if err := checkBinary(bin); err != nil {
			logging.Warn("  %s check failed: %v", bin, err)
			logging.Warn("  Track extraction and rendering will fail until it is installed")
		} else {
			logging.Info("  [OK] %s is available", bin)
		}
	}
}

// LogIndexerInit logs indexer initialization
func LogIndexerInit(interval, retry time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("INDEXER INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Scan interval: %v (retry after failure: %v)", interval, retry)
	logging.Info("  Starting indexer...")
}

// LogIndexerStarted logs successful indexer start
func LogIndexerStarted() {
	logging.Info("  [OK] Indexer started")
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			pathTemplate, err = route.GetPathRegexp()
			if err != nil {
				return nil
			}
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}

		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes at debug level
func LogHTTPRoutes(router *mux.Router) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if !logging.IsDebugEnabled() {
		logging.Info("  Routes registered (set LOG_LEVEL=debug to list them)")
		return
	}

	routes, err := GetRoutes(router)
	if err != nil {
		logging.Warn("error walking routes: %v", err)
	}

	logging.Debug("  Registered routes (%d total):", len(routes))

	groups := make(map[string][]RouteInfo)
	for _, route := range routes {
		prefix := getRouteGroup(route.Path)
		groups[prefix] = append(groups[prefix], route)
	}

	groupKeys := make([]string, 0, len(groups))
	for k := range groups {
		groupKeys = append(groupKeys, k)
	}
	sort.Strings(groupKeys)

	for _, group := range groupKeys {
		if group != "" {
			logging.Debug("  [%s]", group)
		} else {
			logging.Debug("  [root]")
		}
		for _, route := range groups[group] {
			logging.Debug("    %-6s %s", route.Method, route.Path)
		}
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")
	parts := strings.SplitN(path, "/", 2)

	first := parts[0]
	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("  Application:     http://0.0.0.0:%s", config.Port)
	if config.MetricsEnabled {
		logging.Info("  Metrics:         http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("  Metrics:         DISABLED")
	}
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

func printBanner() {
	banner := `
------------------------------------------------------------
           _         _   _ _   _        _           _
 ___ _   _| |__  ___| |_(_) |_| | ___  (_)_ __   __| | _____  __
/ __| | | | '_ \/ __| __| | __| |/ _ \ | | '_ \ / _' |/ _ \ \/ /
\__ \ |_| | |_) \__ \ |_| | |_| |  __/ | | | | | (_| |  __/>  <
|___/\__,_|_.__/|___/\__|_|\__|_|\___| |_|_| |_|\__,_|\___/_/\_\

------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if wd, err := os.Getwd(); err == nil {
		logging.Debug("  Working dir:     %s", wd)
	}
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func checkBinary(bin string) error {
	path, err := exec.LookPath(bin)
	if err != nil {
		return fmt.Errorf("%s not found in PATH", bin)
	}
	logging.Debug("  %s path: %s", bin, path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return fmt.Errorf("failed to get %s version: %w", bin, err)
	}

	if line, _, _ := strings.Cut(string(output), "\n"); line != "" {
		logging.Debug("  %s version: %s", bin, strings.TrimSpace(line))
	}

	return nil
}
