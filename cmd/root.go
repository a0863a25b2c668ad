package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	zone "github.com/lrstanley/bubblezone"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/zjrosen/gitfold/internal/app"
	"github.com/zjrosen/gitfold/internal/config"
	"github.com/zjrosen/gitfold/internal/log"
)

func init() {
	// Force lipgloss/termenv to query terminal background color BEFORE
	// any Bubble Tea program starts. This prevents the terminal's OSC 11
	// response from racing with Bubble Tea's input loop and appearing as
	// garbage text in the search prompt.
	//
	// See: https://github.com/charmbracelet/bubbletea/issues/1036
	_ = lipgloss.HasDarkBackground()
}

const (
	envPrefix       = "GITFOLD"
	localConfigFile = ".gitfold.yaml"
	defaultLogFile  = "debug.log"
)

var (
	version = "dev"

	cfgFile string
	repoDir string
	backend string
	debug   bool
	logFile string
	noCache bool
)

var rootCmd = &cobra.Command{
	Use:          "gitfold [<revision-range>] [-- <path>...]",
	Short:        "A terminal git history viewer that folds merges",
	Long:         "gitfold shows the first-parent history of a revision range with every merge folded into a single row.\nUnfold a merge to see the commits it brought in, follow links back to where a branch started,\nand search the history without loading all of it.",
	Version:      version,
	SilenceUsage: true,
	RunE:         runApp,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./"+localConfigFile+" or ~/.config/gitfold/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&repoDir, "repo", "C", "",
		"repository to open (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "",
		"repository backend: gogit or cli (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false,
		"write a debug log and enable strict fold assertions")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "",
		"debug log path (default: "+defaultLogFile+")")
	rootCmd.PersistentFlags().BoolVar(&noCache, "no-cache", false,
		"do not read or write the annotation cache")

	rootCmd.AddCommand(printCmd)
	rootCmd.AddCommand(configCmd)
}

// debugEnabled reports whether --debug or GITFOLD_DEBUG is set.
func debugEnabled() bool {
	if debug {
		return true
	}
	v := os.Getenv(envPrefix + "_DEBUG")
	return v != "" && v != "0" && !strings.EqualFold(v, "false")
}

// setupLogging installs the file logger in debug mode. Otherwise no logger
// is installed and log calls are dropped.
func setupLogging() (func(), error) {
	if !debugEnabled() {
		return func() {}, nil
	}
	p := logFile
	if p == "" {
		p = defaultLogFile
	}
	cleanup, err := log.Init(p)
	if err != nil {
		return nil, fmt.Errorf("initializing debug log: %w", err)
	}
	log.Info(log.CatApp, "debug logging enabled", "path", p, "version", version)
	return cleanup, nil
}

// loadConfig reads configuration into the defaults. Lookup order: explicit
// path, ./.gitfold.yaml, then the user config, which is created from the
// default template when missing. Environment variables prefixed GITFOLD_
// override file values. The returned path is where preferences are saved.
func loadConfig(v *viper.Viper, explicit string) (config.Config, string, error) {
	cfg := config.Defaults()

	v.SetDefault("backend", cfg.Backend)
	v.SetDefault("ui.theme", cfg.UI.Theme)
	v.SetDefault("ui.date_format", cfg.UI.DateFormat)
	v.SetDefault("ui.show_detail", cfg.UI.ShowDetail)
	v.SetDefault("cache.enabled", cfg.Cache.Enabled)
	v.SetDefault("cache.dir", cfg.Cache.Dir)
	v.SetDefault("watch.enabled", cfg.Watch.Enabled)
	v.SetDefault("tracing.enabled", cfg.Tracing.Enabled)
	v.SetDefault("tracing.exporter", cfg.Tracing.Exporter)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := explicit
	switch {
	case configPath != "":
	case fileExists(localConfigFile):
		configPath = localConfigFile
	default:
		configPath = config.DefaultConfigPath()
		if configPath != "" && !fileExists(configPath) {
			if err := config.WriteDefaultConfig(configPath); err != nil {
				log.Warn(log.CatConfig, "continuing without a config file", "error", err)
				configPath = ""
			}
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return cfg, configPath, fmt.Errorf("reading config %s: %w", configPath, err)
		}
		log.Debug(log.CatConfig, "loaded config", "path", configPath)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("decoding config: %w", err)
	}
	if backend != "" {
		cfg.Backend = backend
	}
	if err := cfg.Validate(); err != nil {
		return cfg, configPath, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, configPath, nil
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}

// splitArgs separates the optional revision range from the paths that
// follow "--". dash is the index of the first argument after "--", or -1.
func splitArgs(args []string, dash int) (string, []string, error) {
	revs := args
	var paths []string
	if dash >= 0 {
		revs, paths = args[:dash], args[dash:]
	}
	if len(revs) > 1 {
		return "", nil, fmt.Errorf("expected at most one revision range, got %d: %s",
			len(revs), strings.Join(revs, " "))
	}

	rng := ""
	if len(revs) == 1 {
		rng = revs[0]
	}
	cleaned := make([]string, 0, len(paths))
	for _, p := range paths {
		p = path.Clean(filepath.ToSlash(strings.TrimSpace(p)))
		if p == "." || p == "" {
			continue
		}
		cleaned = append(cleaned, strings.TrimPrefix(p, "./"))
	}
	if len(cleaned) == 0 {
		cleaned = nil
	}
	return rng, cleaned, nil
}

func runApp(cmd *cobra.Command, args []string) error {
	rng, paths, err := splitArgs(args, cmd.ArgsLenAtDash())
	if err != nil {
		return err
	}
	if !term.IsTerminal(int(os.Stdout.Fd())) { //nolint:gosec // G115: file descriptors fit in int
		return printHistory(cmd, rng, paths, printOptions{})
	}

	cleanup, err := setupLogging()
	if err != nil {
		return err
	}
	defer cleanup()

	cfg, configPath, err := loadConfig(viper.GetViper(), cfgFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	s, err := openSession(ctx, sessionOptions{
		Config:  cfg,
		Repo:    repoDir,
		Range:   rng,
		Paths:   paths,
		NoCache: noCache,
		Debug:   debugEnabled(),
		Watch:   true,
	})
	if err != nil {
		return err
	}
	defer s.Close()

	zone.NewGlobal()
	model := app.New(app.Options{
		Config:     cfg,
		ConfigPath: configPath,
		History:    s.hist,
		Search:     s.engine,
		Enricher:   s.enricher,
		Watcher:    s.watcher,
		Debug:      debugEnabled(),
	})
	p := tea.NewProgram(
		&model,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	_, err = p.Run()

	if closeErr := model.Close(); closeErr != nil && err == nil {
		err = closeErr
	}

	if err != nil {
		return fmt.Errorf("running program: %w", err)
	}
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
