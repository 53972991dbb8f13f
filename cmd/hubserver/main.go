package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/udisondev/gamehub/internal/config"
	"github.com/udisondev/gamehub/internal/hub"
	"github.com/udisondev/gamehub/internal/store"
)

const releaseVersion = "0.1.0"

type flags struct {
	configPath string
	bind       string
	port       int
	publicAddr string
	dataDir    string
	uploadRoot string
	verbose    bool
}

func main() {
	f := &flags{}
	cobra.CheckErr(newCmd(f).Execute())
}

func newCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "hubserver",
		Short:         "Game distribution and matchmaking hub server.",
		Args:          cobra.ExactArgs(0),
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f)
		},
	}

	cmd.Flags().StringVarP(&f.configPath, "config", "c", "config/hubserver.yaml", "path to the YAML config file")
	cmd.Flags().StringVar(&f.bind, "bind", "", "override the bind address")
	cmd.Flags().IntVar(&f.port, "port", 0, "override the listen port (0 prompts on stdin)")
	cmd.Flags().StringVar(&f.publicAddr, "public-addr", "", "override the address advertised in GAME_LAUNCH")
	cmd.Flags().StringVar(&f.dataDir, "data-dir", "", "override the persistence directory")
	cmd.Flags().StringVar(&f.uploadRoot, "upload-root", "", "override the archive storage root")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "enable debug logging")

	return cmd
}

func run(ctx context.Context, f *flags) error {
	level := slog.LevelInfo
	if f.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyOverrides(&cfg, f)

	if cfg.Port == 0 {
		port, err := promptPort(os.Stdin, os.Stdout)
		if err != nil {
			return fmt.Errorf("reading port: %w", err)
		}
		cfg.Port = port
	}

	slog.Info("hub server starting",
		"bind", cfg.BindAddress, "port", cfg.Port, "public", cfg.PublicAddress,
		"data_dir", cfg.DataDir, "upload_root", cfg.UploadRoot)

	users, err := store.NewUserStore(filepath.Join(cfg.DataDir, "users.json"))
	if err != nil {
		return fmt.Errorf("opening user store: %w", err)
	}
	catalog, err := store.NewCatalog(filepath.Join(cfg.DataDir, "games_meta.json"))
	if err != nil {
		return fmt.Errorf("opening game catalogue: %w", err)
	}

	h := hub.New(cfg, users, catalog)
	srv := hub.NewServer(cfg, h)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := h.Run(gctx); err != nil {
			return fmt.Errorf("hub loop: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := srv.Run(gctx); err != nil {
			return fmt.Errorf("hub server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func applyOverrides(cfg *config.Hub, f *flags) {
	if f.bind != "" {
		cfg.BindAddress = f.bind
	}
	if f.port != 0 {
		cfg.Port = f.port
	}
	if f.publicAddr != "" {
		cfg.PublicAddress = f.publicAddr
	}
	if f.dataDir != "" {
		cfg.DataDir = f.dataDir
	}
	if f.uploadRoot != "" {
		cfg.UploadRoot = f.uploadRoot
	}
}

// promptPort asks the operator for the listen port when neither config nor
// flags chose one.
func promptPort(in *os.File, out *os.File) (int, error) {
	fmt.Fprint(out, "Enter listen port: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", strings.TrimSpace(line))
	}
	return port, nil
}
