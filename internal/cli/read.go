package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/anime-shed/palm-oracle-go/internal/config"
	"github.com/anime-shed/palm-oracle-go/internal/factory"
	"github.com/anime-shed/palm-oracle-go/internal/imagedata"
	"github.com/anime-shed/palm-oracle-go/internal/logger"
	"github.com/anime-shed/palm-oracle-go/internal/oracle"
	"github.com/anime-shed/palm-oracle-go/internal/reading"
	"github.com/anime-shed/palm-oracle-go/internal/render"
	"github.com/anime-shed/palm-oracle-go/internal/repository"
	"github.com/anime-shed/palm-oracle-go/internal/service"
)

// ErrReadingFailed is returned when the reading ends in the Error phase. The
// user-facing message has already been printed.
var ErrReadingFailed = errors.New("palm reading failed")

type readOptions struct {
	url     string
	output  string
	timeout time.Duration
}

func newReadCommand() *cobra.Command {
	opts := readOptions{}

	cmd := &cobra.Command{
		Use:   "read [file]",
		Short: "Read a palm from a local image or a URL",
		Long: `Read a palm from a local image file or an image URL and print the reading.

Examples:
  palmctl read left-hand.jpg
  palmctl read --url https://example.com/palm.png
  palmctl read --output markdown palm.webp > reading.md`,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.url == "" && len(args) != 1 {
				return fmt.Errorf("expected an image file or --url")
			}
			if opts.url != "" && len(args) > 0 {
				return fmt.Errorf("pass either an image file or --url, not both")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.UseTextFormat()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger.SetLevel(cfg.LogLevel)

			components := factory.NewComponentFactory(cfg)
			palmOracle, err := components.OracleFactory.CreateOracle(cmd.Context(), cfg.Provider)
			if err != nil {
				return err
			}

			var repo repository.ImageRepository
			if opts.url != "" {
				fetcher, err := components.StorageFactory.CreateStorage()
				if err != nil {
					return err
				}
				repo = repository.NewRemoteImageRepository(fetcher)
			}

			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runRead(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), palmOracle, repo, cfg, path, opts)
		},
	}

	cmd.Flags().StringVar(&opts.url, "url", "", "read the image at this URL instead of a local file")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "text", "output format (text, markdown, json)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "give up after this long (default: the configured analysis timeout plus a margin)")

	return cmd
}

func runRead(ctx context.Context, stdout, stderr io.Writer, o oracle.Oracle, repo repository.ImageRepository, cfg *config.Config, path string, opts readOptions) error {
	switch opts.output {
	case "text", "markdown", "json":
	default:
		return fmt.Errorf("unsupported output format: %s", opts.output)
	}

	timeout := opts.timeout
	if timeout <= 0 {
		timeout = cfg.AnalysisTimeout + cfg.ImageFetchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	controller := reading.NewController(o)

	// failures are recorded in the controller state and reported below
	if opts.url != "" {
		if repo == nil {
			return fmt.Errorf("no image source configured")
		}
		file, err := repo.FetchImage(ctx, opts.url)
		if err != nil {
			_ = controller.FailRead(ctx, opts.url, err)
		} else {
			_ = controller.SelectImage(ctx, file)
		}
	} else {
		_ = selectLocalFile(ctx, controller, path)
	}

	if err := controller.Wait(ctx); err != nil {
		return fmt.Errorf("timed out waiting for the reading: %w", err)
	}

	snap := controller.Snapshot()
	if err := printSnapshot(stdout, stderr, snap, opts.output); err != nil {
		return err
	}
	if snap.Phase == reading.PhaseError {
		return ErrReadingFailed
	}
	return nil
}

func selectLocalFile(ctx context.Context, controller *reading.Controller, path string) error {
	file := reading.File{
		Name:      filepath.Base(path),
		MediaType: imagedata.TypeByName(path),
	}

	f, err := os.Open(path)
	if err != nil {
		if !imagedata.IsImageType(file.MediaType) {
			// type is decided before content is touched
			return controller.SelectImage(ctx, file)
		}
		return controller.FailRead(ctx, path, err)
	}
	defer f.Close()

	file.Content = f
	return controller.SelectImage(ctx, file)
}

func printSnapshot(stdout, stderr io.Writer, snap reading.Snapshot, output string) error {
	switch output {
	case "json":
		view := service.NewReadingResponse("", snap)
		// the data URL is noise on a terminal
		if view.Image != nil {
			view.Image.DataURL = ""
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(view)
	case "markdown":
		if snap.Phase == reading.PhaseError {
			fmt.Fprintln(stderr, snap.Error)
			return nil
		}
		_, err := fmt.Fprintln(stdout, snap.Reading)
		return err
	default:
		if snap.Phase == reading.PhaseError {
			fmt.Fprintln(stderr, render.DefaultStyle.Banner(snap.Error))
			return nil
		}
		_, err := fmt.Fprintln(stdout, render.Terminal(snap.Reading))
		return err
	}
}
