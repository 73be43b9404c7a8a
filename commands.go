package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/nijaru/autoclip/handlers/api"
	"github.com/nijaru/autoclip/models"
	"github.com/nijaru/autoclip/services/clips"
	"github.com/spf13/cobra"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.clips.RecoverInterrupted(ctx); err != nil {
		return err
	}
	a.clips.Start()

	if a.cfg.Janitor.Enabled {
		a.scheduler.Start()
		defer a.scheduler.Stop()
	}

	server := api.NewServer(a.cfg,
		api.WithLogger(a.logger),
		api.WithServices(a.clips, a.files, a.reporter),
		api.WithHealthCheck("ffmpeg", func(context.Context) error { return a.transcoder.Check() }),
		api.WithHealthCheck("transcriber", a.transcriber.Check),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Error("Server shutdown error")
	}
	return nil
}

func processCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "process <video>",
		Short: "Process one local video and print the resulting job as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			info, err := f.Stat()
			if err != nil {
				return err
			}

			job, err := a.clips.Process(ctx, clips.Upload{
				Filename: filepath.Base(args[0]),
				Size:     info.Size(),
				Body:     f,
			})
			if job != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(models.NewJobResponse(job)); encErr != nil {
					return encErr
				}
			}
			return err
		},
	}
}

func sweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired uploads and clips once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			removed := a.scheduler.RunOnce()
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d files\n", removed)
			return nil
		},
	}
}
