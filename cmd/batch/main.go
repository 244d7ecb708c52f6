// batch drives a set of input images through upload → generate against a
// ChameFlow gateway, one at a time, then packages the outputs into a zip.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"chameflow/internal/batch"
	"chameflow/internal/infra"
	"chameflow/internal/protocol"
	"chameflow/internal/session"
	"chameflow/pkg/zip"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		server      string
		workflow    string
		prompt      string
		negPrompt   string
		model       string
		sensitivity float64
		width       int
		height      int
		outPath     string
	)

	flagSet := pflag.NewFlagSet("batch", pflag.ContinueOnError)
	flagSet.StringVar(&server, "server", "http://localhost:8080", "gateway base URL")
	flagSet.StringVar(&workflow, "workflow", "", "workflow file name (required)")
	flagSet.StringVar(&prompt, "prompt", "", "positive prompt shared by every item")
	flagSet.StringVar(&negPrompt, "negative-prompt", "", "negative prompt (workflow-dependent)")
	flagSet.StringVar(&model, "model", "", "model name for transform workflows")
	flagSet.Float64Var(&sensitivity, "sensitivity", -1, "sensitivity in [0,1] for transform workflows")
	flagSet.IntVar(&width, "width", protocol.DefaultDimension, "output width")
	flagSet.IntVar(&height, "height", protocol.DefaultDimension, "output height")
	flagSet.StringVar(&outPath, "out", "batch_output.zip", "path of the output archive")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}
	if workflow == "" {
		return fmt.Errorf("--workflow is required")
	}
	files := flagSet.Args()
	if len(files) == 0 {
		return fmt.Errorf("no input files given")
	}

	_ = godotenv.Load()
	logger := infra.NewLogger(os.Getenv("APP_ENV"))

	orch := batch.New(batch.Options{
		Uploader: session.NewUploader(session.UploaderOptions{BaseURL: server, Logger: &logger}),
		Runner:   session.NewClient(session.ClientOptions{BaseURL: server, Logger: &logger}),
		Fetcher:  session.NewFetcher(server, nil),
		Logger:   &logger,
	})

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		orch.Enqueue(batch.Item{Name: filepath.Base(path), Data: data})
	}

	shared := protocol.Job{
		Workflow:       workflow,
		Prompt:         prompt,
		NegativePrompt: negPrompt,
		Model:          model,
		Width:          width,
		Height:         height,
	}
	if sensitivity >= 0 {
		shared.Sensitivity = &sensitivity
	}

	ctx := context.Background()
	if err := orch.Process(ctx, shared); err != nil {
		return err
	}

	failed := 0
	for _, it := range orch.Items() {
		switch it.Status {
		case batch.StatusDone:
			logger.Info().Msgf("%s -> %s", it.Name, it.Artifact)
		case batch.StatusFailed:
			failed++
			logger.Warn().Msgf("%s failed: %s", it.Name, it.Reason)
		}
	}

	archive, err := orch.BuildArchive(ctx)
	if err != nil {
		if errors.Is(err, zip.ErrEmptyArchive) {
			logger.Warn().Msg("no completed items, nothing to archive")
			return nil
		}
		return err
	}
	if err := os.WriteFile(outPath, archive, 0o644); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	logger.Info().Msgf("wrote %s (%d items, %d failed)", outPath, len(files)-failed, failed)
	return nil
}
