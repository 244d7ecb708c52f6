// generate runs a single generation session against a ChameFlow gateway
// and saves the produced images locally.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"chameflow/internal/infra"
	"chameflow/internal/protocol"
	"chameflow/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		server    string
		workflow  string
		prompt    string
		negPrompt string
		width     int
		height    int
		seed      int64
		timeout   time.Duration
		outDir    string
	)

	flagSet := pflag.NewFlagSet("generate", pflag.ContinueOnError)
	flagSet.StringVar(&server, "server", "http://localhost:8080", "gateway base URL")
	flagSet.StringVar(&workflow, "workflow", "", "workflow file name (required)")
	flagSet.StringVar(&prompt, "prompt", "", "positive prompt")
	flagSet.StringVar(&negPrompt, "negative-prompt", "", "negative prompt (workflow-dependent)")
	flagSet.IntVar(&width, "width", protocol.DefaultDimension, "output width")
	flagSet.IntVar(&height, "height", protocol.DefaultDimension, "output height")
	flagSet.Int64Var(&seed, "seed", -1, "explicit seed (-1 lets the backend pick one)")
	flagSet.DurationVar(&timeout, "timeout", 0, "abort the session after this duration (0 = none)")
	flagSet.StringVar(&outDir, "out", ".", "directory to save produced images into")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}
	if workflow == "" {
		return fmt.Errorf("--workflow is required")
	}

	_ = godotenv.Load()
	logger := infra.NewLogger(os.Getenv("APP_ENV"))

	job := protocol.Job{
		Workflow:       workflow,
		Prompt:         prompt,
		NegativePrompt: negPrompt,
		Width:          width,
		Height:         height,
	}
	if seed >= 0 {
		job.Seed = &seed
	}

	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	client := session.NewClient(session.ClientOptions{
		BaseURL: server,
		Logger:  &logger,
		Observer: func(ev protocol.Event) {
			switch ev := ev.(type) {
			case protocol.StatusEvent:
				logger.Info().Msgf("status: %s", ev.Message)
			case protocol.ProgressEvent:
				logger.Info().Msgf("executing node %s", ev.Node)
			case protocol.InfoEvent:
				logger.Info().Msgf("seed: %d", ev.Seed)
			}
		},
	})

	result := client.Run(ctx, job)
	if result.Failed() {
		return fmt.Errorf("generation failed: %s", result.Reason)
	}

	fetcher := session.NewFetcher(server, nil)
	for _, name := range result.Artifacts {
		data, err := fetcher.Fetch(ctx, name)
		if err != nil {
			return err
		}
		path := filepath.Join(outDir, filepath.Base(name))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("save %s: %w", name, err)
		}
		logger.Info().Msgf("saved %s", path)
	}
	return nil
}
