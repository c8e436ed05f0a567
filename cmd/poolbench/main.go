package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/torosent/poolbench/internal/config"
	"github.com/torosent/poolbench/internal/harness"
	"github.com/torosent/poolbench/internal/output"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.PrintConfig {
		return output.WriteConfigYAML(stdout, cfg)
	}

	ctx := context.Background()
	h, err := harness.New(ctx, *cfg, harness.Options{Stdout: stdout, Stderr: stderr})
	if err != nil {
		return err
	}
	defer func() {
		if err := h.Close(); err != nil {
			fmt.Fprintf(stderr, "Warning: %v\n", err)
		}
	}()

	_, err = h.Run(ctx)
	return err
}
