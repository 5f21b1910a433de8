// Command example builds a small training configuration from the YAML
// files next to it and prints the result. Try:
//
//	go run . --model.hidden_dim=128
//	go run . --config overrides.yaml
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/confkit/tagconf"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	cfg, err := tagconf.NewBuilder().
		WithDefaults("default.yaml").
		WithLogger(logger).
		Build()
	if err != nil {
		logger.Error("config build failed", "error", err)
		os.Exit(1)
	}

	if err := cfg.Show(os.Stdout); err != nil {
		logger.Error("render failed", "error", err)
		os.Exit(1)
	}

	lr, err := cfg.Float64("train.learning_rate")
	if err != nil {
		logger.Error("read learning rate", "error", err)
		os.Exit(1)
	}
	fmt.Printf("learning rate: %g\n", lr)
}
