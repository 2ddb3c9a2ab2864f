// Command sercha-ingest chunks, caches and embeds documents for retrieval.
package main

import (
	"fmt"
	"os"

	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/config/env"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/config/file"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driven/embedding"
	"github.com/custodia-labs/sercha-ingest/internal/adapters/driving/cli"
	"github.com/custodia-labs/sercha-ingest/internal/core/services"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	configStore, err := file.NewConfigStore("")
	if err != nil {
		return fmt.Errorf("failed to open config: %w", err)
	}

	settingsService := services.NewSettingsService(configStore, env.New())

	cli.SetVersion(version)
	cli.SetServices(settingsService, newRuntime)
	cli.SetEmbeddingValidator(embedding.NewConfigValidator())
	return cli.Execute()
}
