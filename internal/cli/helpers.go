package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/orgsync-io/orgsync/internal/engine"
	"github.com/orgsync-io/orgsync/internal/resource"
	"github.com/orgsync-io/orgsync/internal/state"
	"github.com/orgsync-io/orgsync/internal/transport"
)

const defaultAPIURL = "https://api.datadoghq.com"

// buildOrchestrator wires clients, store, and registry from flags and
// environment.
func buildOrchestrator(ctx context.Context) (*engine.Orchestrator, error) {
	source, err := clientFromEnv("SOURCE")
	if err != nil {
		return nil, err
	}
	dest, err := clientFromEnv("DESTINATION")
	if err != nil {
		return nil, err
	}

	backend, err := state.NewBackend(ctx, state.BackendConfig{
		Type:      flagStateBackend,
		Dir:       flagStateDir,
		Bucket:    flagStateBucket,
		Prefix:    flagStatePrefix,
		Region:    flagStateRegion,
		LockTable: flagStateLockTable,
	})
	if err != nil {
		return nil, err
	}
	store := state.NewStore(backend)

	registry, err := resource.NewCatalog(source, dest)
	if err != nil {
		return nil, err
	}

	return engine.NewOrchestrator(registry, store), nil
}

func clientFromEnv(side string) (*transport.Client, error) {
	apiKey := os.Getenv("ORGSYNC_" + side + "_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("ORGSYNC_%s_API_KEY is not set", side)
	}
	appKey := os.Getenv("ORGSYNC_" + side + "_APP_KEY")
	apiURL := os.Getenv("ORGSYNC_" + side + "_API_URL")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}

	retry := transport.DefaultRetryPolicy()
	if flagRetryMax >= 0 {
		retry.MaxRetries = flagRetryMax
	}

	return transport.New(transport.Config{
		APIURL:         apiURL,
		APIKey:         apiKey,
		AppKey:         appKey,
		Timeout:        time.Duration(flagTimeout) * time.Second,
		MaxConnections: flagMaxConnections,
		Retry:          &retry,
	}), nil
}
