package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/kozaktomas/face-engine/internal/config"
	"github.com/kozaktomas/face-engine/internal/database"
	"github.com/kozaktomas/face-engine/internal/database/mariadb"
	"github.com/kozaktomas/face-engine/internal/database/postgres"
	"github.com/kozaktomas/face-engine/internal/database/sqlite"
	"github.com/kozaktomas/face-engine/internal/facematch"
	"github.com/kozaktomas/face-engine/internal/fingerprint"
)

// engine bundles the services shared by the serve and CLI commands.
type engine struct {
	cfg        *config.Config
	store      database.Store
	encoder    fingerprint.Encoder
	gallery    *facematch.Gallery
	identifier *facematch.Identifier
}

// buildEncoder selects the encoder named by cfg.Kind.
func buildEncoder(cfg config.EncoderConfig) (fingerprint.Encoder, error) {
	switch cfg.Kind {
	case "", config.EncoderHistogramHOG:
		return fingerprint.NewHOGEncoder(cfg)
	case config.EncoderRemote:
		if cfg.Remote.Dim <= 0 {
			return nil, fmt.Errorf("EMBEDDING_DIM must be positive for the %s encoder", config.EncoderRemote)
		}
		return fingerprint.NewRemoteEncoder(cfg.Remote), nil
	default:
		return nil, fmt.Errorf("unknown encoder %q (want %s or %s)", cfg.Kind, config.EncoderHistogramHOG, config.EncoderRemote)
	}
}

// backendName reports which backend a DATABASE_URL selects.
func backendName(url string) string {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(url, mariadb.Scheme):
		return "mariadb"
	default:
		return "sqlite"
	}
}

// openStore opens the backend selected by the DATABASE_URL scheme.
func openStore(cfg *config.DatabaseConfig) (database.Store, error) {
	switch backendName(cfg.URL) {
	case "postgres":
		return postgres.Open(cfg)
	case "mariadb":
		return mariadb.Open(cfg)
	default:
		return sqlite.Open(cfg.URL)
	}
}

// openEngine loads configuration, opens and initializes the store and wires
// the matcher. The caller must call close.
func openEngine(ctx context.Context) (*engine, error) {
	cfg := config.Load()

	enc, err := buildEncoder(cfg.Encoder)
	if err != nil {
		return nil, err
	}

	store, err := openStore(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", backendName(cfg.Database.URL), err)
	}

	if err := store.InitializeSchema(ctx, database.StoreMeta{Dim: enc.Dim(), Encoder: enc.Name()}); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	var opts []facematch.GalleryOption
	if cfg.Database.HNSWEnabled {
		if finder, ok := store.(facematch.NearestFinder); ok {
			opts = append(opts, facematch.WithNearestFinder(finder))
		} else {
			opts = append(opts, facematch.WithIndex(facematch.NewHNSWIndex()))
		}
	}
	gallery := facematch.NewGallery(store, opts...)

	return &engine{
		cfg:        cfg,
		store:      store,
		encoder:    enc,
		gallery:    gallery,
		identifier: facematch.NewIdentifier(gallery, cfg.Match.Threshold, cfg.Match.TopK),
	}, nil
}

// prepareIndex loads or builds the in-memory index when one is configured.
func (e *engine) prepareIndex(ctx context.Context) error {
	if e.gallery.Index() == nil {
		return nil
	}
	if err := e.gallery.LoadOrBuildIndex(ctx, e.cfg.Database.HNSWIndexPath); err != nil {
		return fmt.Errorf("failed to prepare HNSW index: %w", err)
	}
	return nil
}

func (e *engine) close() {
	if err := e.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close store: %v\n", err)
	}
}
