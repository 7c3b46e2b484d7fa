package blob

import (
	"context"
	"fmt"

	"pdm-go/internal/config"
	"pdm-go/internal/pdm"
)

// NewBlobStoreFromConfig creates a BlobStore based on the blob config type.
func NewBlobStoreFromConfig(ctx context.Context, cfg config.BlobConfig) (pdm.BlobStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(cfg.Name), nil
	case "s3":
		return NewS3Store(ctx, cfg)
	case "filesystem", "":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem blob store requires fs_root to be set")
		}
		return NewFileSystemStore(cfg.Name, cfg.FSRoot)
	default:
		return nil, fmt.Errorf("unknown blob store type: %q", cfg.Type)
	}
}
