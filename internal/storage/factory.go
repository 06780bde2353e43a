package storage

import (
	"strings"

	"github.com/calin/convohist/internal/config"
)

// NewStorage creates the artifact storage backend selected by configuration.
// Parameters:
//   - cfg: storage section of the application configuration.
// Returns:
//   - ObjectStorage: initialized backend (local directory or S3-compatible).
//   - error: non-nil if the backend cannot be created.
func NewStorage(cfg *config.StorageConfig) (ObjectStorage, error) {
	storeType := StorageType(strings.ToLower(cfg.Type))
	if storeType == "" || storeType == "local" {
		return NewLocalStorage(cfg.LocalDir)
	}
	switch storeType {
	case StorageTypeS3, StorageTypeR2, StorageTypeS3Compatible:
	default:
		storeType = detectStorageType(cfg.Endpoint)
	}

	return NewS3Storage(&S3Config{
		Type:      storeType,
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		UseSSL:    cfg.UseSSL,
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		PublicURL: cfg.PublicURL,
	})
}

// detectStorageType infers the backend flavor from the endpoint host
func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)

	switch {
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	default:
		return StorageTypeS3Compatible
	}
}
