package blob

import (
	"context"
	"fmt"
	"os"

	"scancore/internal/infra/blob/fs"
	memorystore "scancore/internal/infra/blob/memory"
)

// Open selects a blob.Store implementation using environment variables.
//
//	SCANCORE_BLOB_DRIVER: fs|s3|memory (default fs)
//	SCANCORE_BLOB_FS_ROOT: directory root when driver=fs (default ./reportdata)
//	(S3 specific variables documented in the s3 package)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("SCANCORE_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return fs.New(os.Getenv("SCANCORE_BLOB_FS_ROOT"))
	case DriverS3:
		return OpenFromEnv(ctx)
	case DriverMemory:
		return memorystore.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
