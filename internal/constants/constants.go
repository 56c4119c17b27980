package constants

import "time"

const (
	SnapshotTTL       = 5 * time.Minute
	ActiveDaysDefault = 120
)

const (
	ExternalAPITimeout = 15 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 60 * time.Second
)

const (
	// StorePageSize is the fixed page size for paginated store reads.
	// Reads loop until a short page comes back; the total row count is
	// never assumed up front.
	StorePageSize = 1000

	// StoreChunkSize caps identifier sets per in.(...) filter. Larger
	// sets are split into concurrent sub-requests and merged only after
	// all of them resolve.
	StoreChunkSize = 150
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
	DBBatchSize       = 100
)

const (
	ShutdownTimeout = 5 * time.Second
)
