package db

import (
	"github.com/markdave123-py/contexta-kb/internal/core"
)

// DbClient is a store that keeps documents and their segments together.
type DbClient interface {
	core.DocumentStore
	core.SegmentStore
	Close() error
}

var (
	_ DbClient = (*DatabaseClient)(nil)
	_ DbClient = (*MemoryClient)(nil)
)
