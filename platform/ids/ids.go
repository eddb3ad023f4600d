// Package ids generates time-ordered 64-bit ids for append-only records.
package ids

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node     *snowflake.Node
	initOnce sync.Once
	initErr  error
)

// Init configures the generator node. Only the first call has effect.
func Init(nodeID int64) error {
	initOnce.Do(func() {
		node, initErr = snowflake.NewNode(nodeID)
	})
	return initErr
}

// New returns a new id. Init with node 1 is implied when Init was never called.
func New() int64 {
	if err := Init(1); err != nil {
		panic(err)
	}
	return node.Generate().Int64()
}
