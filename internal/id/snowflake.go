package id

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node    *snowflake.Node
	once    sync.Once
	initErr error
)

// Init initializes the Snowflake node with the given node ID.
// Calling it more than once has no effect.
func Init(nodeID int64) error {
	once.Do(func() {
		node, initErr = snowflake.NewNode(nodeID)
	})
	return initErr
}

// New returns a time-ordered unique ID. It falls back to node 0 when Init was never called.
func New() int64 {
	if err := Init(0); err != nil {
		panic(err)
	}
	return node.Generate().Int64()
}
