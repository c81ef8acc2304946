// Package runid stamps each sync invocation with a unique, sortable
// identifier so concurrent runs (or runs across many arrays reporting
// to the same log sink) can be told apart without a central counter.
package runid

import "github.com/bwmarrin/snowflake"

var node *snowflake.Node

func init() {
	n, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	node = n
}

// New returns a fresh run identifier, its string form suitable for
// inclusion in a log line.
func New() string {
	return node.Generate().String()
}
