// Command snapsync snapshots a GitHub directory into a single JSON document
// and publishes it back to the repository and to a vector store.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
