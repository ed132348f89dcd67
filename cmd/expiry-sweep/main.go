// Command expiry-sweep runs one pass of the transfer expiry sweep and exits.
// Intended for cron-style scheduling where the in-process sweeper is disabled.
package main

import (
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/retail_backend/config"
	"bitbucket.org/mmdatafocus/retail_backend/workflow"
)

func main() {
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	count, err := workflow.SweepExpired(time.Now().UTC())
	if err != nil {
		fmt.Fprintf(os.Stderr, "sweep failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("expired %d transfers\n", count)
}
