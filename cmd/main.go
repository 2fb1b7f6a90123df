// Package main is the entry point for the offline sync gateway.
//
// @title           Offline Sync Gateway API
// @version         1.0.0
// @description     Offline-first gateway in front of a remote REST API.
//
//	Reads are cached and served locally while the remote is unreachable.
//	Writes are queued and replayed once connectivity returns. Every path
//	outside the routes listed here is proxied to the remote API.
//
// @contact.name   API Support
// @contact.url    https://github.com/guttosm/offline-sync
//
// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT
//
// @host      localhost:8080
// @BasePath  /
//
// @tag.name        Offline
// @tag.description Offline data statistics and maintenance
//
// @tag.name        Queue
// @tag.description Queued mutations awaiting replay
//
// @tag.name        Sync
// @tag.description Reconciliation with the remote API
//
// @tag.name        Cache
// @tag.description Cache partitions
//
// @tag.name        Connectivity
// @tag.description Online and offline state
//
// @tag.name        Health
// @tag.description Health check endpoints
package main

import (
	"os"

	_ "github.com/guttosm/offline-sync/docs" // swagger docs

	"github.com/guttosm/offline-sync/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
