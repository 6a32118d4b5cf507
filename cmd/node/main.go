// Package main implements the strata data node, which hosts shard copies and
// executes shard-level search and write operations on behalf of the
// coordinator.
//
// A node:
//   - Registers itself (ID, public address, version) with the coordinator
//   - Creates shard copies on demand as the coordinator routes to them
//   - Serves /shards/search and /shards/docs for the coordinator
//   - Answers /health and /info probes from the health monitor
//
// Configuration comes from flags or STRATA_-prefixed environment variables:
//
//	strata-node --coordinator http://localhost:8080 --listen :8081
//	STRATA_NODE_VERSION=7.17.0 strata-node ...   # simulate a legacy node
//
// The --node-version override exists for rolling-upgrade testing: a cluster
// of nodes started with different versions behaves like a cluster caught
// mid-upgrade, which is what the min_compatible_shard_node search option is
// for.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dreamware/strata/internal/cluster"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "strata-node",
		Short: "strata data node hosting shard copies",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := nodeConfig{
				ID:          v.GetString("id"),
				Listen:      v.GetString("listen"),
				Addr:        v.GetString("addr"),
				Coordinator: v.GetString("coordinator"),
				Version:     v.GetString("node-version"),
				DataDir:     v.GetString("data-dir"),
				LogLevel:    v.GetString("log-level"),
			}
			return runNode(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("id", "", "node ID (default: generated UUID)")
	flags.String("listen", ":8081", "listen address")
	flags.String("addr", "http://127.0.0.1:8081", "public address advertised to the coordinator")
	flags.String("coordinator", "http://127.0.0.1:8080", "coordinator base URL")
	flags.String("node-version", cluster.CurrentVersion, "node version advertised to the coordinator")
	flags.String("data-dir", "", "shard storage directory (empty: in-memory)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")

	v.SetEnvPrefix("STRATA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(flags)

	return cmd
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

func nodeID(configured string) string {
	if configured != "" {
		return configured
	}
	return "node-" + uuid.NewString()[:8]
}
