// Package main implements the strata coordinator, the control plane and
// client-facing entry point of the cluster.
//
// The coordinator:
//   - Accepts node registrations and monitors node health
//   - Owns index metadata and shard-copy placement
//   - Accepts document writes and replicates them to every shard copy
//   - Runs distributed searches: validation, version gating, shard fan-out,
//     and result merging
//
// HTTP API:
//
//	POST /register              - Node registration
//	GET  /nodes                 - Cluster topology
//	GET  /health                - Coordinator liveness
//	PUT  /{index}               - Create index
//	HEAD /{index}               - Index existence
//	PUT  /{index}/_doc/{id}     - Index a document
//	POST /{index}/_search       - Distributed search
//
// Configuration comes from flags or STRATA_-prefixed environment variables:
//
//	strata-coordinator --listen :8080 --search-concurrency 5
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
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
		Use:   "strata-coordinator",
		Short: "strata cluster coordinator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := coordinatorConfig{
				Listen:            v.GetString("listen"),
				SearchConcurrency: v.GetInt("search-concurrency"),
				HealthInterval:    v.GetDuration("health-interval"),
				LogLevel:          v.GetString("log-level"),
			}
			return runCoordinator(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("listen", ":8080", "listen address")
	flags.Int("search-concurrency", 5, "max concurrent shard requests per search")
	flags.Duration("health-interval", 5*time.Second, "node health probe interval")
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
