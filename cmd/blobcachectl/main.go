// Command blobcachectl is a small ops tool for a blob cache engine SQLite
// file: inspect/keys/vacuum/get read the store directly through pkg/storage
// (no typed facade, since the CLI has no compile-time knowledge of stored Go
// types); healthz opens the same file through pkg/blobcache and serves its
// health/readiness/liveness and Prometheus endpoints. Same role
// warren-migrate and warren's metrics HTTP server play for a cluster.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lacunalabs/blobcache/pkg/blobcache"
	"github.com/lacunalabs/blobcache/pkg/log"
	"github.com/lacunalabs/blobcache/pkg/metrics"
	"github.com/lacunalabs/blobcache/pkg/storage"
)

// Version is set via ldflags during build.
var Version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "blobcachectl",
	Short:   "Inspect and maintain a blobcache SQLite store from the command line",
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(inspectCmd, keysCmd, vacuumCmd, getCmd, healthzCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOutput})
}

func openStore(path string) (*storage.SQLiteStore, error) {
	return storage.NewSQLiteStore(path)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <path>",
	Short: "Summarize a store: total keys and per-type breakdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(args[0])
		if err != nil {
			return err
		}
		defer store.Close()

		rows, err := store.DB().Query(`SELECT TypeName, COUNT(*) FROM CacheEntry GROUP BY TypeName`)
		if err != nil {
			return fmt.Errorf("query type breakdown: %w", err)
		}
		defer rows.Close()

		fmt.Printf("store: %s\n", args[0])
		total := 0
		for rows.Next() {
			var typeName *string
			var count int
			if err := rows.Scan(&typeName, &count); err != nil {
				return err
			}
			label := "(untyped)"
			if typeName != nil {
				label = *typeName
			}
			fmt.Printf("  %-24s %d\n", label, count)
			total += count
		}
		fmt.Printf("total: %d\n", total)
		return rows.Err()
	},
}

var keysCmd = &cobra.Command{
	Use:   "keys <path>",
	Short: "List keys, optionally scoped to a type tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		typeTag, _ := cmd.Flags().GetString("type")
		format, _ := cmd.Flags().GetString("format")

		store, err := openStore(args[0])
		if err != nil {
			return err
		}
		defer store.Close()

		keys, err := store.GetAllKeys(typeTag)
		if err != nil {
			return fmt.Errorf("get_all_keys: %w", err)
		}
		sort.Strings(keys)

		switch format {
		case "yaml":
			out, err := yaml.Marshal(keys)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
		case "json":
			out, err := json.MarshalIndent(keys, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
		default:
			for _, k := range keys {
				fmt.Println(k)
			}
		}
		return nil
	},
}

func init() {
	keysCmd.Flags().String("type", "", "restrict to entries with this type tag")
	keysCmd.Flags().String("format", "text", "output format: text|json|yaml")
}

var vacuumCmd = &cobra.Command{
	Use:   "vacuum <path>",
	Short: "Remove expired entries and compact the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(args[0])
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Vacuum(); err != nil {
			return fmt.Errorf("vacuum: %w", err)
		}
		fmt.Println("vacuum complete")
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <path> <key>",
	Short: "Print, base64-encoded, the raw (still encrypted, if applicable) bytes stored under key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		typeTag, _ := cmd.Flags().GetString("type")

		store, err := openStore(args[0])
		if err != nil {
			return err
		}
		defer store.Close()

		value, err := store.Get(args[1], typeTag)
		if err != nil {
			return fmt.Errorf("get %q: %w", args[1], err)
		}
		fmt.Println(base64.StdEncoding.EncodeToString(value))
		return nil
	},
}

func init() {
	getCmd.Flags().String("type", "", "type tag the key was inserted under")
}

var healthzCmd = &cobra.Command{
	Use:   "healthz <path>",
	Short: "Serve /metrics, /health, /ready, and /live for a store over HTTP",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		interval, _ := cmd.Flags().GetDuration("interval")

		store, err := blobcache.OpenSQLite(args[0])
		if err != nil {
			return err
		}
		defer store.Close()

		metrics.SetVersion(Version)
		ping := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.Ping(ctx); err != nil {
				log.Errorf("health probe failed", err)
			}
		}
		ping()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		go func() {
			for range ticker.C {
				ping()
			}
		}()

		http.Handle("/metrics", metrics.Handler())
		http.Handle("/health", metrics.HealthHandler())
		http.Handle("/ready", metrics.ReadyHandler())
		http.Handle("/live", metrics.LivenessHandler())

		fmt.Printf("serving health endpoints on %s\n", addr)
		return http.ListenAndServe(addr, nil)
	},
}

func init() {
	healthzCmd.Flags().String("addr", "127.0.0.1:9090", "address to serve health endpoints on")
	healthzCmd.Flags().Duration("interval", 15*time.Second, "how often to probe the store between requests")
}
