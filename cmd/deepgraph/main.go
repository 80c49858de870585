// Command deepgraph is DeepGraph's CLI/REPL entry point: open a database
// directory, run one Cypher query or drop into an interactive shell, and
// optionally bulk-import nodes/edges from CSV files first.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/deepskilling/deepgraph/pkg/config"
	"github.com/deepskilling/deepgraph/pkg/engine"
)

var version = "0.1.0"

func main() {
	var (
		databaseDir    string
		query          string
		output         string
		importNodesCSV string
		importEdgesCSV string
		configFile     string
	)

	rootCmd := &cobra.Command{
		Use:   "deepgraph",
		Short: "DeepGraph - embedded labeled-property-graph engine",
		Long: `DeepGraph is an embedded, single-process labeled-property-graph
database with Cypher query support, ACID transactions, and crash recovery.

Run with -q to execute a single query, or with no flags to enter an
interactive shell. --import-csv-nodes/--import-csv-edges bulk-load data
before the query or shell starts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(runOptions{
				databaseDir:    databaseDir,
				query:          query,
				output:         output,
				importNodesCSV: importNodesCSV,
				importEdgesCSV: importEdgesCSV,
				configFile:     configFile,
			})
		},
	}

	rootCmd.Flags().StringVar(&databaseDir, "database", "./data", "database directory")
	rootCmd.Flags().StringVarP(&query, "query", "q", "", "execute a single Cypher query and exit")
	rootCmd.Flags().StringVar(&output, "output", "table", "result format: table|json|csv")
	rootCmd.Flags().StringVar(&importNodesCSV, "import-csv-nodes", "", "bulk-import nodes from a CSV file before running")
	rootCmd.Flags().StringVar(&importEdgesCSV, "import-csv-edges", "", "bulk-import edges from a CSV file before running")
	rootCmd.Flags().StringVar(&configFile, "config", "", "optional YAML config file overriding environment defaults")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("deepgraph v%s\n", version)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Report node/edge counts and on-disk size for a database directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(databaseDir)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type runOptions struct {
	databaseDir    string
	query          string
	output         string
	importNodesCSV string
	importEdgesCSV string
	configFile     string
}

func run(opts runOptions) error {
	var cfg *config.Config
	var err error
	if opts.configFile != "" {
		cfg, err = config.LoadFromFile(opts.configFile)
	} else {
		cfg = config.LoadFromEnv()
		err = cfg.Validate()
	}
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if opts.databaseDir != "" {
		cfg.Database.DataDir = opts.databaseDir
	}

	db, err := engine.OpenDisk(cfg.Database.DataDir)
	if err != nil {
		return fmt.Errorf("opening database at %s: %w", cfg.Database.DataDir, err)
	}
	defer db.Close()

	if opts.importNodesCSV != "" || opts.importEdgesCSV != "" {
		if err := runImport(db, opts.importNodesCSV, opts.importEdgesCSV); err != nil {
			return err
		}
	}

	formatter, err := formatterFor(opts.output)
	if err != nil {
		return err
	}

	if opts.query != "" {
		rs, err := db.ExecuteCypher(opts.query)
		if err != nil {
			return err
		}
		return formatter(os.Stdout, rs)
	}

	return runShell(db, formatter)
}

// runStats prints spec.md §4.8's size_on_disk_bytes statistic, along with
// node/edge counts, in a human-readable form.
func runStats(dir string) error {
	if dir == "" {
		dir = "./data"
	}
	db, err := engine.OpenDisk(dir)
	if err != nil {
		return fmt.Errorf("opening database at %s: %w", dir, err)
	}
	defer db.Close()

	size, err := db.SizeOnDiskBytes()
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	fmt.Printf("nodes: %d\n", db.NodeCount())
	fmt.Printf("edges: %d\n", db.EdgeCount())
	fmt.Printf("size on disk: %s (%d bytes)\n", humanize.Bytes(uint64(size)), size)
	return nil
}

func runShell(db *engine.DiskStorage, formatter resultFormatter) error {
	fmt.Println("deepgraph shell — type a Cypher query, or 'exit'/'quit' to leave")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("deepgraph> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		rs, err := db.ExecuteCypher(line)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		if err := formatter(os.Stdout, rs); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
}
