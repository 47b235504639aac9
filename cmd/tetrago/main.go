// Command tetrago is the CLI for the tetrago quad store: it serves the
// SPARQL endpoint and runs queries, updates, loads, and dumps against a
// store directory.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aleksaelezovic/tetrago/internal/storage"
	"github.com/aleksaelezovic/tetrago/pkg/rdf"
	"github.com/aleksaelezovic/tetrago/pkg/server"
	"github.com/aleksaelezovic/tetrago/pkg/server/results"
	"github.com/aleksaelezovic/tetrago/pkg/sparql"
	"github.com/aleksaelezovic/tetrago/pkg/sparql/executor"
	"github.com/aleksaelezovic/tetrago/pkg/store"
)

var (
	dataDir    string
	inMemory   bool
	logVerbose bool
)

func main() {
	root := &cobra.Command{
		Use:           "tetrago",
		Short:         "An RDF quad store with SPARQL 1.1 support",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&dataDir, "data", "d", "./tetrago_data", "store directory")
	root.PersistentFlags().BoolVar(&inMemory, "memory", false, "use an in-memory store")
	root.PersistentFlags().BoolVarP(&logVerbose, "verbose", "v", false, "debug logging")

	root.AddCommand(serveCmd(), queryCmd(), updateCmd(), loadCmd(), dumpCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if logVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func openStore(logger *slog.Logger) (*store.Store, error) {
	var backend store.Storage
	var err error
	if inMemory {
		backend, err = storage.NewMemoryStorage(logger)
	} else {
		backend, err = storage.NewBadgerStorage(dataDir, logger)
	}
	if err != nil {
		return nil, err
	}
	return store.NewStore(backend, logger)
}

func serveCmd() *cobra.Command {
	var configPath string
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the SPARQL HTTP endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, err := server.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}

			st, err := openStore(logger)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			return server.New(cfg, st, logger).ListenAndServe()
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "tetrago.yaml", "config file")
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (overrides config)")
	return cmd
}

func queryCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "query <sparql>",
		Short: "Run a SPARQL query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			st, err := openStore(logger)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			engine := sparql.NewEngine(st, nil, logger)
			result, err := engine.Query(context.Background(), args[0])
			if err != nil {
				return err
			}

			switch res := result.(type) {
			case *executor.SelectResult:
				set, err := results.Drain(res)
				if err != nil {
					return err
				}
				payload, err := results.FormatSelect(set, resultsFormat(format))
				if err != nil {
					return err
				}
				_, err = os.Stdout.Write(payload)
				return err
			case *executor.AskResult:
				payload, err := results.FormatAsk(res.Result, resultsFormat(format))
				if err != nil {
					return err
				}
				_, err = os.Stdout.Write(payload)
				return err
			case *executor.GraphResult:
				return rdf.Serialize(os.Stdout, res.Quads, rdf.FormatNQuads)
			default:
				return fmt.Errorf("unknown result type %T", result)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "results format: json, xml, csv, tsv")
	return cmd
}

func resultsFormat(name string) results.Format {
	switch strings.ToLower(name) {
	case "xml":
		return results.FormatXML
	case "csv":
		return results.FormatCSV
	case "tsv":
		return results.FormatTSV
	default:
		return results.FormatJSON
	}
}

func updateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update <sparql>",
		Short: "Run a SPARQL update",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			st, err := openStore(logger)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			return sparql.NewEngine(st, nil, logger).Update(context.Background(), args[0])
		},
	}
}

func loadCmd() *cobra.Command {
	var graphIRI string
	var baseIRI string

	cmd := &cobra.Command{
		Use:   "load <file>...",
		Short: "Load RDF files into the store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			st, err := openStore(logger)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			for _, path := range args {
				format, err := rdf.FormatFromExtension(extOf(path))
				if err != nil {
					return err
				}
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				if format.SupportsDatasets() {
					err = st.LoadDataset(f, format, baseIRI)
				} else {
					var graph rdf.Term
					if graphIRI != "" {
						graph = rdf.NewNamedNode(graphIRI)
					}
					err = st.LoadGraph(f, format, baseIRI, graph)
				}
				_ = f.Close()
				if err != nil {
					return fmt.Errorf("failed to load %s: %w", path, err)
				}
				logger.Info("loaded file", slog.String("path", path))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&graphIRI, "graph", "g", "", "target graph IRI for graph formats")
	cmd.Flags().StringVarP(&baseIRI, "base", "b", "", "base IRI for relative references")
	return cmd
}

func dumpCmd() *cobra.Command {
	var formatName string
	var graphIRI string

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Dump the store to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			st, err := openStore(logger)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			format, err := rdf.FormatFromExtension(formatName)
			if err != nil {
				return err
			}
			if format.SupportsDatasets() {
				return st.DumpDataset(os.Stdout, format)
			}
			var graph rdf.Term
			if graphIRI != "" {
				graph = rdf.NewNamedNode(graphIRI)
			}
			return st.DumpGraph(os.Stdout, format, graph)
		},
	}
	cmd.Flags().StringVarP(&formatName, "format", "f", "nq", "output format: nt, nq, ttl, trig, rdf")
	cmd.Flags().StringVarP(&graphIRI, "graph", "g", "", "graph to dump for graph formats")
	return cmd
}

func extOf(path string) string {
	if idx := strings.LastIndex(path, "."); idx >= 0 {
		return path[idx+1:]
	}
	return ""
}
