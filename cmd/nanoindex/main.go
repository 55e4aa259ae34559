// Command nanoindex is a thin CLI wrapper over the nanoindex package,
// grounded on the teacher pack's cobra-based CLI shape (floop's
// rootCmd + persistent flags + one newXCmd per subcommand).
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/itisrohit/nanoindex"
	"github.com/itisrohit/nanoindex/config"
	"github.com/itisrohit/nanoindex/internal/kmeans"
	"github.com/itisrohit/nanoindex/search"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "nanoindex",
		Short: "NanoIndex - an adaptive vector similarity search engine",
	}

	rootCmd.PersistentFlags().String("data-dir", "", "data directory (overrides NANOINDEX_DATA_DIR)")
	rootCmd.PersistentFlags().Int("dim", 0, "vector dimension (overrides NANOINDEX_DIM)")
	rootCmd.PersistentFlags().Bool("json", false, "output as JSON")

	rootCmd.AddCommand(
		newAddCmd(),
		newSearchCmd(),
		newTrainCmd(),
		newStatsCmd(),
		newResetCmd(),
		newBackupCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openApp(cmd *cobra.Command) (*nanoindex.App, error) {
	var opts []config.Option
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		opts = append(opts, config.WithDataDir(v))
	}
	if v, _ := cmd.Flags().GetInt("dim"); v > 0 {
		opts = append(opts, config.WithDim(v))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, err
	}
	return nanoindex.Open(cfg)
}

func newAddCmd() *cobra.Command {
	var idsFlag []int64
	var vectorsFlag []string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add vectors with external IDs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(idsFlag) != len(vectorsFlag) {
				return fmt.Errorf("must pass exactly one --vector per --id")
			}
			vectors := make([][]float32, len(vectorsFlag))
			for i, v := range vectorsFlag {
				vec, err := parseVector(v)
				if err != nil {
					return err
				}
				vectors[i] = vec
			}

			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			rows, err := app.Add(cmd.Context(), vectors, idsFlag)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"rows": rows})
		},
	}
	cmd.Flags().Int64SliceVar(&idsFlag, "id", nil, "external ID (repeatable)")
	cmd.Flags().StringArrayVar(&vectorsFlag, "vector", nil, "comma-separated vector components (repeatable)")
	return cmd
}

func newSearchCmd() *cobra.Command {
	var vectorFlag string
	var topK int
	var nprobe, maxCodes int

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search for the nearest vectors to a query",
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := parseVector(vectorFlag)
			if err != nil {
				return err
			}

			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			hits, err := app.Search(cmd.Context(), query, topK, search.Params{NProbe: nprobe, MaxCodes: maxCodes})
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"hits": hits})
		},
	}
	cmd.Flags().StringVar(&vectorFlag, "vector", "", "comma-separated query vector")
	cmd.Flags().IntVar(&topK, "k", 10, "number of results")
	cmd.Flags().IntVar(&nprobe, "nprobe", 0, "IVF probes (0 uses the dispatched arm's setting)")
	cmd.Flags().IntVar(&maxCodes, "max-codes", 0, "IVF scan budget (0 uses the dispatched arm's setting)")
	return cmd
}

func newTrainCmd() *cobra.Command {
	var k int
	var seed int64

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the IVF index over the store's current vectors",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			cfg := kmeans.DefaultConfig()
			cfg.Seed = seed
			nTrained, err := app.Train(cmd.Context(), k, cfg)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"n_trained": nTrained})
		},
	}
	cmd.Flags().IntVar(&k, "k", 0, "number of IVF centroids")
	cmd.Flags().Int64Var(&seed, "seed", 0, "deterministic RNG seed")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print store and agent statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			return printJSON(cmd, map[string]any{
				"count":   app.Store.Len(),
				"dim":     app.Store.Dim(),
				"trained": app.Index.Trained(),
				"arms":    app.Agent.Stats(),
			})
		},
	}
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear the store, untrain the index, and reset the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()
			return app.Reset()
		},
	}
}

func newBackupCmd() *cobra.Command {
	var dest string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Flush store and agent state to disk ahead of an archive (writes no archive itself)",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Store.Flush(); err != nil {
				return err
			}
			if err := app.Agent.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "flushed store and agent state; archive %s with your configured backup store\n", dest)
			return nil
		},
	}
	cmd.Flags().StringVar(&dest, "dest", "", "backup destination key prefix")
	return cmd
}

func parseVector(s string) ([]float32, error) {
	var vec []float32
	var cur float64
	var start int
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				n, err := fmt.Sscanf(s[start:i], "%g", &cur)
				if err != nil || n != 1 {
					return nil, fmt.Errorf("invalid vector component %q", s[start:i])
				}
				vec = append(vec, float32(cur))
			}
			start = i + 1
		}
	}
	return vec, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
