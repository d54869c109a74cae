package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/revprox/revprox/internal/logger"
	"github.com/revprox/revprox/internal/orchestrator"
	"github.com/revprox/revprox/internal/output"
	"github.com/revprox/revprox/internal/storage"
)

var (
	jsonOutput bool
	verbose    bool
	force      bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "revprox <storage>",
	Short: "Reverse proxy certificate and configuration maintenance",
	Long: `revprox keeps a reverse proxy installation healthy from a declarative
specification: it obtains and renews wildcard Let's Encrypt certificates
through DNS-01 challenges, regenerates the NGINX configuration tree when
the specification changes, validates the result, and restarts NGINX.

The single argument is the storage root holding the config/ checkout and
receiving generated certs/ and nginx/ trees.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		layout, err := storage.NewLayout(args[0])
		if err != nil {
			return err
		}

		engine := orchestrator.New(layout, force)
		report, err := engine.Run()
		if err != nil {
			if report != nil && jsonOutput {
				_ = output.JSON(report)
			}
			return err
		}

		if jsonOutput {
			return output.JSON(report)
		}
		printReport(report)
		return nil
	},
}

func printReport(report *orchestrator.RunReport) {
	if report.NoOp {
		output.Info("Nothing to do: specification unchanged and all certificates healthy.")
		return
	}

	rows := make([][]string, 0, len(report.Domains))
	for _, r := range report.Domains {
		cert := r.CertAction
		if cert == "" {
			cert = "-"
		}
		rows = append(rows, []string{output.Domain(r.Domain), string(r.Status), cert, r.Reason})
	}
	output.Table([]string{"Domain", "Status", "Certificate", "Detail"}, rows)

	if report.Regenerated {
		output.Success("NGINX configuration regenerated.")
	}
}

// Execute runs the root command
func Execute() {
	cobra.OnInitialize(func() {
		logger.Init(verbose)
	})

	if err := rootCmd.Execute(); err != nil {
		output.Error("%v", err)
		os.Exit(1)
	}
}

// SetVersion sets the version string for the CLI
func SetVersion(v string) {
	rootCmd.Version = v
}

func init() {
	rootCmd.Flags().BoolVarP(&force, "force", "f", false, "Regenerate configuration even if the specification is unchanged")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging for debugging")
}
