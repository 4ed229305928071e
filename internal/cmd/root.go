package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// globals are the flags shared by every subcommand.
type globals struct {
	configPath string
	output     string
}

func NewRootCommand() *cobra.Command {
	g := &globals{}

	var cmd = &cobra.Command{
		Use:   "docket",
		Short: "Archive the published DOJ document datasets",
		Long: `docket downloads the published datasets as archives or torrents and,
for datasets only available as individual documents, walks the listing pages
and keeps a resumable index of every document found.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Path to config file")
	cmd.PersistentFlags().StringVarP(&g.output, "output", "o", "", "Output directory (overrides config)")

	cmd.AddCommand(newListCommand(g))
	cmd.AddCommand(newDownloadCommand(g))
	cmd.AddCommand(newScrapeCommand(g))
	cmd.AddCommand(newResumeCommand(g))
	cmd.AddCommand(newStatusCommand(g))
	cmd.AddCommand(newDiagnoseCommand(g))
	cmd.AddCommand(newServeCommand(g))
	cmd.AddCommand(newExportCommand(g))

	return cmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
