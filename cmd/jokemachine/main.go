package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	dbPath    string
	logLevel  string
	logFormat string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "jokemachine",
		Short:         "Collect jokes from the web, politely, without storing any twice",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	root.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default: from config)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default: from config)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: console or json (default: from config)")

	root.AddCommand(updateCmd())
	root.AddCommand(runCmd())
	root.AddCommand(countCmd())
	root.AddCommand(listCmd())
	root.AddCommand(addCmd())
	root.AddCommand(serveCmd())

	return root
}

func updateCmd() *cobra.Command {
	var (
		sources    []string
		amount     int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Run one update cycle for every enabled source",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(sources, amount, jsonOutput)
		},
	}

	cmd.Flags().StringSliceVar(&sources, "source", nil, "specific sources to update (e.g., reddit,sickipedia)")
	cmd.Flags().IntVar(&amount, "amount", 0, "new records wanted per source (default: download_amount from config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print cycle reports as JSON")
	return cmd
}

func runCmd() *cobra.Command {
	var (
		interval string
		serve    bool
		port     int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Update all sources on a schedule until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(interval, serve, port)
		},
	}

	cmd.Flags().StringVar(&interval, "interval", "", "duration or cron expression (default: schedule.interval from config)")
	cmd.Flags().BoolVar(&serve, "serve", false, "also start the HTTP API")
	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func countCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "count",
		Short: "Show how many records each source contributed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCount(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func listCmd() *cobra.Command {
	var (
		jsonOutput bool
		source     string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the most recently stored records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(source, limit, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().StringVar(&source, "source", "", "only records with this source tag")
	cmd.Flags().IntVar(&limit, "limit", 20, "max records to show")
	return cmd
}

func addCmd() *cobra.Command {
	var title, author, url string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Store a joke typed on stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd.InOrStdin(), title, author, url)
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "joke title (required)")
	cmd.Flags().StringVar(&author, "author", "", "joke author")
	cmd.Flags().StringVar(&url, "url", "", "where the joke came from")
	cmd.MarkFlagRequired("title")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
