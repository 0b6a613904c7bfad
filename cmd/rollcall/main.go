// Command rollcall operates the attendance store directly from a terminal.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rollcall/internal/app"
	"rollcall/internal/config"
	"rollcall/internal/logger"
)

var (
	envFile    string
	jsonOutput bool
	verbose    bool

	rt *app.App
)

var rootCmd = &cobra.Command{
	Use:   "rollcall",
	Short: "rollcall - local-first attendance operations",
	Long: `rollcall manages the roster, check-in sessions, attendance records
and reports stored by the rollcall api, using the same configuration
(environment variables or a .env file).`,
	PersistentPreRunE:  setupApp,
	PersistentPostRunE: teardownApp,
	SilenceUsage:       true,
	SilenceErrors:      true,
}

func setupApp(cmd *cobra.Command, _ []string) error {
	if cmd.Annotations["standalone"] == "true" {
		return nil
	}
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	cfg := config.Load()

	log := zap.NewNop()
	if verbose {
		var err error
		if log, err = logger.New(cfg.Env); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
	}
	var err error
	rt, err = app.New(cfg, log, app.Options{InlineDelivery: true})
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	return nil
}

func teardownApp(*cobra.Command, []string) error {
	if rt == nil {
		return nil
	}
	err := rt.Close()
	rt = nil
	return err
}

// printJSON writes v indented to the command output.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of tables")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr")

	rootCmd.AddCommand(tokenCmd, subjectCmd, sessionCmd, scanCmd, reportCmd, absencesCmd, storeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
