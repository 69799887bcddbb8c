// Package pgpagebackup implements the backup/restore CLI (component
// C8's external surface, spec.md §6), one root command with "backup"
// and "restore" subcommands, following the PgCmd + subcommand-registers-
// itself-in-init shape of the teacher's cmd/pg package.
package pgpagebackup

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/wal-g/tracelog"
)

const shortDescription = "Incremental page-level PostgreSQL backup/restore"

// RootCmd is the top-level pgpagebackup command.
var RootCmd = &cobra.Command{
	Use:   "pgpagebackup",
	Short: shortDescription,
}

// Execute runs the root command, exiting 1 on any fatal error
// (spec.md §6 exit codes).
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "verbosity (repeatable)")
}

var verbosity int

// initConfig binds every flag registered via bindEnv to its
// PGPAGEBACKUP_<NAME> environment variable, following
// internal/config.go's AddConfigFlags/InitConfig pattern, and sets
// tracelog's level from the repeated -v flag.
func initConfig() {
	viper.SetEnvPrefix("PGPAGEBACKUP")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	level := "ERROR"
	switch {
	case verbosity >= 2:
		level = "DEVEL"
	case verbosity == 1:
		level = "NORMAL"
	}
	if err := tracelog.UpdateLogLevel(level); err != nil {
		tracelog.ErrorLogger.Printf("invalid log level %q: %v", level, err)
	}
}

// bindEnv binds a flag on cmd to its PGPAGEBACKUP_<NAME> env var via
// viper, mirroring internal/config.go's flag/env binding.
func bindEnv(cmd *cobra.Command, name string) {
	_ = viper.BindPFlag(name, cmd.Flags().Lookup(name))
}
