package pgpagebackup

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/wal-g/tracelog"

	"github.com/wal-g/pgpagebackup/internal/pagebackup"
	"github.com/wal-g/pgpagebackup/internal/streamcodec"

	_ "github.com/wal-g/pgpagebackup/internal/streamcodec/bzip2"
	_ "github.com/wal-g/pgpagebackup/internal/streamcodec/gzip"
	_ "github.com/wal-g/pgpagebackup/internal/streamcodec/lzma"
	_ "github.com/wal-g/pgpagebackup/internal/streamcodec/none"
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore a PostgreSQL data directory from backup_path",
	Args:  cobra.NoArgs,
	Run:   runRestore,
}

var (
	restorePgData     string
	restorePath       string
	restoreCompress   string
	restoreTmpDir     string
	restoreExclude    string
	restoreRetries    int
	restorePause      int
	restoreParallel   int
	restoreTablespace string
	restoreBlockSize  uint16
	restoreMagic      uint32
	restoreBandwidth  int
	restoreTsBW       string
	restoreRsyncArgs  string
)

func init() {
	RootCmd.AddCommand(restoreCmd)

	flags := restoreCmd.Flags()
	flags.StringVarP(&restorePgData, "pgdata", "D", "/var/lib/pgsql/data", "data directory root")
	flags.StringVarP(&restorePath, "backup-path", "b", "", "remote/local backup root (required)")
	flags.StringVarP(&restoreCompress, "compress", "c", "none", "codec the backup was written with")
	flags.StringVarP(&restoreTmpDir, "tmpdir", "t", "/tmp/barman", "scratch directory")
	flags.StringVarP(&restoreExclude, "exclude", "e", "", "comma-separated globs (accepted but not applied by restore)")
	flags.IntVarP(&restoreRetries, "retries", "r", 5, "transport retries")
	flags.IntVarP(&restorePause, "pause", "s", 30, "seconds between retries")
	flags.IntVarP(&restoreParallel, "parallel", "p", 1, "worker count")
	flags.StringVarP(&restoreTablespace, "tablespaces", "T", "", "name:path,...")
	flags.Uint16VarP(&restoreBlockSize, "block-size", "Z", 8192, "page size in bytes")
	flags.Uint32VarP(&restoreMagic, "magic", "m", 2359285, "artifact magic u32")
	flags.IntVarP(&restoreBandwidth, "bandwidth-limit", "w", 0, "global KB/s cap")
	flags.StringVarP(&restoreTsBW, "tablespaces-bw", "W", "", "name:KBps,...")
	flags.StringVarP(&restoreRsyncArgs, "rsync-args", "R", " -v", "transport extra args")

	for _, name := range []string{"pgdata", "backup-path", "compress", "tmpdir", "exclude",
		"retries", "pause", "parallel", "tablespaces", "block-size", "magic",
		"bandwidth-limit", "tablespaces-bw", "rsync-args"} {
		bindEnv(restoreCmd, name)
	}
}

func runRestore(cmd *cobra.Command, args []string) {
	restorePgData = viper.GetString("pgdata")
	restorePath = viper.GetString("backup-path")
	restoreCompress = viper.GetString("compress")
	restoreTmpDir = viper.GetString("tmpdir")
	restoreExclude = viper.GetString("exclude")
	restoreRetries = viper.GetInt("retries")
	restorePause = viper.GetInt("pause")
	restoreParallel = viper.GetInt("parallel")
	restoreTablespace = viper.GetString("tablespaces")
	restoreBlockSize = uint16(viper.GetUint32("block-size"))
	restoreMagic = viper.GetUint32("magic")
	restoreBandwidth = viper.GetInt("bandwidth-limit")
	restoreTsBW = viper.GetString("tablespaces-bw")
	restoreRsyncArgs = viper.GetString("rsync-args")

	if restorePath == "" {
		tracelog.ErrorLogger.Fatal("restore: -b/--backup-path is required")
	}

	codecSpec, err := streamcodec.ParseSpec(restoreCompress)
	tracelog.ErrorLogger.FatalOnError(err)

	tablespaces, err := pagebackup.ParseTablespaces(restoreTablespace)
	tracelog.ErrorLogger.FatalOnError(err)

	tsBW, err := pagebackup.ParseBandwidthMap(restoreTsBW)
	tracelog.ErrorLogger.FatalOnError(err)

	cfg := pagebackup.Config{
		PgData:        restorePgData,
		BackupPath:    restorePath,
		TmpDir:        restoreTmpDir,
		Codec:         codecSpec,
		ExcludeGlobs:  splitNonEmpty(restoreExclude),
		Retries:       restoreRetries,
		PauseS:        restorePause,
		Parallel:      restoreParallel,
		BlockSize:     restoreBlockSize,
		Magic:         restoreMagic,
		BandwidthKBps: restoreBandwidth,
		TablespaceBW:  tsBW,
		RsyncArgs:     splitNonEmpty(restoreRsyncArgs),
		Verbosity:     verbosity,
	}

	orchestrator := pagebackup.NewOrchestrator(cfg, tablespaces)
	if err := orchestrator.Restore(context.Background()); err != nil {
		tracelog.ErrorLogger.Fatal(err)
	}
}
