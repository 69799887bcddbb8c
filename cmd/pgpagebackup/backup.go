package pgpagebackup

import (
	"context"
	"strconv"

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

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up a PostgreSQL data directory",
	Args:  cobra.NoArgs,
	Run:   runBackup,
}

var (
	backupPgData     string
	backupPath       string
	backupLSN        string
	backupAfter      int64
	backupCompress   string
	backupTmpDir     string
	backupExclude    string
	backupRetries    int
	backupPause      int
	backupFileList   string
	backupParallel   int
	backupTablespace string
	backupBlockSize  uint16
	backupMagic      uint32
	backupBandwidth  int
	backupTsBW       string
	backupInclude    string
	backupRsyncArgs  string
)

func init() {
	RootCmd.AddCommand(backupCmd)

	flags := backupCmd.Flags()
	flags.StringVarP(&backupPgData, "pgdata", "D", "/var/lib/pgsql/data", "data directory root")
	flags.StringVarP(&backupPath, "backup-path", "b", "", "remote/local backup root (required)")
	flags.StringVarP(&backupLSN, "lsn", "l", "", "incremental watermark (backup only); empty means full")
	flags.Int64VarP(&backupAfter, "after", "a", 0, "unix-time mtime cutoff for the unchanged shortcut")
	flags.StringVarP(&backupCompress, "compress", "c", "none", "none|gzip[-L]|bzip2[-L]|lzma[-L]")
	flags.StringVarP(&backupTmpDir, "tmpdir", "t", "/tmp/barman", "scratch directory")
	flags.StringVarP(&backupExclude, "exclude", "e", "*pg_xlog/*,*pg_log/*,*pg_stat_tmp/*,*pg_replslot/*", "comma-separated globs")
	flags.IntVarP(&backupRetries, "retries", "r", 5, "transport retries")
	flags.IntVarP(&backupPause, "pause", "s", 30, "seconds between retries")
	flags.StringVarP(&backupFileList, "file-list", "f", "", "must be non-empty for an incremental backup; the value is not used as a location: the prior manifest is always read from <backup-path>/file.list")
	flags.IntVarP(&backupParallel, "parallel", "p", 1, "worker count")
	flags.StringVarP(&backupTablespace, "tablespaces", "T", "", "name:path,...")
	flags.Uint16VarP(&backupBlockSize, "block-size", "Z", 8192, "page size in bytes")
	flags.Uint32VarP(&backupMagic, "magic", "m", 2359285, "artifact magic u32")
	flags.IntVarP(&backupBandwidth, "bandwidth-limit", "w", 0, "global KB/s cap")
	flags.StringVarP(&backupTsBW, "tablespaces-bw", "W", "", "name:KBps,...")
	flags.StringVarP(&backupInclude, "include-files", "i", "", "comma-separated absolute paths to force-full")
	flags.StringVarP(&backupRsyncArgs, "rsync-args", "R", " -v", "transport extra args")

	for _, name := range []string{"pgdata", "backup-path", "lsn", "after", "compress", "tmpdir",
		"exclude", "retries", "pause", "file-list", "parallel", "tablespaces", "block-size",
		"magic", "bandwidth-limit", "tablespaces-bw", "include-files", "rsync-args"} {
		bindEnv(backupCmd, name)
	}
}

func runBackup(cmd *cobra.Command, args []string) {
	backupPgData = viper.GetString("pgdata")
	backupPath = viper.GetString("backup-path")
	backupLSN = viper.GetString("lsn")
	backupAfter = viper.GetInt64("after")
	backupCompress = viper.GetString("compress")
	backupTmpDir = viper.GetString("tmpdir")
	backupExclude = viper.GetString("exclude")
	backupRetries = viper.GetInt("retries")
	backupPause = viper.GetInt("pause")
	backupFileList = viper.GetString("file-list")
	backupParallel = viper.GetInt("parallel")
	backupTablespace = viper.GetString("tablespaces")
	backupBlockSize = uint16(viper.GetUint32("block-size"))
	backupMagic = viper.GetUint32("magic")
	backupBandwidth = viper.GetInt("bandwidth-limit")
	backupTsBW = viper.GetString("tablespaces-bw")
	backupInclude = viper.GetString("include-files")
	backupRsyncArgs = viper.GetString("rsync-args")

	if backupPath == "" {
		tracelog.ErrorLogger.Fatal("backup: -b/--backup-path is required")
	}

	codecSpec, err := streamcodec.ParseSpec(backupCompress)
	tracelog.ErrorLogger.FatalOnError(err)

	tablespaces, err := pagebackup.ParseTablespaces(backupTablespace)
	tracelog.ErrorLogger.FatalOnError(err)

	tsBW, err := pagebackup.ParseBandwidthMap(backupTsBW)
	tracelog.ErrorLogger.FatalOnError(err)

	cfg := pagebackup.Config{
		PgData:        backupPgData,
		BackupPath:    backupPath,
		TmpDir:        backupTmpDir,
		AfterUnix:     backupAfter,
		Codec:         codecSpec,
		ExcludeGlobs:  splitNonEmpty(backupExclude),
		Retries:       backupRetries,
		PauseS:        backupPause,
		Parallel:      backupParallel,
		BlockSize:     backupBlockSize,
		Magic:         backupMagic,
		BandwidthKBps: backupBandwidth,
		TablespaceBW:  tsBW,
		IncludeFiles:  splitNonEmpty(backupInclude),
		RsyncArgs:     splitNonEmpty(backupRsyncArgs),
		Verbosity:     verbosity,
	}
	if backupLSN != "" {
		lsn, parseErr := strconv.ParseUint(backupLSN, 10, 64)
		tracelog.ErrorLogger.FatalOnError(parseErr)
		cfg.Watermark = pagebackup.Watermark(lsn)
		if backupFileList == "" {
			tracelog.ErrorLogger.Fatal("backup: -f/--file-list is required for an incremental backup")
		}
	}

	orchestrator := pagebackup.NewOrchestrator(cfg, tablespaces)
	if err := orchestrator.Backup(context.Background()); err != nil {
		tracelog.ErrorLogger.Fatal(err)
	}
}

func splitNonEmpty(raw string) []string {
	if raw == "" {
		return nil
	}
	var result []string
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			if i > start {
				result = append(result, raw[start:i])
			}
			start = i + 1
		}
	}
	return result
}
