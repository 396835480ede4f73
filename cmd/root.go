package cmd

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/findy-network/findy-wallet/agent/history"
	"github.com/findy-network/findy-wallet/agent/storage"
	"github.com/findy-network/findy-wallet/agent/utils"
	"github.com/findy-network/findy-wallet/agent/wallet"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "FWALLET"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Version: utils.Version,
	Use:     "findy-wallet",
	Short:   "Findy wallet cli tool",
	Long: `
Findy wallet cli tool for managing the identities of the wallet state file,
inspecting the session and querying the ledger and the history indexer.
	`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ParseLoggingArgs(rootFlags.logging)
		handleViperFlags(cmd)
		rootFlags.apply()
	},
}

// Execute root
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// To fix errors printed twice removing the cobra generators next
		// see: https://github.com/spf13/cobra/issues/304
		// fmt.Println(err)

		os.Exit(1)
	}
}

// RootCmd returns a current root command which can be used for adding own
// commands in an own repo.
func RootCmd() *cobra.Command {
	return rootCmd
}

// DryRun returns a value of a dry run flag.
func DryRun() bool {
	return rootFlags.dryRun
}

// RootFlags are the common flags
type RootFlags struct {
	cfgFile string
	dryRun  bool
	logging string

	db         string
	dbKey      string
	backupDir  string
	rpc        string
	indexer    string
	timeout    time.Duration
	attempts   int
	retryDelay time.Duration
}

var rootFlags = RootFlags{}

var rootEnvs = map[string]string{
	"config":      "CONFIG",
	"logging":     "LOGGING",
	"dry-run":     "DRY_RUN",
	"db":          "DB",
	"db-key":      "DB_KEY",
	"backup-dir":  "BACKUP_DIR",
	"rpc":         "RPC",
	"indexer":     "INDEXER",
	"timeout":     "TIMEOUT",
	"attempts":    "ATTEMPTS",
	"retry-delay": "RETRY_DELAY",
}

func init() {
	defer err2.Catch(err2.Err(func(err error) {
		log.Println(err)
	}))

	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&rootFlags.cfgFile, "config", "", flagInfo("configuration file", "", rootEnvs["config"]))
	flags.StringVar(&rootFlags.logging, "logging", "-logtostderr=true -v=1", flagInfo("logging startup arguments", "", rootEnvs["logging"]))
	flags.BoolVarP(&rootFlags.dryRun, "dry-run", "n", false, flagInfo("perform a trial run with no changes made", "", rootEnvs["dry-run"]))
	flags.StringVar(&rootFlags.db, "db", utils.DefaultStatePath(), flagInfo("wallet state file", "", rootEnvs["db"]))
	flags.StringVar(&rootFlags.dbKey, "db-key", "", flagInfo("hex encoded 32 byte key to seal the state file", "", rootEnvs["db-key"]))
	flags.StringVar(&rootFlags.backupDir, "backup-dir", "", flagInfo("directory for state backups", "", rootEnvs["backup-dir"]))
	flags.StringVar(&rootFlags.rpc, "rpc", "", flagInfo("ledger node JSON-RPC URL", "", rootEnvs["rpc"]))
	flags.StringVar(&rootFlags.indexer, "indexer", "", flagInfo("history indexer URL, --rpc if empty", "", rootEnvs["indexer"]))
	flags.DurationVar(&rootFlags.timeout, "timeout", utils.RPCTimeout, flagInfo("timeout of node calls", "", rootEnvs["timeout"]))
	flags.IntVar(&rootFlags.attempts, "attempts", utils.HistoryAttempts, flagInfo("history attempts", "", rootEnvs["attempts"]))
	flags.DurationVar(&rootFlags.retryDelay, "retry-delay", utils.HistoryDelay, flagInfo("delay between history attempts", "", rootEnvs["retry-delay"]))

	for flagKey := range rootEnvs {
		if flagKey == "config" {
			continue
		}
		try.To(viper.BindPFlag(flagKey, flags.Lookup(flagKey)))
	}
	try.To(BindEnvs(rootEnvs, ""))
}

func initConfig() {
	viper.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer("-", "_")
	viper.SetEnvKeyReplacer(replacer)
	readConfigFile()
	readBoundRootFlags()
}

func readBoundRootFlags() {
	rootFlags.logging = viper.GetString("logging")
	rootFlags.dryRun = viper.GetBool("dry-run")
	rootFlags.db = viper.GetString("db")
	rootFlags.dbKey = viper.GetString("db-key")
	rootFlags.backupDir = viper.GetString("backup-dir")
	rootFlags.rpc = viper.GetString("rpc")
	rootFlags.indexer = viper.GetString("indexer")
	rootFlags.timeout = viper.GetDuration("timeout")
	rootFlags.attempts = viper.GetInt("attempts")
	rootFlags.retryDelay = viper.GetDuration("retry-delay")
}

func readConfigFile() {
	cfgEnv := os.Getenv(getEnvName("", "config"))
	if rootFlags.cfgFile != "" || cfgEnv != "" {
		printInfo := true
		if rootFlags.cfgFile == "" {
			rootFlags.cfgFile = cfgEnv
			printInfo = false
		}
		viper.SetConfigFile(rootFlags.cfgFile)
		// If a config file is found, read it in.
		if err := viper.ReadInConfig(); err == nil && printInfo {
			fmt.Println("Using config file:", viper.ConfigFileUsed())
		}
	}
}

// apply moves the flag values to the settings hub.
func (f RootFlags) apply() {
	utils.Settings.SetStatePath(f.db)
	utils.Settings.SetStateKey(f.dbKey)
	utils.Settings.SetBackupDir(f.backupDir)
	utils.Settings.SetRPCURL(f.rpc)
	utils.Settings.SetIndexerURL(f.indexer)
	utils.Settings.SetTimeout(f.timeout)
	utils.Settings.SetHistoryAttempts(f.attempts)
	utils.Settings.SetHistoryDelay(f.retryDelay)
}

// BindEnvs calls viper.BindEnv with envMap and cmdName which can be empty if
// flag is general.
func BindEnvs(envMap map[string]string, cmdName string) (err error) {
	defer err2.Handle(&err)

	for flagKey, envName := range envMap {
		finalEnvName := getEnvName(cmdName, envName)
		try.To(viper.BindEnv(flagKey, finalEnvName))
	}
	return nil
}

func flagInfo(info, cmdPrefix, envName string) string {
	return info + ", " + getEnvName(cmdPrefix, envName)
}

func getEnvName(cmdName, envName string) string {
	if cmdName == "" {
		return envPrefix + "_" + strings.ToUpper(envName)
	}
	return envPrefix + "_" + strings.ToUpper(cmdName) + "_" + envName
}

func handleViperFlags(cmd *cobra.Command) {
	setRequiredStringFlags(cmd)
	if cmd.HasParent() {
		handleViperFlags(cmd.Parent())
	}
}

func setRequiredStringFlags(cmd *cobra.Command) {
	defer err2.Catch(err2.Err(func(err error) {
		log.Println(err)
	}))

	try.To(viper.BindPFlags(cmd.LocalFlags()))
	if cmd.PreRunE != nil {
		try.To(cmd.PreRunE(cmd, nil))
	}
	cmd.LocalFlags().VisitAll(func(f *pflag.Flag) {
		if viper.GetString(f.Name) != "" {
			try.To(cmd.LocalFlags().Set(f.Name, viper.GetString(f.Name)))
		}
	})
}

// SubCmdNeeded prints the help and error messages because the cmd is abstract.
func SubCmdNeeded(cmd *cobra.Command) {
	fmt.Println("Subcommand needed!")
	_ = cmd.Help()
	os.Exit(1)
}

// ParseLoggingArgs parses the glog flags given as one string like
// "-logtostderr=true -v=2".
func ParseLoggingArgs(s string) {
	args := make([]string, 1, 12)
	args[0] = os.Args[0]
	args = append(args, strings.Fields(s)...)
	orgArgs := os.Args
	os.Args = args
	flag.Parse()
	os.Args = orgArgs
}

// openWallet opens the wallet of the state file in the settings. The caller
// closes it.
func openWallet() (w *wallet.Wallet, err error) {
	defer err2.Handle(&err)

	path := utils.Settings.StatePath()
	try.To(os.MkdirAll(filepath.Dir(path), 0700))

	cfg := wallet.Config{
		Storage: storage.Config{
			Filename:  path,
			Key:       utils.Settings.StateKey(),
			BackupDir: utils.Settings.BackupDir(),
		},
		History: history.Config{
			Attempts: utils.Settings.HistoryAttempts(),
			Delay:    utils.Settings.HistoryDelay(),
		},
	}
	if url := utils.Settings.IndexerURL(); url != "" {
		ctx, cancel := timeoutCtx()
		defer cancel()
		cfg.Indexer = try.To1(history.DialIndexer(ctx, url))
	}
	return wallet.New(cfg)
}

func timeoutCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), utils.Settings.Timeout())
}
