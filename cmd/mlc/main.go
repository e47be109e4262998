package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/media-janitor/internal/config"
	"github.com/franz/media-janitor/internal/util"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "mlc",
		Short: "Media Library Cleaner - find duplicate media and delete it safely",
		Long: `mlc (Media Library Cleaner) catalogs a media library, finds duplicate
files by content hash, filename pattern or pixel dimensions, and removes
copies through a recoverable trash: quarantined files can be restored until
their retention window expires and they are purged for good.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/mlc.yaml)")
	rootCmd.PersistentFlags().String("db", config.DefaultDB, "state database file")
	rootCmd.PersistentFlags().String("library", "", "media library root")
	rootCmd.PersistentFlags().String("trash", config.DefaultTrashDir, "trash directory for quarantined files")
	rootCmd.PersistentFlags().String("artifacts", config.DefaultArtifacts, "directory for event logs and reports")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored log output")

	// Bind flags to viper
	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("library", rootCmd.PersistentFlags().Lookup("library"))
	viper.BindPFlag("trash.dir", rootCmd.PersistentFlags().Lookup("trash"))
	viper.BindPFlag("artifacts", rootCmd.PersistentFlags().Lookup("artifacts"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	viper.BindPFlag("no_color", rootCmd.PersistentFlags().Lookup("no-color"))
}

func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in common locations
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.SetConfigName("mlc")
		viper.SetConfigType("yaml")
	}

	// MLC_TRASH_RETENTION maps to trash.retention
	viper.SetEnvPrefix("MLC")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	if viper.GetBool("no_color") || os.Getenv("NO_COLOR") != "" {
		util.SetColors(false)
	}

	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		util.InfoLog("Using config file: %s", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}
