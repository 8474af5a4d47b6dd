package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/imdb/cmd/db"
	"github.com/ValentinKolb/imdb/cmd/dtlv"
	"github.com/ValentinKolb/imdb/cmd/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "imdb",
		Short: "embeddable object database",
		Long: fmt.Sprintf(`imdb (v%s)

An embeddable object database that stores fixed and variable size objects
in classes of pages and blocks, in memory or in a single file, together with
the DTLV tag-length-value codec used for structured payloads.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of imdb",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("imdb v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig, initLogging)

	// Add Commands
	RootCmd.AddCommand(db.DBCommands)
	RootCmd.AddCommand(dtlv.DTLVCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "log-level"
	RootCmd.PersistentFlags().String(key, "warn", util.WrapString("Log level (debug, info, warn, error)"))
	_ = viper.BindPFlag(key, RootCmd.PersistentFlags().Lookup(key))
}

func initLogging() {
	if err := util.InitLogging(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
