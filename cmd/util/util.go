package util

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ValentinKolb/imdb/lib/common"
	"github.com/ValentinKolb/imdb/lib/imdb"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

var Logger = logger.GetLogger("cli")

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads .env files and binds environment variables with the IMDB_ prefix
func InitConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("imdb")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// InitLogging installs the module loggers with the configured level
func InitLogging() error {
	return common.InitLoggers(viper.GetString("log-level"), os.Stderr)
}

// SetupDBFlags adds the database definition flags to a command
func SetupDBFlags(cmd *cobra.Command) {
	key := "file"
	cmd.PersistentFlags().String(key, "imdb.db", WrapString("Path of the database file"))

	key = "block-size"
	cmd.PersistentFlags().Int(key, 0, WrapString("Block size in bytes (256-32768). 0 uses the size of an existing file or 4096"))

	key = "crc"
	cmd.PersistentFlags().String(key, "none", WrapString("Checksum policy (none, write, read-write). none adopts the policy of an existing file"))

	key = "profile"
	cmd.PersistentFlags().String(key, "standard", WrapString("Header profile of a new file (standard, small-ram)"))

	key = "recovery-pages"
	cmd.PersistentFlags().Int(key, 0, WrapString("Dirty pages tolerated before an implicit flush, 0 disables implicit flushes"))

	key = "retries"
	cmd.PersistentFlags().Int(key, 3, WrapString("How many times to retry a failed block read or write"))

	key = "retry-backoff"
	cmd.PersistentFlags().Duration(key, 10*time.Millisecond, WrapString("Base backoff between retries"))

	key = "direct-io"
	cmd.PersistentFlags().Bool(key, false, WrapString("Bypass the page cache, the block size has to be a multiple of 4096"))
}

// GetDBDef builds a durable database definition from viper
func GetDBDef() (imdb.DBDef, error) {
	crc, err := imdb.ParseCRCPolicy(viper.GetString("crc"))
	if err != nil {
		return imdb.DBDef{}, err
	}
	profile, err := imdb.ParseProfile(viper.GetString("profile"))
	if err != nil {
		return imdb.DBDef{}, err
	}
	path := viper.GetString("file")
	if path == "" {
		return imdb.DBDef{}, fmt.Errorf("no database file given")
	}

	return imdb.DBDef{
		BlockSize:     viper.GetInt("block-size"),
		CRC:           crc,
		Durable:       true,
		RecoveryPages: viper.GetInt("recovery-pages"),
		Retries:       viper.GetInt("retries"),
		RetryBackoff:  viper.GetDuration("retry-backoff"),
		Path:          path,
		Profile:       profile,
	}, nil
}

// GetDBOptions returns the open options selected by flags
func GetDBOptions() []imdb.Option {
	var opts []imdb.Option
	if viper.GetBool("direct-io") {
		opts = append(opts, imdb.WithDirectIO())
	}
	return opts
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
