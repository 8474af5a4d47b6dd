package db

import (
	"errors"
	"strconv"

	"github.com/ValentinKolb/imdb/cmd/util"
	"github.com/ValentinKolb/imdb/lib/imdb"
	"github.com/spf13/cobra"
)

var (
	// DBCommands represents the database command group
	DBCommands = &cobra.Command{
		Use:               "db",
		Short:             "Inspect and modify a database file",
		PersistentPreRunE: bindFlags,
	}
)

func init() {
	// Add database flags to the db command
	util.SetupDBFlags(DBCommands)

	// Add subcommands
	DBCommands.AddCommand(infoCmd)
	DBCommands.AddCommand(classCreateCmd)
	DBCommands.AddCommand(insertCmd)
	DBCommands.AddCommand(getCmd)
	DBCommands.AddCommand(deleteCmd)
	DBCommands.AddCommand(scanCmd)
	DBCommands.AddCommand(metricsCmd)
	DBCommands.AddCommand(perfTestCmd)
}

func bindFlags(cmd *cobra.Command, _ []string) error {
	return util.BindCommandFlags(cmd)
}

// withDB opens the database file, runs fn and closes the database again.
// Changes are flushed by Done.
func withDB(fn func(db *imdb.DB) error) error {
	def, err := util.GetDBDef()
	if err != nil {
		return err
	}
	db, err := imdb.Open(def, util.GetDBOptions()...)
	if err != nil {
		return err
	}
	util.Logger.Debugf("opened %s", def.Path)

	fnErr := fn(db)
	if err := db.Done(); err != nil && fnErr == nil {
		return err
	}
	return fnErr
}

// classHandle resolves a class by name or handle number
func classHandle(db *imdb.DB, name string) (imdb.ClassHandle, error) {
	h, err := db.ClassFind(name)
	if err == nil || !errors.Is(err, imdb.ErrEntryNotFound) {
		return h, err
	}
	n, perr := strconv.ParseUint(name, 10, 16)
	if perr != nil {
		return 0, err
	}
	if _, ierr := db.ClassInfo(imdb.ClassHandle(n)); ierr != nil {
		return 0, err
	}
	return imdb.ClassHandle(n), nil
}
