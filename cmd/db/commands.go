package db

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ValentinKolb/imdb/lib/dtlv"
	"github.com/ValentinKolb/imdb/lib/imdb"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints the definition, counters and classes of the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *imdb.DB) error {
				info, err := db.Info()
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(info)
				}
				fmt.Printf("ID: %s\n", info.ID)
				fmt.Print(db.Def().String())
				fmt.Printf("Classes: %d\n", len(info.Classes))
				for _, ci := range info.Classes {
					fmt.Print(ci.String())
				}
				return nil
			})
		},
	}
	classCreateCmd = &cobra.Command{
		Use:   "class-create [name]",
		Short: "Creates a new object class",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def := imdb.ClassDef{
				Name:       args[0],
				Recycle:    viper.GetBool("recycle"),
				Variable:   viper.GetBool("variable"),
				Unique:     viper.GetBool("unique"),
				AppendOnly: viper.GetBool("append-only"),
				InitBlocks: viper.GetInt("init-blocks"),
				PagesMax:   viper.GetInt("pages-max"),
				PageBlocks: viper.GetInt("page-blocks"),
				ObjSize:    viper.GetInt("obj-size"),
			}
			return withDB(func(db *imdb.DB) error {
				h, err := db.ClassCreate(def)
				if err != nil {
					return err
				}
				ci, err := db.ClassInfo(h)
				if err != nil {
					return err
				}
				fmt.Printf("created class %d: %s\n", h, ci.Def)
				return nil
			})
		},
	}
	insertCmd = &cobra.Command{
		Use:   "insert [class] [value]",
		Short: "Inserts an object and prints its rowid",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := payload(args[1])
			if err != nil {
				return err
			}
			return withDB(func(db *imdb.DB) error {
				h, err := classHandle(db, args[0])
				if err != nil {
					return err
				}
				obj, err := db.InsertData(h, data)
				if err != nil {
					return err
				}
				fmt.Println(obj.ID)
				return nil
			})
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [class] [rowid]",
		Short: "Reads the object stored at a rowid",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := imdb.ParseRowID(args[1])
			if err != nil {
				return err
			}
			return withDB(func(db *imdb.DB) error {
				h, err := classHandle(db, args[0])
				if err != nil {
					return err
				}
				obj, err := db.Get(h, id)
				if err != nil {
					return err
				}
				printObject(obj)
				return nil
			})
		},
	}
	deleteCmd = &cobra.Command{
		Use:   "delete [class] [rowid]",
		Short: "Deletes the object stored at a rowid",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := imdb.ParseRowID(args[1])
			if err != nil {
				return err
			}
			return withDB(func(db *imdb.DB) error {
				h, err := classHandle(db, args[0])
				if err != nil {
					return err
				}
				if err := db.Delete(h, id); err != nil {
					return err
				}
				fmt.Println("delete successfully")
				return nil
			})
		},
	}
	scanCmd = &cobra.Command{
		Use:   "scan [class]",
		Short: "Lists the objects of a class, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := imdb.PathNone
			if p := viper.GetString("path"); p != "" {
				var err error
				if path, err = dtlv.ParsePath(p); err != nil {
					return err
				}
			}
			batch := viper.GetInt("batch")
			limit := viper.GetInt("limit")

			return withDB(func(db *imdb.DB) error {
				h, err := classHandle(db, args[0])
				if err != nil {
					return err
				}
				cur, err := db.Query(h, path)
				if err != nil {
					return err
				}
				defer func() { _ = db.Close(cur) }()

				count := 0
				for limit <= 0 || count < limit {
					objs, err := db.Fetch(cur, batch)
					for _, obj := range objs {
						if limit > 0 && count >= limit {
							break
						}
						printObject(obj)
						count++
					}
					if errors.Is(err, imdb.ErrCursorNoDataFound) {
						break
					}
					if err != nil {
						return err
					}
				}
				fmt.Printf("%d objects\n", count)
				return nil
			})
		},
	}
	metricsCmd = &cobra.Command{
		Use:   "metrics",
		Short: "Prints the counters of the database in Prometheus text format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(func(db *imdb.DB) error {
				return db.WriteMetrics(os.Stdout)
			})
		},
	}
)

func init() {
	infoCmd.Flags().Bool("json", false, "Print the info as JSON")

	classCreateCmd.Flags().Bool("variable", false, "Store objects of any size")
	classCreateCmd.Flags().Bool("recycle", false, "Reuse the oldest block once all pages are used")
	classCreateCmd.Flags().Bool("unique", false, "Reject objects whose payload already exists")
	classCreateCmd.Flags().Bool("append-only", false, "Never reuse the space of deleted objects")
	classCreateCmd.Flags().Int("obj-size", 0, "Object size of a fixed size class")
	classCreateCmd.Flags().Int("init-blocks", 1, "Blocks formatted on creation")
	classCreateCmd.Flags().Int("pages-max", 0, "Maximum number of pages, 0 means unlimited")
	classCreateCmd.Flags().Int("page-blocks", 8, "Blocks per page")

	insertCmd.Flags().Bool("hex", false, "The value is hex encoded")

	scanCmd.Flags().String("path", "", "Only list objects with a DTLV attribute at this path, e.g. 10/*/3")
	scanCmd.Flags().Int("batch", 32, "Objects fetched per cursor call")
	scanCmd.Flags().Int("limit", 0, "Stop after this many objects, 0 lists all")

	for _, c := range []*cobra.Command{getCmd, scanCmd} {
		c.Flags().Bool("dtlv", false, "Render payloads as DTLV JSON")
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func payload(arg string) ([]byte, error) {
	if !viper.GetBool("hex") {
		return []byte(arg), nil
	}
	data, err := hex.DecodeString(arg)
	if err != nil {
		return nil, fmt.Errorf("value is not hex: %w", err)
	}
	return data, nil
}

func printObject(obj imdb.Object) {
	if viper.GetBool("dtlv") {
		s, err := dtlv.ToJSON(obj.Data)
		if err != nil {
			fmt.Printf("%s %s (%v)\n", obj.ID, s, err)
			return
		}
		fmt.Printf("%s %s\n", obj.ID, s)
		return
	}
	fmt.Printf("%s %q\n", obj.ID, obj.Data)
}
