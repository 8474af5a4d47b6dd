package db

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/imdb/cmd/util"
	"github.com/ValentinKolb/imdb/lib/imdb"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance test of an in-memory database",
		Long:    "Runs insert, get, scan and delete loops against a fresh in-memory database and reports latency percentiles per operation.",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfObjects    = 100000
	perfThreads    = 4
	perfValueSize  = 64
	perfBlockSize  = imdb.DefaultBlockSize
	perfSkip       = make([]string, 0)
	perfPercentile = []float64{0.5, 0.9, 0.99}
)

func init() {
	key := "objects"
	perfTestCmd.Flags().Int(key, 100000, util.WrapString("Number of objects per operation"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 4, util.WrapString("Number of goroutines sharing the database"))
	key = "value-size"
	perfTestCmd.Flags().Int(key, 64, util.WrapString("Payload size of the inserted objects in bytes"))
	key = "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. scan,delete)"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfObjects = viper.GetInt("objects")
	perfThreads = viper.GetInt("threads")
	perfValueSize = viper.GetInt("value-size")
	if bs := viper.GetInt("block-size"); bs > 0 {
		perfBlockSize = bs
	}
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	if perfObjects <= 0 || perfThreads <= 0 || perfValueSize <= 0 {
		return fmt.Errorf("objects, threads and value-size must be positive")
	}
	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for imdb")

	db, err := imdb.Open(imdb.DBDef{BlockSize: perfBlockSize})
	if err != nil {
		return err
	}
	defer func() { _ = db.Done() }()

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Print(db.Def().String())
	fmt.Printf("Objects: %d, threads: %d, value size: %dB\n", perfObjects, perfThreads, perfValueSize)
	fmt.Println()

	h, err := db.ClassCreate(imdb.ClassDef{Name: "perf", Variable: true, PageBlocks: 64})
	if err != nil {
		return err
	}

	registry := gometrics.NewRegistry()
	value := make([]byte, perfValueSize)
	ids := make([]imdb.RowID, perfObjects)

	fmt.Println("starting tests...")

	if !shouldSkip("insert") {
		parallel(registry, "insert", func(i int) error {
			obj, err := db.InsertData(h, value)
			if err != nil {
				return err
			}
			ids[i] = obj.ID
			return nil
		})
	}

	if !shouldSkip("get") && !shouldSkip("insert") {
		parallel(registry, "get", func(i int) error {
			_, err := db.Get(h, ids[i])
			return err
		})
	}

	if !shouldSkip("scan") {
		timer := gometrics.GetOrRegisterTimer("scan", registry)
		cur, err := db.Query(h, imdb.PathNone)
		if err != nil {
			return err
		}
		for {
			start := time.Now()
			objs, err := db.Fetch(cur, 64)
			if len(objs) > 0 {
				timer.UpdateSince(start)
			}
			if errors.Is(err, imdb.ErrCursorNoDataFound) {
				break
			}
			if err != nil {
				util.Logger.Errorf("(scan) - error fetching objects: %v", err)
				break
			}
		}
		_ = db.Close(cur)
	}

	if !shouldSkip("delete") && !shouldSkip("insert") {
		parallel(registry, "delete", func(i int) error {
			return db.Delete(h, ids[i])
		})
	}

	fmt.Println()
	printResults(registry)

	info, err := db.Info()
	if err != nil {
		return err
	}
	fmt.Printf("\nblock allocs: %d, page allocs: %d, splits: %d\n", info.Stats.BlockAlloc, info.Stats.PageAlloc, info.Stats.SlotSplit)
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// parallel runs op for every object index, spread over perfThreads goroutines,
// and records each call in the timer called name
func parallel(registry gometrics.Registry, name string, op func(i int) error) {
	timer := gometrics.GetOrRegisterTimer(name, registry)
	errs := gometrics.GetOrRegisterCounter(name+".errors", registry)

	var wg sync.WaitGroup
	for t := 0; t < perfThreads; t++ {
		wg.Add(1)
		go func(t int) {
			defer wg.Done()
			for i := t; i < perfObjects; i += perfThreads {
				start := time.Now()
				if err := op(i); err != nil {
					errs.Inc(1)
					util.Logger.Errorf("(%s) - error: %v", name, err)
					continue
				}
				timer.UpdateSince(start)
			}
		}(t)
	}
	wg.Wait()
}

func printResults(registry gometrics.Registry) {
	fmt.Printf("%-8s %10s %12s %12s %12s %12s %8s\n", "op", "count", "mean", "p50", "p90", "p99", "errors")
	for _, name := range []string{"insert", "get", "scan", "delete"} {
		timer, ok := registry.Get(name).(gometrics.Timer)
		if !ok {
			continue
		}
		ps := timer.Percentiles(perfPercentile)
		var errCount int64
		if c, ok := registry.Get(name + ".errors").(gometrics.Counter); ok {
			errCount = c.Count()
		}
		fmt.Printf("%-8s %10d %12s %12s %12s %12s %8d\n",
			name,
			timer.Count(),
			time.Duration(timer.Mean()),
			time.Duration(ps[0]),
			time.Duration(ps[1]),
			time.Duration(ps[2]),
			errCount,
		)
	}
}
