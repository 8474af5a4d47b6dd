package imdb

import (
	"fmt"
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// Stats holds the allocator and I/O counters of a database
type Stats struct {
	BlockAlloc   uint64 `json:"block_alloc"`
	BlockRecycle uint64 `json:"block_recycle"`
	PageAlloc    uint64 `json:"page_alloc"`
	SlotData     uint64 `json:"slot_data"`
	SlotSplit    uint64 `json:"slot_split"`
	SlotFree     uint64 `json:"slot_free"`
	BlockRead    uint64 `json:"block_read"`
	BlockWrite   uint64 `json:"block_write"`
	HeaderRead   uint64 `json:"header_read"`
	HeaderWrite  uint64 `json:"header_write"`
}

// dbStats keeps the counters of one database in its own metrics set, so
// several instances in one process do not share counters
type dbStats struct {
	id  string
	set *metrics.Set

	blockAlloc   *metrics.Counter
	blockRecycle *metrics.Counter
	pageAlloc    *metrics.Counter
	slotData     *metrics.Counter
	slotSplit    *metrics.Counter
	slotFree     *metrics.Counter
	blockRead    *metrics.Counter
	blockWrite   *metrics.Counter
	headerRead   *metrics.Counter
	headerWrite  *metrics.Counter
}

func newDBStats(id string) *dbStats {
	set := metrics.NewSet()
	counter := func(name string) *metrics.Counter {
		return set.NewCounter(fmt.Sprintf(`imdb_%s_total{db=%q}`, name, id))
	}
	return &dbStats{
		id:           id,
		set:          set,
		blockAlloc:   counter("block_alloc"),
		blockRecycle: counter("block_recycle"),
		pageAlloc:    counter("page_alloc"),
		slotData:     counter("slot_data"),
		slotSplit:    counter("slot_split"),
		slotFree:     counter("slot_free"),
		blockRead:    counter("block_read"),
		blockWrite:   counter("block_write"),
		headerRead:   counter("header_read"),
		headerWrite:  counter("header_write"),
	}
}

// registerClass adds the gauges of a class
func (s *dbStats) registerClass(c *class) {
	gauge := func(name string, f func() float64) {
		s.set.NewGauge(fmt.Sprintf(`imdb_class_%s{db=%q,class="%d"}`, name, s.id, c.handle), f)
	}
	gauge("objects", func() float64 { return float64(c.objects) })
	gauge("pages", func() float64 { return float64(len(c.pages)) })
	gauge("free_slots", func() float64 { return float64(c.fl.Len()) })
}

func (s *dbStats) snapshot() Stats {
	return Stats{
		BlockAlloc:   s.blockAlloc.Get(),
		BlockRecycle: s.blockRecycle.Get(),
		PageAlloc:    s.pageAlloc.Get(),
		SlotData:     s.slotData.Get(),
		SlotSplit:    s.slotSplit.Get(),
		SlotFree:     s.slotFree.Get(),
		BlockRead:    s.blockRead.Get(),
		BlockWrite:   s.blockWrite.Get(),
		HeaderRead:   s.headerRead.Get(),
		HeaderWrite:  s.headerWrite.Get(),
	}
}

// WriteMetrics writes all counters and class gauges in Prometheus text format
func (db *DB) WriteMetrics(w io.Writer) error {
	if db.closed {
		return ErrInvalidHandle
	}
	db.stats.set.WritePrometheus(w)
	return nil
}
