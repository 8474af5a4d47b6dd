package imdb

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/imdb/lib/imdb/internal/layout"
	"github.com/ValentinKolb/imdb/lib/util"
)

// SizeSummary summarizes the payload sizes of the live objects of a class
type SizeSummary struct {
	Count   int64 `json:"count"`
	Average int   `json:"average"`
	Median  int   `json:"median"`
	P90     int   `json:"p90"`
	P99     int   `json:"p99"`
}

// ClassInfo is the definition and allocator state of a class
type ClassInfo struct {
	Handle        ClassHandle            `json:"handle"`
	Def           ClassDef               `json:"def"`
	Pages         int                    `json:"pages"`
	Blocks        int                    `json:"blocks"`
	BlocksFree    int                    `json:"blocks_free"`
	SlotsFree     int                    `json:"slots_free"`
	SlotsFreeSize int                    `json:"slots_free_size"`
	FLSkipCount   int                    `json:"fl_skip_count"`
	Objects       int                    `json:"objects"`
	ObjectSize    SizeSummary            `json:"object_size"`
	BlockFill     util.DistributionStats `json:"block_fill"`
}

// Info describes a database instance
type Info struct {
	ID        string       `json:"id"`
	Path      string       `json:"path,omitempty"`
	Durable   bool         `json:"durable"`
	BlockSize int          `json:"block_size"`
	Profile   string       `json:"profile"`
	CRC       string       `json:"crc"`
	Sizes     layout.Sizes `json:"sizes"`
	Stats     Stats        `json:"stats"`
	Classes   []ClassInfo  `json:"classes"`
}

// Info returns the configuration, counters and class states of the database
func (db *DB) Info() (Info, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return Info{}, ErrInvalidHandle
	}
	info := Info{
		ID:        db.id.String(),
		Path:      db.def.Path,
		Durable:   db.def.Durable,
		BlockSize: db.def.BlockSize,
		Profile:   db.def.Profile.String(),
		CRC:       db.def.CRC.String(),
		Sizes:     db.def.Profile.Sizes(),
		Stats:     db.stats.snapshot(),
		Classes:   make([]ClassInfo, 0, len(db.classes)),
	}
	for _, c := range db.classes {
		ci, err := c.info()
		if err != nil {
			return Info{}, err
		}
		info.Classes = append(info.Classes, ci)
	}
	return info, nil
}

// String renders the class state as an indented block
func (ci ClassInfo) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Class %d: %s\n", ci.Handle, ci.Def))
	sb.WriteString(fmt.Sprintf("  Pages:        %d (%d blocks, %d unformatted)\n", ci.Pages, ci.Blocks, ci.BlocksFree))
	sb.WriteString(fmt.Sprintf("  Free slots:   %d (%d bytes, %d skipped)\n", ci.SlotsFree, ci.SlotsFreeSize, ci.FLSkipCount))
	sb.WriteString(fmt.Sprintf("  Objects:      %d (avg %dB, median %dB, p99 %dB)\n", ci.Objects, ci.ObjectSize.Average, ci.ObjectSize.Median, ci.ObjectSize.P99))
	sb.WriteString(fmt.Sprintf("  Block fill:   %.1f%% mean, quality %.2f\n", ci.BlockFill.Mean*100, ci.BlockFill.DistributionQuality))
	return sb.String()
}
