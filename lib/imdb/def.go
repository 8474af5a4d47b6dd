package imdb

import (
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/imdb/lib/imdb/internal/layout"
)

// --------------------------------------------------------------------------
// Database definition
// --------------------------------------------------------------------------

// Profile selects the frozen header layout of a database
type Profile = layout.Profile

const (
	ProfileStandard = layout.Standard
	ProfileSmallRAM = layout.SmallRAM
)

// ParseProfile converts "standard" or "small-ram" into a Profile
func ParseProfile(s string) (Profile, error) {
	return layout.ParseProfile(s)
}

// CRCPolicy controls block checksums of durable databases
type CRCPolicy uint8

const (
	// CRCNone neither writes nor checks block checksums
	CRCNone CRCPolicy = iota
	// CRCWrite stamps checksums when blocks are written
	CRCWrite
	// CRCReadWrite also verifies checksums when blocks are loaded
	CRCReadWrite
)

func (p CRCPolicy) String() string {
	switch p {
	case CRCNone:
		return "none"
	case CRCWrite:
		return "write"
	case CRCReadWrite:
		return "read-write"
	default:
		return fmt.Sprintf("crc(%d)", uint8(p))
	}
}

// ParseCRCPolicy converts "none", "write" or "read-write" into a CRCPolicy
func ParseCRCPolicy(s string) (CRCPolicy, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return CRCNone, nil
	case "write", "w":
		return CRCWrite, nil
	case "read-write", "readwrite", "rw":
		return CRCReadWrite, nil
	}
	return 0, fmt.Errorf("invalid crc policy: %s. must be one of none, write, read-write", s)
}

// DefaultBlockSize is used when DBDef.BlockSize is zero
const DefaultBlockSize = 4096

// DBDef configures a database instance
type DBDef struct {
	// BlockSize is the size of every block, aligned up to 4 bytes.
	// Zero selects DefaultBlockSize or, for an existing file, its block size.
	BlockSize int
	// CRC is the checksum policy of durable databases
	CRC CRCPolicy
	// Durable enables the file store at Path
	Durable bool
	// RecoveryPages is the number of dirty pages tolerated before an
	// implicit flush, zero disables implicit flushes
	RecoveryPages int
	// Retries and RetryBackoff configure retried file I/O
	Retries      int
	RetryBackoff time.Duration
	Path         string
	Profile      Profile
}

// normalize applies defaults and validates the definition
func (d DBDef) normalize() (DBDef, error) {
	if d.BlockSize == 0 {
		d.BlockSize = DefaultBlockSize
	}
	d.BlockSize = layout.AlignUp(d.BlockSize)
	if d.BlockSize < layout.MinBlockSize || d.BlockSize > layout.MaxBlockSize {
		return d, newError(RetCInvalidDef, "block size %d not in [%d, %d]", d.BlockSize, layout.MinBlockSize, layout.MaxBlockSize)
	}
	if !d.Profile.Valid() {
		return d, newError(RetCInvalidDef, "unknown profile %d", uint8(d.Profile))
	}
	if d.CRC > CRCReadWrite {
		return d, newError(RetCInvalidDef, "unknown crc policy %d", uint8(d.CRC))
	}
	if d.CRC != CRCNone && !d.Profile.HasBlockCRC() {
		return d, newError(RetCInvalidDef, "profile %s has no block checksum, crc policy must be none", d.Profile)
	}
	if d.Durable && d.Path == "" {
		return d, newError(RetCInvalidDef, "durable database needs a path")
	}
	if d.RecoveryPages < 0 || d.Retries < 0 {
		return d, newError(RetCInvalidDef, "negative recovery pages or retries")
	}
	return d, nil
}

// String renders the definition as a sectioned summary
func (d DBDef) String() string {
	sizes := d.Profile.Sizes()
	var sb strings.Builder
	sb.WriteString("Database:\n")
	sb.WriteString(fmt.Sprintf("  Block size:      %d\n", d.BlockSize))
	sb.WriteString(fmt.Sprintf("  Profile:         %s\n", d.Profile))
	sb.WriteString(fmt.Sprintf("  CRC policy:      %s\n", d.CRC))
	sb.WriteString("Storage:\n")
	if d.Durable {
		sb.WriteString(fmt.Sprintf("  Path:            %s\n", d.Path))
		sb.WriteString(fmt.Sprintf("  Recovery pages:  %d\n", d.RecoveryPages))
		sb.WriteString(fmt.Sprintf("  Retries:         %d (backoff %s)\n", d.Retries, d.RetryBackoff))
	} else {
		sb.WriteString("  In memory\n")
	}
	sb.WriteString("Headers:\n")
	sb.WriteString(fmt.Sprintf("  Class/Page/Block: %d/%d/%d\n", sizes.ClassHeader, sizes.PageHeader, sizes.BlockHeader))
	sb.WriteString(fmt.Sprintf("  RowID/Cursor:     %d/%d\n", sizes.RowID, sizes.Cursor))
	return sb.String()
}

// --------------------------------------------------------------------------
// Class definition
// --------------------------------------------------------------------------

const (
	defaultPagesMax   = 0xFFFF
	defaultPageBlocks = 8
)

// ClassDef configures an object class
type ClassDef struct {
	// Name identifies the class, at most 32 bytes
	Name string
	// Recycle reuses the oldest block once PagesMax pages are used
	Recycle bool
	// Variable stores objects of any size, otherwise every object has ObjSize bytes
	Variable bool
	// Unique treats the payload as key and rejects duplicates
	Unique bool
	// AppendOnly never reuses the space of deleted objects
	AppendOnly bool
	// InitBlocks is the number of blocks formatted on creation, at least one
	InitBlocks int
	// PagesMax bounds the number of pages, zero means 65535
	PagesMax int
	// PageBlocks is the number of blocks per page, zero means 8
	PageBlocks int
	// ObjSize is the payload size of fixed size classes, aligned up to 4 bytes
	ObjSize int
}

func (d ClassDef) flags() uint8 {
	var f uint8
	if d.Recycle {
		f |= layout.ClassRecycle
	}
	if d.Variable {
		f |= layout.ClassVariable
	}
	if d.Unique {
		f |= layout.ClassUnique
	}
	if d.AppendOnly {
		f |= layout.ClassAppendOnly
	}
	return f
}

func classDefFromHeader(h layout.ClassHeader) ClassDef {
	return ClassDef{
		Name:       h.Name,
		Recycle:    h.Flags&layout.ClassRecycle != 0,
		Variable:   h.Flags&layout.ClassVariable != 0,
		Unique:     h.Flags&layout.ClassUnique != 0,
		AppendOnly: h.Flags&layout.ClassAppendOnly != 0,
		InitBlocks: int(h.InitBlocks),
		PagesMax:   int(h.PagesMax),
		PageBlocks: int(h.PageBlocks),
		ObjSize:    int(h.ObjSize),
	}
}

// normalize applies defaults and validates the definition against the
// database it is created in
func (d ClassDef) normalize(db DBDef) (ClassDef, error) {
	if d.Name == "" || len(d.Name) > layout.ClassNameMax {
		return d, newError(RetCInvalidDef, "class name %q must have 1 to %d bytes", d.Name, layout.ClassNameMax)
	}
	if d.Recycle && d.AppendOnly {
		return d, newError(RetCInvalidDef, "class %s cannot be recycling and append-only", d.Name)
	}
	if d.PagesMax == 0 {
		d.PagesMax = defaultPagesMax
	}
	if d.PageBlocks == 0 {
		d.PageBlocks = defaultPageBlocks
	}
	if d.InitBlocks <= 0 {
		d.InitBlocks = 1
	}
	limit := 0xFFFF
	if db.Profile == ProfileSmallRAM {
		// small rowids hold one byte for page and block
		limit = 0x100
	}
	if d.PagesMax < 0 || d.PagesMax > limit || d.PageBlocks < 0 || d.PageBlocks > limit {
		return d, newError(RetCInvalidDef, "class %s: pages max %d and page blocks %d must be in [1, %d]", d.Name, d.PagesMax, d.PageBlocks, limit)
	}
	if d.InitBlocks > d.PageBlocks {
		d.InitBlocks = d.PageBlocks
	}
	if d.Recycle {
		// a ring fills one block at a time
		d.InitBlocks = 1
	}

	sizes := db.Profile.Sizes()
	if d.Variable {
		d.ObjSize = 0
		return d, nil
	}
	if d.ObjSize <= 0 {
		return d, newError(RetCInvalidDef, "class %s: fixed size class needs an object size", d.Name)
	}
	d.ObjSize = layout.AlignUp(d.ObjSize)
	if d.ObjSize+layout.SlotHeaderFixed > db.BlockSize-sizes.ClassHeader {
		return d, newError(RetCInvalidSize, "class %s: object size %d does not fit into a block of %d", d.Name, d.ObjSize, db.BlockSize)
	}
	return d, nil
}

// String renders the definition in a single line
func (d ClassDef) String() string {
	kind := "fixed"
	if d.Variable {
		kind = "variable"
	}
	var opts []string
	if d.Recycle {
		opts = append(opts, "recycle")
	}
	if d.Unique {
		opts = append(opts, "unique")
	}
	if d.AppendOnly {
		opts = append(opts, "append-only")
	}
	s := fmt.Sprintf("%s (%s", d.Name, kind)
	if !d.Variable {
		s += fmt.Sprintf(" %dB", d.ObjSize)
	}
	if len(opts) > 0 {
		s += ", " + strings.Join(opts, ", ")
	}
	return s + fmt.Sprintf(", %d pages x %d blocks)", d.PagesMax, d.PageBlocks)
}
