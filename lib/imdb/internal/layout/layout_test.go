package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileSizes(t *testing.T) {
	std := Standard.Sizes()
	assert.Equal(t, Sizes{ClassHeader: 128, PageHeader: 56, BlockHeader: 24, RowID: 16, Cursor: 56}, std)

	small := SmallRAM.Sizes()
	assert.Equal(t, Sizes{ClassHeader: 128, PageHeader: 48, BlockHeader: 8, RowID: 4, Cursor: 40}, small)

	for _, p := range []Profile{Standard, SmallRAM} {
		s := p.Sizes()
		assert.LessOrEqual(t, s.BlockHeader+pageHeaderFields, s.PageHeader, p.String())
		assert.LessOrEqual(t, s.PageHeader+classHeaderFields, s.ClassHeader, p.String())
	}
	assert.False(t, Profile(7).Valid())
}

func TestAlignUp(t *testing.T) {
	assert.Equal(t, 0, AlignUp(0))
	assert.Equal(t, 4, AlignUp(1))
	assert.Equal(t, 64, AlignUp(63))
	assert.Equal(t, 1024, AlignUp(1023))
	assert.Equal(t, 4096, AlignUp(4095))
}

func TestSlotStates(t *testing.T) {
	buf := make([]byte, 8)
	for _, variable := range []bool{false, true} {
		for _, s := range []Slot{
			{Size: 1028, State: SlotUsed, Length: 1024},
			{Size: 72, State: SlotDead, Length: 63},
			{Size: 3968, State: SlotFree},
		} {
			PutSlot(buf, variable, s)
			assert.Equal(t, s, ParseSlot(buf, variable))
		}
	}
	assert.Equal(t, SlotFree, ParseSlot(make([]byte, 8), true).State)
}

func TestHeadersDetectCorruption(t *testing.T) {
	block := make([]byte, 512)
	BlockHeader{Seq: 7, Page: 1, Block: 0, Used: 3, Flags: BlockFormatted}.Put(Standard, block)
	PageHeader{Class: 2, Page: 1, Blocks: 6, Formatted: 1, Self: 4096}.Put(Standard, block)
	ClassHeader{Class: 2, Name: "testobj", PagesMax: 3, PageBlocks: 6, ObjSize: 1024}.Put(Standard, block)
	StampBlockCRC(Standard, block)

	require.True(t, VerifyBlockCRC(Standard, block))
	ch, err := ParseClassHeader(Standard, block, true)
	require.NoError(t, err)
	assert.Equal(t, "testobj", ch.Name)
	ph, err := ParsePageHeader(Standard, block, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(4096), ph.Self)
	assert.Equal(t, uint32(7), ParseBlockHeader(Standard, block).Seq)

	block[Standard.Sizes().PageHeader+10]++
	assert.False(t, VerifyBlockCRC(Standard, block))
	_, err = ParseClassHeader(Standard, block, true)
	assert.ErrorIs(t, err, ErrHeaderCRC)
	_, err = ParseClassHeader(Standard, block, false)
	assert.NoError(t, err)

	assert.True(t, VerifyBlockCRC(SmallRAM, block))
}

func TestSuperblock(t *testing.T) {
	b := make([]byte, 4096)
	sb := Superblock{Version: Version, Profile: Standard, CRC: 2, BlockSize: 4096, NextOffset: 8192, Classes: []uint64{4096}}
	sb.ID[0] = 0xAB
	sb.Put(b)

	bs, err := PeekBlockSize(b)
	require.NoError(t, err)
	assert.Equal(t, 4096, bs)

	got, err := ParseSuperblock(b)
	require.NoError(t, err)
	assert.Equal(t, sb, got)

	b[100] = 1
	_, err = ParseSuperblock(b)
	assert.ErrorIs(t, err, ErrHeaderCRC)

	_, err = ParseSuperblock(make([]byte, 4096))
	assert.ErrorIs(t, err, ErrBadMagic)
	assert.Equal(t, 506, MaxClasses(4096))
}
