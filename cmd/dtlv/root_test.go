package dtlv

import (
	"testing"

	codec "github.com/ValentinKolb/imdb/lib/dtlv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeItems(t *testing.T, items ...string) []byte {
	t.Helper()
	enc := codec.NewEncoder(make([]byte, 256))
	var groups []codec.GroupHandle
	for _, item := range items {
		if item == "}" {
			require.NoError(t, enc.GroupDone(groups[len(groups)-1]))
			groups = groups[:len(groups)-1]
			continue
		}
		g, opened, err := encodeItem(enc, item)
		require.NoError(t, err, item)
		if opened {
			groups = append(groups, g)
		}
	}
	return enc.Bytes()
}

func TestEncodeItems(t *testing.T) {
	buf := encodeItems(t, "1=u8:7", "2={", "3=char:abc", "4=octets:0aff", "}", "5=null:", "63.4=u32:0x10")
	js, err := codec.ToJSON(buf)
	require.NoError(t, err)
	assert.Equal(t, `{"1":7,"2":{"3":"abc","4":"0aff"},"5":null,"63.4":16}`, js)
}

func TestEncodeItemErrors(t *testing.T) {
	enc := codec.NewEncoder(make([]byte, 64))
	for _, item := range []string{"1", "x=u8:1", "1=u8:256", "1=octets:zz", "1=float:1"} {
		_, _, err := encodeItem(enc, item)
		assert.Error(t, err, item)
	}
	assert.Equal(t, 0, enc.Len())
}

func TestRender(t *testing.T) {
	buf := encodeItems(t, "1=u16:513", "2=char:hi", "3={", "4=u8:1", "}")
	avps, err := codec.NewDecoder(buf).DecodeAll()
	require.NoError(t, err)
	require.Len(t, avps, 3)

	assert.Equal(t, "1:integer(2) 513", render(avps[0]))
	assert.Equal(t, `2:char(3) "hi"`, render(avps[1]))
	assert.Equal(t, `3:object(5) {"4":1}`, render(avps[2]))
}
