// Package dtlv implements a compact binary tag-length-value codec for nested,
// typed attribute-value pairs (AVPs).
//
// Every AVP starts with a four byte big-endian header:
//
//	word0: bits 15..13 data type | bit 12 list flag | bits 11..0 total length
//	word1: bits 15..10 namespace | bits  9..0 code
//
// Integers are stored big-endian with a width of one, two or four bytes,
// char values carry their NUL terminator, objects and lists contain a nested
// AVP sequence. The total length includes the header and is limited to
// MaxAVPLength.
//
// The Encoder appends records to a caller owned buffer and keeps a stack of
// open groups whose lengths are patched by GroupDone. The Decoder reads
// records without copying payloads; AVPs returned by it are views into the
// decoded buffer.
//
// Example usage:
//
//	enc := dtlv.NewEncoder(make([]byte, 512))
//	_ = enc.EncodeUint8(dtlv.Code(1), 0xF0)
//	g, _ := enc.EncodeGrouping(dtlv.NS(63, 4))
//	_ = enc.EncodeChar(dtlv.Code(1), "name")
//	_ = enc.GroupDone(g)
//
//	js, err := dtlv.ToJSON(enc.Bytes()) // {"1":240,"63.4":{"1":"name"}}
package dtlv
