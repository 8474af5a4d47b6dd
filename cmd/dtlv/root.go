package dtlv

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ValentinKolb/imdb/cmd/util"
	codec "github.com/ValentinKolb/imdb/lib/dtlv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// DTLVCommands represents the DTLV command group
	DTLVCommands = &cobra.Command{
		Use:   "dtlv",
		Short: "Encode and decode DTLV records",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return util.BindCommandFlags(cmd)
		},
	}
	jsonCmd = &cobra.Command{
		Use:   "json [hex]",
		Short: "Renders a hex encoded AVP sequence as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := hex.DecodeString(args[0])
			if err != nil {
				return fmt.Errorf("input is not hex: %w", err)
			}
			s, err := codec.ToJSON(buf)
			fmt.Println(s)
			return err
		},
	}
	pathCmd = &cobra.Command{
		Use:   "path [hex] [path]",
		Short: "Lists the AVPs of a hex encoded sequence matching a path, e.g. 10/*/3",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := hex.DecodeString(args[0])
			if err != nil {
				return fmt.Errorf("input is not hex: %w", err)
			}
			path, err := codec.ParsePath(args[1])
			if err != nil {
				return err
			}
			out := make([]codec.AVP, viper.GetInt("max"))
			n, err := codec.NewDecoder(buf).DecodeByPath(path, out, false)
			if err != nil {
				return err
			}
			for i := 0; i < n && i < len(out); i++ {
				fmt.Println(render(out[i]))
			}
			fmt.Printf("%d matches\n", n)
			return nil
		},
	}
	encodeCmd = &cobra.Command{
		Use:   "encode [item]...",
		Short: "Encodes items into a hex AVP sequence",
		Long: `Encodes items into a hex AVP sequence. Every item has the form
code=type:value with type one of u8, u16, u32, char, octets (hex value) or
null. code={ opens a group and } closes the innermost group, e.g.

  imdb dtlv encode 1=u8:7 2={ 3=char:abc 4=octets:0aff } 5=null:`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			buf := make([]byte, viper.GetInt("size"))
			enc := codec.NewEncoder(buf)
			var groups []codec.GroupHandle
			for _, item := range args {
				if item == "}" {
					if len(groups) == 0 {
						return fmt.Errorf("unbalanced }")
					}
					if err := enc.GroupDone(groups[len(groups)-1]); err != nil {
						return err
					}
					groups = groups[:len(groups)-1]
					continue
				}
				g, opened, err := encodeItem(enc, item)
				if err != nil {
					return fmt.Errorf("item %q: %w", item, err)
				}
				if opened {
					groups = append(groups, g)
				}
			}
			if len(groups) > 0 {
				return fmt.Errorf("%d groups not closed", len(groups))
			}
			fmt.Println(hex.EncodeToString(enc.Bytes()))
			return nil
		},
	}
)

func init() {
	DTLVCommands.AddCommand(jsonCmd)
	DTLVCommands.AddCommand(pathCmd)
	DTLVCommands.AddCommand(encodeCmd)

	pathCmd.Flags().Int("max", 64, util.WrapString("Maximum number of matches to print"))
	encodeCmd.Flags().Int("size", codec.MaxAVPLength, util.WrapString("Size of the encode buffer in bytes"))
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func encodeItem(enc *codec.Encoder, item string) (codec.GroupHandle, bool, error) {
	codeStr, rhs, ok := strings.Cut(item, "=")
	if !ok {
		return codec.GroupHandle{}, false, fmt.Errorf("missing =")
	}
	code, err := codec.ParseNSCode(codeStr)
	if err != nil {
		return codec.GroupHandle{}, false, err
	}
	if rhs == "{" {
		g, err := enc.EncodeGrouping(code)
		return g, err == nil, err
	}

	typ, value, _ := strings.Cut(rhs, ":")
	switch typ {
	case "u8", "u16", "u32":
		bits, _ := strconv.Atoi(typ[1:])
		n, err := strconv.ParseUint(value, 0, bits)
		if err != nil {
			return codec.GroupHandle{}, false, err
		}
		switch bits {
		case 8:
			err = enc.EncodeUint8(code, uint8(n))
		case 16:
			err = enc.EncodeUint16(code, uint16(n))
		default:
			err = enc.EncodeUint32(code, uint32(n))
		}
		return codec.GroupHandle{}, false, err
	case "char":
		return codec.GroupHandle{}, false, enc.EncodeChar(code, value)
	case "octets":
		b, err := hex.DecodeString(value)
		if err != nil {
			return codec.GroupHandle{}, false, err
		}
		return codec.GroupHandle{}, false, enc.EncodeOctets(code, b)
	case "null":
		return codec.GroupHandle{}, false, enc.Encode(code, codec.TypeUndefined, nil)
	}
	return codec.GroupHandle{}, false, fmt.Errorf("unknown type %q", typ)
}

func render(avp codec.AVP) string {
	v, err := avp.Value()
	if err != nil {
		return fmt.Sprintf("%s error=%v", avp, err)
	}
	switch v := v.(type) {
	case codec.Null:
		return fmt.Sprintf("%s null", avp)
	case codec.Uint8, codec.Uint16, codec.Uint32:
		return fmt.Sprintf("%s %d", avp, v)
	case codec.Char:
		return fmt.Sprintf("%s %q", avp, string(v))
	case codec.Octets:
		return fmt.Sprintf("%s %s", avp, hex.EncodeToString(v))
	}
	s, err := codec.ToJSON(avp.Data)
	if avp.List || err != nil {
		return fmt.Sprintf("%s %s", avp, hex.EncodeToString(avp.Data))
	}
	return fmt.Sprintf("%s %s", avp, s)
}
