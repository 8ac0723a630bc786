// Command devicesdk-inspect reads a transport capture (a file of
// back-to-back chunker frames, as a real transport driver would have
// forwarded them) and prints the messages it reassembles: the packetizer
// header byte decoded into source kind + RLE flag, and a best-effort CBOR
// decode of the payload.
//
// Grounded on the teacher's cmd/ublk-mem/main.go (flag-to-config wiring,
// friendly startup/summary print statements) and sakateka-yanet2's
// coordinator/cmd/coordinator/main.go (cobra root command shape, required
// flags via MarkFlagRequired).
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/cobra"

	"github.com/faultline/devicesdk/internal/chunker"
	"github.com/faultline/devicesdk/internal/codec"
)

// flags holds the command-line arguments, mirroring the teacher's package
// level Cmd struct bound to cobra flags in init().
var flags struct {
	InputPath string
	MTU       datasize.ByteSize
	DumpHex   bool
}

var rootCmd = &cobra.Command{
	Use:   "devicesdk-inspect",
	Short: "Reassemble and print messages from a devicesdk chunk capture",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(flags.InputPath, flags.DumpHex)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&flags.InputPath, "input", "i", "", "path to a capture file of concatenated chunk frames (required)")
	rootCmd.Flags().Var(&mtuValue{&flags.MTU}, "mtu", "informational MTU the capture was produced with (e.g. 512B, 1KiB)")
	rootCmd.Flags().BoolVar(&flags.DumpHex, "hex", false, "dump the raw payload bytes as hex instead of attempting a CBOR decode")
	rootCmd.MarkFlagRequired("input")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

// mtuValue adapts datasize.ByteSize to pflag.Value so --mtu accepts
// human-readable sizes like "512B" or "4KiB", the same idiom
// sakateka-yanet2's config loader uses for yaml-bound ByteSize fields.
type mtuValue struct{ size *datasize.ByteSize }

func (v *mtuValue) String() string {
	if v.size == nil {
		return "0B"
	}
	return v.size.HumanReadable()
}

func (v *mtuValue) Set(s string) error {
	return v.size.UnmarshalText([]byte(s))
}

func (v *mtuValue) Type() string { return "size" }

func run(inputPath string, dumpHex bool) error {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("reading capture: %w", err)
	}

	fmt.Printf("devicesdk-inspect: %d bytes of capture, mtu=%s\n", len(data), flags.MTU.HumanReadable())

	messageIndex := 0
	var reassembler chunker.Reassembler
	offset := 0
	for offset < len(data) {
		_, consumed, err := chunker.DecodeFrame(data[offset:])
		if err != nil {
			return fmt.Errorf("decoding frame at byte offset %d: %w", offset, err)
		}

		complete, err := reassembler.Feed(data[offset : offset+consumed])
		if err != nil {
			return fmt.Errorf("reassembling frame at byte offset %d: %w", offset, err)
		}
		offset += consumed
		if !complete {
			continue
		}

		printMessage(messageIndex, reassembler.Message(), dumpHex)
		messageIndex++
		reassembler.Reset()
	}

	fmt.Printf("devicesdk-inspect: reassembled %d message(s)\n", messageIndex)
	return nil
}

var sourceNames = map[byte]string{
	1: "coredump",
	2: "heartbeat",
	3: "log",
	4: "cdr",
}

func printMessage(index int, message []byte, dumpHex bool) {
	if len(message) == 0 {
		fmt.Printf("message %d: empty\n", index)
		return
	}

	header := message[0]
	kind := sourceNames[header&0x0F]
	if kind == "" {
		kind = fmt.Sprintf("unknown(%d)", header&0x0F)
	}
	rle := header&0x80 != 0

	fmt.Printf("message %d: source=%s rle=%v payload_len=%d\n", index, kind, rle, len(message)-1)

	payload := message[1:]
	if rle {
		fmt.Printf("  (RLE-encoded payload, decode before reading as CBOR)\n")
		return
	}
	if dumpHex {
		fmt.Printf("  %s\n", hex.EncodeToString(payload))
		return
	}

	var event codec.Event
	if err := codec.Unmarshal(payload, &event); err == nil {
		fmt.Printf("  event: type=%d schema=%d serial=%q capture_time=%d\n",
			event.Type, event.Schema, event.Serial, event.CaptureTime)
		return
	}

	var meta codec.CDRMetadata
	if err := codec.Unmarshal(payload, &meta); err == nil {
		fmt.Printf("  cdr metadata: duration_ms=%d mime_types=%v reason=%q data_length=%d\n",
			meta.DurationMs, meta.MimeTypes, meta.Reason, meta.DataLength)
		return
	}

	fmt.Printf("  (could not decode as a known CBOR schema; %d bytes, use --hex)\n", len(payload))
}
