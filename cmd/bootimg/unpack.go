package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	bootimg "github.com/squidonik/DualBootPatcher"
	"github.com/squidonik/DualBootPatcher/reader"
	"github.com/squidonik/DualBootPatcher/stream"
)

func newUnpackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unpack <image> <out-dir>",
		Short: "Bid, read the header and every entry, and write each payload to out-dir",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUnpack(args[0], args[1])
		},
	}
	return cmd
}

func runUnpack(imagePath, outDir string) error {
	f, err := os.Open(imagePath)
	if err != nil {
		return err
	}
	defer f.Close()

	s := stream.New(f)

	reg := reader.NewDefaultRegistry()
	format, err := reg.Bid(s)
	if err != nil {
		return fmt.Errorf("no format matched: %w", err)
	}

	hdr := bootimg.NewHeader()
	if err := format.ReadHeader(s, hdr); err != nil {
		return err
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	for {
		var entry bootimg.Entry
		if err := format.ReadEntry(s, &entry); err != nil {
			break
		}

		buf := make([]byte, entry.Size)
		n, rerr := format.ReadData(s, buf)
		if rerr != nil && !entry.CanBeTruncated {
			return rerr
		}
		buf = buf[:n]

		outPath := filepath.Join(outDir, entry.Type.String())
		if err := os.WriteFile(outPath, buf, 0o644); err != nil {
			return err
		}
		log.WithFields(logFields(entry)).Info("unpacked entry")

		if err := format.FinishEntry(s); err != nil {
			return err
		}
	}

	return nil
}
