package main

import (
	"fmt"
	"os"

	"github.com/cespare/xxhash"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	bootimg "github.com/squidonik/DualBootPatcher"
	"github.com/squidonik/DualBootPatcher/ramdisk"
	"github.com/squidonik/DualBootPatcher/reader"
	"github.com/squidonik/DualBootPatcher/stream"
)

func newInfoCmd() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "info <image>",
		Short: "Bid across enabled reader formats and print the winning header/entry table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(args[0], strict)
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "disable device-tree truncation tolerance")
	return cmd
}

func runInfo(path string, strict bool) error {
	f, err := os.Open(path)
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
	log.WithField("format", format.Name()).Debug("winning bid")

	if strict {
		format.SetOption("strict", "true")
	}

	hdr := bootimg.NewHeader()
	if err := format.ReadHeader(s, hdr); err != nil {
		return err
	}

	interactive := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	printHeader(format.Name(), hdr, interactive)

	for {
		var entry bootimg.Entry
		if err := format.ReadEntry(s, &entry); err != nil {
			break
		}

		buf := make([]byte, entry.Size)
		n, _ := format.ReadData(s, buf)
		buf = buf[:n]

		digest := xxhash.New()
		digest.Write(buf)

		line := fmt.Sprintf("  %-10s size=%-10d xxhash=%016x", entry.Type, n, digest.Sum64())
		if entry.Type == bootimg.EntryRamdisk {
			kind := ramdisk.Detect(buf)
			line += fmt.Sprintf(" compression=%s", kind)
			if kind == ramdisk.Gzip {
				if raw, derr := ramdisk.Decompress(buf, kind); derr == nil {
					if names, lerr := ramdisk.ListEntries(raw); lerr == nil {
						line += fmt.Sprintf(" files=%d", len(names))
					}
				}
			}
		}
		fmt.Println(line)

		if err := format.FinishEntry(s); err != nil {
			return err
		}
	}

	return nil
}

func printHeader(formatName string, hdr *bootimg.Header, interactive bool) {
	if !interactive {
		fmt.Printf("format=%s\n", formatName)
	} else {
		fmt.Printf("Format: %s\n", formatName)
	}
	if v := hdr.PageSize(); v != nil {
		fmt.Printf("  page_size=%d\n", *v)
	}
	if v := hdr.KernelAddress(); v != nil {
		fmt.Printf("  kernel_addr=0x%08x\n", *v)
	}
	if v := hdr.RamdiskAddress(); v != nil {
		fmt.Printf("  ramdisk_addr=0x%08x\n", *v)
	}
	if v := hdr.SecondbootAddress(); v != nil {
		fmt.Printf("  second_addr=0x%08x\n", *v)
	}
	if v := hdr.KernelTagsAddress(); v != nil {
		fmt.Printf("  tags_addr=0x%08x\n", *v)
	}
	if v := hdr.BoardName(); v != nil {
		fmt.Printf("  board=%q\n", *v)
	}
	if v := hdr.KernelCmdline(); v != nil {
		fmt.Printf("  cmdline=%q\n", *v)
	}
}
