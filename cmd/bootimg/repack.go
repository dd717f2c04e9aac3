package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	bootimg "github.com/squidonik/DualBootPatcher"
	"github.com/squidonik/DualBootPatcher/format/mtk"
	"github.com/squidonik/DualBootPatcher/stream"
	"github.com/squidonik/DualBootPatcher/writer"
)

// headerSidecar is the small JSON description of a Header's scalar fields
// a repack invocation reads from disk; the payload sections themselves
// come from files in the <in-dir> argument named after their entry type.
type headerSidecar struct {
	KernelAddress     *uint32 `json:"kernel_address,omitempty"`
	RamdiskAddress    *uint32 `json:"ramdisk_address,omitempty"`
	SecondbootAddress *uint32 `json:"secondboot_address,omitempty"`
	KernelTagsAddress *uint32 `json:"kernel_tags_address,omitempty"`
	PageSize          uint32  `json:"page_size"`
	BoardName         string  `json:"board_name"`
	KernelCmdline     string  `json:"kernel_cmdline"`
}

func newRepackCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "repack <header.json> <in-dir> <out-image>",
		Short: "Drive a writer adapter from a JSON header sidecar plus section files",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepack(args[0], args[1], args[2], format)
		},
	}
	cmd.Flags().StringVar(&format, "format", "mtk", "writer format to use")
	return cmd
}

func runRepack(headerPath, inDir, outPath, format string) error {
	raw, err := os.ReadFile(headerPath)
	if err != nil {
		return err
	}
	var sc headerSidecar
	if err := json.Unmarshal(raw, &sc); err != nil {
		return fmt.Errorf("parsing header sidecar: %w", err)
	}

	reg := writer.NewDefaultRegistry()
	fw, err := reg.New(format)
	if err != nil {
		return err
	}

	hdr := fw.GetHeader()
	hdr.SetPageSize(sc.PageSize)
	hdr.SetBoardName(sc.BoardName)
	hdr.SetKernelCmdline(sc.KernelCmdline)
	if sc.KernelAddress != nil {
		hdr.SetKernelAddress(*sc.KernelAddress)
	}
	if sc.RamdiskAddress != nil {
		hdr.SetRamdiskAddress(*sc.RamdiskAddress)
	}
	if sc.SecondbootAddress != nil {
		hdr.SetSecondbootAddress(*sc.SecondbootAddress)
	}
	if sc.KernelTagsAddress != nil {
		hdr.SetKernelTagsAddress(*sc.KernelTagsAddress)
	}

	out, err := os.OpenFile(outPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	s := stream.New(out)

	if err := fw.WriteHeader(s, hdr); err != nil {
		return err
	}

	for {
		var entry bootimg.Entry
		if err := fw.GetEntry(s, &entry); err != nil {
			break
		}
		if err := fw.WriteEntry(entry); err != nil {
			return err
		}

		payload, err := sectionPayload(entry.Type, inDir)
		if err != nil {
			return err
		}
		if _, err := fw.WriteData(s, payload); err != nil {
			return err
		}

		if err := fw.FinishEntry(s); err != nil {
			return err
		}
		log.WithFields(logFields(entry)).Info("wrote entry")
	}

	if err := fw.Close(s); err != nil {
		return err
	}

	return nil
}

// sectionPayload returns the bytes to write for a given entry type. MTK
// sub-headers are synthesized (their size field is back-patched at close
// regardless of what's written here); every other entry's bytes come from
// <in-dir>/<type>, or are empty if that file doesn't exist (an image with
// no secondboot/device-tree section).
func sectionPayload(typ bootimg.EntryType, inDir string) ([]byte, error) {
	switch typ {
	case bootimg.EntryMtkKernelHeader:
		return mtk.KernelSubHeader(), nil
	case bootimg.EntryMtkRamdiskHeader:
		return mtk.RamdiskSubHeader(), nil
	}

	path := filepath.Join(inDir, typ.String())
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}
