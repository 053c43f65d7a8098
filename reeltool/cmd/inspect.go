/*
Copyright © 2022 Morgan Gangwere <morgan.gangwere@gmail.com>
*/
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/indrora/reel/reel/format"
	"github.com/indrora/reel/reel/reader"
	"github.com/pkg/errors"
	"github.com/pkg/xattr"
	"github.com/spf13/cobra"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect file...",
	Short: "Investigate the contents of a recording",
	Long: `Show the structure of a recording: its header, the session
metadata, both chunk indices and the extended attributes of the file.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chunks, _ := cmd.Flags().GetBool("chunks")
		out := cmd.OutOrStdout()

		failed := 0
		for _, filename := range args {
			fmt.Fprintln(out, filename)
			if err := inspect(out, filename, chunks); err != nil {
				fmt.Fprintln(out, "  ", err)
				failed++
			}
		}
		if failed > 0 {
			return errors.Errorf("%d of %d recordings could not be read", failed, len(args))
		}
		return nil
	},
}

func inspect(out io.Writer, filename string, chunks bool) error {
	header, err := reader.ReadHeader(filename)
	if errors.Is(err, format.ErrIncomplete) {
		fmt.Fprintln(out, "   recording was never finalized")
		return err
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "====== Header ======\n")
	fmt.Fprintf(out, "Duration: %v\n", header.Duration())
	fmt.Fprintf(out, "Compression: %s\n", header.Compression)
	fmt.Fprintf(out, "Header ext: %d bytes\n", header.SizeExt)
	fmt.Fprintf(out, "Chunks: %d bytes\n", header.SizeChunks)

	rec, err := reader.Open(filename)
	if err != nil {
		return err
	}
	defer rec.Close()

	fmt.Fprintf(out, "====== Session ======\n")
	fmt.Fprint(out, spew.Sdump(rec.Ext))

	fmt.Fprintf(out, "====== Tail ======\n")
	fmt.Fprintf(out, "Checksum: %x\n", rec.Tail.Checksum)
	for _, stream := range []format.Stream{format.STREAM_SNAPSHOTS, format.STREAM_EVENTS} {
		idx := *rec.Tail.IndexFor(stream)
		fmt.Fprintf(out, "%s: %d chunks\n", stream, len(idx))
		if chunks {
			for _, e := range idx {
				fmt.Fprintf(out, "  tick %d @ %d\n", e.Tick, e.Offset)
			}
		}
	}

	listXattrs(out, filename)
	return nil
}

func listXattrs(out io.Writer, filename string) {
	fh, err := os.Open(filename)
	if err != nil {
		return
	}
	defer fh.Close()
	attrs, err := xattr.FList(fh)
	if err != nil || len(attrs) == 0 {
		return
	}
	fmt.Fprintf(out, "====== Attributes ======\n")
	for _, name := range attrs {
		value, err := xattr.FGet(fh, name)
		if err != nil {
			fmt.Fprintln(out, name, "= ? (couldn't read:", err, ")")
		} else {
			fmt.Fprintf(out, "%s = %s\n", name, value)
		}
	}
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().Bool("chunks", false, "List every index entry")
}
