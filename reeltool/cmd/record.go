/*
Copyright © 2022 Morgan Gangwere <morgan.gangwere@gmail.com>
*/
package cmd

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/indrora/reel/reel/format"
	"github.com/indrora/reel/reel/metrics"
	"github.com/indrora/reel/reel/recorder"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spaolacci/murmur3"
	"github.com/spf13/cobra"
)

// recordCmd represents the record command
var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Write a synthetic recording",
	Long: `Simulate a session of moving entities and record it.

The recording ends up in record.dir of the configuration. Useful to
check a configuration or to produce test files.`,
	Example: "reeltool record --map dm1 --ticks 3000 --tps 50",
	Args:    cobra.NoArgs,
	RunE:    runRecord,
}

// hashMap hashes the map file at path, 128 bit murmur3.
func hashMap(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open map file")
	}
	defer f.Close()

	h := murmur3.New128()
	if _, err := io.Copy(h, f); err != nil {
		return nil, errors.Wrap(err, "failed to hash map file")
	}
	return h.Sum(nil), nil
}

// world moves entities along fixed velocities, one step per tick.
type world struct {
	pos []uint32
	vel []uint32
}

func newWorld(entities int) *world {
	w := &world{
		pos: make([]uint32, entities*3),
		vel: make([]uint32, entities*3),
	}
	for i := range w.pos {
		w.pos[i] = uint32(i * 977)
		w.vel[i] = uint32(i%5 + 1)
	}
	return w
}

func (w *world) step() {
	for i := range w.pos {
		w.pos[i] += w.vel[i]
	}
}

func (w *world) snapshot() format.Snapshot {
	snap := make(format.Snapshot, 4*len(w.pos))
	for i, p := range w.pos {
		binary.LittleEndian.PutUint32(snap[4*i:], p)
	}
	return snap
}

func runRecord(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	ticks, _ := flags.GetUint64("ticks")
	tps, _ := flags.GetUint64("tps")
	mapName, _ := flags.GetString("map")
	mapFile, _ := flags.GetString("map-file")
	name, _ := flags.GetString("name")
	entities, _ := flags.GetInt("entities")
	eventEvery, _ := flags.GetUint64("event-every")
	showMetrics, _ := flags.GetBool("metrics")

	props := recorder.Props{
		Server:        "reeltool",
		Map:           mapName,
		PhysicsModule: "synthetic",
		RenderModule:  "none",
		Dir:           cfg.Record.Dir,
		TmpDir:        cfg.Record.TmpDir,
	}
	if mapFile != "" {
		hash, err := hashMap(mapFile)
		if err != nil {
			return err
		}
		props.MapHash = hash
	}

	reg := prometheus.NewRegistry()
	m := metrics.New()
	if err := m.Register(reg); err != nil {
		return err
	}

	opts := append(cfg.RecorderOptions(), recorder.WithLogger(logger), recorder.WithMetrics(m))
	rec, err := recorder.New(props, tps, name, opts...)
	if err != nil {
		return err
	}

	w := newWorld(entities)
	for tick := uint64(0); tick < ticks; tick++ {
		w.step()
		rec.AddSnapshot(tick, w.snapshot())
		if eventEvery > 0 && tick%eventEvery == 0 {
			rec.AddEvent(tick, format.Event(fmt.Sprintf("tick %d", tick)))
		}
	}
	rec.Close()

	res, err := rec.Wait()
	if err != nil {
		if res.TempPath != "" {
			fmt.Fprintln(cmd.ErrOrStderr(), "unfinished recording left at", res.TempPath)
		}
		return err
	}

	out := cmd.OutOrStdout()
	if res.Discarded {
		fmt.Fprintln(out, "nothing recorded")
	} else {
		fmt.Fprintln(out, res.Path)
		fmt.Fprintf(out, "duration %v, %d snapshot chunks, %d event chunks\n",
			res.Header.Duration(), len(res.Tail.SnapshotsIndex), len(res.Tail.EventsIndex))
	}

	if showMetrics {
		families, err := reg.Gather()
		if err != nil {
			return err
		}
		for _, family := range families {
			for _, metric := range family.GetMetric() {
				var value float64
				switch {
				case metric.GetCounter() != nil:
					value = metric.GetCounter().GetValue()
				case metric.GetHistogram() != nil:
					value = float64(metric.GetHistogram().GetSampleCount())
				}
				labels := ""
				for _, pair := range metric.GetLabel() {
					labels += fmt.Sprintf(" %s=%s", pair.GetName(), pair.GetValue())
				}
				fmt.Fprintf(out, "%s%s %v\n", family.GetName(), labels, value)
			}
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.Flags().Uint64("ticks", 500, "Number of ticks to simulate")
	recordCmd.Flags().Uint64("tps", 50, "Ticks per second")
	recordCmd.Flags().String("map", "dm1", "Map name stored in the recording")
	recordCmd.Flags().String("map-file", "", "Map file to hash into the recording")
	recordCmd.Flags().String("name", "", "File name, defaults to <map>_<date>")
	recordCmd.Flags().Int("entities", 8, "Number of simulated entities")
	recordCmd.Flags().Uint64("event-every", 25, "Emit an event every n ticks, 0 to disable")
	recordCmd.Flags().Bool("metrics", false, "Print pipeline metrics when done")
}
