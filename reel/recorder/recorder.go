// Package recorder is the producer side of a recording. It buffers snapshots and
// events per tick and hands ordered spans of them to a background writer.
//
// A Recorder is owned by the simulation goroutine and is not safe for concurrent use.
// None of its methods wait for disk I/O.
package recorder

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/indrora/reel/reel/format"
	"github.com/indrora/reel/reel/ioutil"
	"github.com/indrora/reel/reel/metrics"
	"github.com/indrora/reel/reel/writer"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
)

const (
	// Minimum number of buffered ticks before a span is handed to the writer
	DATA_PER_CHUNK_TO_WRITE = 50
	// How long (in simulated seconds) entries stay buffered and can still be replaced
	SECONDS_UNTIL_WRITE = 3

	DEFAULT_DIR     = "demos"
	DEFAULT_TMP_DIR = "tmp/demos"
)

// Props describes the session being recorded.
type Props struct {
	Server            string
	Map               string
	MapHash           []byte
	RequiredResources map[string]string
	PhysicsModule     string
	RenderModule      string
	PhysicsGroup      string
	GameOptions       []byte

	// Final and temporary directories, DEFAULT_DIR and DEFAULT_TMP_DIR when empty
	Dir    string
	TmpDir string
}

type options struct {
	logger            hclog.Logger
	metrics           *metrics.Metrics
	fs                writer.FS
	compression       format.CompressionType
	dataPerChunk      int
	secondsUntilWrite uint64
	now               func() time.Time
}

type Option func(*options)

func WithLogger(l hclog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithFS(fs writer.FS) Option {
	return func(o *options) { o.fs = fs }
}

func WithCompression(c format.CompressionType) Option {
	return func(o *options) { o.compression = c }
}

// WithDataPerChunk overrides DATA_PER_CHUNK_TO_WRITE. Values below 1 are ignored.
func WithDataPerChunk(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.dataPerChunk = n
		}
	}
}

// WithSecondsUntilWrite overrides SECONDS_UNTIL_WRITE.
func WithSecondsUntilWrite(secs uint64) Option {
	return func(o *options) { o.secondsUntilWrite = secs }
}

// WithClock replaces time.Now for the generated name and the creation time.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

type Recorder struct {
	name string
	ext  format.HeaderExt
	opts options
	log  hclog.Logger

	// entries older than newest - window are dropped
	window    uint64
	snapshots *pending[format.Snapshot]
	events    *pending[format.Events]

	// sink receives every handed-off span, in order
	sink func(writer.Message)

	pump      *ioutil.Pump[writer.Message]
	closeOnce sync.Once
	closed    bool

	done   chan struct{}
	result writer.Result
	err    error
}

// New starts a recording of the session described by props. The file is named
// forcedName, or "<map>_<YYYY_MM_DD_HH_MM>" when forcedName is empty.
//
// The caller must call Close once recording is over. Until then the writer
// goroutine keeps running and the temporary file stays open.
func New(props Props, ticksPerSecond uint64, forcedName string, opts ...Option) (*Recorder, error) {
	if ticksPerSecond == 0 {
		return nil, writer.ErrNoTickRate
	}

	r := newRecorder(props, ticksPerSecond, forcedName, opts...)

	dir, tmpDir := props.Dir, props.TmpDir
	if dir == "" {
		dir = DEFAULT_DIR
	}
	if tmpDir == "" {
		tmpDir = DEFAULT_TMP_DIR
	}

	w := writer.New(writer.Config{
		Dir:         dir,
		TmpDir:      tmpDir,
		Name:        r.name,
		Compression: r.opts.compression,
		FS:          r.opts.fs,
		Logger:      r.opts.logger,
		Metrics:     r.opts.metrics,
	}, r.ext)

	r.pump = ioutil.NewPump[writer.Message]()
	r.done = make(chan struct{})
	r.sink = func(msg writer.Message) {
		r.pump.In() <- msg
	}
	go r.runWriter(w)

	r.log.Debug("recording", "map", props.Map, "tps", ticksPerSecond, "id", r.ext.ID.String())
	return r, nil
}

func newRecorder(props Props, ticksPerSecond uint64, forcedName string, opts ...Option) *Recorder {
	o := options{
		compression:       format.COMPRESSION_ZSTD,
		dataPerChunk:      DATA_PER_CHUNK_TO_WRITE,
		secondsUntilWrite: SECONDS_UNTIL_WRITE,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = hclog.NewNullLogger()
	}
	if o.metrics == nil {
		o.metrics = metrics.New()
	}

	now := o.now()
	name := forcedName
	if name == "" {
		name = fmt.Sprintf("%s_%s", safeName(props.Map), now.Format("2006_01_02_15_04"))
	}

	return &Recorder{
		name: name,
		ext: format.HeaderExt{
			ID:                ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()),
			Server:            props.Server,
			Map:               props.Map,
			MapHash:           props.MapHash,
			TicksPerSecond:    ticksPerSecond,
			RequiredResources: props.RequiredResources,
			PhysicsModule:     props.PhysicsModule,
			RenderModule:      props.RenderModule,
			PhysicsGroup:      props.PhysicsGroup,
			GameOptions:       props.GameOptions,
			CreatedAt:         now.UTC(),
		},
		opts:      o,
		log:       o.logger.Named("recorder").With("recording", name),
		window:    ticksPerSecond * o.secondsUntilWrite,
		snapshots: newPending[format.Snapshot](),
		events:    newPending[format.Events](),
	}
}

// safeName keeps map names usable as file names.
func safeName(name string) string {
	if name == "" {
		return "unnamed"
	}
	return strings.Map(func(r rune) rune {
		if r == filepath.Separator || r == '/' || r == '\\' || r == 0 {
			return '_'
		}
		return r
	}, name)
}

// runWriter drives the writer until the pump is closed. Whatever happens to the writer,
// the pump keeps being drained so the recorder never notices.
func (r *Recorder) runWriter(w *writer.RecordingWriter) {
	out := r.pump.Out()
	defer close(r.done)
	defer func() {
		if p := recover(); p != nil {
			r.err = errors.Errorf("writer panicked: %v", p)
			r.opts.metrics.Recordings.WithLabelValues(metrics.RESULT_FAILED).Inc()
			r.log.Error("writer panicked, dropping the rest of the recording", "panic", p)
			for range out {
			}
		}
	}()

	res, err := w.Run(out)
	if err != nil {
		r.log.Error("writer failed, dropping the rest of the recording", "error", err)
		for range out {
		}
	}
	r.result, r.err = res, err
}

func (r *Recorder) Name() string {
	return r.name
}

// HeaderExt is the metadata stored in the recording.
func (r *Recorder) HeaderExt() format.HeaderExt {
	return r.ext
}

// canAdd reports whether tick is recent enough to still be buffered.
func canAdd(newest uint64, ok bool, tick, window uint64) bool {
	return !ok || tick >= newest || newest-tick <= window
}

// cut returns the tick below which entries are handed off, if a hand-off is due.
func cut[T any](p *pending[T], dataPerChunk int, window uint64) (uint64, bool) {
	if p.Len() <= dataPerChunk {
		return 0, false
	}
	candidate, _ := p.keyAt(dataPerChunk)
	newest, _ := p.newest()
	if newest-candidate <= window {
		return 0, false
	}
	// everything this old can no longer be added
	return newest - window, true
}

func handOff[T any](r *Recorder, p *pending[T], stream format.Stream) {
	below, ok := cut(p, r.opts.dataPerChunk, r.window)
	if !ok {
		return
	}
	r.send(writer.Message{Stream: stream, Entries: p.takeBefore(below)})
}

func (r *Recorder) send(msg writer.Message) {
	if r.closed || len(msg.Entries) == 0 {
		return
	}
	r.sink(msg)
	r.opts.metrics.HandOffs.WithLabelValues(msg.Stream.String()).Inc()
	r.log.Trace("handed off", "stream", msg.Stream.String(), "first", msg.Entries[0].Tick, "entries", len(msg.Entries))
}

// AddSnapshot buffers the snapshot of tick, replacing an earlier one of the same tick.
// Snapshots older than the write window are dropped. The recorder keeps snapshot, it
// must not be modified afterwards.
func (r *Recorder) AddSnapshot(tick uint64, snapshot format.Snapshot) {
	if r.closed {
		return
	}
	handOff(r, r.snapshots, format.STREAM_SNAPSHOTS)

	newest, ok := r.snapshots.newest()
	if !canAdd(newest, ok, tick, r.window) {
		r.opts.metrics.EntriesRejected.WithLabelValues(format.STREAM_SNAPSHOTS.String()).Inc()
		r.log.Trace("snapshot too old", "tick", tick, "newest", newest)
		return
	}
	r.snapshots.put(tick, snapshot)
}

// AddEvent appends event to the events of tick. Events older than the write window
// are dropped.
func (r *Recorder) AddEvent(tick uint64, event format.Event) {
	if r.closed {
		return
	}
	handOff(r, r.events, format.STREAM_EVENTS)

	newest, ok := r.events.newest()
	if !canAdd(newest, ok, tick, r.window) {
		r.opts.metrics.EntriesRejected.WithLabelValues(format.STREAM_EVENTS.String()).Inc()
		r.log.Trace("event too old", "tick", tick, "newest", newest)
		return
	}
	events, _ := r.events.get(tick)
	r.events.put(tick, append(events, event))
}

// Close hands everything still buffered to the writer and lets it finalize the
// recording. It does not wait for that; use Wait. Calling Close more than once is a no-op.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		for _, batch := range r.snapshots.drain(r.opts.dataPerChunk) {
			r.send(writer.Message{Stream: format.STREAM_SNAPSHOTS, Entries: batch})
		}
		for _, batch := range r.events.drain(r.opts.dataPerChunk) {
			r.send(writer.Message{Stream: format.STREAM_EVENTS, Entries: batch})
		}
		r.closed = true
		if r.pump != nil {
			close(r.pump.In())
		}
	})
}

// Wait blocks until the writer is done and returns what happened to the recording.
// Close has to be called first.
func (r *Recorder) Wait() (writer.Result, error) {
	if r.done == nil {
		return writer.Result{}, nil
	}
	<-r.done
	return r.result, r.err
}
