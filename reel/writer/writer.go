package writer

import (
	"hash"
	"io"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/indrora/reel/reel/chunk"
	"github.com/indrora/reel/reel/codec"
	"github.com/indrora/reel/reel/format"
	"github.com/indrora/reel/reel/ioutil"
	"github.com/indrora/reel/reel/metrics"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

var (
	ErrNonMonotonic   = errors.New("ticks are not monotonic")
	ErrUnknownStream  = errors.New("unknown stream")
	ErrNoTickRate     = errors.New("ticks per second must not be 0")
	ErrAlreadyStarted = errors.New("writer already started")
)

// Message is one span of buffered entries handed over by the recorder.
type Message struct {
	Stream  format.Stream
	Entries []chunk.Entry
}

type Config struct {
	// Where the recording lives while it is written
	TmpDir string
	// Where finished recordings are moved to
	Dir string
	// File name without extension
	Name        string
	Compression format.CompressionType

	FS      FS
	Logger  hclog.Logger
	Metrics *metrics.Metrics
}

// Result describes what happened to the recording once the writer is done.
type Result struct {
	// Final location; empty unless the recording was finalized
	Path string
	// Temporary location; left behind when the writer failed
	TempPath  string
	Discarded bool
	Header    format.FileHeader
	Tail      format.Tail
}

// tickRange is the first/last bookkeeping of one stream.
type tickRange struct {
	set        bool
	first      uint64
	last       uint64
	chunkFirst uint64
}

func (r *tickRange) check(span chunk.Span) error {
	if !r.set {
		return nil
	}
	if span.First < r.chunkFirst {
		return errors.Wrapf(ErrNonMonotonic, "chunk starts at tick %d, previous chunk started at %d", span.First, r.chunkFirst)
	}
	// the index is keyed by first tick, a repeat would shadow the earlier chunk
	if span.First == r.chunkFirst {
		return errors.Wrapf(ErrNonMonotonic, "chunk starts at tick %d like the previous chunk", span.First)
	}
	if span.Last < r.last {
		return errors.Wrapf(ErrNonMonotonic, "chunk ends at tick %d, previous chunk ended at %d", span.Last, r.last)
	}
	return nil
}

func (r *tickRange) commit(span chunk.Span) {
	if !r.set {
		r.first = span.First
		r.set = true
	}
	r.chunkFirst = span.First
	r.last = span.Last
}

// RecordingWriter owns one recording file for its whole life. It is driven by a
// single goroutine through Run.
type RecordingWriter struct {
	cfg Config
	ext format.HeaderExt
	log hclog.Logger

	file      File
	out       *ioutil.CountingWriter
	chunkHash hash.Hash
	chunks    *ioutil.HashWriter

	codec   *codec.Codec
	encoder *chunk.Encoder
	scratch []byte

	header      format.FileHeader
	chunksStart uint64
	tail        format.Tail
	ranges      [2]tickRange
}

func New(cfg Config, ext format.HeaderExt) *RecordingWriter {
	if cfg.FS == nil {
		cfg.FS = OSFS{}
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}

	return &RecordingWriter{
		cfg: cfg,
		ext: ext,
		log: cfg.Logger.Named("writer").With("recording", cfg.Name),
	}
}

// Run writes every message received on in and finalizes the recording once in is
// closed. It returns at the first failure, leaving the temporary file behind.
func (w *RecordingWriter) Run(in <-chan Message) (Result, error) {
	if err := w.begin(); err != nil {
		w.cfg.Metrics.Recordings.WithLabelValues(metrics.RESULT_FAILED).Inc()
		return w.result(), err
	}
	defer w.codec.Close()

	for msg := range in {
		if err := w.AppendChunk(msg.Stream, msg.Entries); err != nil {
			w.log.Error("recording abandoned", "stream", msg.Stream.String(), "error", err)
			w.file.Close()
			w.cfg.Metrics.Recordings.WithLabelValues(metrics.RESULT_FAILED).Inc()
			return w.result(), err
		}
	}

	res, err := w.finish()
	if err != nil {
		w.log.Error("failed to finalize recording", "error", err)
		w.cfg.Metrics.Recordings.WithLabelValues(metrics.RESULT_FAILED).Inc()
	}
	return res, err
}

// begin creates the temporary file and writes the placeholder header and the header ext.
func (w *RecordingWriter) begin() error {
	if w.file != nil {
		return ErrAlreadyStarted
	}
	if w.ext.TicksPerSecond == 0 {
		return ErrNoTickRate
	}

	fs := w.cfg.FS
	if err := fs.MkdirAll(w.cfg.TmpDir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create temporary directory")
	}
	if err := fs.MkdirAll(w.cfg.Dir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create recording directory")
	}

	var err error
	w.codec, err = codec.New(w.cfg.Compression)
	if err != nil {
		return err
	}
	w.encoder = chunk.NewEncoder(w.codec)

	w.file, err = fs.CreateTemp(w.cfg.TmpDir, w.cfg.Name+"-*.tmp")
	if err != nil {
		w.codec.Close()
		return errors.Wrap(err, "failed to create temporary file")
	}
	w.out = ioutil.NewCountingWriter(w.file)
	w.chunkHash, _ = blake2b.New256(nil)
	w.chunks = ioutil.NewHashWriter(w.out, w.chunkHash)

	ext, err := w.compressed(w.ext)
	if err != nil {
		w.abort()
		return errors.Wrap(err, "failed to encode header ext")
	}

	// SizeChunks stays 0 until the end, so an unfinished file is easy to spot.
	w.header = format.FileHeader{
		SizeExt:     uint64(len(ext)),
		Compression: w.cfg.Compression,
	}
	if err := w.out.WriteWhole(w.header.ToBytes()); err != nil {
		w.abort()
		return err
	}
	if err := w.out.WriteWhole(ext); err != nil {
		w.abort()
		return err
	}
	w.chunksStart = w.out.Written()

	w.log.Debug("recording started", "path", w.file.Name(), "compression", w.cfg.Compression.String())
	return nil
}

func (w *RecordingWriter) abort() {
	w.file.Close()
	w.codec.Close()
}

// compressed serializes v and compresses it into the scratch buffer.
func (w *RecordingWriter) compressed(v any) ([]byte, error) {
	ser, err := codec.Serialize(nil, v)
	if err != nil {
		return nil, err
	}
	w.scratch, err = w.codec.Compress(w.scratch[:0], ser)
	return w.scratch, err
}

// AppendChunk encodes entries as one chunk of stream and appends it to the file.
// Ticks have to keep moving forward per stream; a violation leaves the index untouched.
func (w *RecordingWriter) AppendChunk(stream format.Stream, entries []chunk.Entry) error {
	if stream != format.STREAM_SNAPSHOTS && stream != format.STREAM_EVENTS {
		return errors.Wrapf(ErrUnknownStream, "stream %d", stream)
	}
	if len(entries) == 0 {
		return chunk.ErrEmptyChunk
	}

	rng := &w.ranges[stream]
	if err := rng.check(chunk.Span{First: entries[0].Tick, Last: entries[len(entries)-1].Tick}); err != nil {
		return err
	}

	offset := w.out.Written() - w.chunksStart

	span, blob, err := w.encoder.Encode(entries)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s chunk", stream)
	}
	if _, err := w.chunks.Write(blob); err != nil {
		return errors.Wrapf(err, "failed to write %s chunk", stream)
	}

	w.tail.IndexFor(stream).Insert(span.First, offset)
	rng.commit(span)

	label := stream.String()
	w.cfg.Metrics.ChunksWritten.WithLabelValues(label).Inc()
	w.cfg.Metrics.ChunkBytes.WithLabelValues(label).Add(float64(len(blob)))
	w.cfg.Metrics.EntriesWritten.WithLabelValues(label).Add(float64(span.Count))
	w.cfg.Metrics.ChunkSize.Observe(float64(len(blob)))

	w.log.Trace("chunk written", "stream", label, "first", span.First, "last", span.Last, "entries", span.Count, "offset", offset, "bytes", len(blob))
	return nil
}

// span returns the tick range covered by both streams.
func (w *RecordingWriter) span() (first, last uint64, ok bool) {
	for _, r := range w.ranges {
		if !r.set {
			continue
		}
		if !ok || r.first < first {
			first = r.first
		}
		if !ok || r.last > last {
			last = r.last
		}
		ok = true
	}
	return first, last, ok
}

// duration converts a tick count into wall time at tps ticks per second.
func duration(ticks, tps uint64) time.Duration {
	secs := ticks / tps
	nanos := (ticks % tps) * (uint64(time.Second) / tps)
	return time.Duration(secs)*time.Second + time.Duration(nanos)
}

func (w *RecordingWriter) finish() (Result, error) {
	defer w.file.Close()

	first, last, ok := w.span()
	if !ok {
		// nothing was ever written, an empty recording is not kept
		w.file.Close()
		if err := w.cfg.FS.Remove(w.file.Name()); err != nil {
			w.log.Warn("failed to remove empty recording", "path", w.file.Name(), "error", err)
		}
		w.cfg.Metrics.Recordings.WithLabelValues(metrics.RESULT_DISCARDED).Inc()
		w.log.Debug("empty recording discarded")
		res := w.result()
		res.Discarded = true
		return res, nil
	}

	chunksSize := w.out.Written() - w.chunksStart
	w.tail.Checksum = w.chunkHash.Sum(nil)

	tail, err := w.compressed(&w.tail)
	if err != nil {
		return w.result(), errors.Wrap(err, "failed to encode tail")
	}
	if err := w.out.WriteWhole(tail); err != nil {
		return w.result(), errors.Wrap(err, "failed to write tail")
	}

	w.header.Len = uint64(duration(last-first, w.ext.TicksPerSecond))
	w.header.SizeChunks = chunksSize

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return w.result(), errors.Wrap(err, "failed to seek to header")
	}
	if err := w.header.WriteHeader(w.file); err != nil {
		return w.result(), err
	}
	if err := w.file.Sync(); err != nil {
		return w.result(), errors.Wrap(err, "failed to sync recording")
	}
	if err := w.file.Close(); err != nil {
		return w.result(), errors.Wrap(err, "failed to close recording")
	}

	final := filepath.Join(w.cfg.Dir, w.cfg.Name+format.FILE_EXTENSION)
	if err := w.cfg.FS.Rename(w.file.Name(), final); err != nil {
		return w.result(), errors.Wrap(err, "failed to move recording into place")
	}
	tagFile(w.log, final, w.ext)

	w.cfg.Metrics.Recordings.WithLabelValues(metrics.RESULT_FINALIZED).Inc()
	w.log.Info("recording finished", "path", final, "duration", w.header.Duration(), "chunk_bytes", chunksSize)

	res := w.result()
	res.Path = final
	return res, nil
}

func (w *RecordingWriter) result() Result {
	res := Result{
		Header: w.header,
		Tail:   w.tail,
	}
	if w.file != nil {
		res.TempPath = w.file.Name()
	}
	return res
}
