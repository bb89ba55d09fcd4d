package audio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync/atomic"
	"time"
)

// ErrQueueFull is returned by Submit when the worker is backed up.
var ErrQueueFull = errors.New("pipeline queue full")

// Source is a decoded file the listener opened.
type Source struct {
	Path     string // file the listener picked
	CopyPath string // copy in the working directory
	Name     string // display name, base file name with extension
	Buffer   *Buffer
}

// TransformedPair is everything one conversion produces. It is built
// completely before it leaves the pipeline.
type TransformedPair struct {
	Original  *Buffer
	Converted *Buffer
	Inverted  *Buffer
	Mixed     *Buffer

	OriginalPath  string
	ConvertedPath string
	MixedPath     string
	Bitrate       Bitrate
}

// StageObserver is told how long each pipeline stage took.
type StageObserver interface {
	ObserveStage(stage string, d time.Duration, err error)
}

// JobKind selects what a pipeline job does.
type JobKind int

const (
	JobOpen JobKind = iota
	JobConvert
)

func (k JobKind) String() string {
	switch k {
	case JobOpen:
		return "open"
	case JobConvert:
		return "convert"
	}
	return fmt.Sprintf("JobKind(%d)", int(k))
}

// Job is a unit of background work. Open jobs need Path; convert jobs
// need Source and Bitrate.
type Job struct {
	Kind    JobKind
	Path    string
	Source  *Source
	Bitrate Bitrate
}

// Result carries a finished job back to the caller. Gen is the value
// Submit returned for the job.
type Result struct {
	Gen    uint64
	Kind   JobKind
	Source *Source
	Pair   *TransformedPair
	Err    error
}

type queuedJob struct {
	gen uint64
	job Job
}

// Pipeline decodes and converts audio on a background goroutine and hands
// finished results back over a channel.
type Pipeline struct {
	codec     Codec
	persister Persister
	outputDir string
	observer  StageObserver

	jobCh    chan queuedJob
	resultCh chan Result
	gen      atomic.Uint64
}

// NewPipeline creates a pipeline writing artifacts to outputDir.
func NewPipeline(outputDir string, codec Codec, persister Persister) *Pipeline {
	if persister == nil {
		persister = WAVPersister
	}
	return &Pipeline{
		codec:     codec,
		persister: persister,
		outputDir: outputDir,
		jobCh:     make(chan queuedJob, 8),
		resultCh:  make(chan Result, 8),
	}
}

// SetObserver installs a stage timing observer. Call before Run.
func (p *Pipeline) SetObserver(o StageObserver) {
	p.observer = o
}

// OutputDir returns the artifact directory.
func (p *Pipeline) OutputDir() string {
	return p.outputDir
}

// Results returns the channel of finished jobs.
func (p *Pipeline) Results() <-chan Result {
	return p.resultCh
}

// QueueSize returns the number of jobs waiting for the worker.
func (p *Pipeline) QueueSize() int {
	return len(p.jobCh)
}

// Submit queues a job and returns its generation. Generations increase
// monotonically, so a caller can tell a superseded result by comparing
// against the last generation it submitted. Submit never blocks.
func (p *Pipeline) Submit(job Job) (uint64, error) {
	gen := p.gen.Add(1)
	select {
	case p.jobCh <- queuedJob{gen: gen, job: job}:
		return gen, nil
	default:
		return 0, ErrQueueFull
	}
}

// Run processes jobs until ctx is cancelled. Blocks.
func (p *Pipeline) Run(ctx context.Context) {
	defer close(p.resultCh)
	for {
		select {
		case <-ctx.Done():
			return
		case q := <-p.jobCh:
			res := p.process(ctx, q)
			select {
			case p.resultCh <- res:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (p *Pipeline) process(ctx context.Context, q queuedJob) Result {
	res := Result{Gen: q.gen, Kind: q.job.Kind}
	switch q.job.Kind {
	case JobOpen:
		res.Source, res.Err = p.Open(ctx, q.job.Path)
	case JobConvert:
		if q.job.Source == nil {
			res.Err = fmt.Errorf("convert: no source")
			break
		}
		res.Pair, res.Err = p.Convert(ctx, q.job.Source, q.job.Bitrate)
	default:
		res.Err = fmt.Errorf("unknown job kind %v", q.job.Kind)
	}
	return res
}

// Open decodes path and copies it into the working directory.
func (p *Pipeline) Open(ctx context.Context, path string) (*Source, error) {
	log.Printf("Opening %s...", path)
	var buf *Buffer
	err := p.timed("decode", func() error {
		var err error
		buf, err = Decode(ctx, path)
		return err
	})
	if err != nil {
		return nil, err
	}

	src := &Source{Path: path, Name: filepath.Base(path), Buffer: buf}
	if p.outputDir != "" {
		cp, err := CopySource(p.outputDir, path)
		if err != nil {
			// The copy is a convenience for inspection only.
			log.Printf("Copy source %s: %v", path, err)
		} else {
			src.CopyPath = cp
		}
	}
	log.Printf("Opened %s (%d Hz, %d ch, %.2fs)", src.Name, buf.SampleRate, buf.Channels, buf.Duration().Seconds())
	return src, nil
}

// Convert runs the transform pipeline with artifact names derived from src.
func (p *Pipeline) Convert(ctx context.Context, src *Source, bitrate Bitrate) (*TransformedPair, error) {
	pair, err := p.Transform(ctx, src.Buffer, bitrate, ArtifactPaths(p.outputDir, src.Path, bitrate))
	if err != nil {
		return nil, err
	}
	pair.OriginalPath = src.Path
	return pair, nil
}

// Transform encodes original at bitrate, inverts the lossy copy and
// overlays it on the original. The stages always run in that order and
// each feeds the next. The residual is persisted to art.Mixed.
func (p *Pipeline) Transform(ctx context.Context, original *Buffer, bitrate Bitrate, art Artifacts) (*TransformedPair, error) {
	log.Printf("Converting at %s...", bitrate)
	var converted *Buffer
	err := p.timed("encode", func() error {
		var err error
		converted, err = p.codec.EncodeLossy(ctx, original, bitrate, art.Converted)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Println("Inverting...")
	var inverted *Buffer
	p.timed("invert", func() error {
		inverted = InvertPhase(converted)
		return nil
	})

	log.Println("Mixing...")
	var mixed *Buffer
	err = p.timed("overlay", func() error {
		var err error
		mixed, err = Overlay(original, inverted, 0)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("mix: %w", err)
	}

	if art.Mixed != "" {
		if err := p.timed("persist", func() error { return p.persister.Persist(art.Mixed, mixed) }); err != nil {
			return nil, fmt.Errorf("persist residual: %w", err)
		}
	}

	log.Println("Finished.")
	return &TransformedPair{
		Original:      original,
		Converted:     converted,
		Inverted:      inverted,
		Mixed:         mixed,
		ConvertedPath: art.Converted,
		MixedPath:     art.Mixed,
		Bitrate:       bitrate,
	}, nil
}

func (p *Pipeline) timed(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	d := time.Since(start)
	log.Printf("%s took %.2f seconds", stage, d.Seconds())
	if p.observer != nil {
		p.observer.ObserveStage(stage, d, err)
	}
	return err
}
