package benchmark

import (
	"crypto/rand"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/intellect4all/triekv/common"
	"github.com/intellect4all/triekv/engine"
)

// WorkloadType defines the read/write mix driven against the engine.
type WorkloadType string

const (
	WorkloadWriteHeavy WorkloadType = "write-heavy" // 95% writes
	WorkloadReadHeavy  WorkloadType = "read-heavy"  // 95% reads
	WorkloadBalanced   WorkloadType = "balanced"    // 50/50
	WorkloadReadOnly   WorkloadType = "read-only"
	WorkloadWriteOnly  WorkloadType = "write-only"
)

// Config defines one benchmark scenario against a live Engine.
type Config struct {
	Name string

	Workload    WorkloadType
	Dist        Distribution
	NumKeys     int
	KeySize     int
	ValueSize   int
	Duration    time.Duration
	Concurrency int
	PreloadKeys int
	Seed        int64
}

type Result struct {
	Config Config

	TotalOps  int64
	WriteOps  int64
	ReadOps   int64
	ErrorOps  int64
	Duration  time.Duration
	OpsPerSec float64

	WriteLatency LatencyStats
	ReadLatency  LatencyStats

	EngineStats common.Stats
}

// Benchmark drives a workload against one Engine and reports throughput
// and latency, mirroring the teacher's multi-engine harness but scoped to
// triekv's single storage engine.
type Benchmark struct {
	eng    *engine.Engine
	cfg    Config
	keyGen *KeyGen

	writeLat *LatencyHistogram
	readLat  *LatencyHistogram

	writeCount atomic.Int64
	readCount  atomic.Int64
	errorCount atomic.Int64
}

func NewBenchmark(eng *engine.Engine, cfg Config) *Benchmark {
	return &Benchmark{
		eng:      eng,
		cfg:      cfg,
		keyGen:   NewKeyGen(cfg.NumKeys, cfg.KeySize, cfg.Dist, cfg.Seed),
		writeLat: NewLatencyHistogram(),
		readLat:  NewLatencyHistogram(),
	}
}

// Run preloads, warms up, then measures for cfg.Duration.
func (b *Benchmark) Run() (*Result, error) {
	if b.cfg.PreloadKeys > 0 {
		log.Info().Int("keys", b.cfg.PreloadKeys).Msg("preloading benchmark data")
		if err := b.preload(); err != nil {
			return nil, err
		}
	}

	log.Info().Msg("warming up")
	b.runWorkload(2 * time.Second)

	b.writeLat = NewLatencyHistogram()
	b.readLat = NewLatencyHistogram()
	b.writeCount.Store(0)
	b.readCount.Store(0)
	b.errorCount.Store(0)

	log.Info().Dur("duration", b.cfg.Duration).Msg("running benchmark")
	start := time.Now()
	b.runWorkload(b.cfg.Duration)
	elapsed := time.Since(start)

	return b.result(elapsed), nil
}

func (b *Benchmark) preload() error {
	value := make([]byte, b.cfg.ValueSize)
	_, _ = rand.Read(value)

	for i := 0; i < b.cfg.PreloadKeys; i++ {
		if err := b.eng.Put(b.keyGen.Nth(i), value); err != nil {
			return err
		}
	}
	return nil
}

func (b *Benchmark) runWorkload(d time.Duration) {
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < b.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.worker(stop)
		}()
	}

	time.Sleep(d)
	close(stop)
	wg.Wait()
}

func (b *Benchmark) worker(stop <-chan struct{}) {
	value := make([]byte, b.cfg.ValueSize)
	_, _ = rand.Read(value)

	for {
		select {
		case <-stop:
			return
		default:
			if b.shouldWrite() {
				b.doWrite(value)
			} else {
				b.doRead()
			}
		}
	}
}

func (b *Benchmark) shouldWrite() bool {
	switch b.cfg.Workload {
	case WorkloadWriteOnly:
		return true
	case WorkloadReadOnly:
		return false
	case WorkloadWriteHeavy:
		return b.keyGen.rng.Float64() < 0.95
	case WorkloadReadHeavy:
		return b.keyGen.rng.Float64() < 0.05
	default:
		return b.keyGen.rng.Float64() < 0.50
	}
}

func (b *Benchmark) doWrite(value []byte) {
	key := b.keyGen.Next()
	start := time.Now()
	err := b.eng.Put(key, value)
	lat := time.Since(start)
	if err != nil {
		b.errorCount.Add(1)
		return
	}
	b.writeLat.Record(lat)
	b.writeCount.Add(1)
}

func (b *Benchmark) doRead() {
	key := b.keyGen.Next()
	start := time.Now()
	_, err := b.eng.Get(key)
	lat := time.Since(start)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		b.errorCount.Add(1)
		return
	}
	b.readLat.Record(lat)
	b.readCount.Add(1)
}

func (b *Benchmark) result(d time.Duration) *Result {
	writeOps := b.writeCount.Load()
	readOps := b.readCount.Load()
	total := writeOps + readOps

	return &Result{
		Config:       b.cfg,
		TotalOps:     total,
		WriteOps:     writeOps,
		ReadOps:      readOps,
		ErrorOps:     b.errorCount.Load(),
		Duration:     d,
		OpsPerSec:    float64(total) / d.Seconds(),
		WriteLatency: b.writeLat.Stats(),
		ReadLatency:  b.readLat.Stats(),
		EngineStats:  b.eng.Stats(),
	}
}
