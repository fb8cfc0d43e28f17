package engine

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/intellect4all/triekv/common"
)

const replicaQueueDepth = 4096

// ReplicaLink forwards write intents from a primary to its configured
// replicas (spec §4.7): one bounded FIFO queue per replica endpoint,
// drained by a dedicated goroutine, preserving submission order for that
// replica. A full queue or a failed forward drops the intent; both are
// counted, never retried (source limitation, spec §9).
type ReplicaLink struct {
	client  *http.Client
	queues  map[string]chan common.Record
	dropped atomic.Int64
	wg      sync.WaitGroup
}

// NewReplicaLink starts one worker per replica base URL. An empty urls
// slice yields a link that is safe to Forward/Close but does nothing.
func NewReplicaLink(urls []string) *ReplicaLink {
	r := &ReplicaLink{
		client: &http.Client{Timeout: 5 * time.Second},
		queues: make(map[string]chan common.Record, len(urls)),
	}
	for _, url := range urls {
		ch := make(chan common.Record, replicaQueueDepth)
		r.queues[url] = ch
		r.wg.Add(1)
		go r.drain(url, ch)
	}
	return r
}

// Forward enqueues rec for every configured replica without blocking. A
// replica whose queue is full has this intent dropped for it.
func (r *ReplicaLink) Forward(rec common.Record) {
	for url, ch := range r.queues {
		select {
		case ch <- rec:
		default:
			r.dropped.Add(1)
			log.Warn().Str("replica", url).Str("key", rec.Key).
				Msg("replica queue full, dropping write intent")
		}
	}
}

// Dropped returns the running count of intents dropped, whether by queue
// overflow or by a failed forward.
func (r *ReplicaLink) Dropped() int64 { return r.dropped.Load() }

// Close stops accepting new work and waits for every replica's queue to
// drain.
func (r *ReplicaLink) Close() {
	for _, ch := range r.queues {
		close(ch)
	}
	r.wg.Wait()
}

func (r *ReplicaLink) drain(url string, ch chan common.Record) {
	defer r.wg.Done()
	for rec := range ch {
		if err := r.send(url, rec); err != nil {
			r.dropped.Add(1)
			log.Error().Err(err).Str("replica", url).Str("key", rec.Key).
				Msg("dropping write intent after forward failure")
		}
	}
}

func (r *ReplicaLink) send(baseURL string, rec common.Record) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var req *http.Request
	var err error
	path := baseURL + "/kv/" + rec.Key
	switch rec.Op {
	case common.OpPut:
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, path, bytes.NewReader(rec.Value))
	case common.OpDelete:
		req, err = http.NewRequestWithContext(ctx, http.MethodDelete, path, nil)
	}
	if err != nil {
		return err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("replica %s returned status %d", baseURL, resp.StatusCode)
	}
	return nil
}
