package audio

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrTimeout is returned when a worker round-trip misses its deadline.
// The caller's data is left untouched in that case.
var ErrTimeout = errors.New("audio: worker call timed out")

// ErrStopped is returned when the worker pool is not running.
var ErrStopped = errors.New("audio: compressor not running")

// Budget for an explicit Compress call, as opposed to the short
// per-frame worker path budget.
const compressCallTimeout = 5 * time.Second

type request struct {
	id      string
	data    [][]float32
	quality float64
	resp    chan response
}

type response struct {
	id  string
	err error
}

// compressor is the worker pool the worker path offloads to. Requests
// and responses are correlated by ID so a late reply from a timed-out
// call is recognized and discarded.
type compressor struct {
	logger  *zap.Logger
	workers int

	mu       sync.Mutex
	requests chan request
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  bool
}

func newCompressor(logger *zap.Logger, workers int) *compressor {
	return &compressor{logger: logger, workers: workers}
}

func (c *compressor) start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	workerCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.requests = make(chan request, c.workers*2)
	c.running = true

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(workerCtx)
	}
}

func (c *compressor) stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.cancel()
	c.running = false
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *compressor) worker(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-c.requests:
			compressVectorized(req.data, req.quality)
			select {
			case req.resp <- response{id: req.id}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// do runs one compression round-trip, bounded by ctx. The response
// channel is buffered so a worker finishing after the deadline does not
// block on a caller that already gave up.
func (c *compressor) do(ctx context.Context, data [][]float32, quality float64) error {
	c.mu.Lock()
	running := c.running
	requests := c.requests
	c.mu.Unlock()
	if !running {
		return ErrStopped
	}

	req := request{
		id:      uuid.NewString(),
		data:    data,
		quality: quality,
		resp:    make(chan response, 1),
	}

	select {
	case requests <- req:
	case <-ctx.Done():
		return ErrTimeout
	}

	select {
	case resp := <-req.resp:
		if resp.id != req.id {
			return ErrTimeout
		}
		return resp.err
	case <-ctx.Done():
		c.logger.Debug("compression call abandoned", zap.String("id", req.id))
		return ErrTimeout
	}
}
