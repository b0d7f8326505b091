package protocol

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/retry"
)

// Job is one unit of work dispatched to a worker client: a command plus
// parameters, a caller-chosen Key surfaced on completion, a Result
// target to decode the response into (nil if the caller doesn't need
// it), and a per-job retry policy.
type Job struct {
	Key       string
	Cmd       string
	Parameter []interface{}
	Result    interface{}
	Retries   int
	Interval  time.Duration
}

// Completion reports one job's outcome: its Key for caller-side
// reordering, the worker Pid that ran it (for log correlation), and
// Err if every retry was exhausted.
type Completion struct {
	Key string
	Pid int
	Err error
}

// Executor dispatches jobs across a fixed pool of worker Clients.
// Clients are read concurrently by separate goroutines but each
// individual Client sees strictly FIFO request/response traffic, per
// the wire protocol's ordering rule; across the pool, completions
// surface in completion order, not submission order.
type Executor struct {
	clients []*Client
	clock   clock.Clock
}

// NewExecutor pools clients for parallel dispatch.
func NewExecutor(clients []*Client) *Executor {
	return &Executor{clients: clients, clock: clock.WallClock}
}

// Run dispatches every job in jobs across the client pool and calls
// onComplete once per job, in completion order, as each finishes. Run
// blocks until every job completes or ctx is cancelled; a job whose
// retries are exhausted still completes, with Completion.Err set, and
// the other jobs go on. ctx cancellation closes every client (observing EOF on the
// worker side) and returns ctx.Err().
func (e *Executor) Run(ctx context.Context, jobs []Job, onComplete func(Completion)) error {
	if len(e.clients) == 0 {
		return errors.New("executor has no worker clients")
	}

	queue := make(chan Job, len(jobs))
	for _, j := range jobs {
		queue <- j
	}
	close(queue)

	completions := make(chan Completion, len(jobs))
	var wg sync.WaitGroup
	for _, c := range e.clients {
		wg.Add(1)
		go func(client *Client) {
			defer wg.Done()
			for job := range queue {
				completions <- e.runOne(client, job)
			}
		}(c)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(completions)
		close(done)
	}()

	delivered := 0
	for delivered < len(jobs) {
		select {
		case comp, ok := <-completions:
			if !ok {
				return nil
			}
			onComplete(comp)
			delivered++
		case <-ctx.Done():
			for _, c := range e.clients {
				c.Exit()
			}
			return errors.Trace(ctx.Err())
		}
	}
	<-done
	return nil
}

func (e *Executor) runOne(client *Client, job Job) Completion {
	var lastErr error
	attempts := job.Retries + 1
	if attempts < 1 {
		attempts = 1
	}
	interval := job.Interval
	if interval <= 0 {
		interval = time.Second
	}

	err := retry.Call(retry.CallArgs{
		Func: func() error {
			lastErr = client.Call(job.Cmd, job.Parameter, job.Result)
			return lastErr
		},
		Attempts: attempts,
		Delay:    interval,
		Clock:    e.clock,
	})
	if err != nil {
		return Completion{Key: job.Key, Pid: client.Pid(), Err: errors.Annotatef(lastErr, "job %q", job.Key)}
	}
	return Completion{Key: job.Key, Pid: client.Pid()}
}
