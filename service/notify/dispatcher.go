package notify

import (
	"encoding/json"
	"strconv"
	"sync"

	"SCProject/logger"
)

// Publisher is the push transport; *nats.Conn satisfies it directly.
type Publisher interface {
	Publish(subject string, data []byte) error
}

const subjectPrefix = "push.user."

type job struct {
	subject string
	payload []byte
}

// Dispatcher is a bounded worker pool for fire-and-forget push events, so
// a slow external push provider can never block chat delivery. Enqueue
// never blocks; overflow is logged and dropped.
type Dispatcher struct {
	pub     Publisher
	jobs    chan job
	wg      sync.WaitGroup
	stopOne sync.Once

	mu     sync.Mutex
	closed bool
}

func NewDispatcher(pub Publisher, workers, queue int) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	if queue <= 0 {
		queue = 1024
	}
	d := &Dispatcher{
		pub:  pub,
		jobs: make(chan job, queue),
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		if d.pub == nil {
			logger.Debugf("[push] no publisher, drop subject=%s", j.subject)
			continue
		}
		if err := d.pub.Publish(j.subject, j.payload); err != nil {
			logger.Warnf("[push] publish failed subject=%s err=%v", j.subject, err)
		}
	}
}

// Enqueue schedules one push event for userID. Marshal or queue-overflow
// failures are logged; the caller never sees them.
func (d *Dispatcher) Enqueue(userID int64, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Errorf("[push] marshal user=%d err=%v", userID, err)
		return
	}
	j := job{subject: subjectPrefix + strconv.FormatInt(userID, 10), payload: payload}

	// Hijacked ws handlers can outlive the http server's shutdown, so an
	// enqueue may arrive after Close; the flag keeps it off the closed
	// channel.
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		logger.Debugf("[push] dispatcher closed, drop user=%d", userID)
		return
	}
	select {
	case d.jobs <- j:
	default:
		logger.Warnf("[push] queue full, drop user=%d", userID)
	}
}

// Close stops accepting jobs and waits for in-flight publishes. Enqueue
// calls after Close are dropped.
func (d *Dispatcher) Close() {
	d.stopOne.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.jobs)
		d.mu.Unlock()
	})
	d.wg.Wait()
}
