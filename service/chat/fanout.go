package chat

import (
	"sync"

	"VoiceGate/logger"
	"VoiceGate/tools/safe"
)

// Fanout runs observer notifications off the caller's path. With one worker the
// jobs run in submission order, which keeps presence updates for a clientId ordered.
type Fanout struct {
	jobs chan func()
	wg   sync.WaitGroup
	once sync.Once
	mu   sync.RWMutex
	shut bool
}

func NewFanout(workers, queue int) *Fanout {
	if workers <= 0 {
		workers = 1
	}
	f := &Fanout{jobs: make(chan func(), queue)}
	for i := 0; i < workers; i++ {
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			for job := range f.jobs {
				if err := safe.Recover(job); err != nil {
					logger.Errorf("[Fanout] job panic: %v", err)
				}
			}
		}()
	}
	return f
}

// Submit enqueues job; a full queue drops it rather than stalling the caller.
func (f *Fanout) Submit(job func()) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.shut {
		return false
	}
	select {
	case f.jobs <- job:
		return true
	default:
		logger.Warnf("[Fanout] queue full, dropping notification")
		return false
	}
}

// Close drains pending jobs and stops the workers.
func (f *Fanout) Close() {
	f.once.Do(func() {
		f.mu.Lock()
		f.shut = true
		close(f.jobs)
		f.mu.Unlock()
		f.wg.Wait()
	})
}
