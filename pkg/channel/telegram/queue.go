package telegram

import (
	"context"
	"sync"
)

// senderQueues runs jobs one at a time per sender, in dispatch order. A
// sender's worker exits as soon as it has nothing pending.
type senderQueues struct {
	mu     sync.Mutex
	queues map[string]*senderQueue
}

const senderQueueSize = 32

type senderQueue struct {
	jobs    chan func()
	pending int
}

func newSenderQueues() *senderQueues {
	return &senderQueues{queues: make(map[string]*senderQueue)}
}

// dispatch enqueues job for key without blocking. It reports false and drops
// the job when the sender already has senderQueueSize jobs waiting, so one
// busy sender never stalls the others.
func (s *senderQueues) dispatch(ctx context.Context, key string, job func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue, ok := s.queues[key]
	if !ok {
		queue = &senderQueue{jobs: make(chan func(), senderQueueSize)}
		s.queues[key] = queue
		go s.work(ctx, key, queue)
	}

	select {
	case queue.jobs <- job:
		queue.pending++
		return true
	default:
		return false
	}
}

func (s *senderQueues) work(ctx context.Context, key string, queue *senderQueue) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-queue.jobs:
			job()
		}

		s.mu.Lock()
		queue.pending--
		if queue.pending == 0 {
			delete(s.queues, key)
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
	}
}

func (s *senderQueues) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues)
}
