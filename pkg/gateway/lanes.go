package gateway

import (
	"context"
	"sync"
)

// userLanes serializes turns per user key. Entries are reference counted and
// dropped once no turn holds or waits on them.
type userLanes struct {
	mu    sync.Mutex
	lanes map[string]*userLane
}

// userLane is a capacity-1 semaphore shared by every turn for one user.
type userLane struct {
	slot chan struct{}
	refs int
}

func newUserLanes() *userLanes {
	return &userLanes{lanes: make(map[string]*userLane)}
}

// acquire blocks until the lane for key is free or ctx is done. The returned
// release func must be called exactly once; extra calls are no-ops.
func (l *userLanes) acquire(ctx context.Context, key string) (func(), error) {
	lane := l.join(key)

	select {
	case lane.slot <- struct{}{}:
	case <-ctx.Done():
		l.leave(key, lane)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lane.slot
			l.leave(key, lane)
		})
	}, nil
}

func (l *userLanes) join(key string) *userLane {
	l.mu.Lock()
	defer l.mu.Unlock()

	lane, ok := l.lanes[key]
	if !ok {
		lane = &userLane{slot: make(chan struct{}, 1)}
		l.lanes[key] = lane
	}
	lane.refs++
	return lane
}

func (l *userLanes) leave(key string, lane *userLane) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lane.refs--
	if lane.refs == 0 {
		delete(l.lanes, key)
	}
}

func (l *userLanes) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lanes)
}
