// Package calls tracks the bridge sessions that are currently live, so the
// server can report on them and drain them during shutdown.
package calls

import (
	"context"
	"sort"
	"sync"
)

// Handle is what a registered call exposes to the registry. Hangup asks the
// session to stop; State reports its current lifecycle phase. Either may be
// nil.
type Handle struct {
	Hangup func()
	State  func() string
}

// Info is a point-in-time view of one live call.
type Info struct {
	CallID string
	State  string
}

type Registry struct {
	mu    sync.Mutex
	calls map[string]*trackedCall
	wg    sync.WaitGroup
}

type trackedCall struct {
	handle Handle
	once   sync.Once
}

func NewRegistry() *Registry {
	return &Registry{
		calls: make(map[string]*trackedCall),
	}
}

// Register adds a live call and returns its unregister func. Registering the
// same call ID twice releases the older entry first.
func (r *Registry) Register(callID string, h Handle) (unregister func()) {
	if r == nil {
		return func() {}
	}

	entry := &trackedCall{handle: h}

	r.mu.Lock()
	if r.calls == nil {
		r.calls = make(map[string]*trackedCall)
	}
	old := r.calls[callID]
	r.calls[callID] = entry
	r.wg.Add(1)
	r.mu.Unlock()

	if old != nil {
		r.unregister(callID, old)
	}

	return func() { r.unregister(callID, entry) }
}

func (r *Registry) unregister(callID string, entry *trackedCall) {
	if r == nil || entry == nil {
		return
	}
	entry.once.Do(func() {
		r.mu.Lock()
		if r.calls != nil && r.calls[callID] == entry {
			delete(r.calls, callID)
		}
		r.mu.Unlock()
		r.wg.Done()
	})
}

func (r *Registry) Count() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// Snapshot lists the live calls sorted by call ID.
func (r *Registry) Snapshot() []Info {
	if r == nil {
		return nil
	}

	r.mu.Lock()
	infos := make([]Info, 0, len(r.calls))
	for id, entry := range r.calls {
		info := Info{CallID: id}
		if entry != nil && entry.handle.State != nil {
			info.State = entry.handle.State()
		}
		infos = append(infos, info)
	}
	r.mu.Unlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].CallID < infos[j].CallID })
	return infos
}

// HangupAll asks every live call to stop. Hangups run outside the lock; a
// session's teardown may call back into unregister.
func (r *Registry) HangupAll() (hung int) {
	if r == nil {
		return 0
	}

	var hangups []func()
	r.mu.Lock()
	for _, entry := range r.calls {
		if entry == nil || entry.handle.Hangup == nil {
			continue
		}
		hangups = append(hangups, entry.handle.Hangup)
	}
	r.mu.Unlock()

	for _, hangup := range hangups {
		hangup()
		hung++
	}
	return hung
}

// Wait blocks until every registered call has unregistered, or the context
// expires. It reports whether the registry fully drained.
func (r *Registry) Wait(ctx context.Context) bool {
	if r == nil {
		return true
	}
	if ctx == nil {
		r.wg.Wait()
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
