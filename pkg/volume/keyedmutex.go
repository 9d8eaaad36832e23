package volume

import "sync"

// keyedMutex is a process-wide registry of per-resource mutexes, created
// lazily on first use and shared by every controller in the process.
type keyedMutex struct {
	mus sync.Map // key -> *sync.Mutex
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	v, _ := k.mus.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
