package engine

import "sync"

// keyedMutex serializes work per key. Two concurrent observations of the
// same company must not both run the repost search or the score recompute;
// observations of different companies proceed in parallel.
type keyedMutex struct {
	locks sync.Map // key → *sync.Mutex
}

func (k *keyedMutex) Lock(key string) func() {
	v, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
