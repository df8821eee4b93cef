package reactive

import "sync"

// CombineLatest joins two observables. The result cell is recomputed with fn
// every time either source emits, once both have emitted at least once.
// The returned func detaches from both sources.
func CombineLatest[A, B, R any](a Observable[A], b Observable[B], fn func(A, B) R) (*Cell[R], func()) {
	out := NewCell[R]()
	chA, stopA := a.Observe()
	chB, stopB := b.Observe()
	done := make(chan struct{})

	go func() {
		var (
			lastA A
			lastB B
			haveA bool
			haveB bool
			openA = true
			openB = true
		)
		for openA || openB {
			select {
			case <-done:
				return
			case v, ok := <-chA:
				if !ok {
					openA, chA = false, nil
					continue
				}
				lastA, haveA = v, true
			case v, ok := <-chB:
				if !ok {
					openB, chB = false, nil
					continue
				}
				lastB, haveB = v, true
			}
			if haveA && haveB {
				out.Set(fn(lastA, lastB))
			}
		}
	}()

	var once sync.Once
	return out, func() {
		once.Do(func() {
			close(done)
			stopA()
			stopB()
		})
	}
}
