package room

import "sync"

// outbox 每個房間一個的有序送出佇列
//
// 推入永不阻塞，驗證下一個動作不必等網路送出；單一 goroutine 依序送出。
type outbox struct {
	mu     sync.Mutex
	items  []Delta
	signal chan struct{}
	pub    Publisher
}

func newOutbox(pub Publisher) *outbox {
	return &outbox{
		signal: make(chan struct{}, 1),
		pub:    pub,
	}
}

func (o *outbox) push(d Delta) {
	o.mu.Lock()
	o.items = append(o.items, d)
	o.mu.Unlock()

	select {
	case o.signal <- struct{}{}:
	default:
	}
}

// run 送出直到 done 關閉；關閉前先送完已排入的通知
func (o *outbox) run(done <-chan struct{}) {
	for {
		select {
		case <-o.signal:
			o.flush()
		case <-done:
			o.flush()
			return
		}
	}
}

func (o *outbox) flush() {
	for {
		o.mu.Lock()
		batch := o.items
		o.items = nil
		o.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		if o.pub == nil {
			continue
		}
		for _, d := range batch {
			o.pub.Publish(d)
		}
	}
}
