package store

import "sync"

// ChanFeed is a Feed backed by a buffered channel. Backends push snapshots
// with Send and end the feed with Fail or Close.
type ChanFeed struct {
	ch      chan ChangeBatch
	done    chan struct{}
	once    sync.Once
	mu      sync.Mutex
	err     error
	onClose func()
}

func NewChanFeed(buf int, onClose func()) *ChanFeed {
	return &ChanFeed{
		ch:      make(chan ChangeBatch, buf),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

func (f *ChanFeed) Batches() <-chan ChangeBatch { return f.ch }

func (f *ChanFeed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Done is closed once the feed has ended.
func (f *ChanFeed) Done() <-chan struct{} { return f.done }

// Send delivers b unless the feed has ended. When the buffer is full the
// oldest pending snapshot is dropped, since every batch is a full window.
func (f *ChanFeed) Send(b ChangeBatch) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.done:
		return false
	default:
	}
	for {
		select {
		case f.ch <- b:
			return true
		default:
		}
		select {
		case <-f.ch:
		default:
		}
	}
}

func (f *ChanFeed) Fail(err error) { f.end(err) }

func (f *ChanFeed) Close() { f.end(nil) }

func (f *ChanFeed) end(err error) {
	f.once.Do(func() {
		f.mu.Lock()
		f.err = err
		close(f.done)
		close(f.ch)
		f.mu.Unlock()
		if f.onClose != nil {
			f.onClose()
		}
	})
}
