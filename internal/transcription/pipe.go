package transcription

import "sync"

const defaultBuffer = 64

// pipe - общая основа потоков: канал событий, который закрывается ровно один раз.
// Отправка никогда не переживает остановку, поэтому Stop не ждет потребителя.
type pipe struct {
	mu       sync.Mutex
	out      chan Event
	stop     chan struct{}
	closed   bool
	stopOnce sync.Once
}

func newPipe(buffer int) *pipe {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &pipe{
		out:  make(chan Event, buffer),
		stop: make(chan struct{}),
	}
}

func (p *pipe) Events() <-chan Event {
	return p.out
}

// send ждет, пока потребитель заберет событие или поток остановят
func (p *pipe) send(ev Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.out <- ev:
		return true
	case <-p.stop:
		return false
	}
}

func (p *pipe) done() <-chan struct{} {
	return p.stop
}

func (p *pipe) isStopped() bool {
	select {
	case <-p.stop:
		return true
	default:
		return false
	}
}

func (p *pipe) shutdown() {
	p.stopOnce.Do(func() {
		close(p.stop)
		p.mu.Lock()
		p.closed = true
		close(p.out)
		p.mu.Unlock()
	})
}
