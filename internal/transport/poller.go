package transport

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Poller multiplexes readiness across many UDP channels with a single
// epoll instance, so the receiver agent issues one syscall per duty cycle
// instead of one per endpoint (spec.md §4.9 "Receiver": "Poll all sockets
// via the transport poller ... one syscall per endpoint per iteration").
type Poller struct {
	epfd     int
	channels map[int]*Channel
}

// NewPoller creates an epoll-backed poller.
func NewPoller() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("transport: epoll_create1: %w", err)
	}
	return &Poller{epfd: epfd, channels: make(map[int]*Channel)}, nil
}

// Add registers a channel for read readiness.
func (p *Poller) Add(ch *Channel) error {
	fd, err := ch.Fd()
	if err != nil {
		return fmt.Errorf("transport: poller add: %w", err)
	}

	event := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
		return fmt.Errorf("transport: epoll_ctl add fd %d: %w", fd, err)
	}
	p.channels[fd] = ch
	return nil
}

// Remove deregisters a channel.
func (p *Poller) Remove(ch *Channel) error {
	fd, err := ch.Fd()
	if err != nil {
		return fmt.Errorf("transport: poller remove: %w", err)
	}

	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("transport: epoll_ctl del fd %d: %w", fd, err)
	}
	delete(p.channels, fd)
	return nil
}

// Poll waits up to timeoutMs milliseconds (0 returns immediately, -1 blocks
// indefinitely — callers in the agent loop always pass 0, per spec.md §5
// "No component may hold a syscall that blocks beyond the configured
// socket timeouts") and invokes visit for each ready channel.
func (p *Poller) Poll(timeoutMs int, visit func(ch *Channel)) (int, error) {
	var events [64]unix.EpollEvent

	n, err := unix.EpollWait(p.epfd, events[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("transport: epoll_wait: %w", err)
	}

	for i := 0; i < n; i++ {
		if ch, ok := p.channels[int(events[i].Fd)]; ok {
			visit(ch)
		}
	}
	return n, nil
}

// Close releases the epoll instance.
func (p *Poller) Close() error {
	return unix.Close(p.epfd)
}
