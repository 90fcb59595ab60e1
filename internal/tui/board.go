// Package tui renders a live fleet board in the terminal.
package tui

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"sentinel-sim/internal/sim"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// Controller applies board commands. A remote board has none.
type Controller interface {
	RebootGateway(ctx context.Context, id string) error
	ControlNodes(ctx context.Context, c sim.NodeControl) (int, error)
	AckAlert(ctx context.Context, id string) error
}

// snapshotMsg carries a new world view.
type snapshotMsg struct{ sim.Snapshot }

// statusMsg is a one-line notice for the footer.
type statusMsg struct{ line string }

// sourceMsg reports whether the feed is connected.
type sourceMsg struct {
	label     string
	connected bool
}

// Options configures a Board.
type Options struct {
	// Source names the feed in the footer, e.g. "local" or a URL.
	Source string
	// TTL is the online window used for health colours.
	TTL time.Duration
	// Connected is the initial feed state; a local engine starts connected.
	Connected bool
	// Controller enables the command prompt when set.
	Controller Controller
}

// Board is a bubbletea program fed with snapshots.
type Board struct {
	program teaProgram
	run     func() error
	done    chan struct{}
	err     error
	closed  atomic.Bool

	// one-slot mailbox drained by pump; a newer snapshot replaces an unsent one
	once    sync.Once
	mu      sync.Mutex
	pending *sim.Snapshot
	wake    chan struct{}
	stop    chan struct{}
}

// New builds a board drawing to the terminal's alternate screen.
func New(opts Options) *Board {
	p := tea.NewProgram(newModel(opts), tea.WithAltScreen())
	return &Board{
		program: p,
		run:     func() error { _, err := p.Run(); return err },
		done:    make(chan struct{}),
	}
}

// Run blocks until the user quits or Close is called.
func (b *Board) Run() error {
	defer close(b.done)
	b.err = b.run()
	return b.err
}

// Done is closed once Run returns.
func (b *Board) Done() <-chan struct{} { return b.done }

// Deliver hands a snapshot to the board. It satisfies sim.Subscriber and
// returns sim.ErrSubscriberClosed once the board has quit. It never waits on
// the program: a snapshot still queued when the next arrives is dropped.
func (b *Board) Deliver(s sim.Snapshot) error {
	if b.closed.Load() {
		return sim.ErrSubscriberClosed
	}
	select {
	case <-b.done:
		return sim.ErrSubscriberClosed
	default:
	}
	b.start()
	b.mu.Lock()
	b.pending = &s
	b.mu.Unlock()
	select {
	case b.wake <- struct{}{}:
	default:
	}
	return nil
}

func (b *Board) start() {
	b.once.Do(func() {
		b.wake = make(chan struct{}, 1)
		b.stop = make(chan struct{})
		go b.pump()
	})
}

// pump forwards the newest pending snapshot to the program until Close.
func (b *Board) pump() {
	for {
		select {
		case <-b.stop:
			return
		case <-b.wake:
		}
		b.mu.Lock()
		s := b.pending
		b.pending = nil
		b.mu.Unlock()
		if s != nil {
			b.program.Send(snapshotMsg{*s})
		}
	}
}

// Notify shows line in the footer.
func (b *Board) Notify(line string) {
	b.program.Send(statusMsg{line: line})
}

// SetConnected updates the feed indicator.
func (b *Board) SetConnected(label string, ok bool) {
	b.program.Send(sourceMsg{label: label, connected: ok})
}

// Close stops the program and waits for the terminal to be restored.
func (b *Board) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	b.start()
	close(b.stop)
	b.program.Send(tea.Quit())
	if b.done != nil {
		<-b.done
	}
	return nil
}
