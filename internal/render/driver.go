package render

import (
	"sync"
	"time"
)

// Driver calls frame once per display frame until the returned cancel
// func is called.
type Driver interface {
	Start(frame func()) (cancel func())
}

// TickerDriver runs frames on its own goroutine at a fixed rate.
type TickerDriver struct {
	Interval time.Duration
}

// NewTickerDriver returns a driver ticking fps times per second.
func NewTickerDriver(fps int) TickerDriver {
	if fps <= 0 {
		fps = 60
	}
	return TickerDriver{Interval: time.Second / time.Duration(fps)}
}

// Start runs frame on every tick. Cancel waits for the goroutine to exit,
// so no frame runs after it returns. It must not be called from frame.
func (d TickerDriver) Start(frame func()) func() {
	done := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		ticker := time.NewTicker(d.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				frame()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-exited
		})
	}
}
