// Package janitor runs periodic maintenance functions with an explicit stop
// handle, so sweep loops never outlive the process or leak timers in tests.
package janitor

import "time"

// Janitor invokes a function on a fixed interval until stopped.
type Janitor struct {
	ticker *time.Ticker
	stop   chan struct{}
	done   chan struct{}
}

// Start begins running fn every interval. fn runs on its own goroutine and
// must not block for long; stores batch their sweep work accordingly.
func Start(interval time.Duration, fn func()) *Janitor {
	j := &Janitor{
		ticker: time.NewTicker(interval),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go j.run(fn)
	return j
}

func (j *Janitor) run(fn func()) {
	defer close(j.done)
	for {
		select {
		case <-j.ticker.C:
			fn()
		case <-j.stop:
			return
		}
	}
}

// Stop halts the loop and waits for an in-flight run to finish. Safe to call
// once; subsequent calls panic on the closed channel, matching the
// single-owner lifecycle the fx hooks enforce.
func (j *Janitor) Stop() {
	j.ticker.Stop()
	close(j.stop)
	<-j.done
}
