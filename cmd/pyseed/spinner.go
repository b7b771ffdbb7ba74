package main

import (
	"io"
	"sync"
	"time"

	"github.com/muesli/termenv"
)

const (
	tickInterval = 120 * time.Millisecond
	// spinnerDelay hides the spinner for steps that finish quickly.
	spinnerDelay = 300 * time.Millisecond
)

var spinnerFrames = []string{"|", "/", "-", `\`}

// stageSpinner animates one line on terminals without color support. It
// appears only once a stage has lasted longer than its delay.
type stageSpinner struct {
	out   *termenv.Output
	delay time.Duration
	tick  time.Duration

	mu      sync.Mutex
	stage   string
	since   time.Time
	frame   int
	drawn   bool
	stopped bool

	quit chan struct{}
	done chan struct{}
}

func newStageSpinner(w io.Writer, delay time.Duration) *stageSpinner {
	return newCustomStageSpinner(w, delay, tickInterval)
}

func newCustomStageSpinner(w io.Writer, delay, tick time.Duration) *stageSpinner {
	if w == nil {
		w = io.Discard
	}
	s := &stageSpinner{
		out:   termenv.NewOutput(w, termenv.WithProfile(termenv.Ascii)),
		delay: delay,
		tick:  tick,
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *stageSpinner) Stage(stage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if s.stage == "" {
		s.since = time.Now()
	}
	s.stage = stage
	s.drawLocked(time.Now())
}

// Stop clears the line and waits for the animation to end. It is safe to
// call more than once.
func (s *stageSpinner) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.quit)
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drawn {
		s.clearLocked()
	}
}

func (s *stageSpinner) run() {
	defer close(s.done)
	t := time.NewTicker(s.tick)
	defer t.Stop()
	for {
		select {
		case <-s.quit:
			return
		case now := <-t.C:
			s.mu.Lock()
			s.drawLocked(now)
			s.mu.Unlock()
		}
	}
}

func (s *stageSpinner) drawLocked(now time.Time) {
	if s.stopped || s.stage == "" || now.Sub(s.since) < s.delay {
		return
	}
	s.clearLocked()
	_, _ = s.out.WriteString(spinnerFrames[s.frame%len(spinnerFrames)] + " " + stageMessage(s.stage))
	s.frame++
	s.drawn = true
}

func (s *stageSpinner) clearLocked() {
	s.out.ClearLine()
	_, _ = s.out.WriteString("\r")
}
