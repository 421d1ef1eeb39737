package challenge

import (
	"fmt"
	mrand "math/rand/v2"
	"sync"
	"time"
)

const (
	sliderMin       = 0
	sliderMax       = 100
	targetMin       = 10
	targetMax       = 90
	sliderTolerance = 2
	sliderDwell     = 450 * time.Millisecond
)

// Slider is the interactive check: the visitor drags a value onto a hidden
// target and holds it within tolerance for the dwell time. Once solved it
// never changes again. Its token is only a client-side completion marker.
type Slider struct {
	target    int
	salt      string
	token     string
	dwell     time.Duration
	onSolved  func(token string)
	afterFunc func(time.Duration, func()) (stop func() bool)

	mu      sync.Mutex
	value   int
	solved  bool
	pending func() bool
	gen     uint64
}

type SliderOption func(*Slider)

// WithTarget pins the target. Values outside [10,90] are clamped.
func WithTarget(target int) SliderOption {
	return func(s *Slider) {
		s.target = min(max(target, targetMin), targetMax)
	}
}

// WithAfterFunc replaces time.AfterFunc for deterministic tests.
func WithAfterFunc(fn func(time.Duration, func()) (stop func() bool)) SliderOption {
	return func(s *Slider) {
		s.afterFunc = fn
	}
}

// NewSlider creates an unsolved slider at value 0 with a uniform random target.
func NewSlider(onSolved func(token string), opts ...SliderOption) *Slider {
	s := &Slider{
		target:   targetMin + mrand.IntN(targetMax-targetMin+1),
		salt:     randomSalt(),
		dwell:    sliderDwell,
		onSolved: onSolved,
		afterFunc: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.token = Hash(fmt.Sprintf("%d:%s", s.target, s.salt))
	return s
}

// Move sets the slider value. Changing the value cancels any pending hold;
// landing within tolerance of the target starts a new one.
func (s *Slider) Move(value int) {
	value = min(max(value, sliderMin), sliderMax)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.solved || value == s.value {
		return
	}
	s.value = value
	s.cancelPendingLocked()

	if abs(value-s.target) > sliderTolerance {
		return
	}
	s.gen++
	gen := s.gen
	s.pending = s.afterFunc(s.dwell, func() { s.fire(gen) })
}

func (s *Slider) fire(gen uint64) {
	s.mu.Lock()
	if s.solved || gen != s.gen || s.pending == nil {
		s.mu.Unlock()
		return
	}
	s.solved = true
	s.pending = nil
	token := s.token
	s.mu.Unlock()

	if s.onSolved != nil {
		s.onSolved(token)
	}
}

func (s *Slider) cancelPendingLocked() {
	if s.pending != nil {
		s.pending()
		s.pending = nil
	}
	// A timer that already fired but is waiting on mu sees a stale generation.
	s.gen++
}

func (s *Slider) Solved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.solved
}

func (s *Slider) Value() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

func (s *Slider) Target() int {
	return s.target
}

func (s *Slider) Token() string {
	return s.token
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
