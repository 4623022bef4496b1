package chat

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Guard drops submissions that would duplicate one already made: a send while another is still
// streaming, a second send inside the throttle window, or the same message hash twice.
type Guard struct {
	mu      sync.Mutex
	sending bool
	limiter *rate.Limiter
	hashes  map[string]struct{}

	now func() time.Time
}

// DefaultThrottle is the minimum spacing between two sends.
const DefaultThrottle = time.Second

var (
	// ErrEmptyMessage is returned for a message that is blank after trimming.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrSendInProgress is returned while a previous send has not finished.
	ErrSendInProgress = errors.New("a message is already being sent")
	// ErrThrottled is returned for a send inside the throttle window.
	ErrThrottled = errors.New("messages sent too fast")
	// ErrDuplicateMessage is returned when the same message hash was already submitted.
	ErrDuplicateMessage = errors.New("duplicate message")
)

// NewGuard creates a Guard that allows one send per throttle window. A non-positive throttle
// uses DefaultThrottle.
func NewGuard(throttle time.Duration) *Guard {
	if throttle <= 0 {
		throttle = DefaultThrottle
	}
	return &Guard{
		limiter: rate.NewLimiter(rate.Every(throttle), 1),
		hashes:  make(map[string]struct{}),
		now:     time.Now,
	}
}

// Acquire admits message for sending and returns it trimmed together with a release func that
// must be called once the send is over. Rejected sends return one of the sentinel errors.
func (g *Guard) Acquire(message string) (string, func(), error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", nil, ErrEmptyMessage
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.sending {
		return "", nil, ErrSendInProgress
	}

	now := g.now()
	if !g.limiter.AllowN(now, 1) {
		return "", nil, ErrThrottled
	}

	hash := fmt.Sprintf("%s-%d", message, now.UnixMilli())
	if _, ok := g.hashes[hash]; ok {
		return "", nil, ErrDuplicateMessage
	}
	g.hashes[hash] = struct{}{}

	g.sending = true
	var once sync.Once
	release := func() {
		once.Do(func() {
			g.mu.Lock()
			g.sending = false
			g.mu.Unlock()
		})
	}
	return message, release, nil
}

// Sending reports whether a send is in progress.
func (g *Guard) Sending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sending
}
