package calls

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"contact-automation/internal/phone"
)

// Greeter plays the personalised greeting on a freshly appeared call.
type Greeter interface {
	SendGreeting(ctx context.Context, callID, callerNumber string) error
}

// Spawner runs detached work that shutdown waits for.
type Spawner interface {
	Go(name string, fn func(ctx context.Context))
}

// TeardownFunc receives a finished call that carried dialogue turns.
type TeardownFunc func(ctx context.Context, c Call)

// Registry holds the calls that are currently live.
type Registry struct {
	mu    sync.Mutex
	calls map[string]*Call

	greeter      Greeter
	bg           Spawner
	greetTimeout time.Duration
	onTeardown   TeardownFunc
	log          *slog.Logger
	now          func() time.Time
}

func NewRegistry(greeter Greeter, bg Spawner, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		calls:        map[string]*Call{},
		greeter:      greeter,
		bg:           bg,
		greetTimeout: 15 * time.Second,
		log:          log,
		now:          time.Now,
	}
}

// OnTeardown sets the handler for ended calls with dialogue turns.
func (r *Registry) OnTeardown(fn TeardownFunc) { r.onTeardown = fn }

// OnCallEvent applies ev. It returns the removed call and true when ev
// ended a known call; otherwise the current call (if any) and false.
func (r *Registry) OnCallEvent(ctx context.Context, ev CallEvent) (Call, bool) {
	log := r.log.With("call_id", ev.CallID, "event", ev.Kind)
	if ev.CallID == "" {
		log.Warn("call event without call id ignored")
		return Call{}, false
	}
	at := ev.At
	if at.IsZero() {
		at = r.now()
	}

	switch ev.Kind {
	case EventAppeared, EventRinging:
		c, created := r.create(ev, at)
		if created {
			log.Info("call appeared", "caller", c.CallerNumber, "entry_id", c.CorrelationToken)
			r.greet(c)
		}
		return c, false

	case EventConnected, EventInProgress:
		r.mu.Lock()
		c, ok := r.calls[ev.CallID]
		if ok {
			c.State = StateInProgress
			if c.CorrelationToken == "" {
				c.CorrelationToken = ev.Token
			}
		}
		var out Call
		if ok {
			out = c.clone()
		}
		r.mu.Unlock()
		if !ok {
			log.Info("progress for unknown call ignored")
		}
		return out, false

	case EventEnded, EventOnHold:
		r.mu.Lock()
		c, ok := r.calls[ev.CallID]
		if ok {
			delete(r.calls, ev.CallID)
		}
		r.mu.Unlock()
		if !ok {
			log.Info("teardown for unknown call ignored")
			return Call{}, false
		}
		c.State = StateEnded
		if c.CorrelationToken == "" {
			c.CorrelationToken = ev.Token
		}
		log.Info("call ended", "turns", len(c.Turns))
		if len(c.Turns) > 0 && r.onTeardown != nil {
			r.dispatchTeardown(*c)
		}
		return *c, true
	}

	log.Debug("call event ignored")
	return Call{}, false
}

func (r *Registry) create(ev CallEvent, at time.Time) (Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.calls[ev.CallID]; ok {
		return c.clone(), false
	}
	c := &Call{
		CallID:           ev.CallID,
		CallerNumber:     phone.Normalize(ev.CallerNumber),
		CorrelationToken: ev.Token,
		StartedAt:        at,
		State:            StateRinging,
	}
	r.calls[ev.CallID] = c
	return c.clone(), true
}

// AppendTurn adds a dialogue turn to a live call. It reports false for
// unknown calls.
func (r *Registry) AppendTurn(callID string, t Turn) bool {
	if t.At.IsZero() {
		t.At = r.now()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[callID]
	if !ok {
		return false
	}
	c.Turns = append(c.Turns, t)
	return true
}

func (r *Registry) Get(callID string) (Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[callID]
	if !ok {
		return Call{}, false
	}
	return c.clone(), true
}

// Active reports how many calls are live.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *Registry) greet(c Call) {
	if r.greeter == nil {
		return
	}
	run := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, r.greetTimeout)
		defer cancel()
		if err := r.greeter.SendGreeting(ctx, c.CallID, c.CallerNumber); err != nil {
			r.log.Warn("greeting failed", "call_id", c.CallID, "err", err)
		}
	}
	if r.bg == nil {
		go run(context.Background())
		return
	}
	r.bg.Go("greeting:"+c.CallID, run)
}

func (r *Registry) dispatchTeardown(c Call) {
	fn := r.onTeardown
	if r.bg == nil {
		go fn(context.Background(), c)
		return
	}
	r.bg.Go("conversation:"+c.CallID, func(ctx context.Context) { fn(ctx, c) })
}

func (c *Call) clone() Call {
	out := *c
	out.Turns = append([]Turn(nil), c.Turns...)
	return out
}
