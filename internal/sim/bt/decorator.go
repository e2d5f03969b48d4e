package bt

type Inverter struct{ child Node }

func NewInverter(child Node) *Inverter { return &Inverter{child: child} }

func (d *Inverter) Tick(ctx *Context) Status {
	switch d.child.Tick(ctx) {
	case Success:
		return Failure
	case Failure:
		return Success
	}
	return Running
}

func (d *Inverter) Reset() { d.child.Reset() }

// Succeeder reports success whenever its child finishes.
type Succeeder struct{ child Node }

func NewSucceeder(child Node) *Succeeder { return &Succeeder{child: child} }

func (d *Succeeder) Tick(ctx *Context) Status {
	if d.child.Tick(ctx) == Running {
		return Running
	}
	return Success
}

func (d *Succeeder) Reset() { d.child.Reset() }

// Repeat reruns its child. With a positive count it succeeds after count
// child successes; with zero it repeats until the child fails and then
// succeeds. Each child run takes at least one tick.
type Repeat struct {
	child Node
	count int
	done  int
}

func NewRepeat(child Node, count int) *Repeat { return &Repeat{child: child, count: count} }

func (d *Repeat) Tick(ctx *Context) Status {
	switch d.child.Tick(ctx) {
	case Running:
		return Running
	case Failure:
		d.Reset()
		if d.count == 0 {
			return Success
		}
		return Failure
	}
	d.done++
	d.child.Reset()
	if d.count > 0 && d.done >= d.count {
		d.done = 0
		return Success
	}
	return Running
}

func (d *Repeat) Reset() {
	d.done = 0
	d.child.Reset()
}

// RateLimit lets its child start a run at most once every interval ticks.
// A throttled tick fails without touching the child.
type RateLimit struct {
	child    Node
	interval uint64

	started   bool
	running   bool
	lastStart uint64
}

func NewRateLimit(child Node, interval uint64) *RateLimit {
	return &RateLimit{child: child, interval: interval}
}

func (d *RateLimit) Tick(ctx *Context) Status {
	if !d.running {
		if d.started && ctx.Tick-d.lastStart < d.interval {
			return Failure
		}
		d.started = true
		d.lastStart = ctx.Tick
	}
	st := d.child.Tick(ctx)
	d.running = st == Running
	return st
}

// Reset keeps the last start tick; the limit spans tree restarts.
func (d *RateLimit) Reset() {
	d.running = false
	d.child.Reset()
}
