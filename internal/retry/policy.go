package retry

// Policy counts consecutive failed logins. It does no I/O and no waiting: attempts are paced by
// the monitor's poll interval. Invariant: 0 <= Count() <= Max().
type Policy struct {
	max   int
	count int
}

func NewPolicy(max int) *Policy {
	if max < 1 {
		max = 1
	}
	return &Policy{max: max}
}

// OnFailure records a failed attempt and returns the new count.
func (p *Policy) OnFailure() int {
	if p.count < p.max {
		p.count++
	}
	return p.count
}

func (p *Policy) OnSuccess() { p.Reset() }

func (p *Policy) Exhausted() bool { return p.count >= p.max }

func (p *Policy) Reset() { p.count = 0 }

func (p *Policy) Count() int { return p.count }

func (p *Policy) Max() int { return p.max }
