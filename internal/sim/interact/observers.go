package interact

// TargetChangedFunc receives the agent whose target changed and the new
// target, nil when the agent no longer targets anything.
type TargetChangedFunc func(a *Agent, target Interactable)

type observerList struct {
	nextID int
	subs   []subscription
}

type subscription struct {
	id int
	fn TargetChangedFunc
}

func (l *observerList) add(fn TargetChangedFunc) func() {
	if fn == nil {
		return func() {}
	}
	l.nextID++
	id := l.nextID
	l.subs = append(l.subs, subscription{id: id, fn: fn})
	return func() { l.remove(id) }
}

func (l *observerList) remove(id int) {
	for k, s := range l.subs {
		if s.id == id {
			l.subs = append(l.subs[:k:k], l.subs[k+1:]...)
			return
		}
	}
}

// notify delivers to a snapshot of the list so observers may unsubscribe
// from inside their callback.
func (l *observerList) notify(a *Agent, target Interactable) {
	if len(l.subs) == 0 {
		return
	}
	subs := append([]subscription(nil), l.subs...)
	for _, s := range subs {
		s.fn(a, target)
	}
}

func (l *observerList) len() int { return len(l.subs) }
