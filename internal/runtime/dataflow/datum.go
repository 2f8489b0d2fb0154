package dataflow

import (
	"fmt"
	"math"
	"sort"

	ferrors "github.com/orizon-lang/flowc/internal/errors"
	"github.com/orizon-lang/flowc/internal/types"
)

// datum is a shared storage cell of the task engine. Which fields are in
// use depends on the kind of typ.
type datum struct {
	id   int
	name string
	typ  *types.Type

	// Futures.
	set bool
	val any

	// References.
	target *datum

	// Arrays. A nested array has no writer slots of its own and closes
	// together with its parent.
	members map[int64]*datum
	slots   int
	closed  bool
	nested  bool
	lookups map[int64][]func(*datum)

	// Structs.
	fields map[string]*datum

	// Updateables.
	latest float64

	waiters []func()
}

func (d *datum) String() string { return fmt.Sprintf("%s#%d", d.name, d.id) }

// ready reports whether a reader blocked on d may proceed: a future is
// set, a reference is bound, an array is closed. Other kinds never block.
func (d *datum) ready() bool {
	switch d.typ.Kind {
	case types.KindFuture:
		return d.set
	case types.KindRef:
		return d.target != nil
	case types.KindArray:
		return d.closed
	default:
		return true
	}
}

func (s *Simulator) newDatum(name string, t *types.Type) *datum {
	s.nextID++
	d := &datum{id: s.nextID, name: name, typ: t}

	switch t.Kind {
	case types.KindArray:
		d.members = map[int64]*datum{}
		d.lookups = map[int64][]func(*datum){}
	case types.KindStruct:
		d.fields = make(map[string]*datum, len(t.Fields))
		for _, f := range t.Fields {
			d.fields[f.Name] = s.newDatum(name+"."+f.Name, f.Type)
		}
	}

	return d
}

// setDatum returns a future of type t already holding v.
func (s *Simulator) setDatum(name string, t *types.Type, v any) *datum {
	d := s.newDatum(name, t)
	d.set, d.val = true, v

	return d
}

// whenReady runs fn now if d is ready, otherwise once it becomes ready.
func (s *Simulator) whenReady(d *datum, fn func()) {
	if d.ready() {
		fn()
		return
	}

	d.waiters = append(d.waiters, fn)
}

// whenAll runs fn once every datum of ds is ready.
func (s *Simulator) whenAll(ds []*datum, fn func()) {
	remaining := len(ds)
	if remaining == 0 {
		fn()
		return
	}

	for _, d := range ds {
		s.whenReady(d, func() {
			remaining--
			if remaining == 0 {
				fn()
			}
		})
	}
}

func (s *Simulator) wake(d *datum) {
	ws := d.waiters
	d.waiters = nil

	for _, w := range ws {
		w()
	}
}

func (s *Simulator) setFuture(d *datum, v any) error {
	if d.typ.Kind != types.KindFuture {
		return ferrors.Runtime("NOT_A_FUTURE", "assignment to %s of type %s", d, d.typ)
	}

	if d.set {
		return ferrors.Runtime("DOUBLE_ASSIGNMENT", "%s assigned twice", d)
	}

	d.set, d.val = true, v
	s.wake(d)

	return nil
}

func (s *Simulator) bindRef(r, target *datum) error {
	if r.typ.Kind != types.KindRef {
		return ferrors.Runtime("NOT_A_REFERENCE", "binding %s of type %s", r, r.typ)
	}

	if r.target != nil {
		return ferrors.Runtime("DOUBLE_ASSIGNMENT", "reference %s bound twice", r)
	}

	r.target = target
	s.wake(r)

	return nil
}

func (s *Simulator) insert(a *datum, idx int64, m *datum) error {
	if a.closed {
		return ferrors.Runtime("CLOSED_CONTAINER", "insert into closed array %s[%d]", a, idx)
	}

	if _, dup := a.members[idx]; dup {
		return ferrors.Runtime("DOUBLE_ASSIGNMENT", "%s[%d] assigned twice", a, idx)
	}

	a.members[idx] = m

	ws := a.lookups[idx]
	delete(a.lookups, idx)

	for _, w := range ws {
		w(m)
	}

	return nil
}

// whenMember runs fn with a[idx] once the member is present.
func (s *Simulator) whenMember(a *datum, idx int64, fn func(*datum)) {
	if m, ok := a.members[idx]; ok {
		fn(m)
		return
	}

	if a.closed {
		s.fail(ferrors.Runtime("MISSING_MEMBER", "lookup of %s[%d] in closed array", a, idx))
		return
	}

	a.lookups[idx] = append(a.lookups[idx], fn)
}

func (s *Simulator) slotCreate(a *datum) error {
	if a.typ.Kind != types.KindArray {
		return ferrors.Runtime("NOT_A_CONTAINER", "slot created on %s of type %s", a, a.typ)
	}

	if a.closed {
		return ferrors.Runtime("CLOSED_CONTAINER", "slot created on closed array %s", a)
	}

	a.slots++

	return nil
}

func (s *Simulator) slotDrop(a *datum) error {
	if a.typ.Kind != types.KindArray {
		return ferrors.Runtime("NOT_A_CONTAINER", "slot dropped on %s of type %s", a, a.typ)
	}

	if a.closed || a.slots <= 0 {
		return ferrors.Runtime("SLOT_UNDERFLOW", "slot dropped on %s with no open slots", a)
	}

	a.slots--
	if a.slots == 0 {
		s.closeArray(a)
	}

	return nil
}

func (s *Simulator) closeArray(a *datum) {
	a.closed = true

	for _, m := range a.members {
		if m.nested && !m.closed {
			s.closeArray(m)
		}
	}

	if len(a.lookups) > 0 {
		missing := make([]int64, 0, len(a.lookups))
		for idx := range a.lookups {
			missing = append(missing, idx)
		}

		sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
		s.fail(ferrors.Runtime("MISSING_MEMBER", "%s closed without members %v", a, missing))
	}

	s.wake(a)
}

// keys returns the member indices of a in ascending order.
func (a *datum) keys() []int64 {
	out := make([]int64, 0, len(a.members))
	for k := range a.members {
		out = append(out, k)
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

func (s *Simulator) update(d *datum, mode types.UpdateMode, v float64) error {
	switch mode {
	case types.UpdateIncr:
		d.latest += v
	case types.UpdateMin:
		d.latest = math.Min(d.latest, v)
	case types.UpdateScale:
		d.latest *= v
	default:
		return ferrors.Runtime("BAD_UPDATE", "unknown update mode %s on %s", mode, d)
	}

	return nil
}

// snapshot renders the observable contents of d for a report.
func (d *datum) snapshot() any {
	switch d.typ.Kind {
	case types.KindFuture:
		if !d.set {
			return nil
		}

		return d.val
	case types.KindArray:
		out := make(map[int64]any, len(d.members))
		for k, m := range d.members {
			out[k] = m.snapshot()
		}

		return out
	case types.KindStruct:
		out := make(map[string]any, len(d.fields))
		for k, f := range d.fields {
			out[k] = f.snapshot()
		}

		return out
	case types.KindRef:
		if d.target == nil {
			return nil
		}

		return d.target.snapshot()
	case types.KindUpdateable:
		return d.latest
	default:
		return nil
	}
}
