package codegen

import (
	"fmt"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	"github.com/orizon-lang/flowc/internal/backend"
	"github.com/orizon-lang/flowc/internal/backend/backendmock"
	ferrors "github.com/orizon-lang/flowc/internal/errors"
	"github.com/orizon-lang/flowc/internal/types"
)

func futInt(name string) *types.Var {
	return types.NewVar(name, types.FutureInt, types.StorageStack, types.DefLocalUser)
}

func valInt(name string) *types.Var {
	return types.NewVar(name, types.ValueInt, types.StorageLocal, types.DefLocalUser)
}

func intArray(name string) *types.Var {
	return types.NewVar(name, types.ArrayOf(types.FutureInt), types.StorageStack, types.DefLocalUser)
}

// ruleIs matches a backend.Rule by name, input names and argument text.
type ruleIs struct {
	name      string
	inputs    []string
	args      []string
	shareWork bool
}

func (m ruleIs) Matches(x any) bool {
	r, ok := x.(backend.Rule)
	if !ok {
		return false
	}

	return r.Name == m.name && r.ShareWork == m.shareWork &&
		fmt.Sprint(types.NameList(r.Inputs)) == fmt.Sprint(m.inputs) &&
		fmt.Sprint(argStrings(r.Args)) == fmt.Sprint(m.args)
}

func (m ruleIs) String() string {
	return fmt.Sprintf("rule %s inputs %v args %v share %v", m.name, m.inputs, m.args, m.shareWork)
}

func argStrings(args []types.Arg) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = a.String()
	}

	return out
}

// varsAre matches a var list by names.
type varsAre []string

func (m varsAre) Matches(x any) bool {
	vars, ok := x.([]*types.Var)
	return ok && fmt.Sprint(types.NameList(vars)) == fmt.Sprint([]string(m))
}

func (m varsAre) String() string { return fmt.Sprintf("vars %v", []string(m)) }

func newTestScheduler(t *testing.T) (*scheduler, *backendmock.MockRuleEmitter) {
	ctrl := gomock.NewController(t)
	m := backendmock.NewMockRuleEmitter(ctrl)

	return newScheduler(m, NewContext(nil)), m
}

func TestStartAsyncOrdering(t *testing.T) {
	s, m := newTestScheduler(t)
	x, y, a := futInt("x"), futInt("y"), intArray("A")

	gomock.InOrder(
		m.EXPECT().SlotCreate(a),
		m.EXPECT().RegisterRule(ruleIs{name: "w", inputs: []string{"x"}, args: []string{"x", "y", "A"}}),
		m.EXPECT().StartProc("w", varsAre{"x", "y", "A"}),
		m.EXPECT().SlotDrop(a),
		m.EXPECT().EndProc(),
	)

	// A appears in both lists and is captured once.
	proc, err := s.startAsync("w", []*types.Var{x}, []*types.Var{x, y, a}, []*types.Var{a}, false, types.Arg{})
	if err != nil {
		t.Fatalf("startAsync: %v", err)
	}

	if proc != "w" {
		t.Fatalf("procedure name: want w, got %s", proc)
	}

	if err := s.endAsync([]*types.Var{a}); err != nil {
		t.Fatalf("endAsync: %v", err)
	}
}

func TestStartAsyncSkipsGlobals(t *testing.T) {
	s, m := newTestScheduler(t)
	x := futInt("x")
	n := types.NewGlobalConst("N", types.ValueInt)

	m.EXPECT().RegisterRule(ruleIs{name: "w", args: []string{"x"}})
	m.EXPECT().StartProc("w", varsAre{"x"})

	if _, err := s.startAsync("w", nil, []*types.Var{n, x}, nil, false, types.Arg{}); err != nil {
		t.Fatalf("startAsync: %v", err)
	}
}

func TestEndAsyncRejectsMismatchedKeepOpen(t *testing.T) {
	s, m := newTestScheduler(t)
	a, b := intArray("A"), intArray("B")

	m.EXPECT().SlotCreate(a)
	m.EXPECT().RegisterRule(gomock.Any())
	m.EXPECT().StartProc("w", gomock.Any())

	if _, err := s.startAsync("w", nil, nil, []*types.Var{a}, false, types.Arg{}); err != nil {
		t.Fatalf("startAsync: %v", err)
	}

	err := s.endAsync([]*types.Var{b})
	if ferrors.CodeOf(err) != "UNBALANCED_SLOTS" {
		t.Fatalf("want UNBALANCED_SLOTS, got %v", err)
	}

	if !ferrors.IsInternal(err) {
		t.Fatalf("slot mismatch should be internal, got %v", err)
	}
}

func TestEndAsyncWithoutStart(t *testing.T) {
	s, _ := newTestScheduler(t)

	if err := s.endAsync(nil); !ferrors.IsInternal(err) {
		t.Fatalf("want internal error, got %v", err)
	}
}

func TestCheckCaptures(t *testing.T) {
	tests := []struct {
		v  *types.Var
		ok bool
	}{
		{futInt("f"), true},
		{valInt("i"), true},
		{intArray("A"), true},
		{types.NewVar("r", types.RefTo(types.FutureInt), types.StorageStack, types.DefLocalUser), true},
		{types.NewVar("u", types.UpdateableFloat, types.StorageStack, types.DefLocalUser), true},
		{types.NewVar("s", types.ValueString, types.StorageLocal, types.DefLocalUser), true},
		{types.NewVar("b", types.Value(types.PrimBlob), types.StorageLocal, types.DefLocalUser), false},
		{types.NewVar("fv", types.Value(types.PrimFile), types.StorageLocal, types.DefLocalUser), false},
	}

	for _, tt := range tests {
		err := checkCaptures("w", []*types.Var{tt.v})
		if tt.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tt.v.Describe(), err)
		}

		if !tt.ok && !ferrors.IsNotSupported(err) {
			t.Errorf("%s: want not supported, got %v", tt.v.Describe(), err)
		}
	}
}

func TestUniqueNames(t *testing.T) {
	ctx := NewContext(nil)

	var got []string
	for range 3 {
		got = append(got, ctx.unique("w"))
	}

	ctx.reserve("x")
	got = append(got, ctx.unique("x"))

	want := "w w-1 w-2 x-1"
	if s := strings.Join(got, " "); s != want {
		t.Fatalf("unique names: want %q, got %q", want, s)
	}
}

func TestBlockingInputsSkipsAvailableValues(t *testing.T) {
	x, y, n := futInt("x"), futInt("y"), valInt("n")

	vals := []types.Arg{types.VarArg(x), types.IntArg(3), types.VarArg(n), types.VarArg(x), types.VarArg(y)}
	blocking := []bool{true, true, true, true, false}

	if got := types.NameList(blockingInputs(vals, blocking)); strings.Join(got, " ") != "x" {
		t.Fatalf("want [x], got %v", got)
	}
}

func TestLoopContinueReusesRuleName(t *testing.T) {
	s, m := newTestScheduler(t)
	i, f, g := valInt("i"), futInt("f"), futInt("g")
	y, a := futInt("y"), intArray("A")

	gomock.InOrder(
		m.EXPECT().SlotCreate(a),
		m.EXPECT().RegisterRule(ruleIs{name: "loop", inputs: []string{"x"}, args: []string{"0", "x", "y", "A"}}),
		m.EXPECT().StartProc("loop", varsAre{"i", "f", "y", "A"}),
		m.EXPECT().RegisterRule(ruleIs{name: "loop", inputs: []string{"g"}, args: []string{"i", "g", "y", "A"}}),
		m.EXPECT().SlotDrop(a),
		m.EXPECT().EndProc(),
	)

	x := futInt("x")

	proc, err := s.startLoop("loop", []*types.Var{i, f},
		[]types.Arg{types.IntArg(0), types.VarArg(x)}, []bool{false, true},
		[]*types.Var{y, i}, []*types.Var{a})
	if err != nil {
		t.Fatalf("startLoop: %v", err)
	}

	// The value i is flagged blocking but a local value never blocks.
	if err := s.loopContinue([]types.Arg{types.VarArg(i), types.VarArg(g)}, []bool{true, true}); err != nil {
		t.Fatalf("loopContinue: %v", err)
	}

	if err := s.loopBreak(); err != nil {
		t.Fatalf("loopBreak: %v", err)
	}

	if err := s.endLoop(proc); err != nil {
		t.Fatalf("endLoop: %v", err)
	}
}

func TestLoopArityMismatch(t *testing.T) {
	i := valInt("i")

	tests := []struct {
		name     string
		init     []types.Arg
		blocking []bool
	}{
		{"missing value", nil, []bool{false}},
		{"missing flag", []types.Arg{types.IntArg(1)}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestScheduler(t)

			_, err := s.startLoop("loop", []*types.Var{i}, tt.init, tt.blocking, nil, nil)
			if ferrors.CodeOf(err) != "ARITY_MISMATCH" {
				t.Fatalf("want ARITY_MISMATCH, got %v", err)
			}
		})
	}
}

func TestLoopBindingTypeMismatch(t *testing.T) {
	s, _ := newTestScheduler(t)
	i := valInt("i")

	_, err := s.startLoop("loop", []*types.Var{i}, []types.Arg{types.VarArg(futInt("f"))}, []bool{true}, nil, nil)
	if ferrors.CodeOf(err) != "TYPE_MISMATCH" {
		t.Fatalf("want TYPE_MISMATCH, got %v", err)
	}
}

func TestLoopControlInsideIteration(t *testing.T) {
	s, m := newTestScheduler(t)
	i := valInt("i")

	m.EXPECT().RegisterRule(gomock.Any())
	m.EXPECT().StartProc("loop", gomock.Any())

	if _, err := s.startLoop("loop", []*types.Var{i}, []types.Arg{types.IntArg(0)}, []bool{false}, nil, nil); err != nil {
		t.Fatalf("startLoop: %v", err)
	}

	s.enterIteration()

	if err := s.loopBreak(); !ferrors.IsNotSupported(err) {
		t.Fatalf("break inside a foreach body: want not supported, got %v", err)
	}

	s.leaveIteration()

	if _, err := s.frame("loop_break"); err != nil {
		t.Fatalf("loop frame should be visible again: %v", err)
	}
}
