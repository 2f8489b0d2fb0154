package codegen

import (
	"strings"
	"testing"

	ferrors "github.com/orizon-lang/flowc/internal/errors"
	"github.com/orizon-lang/flowc/internal/lir"
	"github.com/orizon-lang/flowc/internal/mir"
	"github.com/orizon-lang/flowc/internal/types"
)

func collect[T lir.Insn](body []lir.Insn) []T {
	var out []T

	lir.Walk(body, func(in lir.Insn) {
		if x, ok := in.(T); ok {
			out = append(out, x)
		}
	})

	return out
}

func mustProc(t *testing.T, p *lir.Program, name string) *lir.Proc {
	t.Helper()

	pr, ok := p.Proc(name)
	if !ok {
		t.Fatalf("procedure %s not emitted:\n%s", name, p)
	}

	return pr
}

func ruleNamed(rules []lir.Rule, name string) (lir.Rule, bool) {
	for _, r := range rules {
		if r.Name == name {
			return r, true
		}
	}

	return lir.Rule{}, false
}

// fillAndRead fills A[0..2] in a range loop and traces every member in a
// foreach over A.
func fillAndRead(split int) *mir.Program {
	p := mir.NewProgram("t")
	a := intArray("A")
	f := p.NewFunction("main", nil, nil)
	f.Body.Declare(a)

	i := valInt("i")
	r := f.Body.AddRangeLoop("fill", i, types.IntArg(0), types.IntArg(2), types.IntArg(1))
	r.SplitDegree = split

	v := futInt("v")
	r.Body.Declare(v)
	r.Body.Add(
		&mir.Assign{Dst: v, Src: types.VarArg(i)},
		&mir.ArrayInsert{Array: a, Index: types.VarArg(i), Member: v},
	)

	m := futInt("m")
	fe := f.Body.AddForeach(a, m, nil)
	fe.Body.Add(&mir.CallFunction{Name: "trace", Inputs: []types.Arg{types.VarArg(m)}})

	return p
}

func TestLowerForeachOverOpenArray(t *testing.T) {
	p, err := Compile(fillAndRead(0), Options{})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	for _, name := range []string{"main", "fill:body", "foreach:0", "foreach:0:body"} {
		mustProc(t, p, name)
	}

	main := mustProc(t, p, "main")

	wrapper, ok := ruleNamed(collect[lir.Rule](main.Body), "foreach:0")
	if !ok {
		t.Fatalf("main registers no foreach rule:\n%s", main)
	}

	if got := types.NameList(wrapper.Inputs); len(got) != 1 || got[0] != "A" {
		t.Fatalf("foreach wrapper inputs: want [A], got %v", got)
	}

	body, ok := ruleNamed(collect[lir.Rule](mustProc(t, p, "foreach:0").Body), "foreach:0:body")
	if !ok || !body.ShareWork {
		t.Fatalf("wrapper should register a shared body rule:\n%s", p)
	}

	last := main.Body[len(main.Body)-1]
	if d, ok := last.(lir.SlotDrop); !ok || d.Var.Name() != "A" {
		t.Fatalf("main should end by closing A, got %v", last)
	}

	fill := mustProc(t, p, "fill:body")
	creates := collect[lir.SlotCreate](main.Body)
	drops := collect[lir.SlotDrop](fill.Body)

	if len(creates) != 1 || len(drops) != 1 {
		t.Fatalf("fill body slots: want one create in main and one drop in the body, got %d and %d", len(creates), len(drops))
	}
}

func TestCompileLeavesInputUntouched(t *testing.T) {
	in := fillAndRead(2)
	before := in.String()

	if _, err := Compile(in, Options{}); err != nil {
		t.Fatalf("compile: %v", err)
	}

	for _, c := range in.Functions[0].Body.Continuations() {
		if a, ok := c.(mir.Async); ok {
			if pi := a.Captures(); len(pi.UsedVars) != 0 || len(pi.KeepOpen) != 0 {
				t.Fatalf("%s: capture set written into the input: %v / %v", c.Kind(), pi.UsedVars, pi.KeepOpen)
			}
		}
	}

	if after := in.String(); after != before {
		t.Fatalf("input IR changed:\n%s\nwant:\n%s", after, before)
	}
}

func TestLowerRangeSplitProcedures(t *testing.T) {
	p, err := Compile(fillAndRead(2), Options{})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	main := mustProc(t, p, "main")

	calls := collect[lir.CallProc](main.Body)
	if len(calls) != 1 || calls[0].Name != "fill:outer" {
		t.Fatalf("main should call fill:outer once, got %v", calls)
	}

	if got := argStrings(calls[0].Args); strings.Join(got, " ") != "A 0 2 1" {
		t.Fatalf("outer call args: want [A 0 2 1], got %v", got)
	}

	outer := mustProc(t, p, "fill:outer")

	ifs := collect[*lir.If](outer.Body)
	if len(ifs) != 1 || !ifs[0].HasElse {
		t.Fatalf("outer procedure should branch once on the base case:\n%s", outer)
	}

	base := collect[lir.CallProc](ifs[0].Then)
	if len(base) != 1 || base[0].Name != "fill:inner" {
		t.Fatalf("base case should call fill:inner, got %v", base)
	}

	again, ok := ruleNamed(collect[lir.Rule](ifs[0].Else), "fill:outer")
	if !ok || !again.ShareWork {
		t.Fatalf("split case should re-register fill:outer with shared work:\n%s", outer)
	}

	if d, ok := outer.Body[len(outer.Body)-1].(lir.SlotDrop); !ok || d.Var.Name() != "A" {
		t.Fatalf("outer procedure should release its slot on A last:\n%s", outer)
	}

	inner := mustProc(t, p, "fill:inner")

	loops := collect[*lir.ForRange](inner.Body)
	if len(loops) != 1 || loops[0].Var.Name() != "i" {
		t.Fatalf("inner procedure should loop over i:\n%s", inner)
	}

	if _, ok := ruleNamed(collect[lir.Rule](loops[0].Body), "fill:body"); !ok {
		t.Fatalf("inner loop should register fill:body:\n%s", inner)
	}
}

func TestLowerDebugComments(t *testing.T) {
	p, err := Compile(fillAndRead(0), Options{DebugComments: true})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	var texts []string
	for _, c := range collect[lir.Comment](mustProc(t, p, "main").Body) {
		texts = append(texts, c.Text)
	}

	got := strings.Join(texts, "|")
	for _, want := range []string{"function main", "range loop fill", "foreach:0 over A"} {
		if !strings.Contains(got, want) {
			t.Errorf("comments %q lack %q", got, want)
		}
	}
}

func TestLowerCallHoldsArrayOutputs(t *testing.T) {
	p := mir.NewProgram("t")

	out := intArray("out")
	fill := p.NewFunction("fill", []*types.Var{out}, nil)
	v := futInt("v")
	fill.Body.Declare(v)
	fill.Body.Add(
		&mir.Assign{Dst: v, Src: types.IntArg(7)},
		&mir.ArrayInsert{Array: out, Index: types.IntArg(0), Member: v},
	)

	a := intArray("A")
	main := p.NewFunction("main", nil, nil)
	main.Body.Declare(a)
	main.Body.Add(&mir.CallFunction{Name: "fill", Outputs: []*types.Var{a}})

	prog, err := Compile(p, Options{})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	body := mustProc(t, prog, "main").Body

	var ops []string
	for _, in := range body {
		ops = append(ops, in.Op())
	}

	if want := "declare slot_create call slot_drop"; strings.Join(ops, " ") != want {
		t.Fatalf("caller: want %q, got %q", want, strings.Join(ops, " "))
	}

	callee := mustProc(t, prog, "fill").Body
	if d, ok := callee[len(callee)-1].(lir.SlotDrop); !ok || d.Var.Name() != "out" {
		t.Fatalf("callee should release its output last, got %v", callee[len(callee)-1])
	}
}

func TestLowerLoopInsideWait(t *testing.T) {
	p := mir.NewProgram("t")
	x := futInt("x")
	a := intArray("A")
	f := p.NewFunction("main", []*types.Var{a}, []*types.Var{x})

	i := valInt("i")
	loop := f.Body.AddLoop("count", []*types.Var{i}, []types.Arg{types.IntArg(0)}, []bool{false})

	// Each iteration waits on x before continuing; the wait has to carry
	// the loop's own arguments to re-register it.
	w := loop.Body.AddWait("step", []*types.Var{x})
	more := types.NewVar("more", types.ValueBool, types.StorageLocal, types.DefLocalUser)
	next := valInt("next")
	w.Body.Declare(more)
	w.Body.Declare(next)
	w.Body.Add(
		&mir.LocalOp{Op: types.OpLtInt, Dst: more, Args: []types.Arg{types.VarArg(i), types.IntArg(3)}},
		&mir.LocalOp{Op: types.OpPlusInt, Dst: next, Args: []types.Arg{types.VarArg(i), types.IntArg(1)}},
	)

	cond := w.Body.AddIf(types.VarArg(more), true)
	m := futInt("m")
	cond.Then.Declare(m)
	cond.Then.Add(
		&mir.Assign{Dst: m, Src: types.VarArg(i)},
		&mir.ArrayInsert{Array: a, Index: types.VarArg(i), Member: m},
		&mir.LoopContinue{NewVals: []types.Arg{types.VarArg(next)}, Blocking: []bool{false}},
	)
	cond.Else.Add(&mir.LoopBreak{})

	prog, err := Compile(p, Options{})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	step := mustProc(t, prog, "step")
	if got := types.NameList(step.Params); !types.Contains(step.Params, x) || !types.Contains(step.Params, a) {
		t.Fatalf("wait procedure should capture x and A, got %v", got)
	}

	again, ok := ruleNamed(collect[lir.Rule](step.Body), "count")
	if !ok {
		t.Fatalf("continue inside the wait should re-register count:\n%s", step)
	}

	first, _ := ruleNamed(collect[lir.Rule](mustProc(t, prog, "main").Body), "count")
	if len(again.Args) != len(first.Args) {
		t.Fatalf("continue args %v do not match first iteration %v", again.Args, first.Args)
	}
}

func TestLowerRejects(t *testing.T) {
	tests := []struct {
		name  string
		build func(p *mir.Program, f *mir.Function)
		check func(error) bool
	}{
		{
			name: "dereference of array reference",
			build: func(p *mir.Program, f *mir.Function) {
				r := types.NewVar("r", types.RefTo(types.ArrayOf(types.FutureInt)), types.StorageStack, types.DefLocalUser)
				d := intArray("d")
				f.Body.Declare(r)
				f.Body.Declare(d)
				f.Body.Add(&mir.Dereference{Dst: d, Src: r})
			},
			check: ferrors.IsNotSupported,
		},
		{
			name: "int updateable",
			build: func(p *mir.Program, f *mir.Function) {
				u := types.NewVar("u", types.Updateable(types.PrimInt), types.StorageStack, types.DefLocalUser)
				f.Body.Declare(u)
				f.Body.Add(&mir.InitUpdateable{Target: u, Val: types.IntArg(0)})
			},
			check: ferrors.IsNotSupported,
		},
		{
			name: "zero step",
			build: func(p *mir.Program, f *mir.Function) {
				f.Body.AddRangeLoop("r", valInt("i"), types.IntArg(0), types.IntArg(3), types.IntArg(0))
			},
			check: ferrors.IsNotSupported,
		},
		{
			name: "split degree one",
			build: func(p *mir.Program, f *mir.Function) {
				r := f.Body.AddRangeLoop("r", valInt("i"), types.IntArg(0), types.IntArg(3), types.IntArg(1))
				r.SplitDegree = 1
			},
			check: ferrors.IsInternal,
		},
		{
			name: "wait on a value",
			build: func(p *mir.Program, f *mir.Function) {
				i := valInt("i")
				f.Body.Declare(i)
				f.Body.AddWait("w", []*types.Var{i})
			},
			check: isCode("TYPE_MISMATCH"),
		},
		{
			name: "unknown function",
			build: func(p *mir.Program, f *mir.Function) {
				f.Body.Add(&mir.CallFunction{Name: "nope"})
			},
			check: ferrors.IsInternal,
		},
		{
			name: "builtin arity",
			build: func(p *mir.Program, f *mir.Function) {
				o := futInt("o")
				f.Body.Declare(o)
				f.Body.Add(&mir.CallFunction{Name: "copy_int", Outputs: []*types.Var{o}})
			},
			check: isCode("ARITY_MISMATCH"),
		},
		{
			name: "local op arity",
			build: func(p *mir.Program, f *mir.Function) {
				d := valInt("d")
				f.Body.Declare(d)
				f.Body.Add(&mir.LocalOp{Op: types.OpPlusInt, Dst: d, Args: []types.Arg{types.IntArg(1)}})
			},
			check: isCode("ARITY_MISMATCH"),
		},
		{
			name: "local op on future",
			build: func(p *mir.Program, f *mir.Function) {
				d, x := valInt("d"), futInt("x")
				f.Body.Declare(d)
				f.Body.Declare(x)
				f.Body.Add(&mir.LocalOp{Op: types.OpNegateInt, Dst: d, Args: []types.Arg{types.VarArg(x)}})
			},
			check: isCode("TYPE_MISMATCH"),
		},
		{
			name: "nested array with future index",
			build: func(p *mir.Program, f *mir.Function) {
				inner := types.ArrayOf(types.FutureInt)
				outer := types.NewVar("O", types.ArrayOf(inner), types.StorageStack, types.DefLocalUser)
				dst := types.NewVar("n", types.RefTo(inner), types.StorageStack, types.DefLocalUser)
				k := futInt("k")
				f.Body.Declare(outer)
				f.Body.Declare(dst)
				f.Body.Declare(k)
				f.Body.Add(&mir.ArrayCreateNested{Dst: dst, Array: outer, Index: types.VarArg(k)})
			},
			check: ferrors.IsNotSupported,
		},
		{
			name: "global with a variable value",
			build: func(p *mir.Program, f *mir.Function) {
				p.AddGlobal(types.NewGlobalConst("G", types.ValueInt), types.VarArg(valInt("x")))
			},
			check: ferrors.IsInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mir.NewProgram("t")
			f := p.NewFunction("main", nil, nil)
			tt.build(p, f)

			_, err := Compile(p, Options{})
			if err == nil {
				t.Fatalf("compile should fail")
			}

			if !tt.check(err) {
				t.Fatalf("unexpected error kind: %v", err)
			}
		})
	}
}

func isCode(code string) func(error) bool {
	return func(err error) bool { return ferrors.CodeOf(err) == code }
}

func TestCheckTarget(t *testing.T) {
	tests := []struct {
		version string
		ok      bool
	}{
		{"1.0.0", true},
		{"1.4.2", true},
		{"v1.9", true},
		{"2.0.0", false},
		{"0.9.0", false},
		{"latest", false},
	}

	for _, tt := range tests {
		err := CheckTarget(tt.version)
		if tt.ok != (err == nil) {
			t.Errorf("CheckTarget(%q): want ok=%v, got %v", tt.version, tt.ok, err)
		}

		if err != nil {
			if c, _ := ferrors.CategoryOf(err); c != ferrors.CategoryConfig {
				t.Errorf("CheckTarget(%q): want CONFIG error, got %v", tt.version, err)
			}
		}
	}

	if _, err := Compile(fillAndRead(0), Options{TargetVersion: "3.0.0"}); err == nil {
		t.Fatalf("compile for an unsupported engine should fail")
	}
}
