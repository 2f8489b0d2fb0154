package lir

import (
	"testing"

	"github.com/orizon-lang/flowc/internal/backend"
	ferrors "github.com/orizon-lang/flowc/internal/errors"
	"github.com/orizon-lang/flowc/internal/types"
)

func local(name string, t *types.Type) *types.Var {
	return types.NewVar(name, t, types.StorageLocal, types.DefLocalUser)
}

func stack(name string, t *types.Type) *types.Var {
	return types.NewVar(name, t, types.StorageStack, types.DefLocalUser)
}

func TestBuilderNesting(t *testing.T) {
	x := stack("x", types.FutureInt)
	c := local("c", types.ValueInt)

	b := NewBuilder("nest")
	b.StartFunction("main", nil, nil)
	b.Declare(x)
	b.StartIf(types.BoolArg(true), true)
	b.Assign(x, types.IntArg(1))
	b.StartElse()
	b.Comment("nothing")
	b.EndIf()
	b.StartSwitch(types.VarArg(c), []int64{1, 2}, true)
	b.StartCase(1)
	b.Assign(x, types.IntArg(2))
	b.EndCase()
	b.StartCase(-1)
	b.StartNestedBlock()
	b.Assign(x, types.IntArg(3))
	b.EndNestedBlock()
	b.EndCase()
	b.EndSwitch()
	b.EndFunction()

	p, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}

	if p.Entry != "main" {
		t.Fatalf("entry: want main, got %q", p.Entry)
	}

	body := p.Procs[0].Body
	if len(body) != 3 {
		t.Fatalf("main body: want 3 instructions, got %d\n%s", len(body), p)
	}

	in, ok := body[1].(*If)
	if !ok || len(in.Then) != 1 || len(in.Else) != 1 {
		t.Fatalf("if: got %#v", body[1])
	}

	sw, ok := body[2].(*Switch)
	if !ok {
		t.Fatalf("switch: got %#v", body[2])
	}

	if len(sw.Cases[0]) != 0 || len(sw.Cases[1]) != 1 || len(sw.Default) != 1 {
		t.Fatalf("switch cases: got %d/%d/%d", len(sw.Cases[0]), len(sw.Cases[1]), len(sw.Default))
	}

	var stores int

	Walk(body, func(in Insn) {
		if _, ok := in.(Assign); ok {
			stores++
		}
	})

	if stores != 3 {
		t.Fatalf("Walk: want 3 stores, got %d", stores)
	}
}

func TestBuilderEntry(t *testing.T) {
	b := NewBuilder("entry")
	b.StartFunction("helper", nil, nil)
	b.EndFunction()
	b.StartProc("helper:cont", nil)
	b.EndProc()
	b.StartFunction("other", nil, nil)
	b.EndFunction()

	p, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}

	if p.Entry != "helper" {
		t.Fatalf("entry without main: want helper, got %q", p.Entry)
	}

	b = NewBuilder("explicit")
	b.StartFunction("main", nil, nil)
	b.EndFunction()
	b.StartFunction("start", nil, nil)
	b.EndFunction()
	b.SetEntry("start")

	if p, _ = b.Finish(); p.Entry != "start" {
		t.Fatalf("explicit entry: want start, got %q", p.Entry)
	}
}

func TestBuilderGlobals(t *testing.T) {
	n := types.NewGlobalConst("N", types.ValueInt)

	b := NewBuilder("globals")
	b.AddGlobal(n, types.IntArg(4))
	b.StartFunction("main", nil, nil)
	b.EndFunction()

	p, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}

	if p.Init != ConstantsProc || len(p.Globals) != 1 {
		t.Fatalf("constants: init %q globals %v", p.Init, p.Globals)
	}

	consts, ok := p.Proc(ConstantsProc)
	if !ok || consts.Kind != ProcConstants || len(consts.Body) != 1 {
		t.Fatalf("constants procedure: got %v", consts)
	}
}

func TestBuilderCopiesArguments(t *testing.T) {
	v := stack("v", types.FutureInt)
	args := []types.Arg{types.VarArg(v)}

	b := NewBuilder("copy")
	b.StartFunction("main", nil, nil)
	b.StartProc("main:r", []*types.Var{v})
	b.EndProc()
	b.RegisterRule(backend.Rule{Name: "main:r", Inputs: []*types.Var{v}, Args: args})
	b.EndFunction()

	args[0] = types.IntArg(9)

	p, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}

	main, _ := p.Proc("main")
	r, ok := main.Body[0].(Rule)
	if !ok {
		t.Fatalf("rule: got %#v", main.Body[0])
	}

	if !r.Args[0].IsVar() || r.Args[0].Var().Name() != "v" {
		t.Fatalf("rule args should not alias the caller's slice, got %v", r.Args)
	}
}

func TestBuilderContractViolations(t *testing.T) {
	x := stack("x", types.FutureInt)
	c := local("c", types.ValueInt)

	tests := []struct {
		name  string
		build func(b *Builder)
	}{
		{"instruction outside procedure", func(b *Builder) {
			b.Declare(x)
		}},
		{"unmatched end", func(b *Builder) {
			b.StartFunction("main", nil, nil)
			b.EndIf()
			b.EndFunction()
		}},
		{"mismatched end", func(b *Builder) {
			b.StartFunction("main", nil, nil)
			b.StartNestedBlock()
			b.EndIf()
		}},
		{"duplicate procedure", func(b *Builder) {
			b.StartFunction("main", nil, nil)
			b.EndFunction()
			b.StartFunction("main", nil, nil)
			b.EndFunction()
		}},
		{"unclosed procedure", func(b *Builder) {
			b.StartFunction("main", nil, nil)
		}},
		{"unclosed scope", func(b *Builder) {
			b.StartFunction("main", nil, nil)
			b.StartIf(types.BoolArg(true), false)
			b.EndFunction()
		}},
		{"else without else", func(b *Builder) {
			b.StartFunction("main", nil, nil)
			b.StartIf(types.BoolArg(true), false)
			b.StartElse()
		}},
		{"case outside switch", func(b *Builder) {
			b.StartFunction("main", nil, nil)
			b.StartCase(0)
		}},
		{"missing case", func(b *Builder) {
			b.StartFunction("main", nil, nil)
			b.StartSwitch(types.VarArg(c), []int64{1}, false)
			b.StartCase(-1)
		}},
		{"instruction between cases", func(b *Builder) {
			b.StartFunction("main", nil, nil)
			b.StartSwitch(types.VarArg(c), []int64{1}, false)
			b.Assign(x, types.IntArg(1))
		}},
		{"wrong procedure kind", func(b *Builder) {
			b.StartFunction("main", nil, nil)
			b.EndProc()
		}},
		{"non-constant global", func(b *Builder) {
			b.AddGlobal(types.NewGlobalConst("N", types.ValueInt), types.VarArg(c))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder("bad")
			tt.build(b)

			_, err := b.Finish()
			if !ferrors.IsInternal(err) {
				t.Fatalf("want an internal error, got %v", err)
			}
		})
	}
}
