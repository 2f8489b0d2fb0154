package mir

import (
	"strings"
	"testing"

	"github.com/orizon-lang/flowc/internal/types"

	ferrors "github.com/orizon-lang/flowc/internal/errors"
)

const sumProgram = `{
  "name": "sum",
  "globals": [{"name": "N", "type": "$int", "value": 3}],
  "functions": [{
    "name": "main",
    "body": {
      "vars": [
        {"name": "A", "type": "int[]"},
        {"name": "total", "type": "updateable_float"}
      ],
      "stmts": [
        {"op": "init_updateable", "target": "total", "val": 0.0},
        {"cont": "range", "name": "fill", "var": "i", "start": 0, "end": "N", "split": 2, "body": {
          "vars": [{"name": "v", "type": "int"}],
          "stmts": [
            {"op": "assign", "dst": "v", "src": "i"},
            {"op": "array_insert", "array": "A", "index": "i", "member": "v"}
          ]
        }},
        {"cont": "foreach", "array": "A", "member": "m", "count": "k", "body": {
          "stmts": [{"op": "call", "name": "trace", "inputs": ["m", {"str": "seen"}]}]
        }},
        {"cont": "loop", "name": "countdown", "vars": [{"name": "j", "type": "$int", "init": 5}], "body": {
          "vars": [{"name": "more", "type": "$bool"}],
          "stmts": [
            {"op": "local_op", "builtin": "gt_int", "dst": "more", "args": ["j", 0]},
            {"cont": "if", "cond": "more",
             "then": {"stmts": [{"op": "loop_continue", "values": ["j"]}]},
             "else": {"stmts": [{"op": "loop_break"}]}}
          ]
        }}
      ]
    }
  }]
}`

func TestDecodeProgram(t *testing.T) {
	p, err := DecodeBytes([]byte(sumProgram), DecodeOptions{DefaultSplitDegree: 16})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if p.Name != "sum" || len(p.Globals) != 1 || len(p.Functions) != 1 {
		t.Fatalf("unexpected program shape:\n%s", p)
	}

	if err := Validate(p); err != nil {
		t.Fatalf("validate: %v", err)
	}

	f := p.Functions[0]
	conts := f.Body.Continuations()

	if len(conts) != 3 {
		t.Fatalf("continuations: want 3, got %d", len(conts))
	}

	r, ok := conts[0].(*RangeLoop)
	if !ok {
		t.Fatalf("first continuation: want range, got %s", conts[0].Kind())
	}

	if r.SplitDegree != 2 || !r.Step.IsImmediateInt() || r.Step.IntLit() != 1 {
		t.Fatalf("range: want split 2 step 1, got split %d step %s", r.SplitDegree, r.Step)
	}

	if !r.End.IsVar() || !r.End.Var().IsGlobalConst() {
		t.Fatalf("range end should resolve to the global N, got %s", r.End)
	}

	fe := conts[1].(*Foreach)
	if fe.SplitDegree != 16 {
		t.Fatalf("foreach split: want default 16, got %d", fe.SplitDegree)
	}

	if !fe.Member.Type().Equal(types.FutureInt) || !fe.Count.Type().Equal(types.ValueInt) {
		t.Fatalf("foreach header types: member %s count %s", fe.Member.Type(), fe.Count.Type())
	}

	call := fe.Body.Stmts[0].(*CallFunction)
	if len(call.Inputs) != 2 || !call.Inputs[1].IsImmediateString() || call.Inputs[1].StringLit() != "seen" {
		t.Fatalf("call inputs: got %v", call.Inputs)
	}

	l := conts[2].(*Loop)
	if len(l.LoopVars) != 1 || l.InitVals[0].IntLit() != 5 || l.Blocking[0] {
		t.Fatalf("loop header: got %s", f.Body)
	}

	init := f.Body.Stmts[0].(*InitUpdateable)
	if !init.Val.IsImmediateFloat() {
		t.Fatalf("0.0 should decode as a float immediate, got %s", init.Val.Kind())
	}
}

func TestDecodeFixedPassIn(t *testing.T) {
	doc := `{"functions": [{"name": "f", "inputs": [{"name": "x", "type": "int"}],
	  "body": {"vars": [{"name": "y", "type": "int"}], "stmts": [
	    {"cont": "wait", "name": "w", "wait": ["x"], "passin": ["x", "y"], "keepopen": [],
	     "body": {"stmts": [{"op": "assign", "dst": "y", "src": "x"}]}}
	  ]}}]}`

	p, err := DecodeBytes([]byte(doc), DecodeOptions{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	w := p.Functions[0].Body.Continuations()[0].(*Wait)
	if !w.Fixed || !sameNames(w.UsedVars, "x", "y") {
		t.Fatalf("pass-in: want fixed [x y], got fixed=%v %v", w.Fixed, names(w.UsedVars))
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"syntax", `{"functions": [`, "program"},
		{"unknown field", `{"functions": [], "bogus": 1}`, "bogus"},
		{"unknown type", `{"functions": [{"name": "f", "inputs": [{"name": "x", "type": "quux"}], "body": {}}]}`, "quux"},
		{"unknown var", `{"functions": [{"name": "f", "body": {"stmts": [{"op": "assign", "dst": "z", "src": 1}]}}]}`, "unknown variable"},
		{"unknown op", `{"functions": [{"name": "f", "body": {"stmts": [{"op": "frob"}]}}]}`, "frob"},
		{"op and cont", `{"functions": [{"name": "f", "body": {"stmts": [{"op": "loop_break", "cont": "if"}]}}]}`, "both"},
		{"duplicate", `{"functions": [{"name": "f", "inputs": [{"name": "x", "type": "int"}, {"name": "x", "type": "int"}], "body": {}}]}`, "twice"},
		{"foreach over scalar", `{"functions": [{"name": "f", "inputs": [{"name": "x", "type": "int"}],
		  "body": {"stmts": [{"cont": "foreach", "array": "x", "member": "m", "body": {}}]}}]}`, "foreach over x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeBytes([]byte(tt.doc), DecodeOptions{})
			if err == nil {
				t.Fatalf("want error containing %q, got nil", tt.want)
			}

			if c, _ := ferrors.CategoryOf(err); c != ferrors.CategoryInput {
				t.Fatalf("category: want %s, got %s (%v)", ferrors.CategoryInput, c, err)
			}

			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error: want %q in %v", tt.want, err)
			}
		})
	}
}
