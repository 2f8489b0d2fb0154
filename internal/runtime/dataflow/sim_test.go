package dataflow

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/orizon-lang/flowc/internal/codegen"
	ferrors "github.com/orizon-lang/flowc/internal/errors"
	"github.com/orizon-lang/flowc/internal/lir"
	"github.com/orizon-lang/flowc/internal/mir"
)

func compile(t *testing.T, doc string) *lir.Program {
	t.Helper()

	p, err := mir.DecodeBytes([]byte(doc), mir.DecodeOptions{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	prog, err := codegen.Compile(p, codegen.Options{})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	return prog
}

func simulate(t *testing.T, doc string) *Report {
	t.Helper()

	prog := compile(t, doc)

	rep, err := Run(context.Background(), prog, Options{Workers: 4, QueueSize: 8})
	if err != nil {
		t.Fatalf("run: %v\n%s", err, prog)
	}

	return rep
}

func sortedTrace(rep *Report) string {
	lines := append([]string(nil), rep.Trace...)
	sort.Strings(lines)

	return strings.Join(lines, " ")
}

const foreachProgram = `{"name": "fe", "functions": [{"name": "main", "body": {
  "vars": [{"name": "A", "type": "int[]"}],
  "stmts": [
    {"cont": "range", "name": "fill", "var": "i", "start": 0, "end": 2, "body": {
      "vars": [{"name": "v", "type": "int"}],
      "stmts": [
        {"op": "assign", "dst": "v", "src": "i"},
        {"op": "array_insert", "array": "A", "index": "i", "member": "v"}
      ]}},
    {"cont": "foreach", "array": "A", "member": "m", "body": {
      "stmts": [{"op": "call", "name": "trace", "inputs": ["m"]}]}}
  ]}}]}`

func TestRunForeachOverUnclosedArray(t *testing.T) {
	rep := simulate(t, foreachProgram)

	// Three fill bodies, one wrapper waiting on A and three foreach bodies.
	if rep.RulesRegistered != 7 || rep.RulesFired != 7 {
		t.Fatalf("rules: want 7 registered and fired, got %d/%d", rep.RulesRegistered, rep.RulesFired)
	}

	if !rep.Clean() {
		t.Fatalf("run left work behind: unfired %v open %v", rep.Unfired, rep.OpenContainers)
	}

	if got := sortedTrace(rep); got != "0 1 2" {
		t.Fatalf("trace: want %q, got %q", "0 1 2", got)
	}

	// Seven rule bodies plus three trace calls.
	if rep.Tasks != 10 {
		t.Fatalf("tasks: want 10, got %d", rep.Tasks)
	}
}

func TestRunRangeSplitCoverage(t *testing.T) {
	tests := []struct {
		name                     string
		start, end, step, degree int
		wantRules                int
	}{
		// Ten chunk rules, each a base case of ten bodies.
		{"0..99 by 1 degree 10", 0, 99, 1, 10, 10 + 100},
		// One split into [0,5] and [6,7], both base cases.
		{"0..7 by 2 degree 3", 0, 7, 2, 3, 2 + 4},
		{"base case only", 0, 3, 1, 8, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := fmt.Sprintf(`{"name": "split", "functions": [{"name": "main",
			  "outputs": [{"name": "A", "type": "int[]"}],
			  "body": {"stmts": [
			    {"cont": "range", "name": "fill", "var": "i", "start": %d, "end": %d, "step": %d, "split": %d, "body": {
			      "vars": [{"name": "v", "type": "int"}],
			      "stmts": [
			        {"op": "assign", "dst": "v", "src": "i"},
			        {"op": "array_insert", "array": "A", "index": "i", "member": "v"}
			      ]}}
			  ]}}]}`, tt.start, tt.end, tt.step, tt.degree)

			rep := simulate(t, doc)

			if !rep.Clean() {
				t.Fatalf("run left work behind: unfired %v open %v", rep.Unfired, rep.OpenContainers)
			}

			if rep.RulesRegistered != tt.wantRules {
				t.Fatalf("rules: want %d, got %d", tt.wantRules, rep.RulesRegistered)
			}

			got, ok := rep.Outputs["A"].(map[int64]any)
			if !ok {
				t.Fatalf("output A: want array contents, got %T", rep.Outputs["A"])
			}

			want := 0
			for i := tt.start; i <= tt.end; i += tt.step {
				want++

				if v := got[int64(i)]; v != int64(i) {
					t.Fatalf("A[%d]: want %d, got %v", i, i, v)
				}
			}

			if len(got) != want {
				t.Fatalf("A: want %d members, got %d", want, len(got))
			}
		})
	}
}

func TestRunLoopContinuation(t *testing.T) {
	doc := `{"name": "countdown", "functions": [{"name": "main", "body": {"stmts": [
	  {"cont": "loop", "name": "countdown", "vars": [{"name": "j", "type": "$int", "init": 3}], "body": {
	    "vars": [{"name": "more", "type": "$bool"}, {"name": "next", "type": "$int"}],
	    "stmts": [
	      {"op": "local_op", "builtin": "gt_int", "dst": "more", "args": ["j", 0]},
	      {"cont": "if", "cond": "more",
	       "then": {"stmts": [
	         {"op": "local_op", "builtin": "trace", "args": ["j"]},
	         {"op": "local_op", "builtin": "minus_int", "dst": "next", "args": ["j", 1]},
	         {"op": "loop_continue", "values": ["next"]}]},
	       "else": {"stmts": [{"op": "loop_break"}]}}
	    ]}}
	]}}]}`

	rep := simulate(t, doc)

	// Each iteration registers the next one under the same rule.
	if rep.RulesRegistered != 4 || rep.RulesFired != 4 {
		t.Fatalf("rules: want 4 registered and fired, got %d/%d", rep.RulesRegistered, rep.RulesFired)
	}

	if got := strings.Join(rep.Trace, " "); got != "3 2 1" {
		t.Fatalf("trace: want %q, got %q", "3 2 1", got)
	}
}

func TestRunLoopBreakReleasesSlots(t *testing.T) {
	doc := `{"name": "collect", "functions": [{"name": "main",
	  "outputs": [{"name": "A", "type": "int[]"}],
	  "body": {"stmts": [
	    {"cont": "loop", "name": "collect", "vars": [{"name": "j", "type": "$int", "init": 0}], "body": {
	      "vars": [{"name": "more", "type": "$bool"}],
	      "stmts": [
	        {"op": "local_op", "builtin": "lt_int", "dst": "more", "args": ["j", 3]},
	        {"cont": "if", "cond": "more",
	         "then": {"vars": [{"name": "v", "type": "int"}, {"name": "next", "type": "$int"}], "stmts": [
	           {"op": "assign", "dst": "v", "src": "j"},
	           {"op": "array_insert", "array": "A", "index": "j", "member": "v"},
	           {"op": "local_op", "builtin": "plus_int", "dst": "next", "args": ["j", 1]},
	           {"op": "loop_continue", "values": ["next"]}]},
	         "else": {"stmts": [{"op": "loop_break"}]}}
	      ]}},
	    {"cont": "wait", "name": "closed", "wait": ["A"], "body": {"stmts": [
	      {"op": "call", "name": "trace", "inputs": [{"str": "closed"}]}]}}
	  ]}}]}`

	rep := simulate(t, doc)

	if !rep.Clean() {
		t.Fatalf("run left work behind: unfired %v open %v", rep.Unfired, rep.OpenContainers)
	}

	if got := strings.Join(rep.Trace, " "); got != "closed" {
		t.Fatalf("trace: want closed, got %q", got)
	}

	if a := rep.Outputs["A"].(map[int64]any); len(a) != 3 {
		t.Fatalf("A: want 3 members, got %v", a)
	}
}

func TestRunCallWithArrayOutput(t *testing.T) {
	doc := `{"name": "call", "functions": [
	  {"name": "pair", "outputs": [{"name": "B", "type": "int[]"}], "body": {
	    "vars": [{"name": "x", "type": "int"}, {"name": "y", "type": "int"}],
	    "stmts": [
	      {"op": "assign", "dst": "x", "src": 10},
	      {"op": "assign", "dst": "y", "src": 20},
	      {"op": "array_insert", "array": "B", "index": 0, "member": "x"},
	      {"op": "array_insert", "array": "B", "index": 1, "member": "y"}
	    ]}},
	  {"name": "main", "body": {
	    "vars": [{"name": "A", "type": "int[]"}, {"name": "r", "type": "&int"}, {"name": "out", "type": "int"}],
	    "stmts": [
	      {"op": "array_lookup", "dst": "r", "array": "A", "index": 1},
	      {"op": "deref", "dst": "out", "src": "r"},
	      {"op": "call", "name": "pair", "outputs": ["A"]},
	      {"cont": "wait", "name": "show", "wait": ["out"], "body": {"stmts": [
	        {"op": "call", "name": "trace", "inputs": ["out"]}]}}
	    ]}}
	]}`

	rep := simulate(t, doc)

	if !rep.Clean() {
		t.Fatalf("run left work behind: unfired %v open %v", rep.Unfired, rep.OpenContainers)
	}

	if got := strings.Join(rep.Trace, " "); got != "20" {
		t.Fatalf("trace: want 20, got %q", got)
	}
}

func TestRunFutureIndexInsert(t *testing.T) {
	doc := `{"name": "late", "functions": [{"name": "main",
	  "outputs": [{"name": "A", "type": "int[]"}],
	  "body": {
	    "vars": [{"name": "k", "type": "int"}, {"name": "v", "type": "int"}],
	    "stmts": [
	      {"op": "assign", "dst": "v", "src": 7},
	      {"op": "array_insert", "array": "A", "index": "k", "member": "v"},
	      {"op": "assign", "dst": "k", "src": 4}
	    ]}}]}`

	rep := simulate(t, doc)

	if !rep.Clean() {
		t.Fatalf("run left work behind: unfired %v open %v", rep.Unfired, rep.OpenContainers)
	}

	a := rep.Outputs["A"].(map[int64]any)
	if len(a) != 1 || a[4] != int64(7) {
		t.Fatalf("A: want {4: 7}, got %v", a)
	}
}

func TestRunUpdateableWithGlobals(t *testing.T) {
	doc := `{"name": "acc", "globals": [{"name": "N", "type": "$int", "value": 4}],
	  "functions": [{"name": "main", "body": {
	    "vars": [{"name": "total", "type": "updateable_float"}, {"name": "s", "type": "$float"}],
	    "stmts": [
	      {"op": "init_updateable", "target": "total", "val": 1.0},
	      {"cont": "range", "name": "acc", "var": "i", "start": 1, "end": "N", "sync": true, "body": {
	        "vars": [{"name": "f", "type": "$float"}],
	        "stmts": [
	          {"op": "local_op", "builtin": "int_to_float", "dst": "f", "args": ["i"]},
	          {"op": "update", "mode": "incr", "target": "total", "val": "f"}
	        ]}},
	      {"op": "latest_value", "dst": "s", "src": "total"},
	      {"op": "local_op", "builtin": "trace", "args": ["s"]}
	    ]}}]}`

	var out bytes.Buffer

	prog := compile(t, doc)

	rep, err := Run(context.Background(), prog, Options{Workers: 1, Trace: &out})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := strings.Join(rep.Trace, " "); got != "11" {
		t.Fatalf("trace: want 11, got %q", got)
	}

	if out.String() != "trace: 11\n" {
		t.Fatalf("trace output: want %q, got %q", "trace: 11\n", out.String())
	}
}

func TestRunReportsUnfiredRules(t *testing.T) {
	doc := `{"name": "stuck", "functions": [{"name": "main", "body": {
	  "vars": [{"name": "A", "type": "int[]"}, {"name": "x", "type": "int"}],
	  "stmts": [
	    {"cont": "wait", "name": "w", "wait": ["x"], "body": {
	      "vars": [{"name": "v", "type": "int"}],
	      "stmts": [
	        {"op": "assign", "dst": "v", "src": 1},
	        {"op": "array_insert", "array": "A", "index": 0, "member": "v"}
	      ]}}
	  ]}}]}`

	rep := simulate(t, doc)

	if rep.Clean() {
		t.Fatal("a rule waiting on an unwritten future should leave the run unclean")
	}

	if fmt.Sprint(rep.Unfired) != "[w]" {
		t.Fatalf("unfired: want [w], got %v", rep.Unfired)
	}

	// The pending rule holds a writer slot on A.
	if len(rep.OpenContainers) != 1 || !strings.HasPrefix(rep.OpenContainers[0], "A#") {
		t.Fatalf("open containers: want A, got %v", rep.OpenContainers)
	}
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name  string
		vars  string
		stmts string
		code  string
	}{
		{
			"double assignment",
			`[{"name": "x", "type": "int"}]`,
			`[{"op": "assign", "dst": "x", "src": 1}, {"op": "assign", "dst": "x", "src": 2}]`,
			"DOUBLE_ASSIGNMENT",
		},
		{
			"insert into closed array",
			`[{"name": "A", "type": "int[]"}, {"name": "v", "type": "int"}]`,
			`[{"op": "assign", "dst": "v", "src": 1}, {"op": "close", "container": "A"},
			  {"op": "array_insert", "array": "A", "index": 0, "member": "v"}]`,
			"CLOSED_CONTAINER",
		},
		{
			"divide by zero",
			`[{"name": "q", "type": "$int"}]`,
			`[{"op": "local_op", "builtin": "div_int", "dst": "q", "args": [1, 0]}]`,
			"DIVIDE_BY_ZERO",
		},
		{
			"lookup past the end of a closed array",
			`[{"name": "A", "type": "int[]"}, {"name": "r", "type": "&int"}]`,
			`[{"op": "array_lookup", "dst": "r", "array": "A", "index": 3}]`,
			"MISSING_MEMBER",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := fmt.Sprintf(`{"name": "bad", "functions": [{"name": "main", "body": {"vars": %s, "stmts": %s}}]}`,
				tt.vars, tt.stmts)

			_, err := Run(context.Background(), compile(t, doc), Options{Workers: 2})
			if err == nil {
				t.Fatal("want an error")
			}

			if c, _ := ferrors.CategoryOf(err); c != ferrors.CategoryRuntime {
				t.Fatalf("category: want %s, got %s (%v)", ferrors.CategoryRuntime, c, err)
			}

			if got := ferrors.CodeOf(err); got != tt.code {
				t.Fatalf("code: want %s, got %s (%v)", tt.code, got, err)
			}
		})
	}
}

func TestRunRejectsEntryInputs(t *testing.T) {
	doc := `{"name": "in", "functions": [{"name": "main", "inputs": [{"name": "x", "type": "int"}], "body": {"stmts": []}}]}`

	_, err := Run(context.Background(), compile(t, doc), Options{})
	if ferrors.CodeOf(err) != "ENTRY_INPUTS" {
		t.Fatalf("want ENTRY_INPUTS, got %v", err)
	}
}
