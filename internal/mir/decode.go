package mir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/orizon-lang/flowc/internal/types"

	ferrors "github.com/orizon-lang/flowc/internal/errors"
)

// DecodeOptions tunes Decode.
type DecodeOptions struct {
	// DefaultSplitDegree applies to loops that do not set "split".
	DefaultSplitDegree int
}

type jsonProgram struct {
	Name      string         `json:"name"`
	Structs   []jsonStruct   `json:"structs"`
	Globals   []jsonGlobal   `json:"globals"`
	Functions []jsonFunction `json:"functions"`
}

type jsonStruct struct {
	Name   string    `json:"name"`
	Fields []jsonVar `json:"fields"`
}

type jsonVar struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Storage string `json:"storage"`
	Mapping string `json:"mapping"`
}

type jsonGlobal struct {
	Name  string          `json:"name"`
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

type jsonFunction struct {
	Name    string    `json:"name"`
	Outputs []jsonVar `json:"outputs"`
	Inputs  []jsonVar `json:"inputs"`
	Mode    string    `json:"mode"`
	Body    jsonBlock `json:"body"`
}

type jsonBlock struct {
	Vars  []jsonVar  `json:"vars"`
	Stmts []jsonStmt `json:"stmts"`
}

type jsonCase struct {
	Label int64     `json:"label"`
	Body  jsonBlock `json:"body"`
}

type jsonLoopVar struct {
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Init     json.RawMessage `json:"init"`
	Blocking bool            `json:"blocking"`
}

// jsonStmt is the union of every instruction and continuation encoding.
// Exactly one of Op and Cont is set.
type jsonStmt struct {
	Op   string `json:"op"`
	Cont string `json:"cont"`

	Text      string            `json:"text"`
	Dst       string            `json:"dst"`
	Src       json.RawMessage   `json:"src"`
	Array     string            `json:"array"`
	Index     json.RawMessage   `json:"index"`
	Member    string            `json:"member"`
	Outer     string            `json:"outer"`
	Struct    string            `json:"struct"`
	Field     string            `json:"field"`
	Val       json.RawMessage   `json:"val"`
	Container string            `json:"container"`
	Target    string            `json:"target"`
	Mode      string            `json:"mode"`
	Builtin   string            `json:"builtin"`
	Args      []json.RawMessage `json:"args"`
	Priority  json.RawMessage   `json:"priority"`
	Name      string            `json:"name"`
	Outputs   []string          `json:"outputs"`
	Inputs    []json.RawMessage `json:"inputs"`
	WaitOn    []string          `json:"waiton"`
	NewVals   []json.RawMessage `json:"values"`
	Blocking  []bool            `json:"blocking"`

	Cond     json.RawMessage `json:"cond"`
	Then     *jsonBlock      `json:"then"`
	Else     *jsonBlock      `json:"else"`
	Selector json.RawMessage `json:"selector"`
	Cases    []jsonCase      `json:"cases"`
	Default  *jsonBlock      `json:"default"`
	Wait     []string        `json:"wait"`
	Explicit bool            `json:"explicit"`
	Body     *jsonBlock      `json:"body"`
	Count    string          `json:"count"`
	Split    *int            `json:"split"`
	Sync     bool            `json:"sync"`
	Closed   bool            `json:"closed"`
	Var      string          `json:"var"`
	Start    json.RawMessage `json:"start"`
	End      json.RawMessage `json:"end"`
	Step     json.RawMessage `json:"step"`
	Unroll   int             `json:"unroll"`
	Vars     []jsonLoopVar   `json:"vars"`
	PassIn   []string        `json:"passin"`
	KeepOpen []string        `json:"keepopen"`
}

// Decode reads a program in the JSON encoding of the typed IR.
func Decode(r io.Reader, opts DecodeOptions) (*Program, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var jp jsonProgram
	if err := dec.Decode(&jp); err != nil {
		return nil, ferrors.InvalidInput("program", "%v", err)
	}

	d := &decoder{opts: opts, structs: make(map[string]*types.Type)}

	return d.program(&jp)
}

// DecodeBytes is Decode over an in-memory document.
func DecodeBytes(data []byte, opts DecodeOptions) (*Program, error) {
	return Decode(bytes.NewReader(data), opts)
}

type decoder struct {
	opts    DecodeOptions
	prog    *Program
	structs map[string]*types.Type
	globals map[string]*types.Var
	scopes  []map[string]*types.Var
	where   string
}

func (d *decoder) fail(format string, args ...interface{}) error {
	return ferrors.InvalidInput(d.where, format, args...)
}

func (d *decoder) program(jp *jsonProgram) (*Program, error) {
	name := jp.Name
	if name == "" {
		name = "main"
	}

	d.prog = NewProgram(name)
	d.globals = make(map[string]*types.Var)

	for _, js := range jp.Structs {
		d.where = "struct " + js.Name
		st := types.StructOf(js.Name)
		d.structs[js.Name] = st

		for _, f := range js.Fields {
			ft, err := types.ParseType(f.Type, d.structs)
			if err != nil {
				return nil, d.fail("field %s: %v", f.Name, err)
			}

			st.Fields = append(st.Fields, types.Field{Name: f.Name, Type: ft})
		}

		d.prog.Structs = append(d.prog.Structs, st)
	}

	for _, jg := range jp.Globals {
		d.where = "global " + jg.Name

		t, err := types.ParseType(jg.Type, d.structs)
		if err != nil {
			return nil, d.fail("%v", err)
		}

		val, err := d.immediate(jg.Value)
		if err != nil {
			return nil, err
		}

		v := types.NewGlobalConst(jg.Name, t)
		d.globals[jg.Name] = v
		d.prog.AddGlobal(v, val)
	}

	for i := range jp.Functions {
		if err := d.function(&jp.Functions[i]); err != nil {
			return nil, err
		}
	}

	return d.prog, nil
}

func (d *decoder) function(jf *jsonFunction) error {
	d.where = "function " + jf.Name
	d.scopes = []map[string]*types.Var{{}}

	outputs, err := d.declareAll(jf.Outputs, types.DefOutArg)
	if err != nil {
		return err
	}

	inputs, err := d.declareAll(jf.Inputs, types.DefInArg)
	if err != nil {
		return err
	}

	mode, ok := types.ParseTaskMode(jf.Mode)
	if !ok {
		return d.fail("unknown task mode %q", jf.Mode)
	}

	f := d.prog.NewFunction(jf.Name, outputs, inputs)
	f.Mode = mode

	return d.fillBlock(f.Body, &jf.Body)
}

func (d *decoder) push() { d.scopes = append(d.scopes, map[string]*types.Var{}) }
func (d *decoder) pop()  { d.scopes = d.scopes[:len(d.scopes)-1] }

func (d *decoder) lookup(name string) (*types.Var, error) {
	for i := len(d.scopes) - 1; i >= 0; i-- {
		if v, ok := d.scopes[i][name]; ok {
			return v, nil
		}
	}

	if v, ok := d.globals[name]; ok {
		return v, nil
	}

	return nil, d.fail("unknown variable %q", name)
}

func (d *decoder) lookupAll(names []string) ([]*types.Var, error) {
	out := make([]*types.Var, 0, len(names))

	for _, n := range names {
		v, err := d.lookup(n)
		if err != nil {
			return nil, err
		}

		out = append(out, v)
	}

	return out, nil
}

func (d *decoder) optLookup(name string) (*types.Var, error) {
	if name == "" {
		return nil, nil
	}

	return d.lookup(name)
}

func (d *decoder) bind(v *types.Var) error {
	top := d.scopes[len(d.scopes)-1]
	if _, dup := top[v.Name()]; dup {
		return d.fail("variable %q declared twice", v.Name())
	}

	top[v.Name()] = v

	return nil
}

func parseStorage(s string, t *types.Type) (types.Storage, bool) {
	switch s {
	case "":
		if types.IsScalarValue(t) {
			return types.StorageLocal, true
		}

		return types.StorageStack, true
	case "local":
		return types.StorageLocal, true
	case "alias":
		return types.StorageAlias, true
	case "stack":
		return types.StorageStack, true
	}

	return 0, false
}

func (d *decoder) newVar(jv jsonVar, def types.DefType) (*types.Var, error) {
	if jv.Name == "" {
		return nil, d.fail("variable without a name")
	}

	t, err := types.ParseType(jv.Type, d.structs)
	if err != nil {
		return nil, d.fail("variable %s: %v", jv.Name, err)
	}

	storage, ok := parseStorage(jv.Storage, t)
	if !ok {
		return nil, d.fail("variable %s: unknown storage %q", jv.Name, jv.Storage)
	}

	if jv.Mapping == "" {
		return types.NewVar(jv.Name, t, storage, def), nil
	}

	if !types.IsMappable(t) {
		return nil, d.fail("variable %s: type %s cannot be mapped", jv.Name, t)
	}

	m, err := d.lookup(jv.Mapping)
	if err != nil {
		return nil, err
	}

	return types.NewMappedVar(jv.Name, t, storage, def, m), nil
}

func (d *decoder) declareAll(jvs []jsonVar, def types.DefType) ([]*types.Var, error) {
	out := make([]*types.Var, 0, len(jvs))

	for _, jv := range jvs {
		v, err := d.newVar(jv, def)
		if err != nil {
			return nil, err
		}

		if err := d.bind(v); err != nil {
			return nil, err
		}

		out = append(out, v)
	}

	return out, nil
}

// defineVar binds a variable introduced by a continuation header.
func (d *decoder) defineVar(name string, t *types.Type) (*types.Var, error) {
	if name == "" {
		return nil, d.fail("missing loop variable name")
	}

	v := types.NewVar(name, t, types.StorageLocal, types.DefLocalUser)
	if !types.IsScalarValue(t) {
		v = types.NewVar(name, t, types.StorageAlias, types.DefLocalUser)
	}

	return v, d.bind(v)
}

func (d *decoder) fillBlock(b *Block, jb *jsonBlock) error {
	d.push()
	defer d.pop()

	for _, jv := range jb.Vars {
		v, err := d.newVar(jv, types.DefLocalUser)
		if err != nil {
			return err
		}

		if err := d.bind(v); err != nil {
			return err
		}

		b.Declare(v)
	}

	where := d.where

	for i := range jb.Stmts {
		js := &jb.Stmts[i]
		d.where = fmt.Sprintf("%s: stmt %d", where, i)

		var err error

		switch {
		case js.Op != "" && js.Cont != "":
			err = d.fail("statement has both op %q and cont %q", js.Op, js.Cont)
		case js.Op != "":
			var in Instruction

			in, err = d.instruction(js)
			if err == nil {
				b.Add(in)
			}
		case js.Cont != "":
			err = d.continuation(b, js)
		default:
			err = d.fail("statement has neither op nor cont")
		}

		if err != nil {
			return err
		}
	}

	d.where = where

	return nil
}

// ====== Operands ======

func (d *decoder) immediate(raw json.RawMessage) (types.Arg, error) {
	a, err := d.arg(raw)
	if err != nil {
		return a, err
	}

	if !a.IsImmediate() {
		return a, d.fail("expected an immediate, got %s", raw)
	}

	return a, nil
}

// arg decodes an operand: numbers and booleans are immediates, strings
// name variables and {"str": ...} is a string immediate.
func (d *decoder) arg(raw json.RawMessage) (types.Arg, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return types.Arg{}, nil
	}

	switch raw[0] {
	case '"':
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return types.Arg{}, d.fail("%v", err)
		}

		v, err := d.lookup(name)
		if err != nil {
			return types.Arg{}, err
		}

		return types.VarArg(v), nil
	case '{':
		var s struct {
			Str *string `json:"str"`
		}

		if err := json.Unmarshal(raw, &s); err != nil || s.Str == nil {
			return types.Arg{}, d.fail("bad operand %s", raw)
		}

		return types.StringArg(*s.Str), nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return types.Arg{}, d.fail("bad operand %s", raw)
		}

		return types.BoolArg(b), nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return types.Arg{}, d.fail("bad operand %s", raw)
	}

	if !strings.ContainsAny(n.String(), ".eE") {
		if i, err := n.Int64(); err == nil {
			return types.IntArg(i), nil
		}
	}

	f, err := n.Float64()
	if err != nil {
		return types.Arg{}, d.fail("bad number %s", raw)
	}

	return types.FloatArg(f), nil
}

func (d *decoder) requiredArg(what string, raw json.RawMessage) (types.Arg, error) {
	a, err := d.arg(raw)
	if err != nil {
		return a, err
	}

	if a.IsNone() {
		return a, d.fail("missing %s", what)
	}

	return a, nil
}

func (d *decoder) args(raws []json.RawMessage) ([]types.Arg, error) {
	out := make([]types.Arg, 0, len(raws))

	for i, raw := range raws {
		a, err := d.requiredArg(fmt.Sprintf("argument %d", i), raw)
		if err != nil {
			return nil, err
		}

		out = append(out, a)
	}

	return out, nil
}

func (d *decoder) requiredVar(what, name string) (*types.Var, error) {
	if name == "" {
		return nil, d.fail("missing %s", what)
	}

	return d.lookup(name)
}

// ====== Instructions ======

func (d *decoder) instruction(js *jsonStmt) (Instruction, error) {
	var (
		in  Instruction
		err error
		v   = func(what, name string) *types.Var {
			if err != nil {
				return nil
			}

			var x *types.Var
			x, err = d.requiredVar(what, name)

			return x
		}
		a = func(what string, raw json.RawMessage) types.Arg {
			if err != nil {
				return types.Arg{}
			}

			var x types.Arg
			x, err = d.requiredArg(what, raw)

			return x
		}
	)

	switch js.Op {
	case "comment":
		in = &Comment{Text: js.Text}
	case "assign":
		in = &Assign{Dst: v("dst", js.Dst), Src: a("src", js.Src)}
	case "retrieve":
		in = &Retrieve{Dst: v("dst", js.Dst), Src: v("src", operandName(js.Src))}
	case "deref":
		in = &Dereference{Dst: v("dst", js.Dst), Src: v("src", operandName(js.Src))}
	case "store_ref":
		in = &StoreRef{Dst: v("dst", js.Dst), Src: v("src", operandName(js.Src))}
	case "alias":
		in = &MakeAlias{Dst: v("dst", js.Dst), Src: v("src", operandName(js.Src))}
	case "array_lookup":
		in = &ArrayLookup{Dst: v("dst", js.Dst), Array: v("array", js.Array), Index: a("index", js.Index)}
	case "array_insert":
		ins := &ArrayInsert{Array: v("array", js.Array), Index: a("index", js.Index), Member: v("member", js.Member)}
		if err == nil {
			ins.Outer, err = d.optLookup(js.Outer)
		}

		in = ins
	case "array_create_nested":
		in = &ArrayCreateNested{Dst: v("dst", js.Dst), Array: v("array", js.Array), Index: a("index", js.Index)}
	case "struct_lookup":
		in = &StructLookup{Dst: v("dst", js.Dst), Struct: v("struct", js.Struct), Field: js.Field}
	case "struct_insert":
		in = &StructInsert{Struct: v("struct", js.Struct), Field: js.Field, Val: v("val", operandName(js.Val))}
	case "close":
		in = &CloseContainer{Container: v("container", js.Container)}
	case "init_updateable":
		in = &InitUpdateable{Target: v("target", js.Target), Val: a("val", js.Val)}
	case "latest_value":
		in = &LatestValue{Dst: v("dst", js.Dst), Src: v("src", operandName(js.Src))}
	case "update":
		mode, ok := types.ParseUpdateMode(js.Mode)
		if !ok {
			return nil, d.fail("unknown update mode %q", js.Mode)
		}

		in = &Update{Target: v("target", js.Target), Mode: mode, Val: a("val", js.Val)}
	case "local_op", "async_op":
		op, ok := types.ParseOpcode(js.Builtin)
		if !ok {
			return nil, d.fail("unknown builtin %q", js.Builtin)
		}

		var dst *types.Var
		if dst, err = d.optLookup(js.Dst); err != nil {
			return nil, err
		}

		var args []types.Arg
		if args, err = d.args(js.Args); err != nil {
			return nil, err
		}

		if js.Op == "local_op" {
			in = &LocalOp{Op: op, Dst: dst, Args: args}
		} else {
			prio, perr := d.arg(js.Priority)
			if perr != nil {
				return nil, perr
			}

			in = &AsyncOp{Op: op, Dst: dst, Args: args, Priority: prio}
		}
	case "call":
		in, err = d.call(js)
	case "loop_continue":
		var vals []types.Arg
		if vals, err = d.args(js.NewVals); err != nil {
			return nil, err
		}

		blocking := js.Blocking
		if blocking == nil {
			blocking = make([]bool, len(vals))
		}

		in = &LoopContinue{NewVals: vals, Blocking: blocking}
	case "loop_break":
		in = &LoopBreak{}
	default:
		return nil, d.fail("unknown op %q", js.Op)
	}

	if err != nil {
		return nil, err
	}

	return in, nil
}

func (d *decoder) call(js *jsonStmt) (Instruction, error) {
	if js.Name == "" {
		return nil, d.fail("call without a function name")
	}

	outputs, err := d.lookupAll(js.Outputs)
	if err != nil {
		return nil, err
	}

	inputs, err := d.args(js.Inputs)
	if err != nil {
		return nil, err
	}

	mode, ok := types.ParseTaskMode(js.Mode)
	if !ok {
		return nil, d.fail("unknown task mode %q", js.Mode)
	}

	prio, err := d.arg(js.Priority)
	if err != nil {
		return nil, err
	}

	c := &CallFunction{Name: js.Name, Outputs: outputs, Inputs: inputs, Mode: mode, Priority: prio}

	if js.WaitOn != nil {
		if c.Blocking, err = d.lookupAll(js.WaitOn); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// operandName returns the variable name encoded in a string operand, or "".
func operandName(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}

	return s
}

// ====== Continuations ======

func (d *decoder) splitDegree(js *jsonStmt) int {
	if js.Split != nil {
		return *js.Split
	}

	return d.opts.DefaultSplitDegree
}

func (d *decoder) passIn(pi *PassIn, js *jsonStmt) error {
	if js.PassIn == nil && js.KeepOpen == nil {
		return nil
	}

	used, err := d.lookupAll(js.PassIn)
	if err != nil {
		return err
	}

	keep, err := d.lookupAll(js.KeepOpen)
	if err != nil {
		return err
	}

	*pi = PassIn{UsedVars: used, KeepOpen: keep, Fixed: true}

	return nil
}

func (d *decoder) body(b *Block, jb *jsonBlock) error {
	if jb == nil {
		return d.fail("missing body")
	}

	return d.fillBlock(b, jb)
}

func (d *decoder) continuation(b *Block, js *jsonStmt) error {
	switch js.Cont {
	case "if":
		cond, err := d.requiredArg("cond", js.Cond)
		if err != nil {
			return err
		}

		c := b.AddIf(cond, js.Else != nil)
		if err := d.body(c.Then, js.Then); err != nil {
			return err
		}

		if js.Else != nil {
			return d.fillBlock(c.Else, js.Else)
		}

		return nil
	case "switch":
		sel, err := d.requiredArg("selector", js.Selector)
		if err != nil {
			return err
		}

		labels := make([]int64, len(js.Cases))
		for i, jc := range js.Cases {
			labels[i] = jc.Label
		}

		c := b.AddSwitch(sel, labels, js.Default != nil)
		for i := range js.Cases {
			if err := d.fillBlock(c.Cases[i], &js.Cases[i].Body); err != nil {
				return err
			}
		}

		if js.Default != nil {
			return d.fillBlock(c.Default, js.Default)
		}

		return nil
	case "wait":
		waitVars, err := d.lookupAll(js.Wait)
		if err != nil {
			return err
		}

		prio, err := d.arg(js.Priority)
		if err != nil {
			return err
		}

		c := b.AddWait(js.Name, waitVars)
		c.Explicit = js.Explicit
		c.Priority = prio

		if err := d.passIn(&c.PassIn, js); err != nil {
			return err
		}

		return d.body(c.Body, js.Body)
	case "foreach":
		return d.foreach(b, js)
	case "range":
		return d.rangeLoop(b, js)
	case "loop":
		return d.loop(b, js)
	}

	return d.fail("unknown continuation %q", js.Cont)
}

func (d *decoder) foreach(b *Block, js *jsonStmt) error {
	arr, err := d.requiredVar("array", js.Array)
	if err != nil {
		return err
	}

	memberType := types.ArrayMemberType(arr.Type())
	if memberType == nil {
		return d.fail("foreach over %s of type %s", arr.Name(), arr.Type())
	}

	// Header variables live in the body's scope.
	d.push()
	defer d.pop()

	member, err := d.defineVar(js.Member, memberType)
	if err != nil {
		return err
	}

	var count *types.Var
	if js.Count != "" {
		if count, err = d.defineVar(js.Count, types.ValueInt); err != nil {
			return err
		}
	}

	c := b.AddForeach(arr, member, count)
	c.SplitDegree = d.splitDegree(js)
	c.Sync = js.Sync
	c.ArrayClosed = js.Closed

	if err := d.passIn(&c.PassIn, js); err != nil {
		return err
	}

	return d.body(c.Body, js.Body)
}

func (d *decoder) rangeLoop(b *Block, js *jsonStmt) error {
	start, err := d.requiredArg("start", js.Start)
	if err != nil {
		return err
	}

	end, err := d.requiredArg("end", js.End)
	if err != nil {
		return err
	}

	step, err := d.arg(js.Step)
	if err != nil {
		return err
	}

	if step.IsNone() {
		step = types.IntArg(1)
	}

	d.push()
	defer d.pop()

	lv, err := d.defineVar(js.Var, types.ValueInt)
	if err != nil {
		return err
	}

	name := js.Name
	if name == "" {
		name = "range"
	}

	c := b.AddRangeLoop(name, lv, start, end, step)
	c.SplitDegree = d.splitDegree(js)
	c.Sync = js.Sync
	c.DesiredUnroll = js.Unroll

	if err := d.passIn(&c.PassIn, js); err != nil {
		return err
	}

	return d.body(c.Body, js.Body)
}

func (d *decoder) loop(b *Block, js *jsonStmt) error {
	inits := make([]types.Arg, len(js.Vars))
	blocking := make([]bool, len(js.Vars))

	for i, jv := range js.Vars {
		a, err := d.requiredArg("init of "+jv.Name, jv.Init)
		if err != nil {
			return err
		}

		inits[i] = a
		blocking[i] = jv.Blocking
	}

	d.push()
	defer d.pop()

	loopVars := make([]*types.Var, len(js.Vars))

	for i, jv := range js.Vars {
		t, err := types.ParseType(jv.Type, d.structs)
		if err != nil {
			return d.fail("loop variable %s: %v", jv.Name, err)
		}

		if loopVars[i], err = d.defineVar(jv.Name, t); err != nil {
			return err
		}
	}

	name := js.Name
	if name == "" {
		name = "loop"
	}

	c := b.AddLoop(name, loopVars, inits, blocking)

	if err := d.passIn(&c.PassIn, js); err != nil {
		return err
	}

	return d.body(c.Body, js.Body)
}
