package mir

import (
	"fmt"
	"strings"

	"github.com/orizon-lang/flowc/internal/types"
)

func (p *Program) String() string {
	if p == nil {
		return "<nil-mir-program>"
	}

	var b strings.Builder

	fmt.Fprintf(&b, "program %s\n", p.Name)

	for _, st := range p.Structs {
		fmt.Fprintf(&b, "%s\n", st.Describe())
	}

	for _, g := range p.Globals {
		fmt.Fprintf(&b, "const %s %s = %s\n", g.Var.Type(), g.Var.Name(), g.Val)
	}

	for _, f := range p.Functions {
		b.WriteString(f.String())
	}

	return b.String()
}

func declList(vars []*types.Var) string {
	parts := make([]string, len(vars))
	for i, v := range vars {
		parts[i] = v.Type().String() + " " + v.Name()
	}

	return strings.Join(parts, ", ")
}

func (f *Function) String() string {
	if f == nil {
		return "<nil-func>"
	}

	var b strings.Builder

	fmt.Fprintf(&b, "func %s (%s) <- (%s)", f.Name, declList(f.Outputs), declList(f.Inputs))

	if f.Mode != types.TaskControl {
		fmt.Fprintf(&b, " #%s", f.Mode)
	}

	b.WriteString(" {\n")
	writeBlock(&b, f.Body, 1)
	b.WriteString("}\n")

	return b.String()
}

func (b *Block) String() string {
	var sb strings.Builder

	writeBlock(&sb, b, 0)

	return sb.String()
}

func indent(b *strings.Builder, depth int) {
	for range depth {
		b.WriteString("  ")
	}
}

func writeBlock(b *strings.Builder, blk *Block, depth int) {
	for _, v := range blk.Vars {
		indent(b, depth)
		fmt.Fprintf(b, "declare %s %s", v.Type(), v.Name())

		if v.Mapping() != nil {
			fmt.Fprintf(b, " @mapping=%s", v.Mapping().Name())
		}

		b.WriteByte('\n')
	}

	for _, s := range blk.Stmts {
		switch s := s.(type) {
		case Instruction:
			indent(b, depth)
			b.WriteString(s.String())
			b.WriteByte('\n')
		case Continuation:
			writeCont(b, s, depth)
		}
	}

	for _, c := range blk.Cleanups {
		indent(b, depth)
		fmt.Fprintf(b, "cleanup %s: %s\n", c.Var.Name(), c.Action)
	}
}

func passInString(p *PassIn) string {
	return fmt.Sprintf(" #passin[%s] #keepopen[%s]", varList(p.UsedVars), varList(p.KeepOpen))
}

func writeCont(b *strings.Builder, c Continuation, depth int) {
	indent(b, depth)

	switch c := c.(type) {
	case *If:
		fmt.Fprintf(b, "if (%s) {\n", c.Cond)
		writeBlock(b, c.Then, depth+1)

		if c.Else != nil {
			indent(b, depth)
			b.WriteString("} else {\n")
			writeBlock(b, c.Else, depth+1)
		}
	case *Switch:
		fmt.Fprintf(b, "switch (%s) {\n", c.Selector)

		for i, cb := range c.Cases {
			indent(b, depth)
			if i < len(c.Labels) {
				fmt.Fprintf(b, "case %d:\n", c.Labels[i])
			}
			writeBlock(b, cb, depth+1)
		}

		if c.Default != nil {
			indent(b, depth)
			b.WriteString("default:\n")
			writeBlock(b, c.Default, depth+1)
		}
	case *Wait:
		fmt.Fprintf(b, "wait %s (%s)", c.Name, varList(c.WaitVars))

		if c.Explicit {
			b.WriteString(" #explicit")
		}

		if !c.Priority.IsNone() {
			fmt.Fprintf(b, " @prio=%s", c.Priority)
		}

		b.WriteString(passInString(&c.PassIn))
		b.WriteString(" {\n")
		writeBlock(b, c.Body, depth+1)
	case *Foreach:
		fmt.Fprintf(b, "foreach %s", c.Member)

		if c.Count != nil {
			fmt.Fprintf(b, ", %s", c.Count)
		}

		fmt.Fprintf(b, " in %s", c.Array)

		if c.SplitDegree > 0 {
			fmt.Fprintf(b, " #splitdegree=%d", c.SplitDegree)
		}

		if c.Sync {
			b.WriteString(" #sync")
		}

		if c.ArrayClosed {
			b.WriteString(" #closed")
		}

		b.WriteString(passInString(&c.PassIn))
		b.WriteString(" {\n")
		writeBlock(b, c.Body, depth+1)
	case *RangeLoop:
		fmt.Fprintf(b, "for %s %s = %s to %s step %s", c.Name, c.LoopVar, c.Start, c.End, c.Step)

		if c.SplitDegree > 0 {
			fmt.Fprintf(b, " #splitdegree=%d", c.SplitDegree)
		}

		if c.DesiredUnroll > 1 {
			fmt.Fprintf(b, " #unroll=%d", c.DesiredUnroll)
		}

		if c.Sync {
			b.WriteString(" #sync")
		}

		b.WriteString(passInString(&c.PassIn))
		b.WriteString(" {\n")
		writeBlock(b, c.Body, depth+1)
	case *Loop:
		fmt.Fprintf(b, "loop %s (", c.Name)

		for i, v := range c.LoopVars {
			if i > 0 {
				b.WriteString(", ")
			}

			b.WriteString(v.Name())

			if i < len(c.InitVals) {
				fmt.Fprintf(b, " = %s", c.InitVals[i])
			}

			if i < len(c.Blocking) && c.Blocking[i] {
				b.WriteString(" #blocking")
			}
		}

		b.WriteString(")")
		b.WriteString(passInString(&c.PassIn))
		b.WriteString(" {\n")
		writeBlock(b, c.Body, depth+1)
	}

	indent(b, depth)
	b.WriteString("}\n")
}
