package codegen

import (
	"fmt"
	"log/slog"

	"github.com/orizon-lang/flowc/internal/types"
)

// loopFrame is an open tail-recursive loop. The frame outlives async
// procedures opened inside the loop body so that a continue nested in a
// wait re-registers the loop's rule.
type loopFrame struct {
	name     string
	loopVars []*types.Var
	// extra are the arguments passed after the loop variables on every
	// iteration: used variables then kept-open containers.
	extra    []*types.Var
	keepOpen []*types.Var
}

// asyncFrame is an open deferred procedure started by startAsync.
type asyncFrame struct {
	name     string
	keepOpen []*types.Var
}

// Context is the mutable state of one lowering run: procedure names in
// use, per-construct counters and the open loop and async frames.
type Context struct {
	names    map[string]bool
	counters map[string]int
	loops    []*loopFrame
	asyncs   []asyncFrame
	log      *slog.Logger
}

// NewContext returns an empty context logging to log, which may be nil.
func NewContext(log *slog.Logger) *Context {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Context{
		names:    make(map[string]bool),
		counters: make(map[string]int),
		log:      log,
	}
}

// reserve marks name as used.
func (c *Context) reserve(name string) { c.names[name] = true }

// unique returns name, or the first of name-1, name-2, ... not yet used,
// and reserves it.
func (c *Context) unique(name string) string {
	u := name
	for n := 1; c.names[u]; n++ {
		u = fmt.Sprintf("%s-%d", name, n)
	}

	c.names[u] = true

	return u
}

// next returns the next value of the named counter, starting at 0.
func (c *Context) next(counter string) int {
	n := c.counters[counter]
	c.counters[counter] = n + 1

	return n
}

// temp returns a compiler-generated local value.
func temp(kind string, n int, t *types.Type) *types.Var {
	return types.NewVar(fmt.Sprintf("flowc:%s:%d", kind, n), t, types.StorageLocal, types.DefLocalCompiler)
}

func (c *Context) currentLoop() *loopFrame {
	if len(c.loops) == 0 {
		return nil
	}

	return c.loops[len(c.loops)-1]
}
