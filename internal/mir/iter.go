package mir

// StmtIterator walks the statements of a block and supports replacing the
// current statement while iterating.
type StmtIterator struct {
	b   *Block
	pos int
}

// Iterator returns an iterator positioned before the first statement.
func (b *Block) Iterator() *StmtIterator { return &StmtIterator{b: b, pos: -1} }

// Next advances to the next statement and reports whether there is one.
func (it *StmtIterator) Next() bool {
	if it.pos < len(it.b.Stmts) {
		it.pos++
	}

	return it.pos < len(it.b.Stmts)
}

// Stmt returns the current statement.
func (it *StmtIterator) Stmt() Stmt {
	if it.pos < 0 || it.pos >= len(it.b.Stmts) {
		return nil
	}

	return it.b.Stmts[it.pos]
}

// Index returns the current position.
func (it *StmtIterator) Index() int { return it.pos }

// Replace substitutes the current statement with insts. With no
// instructions the statement is removed; otherwise the first replaces it
// in place and the rest are spliced after it. The following Next lands on
// the statement that followed the replaced one.
func (it *StmtIterator) Replace(insts ...Instruction) {
	if it.pos < 0 || it.pos >= len(it.b.Stmts) {
		return
	}

	stmts := it.b.Stmts

	switch len(insts) {
	case 0:
		it.b.Stmts = append(stmts[:it.pos], stmts[it.pos+1:]...)
		it.pos--
	case 1:
		stmts[it.pos] = insts[0]
	default:
		tail := append([]Stmt(nil), stmts[it.pos+1:]...)

		out := append(stmts[:it.pos], insts[0])
		for _, in := range insts[1:] {
			out = append(out, in)
		}

		it.b.Stmts = append(out, tail...)
		it.pos += len(insts) - 1
	}
}

// Remove deletes the current statement.
func (it *StmtIterator) Remove() { it.Replace() }

// InsertBefore adds insts before the current statement and keeps the
// iterator on it.
func (it *StmtIterator) InsertBefore(insts ...Instruction) {
	if len(insts) == 0 || it.pos < 0 {
		return
	}

	head := make([]Stmt, 0, len(it.b.Stmts)+len(insts))
	head = append(head, it.b.Stmts[:it.pos]...)

	for _, in := range insts {
		head = append(head, in)
	}

	it.b.Stmts = append(head, it.b.Stmts[it.pos:]...)
	it.pos += len(insts)
}
