// Copyright (c) 2026, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package script

// Walk traverses a block tree in depth-first order: It starts by calling
// f(block) for each of the given blocks; if f returns true, Walk visits
// the block's children before moving on to its next sibling.
func Walk(blocks []*Block, f func(*Block) bool) {
	for _, b := range blocks {
		if f(b) {
			Walk(b.Children, f)
		}
	}
}

// AllBlocks returns every block in the model, in depth-first order.
func (m *Model) AllBlocks() []*Block {
	var all []*Block
	Walk(m.Blocks, func(b *Block) bool {
		all = append(all, b)
		return true
	})
	return all
}
