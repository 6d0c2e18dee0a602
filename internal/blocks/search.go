package blocks

// FindFirst walks blocks depth-first, parents before their inner blocks,
// and returns the first block accepted by match.
func FindFirst(list []Block, match func(Block) bool) (Block, bool) {
	for _, b := range list {
		if match(b) {
			return b, true
		}
		if found, ok := FindFirst(b.InnerBlocks, match); ok {
			return found, true
		}
	}
	return Block{}, false
}

// HasAttr reports whether the block carries attribute key with string value.
func HasAttr(key, value string) func(Block) bool {
	return func(b Block) bool {
		v, ok := b.Attrs[key].(string)
		return ok && v == value
	}
}
