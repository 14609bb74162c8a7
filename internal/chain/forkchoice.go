package chain

// better reports whether candidate should replace tip as the best block.
// More total work wins; equal work goes to the greater height; a full
// tie goes to the numerically lower hash so every node picks the same tip
// regardless of arrival order.
func better(candidate, tip *BlockMeta) bool {
	if c := candidate.TotalWork.Cmp(tip.TotalWork); c != 0 {
		return c > 0
	}
	if candidate.Height != tip.Height {
		return candidate.Height > tip.Height
	}
	return candidate.Hash.Compare(tip.Hash) < 0
}
