package repository

// Treap index over live ratings for the in-memory store.
//
// Ordering: rating DESC, then participant ID ASC (deterministic).
// "less" means ranks earlier, so in-order traversal produces the
// leaderboard from best to worst.

// node is one treap node.
type node struct {
	id     string
	rating int
	prio   uint64
	left   *node
	right  *node
	size   int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// rankLess reports whether (aRating, aID) ranks earlier than
// (bRating, bID) on the leaderboard.
func rankLess(aRating int, aID string, bRating int, bID string) bool {
	if aRating != bRating {
		return aRating > bRating
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

// ratingToPriority keeps higher ratings nearer the treap root. Ratings
// are bounded non-negative integers so the cast is safe.
func ratingToPriority(rating int) uint64 {
	return uint64(rating)
}

func insertNode(n *node, id string, rating int) *node {
	if n == nil {
		return &node{id: id, rating: rating, prio: ratingToPriority(rating), size: 1}
	}
	if rankLess(rating, id, n.rating, n.id) {
		n.left = insertNode(n.left, id, rating)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insertNode(n.right, id, rating)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, rating int) *node {
	if n == nil {
		return nil
	}
	if rating == n.rating && id == n.id {
		// Merge children by rotating the higher priority up until leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, rating)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, rating)
		}
	} else if rankLess(rating, id, n.rating, n.id) {
		n.left = deleteNode(n.left, id, rating)
	} else {
		n.right = deleteNode(n.right, id, rating)
	}
	fix(n)
	return n
}

// countRankedBefore returns how many entries rank strictly earlier than
// (rating, id), using subtree sizes, in O(log n) expected time. Passing
// an empty id counts the entries with a strictly higher rating, which
// yields competition ranking: rank = countRankedBefore(root, r, "") + 1.
func countRankedBefore(n *node, rating int, id string) int {
	count := 0
	for n != nil {
		if rankLess(rating, id, n.rating, n.id) {
			n = n.left
		} else {
			count += nsize(n.left) + 1
			n = n.right
		}
	}
	return count
}

// collectTopN appends up to limit IDs in rank order (best first).
func collectTopN(n *node, limit int, out *[]string) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, n.id)
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, out)
	}
}
