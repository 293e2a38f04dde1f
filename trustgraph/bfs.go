package trustgraph

import (
	"context"

	"github.com/hkpd/keyserver/internal/cleanup"
)

// FindPath is a single-source BFS from want over the signature-in edges,
// terminating as soon as have is coloured or the frontier empties. Returns
// the number of keys examined.
// Polls cleanup.Requested() once per frontier; a pending signal stops the
// traversal at the next iteration and returns what was found so far rather
// than an error.
// Grounded on onak's maxpath.c dofindpath.
func (g *Graph) FindPath(ctx context.Context, have, want uint64) (steps int, found bool, err error) {
	g.InitColour(true)

	root := g.node(want)
	root.Colour = 0
	frontier := []uint64{want}
	examined := 0

	for len(frontier) > 0 {
		if cleanup.Requested() {
			return examined, false, nil
		}
		var next []uint64
		for _, id := range frontier {
			n := g.node(id)
			if id == have {
				return examined, true, nil
			}
			if err := g.ensureSigsIn(ctx, n); err != nil {
				return examined, false, err
			}
			examined++
			for _, sigIssuer := range n.SigsIn {
				child := g.node(sigIssuer)
				if child.Colour != unvisited {
					continue
				}
				child.Colour = n.Colour + 1
				child.Parent = id
				child.HasParent = true
				next = append(next, sigIssuer)
				if sigIssuer == have {
					return examined, true, nil
				}
			}
		}
		frontier = next
	}
	return examined, false, nil
}

// FurthestKey runs a BFS from root, tracking and returning the node with
// the greatest colour (depth) seen.
// Polls cleanup.Requested() once per frontier, returning the furthest node
// seen so far if a signal arrives mid-traversal.
// Grounded on onak's maxpath.c furthestkey.
func (g *Graph) FurthestKey(ctx context.Context, root uint64) (uint64, error) {
	g.InitColour(true)

	rootNode := g.node(root)
	rootNode.Colour = 0
	frontier := []uint64{root}
	furthest := root
	maxColour := 0

	for len(frontier) > 0 {
		if cleanup.Requested() {
			return furthest, nil
		}
		var next []uint64
		for _, id := range frontier {
			n := g.node(id)
			if err := g.ensureSigsIn(ctx, n); err != nil {
				return 0, err
			}
			for _, sigIssuer := range n.SigsIn {
				child := g.node(sigIssuer)
				if child.Colour != unvisited {
					continue
				}
				child.Colour = n.Colour + 1
				child.Parent = id
				child.HasParent = true
				if child.Colour > maxColour {
					maxColour = child.Colour
					furthest = sigIssuer
				}
				next = append(next, sigIssuer)
			}
		}
		frontier = next
	}
	return furthest, nil
}

// CountDegree runs a BFS from root, counting distinct keys coloured at
// depth <= maxDepth. Polls cleanup.Requested() once per depth level,
// returning the count accumulated so far if a signal arrives
// mid-traversal.
// Grounded on onak's sixdegrees.c countdegree.
func (g *Graph) CountDegree(ctx context.Context, root uint64, maxDepth int) (int, error) {
	g.InitColour(false)

	rootNode := g.node(root)
	rootNode.Colour = 0
	frontier := []uint64{root}
	count := 1

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		if cleanup.Requested() {
			return count, nil
		}
		var next []uint64
		for _, id := range frontier {
			n := g.node(id)
			if err := g.ensureSigsIn(ctx, n); err != nil {
				return count, err
			}
			for _, sigIssuer := range n.SigsIn {
				child := g.node(sigIssuer)
				if child.Colour != unvisited {
					continue
				}
				child.Colour = depth + 1
				next = append(next, sigIssuer)
				count++
			}
		}
		frontier = next
	}
	return count, nil
}
