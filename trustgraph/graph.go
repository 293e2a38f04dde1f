// Package trustgraph is a per-process cache of key-id -> signature-edge
// information used to answer path/distance queries over the signature
// web of trust. It is grounded on onak's hash.c (the key-id hash table),
// maxpath.c (findmaxpath/furthestkey) and sixdegrees.c (countdegree), all
// three of which are BFS traversals over the same underlying structure.
package trustgraph

import (
	"context"

	"github.com/hkpd/keyserver/hkp/storage"
	"github.com/hkpd/keyserver/internal/llist"
	"github.com/hkpd/keyserver/openpgp"
)

// StatsKey is one node of the graph: a key id plus BFS scratch fields
// (colour, parent) that get reset by InitColour before each traversal.
// SigsIn holds the key ids of the issuers of this key's direct-key
// signatures and uid/attribute certifications (subkey binding signatures
// are not read) — the edges the BFS walks, pointed "into" this node.
type StatsKey struct {
	KeyID  uint64
	SigsIn []uint64

	Colour int // -1 = unvisited; 0..N = BFS depth at discovery
	Parent uint64
	HasParent bool
}

const unvisited = -1

// Graph is the in-memory hash of every key id seen so far, mapping to its
// StatsKey. It is built lazily (node, ensureSigsIn) as queries touch keys,
// mirroring onak's on-demand cached_getkeysigs.
type Graph struct {
	nodes map[uint64]*StatsKey
	store storage.Storage
}

// New creates an empty graph backed by store for on-demand signature
// lookups.
func New(store storage.Storage) *Graph {
	return &Graph{nodes: make(map[uint64]*StatsKey), store: store}
}

// InitColour resets colour (and optionally parent) across the whole graph,
// required before FindPath/FurthestKey/CountDegree can run. Results from
// two overlapping traversals without an intervening InitColour are
// meaningless.
func (g *Graph) InitColour(resetParent bool) {
	for _, n := range g.nodes {
		n.Colour = unvisited
		if resetParent {
			n.HasParent = false
			n.Parent = 0
		}
	}
}

func (g *Graph) node(keyID uint64) *StatsKey {
	n, ok := g.nodes[keyID]
	if !ok {
		n = &StatsKey{KeyID: keyID, Colour: unvisited}
		g.nodes[keyID] = n
	}
	return n
}

// ensureSigsIn populates n.SigsIn from storage the first time it's
// touched, the same lazy-population onak's cached_getkeysigs performs.
func (g *Graph) ensureSigsIn(ctx context.Context, n *StatsKey) error {
	if n.SigsIn != nil {
		return nil
	}
	if g.store == nil {
		n.SigsIn = []uint64{}
		return nil
	}
	keys, err := g.store.FetchByID(ctx, n.KeyID, false)
	if err != nil {
		return err
	}
	var issuers *llist.List[uint64]
	seen := map[uint64]bool{}
	addIssuer := func(sig *openpgp.Packet) {
		id, ok := sigIssuerID(sig)
		if !ok || seen[id] {
			return
		}
		seen[id] = true
		issuers = llist.Add(issuers, id)
	}
	for _, pk := range keys {
		for _, rev := range pk.Revocations {
			addIssuer(rev)
		}
		for _, uid := range pk.UIDs {
			for _, sig := range uid.Sigs {
				addIssuer(sig)
			}
		}
	}
	n.SigsIn = llist.ToSlice(issuers)
	return nil
}

func sigIssuerID(sig *openpgp.Packet) (uint64, bool) {
	info, err := openpgp.DecodeSignature(sig)
	if err != nil || !info.HasIssuer {
		return 0, false
	}
	return info.IssuerID, true
}
