package vfs

import (
	"fmt"
	"sync"
)

// store is the growable array of node slots. Unused slots form a free chain
// through their next field. The lock also guards the usage id counter.
type store struct {
	sync.Mutex
	nodes     []*Node
	free      NodeNo
	freeCount int
	grow      int
	max       int
	nextUsage uint64
}

func newStore(grow int, maxNodes int) *store {
	if grow <= 0 {
		grow = DefaultNodeGrow
	}

	if maxNodes <= 0 {
		maxNodes = DefaultMaxNodes
	}

	return &store{
		free: NoNode,
		grow: grow,
		max:  maxNodes,
	}
}

// get returns the slot of the node number, or nil when it is out of range.
func (s *store) get(no NodeNo) *Node {
	s.Lock()
	defer s.Unlock()

	if no < 0 || int(no) >= len(s.nodes) {
		return nil
	}

	return s.nodes[no]
}

// acquire takes a slot from the free chain, extending the store when the
// chain is empty.
func (s *store) acquire() (*Node, error) {
	s.Lock()
	defer s.Unlock()

	if s.free == NoNode {
		if err := s.extend(); err != nil {
			return nil, err
		}
	}

	n := s.nodes[s.free]
	s.free = n.next
	s.freeCount--

	return n, nil
}

func (s *store) extend() error {
	old := len(s.nodes)

	count := min(s.grow, s.max-old)
	if count <= 0 {
		return fmt.Errorf("%w (limit %d)", ErrNoMemory, s.max)
	}

	for i := range count {
		no := NodeNo(old + i)

		next := no + 1
		if i == count-1 {
			next = NoNode
		}

		s.nodes = append(s.nodes, &Node{
			no:     no,
			owner:  -1,
			parent: NoNode,
			first:  NoNode,
			last:   NoNode,
			prev:   NoNode,
			next:   next,
		})
	}

	s.free = NodeNo(old)
	s.freeCount += count

	return nil
}

// release puts the slot back on the free chain.
func (s *store) release(n *Node) {
	s.Lock()
	defer s.Unlock()

	n.next = s.free
	s.free = n.no
	s.freeCount++
}

func (s *store) usageID() uint64 {
	s.Lock()
	defer s.Unlock()

	id := s.nextUsage
	s.nextUsage++

	return id
}

func (s *store) stats() Stats {
	s.Lock()
	defer s.Unlock()

	return Stats{
		Slots: len(s.nodes),
		Free:  s.freeCount,
		Max:   s.max,
	}
}
