package locator

import (
	"sort"

	"github.com/twmb/murmur3"
	"golang.org/x/exp/slices"
)

// Member is anything the ring can route keys to. node.Handle implements
// this via RingKey().
type Member interface {
	RingKey() string
}

// DefaultVnodesPerMember matches what the original AWS-style client hard
// codes as its consistent-hash replica count; kept tunable here via
// pool.Options.VnodesPerNode.
const DefaultVnodesPerMember = 160

type vnode struct {
	hash   uint32
	member Member
}

// Ring is an immutable consistent-hash routing table built over a fixed set
// of members. It is never mutated in place — membership changes always
// produce a new Ring (spec §3's Routing Table invariant).
type Ring struct {
	vnodes  []vnode
	members []Member
}

// New builds a Ring over members, expanding each into vnodesPerMember
// virtual nodes. An empty members slice yields an empty, still-usable Ring
// whose Locate always reports ok=false.
func New(members []Member, vnodesPerMember int) *Ring {
	if vnodesPerMember <= 0 {
		vnodesPerMember = DefaultVnodesPerMember
	}

	r := &Ring{
		members: append([]Member(nil), members...),
		vnodes:  make([]vnode, 0, len(members)*vnodesPerMember),
	}

	seen := make(map[uint32]struct{}, len(r.vnodes))

	for _, m := range members {
		key := m.RingKey()

		for i := 0; i < vnodesPerMember; i++ {
			h := hashVnode(key, i)

			// Collisions are astronomically unlikely with murmur3 over a
			// realistic node count, but probing forward keeps the ring
			// deterministic instead of silently dropping a vnode.
			for {
				if _, exists := seen[h]; !exists {
					break
				}

				h++
			}

			seen[h] = struct{}{}
			r.vnodes = append(r.vnodes, vnode{hash: h, member: m})
		}
	}

	slices.SortFunc(r.vnodes, func(a, b vnode) bool {
		return a.hash < b.hash
	})

	return r
}

// Empty returns a Ring with no members, suitable as the pool's locator
// before Start or after Dispose.
func Empty() *Ring {
	return New(nil, 0)
}

func hashVnode(key string, replica int) uint32 {
	h := murmur3.New32()
	_, _ = h.Write([]byte(key))
	_, _ = h.Write([]byte{byte(replica), byte(replica >> 8)})

	return h.Sum32()
}

// Locate returns the member owning key under the ring's consistent-hash
// assignment. ok is false iff the ring has no members.
func (r *Ring) Locate(key string) (member Member, ok bool) {
	if len(r.vnodes) == 0 {
		return nil, false
	}

	h := murmur3.Sum32([]byte(key))

	idx := sort.Search(len(r.vnodes), func(i int) bool {
		return r.vnodes[i].hash >= h
	})

	if idx == len(r.vnodes) {
		idx = 0
	}

	return r.vnodes[idx].member, true
}

// Members returns the distinct members backing the ring, in the order they
// were supplied to New.
func (r *Ring) Members() []Member {
	return append([]Member(nil), r.members...)
}

// Len returns the number of distinct members in the ring.
func (r *Ring) Len() int {
	return len(r.members)
}
