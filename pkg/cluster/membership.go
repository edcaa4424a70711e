package cluster

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Membership is the static view of the cluster: the configured member
// addresses in stable order, the current node's advertised address and the
// backup replica count. Partition placement is a pure function of this
// state, so every member computes identical ownership without coordination.
type Membership struct {
	members []string
	self    string
	backups int
}

// NewMembership validates the address list and returns the membership view.
// self must appear in members. backups is capped at len(members)-1.
func NewMembership(members []string, self string, backups int) (*Membership, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("member list is empty")
	}
	found := false
	seen := map[string]struct{}{}
	for _, m := range members {
		if _, dup := seen[m]; dup {
			return nil, fmt.Errorf("duplicate member address %q", m)
		}
		seen[m] = struct{}{}
		if m == self {
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("current node %q is not in the member list", self)
	}
	if backups < 0 {
		backups = 0
	}
	if backups > len(members)-1 {
		backups = len(members) - 1
	}
	return &Membership{members: members, self: self, backups: backups}, nil
}

// Members returns the configured addresses in stable order.
func (m *Membership) Members() []string {
	return m.members
}

// Self returns the advertised address of the current node.
func (m *Membership) Self() string {
	return m.self
}

// Peers returns every member except the current node.
func (m *Membership) Peers() []string {
	peers := make([]string, 0, len(m.members)-1)
	for _, addr := range m.members {
		if addr != m.self {
			peers = append(peers, addr)
		}
	}
	return peers
}

// ReplicasFor returns the replica addresses for a key: the primary first,
// then the backups in ring order.
func (m *Membership) ReplicasFor(key string) []string {
	n := len(m.members)
	start := int(xxhash.Sum64String(key) % uint64(n))
	replicas := make([]string, 0, m.backups+1)
	for i := 0; i <= m.backups; i++ {
		replicas = append(replicas, m.members[(start+i)%n])
	}
	return replicas
}

// OwnsPrimary reports whether the current node is the primary for key.
func (m *Membership) OwnsPrimary(key string) bool {
	n := len(m.members)
	return m.members[int(xxhash.Sum64String(key)%uint64(n))] == m.self
}
