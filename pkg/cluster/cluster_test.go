package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/gutensearch/pkg/config"
	"github.com/kadirpekel/gutensearch/pkg/guten"
	"github.com/kadirpekel/gutensearch/pkg/logger"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// startCluster brings up n members on loopback ports and returns their nodes.
func startCluster(t *testing.T, n, backups int) []*Node {
	t.Helper()

	ports := make([]int, n)
	members := ""
	for i := range ports {
		ports[i] = freePort(t)
		if i > 0 {
			members += ","
		}
		members += fmt.Sprintf("127.0.0.1:%d", ports[i])
	}

	nodes := make([]*Node, n)
	for i := range nodes {
		cfg := config.ClusterConfig{
			Members:       members,
			CurrentNodeIP: "127.0.0.1",
			NodePort:      ports[i],
			BackupCount:   backups,
		}
		node, err := NewNode(cfg, logger.GetLogger())
		require.NoError(t, err)
		_, err = node.Start()
		require.NoError(t, err)
		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = node.Shutdown(ctx)
		})
		nodes[i] = node
	}
	return nodes
}

func singleNode(t *testing.T) *Node {
	t.Helper()
	cfg := config.ClusterConfig{
		Members:       "127.0.0.1:7600",
		CurrentNodeIP: "127.0.0.1",
		NodePort:      7600,
		BackupCount:   1,
	}
	node, err := NewNode(cfg, logger.GetLogger())
	require.NoError(t, err)
	return node
}

func TestMembershipValidation(t *testing.T) {
	_, err := NewMembership(nil, "a:1", 1)
	assert.Error(t, err)

	_, err = NewMembership([]string{"a:1", "b:1"}, "c:1", 1)
	assert.Error(t, err)

	_, err = NewMembership([]string{"a:1", "a:1"}, "a:1", 1)
	assert.Error(t, err)

	m, err := NewMembership([]string{"a:1", "b:1"}, "a:1", 5)
	require.NoError(t, err)
	assert.Len(t, m.ReplicasFor("key"), 2, "backups capped at member count minus one")
}

func TestReplicaPlacementIsStable(t *testing.T) {
	members := []string{"a:1", "b:1", "c:1"}

	viewA, err := NewMembership(members, "a:1", 1)
	require.NoError(t, err)
	viewB, err := NewMembership(members, "b:1", 1)
	require.NoError(t, err)

	for _, key := range []string{"1", "42", "whale", "lock:shard:7"} {
		assert.Equal(t, viewA.ReplicasFor(key), viewB.ReplicasFor(key),
			"every member must compute the same placement for %q", key)
		replicas := viewA.ReplicasFor(key)
		assert.Len(t, replicas, 2)
		assert.NotEqual(t, replicas[0], replicas[1])
	}
}

func TestOwnsPrimaryMatchesReplicasFor(t *testing.T) {
	members := []string{"a:1", "b:1", "c:1"}
	for _, self := range members {
		view, err := NewMembership(members, self, 1)
		require.NoError(t, err)
		for i := 0; i < 50; i++ {
			key := fmt.Sprintf("key-%d", i)
			assert.Equal(t, view.ReplicasFor(key)[0] == self, view.OwnsPrimary(key))
		}
	}
}

func TestSingleMemberMapOps(t *testing.T) {
	ctx := context.Background()
	node := singleNode(t)
	m := node.Client().Map("test-map")

	_, found, err := m.Get(ctx, "1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, m.Put(ctx, "1", json.RawMessage(`"one"`)))
	require.NoError(t, m.Put(ctx, "2", json.RawMessage(`"two"`)))
	require.NoError(t, m.Put(ctx, "2", json.RawMessage(`"TWO"`)))

	v, found, err := m.Get(ctx, "2")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `"TWO"`, string(v))

	ok, err := m.ContainsKey(ctx, "1")
	require.NoError(t, err)
	assert.True(t, ok)

	size, err := m.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, size)

	entries, err := m.GetAll(ctx, []string{"1", "2", "3"})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	values, err := m.Values(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, values, 1)

	require.NoError(t, m.Clear(ctx))
	size, err = m.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, size)
}

func TestSingleMemberMultiMapOps(t *testing.T) {
	ctx := context.Background()
	node := singleNode(t)
	mm := node.Client().MultiMap("test-index")

	require.NoError(t, mm.Put(ctx, "whale", 2701))
	require.NoError(t, mm.Put(ctx, "whale", 11))
	require.NoError(t, mm.Put(ctx, "whale", 2701))
	require.NoError(t, mm.Put(ctx, "rabbit", 11))

	members, err := mm.Get(ctx, "whale")
	require.NoError(t, err)
	assert.Equal(t, []int{11, 2701}, members, "duplicates collapse, ascending order")

	ok, err := mm.ContainsEntry(ctx, "whale", 2701)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = mm.ContainsEntry(ctx, "whale", 5)
	require.NoError(t, err)
	assert.False(t, ok)

	keys, err := mm.KeySet(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"whale", "rabbit"}, keys)

	count, err := mm.KeyCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestClusterReadsSeeWritesFromAnyMember(t *testing.T) {
	ctx := context.Background()
	nodes := startCluster(t, 3, 1)
	writer := nodes[0].Client().Map("books")
	reader := nodes[2].Client().Map("books")

	for i := 1; i <= 20; i++ {
		key := fmt.Sprintf("%d", i)
		require.NoError(t, writer.Put(ctx, key, json.RawMessage(fmt.Sprintf(`{"id":%d}`, i))))
	}

	for i := 1; i <= 20; i++ {
		key := fmt.Sprintf("%d", i)
		v, found, err := reader.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, found, "key %s visible from another member", key)
		assert.JSONEq(t, fmt.Sprintf(`{"id":%d}`, i), string(v))
	}

	// Each entry counts once even though backups hold copies.
	for _, node := range nodes {
		size, err := node.Client().Map("books").Size(ctx)
		require.NoError(t, err)
		assert.Equal(t, 20, size)
	}
}

func TestClusterWritesReachBackupStores(t *testing.T) {
	ctx := context.Background()
	nodes := startCluster(t, 3, 1)

	byAddr := map[string]*Node{}
	for _, node := range nodes {
		byAddr[node.Membership().Self()] = node
	}

	m := nodes[1].Client().Map("books")
	for i := 1; i <= 10; i++ {
		key := fmt.Sprintf("%d", i)
		require.NoError(t, m.Put(ctx, key, json.RawMessage(`1`)))

		replicas := nodes[1].Membership().ReplicasFor(key)
		require.Eventually(t, func() bool {
			for _, addr := range replicas {
				if _, ok := byAddr[addr].store.mapGet("books", key); !ok {
					return false
				}
			}
			return true
		}, 2*time.Second, 10*time.Millisecond, "key %s on primary and backup", key)

		held := 0
		for _, node := range nodes {
			if _, ok := node.store.mapGet("books", key); ok {
				held++
			}
		}
		assert.Equal(t, 2, held, "exactly primary plus one backup hold %s", key)
	}
}

func TestClusterMultiMapAggregation(t *testing.T) {
	ctx := context.Background()
	nodes := startCluster(t, 3, 1)
	mm := nodes[0].Client().MultiMap("index")

	terms := []string{"whale", "rabbit", "sea", "queen", "ahab"}
	for _, term := range terms {
		require.NoError(t, mm.Put(ctx, term, 1))
		require.NoError(t, mm.Put(ctx, term, 2))
	}

	for _, node := range nodes {
		keys, err := node.Client().MultiMap("index").KeySet(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, terms, keys)

		count, err := node.Client().MultiMap("index").KeyCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, len(terms), count)
	}

	members, err := nodes[2].Client().MultiMap("index").Get(ctx, "whale")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, members)
}

func TestLockMutualExclusionAcrossMembers(t *testing.T) {
	ctx := context.Background()
	nodes := startCluster(t, 2, 1)

	release1, err := nodes[0].Client().Locks().Lock(ctx, "lock:shard:3")
	require.NoError(t, err)

	acquired := make(chan func() error, 1)
	go func() {
		release2, err := nodes[1].Client().Locks().Lock(context.Background(), "lock:shard:3")
		if err == nil {
			acquired <- release2
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired while lock was held")
	case <-time.After(200 * time.Millisecond):
	}

	require.NoError(t, release1())

	select {
	case release2 := <-acquired:
		require.NoError(t, release2())
	case <-time.After(2 * time.Second):
		t.Fatal("second holder never acquired after release")
	}
}

func TestLockAcquireRespectsContext(t *testing.T) {
	node := singleNode(t)
	locks := node.Client().Locks()

	release, err := locks.Lock(context.Background(), "busy")
	require.NoError(t, err)
	defer func() { _ = release() }()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = locks.Lock(ctx, "busy")
	assert.ErrorIs(t, err, guten.ErrCluster)
}

func TestLockReleaseVerifiesHolder(t *testing.T) {
	store := newNodeStore()
	require.NoError(t, store.acquireLock(context.Background(), "l", "token-a"))

	assert.Error(t, store.releaseLock("l", "token-b"))
	assert.NoError(t, store.releaseLock("l", "token-a"))
	assert.Error(t, store.releaseLock("l", "token-a"), "double release rejected")
}

func TestMetadataStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	node := singleNode(t)
	store := NewMetadataStore(node.Client().Map("books-metadata"))

	md := guten.Metadata{
		BookID:   1342,
		Title:    "Pride and Prejudice",
		Author:   "Jane Austen",
		Language: "en",
		Year:     1998,
	}
	require.NoError(t, store.Put(ctx, md))

	got, found, err := store.Get(ctx, 1342)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, md, got)

	_, found, err = store.Get(ctx, 9999)
	require.NoError(t, err)
	assert.False(t, found)

	all, err := store.GetAll(ctx, []guten.BookID{1342, 9999})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, md, all[1342])

	list, err := store.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestPostingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	node := singleNode(t)
	postings := NewPostings(node.Client().MultiMap("inverted-index"))

	require.NoError(t, postings.Put(ctx, "prejudice", 1342))
	require.NoError(t, postings.Put(ctx, "prejudice", 11))

	ids, err := postings.Get(ctx, "prejudice")
	require.NoError(t, err)
	assert.Equal(t, []guten.BookID{11, 1342}, ids)

	ok, err := postings.Contains(ctx, "prejudice", 1342)
	require.NoError(t, err)
	assert.True(t, ok)

	count, err := postings.TermCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
