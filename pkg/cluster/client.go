package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/gutensearch/pkg/guten"
)

// Client gives services access to the distributed collections. Operations
// whose primary partition lives on the current node short-circuit to the
// in-process store; everything else goes over the cluster RPC surface.
// Writes are sent to the primary with the forward flag set, so the primary
// replicates to the backups before acknowledging. When the primary is
// unreachable the next replica acts as primary; combined with the
// idempotency of indexing, unnoticed retries are safe.
type Client struct {
	membership *Membership
	store      *nodeStore
	log        *slog.Logger

	// rpc bounds ordinary operations; blocking carries lock acquisitions,
	// which may legitimately wait, and is cancelled through the context.
	rpc      *http.Client
	blocking *http.Client
}

func newClient(membership *Membership, store *nodeStore, log *slog.Logger) *Client {
	return &Client{
		membership: membership,
		store:      store,
		log:        log,
		rpc:        &http.Client{Timeout: 10 * time.Second},
		blocking:   &http.Client{},
	}
}

// Map returns the distributed map with the given name.
func (c *Client) Map(name string) Map {
	return &mapClient{c: c, name: name}
}

// MultiMap returns the distributed multimap with the given name.
func (c *Client) MultiMap(name string) MultiMap {
	return &multiMapClient{c: c, name: name}
}

// Locks returns the cluster-wide named lock service.
func (c *Client) Locks() LockService {
	return &lockService{c: c}
}

func (c *Client) post(ctx context.Context, httpc *http.Client, addr, path string, req *wireRequest) (*wireResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+addr+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(httpc, httpReq)
}

func (c *Client) get(ctx context.Context, addr, path string) (*wireResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(c.rpc, httpReq)
}

func (c *Client) do(httpc *http.Client, req *http.Request) (*wireResponse, error) {
	httpResp, err := httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}
	var resp wireResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("member %s: bad response: %w", req.URL.Host, err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("member %s: %s", req.URL.Host, resp.Error)
	}
	return &resp, nil
}

// forward propagates an already-applied write to the remaining replicas of
// key. Failures are logged, not surfaced: a down backup must not park every
// write, and the reader-visible contract stays last-acknowledged-write-wins.
func (c *Client) forward(ctx context.Context, key, path string, req *wireRequest) {
	for _, addr := range c.membership.ReplicasFor(key) {
		if addr == c.membership.Self() {
			continue
		}
		if _, err := c.post(ctx, c.rpc, addr, path, req); err != nil {
			c.log.Warn("backup replication failed", "member", addr, "path", path, "error", err)
		}
	}
}

// selfIsReplica reports whether the current node holds a replica of key.
func (c *Client) selfIsReplica(key string) bool {
	for _, addr := range c.membership.ReplicasFor(key) {
		if addr == c.membership.Self() {
			return true
		}
	}
	return false
}

type mapClient struct {
	c    *Client
	name string
}

func (m *mapClient) path(op string) string {
	return "/cluster/map/" + m.name + "/" + op
}

func (m *mapClient) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	if m.c.selfIsReplica(key) {
		v, ok := m.c.store.mapGet(m.name, key)
		return v, ok, nil
	}
	var lastErr error
	for _, addr := range m.c.membership.ReplicasFor(key) {
		resp, err := m.c.post(ctx, m.c.rpc, addr, m.path("get"), &wireRequest{Key: key})
		if err != nil {
			lastErr = err
			continue
		}
		return resp.Value, resp.Found, nil
	}
	return nil, false, fmt.Errorf("%w: map get %q: %v", guten.ErrCluster, key, lastErr)
}

func (m *mapClient) GetAll(ctx context.Context, keys []string) (map[string]json.RawMessage, error) {
	out := map[string]json.RawMessage{}
	if len(keys) == 0 {
		return out, nil
	}

	// Batch keys per primary; fall back to per-key replica reads for
	// batches whose primary is unreachable.
	batches := map[string][]string{}
	for _, key := range keys {
		primary := m.c.membership.ReplicasFor(key)[0]
		batches[primary] = append(batches[primary], key)
	}

	for addr, batch := range batches {
		if addr == m.c.membership.Self() {
			for k, v := range m.c.store.mapGetAll(m.name, batch) {
				out[k] = v
			}
			continue
		}
		resp, err := m.c.post(ctx, m.c.rpc, addr, m.path("getall"), &wireRequest{Keys: batch})
		if err == nil {
			for k, v := range resp.Entries {
				out[k] = v
			}
			continue
		}
		m.c.log.Warn("bulk read fell back to per-key reads", "member", addr, "error", err)
		for _, key := range batch {
			v, ok, err := m.Get(ctx, key)
			if err != nil {
				return nil, err
			}
			if ok {
				out[key] = v
			}
		}
	}
	return out, nil
}

func (m *mapClient) Put(ctx context.Context, key string, value json.RawMessage) error {
	replicas := m.c.membership.ReplicasFor(key)
	var lastErr error
	for _, addr := range replicas {
		if addr == m.c.membership.Self() {
			m.c.store.mapPut(m.name, key, value)
			m.c.forward(ctx, key, m.path("put"), &wireRequest{Key: key, Value: value})
			return nil
		}
		_, err := m.c.post(ctx, m.c.rpc, addr, m.path("put"), &wireRequest{Key: key, Value: value, Forward: true})
		if err == nil {
			return nil
		}
		lastErr = err
		m.c.log.Warn("write failing over to next replica", "member", addr, "key", key, "error", err)
	}
	return fmt.Errorf("%w: map put %q: %v", guten.ErrCluster, key, lastErr)
}

func (m *mapClient) ContainsKey(ctx context.Context, key string) (bool, error) {
	if m.c.selfIsReplica(key) {
		return m.c.store.mapContains(m.name, key), nil
	}
	var lastErr error
	for _, addr := range m.c.membership.ReplicasFor(key) {
		resp, err := m.c.post(ctx, m.c.rpc, addr, m.path("contains"), &wireRequest{Key: key})
		if err != nil {
			lastErr = err
			continue
		}
		return resp.Found, nil
	}
	return false, fmt.Errorf("%w: map contains %q: %v", guten.ErrCluster, key, lastErr)
}

func (m *mapClient) Size(ctx context.Context) (int, error) {
	total := 0
	for _, addr := range m.c.membership.Members() {
		if addr == m.c.membership.Self() {
			total += m.c.store.mapSize(m.name, m.c.membership.OwnsPrimary)
			continue
		}
		resp, err := m.c.get(ctx, addr, m.path("size"))
		if err != nil {
			return 0, fmt.Errorf("%w: map size: %v", guten.ErrCluster, err)
		}
		total += resp.Size
	}
	return total, nil
}

func (m *mapClient) Values(ctx context.Context, limit int) ([]json.RawMessage, error) {
	var out []json.RawMessage
	remaining := func() int {
		if limit <= 0 {
			return 0
		}
		return limit - len(out)
	}
	for _, addr := range m.c.membership.Members() {
		if limit > 0 && len(out) >= limit {
			break
		}
		if addr == m.c.membership.Self() {
			out = append(out, m.c.store.mapValues(m.name, m.c.membership.OwnsPrimary, remaining())...)
			continue
		}
		resp, err := m.c.get(ctx, addr, fmt.Sprintf("%s?limit=%d", m.path("values"), remaining()))
		if err != nil {
			return nil, fmt.Errorf("%w: map values: %v", guten.ErrCluster, err)
		}
		out = append(out, resp.Values...)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mapClient) Clear(ctx context.Context) error {
	for _, addr := range m.c.membership.Members() {
		if addr == m.c.membership.Self() {
			m.c.store.mapClear(m.name)
			continue
		}
		if _, err := m.c.post(ctx, m.c.rpc, addr, m.path("clear"), &wireRequest{}); err != nil {
			return fmt.Errorf("%w: map clear: %v", guten.ErrCluster, err)
		}
	}
	return nil
}

type multiMapClient struct {
	c    *Client
	name string
}

func (m *multiMapClient) path(op string) string {
	return "/cluster/multimap/" + m.name + "/" + op
}

func (m *multiMapClient) Get(ctx context.Context, key string) ([]int, error) {
	if m.c.selfIsReplica(key) {
		return m.c.store.mmGet(m.name, key), nil
	}
	var lastErr error
	for _, addr := range m.c.membership.ReplicasFor(key) {
		resp, err := m.c.post(ctx, m.c.rpc, addr, m.path("get"), &wireRequest{Key: key})
		if err != nil {
			lastErr = err
			continue
		}
		return resp.Members, nil
	}
	return nil, fmt.Errorf("%w: multimap get %q: %v", guten.ErrCluster, key, lastErr)
}

func (m *multiMapClient) Put(ctx context.Context, key string, member int) error {
	replicas := m.c.membership.ReplicasFor(key)
	var lastErr error
	for _, addr := range replicas {
		if addr == m.c.membership.Self() {
			m.c.store.mmPut(m.name, key, member)
			m.c.forward(ctx, key, m.path("put"), &wireRequest{Key: key, Member: member})
			return nil
		}
		_, err := m.c.post(ctx, m.c.rpc, addr, m.path("put"), &wireRequest{Key: key, Member: member, Forward: true})
		if err == nil {
			return nil
		}
		lastErr = err
		m.c.log.Warn("write failing over to next replica", "member", addr, "key", key, "error", err)
	}
	return fmt.Errorf("%w: multimap put %q: %v", guten.ErrCluster, key, lastErr)
}

func (m *multiMapClient) ContainsEntry(ctx context.Context, key string, member int) (bool, error) {
	if m.c.selfIsReplica(key) {
		return m.c.store.mmContains(m.name, key, member), nil
	}
	var lastErr error
	for _, addr := range m.c.membership.ReplicasFor(key) {
		resp, err := m.c.post(ctx, m.c.rpc, addr, m.path("contains"), &wireRequest{Key: key, Member: member})
		if err != nil {
			lastErr = err
			continue
		}
		return resp.Found, nil
	}
	return false, fmt.Errorf("%w: multimap contains %q: %v", guten.ErrCluster, key, lastErr)
}

func (m *multiMapClient) KeySet(ctx context.Context) ([]string, error) {
	var out []string
	for _, addr := range m.c.membership.Members() {
		if addr == m.c.membership.Self() {
			out = append(out, m.c.store.mmKeys(m.name, m.c.membership.OwnsPrimary)...)
			continue
		}
		resp, err := m.c.get(ctx, addr, m.path("keys"))
		if err != nil {
			return nil, fmt.Errorf("%w: multimap keys: %v", guten.ErrCluster, err)
		}
		out = append(out, resp.Keys...)
	}
	return out, nil
}

func (m *multiMapClient) KeyCount(ctx context.Context) (int, error) {
	total := 0
	for _, addr := range m.c.membership.Members() {
		if addr == m.c.membership.Self() {
			total += len(m.c.store.mmKeys(m.name, m.c.membership.OwnsPrimary))
			continue
		}
		resp, err := m.c.get(ctx, addr, m.path("size"))
		if err != nil {
			return 0, fmt.Errorf("%w: multimap size: %v", guten.ErrCluster, err)
		}
		total += resp.Size
	}
	return total, nil
}

func (m *multiMapClient) Clear(ctx context.Context) error {
	for _, addr := range m.c.membership.Members() {
		if addr == m.c.membership.Self() {
			m.c.store.mmClear(m.name)
			continue
		}
		if _, err := m.c.post(ctx, m.c.rpc, addr, m.path("clear"), &wireRequest{}); err != nil {
			return fmt.Errorf("%w: multimap clear: %v", guten.ErrCluster, err)
		}
	}
	return nil
}

// lockService routes each lock name to its partition primary, which holds
// the lock state. There is no lock failover: a lock owner that leaves the
// cluster invalidates the locks it held, and writers are expected to be
// idempotent under retries.
type lockService struct {
	c *Client
}

func (l *lockService) Lock(ctx context.Context, name string) (func() error, error) {
	owner := l.c.membership.ReplicasFor(name)[0]
	token := uuid.NewString()

	if owner == l.c.membership.Self() {
		if err := l.c.store.acquireLock(ctx, name, token); err != nil {
			return nil, fmt.Errorf("%w: acquiring lock %q: %v", guten.ErrCluster, name, err)
		}
		return func() error {
			return l.c.store.releaseLock(name, token)
		}, nil
	}

	path := "/cluster/lock/" + name + "/"
	if _, err := l.c.post(ctx, l.c.blocking, owner, path+"acquire", &wireRequest{Token: token}); err != nil {
		return nil, fmt.Errorf("%w: acquiring lock %q on %s: %v", guten.ErrCluster, name, owner, err)
	}
	return func() error {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := l.c.post(releaseCtx, l.c.rpc, owner, path+"release", &wireRequest{Token: token}); err != nil {
			return fmt.Errorf("%w: releasing lock %q on %s: %v", guten.ErrCluster, name, owner, err)
		}
		return nil
	}, nil
}
