package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/gutensearch/pkg/config"
)

// Node is one cluster member: its share of the partitioned collections, the
// HTTP/JSON RPC surface other members call, and the client the local
// services use. Create one Node per process with NewNode, call Start to join
// the cluster and Shutdown to leave it.
type Node struct {
	membership *Membership
	store      *nodeStore
	client     *Client
	log        *slog.Logger

	listenAddr string
	httpServer *http.Server
}

// NewNode builds the member from configuration. Startup fails when the
// current node is not part of the configured member list.
func NewNode(cfg config.ClusterConfig, log *slog.Logger) (*Node, error) {
	membership, err := NewMembership(cfg.MemberList(), cfg.SelfAddr(), cfg.BackupCount)
	if err != nil {
		return nil, fmt.Errorf("cluster membership: %w", err)
	}

	n := &Node{
		membership: membership,
		store:      newNodeStore(),
		log:        log,
		listenAddr: fmt.Sprintf(":%d", cfg.NodePort),
	}
	n.client = newClient(membership, n.store, log)
	return n, nil
}

// Membership returns the static membership view.
func (n *Node) Membership() *Membership {
	return n.membership
}

// Client returns the collections client backed by this node.
func (n *Node) Client() *Client {
	return n.client
}

// Start binds the cluster RPC port and serves until Shutdown. It returns
// once the listener is bound; serving continues in the background and fatal
// serve errors are delivered on the returned channel.
func (n *Node) Start() (<-chan error, error) {
	ln, err := net.Listen("tcp", n.listenAddr)
	if err != nil {
		return nil, fmt.Errorf("binding cluster port %s: %w", n.listenAddr, err)
	}

	n.httpServer = &http.Server{
		Handler:           n.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := n.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	n.log.Info("cluster member started", "self", n.membership.Self(),
		"members", len(n.membership.Members()))
	return errCh, nil
}

// Shutdown stops serving cluster RPCs.
func (n *Node) Shutdown(ctx context.Context) error {
	if n.httpServer == nil {
		return nil
	}
	n.log.Info("cluster member stopping", "self", n.membership.Self())
	return n.httpServer.Shutdown(ctx)
}

func (n *Node) router() chi.Router {
	r := chi.NewRouter()

	r.Get("/cluster/ping", func(w http.ResponseWriter, _ *http.Request) {
		writeWire(w, http.StatusOK, &wireResponse{OK: true})
	})

	r.Route("/cluster/map/{name}", func(r chi.Router) {
		r.Post("/get", n.handleMapGet)
		r.Post("/getall", n.handleMapGetAll)
		r.Post("/put", n.handleMapPut)
		r.Post("/contains", n.handleMapContains)
		r.Get("/size", n.handleMapSize)
		r.Get("/values", n.handleMapValues)
		r.Post("/clear", n.handleMapClear)
	})

	r.Route("/cluster/multimap/{name}", func(r chi.Router) {
		r.Post("/get", n.handleMultiMapGet)
		r.Post("/put", n.handleMultiMapPut)
		r.Post("/contains", n.handleMultiMapContains)
		r.Get("/keys", n.handleMultiMapKeys)
		r.Get("/size", n.handleMultiMapSize)
		r.Post("/clear", n.handleMultiMapClear)
	})

	r.Route("/cluster/lock/{name}", func(r chi.Router) {
		r.Post("/acquire", n.handleLockAcquire)
		r.Post("/release", n.handleLockRelease)
	})

	return r
}

func decodeWire(r *http.Request) (*wireRequest, error) {
	var req wireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	return &req, nil
}

func writeWire(w http.ResponseWriter, status int, resp *wireResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func writeWireError(w http.ResponseWriter, status int, err error) {
	writeWire(w, status, &wireResponse{Error: err.Error()})
}

func (n *Node) handleMapGet(w http.ResponseWriter, r *http.Request) {
	req, err := decodeWire(r)
	if err != nil {
		writeWireError(w, http.StatusBadRequest, err)
		return
	}
	name := chi.URLParam(r, "name")
	value, found := n.store.mapGet(name, req.Key)
	writeWire(w, http.StatusOK, &wireResponse{Value: value, Found: found})
}

func (n *Node) handleMapGetAll(w http.ResponseWriter, r *http.Request) {
	req, err := decodeWire(r)
	if err != nil {
		writeWireError(w, http.StatusBadRequest, err)
		return
	}
	name := chi.URLParam(r, "name")
	writeWire(w, http.StatusOK, &wireResponse{Entries: n.store.mapGetAll(name, req.Keys)})
}

func (n *Node) handleMapPut(w http.ResponseWriter, r *http.Request) {
	req, err := decodeWire(r)
	if err != nil {
		writeWireError(w, http.StatusBadRequest, err)
		return
	}
	name := chi.URLParam(r, "name")
	n.store.mapPut(name, req.Key, req.Value)
	if req.Forward {
		n.client.forward(r.Context(), req.Key, "/cluster/map/"+name+"/put", &wireRequest{
			Key:   req.Key,
			Value: req.Value,
		})
	}
	writeWire(w, http.StatusOK, &wireResponse{OK: true})
}

func (n *Node) handleMapContains(w http.ResponseWriter, r *http.Request) {
	req, err := decodeWire(r)
	if err != nil {
		writeWireError(w, http.StatusBadRequest, err)
		return
	}
	name := chi.URLParam(r, "name")
	writeWire(w, http.StatusOK, &wireResponse{Found: n.store.mapContains(name, req.Key)})
}

func (n *Node) handleMapSize(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	size := n.store.mapSize(name, n.membership.OwnsPrimary)
	writeWire(w, http.StatusOK, &wireResponse{Size: size})
}

func (n *Node) handleMapValues(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		fmt.Sscanf(s, "%d", &limit)
	}
	values := n.store.mapValues(name, n.membership.OwnsPrimary, limit)
	writeWire(w, http.StatusOK, &wireResponse{Values: values})
}

func (n *Node) handleMapClear(w http.ResponseWriter, r *http.Request) {
	n.store.mapClear(chi.URLParam(r, "name"))
	writeWire(w, http.StatusOK, &wireResponse{OK: true})
}

func (n *Node) handleMultiMapGet(w http.ResponseWriter, r *http.Request) {
	req, err := decodeWire(r)
	if err != nil {
		writeWireError(w, http.StatusBadRequest, err)
		return
	}
	name := chi.URLParam(r, "name")
	writeWire(w, http.StatusOK, &wireResponse{Members: n.store.mmGet(name, req.Key)})
}

func (n *Node) handleMultiMapPut(w http.ResponseWriter, r *http.Request) {
	req, err := decodeWire(r)
	if err != nil {
		writeWireError(w, http.StatusBadRequest, err)
		return
	}
	name := chi.URLParam(r, "name")
	n.store.mmPut(name, req.Key, req.Member)
	if req.Forward {
		n.client.forward(r.Context(), req.Key, "/cluster/multimap/"+name+"/put", &wireRequest{
			Key:    req.Key,
			Member: req.Member,
		})
	}
	writeWire(w, http.StatusOK, &wireResponse{OK: true})
}

func (n *Node) handleMultiMapContains(w http.ResponseWriter, r *http.Request) {
	req, err := decodeWire(r)
	if err != nil {
		writeWireError(w, http.StatusBadRequest, err)
		return
	}
	name := chi.URLParam(r, "name")
	found := n.store.mmContains(name, req.Key, req.Member)
	writeWire(w, http.StatusOK, &wireResponse{Found: found})
}

func (n *Node) handleMultiMapKeys(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	keys := n.store.mmKeys(name, n.membership.OwnsPrimary)
	writeWire(w, http.StatusOK, &wireResponse{Keys: keys})
}

func (n *Node) handleMultiMapSize(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	size := len(n.store.mmKeys(name, n.membership.OwnsPrimary))
	writeWire(w, http.StatusOK, &wireResponse{Size: size})
}

func (n *Node) handleMultiMapClear(w http.ResponseWriter, r *http.Request) {
	n.store.mmClear(chi.URLParam(r, "name"))
	writeWire(w, http.StatusOK, &wireResponse{OK: true})
}

func (n *Node) handleLockAcquire(w http.ResponseWriter, r *http.Request) {
	req, err := decodeWire(r)
	if err != nil {
		writeWireError(w, http.StatusBadRequest, err)
		return
	}
	if req.Token == "" {
		writeWireError(w, http.StatusBadRequest, fmt.Errorf("missing lock token"))
		return
	}
	name := chi.URLParam(r, "name")
	if err := n.store.acquireLock(r.Context(), name, req.Token); err != nil {
		writeWireError(w, http.StatusConflict, err)
		return
	}
	writeWire(w, http.StatusOK, &wireResponse{OK: true})
}

func (n *Node) handleLockRelease(w http.ResponseWriter, r *http.Request) {
	req, err := decodeWire(r)
	if err != nil {
		writeWireError(w, http.StatusBadRequest, err)
		return
	}
	name := chi.URLParam(r, "name")
	if err := n.store.releaseLock(name, req.Token); err != nil {
		writeWireError(w, http.StatusConflict, err)
		return
	}
	writeWire(w, http.StatusOK, &wireResponse{OK: true})
}
