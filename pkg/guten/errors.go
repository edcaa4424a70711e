package guten

import "errors"

// Error kinds shared across services. Components wrap these with context via
// fmt.Errorf("...: %w", Err...) and callers classify with errors.Is.
var (
	// ErrNotFound covers a 404/410 from the remote source and local lookups
	// for identifiers the datalake does not hold.
	ErrNotFound = errors.New("not found")

	// ErrBookFormat marks content that fails marker validation or has an
	// empty header or body section. Never mapped to ErrTransport.
	ErrBookFormat = errors.New("invalid book format")

	// ErrTransport covers connection failures, timeouts and any non-2xx
	// response that is not 404/410. Retryable at the caller's discretion.
	ErrTransport = errors.New("transport error")

	// ErrNoTargets is raised when replication is requested but the cluster
	// has no member other than the current node.
	ErrNoTargets = errors.New("no replication targets")

	// ErrReplicationFailed is raised after every replication candidate has
	// been attempted without a 2xx response.
	ErrReplicationFailed = errors.New("replication failed")

	// ErrCluster marks a failed cluster-state operation. The queue consumer
	// propagates it so the broker redelivers the indexing job.
	ErrCluster = errors.New("cluster error")

	// ErrQueue marks a broker failure. Producers surface it to the caller,
	// the consumer reconnects after a backoff.
	ErrQueue = errors.New("queue error")

	// ErrConfig marks a missing or non-parseable configuration option.
	// Fatal at startup.
	ErrConfig = errors.New("configuration error")
)
