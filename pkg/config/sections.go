package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ServerConfig configures the HTTP surface of a service role.
type ServerConfig struct {
	// Host to bind to.
	Host string `yaml:"host,omitempty"`

	// Port to listen on. Each role may override it on the command line when
	// several roles share one machine.
	Port int `yaml:"port,omitempty"`
}

// SetDefaults applies default values.
func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
}

// Validate checks the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// Address returns the HTTP listen address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatalakeType identifies the directory placement policy.
type DatalakeType string

const (
	// DatalakeBucket groups books under bucket_<id/size> directories.
	DatalakeBucket DatalakeType = "bucket"

	// DatalakeTimestamp groups books under <YYYYMMDD>/<HH>/<id> directories
	// using the local clock at save time.
	DatalakeTimestamp DatalakeType = "timestamp"
)

// DatalakeConfig configures the per-node book store.
type DatalakeConfig struct {
	// Path is the datalake root directory.
	Path string `yaml:"path,omitempty"`

	// Type selects the placement policy: bucket (default) or timestamp.
	Type DatalakeType `yaml:"type,omitempty"`

	// BucketSize is the number of identifiers per bucket directory.
	BucketSize int `yaml:"bucket_size,omitempty"`

	// TrackingFilename is the per-node log of identifiers present locally.
	TrackingFilename string `yaml:"tracking_filename,omitempty"`
}

// SetDefaults applies default values.
func (c *DatalakeConfig) SetDefaults() {
	if c.Path == "" {
		c.Path = "./datalake"
	}
	if c.Type == "" {
		c.Type = DatalakeBucket
	}
	if c.BucketSize == 0 {
		c.BucketSize = 1000
	}
	if c.TrackingFilename == "" {
		c.TrackingFilename = "downloaded_books.txt"
	}
}

// Validate checks the datalake configuration.
func (c *DatalakeConfig) Validate() error {
	if c.Type != DatalakeBucket && c.Type != DatalakeTimestamp {
		return fmt.Errorf("invalid type %q (valid: bucket, timestamp)", c.Type)
	}
	if c.BucketSize <= 0 {
		return fmt.Errorf("bucket_size must be positive, got %d", c.BucketSize)
	}
	return nil
}

// GutenbergConfig configures the book downloader.
type GutenbergConfig struct {
	// BaseURL of the book source or mirror.
	BaseURL string `yaml:"base_url,omitempty"`

	// DownloadTimeoutMS bounds connect plus read time per attempt.
	DownloadTimeoutMS int `yaml:"download_timeout_ms,omitempty"`
}

// SetDefaults applies default values.
func (c *GutenbergConfig) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://www.gutenberg.org"
	}
	if c.DownloadTimeoutMS == 0 {
		c.DownloadTimeoutMS = 10000
	}
}

// Validate checks the downloader configuration.
func (c *GutenbergConfig) Validate() error {
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("invalid base_url %q: %v", c.BaseURL, err)
	}
	if c.DownloadTimeoutMS < 0 {
		return fmt.Errorf("download_timeout_ms must be non-negative")
	}
	return nil
}

// Timeout returns the per-attempt download timeout.
func (c *GutenbergConfig) Timeout() time.Duration {
	return time.Duration(c.DownloadTimeoutMS) * time.Millisecond
}

// ActiveMQConfig configures the indexing job queue.
type ActiveMQConfig struct {
	// BrokerURL is the STOMP endpoint, e.g. tcp://broker:61613.
	BrokerURL string `yaml:"broker_url,omitempty"`

	// QueueName is the well-known indexing queue.
	QueueName string `yaml:"queue_name,omitempty"`
}

// SetDefaults applies default values.
func (c *ActiveMQConfig) SetDefaults() {
	if c.BrokerURL == "" {
		c.BrokerURL = "tcp://localhost:61613"
	}
	if c.QueueName == "" {
		c.QueueName = "book-indexing"
	}
}

// Validate checks the broker configuration.
func (c *ActiveMQConfig) Validate() error {
	u, err := url.Parse(c.BrokerURL)
	if err != nil {
		return fmt.Errorf("invalid broker_url %q: %v", c.BrokerURL, err)
	}
	if u.Host == "" {
		return fmt.Errorf("broker_url %q has no host", c.BrokerURL)
	}
	return nil
}

// BrokerAddr returns the host:port part of the broker URL.
func (c *ActiveMQConfig) BrokerAddr() string {
	u, err := url.Parse(c.BrokerURL)
	if err != nil {
		return c.BrokerURL
	}
	return u.Host
}

// ClusterConfig configures membership and the partitioned state service.
type ClusterConfig struct {
	// Members is the comma-separated list of cluster RPC addresses
	// (host:port). Multicast discovery is not supported.
	Members string `yaml:"members,omitempty"`

	// CurrentNodeIP is the routable address this member advertises.
	CurrentNodeIP string `yaml:"current_node_ip,omitempty"`

	// NodePort is the cluster RPC port every member listens on.
	NodePort int `yaml:"node_port,omitempty"`

	// BackupCount is the number of synchronous backup replicas per entry.
	BackupCount int `yaml:"backup_count,omitempty"`

	// AsyncBackupCount is the number of fire-and-forget replicas per entry.
	AsyncBackupCount int `yaml:"async_backup_count,omitempty"`

	// MetadataMapName names the distributed metadata map.
	MetadataMapName string `yaml:"metadata_map_name,omitempty"`

	// InvertedIndexName names the distributed postings multimap.
	InvertedIndexName string `yaml:"inverted_index_name,omitempty"`
}

// SetDefaults applies default values.
func (c *ClusterConfig) SetDefaults() {
	if c.CurrentNodeIP == "" {
		c.CurrentNodeIP = "127.0.0.1"
	}
	if c.NodePort == 0 {
		c.NodePort = 7600
	}
	if c.Members == "" {
		c.Members = fmt.Sprintf("%s:%d", c.CurrentNodeIP, c.NodePort)
	}
	if c.BackupCount == 0 {
		c.BackupCount = 1
	}
	if c.MetadataMapName == "" {
		c.MetadataMapName = "books-metadata"
	}
	if c.InvertedIndexName == "" {
		c.InvertedIndexName = "inverted-index"
	}
}

// Validate checks the cluster configuration.
func (c *ClusterConfig) Validate() error {
	if c.NodePort <= 0 || c.NodePort > 65535 {
		return fmt.Errorf("invalid node_port %d", c.NodePort)
	}
	if len(c.MemberList()) == 0 {
		return fmt.Errorf("members must list at least one address")
	}
	if c.BackupCount < 0 {
		return fmt.Errorf("backup_count must be non-negative")
	}
	if c.AsyncBackupCount < 0 {
		return fmt.Errorf("async_backup_count must be non-negative")
	}
	return nil
}

// MemberList returns the parsed member addresses in configured order.
func (c *ClusterConfig) MemberList() []string {
	var out []string
	for _, m := range strings.Split(c.Members, ",") {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}

// SelfAddr returns the advertised cluster RPC address of this member.
func (c *ClusterConfig) SelfAddr() string {
	return fmt.Sprintf("%s:%d", c.CurrentNodeIP, c.NodePort)
}

// IndexConfig configures indexing-time behavior.
type IndexConfig struct {
	// ShardCount is the fixed size of the postings lock table. Writers to a
	// term contend on lock:shard:<hash(term) mod ShardCount>.
	ShardCount int `yaml:"shard_count,omitempty"`
}

// SetDefaults applies default values.
func (c *IndexConfig) SetDefaults() {
	if c.ShardCount == 0 {
		c.ShardCount = 20
	}
}

// Validate checks the index configuration.
func (c *IndexConfig) Validate() error {
	if c.ShardCount <= 0 {
		return fmt.Errorf("shard_count must be positive, got %d", c.ShardCount)
	}
	return nil
}

// SearchConfig configures result bounds.
type SearchConfig struct {
	// MaxResults is the hard cap on returned results.
	MaxResults int `yaml:"max_results,omitempty"`

	// DefaultLimit applies when a query does not carry an explicit limit.
	DefaultLimit int `yaml:"default_limit,omitempty"`
}

// SetDefaults applies default values.
func (c *SearchConfig) SetDefaults() {
	if c.MaxResults == 0 {
		c.MaxResults = 100
	}
	if c.DefaultLimit == 0 {
		c.DefaultLimit = 10
	}
}

// Validate checks the search configuration.
func (c *SearchConfig) Validate() error {
	if c.MaxResults <= 0 {
		return fmt.Errorf("max_results must be positive")
	}
	if c.DefaultLimit <= 0 {
		return fmt.Errorf("default_limit must be positive")
	}
	if c.DefaultLimit > c.MaxResults {
		return fmt.Errorf("default_limit %d exceeds max_results %d", c.DefaultLimit, c.MaxResults)
	}
	return nil
}

// ReplicationConfig configures the one-off peer copy of ingested books.
type ReplicationConfig struct {
	// Enabled turns replication on. With a single-member cluster ingestion
	// proceeds without a peer copy.
	Enabled *bool `yaml:"enabled,omitempty"`

	// Port is the HTTP port of the receiving endpoint on peers.
	Port int `yaml:"port,omitempty"`

	// Endpoint is the path of the receiving endpoint.
	Endpoint string `yaml:"endpoint,omitempty"`

	// TimeoutMS bounds each delivery attempt.
	TimeoutMS int `yaml:"timeout_ms,omitempty"`
}

// SetDefaults applies default values.
func (c *ReplicationConfig) SetDefaults() {
	if c.Enabled == nil {
		enabled := true
		c.Enabled = &enabled
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.Endpoint == "" {
		c.Endpoint = "/api/datalake/store"
	}
	if c.TimeoutMS == 0 {
		c.TimeoutMS = 5000
	}
}

// Validate checks the replication configuration.
func (c *ReplicationConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if !strings.HasPrefix(c.Endpoint, "/") {
		return fmt.Errorf("endpoint %q must start with /", c.Endpoint)
	}
	if c.TimeoutMS < 0 {
		return fmt.Errorf("timeout_ms must be non-negative")
	}
	return nil
}

// IsEnabled reports whether replication is on.
func (c *ReplicationConfig) IsEnabled() bool {
	return c != nil && c.Enabled != nil && *c.Enabled
}

// Timeout returns the per-attempt replication timeout.
func (c *ReplicationConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}
