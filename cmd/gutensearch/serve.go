package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/gutensearch/pkg/cluster"
	"github.com/kadirpekel/gutensearch/pkg/config"
	"github.com/kadirpekel/gutensearch/pkg/datalake"
	"github.com/kadirpekel/gutensearch/pkg/guten"
	"github.com/kadirpekel/gutensearch/pkg/gutenberg"
	"github.com/kadirpekel/gutensearch/pkg/index"
	"github.com/kadirpekel/gutensearch/pkg/logger"
	"github.com/kadirpekel/gutensearch/pkg/pipeline"
	"github.com/kadirpekel/gutensearch/pkg/queue"
	"github.com/kadirpekel/gutensearch/pkg/replicate"
	"github.com/kadirpekel/gutensearch/pkg/search"
	"github.com/kadirpekel/gutensearch/pkg/server"
)

const shutdownTimeout = 15 * time.Second

// ServeCmd starts one or all service roles in a single process. Every role
// joins the cluster; the role selection only decides which HTTP endpoints
// and background workers run here.
type ServeCmd struct {
	Role string `help:"Service role to run: ingestor, indexer, searcher or all." default:"all" enum:"ingestor,indexer,searcher,all"`
	Port int    `help:"HTTP port override for this role." default:"0"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	log := logger.GetLogger()

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	node, err := cluster.NewNode(cfg.Cluster, log)
	if err != nil {
		return err
	}
	nodeErrs, err := node.Start()
	if err != nil {
		return err
	}

	lake, err := datalake.New(cfg.Datalake, log)
	if err != nil {
		return err
	}
	metadata := cluster.NewMetadataStore(node.Client().Map(cfg.Cluster.MetadataMapName))
	postings := cluster.NewPostings(node.Client().MultiMap(cfg.Cluster.InvertedIndexName))

	withIngestor := c.Role == "ingestor" || c.Role == "all"
	withIndexer := c.Role == "indexer" || c.Role == "all"
	withSearcher := c.Role == "searcher" || c.Role == "all"

	var producer *queue.Producer
	var consumer *queue.Consumer

	routes := func(r chi.Router) {
		if withIngestor {
			fetcher := gutenberg.NewDownloader(cfg.Gutenberg, log)
			replicator := replicate.New(cfg.Replication, node.Membership(), log)
			producer = queue.NewProducer(cfg.ActiveMQ, cfg.Cluster.CurrentNodeIP, log)

			ing := server.NewIngestor(lake, fetcher, replicator, producer, log)
			ing.Routes(r)

			pipe := pipeline.New(func(ctx context.Context, id guten.BookID) (bool, error) {
				outcome, err := ing.Ingest(ctx, id)
				return err == nil && outcome.Status == server.StatusDownloaded, err
			}, log)
			server.NewPipelineAPI(pipe, log).Routes(r)
		}
		if withIndexer {
			ix := index.New(lake, metadata, postings, node.Client().Locks(),
				cfg.Index.ShardCount, log)
			server.NewIndexerAPI(ix, log).Routes(r)

			// Recover before consuming: a full-cluster restart must not come
			// back empty while the books are still on local disk.
			go func() {
				if report, ran, err := ix.RecoverIfEmpty(ctx); err != nil {
					log.Error("startup recovery failed", "error", err)
				} else if ran {
					log.Info("startup recovery finished",
						"indexed", report.Indexed, "failed", report.Failed)
				}
			}()

			consumer = queue.NewConsumer(cfg.ActiveMQ, func(ctx context.Context, id guten.BookID, sourceNode string) error {
				res, err := ix.IndexBook(ctx, id)
				if err == nil && res.Indexed {
					log.Info("queued book indexed", "bookId", id, "source", sourceNode)
				}
				return err
			}, log)
			consumer.Start(ctx)
		}
		if withSearcher {
			searcher := search.New(metadata, postings, cfg.Search, log)
			server.NewSearcherAPI(searcher, log).Routes(r)
		}
	}

	srv := server.New(cfg.Server.Address(), routes, log)
	srvErrs, err := srv.Start()
	if err != nil {
		shutdownCluster(node, log)
		return err
	}
	log.Info("gutensearch ready", "role", c.Role, "addr", cfg.Server.Address(),
		"cluster", cfg.Cluster.SelfAddr())

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case err, ok := <-srvErrs:
			if ok && err != nil {
				return fmt.Errorf("http server: %w", err)
			}
		case <-ctx.Done():
		}
		return nil
	})
	g.Go(func() error {
		select {
		case err, ok := <-nodeErrs:
			if ok && err != nil {
				return fmt.Errorf("cluster member: %w", err)
			}
		case <-ctx.Done():
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	runErr := g.Wait()
	cancel()

	// Stop intake first, then the HTTP surface, then leave the cluster.
	if consumer != nil {
		consumer.Stop()
	}
	if producer != nil {
		producer.Close()
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "error", err)
	}
	shutdownCluster(node, log)

	return runErr
}

func shutdownCluster(node *cluster.Node, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := node.Shutdown(ctx); err != nil {
		log.Error("cluster shutdown failed", "error", err)
	}
}
