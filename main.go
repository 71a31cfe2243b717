package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/campusrag/campusrag/pkg/client"
	"github.com/campusrag/campusrag/pkg/config"
	"github.com/campusrag/campusrag/rag"
	"github.com/campusrag/campusrag/rag/engine"
	"github.com/campusrag/campusrag/rag/interfaces"
	"github.com/campusrag/campusrag/rag/llm"
	"github.com/campusrag/campusrag/rag/sources"
	"github.com/mudler/xlog"
	"github.com/spf13/cobra"
)

var (
	configPath string
	serverURL  string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "campusrag",
	Short: "Question answering over ASU documents",
	Long: `campusrag answers questions about Arizona State University from the
documents stored in a vector database, over HTTP and SMS/WhatsApp.

The vector store is chosen with VECTOR_STORE_TYPE: chromem (local, the
default), qdrant or pgvector.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML configuration file")

	askCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8000", "campusrag server URL")
	askCmd.Flags().Int("top-k", 0, "number of documents to retrieve (server default when 0)")
	statsCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8000", "campusrag server URL")
	ingestCmd.Flags().Duration("update-interval", 0, "re-ingest the sources periodically while serving")
	migrateCmd.Flags().String("to", engine.TypeQdrant, "target vector store type: qdrant or pgvector")

	rootCmd.AddCommand(serveCmd, ingestCmd, seedCmd, askCmd, statsCmd, resetCmd, migrateCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the messaging webhook",
	RunE:  runServe,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <uri>...",
	Short: "Load, chunk and store documents",
	Long: `Load documents from files, web pages, sitemaps or git repositories,
chunk them and store them in the configured vector store.

Examples:
  campusrag ingest ./docs/admissions.pdf
  campusrag ingest https://www.asu.edu/sitemap.xml
  campusrag ingest --update-interval 24h https://www.asu.edu/about
  campusrag ingest git+https://github.com/asu/handbook.git`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Store the sample ASU documents",
	RunE:  runSeed,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a running server a question",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the statistics of a running server",
	RunE:  runStats,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the collection and forget the ingested sources",
	RunE:  runReset,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy the local chromem collection into qdrant or pgvector",
	Long: `Copy every document of the local chromem collection, embeddings
included, into the remote store selected with --to. The remote store is
configured the same way as for serving (QDRANT_URL, DATABASE_URL, ...).`,
	RunE: runMigrate,
}

// app holds the components built from the configuration.
type app struct {
	cfg      *config.Config
	store    interfaces.VectorStore
	ledger   *rag.Ledger
	embedder *llm.Embedder
	ingestor *rag.Ingestor
}

func newApp(ctx context.Context, withLLM bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if withLLM {
		if err := cfg.RequireOpenAI(); err != nil {
			return nil, err
		}
	}

	store, err := engine.New(ctx, cfg.Engine())
	if err != nil {
		return nil, err
	}

	ledger, err := rag.NewLedger(cfg.Ingest.LedgerPath)
	if err != nil {
		if cerr := store.Close(); cerr != nil {
			xlog.Warn("Failed to close vector store", "error", cerr)
		}
		return nil, fmt.Errorf("failed to open source ledger: %w", err)
	}

	a := &app{cfg: cfg, store: store, ledger: ledger}
	if withLLM {
		a.embedder = llm.NewEmbedder(llm.NewClient(cfg.LLM()), cfg.OpenAI.EmbeddingModel)
		a.ingestor = rag.NewIngestor(store, a.embedder, ledger,
			&sources.Config{GitPrivateKey: cfg.Ingest.GitPrivateKey}, cfg.Ingest.ChunkSize)
	}
	return a, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		xlog.Warn("Failed to close vector store", "error", err)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	completer := llm.NewCompleter(llm.NewClient(cfg.LLM()), cfg.LLM())
	pipeline := rag.NewPipeline(a.store, a.embedder, completer, cfg.Query.MaxContextChars)
	cache := rag.NewQueryCache(cfg.Cache.TTL, cfg.Cache.MaxEntries)
	assistant := rag.NewAssistant(pipeline, a.store, cache, engine.Inspect(cfg.Engine()), cfg.Query.Timeout, cfg.Query.TopK)

	rag.NewSourceManager(a.ingestor, a.ledger, cfg.Ingest.RefreshInterval).Start(ctx)

	e := newRouter(assistant, cfg.Server.ServiceName)

	info := engine.Inspect(cfg.Engine())
	xlog.Info("Starting server", "address", cfg.Server.Address(), "vector_store", info.Type, "collection", info.Collection)

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(cfg.Server.Address())
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	xlog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func runIngest(cmd *cobra.Command, args []string) error {
	updateInterval, err := cmd.Flags().GetDuration("update-interval")
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	var failed int
	for _, uri := range args {
		report, err := a.ingestor.Ingest(cmd.Context(), uri, updateInterval)
		if err != nil {
			xlog.Error("Failed to ingest source", "uri", uri, "error", err)
			failed++
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d/%d chunks stored in %d batches\n",
			uri, report.Persisted, report.Requested, report.Batches)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sources failed", failed, len(args))
	}
	return nil
}

func runSeed(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.ingestor.Seed(cmd.Context())
	if err != nil {
		return err
	}
	stats := a.store.Stats(cmd.Context())
	fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d documents, collection %s now holds %d\n",
		report.Persisted, stats.Collection, stats.TotalDocuments)
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	topK, err := cmd.Flags().GetInt("top-k")
	if err != nil {
		return err
	}

	result, err := client.NewClient(serverURL).Query(cmd.Context(), args[0], topK)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, result.Answer)
	if len(result.Sources) > 0 {
		fmt.Fprintln(out, "\nSources:")
		for _, s := range result.Sources {
			fmt.Fprintf(out, "  %d. [%.3f] %v\n", s.Rank, s.Score, s.Metadata["url"])
		}
	}
	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	stats, err := client.NewClient(serverURL).Stats(cmd.Context())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}

func runReset(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	// no embedder needed to drop data
	if err := rag.NewIngestor(a.store, nil, a.ledger, nil, 0).Reset(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Collection %s deleted\n", a.cfg.VectorStore.Collection)
	return nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	to, err := cmd.Flags().GetString("to")
	if err != nil {
		return err
	}
	target, err := engine.Normalize(to)
	if err != nil {
		return err
	}
	if target == engine.TypeChromem {
		return fmt.Errorf("migration target must be a remote store, got %q", to)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	srcCfg := cfg.Engine()
	srcCfg.Type = engine.TypeChromem
	if err := srcCfg.Validate(); err != nil {
		return err
	}
	src, err := engine.NewChromemDBCollection(srcCfg.Collection, srcCfg.ChromemPath, srcCfg.ChromemCompress, srcCfg.Dimension, srcCfg.BatchSize)
	if err != nil {
		return err
	}
	defer src.Close()

	dstCfg := cfg.Engine()
	dstCfg.Type = target
	dst, err := engine.New(cmd.Context(), dstCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dst.Close(); err != nil {
			xlog.Warn("Failed to close vector store", "error", err)
		}
	}()

	report, err := engine.Migrate(cmd.Context(), src, dst)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d documents from chromem to %s (%s now holds %d)\n",
		report.Persisted, target, dstCfg.Collection, dst.Stats(cmd.Context()).TotalDocuments)
	return nil
}
