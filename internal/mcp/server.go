package mcp

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"

	"github.com/playbookhq/playbook-mcp/internal/curator"
	"github.com/playbookhq/playbook-mcp/internal/extractor"
	"github.com/playbookhq/playbook-mcp/internal/indexer"
	"github.com/playbookhq/playbook-mcp/internal/lexical"
	"github.com/playbookhq/playbook-mcp/internal/llm"
	"github.com/playbookhq/playbook-mcp/internal/matcher"
	"github.com/playbookhq/playbook-mcp/internal/retriever"
	"github.com/playbookhq/playbook-mcp/internal/scoring"
	"github.com/playbookhq/playbook-mcp/internal/similarity"
	"github.com/playbookhq/playbook-mcp/internal/storage"
	"github.com/playbookhq/playbook-mcp/internal/vector"
)

const (
	// ServerName is the MCP server name
	ServerName = "playbook-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
	// DefaultDBPath is the default location for the playbook database
	DefaultDBPath = "~/.playbook"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp     *server.MCPServer
	storage storage.Storage
	matcher *matcher.Matcher
	indexer *indexer.Indexer
	index   *lexical.Index
	vectors vector.Provider
	logger  *log.Logger
}

// NewServer creates a new MCP server instance and wires the full engine
// behind it. The LLM client is optional: when no provider is configured,
// extraction and sequencing degrade instead of blocking startup.
func NewServer(dbPath string, logger *log.Logger) (*Server, error) {
	if dbPath == "" || dbPath == DefaultDBPath {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".playbook")
	}

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dbFile := filepath.Join(dbPath, "playbooks.db")

	store, err := storage.NewSQLiteStorage(dbFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	vectors, err := vector.NewFromEnv()
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize vector provider: %w", err)
	}

	client, err := llm.NewFromEnv()
	if err != nil {
		logger.Printf("llm provider unavailable, extraction disabled: %v", err)
		client = llm.Unavailable(err.Error())
	}

	index := lexical.NewIndex()
	registry := similarity.NewRegistry(store)
	ret := retriever.New(index, vectors, store, logger)
	scorer := scoring.NewEngine(registry, logger)
	ext := extractor.NewEngine(client, store, logger)
	cur := curator.NewEngine(store, vectors, index, logger)
	idx := indexer.New(store, index, vectors, logger)

	m := matcher.New(matcher.Config{
		Store:     store,
		Retriever: ret,
		Scorer:    scorer,
		Registry:  registry,
		Extractor: ext,
		Curator:   cur,
		Indexer:   idx,
		Client:    client,
		Logger:    logger,
	})

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
	)

	s := &Server{
		mcp:     mcpServer,
		storage: store,
		matcher: m,
		indexer: idx,
		index:   index,
		vectors: vectors,
		logger:  logger,
	}

	if err := s.registerTools(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Serve rebuilds the in-memory indexes from storage, then starts the MCP
// server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.storage.Close() }()

	count, err := s.indexer.Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("failed to rebuild indexes: %w", err)
	}
	s.logger.Printf("indexed %d playbooks at startup", count)

	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	s.mcp.AddTool(matchPlaybooksTool(), s.handleMatchPlaybooks)
	s.mcp.AddTool(findSimilarPlaybooksTool(), s.handleFindSimilarPlaybooks)
	s.mcp.AddTool(recommendSequenceTool(), s.handleRecommendSequence)
	s.mcp.AddTool(savePlaybookTool(), s.handleSavePlaybook)
	s.mcp.AddTool(recordExecutionTool(), s.handleRecordExecution)
	s.mcp.AddTool(batchExtractPlaybooksTool(), s.handleBatchExtractPlaybooks)
	s.mcp.AddTool(maintainKnowledgeBaseTool(), s.handleMaintainKnowledgeBase)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	return nil
}
