package server

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/study-rag/internal/config"
	"github.com/Epistemic-Technology/study-rag/internal/documents"
	"github.com/Epistemic-Technology/study-rag/internal/extract"
	"github.com/Epistemic-Technology/study-rag/internal/index"
	"github.com/Epistemic-Technology/study-rag/internal/llm"
	"github.com/Epistemic-Technology/study-rag/internal/logger"
	"github.com/Epistemic-Technology/study-rag/internal/pdf"
	"github.com/Epistemic-Technology/study-rag/internal/query"
	"github.com/Epistemic-Technology/study-rag/internal/segment"
	"github.com/Epistemic-Technology/study-rag/internal/storage"
	"github.com/Epistemic-Technology/study-rag/internal/vectorstore"
	"github.com/Epistemic-Technology/study-rag/resources"
	"github.com/Epistemic-Technology/study-rag/tools"
)

// CreateServer wires the services described by cfg into an MCP server. The
// returned function releases the catalog.
func CreateServer(ctx context.Context, cfg *config.Config, log logger.Logger) (*mcp.Server, func(), error) {
	deps, err := initializeDeps(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := deps.Catalog.Close(); err != nil {
			log.Error("Failed to close catalog: %v", err)
		}
	}

	server := mcp.NewServer(&mcp.Implementation{Name: "study-rag", Version: "v0.1.0"}, nil)
	registerTools(server, deps)

	resourceHandler := resources.NewStudyResourceHandler(deps.Catalog, deps.Builder, deps.Renderer)
	registerResources(ctx, server, resourceHandler, log)

	return server, cleanup, nil
}

func initializeDeps(ctx context.Context, cfg *config.Config, log logger.Logger) (*tools.Deps, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	log.Info("Initializing SQLite catalog at: %s", cfg.DBPath)
	catalog, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create SQLite store: %w", err)
	}
	if cfg.StudyFiles != "" {
		n, err := catalog.ImportStudyFiles(ctx, cfg.StudyFiles, "")
		if err != nil {
			catalog.Close()
			return nil, fmt.Errorf("failed to import study files: %w", err)
		}
		log.Info("Imported %d studies from %s", n, cfg.StudyFiles)
	}

	log.Info("Opening vector store at: %s", cfg.VectorDir)
	vectors, err := vectorstore.NewPersistentStore(cfg.VectorDir, cfg.CompressDB, log)
	if err != nil {
		catalog.Close()
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	client, err := llm.NewOpenAIClient(cfg.OpenAI, log)
	if err != nil {
		catalog.Close()
		return nil, err
	}

	segmenter := segment.New(cfg.Segmenter.ChunkSize, cfg.Segmenter.ChunkOverlap, cfg.Segmenter.WindowSize, log)
	builder := index.NewBuilder(vectors, client, segmenter, catalog, log)

	engine := query.NewEngine(vectors, client, client, log)
	engine.SmallBibliography = cfg.Query.SmallBibliography
	engine.BibliographyCap = cfg.Query.BibliographyCap
	engine.PDFTopK = cfg.Query.PDFTopK

	extractor := extract.NewExtractor(client, documents.TextLoader{}, log)
	extractor.ChunkSize = cfg.Extract.ChunkSize
	extractor.ChunkOverlap = cfg.Extract.ChunkOverlap

	return &tools.Deps{
		Config:    cfg,
		Catalog:   catalog,
		Builder:   builder,
		Engine:    engine,
		Extractor: extractor,
		Renderer:  pdf.NewPageRenderer(log),
		Log:       log,
	}, nil
}

func registerTools(server *mcp.Server, deps *tools.Deps) {
	mcp.AddTool(server, tools.StudyListTool(), func(ctx context.Context, req *mcp.CallToolRequest, query tools.StudyListQuery) (*mcp.CallToolResult, *tools.StudyListResponse, error) {
		return tools.StudyListToolHandler(ctx, req, query, deps)
	})

	mcp.AddTool(server, tools.StudyRegisterTool(), func(ctx context.Context, req *mcp.CallToolRequest, query tools.StudyRegisterQuery) (*mcp.CallToolResult, *tools.StudyRegisterResponse, error) {
		return tools.StudyRegisterToolHandler(ctx, req, query, deps)
	})

	mcp.AddTool(server, tools.StudyQueryTool(), func(ctx context.Context, req *mcp.CallToolRequest, query tools.StudyQueryQuery) (*mcp.CallToolResult, *tools.StudyQueryResponse, error) {
		return tools.StudyQueryToolHandler(ctx, req, query, deps)
	})

	mcp.AddTool(server, tools.StudyFollowUpsTool(), func(ctx context.Context, req *mcp.CallToolRequest, query tools.StudyFollowUpsQuery) (*mcp.CallToolResult, *tools.StudyFollowUpsResponse, error) {
		return tools.StudyFollowUpsToolHandler(ctx, req, query, deps)
	})

	mcp.AddTool(server, tools.VariablesExtractTool(), func(ctx context.Context, req *mcp.CallToolRequest, query tools.VariablesExtractQuery) (*mcp.CallToolResult, *tools.VariablesExtractResponse, error) {
		return tools.VariablesExtractToolHandler(ctx, req, query, deps)
	})

	mcp.AddTool(server, tools.VariablesPresetsTool(), func(ctx context.Context, req *mcp.CallToolRequest, query tools.VariablesPresetsQuery) (*mcp.CallToolResult, *tools.VariablesPresetsResponse, error) {
		return tools.VariablesPresetsToolHandler(ctx, req, query, deps)
	})

	mcp.AddTool(server, tools.PagePreviewTool(), func(ctx context.Context, req *mcp.CallToolRequest, query tools.PagePreviewQuery) (*mcp.CallToolResult, *tools.PagePreviewResponse, error) {
		return tools.PagePreviewToolHandler(ctx, req, query, deps)
	})

	mcp.AddTool(server, tools.PDFCollectionCreateTool(), func(ctx context.Context, req *mcp.CallToolRequest, query tools.PDFCollectionCreateQuery) (*mcp.CallToolResult, *tools.PDFCollectionCreateResponse, error) {
		return tools.PDFCollectionCreateToolHandler(ctx, req, query, deps)
	})

	mcp.AddTool(server, tools.ZoteroImportTool(), func(ctx context.Context, req *mcp.CallToolRequest, query tools.ZoteroImportQuery) (*mcp.CallToolResult, *tools.ZoteroImportResponse, error) {
		return tools.ZoteroImportToolHandler(ctx, req, query, deps)
	})

	mcp.AddTool(server, tools.ZoteroSearchTool(), func(ctx context.Context, req *mcp.CallToolRequest, query tools.ZoteroSearchQuery) (*mcp.CallToolResult, *tools.ZoteroSearchResponse, error) {
		return tools.ZoteroSearchToolHandler(ctx, req, query, deps)
	})

	mcp.AddTool(server, tools.ZoteroCollectionsTool(), func(ctx context.Context, req *mcp.CallToolRequest, query tools.ZoteroCollectionsQuery) (*mcp.CallToolResult, *tools.ZoteroCollectionsResponse, error) {
		return tools.ZoteroCollectionsToolHandler(ctx, req, query, deps)
	})

	mcp.AddTool(server, tools.BibliographyExportTool(), func(ctx context.Context, req *mcp.CallToolRequest, query tools.BibliographyExportQuery) (*mcp.CallToolResult, *tools.BibliographyExportResponse, error) {
		return tools.BibliographyExportToolHandler(ctx, req, query, deps)
	})
}

func registerResources(ctx context.Context, server *mcp.Server, h *resources.StudyResourceHandler, log logger.Logger) {
	read := func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return h.ReadResource(ctx, req.Params.URI)
	}

	// Template for study summary
	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "study://{study}",
		Name:        "study",
		Description: "Study catalog entry with its records and index state",
		MIMEType:    "application/json",
	}, read)

	// Template for page preview
	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "study://{study}/records/{record}/pages/{page}",
		Name:        "study-page",
		Description: "A page of a PDF record (0-indexed) as a single-page PDF",
		MIMEType:    "application/pdf",
	}, read)

	// Studies registered before startup are also listed directly
	studies, err := h.ListResources(ctx)
	if err != nil {
		log.Warn("Failed to list study resources: %v", err)
		return
	}
	for _, r := range studies {
		server.AddResource(r, read)
	}
}
