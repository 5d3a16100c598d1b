package httpapi

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"ragpipe/internal/config"
	"ragpipe/internal/domain"
	"ragpipe/internal/ingest"
)

type handler struct {
	svc    Pipeline
	cfg    *config.AppConfig
	logger *zap.Logger
}

// ConfigureRequest is the body of POST /api/pipeline/configure. The chunk
// fields are pointers so an omitted field can be told apart from zero.
type ConfigureRequest struct {
	Provider         string `json:"provider"`
	Model            string `json:"model"`
	Embedder         string `json:"embedder"`
	ChunkingStrategy string `json:"chunking_strategy"`
	ChunkSize        *int   `json:"chunk_size"`
	ChunkOverlap     *int   `json:"chunk_overlap"`
}

// Selection resolves omitted chunk fields to their defaults.
func (r ConfigureRequest) Selection() domain.Selection {
	sel := domain.Selection{
		Provider:         r.Provider,
		Model:            r.Model,
		Embedder:         r.Embedder,
		ChunkingStrategy: r.ChunkingStrategy,
		ChunkSize:        domain.DefaultChunkSize,
		ChunkOverlap:     domain.DefaultChunkOverlap,
	}
	if r.ChunkSize != nil {
		sel.ChunkSize = *r.ChunkSize
	}
	if r.ChunkOverlap != nil {
		sel.ChunkOverlap = *r.ChunkOverlap
	}
	return sel
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Question string `json:"question"`
}

// ChatResponse is the data of a successful chat.
type ChatResponse struct {
	Answer   string          `json:"answer"`
	Sources  []domain.Source `json:"sources"`
	Question string          `json:"question"`
}

// HealthResponse is the data of GET /api/system/health.
type HealthResponse struct {
	Status         string `json:"status"`
	AppName        string `json:"app_name"`
	Version        string `json:"version"`
	ConfigValid    bool   `json:"config_valid"`
	ConfigError    string `json:"config_error,omitempty"`
	PipelineReady  bool   `json:"pipeline_ready"`
	FilesProcessed int    `json:"files_processed"`
}

func (h *handler) RegisterRoutes(r fiber.Router) {
	r.Post("/documents/upload", h.Upload)

	p := r.Group("/pipeline")
	p.Post("/configure", h.Configure)
	p.Post("/initialize", h.Initialize)

	r.Post("/chat", h.Chat)

	s := r.Group("/system")
	s.Get("/options", h.Options)
	s.Get("/status", h.Status)
	s.Post("/reset", h.Reset)
	s.Get("/health", h.Health)
}

func (h *handler) Upload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return fmt.Errorf("%w: expected multipart form with files: %v", domain.ErrInvalidInput, err)
	}
	headers := form.File["files"]
	files := make([]ingest.File, 0, len(headers))
	for _, fh := range headers {
		files = append(files, ingest.FromMultipart(fh))
	}

	report, err := h.svc.Upload(c.Context(), files)
	if err != nil {
		if len(report.Files) == 0 {
			return err
		}
		return c.Status(statusFor(err)).JSON(failure(err, report))
	}
	msg := fmt.Sprintf("Processed %d of %d files", report.Succeeded, len(report.Files))
	return c.JSON(success(msg, report))
}

func (h *handler) Configure(c *fiber.Ctx) error {
	var req ConfigureRequest
	if err := c.BodyParser(&req); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	sel, err := h.svc.Configure(req.Selection())
	if err != nil {
		return err
	}
	return c.JSON(success("Pipeline configured", sel))
}

func (h *handler) Initialize(c *fiber.Ctx) error {
	report, err := h.svc.Initialize(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(success("Pipeline initialized", report))
}

func (h *handler) Chat(c *fiber.Ctx) error {
	var req ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	question := strings.TrimSpace(req.Question)
	res, err := h.svc.Query(c.Context(), question)
	if err != nil {
		return err
	}
	return c.JSON(success("", ChatResponse{Answer: res.Answer, Sources: res.Sources, Question: question}))
}

func (h *handler) Options(c *fiber.Ctx) error {
	return c.JSON(success("", h.svc.Options()))
}

func (h *handler) Status(c *fiber.Ctx) error {
	return c.JSON(success("", h.svc.Status()))
}

func (h *handler) Reset(c *fiber.Ctx) error {
	if err := h.svc.Reset(c.Context()); err != nil {
		return err
	}
	return c.JSON(success("Pipeline reset successfully", nil))
}

func (h *handler) Health(c *fiber.Ctx) error {
	st := h.svc.Status()
	res := HealthResponse{
		Status:         "healthy",
		AppName:        h.cfg.AppName,
		Version:        h.cfg.Version,
		ConfigValid:    true,
		PipelineReady:  st.ReadyForChat,
		FilesProcessed: st.FilesProcessed,
	}
	if err := h.cfg.Validate(); err != nil {
		res.Status = "unhealthy"
		res.ConfigValid = false
		res.ConfigError = err.Error()
	}
	return c.JSON(success("", res))
}
