package api

import (
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/gin-gonic/gin"

	"avro-exporter/pipeline"
)

type CommandInfo struct {
	ID   string             `json:"id"`
	Docs []pipeline.DocItem `json:"docs"`
}

type PipelineInfo struct {
	ID          string        `json:"id"`
	Description string        `json:"description,omitempty"`
	BaseDir     string        `json:"base_dir"`
	Commands    []CommandInfo `json:"commands"`
}

type RunResponse struct {
	Message string             `json:"message"`
	Result  pipeline.RunResult `json:"result"`
}

// Handler serves the pipelines it was built with. A pipeline runs at most once at a time.
type Handler struct {
	runner    *pipeline.Runner
	pipelines map[string]*pipeline.Pipeline

	mu      sync.Mutex
	running map[string]bool
}

func NewHandler(runner *pipeline.Runner, pipelines map[string]*pipeline.Pipeline) *Handler {
	return &Handler{runner: runner, pipelines: pipelines, running: map[string]bool{}}
}

// Register mounts the API routes on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/api/pipelines", h.ListPipelines)
	r.GET("/api/pipelines/:id", h.GetPipeline)
	r.POST("/api/pipelines/:id/run", h.RunPipeline)
}

func describe(p *pipeline.Pipeline) PipelineInfo {
	info := PipelineInfo{ID: p.ID, Description: p.Description, BaseDir: p.BaseDir, Commands: []CommandInfo{}}
	for _, c := range p.Commands {
		info.Commands = append(info.Commands, CommandInfo{ID: c.ID(), Docs: c.DocItems()})
	}
	return info
}

func (h *Handler) ListPipelines(c *gin.Context) {
	out := make([]PipelineInfo, 0, len(h.pipelines))
	for _, p := range h.pipelines {
		out = append(out, describe(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	c.JSON(http.StatusOK, out)
}

func (h *Handler) GetPipeline(c *gin.Context) {
	p, ok := h.pipelines[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "pipeline not found"})
		return
	}
	c.JSON(http.StatusOK, describe(p))
}

func (h *Handler) RunPipeline(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	p, ok := h.pipelines[id]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "pipeline not found"})
		return
	}
	if !h.acquire(id) {
		slog.WarnContext(ctx, "Pipeline already running", "pipeline", id)
		c.JSON(http.StatusConflict, gin.H{"error": "pipeline is already running"})
		return
	}
	defer h.release(id)

	slog.InfoContext(ctx, "Received run request", "pipeline", id)
	res, err := h.runner.Run(ctx, p)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to run pipeline: " + err.Error(), "result": res})
		return
	}
	c.JSON(http.StatusOK, RunResponse{Message: "OK", Result: res})
}

func (h *Handler) acquire(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running[id] {
		return false
	}
	h.running[id] = true
	return true
}

func (h *Handler) release(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.running, id)
}
