package api

import (
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/spigell/cv-evaluator/internal/evaluation"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DefaultMaxUploadBytes bounds a single multipart upload.
const DefaultMaxUploadBytes = 20 << 20

type errorResponse struct {
	Detail string `json:"detail"`
}

type uploadResponse struct {
	CVID     string `json:"cv_id"`
	ReportID string `json:"report_id"`
}

type healthResponse struct {
	Status  string `json:"status"`
	App     string `json:"app"`
	Version string `json:"version"`
	Error   string `json:"error,omitempty"`
}

func respondError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, errorResponse{Detail: msg})
}

func (h *handlers) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 2*h.cfg.MaxUploadBytes)

	cv, err := c.FormFile("cv")
	if err != nil {
		respondError(c, http.StatusBadRequest, "cv file is required")
		return
	}
	report, err := c.FormFile("report")
	if err != nil {
		// older clients send the report under its long name
		if report, err = c.FormFile("project_report"); err != nil {
			respondError(c, http.StatusBadRequest, "report file is required")
			return
		}
	}

	cvID, err := h.save(c, cv)
	if err != nil {
		_ = c.Error(err)
		respondError(c, http.StatusInternalServerError, "failed to store cv")
		return
	}
	reportID, err := h.save(c, report)
	if err != nil {
		_ = c.Error(err)
		respondError(c, http.StatusInternalServerError, "failed to store report")
		return
	}

	c.JSON(http.StatusOK, uploadResponse{CVID: cvID, ReportID: reportID})
}

func (h *handlers) save(c *gin.Context, header *multipart.FileHeader) (string, error) {
	f, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("open upload %s: %w", header.Filename, err)
	}
	defer f.Close()

	return h.cfg.Uploads.Save(c.Request.Context(), header.Filename, f)
}

func (h *handlers) evaluate(c *gin.Context) {
	var req evaluation.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	admission, err := h.cfg.Admitter.Admit(c.Request.Context(), req)
	if err != nil {
		if evaluation.IsKind(err, evaluation.KindValidation) {
			respondError(c, http.StatusBadRequest, err.Error())
			return
		}
		_ = c.Error(err)
		respondError(c, http.StatusInternalServerError, "failed to admit evaluation")
		return
	}

	c.JSON(http.StatusOK, admission)
}

func (h *handlers) result(c *gin.Context) {
	view, err := h.cfg.Status.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		respondError(c, http.StatusInternalServerError, "failed to read job status")
		return
	}
	if view.IsUnknown() {
		respondError(c, http.StatusNotFound, evaluation.UnknownJobMessage)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *handlers) health(c *gin.Context) {
	resp := healthResponse{Status: "ok", App: h.cfg.AppName, Version: h.cfg.Version}

	if h.cfg.Health != nil {
		if err := h.cfg.Health(c.Request.Context()); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			resp.Status = "degraded"
			resp.Error = err.Error()
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
	}

	c.JSON(http.StatusOK, resp)
}
