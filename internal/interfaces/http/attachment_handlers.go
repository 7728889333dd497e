package http

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/vendor-portal/internal/application/service"
	"github.com/garyjia/vendor-portal/internal/domain/apperr"
	"github.com/garyjia/vendor-portal/internal/domain/entity"
)

// AttachmentResponse is attachment metadata with its display label
type AttachmentResponse struct {
	*entity.Attachment
	Type string `json:"type"`
}

// UploadAttachments handles POST /api/suppliers/:name/attachments
func (h *Handlers) UploadAttachments(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		h.fail(c, apperr.Validation("No file uploaded"))
		return
	}
	headers := form.File["file"]
	if len(headers) == 0 {
		h.fail(c, apperr.Validation("No file uploaded"))
		return
	}

	files := make([]service.UploadFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			h.fail(c, apperr.Validation("failed to read uploaded file %s", fh.Filename))
			return
		}
		defer f.Close()
		files = append(files, service.UploadFile{
			FileName: fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			Reader:   f,
		})
	}

	attachments, err := h.services.Attachments.Upload(c.Request.Context(), c.Param("name"), files)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, toAttachmentResponses(attachments))
}

// ListAttachments handles GET /api/suppliers/:name/attachments
func (h *Handlers) ListAttachments(c *gin.Context) {
	attachments, err := h.services.Attachments.List(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, toAttachmentResponses(attachments))
}

// DownloadAttachment handles GET /api/suppliers/:name/attachments/:id
func (h *Handlers) DownloadAttachment(c *gin.Context) {
	att, rc, err := h.services.Attachments.Open(c.Request.Context(), c.Param("name"), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, att.Size, att.MimeType, rc, map[string]string{
		"Content-Disposition": contentDisposition(att.FileName),
	})
}

// DownloadArchive handles GET /api/suppliers/:name/attachments/archive
func (h *Handlers) DownloadArchive(c *gin.Context) {
	name := c.Param("name")

	// the zip headers cannot be taken back once streaming starts
	attachments, err := h.services.Attachments.List(c.Request.Context(), name)
	if err != nil {
		h.fail(c, err)
		return
	}
	if len(attachments) == 0 {
		h.fail(c, apperr.NotFound("No files found for supplier"))
		return
	}

	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", contentDisposition(name+"_attachments.zip"))
	c.Status(http.StatusOK)

	if err := h.services.Attachments.WriteArchive(c.Request.Context(), name, c.Writer); err != nil {
		h.logger.Error("Failed to stream archive", "supplier_name", name, "error", err)
		c.Abort()
	}
}

// AttachmentContents handles GET /api/suppliers/:name/attachments/content
func (h *Handlers) AttachmentContents(c *gin.Context) {
	contents, err := h.services.Attachments.Contents(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, contents)
}

// ScanGST handles POST /api/suppliers/:name/gst/scan
func (h *Handlers) ScanGST(c *gin.Context) {
	checks, err := h.services.GST.Scan(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, checks)
}

// ListGST handles GET /api/suppliers/:name/gst
func (h *Handlers) ListGST(c *gin.Context) {
	checks, err := h.services.GST.List(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, checks)
}

func toAttachmentResponses(attachments []*entity.Attachment) []AttachmentResponse {
	out := make([]AttachmentResponse, 0, len(attachments))
	for _, a := range attachments {
		out = append(out, AttachmentResponse{Attachment: a, Type: a.TypeLabel()})
	}
	return out
}

func contentDisposition(fileName string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": fileName}); v != "" {
		return v
	}
	return "attachment; filename=" + strconv.Quote(fileName)
}
