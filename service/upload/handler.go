package upload

import (
	"io"
	"net/http"
	"strconv"

	midsec "SCProject/middleware/security"
	"SCProject/service/auth"
	errs "SCProject/tools/errs"

	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
)

// Handler is the HTTP face of the upload protocol.
type Handler struct {
	mgr      *Manager
	resolver auth.Resolver
}

func NewHandler(mgr *Manager, resolver auth.Resolver) *Handler {
	return &Handler{mgr: mgr, resolver: resolver}
}

type initRequest struct {
	Filename string `json:"filename"`
	FileSize int64  `json:"file_size"`
	MimeType string `json:"mime_type"`
}

// Init handles POST /api/upload/init (auth middleware supplies the owner).
func (h *Handler) Init(c *gin.Context) {
	var req initRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errs.ErrBadRequest.WithDetail("invalid json"))
		return
	}

	res, err := h.mgr.Init(c.Request.Context(), midsec.UserID(c), req.Filename, req.FileSize, req.MimeType)
	if err != nil {
		respondCodeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"upload_id":  res.UploadID,
		"offset":     res.Offset,
		"chunk_size": res.ChunkSize,
	})
}

// Chunk handles POST /api/upload/chunk/:upload_id. Token and offset are
// accepted from a form field or a query param (the form field wins),
// because some client/proxy combinations mangle one transport but not the
// other. The chunk body is a multipart "chunk" file or the raw body.
func (h *Handler) Chunk(c *gin.Context) {
	id := c.Param("upload_id")

	token := auth.Pick(c.PostForm("token"), c.Query("token"))
	uid, err := h.resolver.Resolve(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, errs.Code(err))
		return
	}

	offsetRaw := c.PostForm("offset")
	if offsetRaw == "" {
		offsetRaw = c.Query("offset")
	}
	offset, err := strconv.ParseInt(offsetRaw, 10, 64)
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, errs.ErrBadRequest.WithDetail("invalid offset"))
		return
	}

	chunk, err := readChunk(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errs.ErrBadRequest.WithDetail("unreadable chunk"))
		return
	}

	res, err := h.mgr.AppendChunk(c.Request.Context(), uid, id, offset, chunk)
	if err != nil {
		var ce *ChunkError
		if pkgerrors.As(err, &ce) {
			// protocol violation: structured, retryable, session intact
			c.JSON(http.StatusConflict, gin.H{
				"status":         "error",
				"code":           errs.OffsetMismatchError,
				"message":        ce.Message,
				"current_offset": ce.Current,
			})
			return
		}
		respondCodeError(c, err)
		return
	}

	if res.Completed {
		c.JSON(http.StatusOK, gin.H{
			"status":       "completed",
			"offset":       res.Offset,
			"file_path":    res.FilePath,
			"message_type": res.MessageType,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "offset": res.Offset})
}

// Status handles GET /api/upload/status/:upload_id (auth middleware).
func (h *Handler) Status(c *gin.Context) {
	res, err := h.mgr.Status(c.Request.Context(), midsec.UserID(c), c.Param("upload_id"))
	if err != nil {
		respondCodeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"upload_id":    res.UploadID,
		"offset":       res.Offset,
		"is_completed": res.Completed,
	})
}

func readChunk(c *gin.Context) ([]byte, error) {
	if file, _, err := c.Request.FormFile("chunk"); err == nil {
		defer file.Close()
		return io.ReadAll(file)
	}
	return io.ReadAll(c.Request.Body)
}

func respondCodeError(c *gin.Context, err error) {
	ce := errs.Code(err)
	status := http.StatusInternalServerError
	switch ce.Code {
	case errs.UnauthorizedError:
		status = http.StatusUnauthorized
	case errs.ForbiddenError:
		status = http.StatusForbidden
	case errs.NotFoundError:
		status = http.StatusNotFound
	case errs.BadRequestError:
		status = http.StatusBadRequest
	}
	c.JSON(status, ce)
}
