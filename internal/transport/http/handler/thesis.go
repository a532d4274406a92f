package handler

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"runtime/debug"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"cloudpdf/internal/app"
	"cloudpdf/internal/model"
	"cloudpdf/internal/transport/http/middleware"
	"cloudpdf/internal/transport/http/response"
)

const uploadField = "pdf"

type ThesisService interface {
	Upload(ctx context.Context, input app.UploadInput) (*model.Thesis, error)
	List(ctx context.Context, ownerID *uint, query string) ([]model.Thesis, error)
	Download(ctx context.Context, id uint) (*app.Download, error)
}

type ThesisHandler struct {
	theses ThesisService
	log    logrus.FieldLogger
}

func NewThesisHandler(theses ThesisService, log logrus.FieldLogger) *ThesisHandler {
	return &ThesisHandler{theses: theses, log: log}
}

func (h *ThesisHandler) Upload(c *gin.Context) {
	input := app.UploadInput{OwnerID: middleware.CurrentUserID(c)}

	// A missing part is left for the service to reject with the usual message.
	if header, err := c.FormFile(uploadField); err == nil {
		file, err := header.Open()
		if err != nil {
			input.FileName, input.Size = header.Filename, header.Size
			h.uploadFailed(c, input, err)
			return
		}
		defer file.Close()
		input.FileName = header.Filename
		input.Size = header.Size
		input.Content = file
	}

	thesis, err := h.theses.Upload(c.Request.Context(), input)
	if err != nil {
		var notThesis *app.NotAThesisError
		var invalid *app.ValidationError
		switch {
		case errors.As(err, &invalid):
			response.Error(c, http.StatusBadRequest, invalid.Message)
		case errors.Is(err, app.ErrEmptyContent):
			response.Error(c, http.StatusBadRequest, response.MessageEmptyContent)
		case errors.As(err, &notThesis):
			response.NotAThesis(c, notThesis.AIResponse)
		default:
			h.uploadFailed(c, input, err)
		}
		return
	}

	response.OK(c, gin.H{"thesis": thesis})
}

func (h *ThesisHandler) uploadFailed(c *gin.Context, input app.UploadInput, err error) {
	fields := logrus.Fields{
		"request_id": middleware.RequestIDFrom(c),
		"file_name":  input.FileName,
		"file_size":  input.Size,
		"stack":      string(debug.Stack()),
	}
	if input.OwnerID != nil {
		fields["user_id"] = *input.OwnerID
	}
	h.log.WithError(err).WithFields(fields).Error("thesis upload failed")
	response.Failure(c, http.StatusInternalServerError, response.MessageUploadFailed, err)
}

func (h *ThesisHandler) List(c *gin.Context) {
	theses, err := h.theses.List(c.Request.Context(), middleware.CurrentUserID(c), c.Query("q"))
	if err != nil {
		h.log.WithError(err).WithField("request_id", middleware.RequestIDFrom(c)).Error("list theses failed")
		response.Error(c, http.StatusInternalServerError, response.MessageInternalError)
		return
	}
	response.OK(c, gin.H{"theses": theses})
}

func (h *ThesisHandler) Download(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		response.Error(c, http.StatusNotFound, response.MessageFileNotFound)
		return
	}

	dl, err := h.theses.Download(c.Request.Context(), uint(id))
	if errors.Is(err, app.ErrNotFound) {
		response.Error(c, http.StatusNotFound, response.MessageFileNotFound)
		return
	}
	if err != nil {
		h.log.WithError(err).WithFields(logrus.Fields{
			"request_id": middleware.RequestIDFrom(c),
			"thesis_id":  id,
		}).Error("download thesis failed")
		response.Error(c, http.StatusInternalServerError, response.MessageInternalError)
		return
	}
	defer dl.Body.Close()

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": dl.FileName})
	if disposition == "" {
		disposition = `attachment; filename="thesis.pdf"`
	}
	c.DataFromReader(http.StatusOK, -1, "application/pdf", dl.Body, map[string]string{
		"Content-Disposition": disposition,
	})
}
