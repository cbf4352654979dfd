package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/lehigh-university-libraries/ecosort/internal/models"
)

const (
	// MaxUploadSize is the largest image the endpoint accepts.
	MaxUploadSize = 5 << 20
	// maxRequestSize leaves room for multipart framing around the image.
	maxRequestSize = MaxUploadSize + 1<<20

	msgNotLoaded   = "Model or labels not loaded"
	msgNoImage     = "No image file provided"
	msgNoFilename  = "No selected file"
	msgInvalidType = "Invalid file type. Please use PNG, JPG, or JPEG"
	msgTooLarge    = "File size exceeds the 5MB limit"
	msgFailed      = "Failed to process image"
)

var allowedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// HandleClassify accepts a multipart upload with one "image" part and
// answers {classification, confidence} or {error}.
func (h *Handler) HandleClassify(c *gin.Context) {
	if h.metrics != nil {
		defer func() {
			h.metrics.Requests.WithLabelValues(strconv.Itoa(c.Writer.Status())).Inc()
		}()
	}

	if h.classifier == nil || !h.classifier.Ready() {
		h.writeError(c, msgNotLoaded, http.StatusInternalServerError, nil)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestSize)
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(c, msgTooLarge, http.StatusBadRequest, err)
			return
		}
		h.writeError(c, msgNoImage, http.StatusBadRequest, err)
		return
	}

	files := form.File["image"]
	if len(files) == 0 {
		// a part sent without a filename is parsed as a plain value
		if _, ok := form.Value["image"]; ok {
			h.writeError(c, msgNoFilename, http.StatusBadRequest, nil)
			return
		}
		h.writeError(c, msgNoImage, http.StatusBadRequest, nil)
		return
	}
	header := files[0]

	if header.Filename == "" {
		h.writeError(c, msgNoFilename, http.StatusBadRequest, nil)
		return
	}
	if !allowedExtensions[strings.ToLower(filepath.Ext(header.Filename))] {
		h.writeError(c, msgInvalidType, http.StatusBadRequest, nil)
		return
	}
	if header.Size > MaxUploadSize {
		h.writeError(c, msgTooLarge, http.StatusBadRequest, nil)
		return
	}

	data, err := readUpload(header)
	if err != nil {
		h.writeError(c, msgFailed, http.StatusInternalServerError, err)
		return
	}
	if len(data) > MaxUploadSize {
		h.writeError(c, msgTooLarge, http.StatusBadRequest, nil)
		return
	}

	mediaType := mimetype.Detect(data).String()
	start := time.Now()
	pred, cached, err := h.classifier.Classify(c.Request.Context(), data, mediaType)
	if h.metrics != nil {
		if cached {
			h.metrics.CacheHits.Inc()
		} else {
			h.metrics.Latency.WithLabelValues(h.provider).Observe(time.Since(start).Seconds())
		}
	}
	if err != nil {
		h.writeError(c, msgFailed, http.StatusInternalServerError, err)
		return
	}
	if h.metrics != nil {
		h.metrics.Predictions.WithLabelValues(pred.Label).Inc()
	}

	c.JSON(http.StatusOK, models.ClassifyResponse{
		Classification: pred.Label,
		Confidence:     pred.Confidence,
	})
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(io.LimitReader(file, MaxUploadSize+1))
}
