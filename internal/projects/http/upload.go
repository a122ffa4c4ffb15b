package http

import (
	"errors"
	"mime/multipart"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
)

// uploadedFile is one file part of a multipart upload.
type uploadedFile struct {
	field  string
	header *multipart.FileHeader
}

// uploadResult reports what became of one uploaded file.
type uploadResult struct {
	FieldName   string `json:"fieldName"`
	Name        string `json:"name"`
	ProjectName string `json:"projectName,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// uploadedFiles parses the request body as multipart and returns every file
// part, ordered by field name. On failure the response has been written.
func (h *Handler) uploadedFiles(c *gin.Context, what string) ([]uploadedFile, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	form, err := c.MultipartForm()
	if err != nil {
		if tooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"ok": false, "error": what + " too large"})
			return nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "multipart body with a file is required"})
		return nil, false
	}

	fields := make([]string, 0, len(form.File))
	for field := range form.File {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var files []uploadedFile
	for _, field := range fields {
		for _, fh := range form.File[field] {
			files = append(files, uploadedFile{field: field, header: fh})
		}
	}
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "file is required"})
		return nil, false
	}
	return files, true
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

// readBodyFailed writes the response for a body that could not be read.
func readBodyFailed(c *gin.Context, err error) {
	if tooLarge(err) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"ok": false, "error": "body too large"})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
}
