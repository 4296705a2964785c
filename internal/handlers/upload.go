package handlers

import (
	"bytes"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/mrhollen/KnowledgeChat/internal/models"
	"github.com/mrhollen/KnowledgeChat/internal/parsing"
)

// MaxUploadSize bounds an uploaded PDF.
const MaxUploadSize = 10 * 1024 * 1024

// UploadHandler turns an uploaded PDF into a document.
type UploadHandler struct {
	Documents *DocumentHandler
	Logger    *zap.Logger
}

// UploadFile handles a multipart form with a "file" field and optional
// "title", "url" and "dataset" fields.
func (u *UploadHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)

	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		u.Logger.Warn("error parsing multipart form", zap.Error(err))
		respondError(w, http.StatusBadRequest, "The uploaded file is too big. Please choose a file that's less than 10MB in size")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		u.Logger.Warn("error retrieving the file", zap.Error(err))
		respondError(w, http.StatusBadRequest, "Invalid file upload")
		return
	}
	defer file.Close()

	if !parsing.IsPDF(header.Filename) {
		u.Logger.Warn("invalid file type uploaded", zap.String("filename", header.Filename))
		respondError(w, http.StatusBadRequest, "Please upload a PDF file")
		return
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, file)
	if err != nil {
		u.Logger.Error("error reading the file", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to read uploaded file")
		return
	}
	u.Logger.Debug("uploaded file", zap.String("filename", header.Filename), zap.Int64("bytes", n))

	text, err := parsing.ExtractTextFromPDF(buf.Bytes())
	if err != nil {
		u.Logger.Warn("error extracting text", zap.String("filename", header.Filename), zap.Error(err))
		respondError(w, http.StatusUnprocessableEntity, "Failed to extract text from PDF")
		return
	}
	if text == "" {
		respondError(w, http.StatusUnprocessableEntity, "The PDF contains no extractable text")
		return
	}

	title := r.FormValue("title")
	if title == "" {
		title = parsing.TitleFromFilename(header.Filename)
	}
	doc := models.Document{
		Dataset: r.FormValue("dataset"),
		Title:   title,
		URL:     r.FormValue("url"),
		Body:    text,
	}
	u.Documents.ingest(r.Context(), w, &doc)
}
