package api

type AddDocumentRequest struct {
	ID      string `json:"documentId,omitempty"`
	Title   string `json:"title" validate:"required"`
	URL     string `json:"url,omitempty" validate:"omitempty,url"`
	Body    string `json:"body" validate:"required"`
	Dataset string `json:"dataset"`
}
