package api

type AddDocumentResponse struct {
	ID      string `json:"documentId"`
	Dataset string `json:"dataset"`
	Chunks  int    `json:"chunks"`
}
