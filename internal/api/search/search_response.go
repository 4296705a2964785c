package api

type SearchResponseContent struct {
	DocumentID string  `json:"documentId"`
	ChunkID    string  `json:"chunkId"`
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

type SearchResponse struct {
	Responses []SearchResponseContent `json:"responses"`
}
