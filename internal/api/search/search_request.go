package api

type SearchRequest struct {
	Query       string   `json:"query" validate:"required"`
	Dataset     string   `json:"dataset"`
	DocumentIDs []string `json:"documentIds,omitempty"`
	Limit       *int     `json:"limit,omitempty" validate:"omitempty,gt=0,lte=100"`
}
