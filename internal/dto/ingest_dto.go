package dto

// IngestDocumentMessage is the payload published on the ingestion topic.
// Pages are numbered from 1 in order.
type IngestDocumentMessage struct {
	SourceId string   `json:"source_id" validate:"required"`
	Pages    []string `json:"pages" validate:"required,min=1"`
}

type IngestResult struct {
	SourceId string `json:"source_id"`
	Chunks   int    `json:"chunks"`
	Identity string `json:"embedding_identity"`
}
