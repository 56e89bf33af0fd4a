package dto

type ChatRequest struct {
	Message  string `json:"message" validate:"required"`
	ThreadId string `json:"thread_id" validate:"required,max=128"`
}

type ChatResponse struct {
	Reply string `json:"reply"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
