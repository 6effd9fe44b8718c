package disputes

import "time"

type FileRequest struct {
	TransactionID string   `json:"transaction_id" binding:"required"`
	Reason        string   `json:"reason"`
	Description   *string  `json:"description,omitempty"`
	EvidenceURLs  []string `json:"evidence_urls,omitempty"`
}

type AddEvidenceRequest struct {
	URL string `json:"evidence_url" binding:"required"`
}

type SetStatusRequest struct {
	Status     string  `json:"status" binding:"required"`
	Resolution *string `json:"resolution,omitempty"`
}

type DisputeResponse struct {
	ID                string    `json:"id"`
	TransactionID     string    `json:"transaction_id"`
	ReporterID        string    `json:"reporter_id"`
	ReportedID        string    `json:"reported_id"`
	Reason            string    `json:"reason"`
	Description       *string   `json:"description,omitempty"`
	EvidenceURLs      []string  `json:"evidence_urls"`
	Status            string    `json:"status"`
	Resolution        *string   `json:"resolution,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	BookID            string    `json:"book_id,omitempty"`
	BookTitle         string    `json:"book_title,omitempty"`
	TransactionStatus string    `json:"transaction_status,omitempty"`
	ReporterName      string    `json:"reporter_name,omitempty"`
	ReportedName      string    `json:"reported_name,omitempty"`
}

type ListResult struct {
	Items      []DisputeResponse `json:"items"`
	Total      int64             `json:"total"`
	NextOffset int               `json:"next_offset"`
}
