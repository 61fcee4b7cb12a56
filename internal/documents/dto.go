package documents

import "time"

// DocumentResponse is the outward-facing representation of a document.
type DocumentResponse struct {
	DocumentID      string         `json:"documentId"`
	VehicleRef      string         `json:"vehicleRef,omitempty"`
	DocumentType    string         `json:"documentType,omitempty"`
	Status          string         `json:"status"`
	Source          string         `json:"source"`
	MimeType        string         `json:"mimeType"`
	SizeBytes       int64          `json:"sizeBytes"`
	AttemptCount    int            `json:"attemptCount"`
	ExtractedFields map[string]any `json:"extractedFields,omitempty"`
	FieldIssues     []FieldIssue   `json:"fieldIssues,omitempty"`
	Error           *ErrorInfo     `json:"error,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// ErrorInfo is the last failure recorded on a document.
type ErrorInfo struct {
	Code      string `json:"code"`
	Detail    string `json:"detail,omitempty"`
	Retryable bool   `json:"retryable"`
}

// ListResponse wraps a page of documents.
type ListResponse struct {
	Items  []DocumentResponse `json:"items"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

type assignVehicleRequest struct {
	VehicleRef string `json:"vehicleRef"`
}

func toResponse(doc Document) DocumentResponse {
	resp := DocumentResponse{
		DocumentID:      doc.ID,
		VehicleRef:      doc.VehicleRef,
		DocumentType:    string(doc.Type),
		Status:          string(doc.Status),
		Source:          string(doc.Source),
		MimeType:        doc.MimeType,
		SizeBytes:       doc.SizeBytes,
		AttemptCount:    doc.AttemptCount,
		ExtractedFields: doc.ExtractedFields,
		FieldIssues:     doc.FieldIssues,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
	if doc.ErrorCode != "" {
		resp.Error = &ErrorInfo{
			Code:      doc.ErrorCode,
			Detail:    doc.ErrorDetail,
			Retryable: doc.ErrorRetryable == nil || *doc.ErrorRetryable,
		}
	}
	return resp
}
