package worker

// IngestTaskPayload is the message published to ingest.task when a document is
// uploaded or re-ingested. The locator points into the blob store; modality is
// resolved at upload time so the worker never re-guesses from the filename.
type IngestTaskPayload struct {
	DocumentID    string `json:"document_id"`
	Name          string `json:"name"`
	Locator       string `json:"locator"`
	Modality      string `json:"modality"`
	MimeType      string `json:"mime_type,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}
