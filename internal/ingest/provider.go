package ingest

// Result holds the outcome of an ingest operation.
type Result struct {
	RecordsReceived int `json:"records_received"`
	RecordsInserted int `json:"records_inserted"`
	RecordsSkipped  int `json:"records_skipped"`
	SetsReceived    int `json:"sets_received"`

	Message string `json:"message,omitempty"`
}
