package models

// DatasetMetadata is a portal catalog entry (datasets API).
type DatasetMetadata struct {
	DatasetID string       `json:"datasetid"`
	Metas     DatasetMetas `json:"metas"`
}

// DatasetMetas holds the catalog fields. Modified is an ISO-8601 timestamp.
type DatasetMetas struct {
	Title         string `json:"title"`
	Publisher     string `json:"publisher"`
	Modified      string `json:"modified"`
	DataProcessed string `json:"data_processed"`
	RecordsCount  int    `json:"records_count"`
}
