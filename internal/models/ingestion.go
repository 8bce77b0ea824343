package models

import "time"

// SourceKind names where ingested bytes came from.
type SourceKind string

const (
	SourceLocal   SourceKind = "local"
	SourceURL     SourceKind = "url"
	SourceYouTube SourceKind = "youtube"
)

// Ingestion records a completed upload into the remote store.
type Ingestion struct {
	ID         string     `json:"id"`
	Source     SourceKind `json:"source"`
	SourceRef  string     `json:"source_ref"`
	RemoteName string     `json:"remote_name"`
	FileURI    string     `json:"file_uri"`
	MimeType   string     `json:"mime_type"`
	SizeBytes  int64      `json:"size_bytes"`
	CreatedAt  time.Time  `json:"created_at"`
}
