package models

// TempFile is the scratch copy of an ingestion source. It lives in its own
// directory so removing Dir releases everything the request wrote.
type TempFile struct {
	Dir      string `json:"dir"`
	Path     string `json:"path"`
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}
