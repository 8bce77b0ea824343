package models

// FileState is the processing state reported by the remote file store.
type FileState string

const (
	FileStateUnspecified FileState = "STATE_UNSPECIFIED"
	FileStateProcessing  FileState = "PROCESSING"
	FileStateActive      FileState = "ACTIVE"
	FileStateFailed      FileState = "FAILED"
)

// Terminal reports whether no further transition is expected.
func (s FileState) Terminal() bool {
	return s != FileStateProcessing
}

// RemoteFile is a handle on a file held by the remote store.
type RemoteFile struct {
	Name      string    `json:"name"`
	URI       string    `json:"uri"`
	MimeType  string    `json:"mimeType"`
	SizeBytes int64     `json:"sizeBytes,omitempty"`
	State     FileState `json:"state"`
}

// FileData is the reference returned to callers once a file is usable.
type FileData struct {
	FileURI  string `json:"fileUri"`
	MimeType string `json:"mimeType"`
}
