package ingest

import "errors"

var (
	// ErrDownload reports that the source bytes could not be fetched.
	ErrDownload = errors.New("download failed")
	// ErrUpload reports that the remote store rejected the upload.
	ErrUpload = errors.New("upload failed")
	// ErrProcessingFailed reports that the remote store marked the file FAILED.
	ErrProcessingFailed = errors.New("processing failed")
	// ErrTimeout reports that the file was still processing when polling gave up.
	ErrTimeout = errors.New("processing timed out")

	errStillProcessing = errors.New("file still processing")
)
