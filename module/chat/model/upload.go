package model

import "time"

const UploadCollection = "upload_sessions"

// UploadState is the explicit session lifecycle. A session only ever moves
// forward: Init -> Receiving -> Completed.
type UploadState int32

const (
	UploadInit UploadState = iota
	UploadReceiving
	UploadCompleted
)

func (s UploadState) String() string {
	switch s {
	case UploadInit:
		return "init"
	case UploadReceiving:
		return "receiving"
	case UploadCompleted:
		return "completed"
	}
	return "unknown"
}

// CanAdvanceTo rejects backwards or skipping transitions other than
// Init -> Completed for zero-size edge cases handled by the protocol core.
func (s UploadState) CanAdvanceTo(next UploadState) bool {
	return next >= s && next <= UploadCompleted
}

// UploadSession is the metadata row of one resumable upload. The byte
// stream itself lives in a temp file until completion.
// Invariant: 0 <= BytesReceived <= TotalSize; completed => equal.
type UploadSession struct {
	ID            string      `bson:"_id"`
	OwnerID       int64       `bson:"owner_id"`
	Filename      string      `bson:"filename"`
	TotalSize     int64       `bson:"total_size"`
	MimeType      string      `bson:"mime_type"`
	BytesReceived int64       `bson:"bytes_received"`
	State         UploadState `bson:"state"`
	FilePath      string      `bson:"file_path,omitempty"`
	CreatedAt     time.Time   `bson:"created_at"`
	UpdatedAt     time.Time   `bson:"updated_at"`
}

func (s *UploadSession) Completed() bool {
	return s.State == UploadCompleted
}
