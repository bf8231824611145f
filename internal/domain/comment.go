package domain

import "time"

// Comment bounds.
const (
	MinCommentLength = 1
	MaxCommentLength = 2000
)

// MaxAttachmentBytes caps a single attachment.
const MaxAttachmentBytes int64 = 10 << 20

// Comment captures one message in a ticket thread. Internal comments are
// visible to support staff only; system comments are written by the service.
type Comment struct {
	ID        string
	AuthorID  string
	Content   string
	Internal  bool
	System    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Attachment stores metadata for a file kept in external storage.
type Attachment struct {
	ID         string
	Name       string
	StorageRef string
	MimeType   string
	SizeBytes  int64
	UploadedBy string
	UploadedAt time.Time
}

// VisibleComments filters a thread for the given viewer.
func VisibleComments(comments []Comment, supportStaff bool) []Comment {
	if supportStaff {
		return append([]Comment(nil), comments...)
	}
	visible := make([]Comment, 0, len(comments))
	for _, c := range comments {
		if c.Internal {
			continue
		}
		visible = append(visible, c)
	}
	return visible
}
