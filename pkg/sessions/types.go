package sessions

import (
	"sort"
	"time"

	"github.com/go-go-golems/multichat/pkg/conversation"
	"github.com/huandu/go-clone"
)

// NamePrefix and NameLayout build session names from the creation time.
const (
	NamePrefix = "Session_"
	NameLayout = "20060102_150405"
)

// MaxAttachmentSize is the largest file that can be attached (10 MiB).
const MaxAttachmentSize int64 = 10 * 1024 * 1024

// Attachment is a file stored inside a session.
type Attachment struct {
	ID         int
	SourcePath string
	Name       string
	Content    []byte
}

// Session is a named transcript with its attachments. The transcript is
// append-only.
type Session struct {
	Name        string
	Transcript  []conversation.Turn
	Attachments map[int]*Attachment
	// UpdatedAt is the last persist time, used for listing order.
	UpdatedAt time.Time
}

func NewSession(name string) *Session {
	return &Session{
		Name:        name,
		Transcript:  []conversation.Turn{},
		Attachments: map[int]*Attachment{},
	}
}

// SessionName returns the name of a session created at t.
func SessionName(t time.Time) string {
	return NamePrefix + t.Format(NameLayout)
}

// History returns the normalized history of the transcript.
func (s *Session) History() conversation.History {
	return conversation.HistoryFromTranscript(s.Transcript)
}

// NextAttachmentID is one past the largest id in use, starting at 1.
func (s *Session) NextAttachmentID() int {
	next := 1
	for id := range s.Attachments {
		if id >= next {
			next = id + 1
		}
	}
	return next
}

// AttachmentIDs returns the attachment ids in ascending order.
func (s *Session) AttachmentIDs() []int {
	ids := make([]int, 0, len(s.Attachments))
	for id := range s.Attachments {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Clone returns a deep copy that shares nothing with s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	return clone.Clone(s).(*Session)
}
