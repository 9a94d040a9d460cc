package sessions

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/go-go-golems/multichat/pkg/conversation"
	"github.com/pkg/errors"
)

// record is the durable layout of a session. conversation_history mirrors
// the user and assistant turns of chat_log.
type record struct {
	ChatLog             []conversation.Turn         `json:"chat_log"`
	ConversationHistory conversation.History        `json:"conversation_history"`
	AttachedFiles       map[string]attachmentRecord `json:"attached_files"`
}

type attachmentRecord struct {
	FilePath    string `json:"file_path"`
	FileName    string `json:"file_name"`
	FileContent []byte `json:"file_content"`
}

// EncodeRecord serializes a session. Equal sessions encode to equal bytes.
func EncodeRecord(s *Session) ([]byte, error) {
	rec := record{
		ChatLog:             s.Transcript,
		ConversationHistory: s.History(),
		AttachedFiles:       make(map[string]attachmentRecord, len(s.Attachments)),
	}
	if rec.ChatLog == nil {
		rec.ChatLog = []conversation.Turn{}
	}
	for id, a := range s.Attachments {
		content := a.Content
		if content == nil {
			content = []byte{}
		}
		rec.AttachedFiles[strconv.Itoa(id)] = attachmentRecord{
			FilePath:    a.SourcePath,
			FileName:    a.Name,
			FileContent: content,
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeRecord parses a record into a session named name. The transcript is
// authoritative; the stored history mirror is not read back.
func DecodeRecord(name string, data []byte) (*Session, error) {
	var raw struct {
		ChatLog       *[]conversation.Turn        `json:"chat_log"`
		AttachedFiles map[string]attachmentRecord `json:"attached_files"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "invalid session record")
	}
	if raw.ChatLog == nil {
		return nil, errors.New("session record has no chat_log")
	}

	s := NewSession(name)
	s.Transcript = append(s.Transcript, (*raw.ChatLog)...)
	for key, a := range raw.AttachedFiles {
		id, err := strconv.Atoi(key)
		if err != nil || id < 1 {
			return nil, errors.Errorf("invalid attachment id %q", key)
		}
		s.Attachments[id] = &Attachment{
			ID:         id,
			SourcePath: a.FilePath,
			Name:       a.FileName,
			Content:    a.FileContent,
		}
	}
	return s, nil
}
