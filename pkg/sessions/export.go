package sessions

import (
	"bufio"
	"fmt"
	"io"
)

// Export writes the transcript as plain text, one "<timestamp> <label>: <text>"
// line per turn, followed by the list of attached files when there are any.
func Export(w io.Writer, s *Session) error {
	bw := bufio.NewWriter(w)
	for _, t := range s.Transcript {
		if _, err := fmt.Fprintf(bw, "%s %s: %s\n", t.Timestamp, t.Role.Label(), t.Text); err != nil {
			return err
		}
	}
	if len(s.Attachments) > 0 {
		if _, err := fmt.Fprint(bw, "\n\nAttached Files:\n"); err != nil {
			return err
		}
		for _, id := range s.AttachmentIDs() {
			if _, err := fmt.Fprintf(bw, "  %d. %s\n", id, s.Attachments[id].Name); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}
