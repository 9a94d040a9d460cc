package cmds

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/go-go-golems/multichat/pkg/conversation"
	"github.com/go-go-golems/multichat/pkg/sessions"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewSessionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage stored sessions",
	}
	cmd.AddCommand(newSessionsListCommand())
	cmd.AddCommand(newSessionsShowCommand())
	cmd.AddCommand(newSessionsExportCommand())
	cmd.AddCommand(newSessionsDeleteCommand())
	return cmd
}

func newSessionsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			for _, name := range app.ListSessions() {
				sess, ok := app.Session(name)
				if !ok {
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d turns\t%d files\n", name, len(sess.Transcript), len(sess.Attachments))
			}
			return nil
		},
	}
}

func newSessionsShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show NAME",
		Short: "Render a session transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			sess, ok := app.Session(args[0])
			if !ok {
				return errors.Errorf("unknown session %s", args[0])
			}
			plain, _ := cmd.Flags().GetBool("plain")
			if plain {
				return sessions.Export(cmd.OutOrStdout(), sess)
			}

			r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
			if err != nil {
				return err
			}
			out, err := r.Render(transcriptMarkdown(sess))
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().Bool("plain", false, "Print the plain text export instead of rendered markdown")
	return cmd
}

func newSessionsExportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export NAME [PATH]",
		Short: "Export a session as plain text (default: stdout)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			sess, ok := app.Session(args[0])
			if !ok {
				return errors.Errorf("unknown session %s", args[0])
			}
			export := func(w io.Writer) error { return sessions.Export(w, sess) }
			if len(args) == 1 {
				return export(cmd.OutOrStdout())
			}
			return exportTo(args[1], export)
		},
	}
}

func newSessionsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME...",
		Short: "Delete sessions and their attachments",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			for _, name := range args {
				if err := app.DeleteSession(cmd.Context(), name); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", name)
			}
			return nil
		},
	}
}

// transcriptMarkdown renders turns as markdown sections for glamour.
func transcriptMarkdown(sess *sessions.Session) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", sess.Name)
	for _, t := range sess.Transcript {
		if t.Role == conversation.RoleSystem {
			fmt.Fprintf(&sb, "_%s %s_\n\n", t.Timestamp, t.Text)
			continue
		}
		fmt.Fprintf(&sb, "**%s** `%s`\n\n%s\n\n", t.Role.Label(), t.Timestamp, t.Text)
	}
	if len(sess.Attachments) > 0 {
		sb.WriteString("## Attached Files\n\n")
		for _, id := range sess.AttachmentIDs() {
			fmt.Fprintf(&sb, "%d. %s\n", id, sess.Attachments[id].Name)
		}
	}
	return sb.String()
}
