package cmds

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-go-golems/multichat/pkg/chat"
	"github.com/go-go-golems/multichat/pkg/events"
	"github.com/go-go-golems/multichat/pkg/steps/ai/types"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const chatHelp = `Commands:
  /new            start a new session
  /sessions       list sessions
  /select N       switch to session N of /sessions
  /delete         delete the current session
  /attach PATH    attach a file to the current session
  /export PATH    export the current session as text
  /provider [ID]  show or switch the provider
  /quit           leave
Anything else is sent to the current session.`

func NewChatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat interactively with the configured provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, _ := cmd.Flags().GetString("session")
			return runChat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), session)
		},
	}
	cmd.Flags().String("session", "", "Session to continue (default: the most recent one)")
	return cmd
}

type repl struct {
	app *chat.App
	out io.Writer
	// interactive prints a prompt; set when stdin is a terminal
	interactive bool
}

func runChat(ctx context.Context, in io.Reader, out io.Writer, session string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := openApp(ctx, chat.WithDispatcher(chat.NewLoopDispatcher()))
	if err != nil {
		return err
	}
	defer func() {
		_ = app.Close()
	}()

	ctx, err = withDebugTap(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)

	sub, err := app.Subscribe(ctx)
	if err != nil {
		return err
	}

	r := &repl{app: app, out: out, interactive: isTerminal(in)}
	eg.Go(func() error {
		return app.Run(ctx)
	})
	eg.Go(func() error {
		r.printEvents(sub)
		return nil
	})
	eg.Go(func() error {
		defer cancel()
		if err := r.start(ctx, session); err != nil {
			return err
		}
		r.loop(ctx, in)
		fmt.Fprintln(out, "Waiting for pending replies...")
		app.Wait()
		return nil
	})
	return eg.Wait()
}

func (r *repl) start(ctx context.Context, session string) error {
	fmt.Fprintln(r.out, r.app.ActiveProviderLabel())
	if r.interactive {
		fmt.Fprintln(r.out, "Type /help for commands.")
	}
	switch {
	case session != "":
		if err := r.app.SelectSession(ctx, session); err != nil {
			return err
		}
	case len(r.app.ListSessions()) > 0:
		if err := r.app.SelectSession(ctx, r.app.ListSessions()[0]); err != nil {
			return err
		}
	default:
		if _, err := r.app.CreateSession(ctx); err != nil {
			return err
		}
	}
	r.printCurrent()
	return nil
}

func (r *repl) loop(ctx context.Context, in io.Reader) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for r.prompt(); scanner.Scan(); r.prompt() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			if _, err := r.app.Send(ctx, line); err != nil {
				r.printError(err)
			}
			continue
		}

		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)
		quit, err := r.command(ctx, cmd, arg)
		if err != nil {
			r.printError(err)
		}
		if quit {
			return
		}
	}
}

func (r *repl) command(ctx context.Context, cmd string, arg string) (bool, error) {
	switch cmd {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(r.out, chatHelp)
	case "/new":
		if _, err := r.app.CreateSession(ctx); err != nil {
			return false, err
		}
		r.printCurrent()
	case "/sessions":
		current, _ := r.app.CurrentSession()
		for i, name := range r.app.ListSessions() {
			marker := " "
			if current != nil && current.Name == name {
				marker = "*"
			}
			fmt.Fprintf(r.out, "%s %d. %s\n", marker, i+1, name)
		}
	case "/select":
		names := r.app.ListSessions()
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > len(names) {
			return false, errors.Errorf("expected a session number between 1 and %d", len(names))
		}
		if err := r.app.SelectSession(ctx, names[n-1]); err != nil {
			return false, err
		}
		r.printCurrent()
	case "/delete":
		current, ok := r.app.CurrentSession()
		if !ok {
			return false, errors.New("no session selected")
		}
		if err := r.app.DeleteSession(ctx, current.Name); err != nil {
			return false, err
		}
	case "/attach":
		if arg == "" {
			return false, errors.New("usage: /attach PATH")
		}
		a, err := r.app.AttachFile(ctx, arg)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "File attached: %s (%d)\n", a.Name, a.ID)
	case "/export":
		if arg == "" {
			return false, errors.New("usage: /export PATH")
		}
		if err := exportTo(arg, r.app.ExportCurrent); err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "Exported to %s\n", arg)
	case "/provider":
		if arg != "" {
			id, err := types.ParseProviderID(arg)
			if err != nil {
				return false, err
			}
			if err := r.app.SetActiveProvider(ctx, id); err != nil {
				return false, err
			}
		}
		fmt.Fprintln(r.out, r.app.ActiveProviderLabel())
	default:
		return false, errors.Errorf("unknown command %s, try /help", cmd)
	}
	return false, nil
}

func (r *repl) prompt() {
	if r.interactive {
		fmt.Fprint(r.out, "> ")
	}
}

func isTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (r *repl) printCurrent() {
	sess, ok := r.app.CurrentSession()
	if !ok {
		return
	}
	fmt.Fprintf(r.out, "-- %s --\n", sess.Name)
	for _, t := range sess.Transcript {
		fmt.Fprintf(r.out, "%s %s: %s\n", t.Timestamp, t.Role.Label(), t.Text)
	}
}

func (r *repl) printError(err error) {
	fmt.Fprintf(r.out, "error: %v\n", err)
}

func (r *repl) printEvents(sub <-chan events.Event) {
	for ev := range sub {
		switch ev := ev.(type) {
		case *events.EventReplyReady:
			current, ok := r.app.CurrentSession()
			if ok && current.Name == ev.Session {
				fmt.Fprintf(r.out, "%s %s: %s\n", ev.Turn.Timestamp, ev.Turn.Role.Label(), ev.Turn.Text)
			} else {
				fmt.Fprintf(r.out, "(reply ready in %s)\n", ev.Session)
			}
		case *events.EventProcessingError:
			fmt.Fprintf(r.out, "error: %s\n", ev.Error)
		case *events.EventSessionCreated:
			fmt.Fprintf(r.out, "(created %s)\n", ev.Session)
		case *events.EventSessionDeleted:
			fmt.Fprintf(r.out, "(deleted %s)\n", ev.Session)
		}
	}
}

func exportTo(path string, export func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
