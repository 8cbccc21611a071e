// ABOUTME: Interactive command loop for linku-chat
// ABOUTME: Plain lines are sent to the active conversation; slash commands drive the engine

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/ZIon2025-x/LinkU1-sub000/internal/api"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/conversation"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/participation"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/pending"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/session"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/unread"
)

const actionTimeout = 15 * time.Second

type command struct {
	name string
	arg  string
}

// parseCommand splits a slash command. Anything else is a message.
func parseCommand(line string) (command, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{}, false
	}
	name, arg, _ := strings.Cut(line[1:], " ")
	return command{name: strings.ToLower(name), arg: strings.TrimSpace(arg)}, true
}

var participantCommands = map[string]participation.Action{
	"exit":     participation.ActionRequestExit,
	"complete": participation.ActionComplete,
	"start":    participation.ActionStart,
}

func printHelp() {
	fmt.Println("    /list              conversations, newest first")
	fmt.Println("    /use <id>          open a conversation (task:<id> or service:<id>)")
	fmt.Println("    /history           load older messages")
	fmt.Println("    /read              mark the open conversation read")
	fmt.Println("    /hide <id>         remove a conversation from the list")
	fmt.Println("    /pay <task>        report a completed payment")
	fmt.Println("    /apply <task>      apply to join a task")
	fmt.Println("    /exit <task>       request to leave a task")
	fmt.Println("    /complete <task>   mark your part of a task complete")
	fmt.Println("    /who <task>        tracked participants and their next actions")
	fmt.Println("    /confirm <task>    confirm a finished task as its poster")
	fmt.Println("    /accept <task> <application>  accept an applicant (/decline to reject)")
	fmt.Println("    /quit")
	fmt.Println()
}

func printConversations(e *session.Engine) {
	bold := color.New(color.Bold)
	gray := color.New(color.FgHiBlack)
	for _, c := range e.Store().List(false) {
		bold.Printf("  %-20s", c.ID)
		fmt.Printf(" %s", c.Title)
		if c.UnreadCount > 0 {
			color.New(color.FgYellow).Printf(" (%d)", c.UnreadCount)
		}
		if c.IsEnded {
			gray.Print(" [ended]")
		}
		if !c.UpdatedAt.IsZero() {
			gray.Printf("  %s", humanize.Time(c.UpdatedAt))
		}
		fmt.Println()
		if c.Preview != "" {
			gray.Printf("      %s\n", c.Preview)
		}
	}
}

type repl struct {
	engine  *session.Engine
	in      io.Reader
	out     io.Writer
	printed map[string]bool // conversation/message keys already shown
}

func newREPL(e *session.Engine, in io.Reader, out io.Writer) *repl {
	return &repl{engine: e, in: in, out: out, printed: make(map[string]bool)}
}

// Run reads lines until /quit, EOF or ctx is done.
func (r *repl) Run(ctx context.Context) error {
	updates, _ := r.engine.Subscribe(ctx, conversation.AllConversations)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r.in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if u.Kind == conversation.UpdateMessages && u.ConversationID == r.engine.Active() {
				r.printNew(u.ConversationID)
			}
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := r.handle(ctx, line); quit {
				return nil
			}
		}
	}
}

func (r *repl) handle(ctx context.Context, line string) bool {
	ctx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	cmd, ok := parseCommand(line)
	if !ok {
		if strings.TrimSpace(line) == "" {
			return false
		}
		if _, err := r.engine.Send(ctx, pending.Input{Content: line}); err != nil {
			r.fail(err)
		}
		return false
	}

	var err error
	switch cmd.name {
	case "quit", "q":
		return true
	case "help":
		printHelp()
	case "list":
		printConversations(r.engine)
	case "use":
		if err = r.engine.SelectConversation(ctx, cmd.arg); err == nil {
			r.printNew(cmd.arg)
		}
	case "history":
		var n int
		if n, err = r.engine.LoadOlder(ctx); err == nil {
			fmt.Fprintf(r.out, "    loaded %d older messages\n", n)
		}
	case "read":
		err = r.engine.MarkRead(ctx, 0)
	case "hide":
		err = r.engine.Hide(ctx, cmd.arg)
	case "pay":
		err = r.engine.PaymentCompleted(ctx, cmd.arg)
	case "apply":
		var st participation.State
		if st, err = r.engine.Apply(ctx, cmd.arg); err == nil {
			fmt.Fprintf(r.out, "    task %s: %s\n", cmd.arg, st.Status)
		}
	case "who":
		r.printParticipants(cmd.arg)
	case "confirm":
		err = r.engine.TaskAction(ctx, cmd.arg, api.ActionConfirm)
	case "accept", "decline":
		fields := strings.Fields(cmd.arg)
		if len(fields) != 2 {
			fmt.Fprintf(r.out, "    usage: /%s <task> <application>\n", cmd.name)
			return false
		}
		err = r.engine.DecideApplication(ctx, fields[0], fields[1], cmd.name == "accept")
	default:
		action, known := participantCommands[cmd.name]
		if !known {
			fmt.Fprintf(r.out, "    unknown command /%s\n", cmd.name)
			return false
		}
		var st participation.State
		if st, err = r.engine.Participate(ctx, cmd.arg, "", action); err == nil {
			fmt.Fprintf(r.out, "    task %s: %s\n", cmd.arg, st.Status)
		}
	}
	if err != nil {
		r.fail(err)
	}
	return false
}

func (r *repl) fail(err error) {
	var rule *participation.RuleError
	switch {
	case errors.As(err, &rule):
		color.New(color.FgYellow).Fprintf(r.out, "    not allowed: %v\n", rule.Err)
	case errors.Is(err, unread.ErrNotAtBottom), errors.Is(err, pending.ErrSendInFlight):
		color.New(color.FgHiBlack).Fprintf(r.out, "    %v\n", err)
	default:
		color.New(color.FgRed).Fprintf(r.out, "    error: %v\n", err)
	}
}

func (r *repl) printParticipants(taskID string) {
	states := r.engine.Participants(taskID)
	if len(states) == 0 {
		fmt.Fprintf(r.out, "    no participants tracked for task %s\n", taskID)
		return
	}
	for _, st := range states {
		fmt.Fprintf(r.out, "    %-12s %s\n", st.UserID, formatParticipant(st))
	}
}

func formatParticipant(st participation.State) string {
	next := participation.Allowed(st.Status)
	if len(next) == 0 {
		return string(st.Status)
	}
	names := make([]string, len(next))
	for i, a := range next {
		names[i] = string(a)
	}
	return fmt.Sprintf("%s (next: %s)", st.Status, strings.Join(names, ", "))
}

// printNew prints messages of convID not shown yet.
func (r *repl) printNew(convID string) {
	snap, ok := r.engine.Store().Snapshot(convID)
	if !ok {
		return
	}
	for _, m := range snap.Messages {
		key := convID + "/" + m.ID
		if r.printed[key] || m.IsPending() {
			continue
		}
		r.printed[key] = true
		fmt.Fprintln(r.out, formatMessage(m))
	}
}

func formatMessage(m conversation.Message) string {
	ts := m.CreatedAt.Local().Format("15:04")
	switch m.SenderRole {
	case conversation.RoleSystem:
		return color.HiBlackString("  %s  · %s", ts, m.Content)
	case conversation.RoleSelf:
		return fmt.Sprintf("  %s  %s %s", ts, color.GreenString("me:"), m.Content)
	default:
		who := m.SenderID
		if who == "" {
			who = string(m.SenderRole)
		}
		body := m.Content
		if m.Kind == conversation.MessageImage || m.Kind == conversation.MessageFile {
			body = conversation.Preview(m, conversation.DefaultPreviewLength)
		}
		return fmt.Sprintf("  %s  %s %s", ts, color.CyanString(who+":"), body)
	}
}
