package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/putto11262002/coursechat/core"
	"github.com/putto11262002/coursechat/pkg/chat"
	"github.com/putto11262002/coursechat/pkg/gateway"
	"github.com/putto11262002/coursechat/pkg/view"
	"github.com/spf13/cobra"
)

type chatFlags struct {
	server   string
	email    string
	password string
	room     string
	course   string
	verbose  bool
}

func chatCmd() *cobra.Command {
	var flags chatFlags

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Join a room from the terminal",
		Long: `Signs in to a coursechat server and follows one room.
Lines typed on stdin are sent as messages. Commands:
  /new              create a room and switch to it
  /reconnect        re-arm the feed and refetch the history
  /retry <id>       resend a failed message
  /discard <id>     drop a failed message
  /quit             leave`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.password == "" {
				flags.password = os.Getenv("COURSECHAT_PASSWORD")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runChat(ctx, flags, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&flags.server, "server", "http://localhost:8080", "base URL of the server")
	cmd.Flags().StringVar(&flags.email, "email", "", "account email")
	cmd.Flags().StringVar(&flags.password, "password", "", "account password (default $COURSECHAT_PASSWORD)")
	cmd.Flags().StringVar(&flags.room, "room", "", "room id (default the most recently active room)")
	cmd.Flags().StringVar(&flags.course, "course", "", "open the course's newest room instead of --room")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "log feed activity to stderr")
	cmd.MarkFlagRequired("email")
	return cmd
}

func runChat(ctx context.Context, flags chatFlags, in io.Reader, out io.Writer) error {
	level := slog.LevelWarn
	if flags.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	gw, err := gateway.NewHTTPGateway(flags.server, gateway.WithLogger(logger))
	if err != nil {
		return err
	}
	if _, err := gw.SignIn(ctx, flags.email, flags.password); err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	profile, err := gw.Me(ctx)
	if err != nil {
		return err
	}

	session := chat.NewSession(gw, *profile, chat.WithLogger(logger))
	defer session.Close()

	roomID, err := pickRoom(ctx, session, flags)
	if err != nil {
		return err
	}

	r := newRenderer(out, profile.ID)
	session.OnChange(func() { r.render(session.Messages(), time.Now()) })
	session.OnStatusChange(r.status)
	overlays := view.NewOverlayHost()
	overlays.OnChange(r.overlay)
	c := &console{session: session, overlays: overlays, courseID: flags.course, out: out}

	if err := session.SelectRoom(ctx, roomID); err != nil {
		var fetchErr *chat.FetchError
		if errors.As(err, &fetchErr) {
			return err
		}
		fmt.Fprintf(out, "! live updates unavailable: %v (type /reconnect)\n", err)
	}
	r.render(session.Messages(), time.Now())

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := c.handle(ctx, line); quit {
				return nil
			}
		}
	}
}

func pickRoom(ctx context.Context, session *chat.Session, flags chatFlags) (string, error) {
	if flags.room != "" {
		return flags.room, nil
	}
	var (
		rooms []core.ChatRoom
		err   error
	)
	if flags.course != "" {
		rooms, err = session.CourseRooms(ctx, flags.course)
	} else {
		rooms, err = session.Rooms(ctx)
	}
	if err != nil {
		return "", err
	}
	if len(rooms) == 0 {
		return "", errors.New("no rooms yet: pass --room or create one")
	}
	return rooms[0].ID, nil
}

// console turns stdin lines into session calls. While an overlay is open the
// next line answers it instead of being sent.
type console struct {
	session  *chat.Session
	overlays *view.OverlayHost
	courseID string
	out      io.Writer
}

func (c *console) handle(ctx context.Context, line string) bool {
	if o, ok := c.overlays.Current().(view.CreateRoomOverlay); ok {
		c.createRoom(ctx, o, strings.TrimSpace(line))
		return false
	}

	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	switch cmd {
	case "":
		return false
	case "/quit":
		return true
	case "/new":
		c.overlays.Open(view.CreateRoomOverlay{CourseID: c.courseID})
	case "/reconnect":
		if err := c.session.Reconnect(ctx); err != nil {
			fmt.Fprintf(c.out, "! reconnect: %v\n", err)
		}
	case "/retry":
		if res := c.session.Retry(ctx, arg); errors.Is(res.Err, chat.ErrUnknownEntry) {
			fmt.Fprintf(c.out, "! no failed message %q\n", arg)
		}
	case "/discard":
		if err := c.session.Discard(arg); err != nil {
			fmt.Fprintf(c.out, "! no failed message %q\n", arg)
		}
	default:
		// failures show up as a failed bubble
		c.session.SendMessage(ctx, line)
	}
	return false
}

// createRoom answers the create-room overlay. An empty name cancels it and a
// rejected name keeps it open for another try.
func (c *console) createRoom(ctx context.Context, o view.CreateRoomOverlay, name string) {
	if name == "" {
		c.overlays.Close()
		return
	}
	room, err := c.session.CreateRoom(ctx, core.RoomCreateInput{Name: name, CourseID: o.CourseID})
	if err != nil {
		fmt.Fprintf(c.out, "! create room: %v\n", err)
		return
	}
	c.overlays.Close()
	fmt.Fprintf(c.out, "-- joined %s\n", room.Name)
	if err := c.session.SelectRoom(ctx, room.ID); err != nil {
		fmt.Fprintf(c.out, "! %v\n", err)
	}
}

// renderer prints a bubble whenever it first appears or its delivery state changes.
type renderer struct {
	mu       sync.Mutex
	out      io.Writer
	viewerID string
	seen     map[string]string
}

func newRenderer(out io.Writer, viewerID string) *renderer {
	return &renderer{out: out, viewerID: viewerID, seen: make(map[string]string)}
}

func bubbleState(b view.Bubble) string {
	switch {
	case b.Failed:
		return "failed"
	case b.Pending:
		return "pending"
	default:
		return "sent"
	}
}

func (r *renderer) render(entries []chat.Entry, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range view.Present(entries, r.viewerID, now) {
		state := bubbleState(b)
		if r.seen[b.ID] == state {
			continue
		}
		r.seen[b.ID] = state
		fmt.Fprintln(r.out, formatBubble(b))
	}
}

func (r *renderer) status(s chat.ConnectionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "-- %s\n", s)
}

func (r *renderer) overlay(o view.Overlay) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch o := o.(type) {
	case view.CreateRoomOverlay:
		if o.CourseID != "" {
			fmt.Fprintf(r.out, "-- new room in course %s, type a name (empty line cancels)\n", o.CourseID)
		} else {
			fmt.Fprintln(r.out, "-- new room, type a name (empty line cancels)")
		}
	case view.NoOverlay:
		fmt.Fprintln(r.out, "-- back to chat")
	}
}

func formatBubble(b view.Bubble) string {
	var sb strings.Builder
	if b.Side == view.Own {
		sb.WriteString("you")
	} else {
		if b.Initials != "" {
			fmt.Fprintf(&sb, "[%s] ", b.Initials)
		}
		name := b.AuthorName
		if name == "" {
			name = "unknown"
		}
		sb.WriteString(name)
	}
	fmt.Fprintf(&sb, " (%s): %s", b.TimeLabel, b.Content)
	switch {
	case b.Pending:
		sb.WriteString(" [sending]")
	case b.Failed:
		fmt.Fprintf(&sb, " [%s, /retry %s]", b.FailureReason, b.ID)
	}
	return sb.String()
}
