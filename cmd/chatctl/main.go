package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Zain0205/travelin-chat/internal/api"
	"github.com/Zain0205/travelin-chat/internal/chat"
	"github.com/Zain0205/travelin-chat/internal/profile"
	"golang.org/x/term"
)

// passwordEnv supplies the login password non-interactively.
const passwordEnv = "TRAVELIN_PASSWORD"

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fatalf("%v", err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c, err := api.Dial(profile.SocketPath(profileName))
	if err != nil {
		fatalf("cannot connect to daemon for profile %q: %v", profileName, err)
	}
	defer func() { _ = c.Close() }()

	if args[0] == "watch" {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		namespace := ""
		if len(args) > 1 {
			namespace = args[1]
		}
		cmdWatch(ctx, c, namespace)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "login":
		need(args, 2, "login <email>")
		cmdLogin(ctx, c, args[1], *jsonFlag)
	case "logout":
		check(c.Logout(ctx))
		fmt.Println("Logged out.")
	case "status":
		resp, err := c.GetStatus(ctx)
		check(err)
		printStatus(resp, *jsonFlag)
	case "retry":
		resp, err := c.Retry(ctx)
		check(err)
		printStatus(resp, *jsonFlag)
	case "list":
		cmdList(ctx, c, *jsonFlag)
	case "open":
		need(args, 2, "open <user-id>")
		resp, err := c.OpenConversation(ctx, atoi(args[1]))
		check(err)
		printThread(resp, *jsonFlag)
	case "history":
		resp, err := c.GetThread(ctx)
		check(err)
		printThread(resp, *jsonFlag)
	case "send":
		need(args, 3, "send <user-id> <message...>")
		resp, err := c.Send(ctx, args[1], strings.Join(args[2:], " "))
		check(err)
		printThread(resp, *jsonFlag)
	case "typing":
		need(args, 3, "typing <user-id> <on|off>")
		check(c.SetTyping(ctx, args[1], args[2] == "on"))
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: chatctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  login <email>            Sign in (password from $"+passwordEnv+" or prompt)")
	fmt.Fprintln(os.Stderr, "  logout                   Sign out and forget the session")
	fmt.Fprintln(os.Stderr, "  status                   Show connection status")
	fmt.Fprintln(os.Stderr, "  retry                    Reconnect after the connection gave up")
	fmt.Fprintln(os.Stderr, "  list                     List conversations")
	fmt.Fprintln(os.Stderr, "  open <user-id>           Open a conversation")
	fmt.Fprintln(os.Stderr, "  history                  Show the open conversation")
	fmt.Fprintln(os.Stderr, "  send <user-id> <text>    Send a message")
	fmt.Fprintln(os.Stderr, "  typing <user-id> <on|off>")
	fmt.Fprintln(os.Stderr, "  watch [namespace]        Stream daemon events")
}

func cmdLogin(ctx context.Context, c *api.Client, email string, jsonOut bool) {
	password := os.Getenv(passwordEnv)
	if password == "" {
		fmt.Fprint(os.Stderr, "Password: ")
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		check(err)
		password = string(b)
	}
	resp, err := c.Login(ctx, email, password)
	check(err)
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Logged in as user %d (%s).\n", resp.UserID, resp.Role)
}

func cmdList(ctx context.Context, c *api.Client, jsonOut bool) {
	resp, err := c.ListConversations(ctx)
	check(err)
	if jsonOut {
		outputJSON(resp)
		return
	}
	if len(resp.Conversations) == 0 {
		fmt.Println("No conversations.")
		return
	}
	for _, conv := range resp.Conversations {
		unread := ""
		if conv.UnreadCount > 0 {
			unread = fmt.Sprintf(" (%d unread)", conv.UnreadCount)
		}
		fmt.Printf("%-6d %-24s %s%s\n", conv.CounterpartID, conv.Name, conv.LastMessage, unread)
	}
}

func cmdWatch(ctx context.Context, c *api.Client, namespace string) {
	stream, err := c.WatchEvents(ctx, namespace)
	check(err)
	enc := json.NewEncoder(os.Stdout)
	for {
		evt, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil || api.IsEOF(err) {
				return
			}
			fatalf("%v", err)
		}
		_ = enc.Encode(evt)
	}
}

func printStatus(resp *api.StatusResponse, jsonOut bool) {
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Profile: %s\n", resp.Profile)
	fmt.Printf("Status:  %s (since %s)\n", resp.State, resp.StateSince.Format(time.TimeOnly))
	if resp.LoggedIn {
		fmt.Printf("User:    %d (%s)\n", resp.UserID, resp.Role)
	} else {
		fmt.Println("User:    not logged in")
	}
	if resp.RetryCount > 0 {
		fmt.Printf("Retries: %d\n", resp.RetryCount)
	}
	if resp.Notice != "" {
		fmt.Printf("Notice:  %s\n", resp.Notice)
	}
	fmt.Printf("Uptime:  %dms\n", resp.UptimeMS)
}

func printThread(resp *api.ThreadResponse, jsonOut bool) {
	if jsonOut {
		outputJSON(resp)
		return
	}
	th := resp.Thread
	if th.CounterpartID == 0 {
		fmt.Println("No conversation open.")
		return
	}
	fmt.Printf("Conversation with %d", th.CounterpartID)
	if th.Loading {
		fmt.Print(" (loading)")
	}
	if th.PartnerTyping {
		fmt.Print(" (typing...)")
	}
	fmt.Println()
	for _, m := range th.Messages {
		marker := ""
		switch m.State {
		case chat.Pending:
			marker = " (pending)"
		case chat.Failed:
			marker = " (failed)"
		}
		fmt.Printf("[%s] %d: %s%s\n", m.CreatedAt.Local().Format(time.TimeOnly), m.SenderID, m.Body, marker)
	}
}

func need(args []string, n int, usage string) {
	if len(args) < n {
		fatalf("usage: chatctl %s", usage)
	}
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		fatalf("invalid user id %q", s)
	}
	return n
}

func check(err error) {
	if err != nil {
		fatalf("%v", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
