// ABOUTME: Command-line client for a running murmur server
// ABOUTME: health, send, sessions, messages and clear commands built on resty

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"github.com/2389/murmur/internal/gateway"
)

const defaultServerURL = "http://localhost:3001"

// apiClient calls the murmur HTTP API.
type apiClient struct {
	client *resty.Client
}

// APIError is a non-2xx reply from the server.
type APIError struct {
	StatusCode int
	Title      string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (%d): %s", e.Title, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s (%d)", e.Title, e.StatusCode)
}

func newAPIClient(serverURL string, timeout time.Duration) *apiClient {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(serverURL, "/"))
	client.SetHeader("Accept", "application/json")
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &apiClient{client: client}
}

// check converts a resty outcome into an error.
func check(resp *resty.Response, err error, apiErr *gateway.ErrorResponse) error {
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		title := apiErr.Error
		if title == "" {
			title = resp.Status()
		}
		return &APIError{StatusCode: resp.StatusCode(), Title: title, Message: apiErr.Message}
	}
	return nil
}

func (c *apiClient) Health(ctx context.Context) (*gateway.HealthResponse, error) {
	var out gateway.HealthResponse
	var apiErr gateway.ErrorResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&apiErr).
		Get("/health")
	if err := check(resp, err, &apiErr); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) Send(ctx context.Context, sessionID, content, idempotencyKey string) (*gateway.SendMessageResponse, error) {
	var out gateway.SendMessageResponse
	var apiErr gateway.ErrorResponse
	req := c.client.R().
		SetContext(ctx).
		SetBody(gateway.SendMessageRequest{Content: content, SessionID: sessionID}).
		SetResult(&out).
		SetError(&apiErr)
	if idempotencyKey != "" {
		req.SetHeader("Idempotency-Key", idempotencyKey)
	}
	resp, err := req.Post("/api/messages")
	if err := check(resp, err, &apiErr); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) Sessions(ctx context.Context) (*gateway.ListSessionsResponse, error) {
	var out gateway.ListSessionsResponse
	var apiErr gateway.ErrorResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&apiErr).
		Get("/api/sessions")
	if err := check(resp, err, &apiErr); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) Messages(ctx context.Context, sessionID string, html bool) (*gateway.ListMessagesResponse, error) {
	var out gateway.ListMessagesResponse
	var apiErr gateway.ErrorResponse
	req := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&apiErr)
	if sessionID != "" {
		req.SetQueryParam("sessionId", sessionID)
	}
	if html {
		req.SetQueryParam("format", "html")
	}
	resp, err := req.Get("/api/messages")
	if err := check(resp, err, &apiErr); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) Clear(ctx context.Context, sessionID string) (*gateway.ClearMessagesResponse, error) {
	var out gateway.ClearMessagesResponse
	var apiErr gateway.ErrorResponse
	req := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&apiErr)
	if sessionID != "" {
		req.SetQueryParam("sessionId", sessionID)
	}
	resp, err := req.Delete("/api/messages")
	if err := check(resp, err, &apiErr); err != nil {
		return nil, err
	}
	return &out, nil
}

// clientFlags are shared by every client command.
type clientFlags struct {
	server  string
	timeout time.Duration
}

func (f *clientFlags) client() *apiClient {
	return newAPIClient(f.server, f.timeout)
}

func defaultServer() string {
	if v := os.Getenv("MURMUR_SERVER"); v != "" {
		return v
	}
	return defaultServerURL
}

func newClientCmds() []*cobra.Command {
	flags := &clientFlags{}

	cmds := []*cobra.Command{
		newHealthCmd(flags),
		newSendCmd(flags),
		newSessionsCmd(flags),
		newMessagesCmd(flags),
		newClearCmd(flags),
	}
	for _, cmd := range cmds {
		cmd.Flags().StringVar(&flags.server, "server", defaultServer(), "murmur server URL")
		cmd.Flags().DurationVar(&flags.timeout, "timeout", 60*time.Second, "request timeout")
	}
	return cmds
}

func newHealthCmd(flags *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the server is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := flags.client().Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), h.Status)
			return nil
		},
	}
}

func newSendCmd(flags *clientFlags) *cobra.Command {
	var sessionID, key string
	cmd := &cobra.Command{
		Use:   "send MESSAGE...",
		Short: "Send a message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := flags.client().Send(cmd.Context(), sessionID, strings.Join(args, " "), key)
			if err != nil {
				return err
			}
			printExchange(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session ID (a new session is started when empty)")
	cmd.Flags().StringVar(&key, "idempotency-key", "", "Idempotency-Key header value")
	return cmd
}

func newSessionsCmd(flags *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List sessions, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := flags.client().Sessions(cmd.Context())
			if err != nil {
				return err
			}
			printSessions(cmd.OutOrStdout(), out.Sessions)
			return nil
		},
	}
}

func newMessagesCmd(flags *clientFlags) *cobra.Command {
	var sessionID string
	var html bool
	cmd := &cobra.Command{
		Use:   "messages",
		Short: "Print stored messages in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := flags.client().Messages(cmd.Context(), sessionID, html)
			if err != nil {
				return err
			}
			printMessages(cmd.OutOrStdout(), out.Messages, html)
			return nil
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "only this session")
	cmd.Flags().BoolVar(&html, "html", false, "print rendered HTML instead of raw content")
	return cmd
}

func newClearCmd(flags *clientFlags) *cobra.Command {
	var sessionID string
	var all bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the messages of one session, or all with --all",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionID == "" && !all {
				return fmt.Errorf("refusing to clear every session without --all")
			}
			out, err := flags.client().Clear(cmd.Context(), sessionID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d deleted)\n", out.Message, out.DeletedCount)
			return nil
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session to clear")
	cmd.Flags().BoolVar(&all, "all", false, "clear every session")
	cmd.MarkFlagsMutuallyExclusive("session", "all")
	return cmd
}

func printExchange(w io.Writer, out *gateway.SendMessageResponse) {
	gray := color.New(color.FgHiBlack)
	cyan := color.New(color.FgCyan)

	gray.Fprintf(w, "session %s\n", out.SessionID)
	cyan.Fprint(w, "ai: ")
	fmt.Fprintln(w, out.AIMessage.Content)
}

func printSessions(w io.Writer, sessions []gateway.SessionResponse) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "no sessions")
		return
	}
	gray := color.New(color.FgHiBlack)
	for _, s := range sessions {
		fmt.Fprintf(w, "%s  %s\n", s.ID, s.Title)
		gray.Fprintf(w, "    %d messages, last %s: %s\n", s.MessageCount, s.LastMessageAt, s.LastMessage)
	}
}

func printMessages(w io.Writer, msgs []gateway.MessageResponse, html bool) {
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	for _, m := range msgs {
		label := green
		if m.Role == "ai" {
			label = cyan
		}
		label.Fprintf(w, "%s: ", m.Role)
		if html {
			fmt.Fprint(w, m.HTML)
			continue
		}
		fmt.Fprintln(w, m.Content)
	}
}
