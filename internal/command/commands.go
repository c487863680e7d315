package command

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/connectly/connectly-client/internal/api"
	"github.com/connectly/connectly-client/internal/httpclient"
	"github.com/connectly/connectly-client/internal/session"
)

// LoginCommand logs in with an email or username and a password.
func LoginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Log in and store the issued tokens",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "identifier",
				Aliases:  []string{"u"},
				Usage:    "Registered email or username",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "password",
				Aliases:  []string{"p"},
				Usage:    "Password",
				EnvVars:  []string{"CONNECTLY_PASSWORD"},
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			a, err := getApp(c)
			if err != nil {
				return err
			}
			if _, err := a.API.Login(c.Context, c.String("identifier"), c.String("password")); err != nil {
				return err
			}
			return printState(c, a.Session.State(c.Context))
		},
	}
}

// GoogleLoginCommand exchanges a Google OAuth access token for a session.
func GoogleLoginCommand() *cli.Command {
	return &cli.Command{
		Name:      "google-login",
		Usage:     "Log in with a Google OAuth access token",
		ArgsUsage: "ACCESS_TOKEN",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("google-login requires ACCESS_TOKEN", 1)
			}
			a, err := getApp(c)
			if err != nil {
				return err
			}
			if _, err := a.API.GoogleLogin(c.Context, c.Args().First()); err != nil {
				return err
			}
			return printState(c, a.Session.State(c.Context))
		},
	}
}

func LogoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Forget the stored tokens",
		Action: func(c *cli.Context) error {
			a, err := getApp(c)
			if err != nil {
				return err
			}
			return a.Session.Logout(c.Context)
		},
	}
}

// StatusCommand prints the stored session, optionally checking it with the
// backend.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the stored session",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "validate",
				Usage: "Ask the backend whether the session is still valid",
			},
		},
		Action: func(c *cli.Context) error {
			a, err := getApp(c)
			if err != nil {
				return err
			}
			out := stateOutput(a.Session.State(c.Context))
			if c.Bool("validate") {
				valid, err := a.API.ValidateToken(c.Context)
				if err != nil {
					return explain(err)
				}
				out.Valid = &valid
			}
			return printJSON(c, out)
		},
	}
}

// CallCommand sends an arbitrary request through the authenticated client.
func CallCommand() *cli.Command {
	return &cli.Command{
		Name:      "call",
		Usage:     "Send an authenticated request and print the response body",
		ArgsUsage: "METHOD PATH",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "JSON request body",
			},
			&cli.StringSliceFlag{
				Name:    "form",
				Aliases: []string{"F"},
				Usage:   "Form field as KEY=VALUE (repeatable)",
			},
			&cli.StringSliceFlag{
				Name:    "header",
				Aliases: []string{"H"},
				Usage:   "Request header as 'Name: value' (repeatable)",
			},
		},
		Action: runCall,
	}
}

func runCall(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("call requires METHOD and PATH", 1)
	}
	a, err := getApp(c)
	if err != nil {
		return err
	}

	req := httpclient.NewRequest(strings.ToUpper(c.Args().Get(0)), c.Args().Get(1), nil)
	for _, h := range c.StringSlice("header") {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return cli.Exit(fmt.Sprintf("invalid header %q, want 'Name: value'", h), 1)
		}
		req.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	switch {
	case c.IsSet("data") && c.IsSet("form"):
		return cli.Exit("--data and --form are mutually exclusive", 1)
	case c.IsSet("data"):
		data := c.String("data")
		if !json.Valid([]byte(data)) {
			return cli.Exit("--data must be valid JSON", 1)
		}
		req.Body = json.RawMessage(data)
	case c.IsSet("form"):
		form := url.Values{}
		for _, kv := range c.StringSlice("form") {
			k, v, _ := strings.Cut(kv, "=")
			form.Add(k, v)
		}
		req.Body = form
	}

	resp, err := a.Client.Do(c.Context, req)
	if err != nil {
		return explain(err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(c.App.Writer, resp.Body); err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return cli.Exit(fmt.Sprintf("\nHTTP %d", resp.StatusCode), 1)
	}
	return nil
}

func UsersCommand() *cli.Command {
	return &cli.Command{
		Name:      "users",
		Usage:     "List users, or show one by id",
		ArgsUsage: "[USER_ID]",
		Action: func(c *cli.Context) error {
			a, err := getApp(c)
			if err != nil {
				return err
			}
			if c.NArg() == 0 {
				users, err := a.API.Users(c.Context)
				if err != nil {
					return explain(err)
				}
				return printJSON(c, users)
			}
			id, err := intArg(c, 0, "USER_ID")
			if err != nil {
				return err
			}
			user, err := a.API.User(c.Context, id)
			if err != nil {
				return explain(err)
			}
			if user == nil {
				return cli.Exit(fmt.Sprintf("user %d not found", id), 1)
			}
			return printJSON(c, user)
		},
	}
}

func FeedCommand() *cli.Command {
	return &cli.Command{
		Name:  "feed",
		Usage: "Show your feed",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "page",
				Value: 1,
				Usage: "Page number",
			},
		},
		Action: func(c *cli.Context) error {
			a, err := getApp(c)
			if err != nil {
				return err
			}
			posts, err := a.API.Feed(c.Context, c.Int("page"))
			if err != nil {
				return explain(err)
			}
			return printJSON(c, posts)
		},
	}
}

func PostsCommand() *cli.Command {
	return &cli.Command{
		Name:  "posts",
		Usage: "List posts by an author",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:     "author",
				Aliases:  []string{"a"},
				Usage:    "Author user ID",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			a, err := getApp(c)
			if err != nil {
				return err
			}
			posts, err := a.API.PostsByAuthor(c.Context, c.Int("author"))
			if err != nil {
				return explain(err)
			}
			return printJSON(c, posts)
		},
	}
}

func PostCommand() *cli.Command {
	return &cli.Command{
		Name:      "post",
		Usage:     "Create a post",
		ArgsUsage: "CONTENT",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "privacy",
				Value: "public",
				Usage: "Post privacy",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("post requires CONTENT", 1)
			}
			a, err := getApp(c)
			if err != nil {
				return err
			}
			created, err := a.API.CreatePost(c.Context, api.NewPost{Content: c.Args().First(), Privacy: c.String("privacy")})
			if err != nil {
				return explain(err)
			}
			return printJSON(c, created)
		},
	}
}

func CommentsCommand() *cli.Command {
	return &cli.Command{
		Name:      "comments",
		Usage:     "List comments on a post",
		ArgsUsage: "POST_ID",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "page",
				Value: 1,
				Usage: "Page number",
			},
		},
		Action: func(c *cli.Context) error {
			id, err := intArg(c, 0, "POST_ID")
			if err != nil {
				return err
			}
			a, err := getApp(c)
			if err != nil {
				return err
			}
			comments, err := a.API.Comments(c.Context, id, c.Int("page"))
			if err != nil {
				return explain(err)
			}
			return printJSON(c, comments)
		},
	}
}

func CommentCommand() *cli.Command {
	return &cli.Command{
		Name:      "comment",
		Usage:     "Comment on a post",
		ArgsUsage: "POST_ID CONTENT",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return cli.Exit("comment requires POST_ID and CONTENT", 1)
			}
			id, err := intArg(c, 0, "POST_ID")
			if err != nil {
				return err
			}
			a, err := getApp(c)
			if err != nil {
				return err
			}
			created, err := a.API.CreateComment(c.Context, id, c.Args().Get(1))
			if err != nil {
				return explain(err)
			}
			return printJSON(c, created)
		},
	}
}

func FollowCommand() *cli.Command {
	return &cli.Command{
		Name:      "follow",
		Usage:     "Follow a user",
		ArgsUsage: "USER_ID",
		Action: func(c *cli.Context) error {
			id, err := intArg(c, 0, "USER_ID")
			if err != nil {
				return err
			}
			a, err := getApp(c)
			if err != nil {
				return err
			}
			created, err := a.API.Follow(c.Context, id)
			if err != nil {
				return explain(err)
			}
			return printJSON(c, created)
		},
	}
}

func UnfollowCommand() *cli.Command {
	return &cli.Command{
		Name:      "unfollow",
		Usage:     "Remove a follow relationship",
		ArgsUsage: "FOLLOW_ID",
		Action: func(c *cli.Context) error {
			id, err := intArg(c, 0, "FOLLOW_ID")
			if err != nil {
				return err
			}
			a, err := getApp(c)
			if err != nil {
				return err
			}
			return explain(a.API.Unfollow(c.Context, id))
		},
	}
}

type statusOutput struct {
	Authenticated bool       `json:"authenticated"`
	SubjectID     string     `json:"subject_id,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	Expired       bool       `json:"expired"`
	CanRefresh    bool       `json:"can_refresh"`
	Valid         *bool      `json:"valid,omitempty"`
}

func stateOutput(s session.State) statusOutput {
	out := statusOutput{
		Authenticated: s.Authenticated,
		SubjectID:     s.SubjectID,
		Expired:       s.Expired(time.Now()),
		CanRefresh:    s.CanRefresh,
	}
	if !s.ExpiresAt.IsZero() {
		exp := s.ExpiresAt.UTC()
		out.ExpiresAt = &exp
	}
	return out
}

func printState(c *cli.Context, s session.State) error {
	return printJSON(c, stateOutput(s))
}

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func intArg(c *cli.Context, i int, name string) (int, error) {
	raw := c.Args().Get(i)
	if raw == "" {
		return 0, cli.Exit(fmt.Sprintf("missing %s", name), 1)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, cli.Exit(fmt.Sprintf("invalid %s %q", name, raw), 1)
	}
	return n, nil
}
