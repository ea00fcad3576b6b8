package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/medaccess-portal/portalcore/internal/client"
	"github.com/medaccess-portal/portalcore/internal/config"
	"github.com/medaccess-portal/portalcore/internal/logger"
	"github.com/medaccess-portal/portalcore/internal/session"
	"github.com/medaccess-portal/portalcore/internal/transport"
	"github.com/medaccess-portal/portalcore/internal/version"
)

// errCallFailed is returned when the API call completed but did not succeed.
// The Result has already been printed so cobra should not print anything else.
var errCallFailed = errors.New("call failed")

// app is the communication core wired from the configuration
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   session.Store
	manager *session.Manager
	client  *client.Client
	out     io.Writer
}

func main() {
	var (
		a        app
		withAuth bool
	)

	root := &cobra.Command{
		Use:           "portalctl",
		Short:         "Medicine access portal API client",
		Long:          `Command line client for the medicine access portal API. Configuration is read from the environment (and an optional .env file).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" || cmd.Name() == "help" {
				return nil
			}
			return a.init(cmd.Context())
		},
	}
	root.PersistentFlags().BoolVar(&withAuth, "auth", false, "attach the stored access token to the request")

	v := version.Get()
	root.Version = v.String()

	root.AddCommand(
		loginCmd(&a),
		logoutCmd(&a),
		whoamiCmd(&a),
		requestCmd(&a, &withAuth, http.MethodGet, "get"),
		requestCmd(&a, &withAuth, http.MethodDelete, "delete"),
		bodyCmd(&a, &withAuth, http.MethodPost, "post"),
		bodyCmd(&a, &withAuth, http.MethodPut, "put"),
		uploadCmd(&a, &withAuth),
		versionCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := root.ExecuteContext(ctx)
	a.close()
	if err != nil {
		if !errors.Is(err, errCallFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		stop()
		os.Exit(1)
	}
}

func (a *app) init(ctx context.Context) error {
	cfg, err := config.NewConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger.InitLogger(logger.ParseLogLevel(cfg.LogLevel), cfg.Environment)
	a.out = os.Stdout

	store, err := session.OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("could not open session store: %w", err)
	}
	a.store = store

	// the session is created first so that the transport hooks can refer to it
	s := session.NewSession(store, a.logger)

	opts := transport.Options{
		BaseURL:   cfg.APIBaseURL,
		Timeout:   cfg.RequestTimeout,
		RateLimit: cfg.RateLimitRPS,
		RateBurst: cfg.RateLimitBurst,
	}
	if cfg.AutoAttachToken {
		opts.RequestInterceptors = append(opts.RequestInterceptors, s.AuthInterceptor())
	}
	if cfg.ClearSessionOnUnauthorized {
		opts.OnUnauthorized = s.HandleUnauthorized
	}

	tr, err := transport.New(opts, a.logger)
	if err != nil {
		return err
	}

	a.client = client.New(tr, a.logger)
	a.manager = session.NewManager(s, a.client)

	a.logger.Debug("portal client ready",
		slog.String("api", tr.BaseURL()),
		slog.String("session_store", cfg.SessionStore),
		slog.Duration("timeout", tr.Timeout()),
	)
	return nil
}

func (a *app) close() {
	if c, ok := a.store.(io.Closer); ok {
		if err := c.Close(); err != nil && a.logger != nil {
			a.logger.Warn("could not close session store", slog.String("error", err.Error()))
		}
	}
}

// print writes v as indented JSON to stdout
func (a *app) print(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("could not format output: %w", err)
	}
	_, err = fmt.Fprintln(a.out, string(data))
	return err
}

// finish prints the result and reports whether the session ended during the call
func (a *app) finish(res client.Result[json.RawMessage]) error {
	select {
	case <-a.manager.Expired():
		a.logger.Warn("the API rejected the stored session, log in again")
	default:
	}

	if err := a.print(res); err != nil {
		return err
	}
	if !res.Success {
		return errCallFailed
	}
	return nil
}

func (a *app) callOptions(ctx context.Context, withAuth bool, params []string) ([]client.CallOption, error) {
	var opts []client.CallOption
	if withAuth {
		opts = append(opts, client.WithHeaders(a.manager.AddAuthHeader(ctx, nil)))
	}
	for _, p := range params {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", p)
		}
		opts = append(opts, client.WithParam(k, v))
	}
	return opts, nil
}

func loginCmd(a *app) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "login <email>",
		Short: "Log in and store the access token",
		Long:  `Log in and store the access token. The password is read from stdin when --password is not set.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return fmt.Errorf("could not read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}

			res := a.manager.Login(cmd.Context(), args[0], password)
			out := struct {
				session.LoginResult
				Dashboard string `json:"dashboard,omitempty"`
			}{LoginResult: res}
			out.Token = "" // the token stays in the session store
			if res.Success {
				out.Dashboard = a.manager.DashboardRoute(cmd.Context())
			}

			if err := a.print(out); err != nil {
				return err
			}
			if !res.Success {
				return errCallFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	return cmd
}

func logoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.manager.Logout(cmd.Context())
			return a.print(map[string]any{"success": true, "message": "Logged out"})
		},
	}
}

func whoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			identifier, _ := a.manager.Identifier(ctx)
			return a.print(map[string]any{
				"authenticated": a.manager.IsAuthenticated(ctx),
				"token_status":  a.manager.Status(ctx).String(),
				"identifier":    identifier,
				"username":      a.manager.Username(ctx),
				"roles":         a.manager.UserRoles(ctx),
				"dashboard":     a.manager.DashboardRoute(ctx),
			})
		},
	}
}

// requestCmd is a call without a body (get, delete)
func requestCmd(a *app, withAuth *bool, method, name string) *cobra.Command {
	var params []string

	cmd := &cobra.Command{
		Use:   name + " <endpoint>",
		Short: fmt.Sprintf("Send a %s request to an API endpoint", method),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := a.callOptions(cmd.Context(), *withAuth, params)
			if err != nil {
				return err
			}
			return a.finish(a.client.Do(cmd.Context(), method, args[0], nil, opts...))
		},
	}
	cmd.Flags().StringArrayVar(&params, "param", nil, "query parameter key=value (repeatable)")
	return cmd
}

// bodyCmd is a call with a JSON body (post, put)
func bodyCmd(a *app, withAuth *bool, method, name string) *cobra.Command {
	var (
		data   string
		params []string
	)

	cmd := &cobra.Command{
		Use:   name + " <endpoint>",
		Short: fmt.Sprintf("Send a %s request with a JSON body to an API endpoint", method),
		Long:  fmt.Sprintf("Send a %s request with a JSON body. The body is taken from --data, or from stdin when --data is \"-\".", method),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := []byte(data)
			if data == "-" {
				var err error
				if body, err = io.ReadAll(cmd.InOrStdin()); err != nil {
					return fmt.Errorf("could not read body: %w", err)
				}
			}
			var payload any
			if len(strings.TrimSpace(string(body))) > 0 {
				if !json.Valid(body) {
					return errors.New("request body is not valid JSON")
				}
				payload = json.RawMessage(body)
			}

			opts, err := a.callOptions(cmd.Context(), *withAuth, params)
			if err != nil {
				return err
			}
			return a.finish(a.client.Do(cmd.Context(), method, args[0], payload, opts...))
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body, - for stdin")
	cmd.Flags().StringArrayVar(&params, "param", nil, "query parameter key=value (repeatable)")
	return cmd
}

func uploadCmd(a *app, withAuth *bool) *cobra.Command {
	var (
		field       string
		contentType string
		extra       []string
	)

	cmd := &cobra.Command{
		Use:   "upload <endpoint> <file>",
		Short: "Upload a file as multipart/form-data",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields := make(map[string]string, len(extra))
			for _, e := range extra {
				k, v, ok := strings.Cut(e, "=")
				if !ok || k == "" {
					return fmt.Errorf("invalid form field %q, expected key=value", e)
				}
				fields[k] = v
			}

			file, closer, err := client.OpenFile(args[1])
			if err != nil {
				return err
			}
			defer closer.Close()
			file.ContentType = contentType

			opts, err := a.callOptions(cmd.Context(), *withAuth, nil)
			if err != nil {
				return err
			}
			return a.finish(client.UploadFile[json.RawMessage](cmd.Context(), a.client, args[0], file, field, fields, opts...))
		},
	}
	cmd.Flags().StringVar(&field, "field", client.DefaultUploadField, "form field name for the file")
	cmd.Flags().StringVar(&contentType, "content-type", "", "content type of the file part (default application/octet-stream)")
	cmd.Flags().StringArrayVar(&extra, "extra", nil, "additional form field key=value (repeatable)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := json.MarshalIndent(version.Get(), "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
}
