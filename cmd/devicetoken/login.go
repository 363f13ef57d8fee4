package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	"github.com/skratchdot/open-golang/open"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wrale/devicetoken/internal/catalog"
	"github.com/wrale/devicetoken/internal/deviceflow"
	"github.com/wrale/devicetoken/internal/oauth"
)

// errAmbiguousApp is returned when --app matches several applications
var errAmbiguousApp = errors.New("ambiguous application")

type loginOptions struct {
	clientID     string
	scope        string
	tenant       string
	app          string
	authority    string
	timeout      time.Duration
	noBrowser    bool
	copyCode     bool
	waitForEnter bool
}

func newLoginCmd(root *rootOptions) *cobra.Command {
	opts := &loginOptions{}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with a device code and print the tokens",
		Long: `Starts a device authorization flow for the chosen application, shows the
code to enter at the verification page and waits until the sign in finishes.

Without --client-id or --app an interactive menu lists the top applications,
searches the application list or takes a custom client ID.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(levelFor(root.verbose), true)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := loadCatalog(root.appsCSV, logger)
			if err != nil {
				return err
			}

			provider, err := oauth.NewEntraProvider(oauth.EntraConfig{Authority: opts.authority, Logger: logger})
			if err != nil {
				return err
			}

			in := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, titleStyle.Render("=== Entra ID Device Token ==="))
			app, err := selectApp(opts, c, newMenu(in, out, c))
			if errors.Is(err, errQuit) {
				fmt.Fprintln(out, keyStyle.Render("[!] No application selected. Exiting."))
				return nil
			}
			if err != nil {
				return err
			}

			l := &login{
				provider:     provider,
				engineOpts:   []deviceflow.Option{deviceflow.WithLogger(logger), deviceflow.WithTimeout(opts.timeout)},
				in:           in,
				out:          out,
				logger:       logger,
				waitForEnter: opts.waitForEnter,
			}
			if !opts.noBrowser {
				l.openURL = open.Run
			}
			if opts.copyCode {
				l.copyText = clipboard.WriteAll
			}
			return l.run(ctx, app.Request(), app.Name, opts.tenant)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.clientID, "client-id", "", "Client ID of the application to sign in to")
	f.StringVar(&opts.scope, "scope", "", "Space separated scopes (default \""+deviceflow.DefaultScope+"\")")
	f.StringVar(&opts.tenant, "tenant", deviceflow.DefaultTenant, "Tenant ID, domain, common, organizations or consumers")
	f.StringVar(&opts.app, "app", "", "Application name search term or client ID from the application list")
	f.StringVar(&opts.authority, "authority", oauth.DefaultAuthority, "Login host of the identity platform")
	f.DurationVar(&opts.timeout, "timeout", 15*time.Minute, "Give up after this long even if the code is still valid, 0 to wait for expiry")
	f.BoolVar(&opts.noBrowser, "no-browser", false, "Do not open the verification page in a browser")
	f.BoolVar(&opts.copyCode, "copy", false, "Copy the user code to the clipboard")
	f.BoolVar(&opts.waitForEnter, "wait-for-enter", false, "Wait for Enter after signing in before polling")
	cmd.MarkFlagsMutuallyExclusive("client-id", "app")

	return cmd
}

// selectApp resolves the application from flags, falling back to the menu
func selectApp(opts *loginOptions, c *catalog.Catalog, m *menu) (catalog.App, error) {
	var (
		app catalog.App
		err error
	)
	switch {
	case opts.clientID != "":
		var ok bool
		if app, ok = c.Lookup(opts.clientID); !ok {
			app = catalog.App{Name: "Custom App", ClientID: opts.clientID}
		}
	case opts.app != "":
		app, err = findApp(c, opts.app)
	default:
		app, err = m.choose()
	}
	if err != nil {
		return catalog.App{}, err
	}

	if opts.scope != "" {
		app.Scope = opts.scope
	}
	return app, nil
}

// findApp resolves a client ID or a search term matching exactly one
// application, or one application by its full name
func findApp(c *catalog.Catalog, term string) (catalog.App, error) {
	if app, ok := c.Lookup(term); ok {
		return app, nil
	}

	results := c.Search(term, 0)
	switch len(results) {
	case 0:
		return catalog.App{}, fmt.Errorf("no applications found matching %q", term)
	case 1:
		return results[0], nil
	}
	for _, a := range results {
		if strings.EqualFold(a.Name, strings.TrimSpace(term)) {
			return a, nil
		}
	}
	return catalog.App{}, fmt.Errorf("%w: %q matches %d applications, run \"devicetoken apps %s\" to list them",
		errAmbiguousApp, term, len(results), term)
}

// login drives one device flow in the terminal
type login struct {
	provider   deviceflow.Provider
	engineOpts []deviceflow.Option
	in         *bufio.Reader
	out        io.Writer
	logger     *zap.Logger

	// Optional; nil disables the feature
	openURL  func(string) error
	copyText func(string) error

	waitForEnter bool
}

// run signs in and prints the tokens. Every outcome other than success is
// returned as an error.
func (l *login) run(ctx context.Context, req deviceflow.DeviceCodeRequest, name, tenant string) error {
	req.Tenant = tenant
	req = req.Normalize()

	fmt.Fprintln(l.out)
	fmt.Fprintln(l.out, successStyle.Render("[+] Selected: "+name))
	fmt.Fprintf(l.out, "%s %s\n", labelStyle.Render("Client ID:"), req.ClientID)
	fmt.Fprintf(l.out, "%s %s\n", labelStyle.Render("Scope:"), req.Scope)
	fmt.Fprintf(l.out, "%s %s\n", labelStyle.Render("Tenant:"), req.Tenant)

	fmt.Fprintln(l.out, mutedStyle.Render("\n[*] Requesting device code..."))
	engine := deviceflow.NewEngine(l.provider, l.engineOpts...)
	grant, err := engine.Start(ctx, req)
	if err != nil {
		return fmt.Errorf("getting device code: %w", err)
	}

	l.showGrant(grant)

	if l.waitForEnter {
		fmt.Fprintln(l.out, labelStyle.Render("[*] Complete the authentication in your browser, then press Enter to continue..."))
		if err := l.readLine(ctx); err != nil {
			engine.Cancel()
			return err
		}
	}

	fmt.Fprintf(l.out, "%s\n", mutedStyle.Render(fmt.Sprintf("[*] Polling for access token every %ds...", grant.Interval)))
	o := engine.Run(ctx)
	if o.Kind != deviceflow.OutcomeSuccess {
		return fmt.Errorf("sign in %s: %s", o.Kind, o.Message)
	}

	l.showToken(o.Token)
	return nil
}

func (l *login) showGrant(grant *deviceflow.DeviceCodeGrant) {
	uri := grant.VerificationURI
	box := fmt.Sprintf("%s\n\nGo to:           %s\nEnter this code: %s",
		headingStyle.Render("BROWSER ACTION REQUIRED"), uri, codeStyle.Render(grant.UserCode))
	fmt.Fprintln(l.out)
	fmt.Fprintln(l.out, boxStyle.Render(box))
	fmt.Fprintln(l.out, mutedStyle.Render(grant.Message))

	if l.copyText != nil {
		if err := l.copyText(grant.UserCode); err != nil {
			l.logger.Warn("could not copy the user code", zap.Error(err))
		} else {
			fmt.Fprintln(l.out, successStyle.Render("[+] User code copied to the clipboard"))
		}
	}

	if l.openURL != nil {
		target := grant.VerificationURIComplete
		if target == "" {
			target = uri
		}
		if err := l.openURL(target); err != nil {
			l.logger.Warn("could not open a browser", zap.String("url", target), zap.Error(err))
		}
	}
}

func (l *login) showToken(token *deviceflow.TokenResponse) {
	fmt.Fprintln(l.out)
	fmt.Fprintln(l.out, successStyle.Render("[+] Access token acquired!"))
	for _, field := range []struct{ label, value string }{
		{"access_token:", token.AccessToken},
		{"refresh_token:", token.RefreshToken},
		{"id_token:", token.IDToken},
	} {
		value := field.value
		if value == "" {
			value = "<none>"
		}
		fmt.Fprintf(l.out, "\n%s\n%s\n", tokenLabelStyle.Render(field.label), value)
	}
	if token.Scope != "" || token.ExpiresIn > 0 {
		fmt.Fprintln(l.out)
		fmt.Fprintln(l.out, mutedStyle.Render(fmt.Sprintf("scope: %s, expires in %ds", token.Scope, token.ExpiresIn)))
	}
}

// readLine waits for one line of input or for ctx to end
func (l *login) readLine(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		_, err := l.in.ReadString('\n')
		if errors.Is(err, io.EOF) {
			err = nil
		}
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("sign in %s: %w", deviceflow.OutcomeCancelled, ctx.Err())
	}
}
