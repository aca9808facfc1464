// Package cli holds the cobra commands of the yapper command-line client.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	engine "github.com/yapper-space/core/internal/autocomment"
	"github.com/yapper-space/core/internal/client"
	"github.com/yapper-space/core/internal/pkg/apperr"
	"github.com/yapper-space/core/internal/pkg/nativelog"
	"github.com/yapper-space/core/internal/pkg/upstream"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// App carries what the commands share. Zero fields are filled in from the
// global flags before a command runs.
type App struct {
	Creds  client.CredentialProvider
	API    *client.Client
	In     io.Reader
	Out    io.Writer
	Logger *zap.Logger
	// ReadPassword reads a secret without echo.
	ReadPassword func() ([]byte, error)
	Sleep        engine.Sleeper

	reader *bufio.Reader
}

type globalFlags struct {
	server      string
	credentials string
	timeout     time.Duration
	debug       bool
}

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	var flags globalFlags

	root := &cobra.Command{
		Use:           "yapper",
		Short:         "Search tweets and auto-comment with AI replies",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init(flags)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.server, "server", "", "API server URL (remembered once set)")
	pf.StringVar(&flags.credentials, "credentials", "", "credentials file (default $XDG_CONFIG_HOME/yapper/credentials.json)")
	pf.DurationVar(&flags.timeout, "timeout", upstream.DefaultTimeout, "per-request timeout")
	pf.BoolVar(&flags.debug, "debug", false, "log requests to stderr")

	root.AddCommand(
		newRegisterCommand(app),
		newLoginCommand(app),
		newLogoutCommand(app),
		newWhoamiCommand(app),
		newSearchCommand(app),
		newGenerateTweetCommand(app),
		newTwitterTokenCommand(app),
		newAutoCommentCommand(app),
	)
	return root
}

// Execute runs the CLI against the real terminal.
func Execute(ctx context.Context) error {
	return NewRootCommand(&App{}).ExecuteContext(ctx)
}

// ErrorMessage is what the CLI prints for err. Local failures such as a bad
// flag keep their text; server errors show the server's message.
func ErrorMessage(err error) string {
	var e *apperr.Error
	if errors.As(err, &e) {
		return apperr.PublicMessage(err)
	}
	return err.Error()
}

func (a *App) init(flags globalFlags) error {
	if a.In == nil {
		a.In = os.Stdin
	}
	if a.Out == nil {
		a.Out = os.Stdout
	}
	if a.ReadPassword == nil {
		a.ReadPassword = func() ([]byte, error) { return term.ReadPassword(int(os.Stdin.Fd())) }
	}
	if a.Sleep == nil {
		a.Sleep = engine.SleepContext
	}
	if a.Logger == nil {
		logger, err := nativelog.NewZapLogger(nativelog.Options{Console: true, Debug: flags.debug})
		if err != nil {
			return err
		}
		a.Logger = logger
	}
	if a.Creds == nil {
		path := flags.credentials
		if path == "" {
			var err error
			if path, err = client.DefaultCredentialsPath(); err != nil {
				return err
			}
		}
		a.Creds = client.NewFileProvider(path)
	}
	if flags.server != "" {
		creds, err := a.Creds.Get()
		if err != nil {
			return err
		}
		if creds.ServerURL != flags.server {
			creds.ServerURL = flags.server
			if err := a.Creds.Set(creds); err != nil {
				return err
			}
		}
	}
	if a.API == nil {
		api := upstream.New("yapper-api",
			upstream.WithTimeout(flags.timeout),
			upstream.WithLogger(a.Logger),
		)
		a.API = client.New(api, a.Creds)
	}
	a.reader = bufio.NewReader(a.In)
	return nil
}

func (a *App) printf(format string, args ...interface{}) {
	fmt.Fprintf(a.Out, format, args...)
}
