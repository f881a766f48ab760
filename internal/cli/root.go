package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/julianstephens/habitmaster/internal/backup"
	"github.com/julianstephens/habitmaster/internal/keyring"
	"github.com/julianstephens/habitmaster/internal/logger"
	"github.com/julianstephens/habitmaster/internal/models"
	"github.com/julianstephens/habitmaster/internal/service"
	"github.com/julianstephens/habitmaster/internal/storage"
	"github.com/julianstephens/habitmaster/internal/storage/postgres"
	"github.com/julianstephens/habitmaster/internal/storage/sqlite"
)

// Context carries what every command needs. Commands also receive a
// context.Context bound by main, which is cancelled on interrupt.
type Context struct {
	Store   storage.Provider
	Service *service.Service
	// Profile is the id or name selected with --profile.
	Profile string
	Out     io.Writer
	In      io.Reader

	lines *bufio.Reader
}

func (c *Context) out() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

func (c *Context) readLine() (string, error) {
	if c.lines == nil {
		var in io.Reader = os.Stdin
		if c.In != nil {
			in = c.In
		}
		c.lines = bufio.NewReader(in)
	}
	line, err := c.lines.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Printf writes to the command output.
func (c *Context) Printf(format string, args ...any) {
	fmt.Fprintf(c.out(), format, args...)
}

// Println writes a line to the command output.
func (c *Context) Println(args ...any) {
	fmt.Fprintln(c.out(), args...)
}

// Confirm asks a yes/no question and reports whether the answer was yes.
func (c *Context) Confirm(question string) (bool, error) {
	c.Printf("%s [y/N]: ", question)
	response, err := c.readLine()
	if err != nil {
		return false, err
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes", nil
}

// ReadSecret returns value when set, otherwise reads one line from input.
func (c *Context) ReadSecret(prompt, value string) (string, error) {
	if value != "" {
		return value, nil
	}
	c.Printf("%s: ", prompt)
	return c.readLine()
}

// SelectProfile resolves --profile by id or by name. With no selection an
// account holding exactly one profile uses that profile.
func (c *Context) SelectProfile(ctx context.Context) (models.Profile, error) {
	profiles, err := c.Store.ListProfiles(ctx)
	if err != nil {
		return models.Profile{}, err
	}
	return selectProfile(profiles, c.Profile)
}

func selectProfile(profiles []models.Profile, selector string) (models.Profile, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		switch len(profiles) {
		case 0:
			return models.Profile{}, errors.New("no profiles yet; create one with 'habitmaster profile create'")
		case 1:
			return profiles[0], nil
		default:
			return models.Profile{}, errors.New("several profiles exist; choose one with --profile")
		}
	}

	var byName []models.Profile
	for _, p := range profiles {
		if p.ID == selector {
			return p, nil
		}
		if strings.EqualFold(p.Name, selector) {
			byName = append(byName, p)
		}
	}
	switch len(byName) {
	case 0:
		return models.Profile{}, fmt.Errorf("profile %q not found", selector)
	case 1:
		return byName[0], nil
	default:
		return models.Profile{}, fmt.Errorf("profile name %q is ambiguous; use the profile id", selector)
	}
}

// SafetySnapshot copies the SQLite database file before a destructive
// command. Failures are logged and do not stop the command.
func (c *Context) SafetySnapshot(ctx context.Context, reason string) (backup.Snapshot, bool) {
	store, ok := c.Store.(*sqlite.Store)
	if !ok {
		return backup.Snapshot{}, false
	}
	snap, err := backup.NewManager(store.GetConfigPath()).Create(ctx, reason)
	if err != nil {
		logger.Warn("Safety snapshot failed", "reason", reason, "error", err)
		return backup.Snapshot{}, false
	}
	return snap, true
}

// OpenStore picks the Provider for a database target: a PostgreSQL
// connection string, the literal "keyring", or a SQLite file path.
// Passwords are refused in connection strings given on the command line or
// in the environment; the keyring is the place for them.
func OpenStore(target string, opts ...storage.Option) (storage.Provider, error) {
	fromKeyring := strings.EqualFold(strings.TrimSpace(target), keyring.Target)
	resolved, err := keyring.Resolve(target)
	if err != nil {
		return nil, err
	}

	if postgres.IsConnString(resolved) {
		if !fromKeyring {
			if _, err := postgres.ValidateConnString(resolved); err != nil {
				if errors.Is(err, postgres.ErrEmbeddedCredentials) {
					return nil, fmt.Errorf("%w; store it with 'habitmaster keyring set' and use --db keyring, or use .pgpass", err)
				}
				return nil, err
			}
		}
		return postgres.New(resolved, opts...), nil
	}

	if fromKeyring {
		return nil, errors.New("the keyring holds no PostgreSQL connection string")
	}
	return sqlite.NewStore(storage.ExpandHome(resolved), opts...), nil
}
