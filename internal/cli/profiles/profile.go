package profiles

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/julianstephens/habitmaster/internal/cli"
	"github.com/julianstephens/habitmaster/internal/constants"
	"github.com/julianstephens/habitmaster/internal/errors"
)

type ProfileCmd struct {
	Create ProfileCreateCmd `cmd:"" help:"Create a profile."`
	List   ProfileListCmd   `cmd:"" help:"List profiles in creation order."`
	Rename ProfileRenameCmd `cmd:"" help:"Rename the selected profile."`
	Passwd ProfilePasswdCmd `cmd:"" help:"Change the selected profile's password."`
	Photo  ProfilePhotoCmd  `cmd:"" help:"Set or clear the selected profile's photo."`
}

type ProfileCreateCmd struct {
	Name     string `arg:"" help:"Display name."`
	Password string `help:"Profile password (prompted when omitted)." env:"HABITMASTER_PASSWORD"`
}

func (c *ProfileCreateCmd) Run(ctx context.Context, app *cli.Context) error {
	pw, err := app.ReadSecret("Password", c.Password)
	if err != nil {
		return err
	}
	p, err := app.Store.CreateProfile(ctx, c.Name, pw)
	if err != nil {
		return err
	}
	app.Printf("✓ Created profile %s (%s)\n", p.Name, p.ID)
	return nil
}

type ProfileListCmd struct{}

func (c *ProfileListCmd) Run(ctx context.Context, app *cli.Context) error {
	profiles, err := app.Store.ListProfiles(ctx)
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		app.Println("No profiles found.")
		return nil
	}

	app.Printf("Profiles (%d of %d):\n\n", len(profiles), constants.MaxProfiles)
	for _, p := range profiles {
		created := time.UnixMilli(p.CreatedAtMillis).In(app.Service.Location()).Format(constants.DateFormat)
		photo := ""
		if p.PhotoURL != nil {
			photo = "  [photo]"
		}
		app.Printf("  %s  %-20s  created %s  %d habits%s\n", p.ID, p.Name, created, len(p.Habits), photo)
	}
	return nil
}

type ProfileRenameCmd struct {
	Name string `arg:"" help:"New display name."`
}

func (c *ProfileRenameCmd) Run(ctx context.Context, app *cli.Context) error {
	p, err := app.SelectProfile(ctx)
	if err != nil {
		return err
	}
	if err := app.Store.UpdateProfileName(ctx, p.ID, c.Name); err != nil {
		return err
	}
	app.Printf("✓ Renamed %s to %s\n", p.Name, c.Name)
	return nil
}

type ProfilePasswdCmd struct {
	Current string `help:"Current password (prompted when omitted)."`
	New     string `help:"New password (prompted when omitted)."`
}

func (c *ProfilePasswdCmd) Run(ctx context.Context, app *cli.Context) error {
	p, err := app.SelectProfile(ctx)
	if err != nil {
		return err
	}
	current, err := app.ReadSecret("Current password", c.Current)
	if err != nil {
		return err
	}
	next, err := app.ReadSecret("New password", c.New)
	if err != nil {
		return err
	}

	ok, err := app.Store.UpdatePassword(ctx, p.ID, current, next)
	if err != nil {
		return err
	}
	if !ok {
		return errors.ErrAuthenticationMismatch
	}
	app.Println("✓ Password updated")
	return nil
}

type ProfilePhotoCmd struct {
	File  string `arg:"" optional:"" type:"existingfile" help:"Image file to upload."`
	Clear bool   `help:"Remove the current photo."`
}

func (c *ProfilePhotoCmd) Run(ctx context.Context, app *cli.Context) error {
	p, err := app.SelectProfile(ctx)
	if err != nil {
		return err
	}

	if c.Clear {
		if err := app.Store.UpdateProfilePhotoURL(ctx, p.ID, ""); err != nil {
			return err
		}
		app.Println("✓ Photo removed")
		return nil
	}
	if c.File == "" {
		return fmt.Errorf("give an image file or --clear")
	}

	f, err := os.Open(c.File)
	if err != nil {
		return fmt.Errorf("failed to open photo: %w", err)
	}
	defer f.Close()

	url, err := app.Store.UploadProfilePhoto(ctx, p.ID, f)
	if err != nil {
		return err
	}
	if err := app.Store.UpdateProfilePhotoURL(ctx, p.ID, url); err != nil {
		return err
	}
	app.Printf("✓ Photo uploaded: %s\n", url)
	return nil
}
