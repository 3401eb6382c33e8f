package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/client"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/domain"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/featureflags"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/infrastructure/logger"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/observability/tracing"
	"github.com/bastos77-sc/parceiro-tracker-code-link/pkg/config"
)

type cli struct {
	cfg    *config.ClientConfig
	api    *client.Client
	logger *slog.Logger
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(os.Stderr, os.Getenv("LOG_LEVEL"))
	if flags := featureflags.Active(); len(flags) > 0 {
		log.Debug("feature flags on", slog.Any("flags", flags))
	}
	shutdownTracing, traceErr := tracing.Init(context.Background(), log, "trackpartner-cli", "client")
	if traceErr != nil {
		log.Warn("tracing not initialized", slog.String("error", traceErr.Error()))
		shutdownTracing = func(context.Context) error { return nil }
	}
	c := &cli{cfg: cfg, api: client.New(cfg.APIURL, 15*time.Second, log), logger: log}
	if s, err := client.LoadSession(cfg.TokenDir); err == nil {
		c.api.SetToken(s.Token)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "auth":
		err = c.handleAuth(args)
	case "profile":
		err = c.handleProfile(args)
	case "partner":
		err = c.handlePartner(args)
	case "share":
		err = c.share(args)
	case "follow":
		err = c.follow(args)
	case "history":
		err = c.history(args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	_ = shutdownTracing(flushCtx)
	cancel()

	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ %s\n", describe(err))
		os.Exit(1)
	}
}

// describe prefers the localized API message over the raw error
func describe(err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if errors.Is(err, client.ErrNoSession) {
		return "Not signed in. Run: trackpartner auth signin -email you@example.com -password ..."
	}
	return err.Error()
}

func (c *cli) handleAuth(args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: trackpartner auth <signup|signin|signout|reset-password|confirm-reset|who>")
		return nil
	}

	subCmd := args[0]
	switch subCmd {
	case "signup":
		return c.signUp(args[1:])
	case "signin":
		return c.signIn(args[1:])
	case "signout":
		return c.signOut()
	case "reset-password":
		return c.resetPassword(args[1:])
	case "confirm-reset":
		return c.confirmReset(args[1:])
	case "who":
		return c.whoAmI()
	default:
		fmt.Printf("unknown auth command: %s\n", subCmd)
		return nil
	}
}

func (c *cli) handleProfile(args []string) error {
	if len(args) < 1 {
		return c.showProfile()
	}

	subCmd := args[0]
	switch subCmd {
	case "show":
		return c.showProfile()
	case "name":
		return c.setName(args[1:])
	case "pause":
		return c.setActive(false)
	case "resume":
		return c.setActive(true)
	case "regenerate-code":
		return c.regenerateCode()
	default:
		fmt.Printf("unknown profile command: %s\n", subCmd)
		return nil
	}
}

func (c *cli) handlePartner(args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: trackpartner partner <validate|connect|disconnect|list|where>")
		return nil
	}

	subCmd := args[0]
	switch subCmd {
	case "validate":
		return c.validateCode(args[1:])
	case "connect":
		return c.connect(args[1:])
	case "disconnect":
		return c.disconnect(args[1:])
	case "list":
		return c.listTracked()
	case "where":
		return c.where()
	default:
		fmt.Printf("unknown partner command: %s\n", subCmd)
		return nil
	}
}

// Auth commands
func (c *cli) signUp(args []string) error {
	fs := flag.NewFlagSet("signup", flag.ExitOnError)
	email := fs.String("email", "", "email")
	password := fs.String("password", "", "password (min 6 characters)")
	name := fs.String("name", "", "display name")

	fs.Parse(args)

	if *email == "" || *password == "" {
		fmt.Println("Error: email and password are required")
		fs.PrintDefaults()
		return nil
	}

	s, err := c.api.SignUp(context.Background(), *email, *password, *name)
	if err != nil {
		return err
	}
	if err := client.SaveSession(c.cfg.TokenDir, s); err != nil {
		return err
	}
	fmt.Printf("✓ Account created: %s\n", s.Identity.Email)
	return c.showProfile()
}

func (c *cli) signIn(args []string) error {
	fs := flag.NewFlagSet("signin", flag.ExitOnError)
	email := fs.String("email", "", "email")
	password := fs.String("password", "", "password")

	fs.Parse(args)

	if *email == "" || *password == "" {
		fmt.Println("Error: email and password are required")
		fs.PrintDefaults()
		return nil
	}

	s, err := c.api.SignIn(context.Background(), *email, *password)
	if err != nil {
		return err
	}
	if err := client.SaveSession(c.cfg.TokenDir, s); err != nil {
		return err
	}
	fmt.Printf("✓ Signed in as: %s\n", s.Identity.Email)
	return nil
}

func (c *cli) signOut() error {
	if err := c.api.SignOut(context.Background()); err != nil && !errors.Is(err, client.ErrNoSession) {
		c.logger.Warn("server sign out failed", slog.String("error", err.Error()))
	}
	if err := client.ClearSession(c.cfg.TokenDir); err != nil {
		return err
	}
	fmt.Println("✓ Signed out")
	return nil
}

func (c *cli) resetPassword(args []string) error {
	fs := flag.NewFlagSet("reset-password", flag.ExitOnError)
	email := fs.String("email", "", "email")
	fs.Parse(args)

	if *email == "" {
		fmt.Println("Error: email is required")
		fs.PrintDefaults()
		return nil
	}
	if err := c.api.ResetPassword(context.Background(), *email); err != nil {
		return err
	}
	fmt.Println("✓ If the email is registered, a reset token was issued")
	return nil
}

func (c *cli) confirmReset(args []string) error {
	fs := flag.NewFlagSet("confirm-reset", flag.ExitOnError)
	token := fs.String("token", "", "reset token")
	password := fs.String("password", "", "new password")
	fs.Parse(args)

	if *token == "" || *password == "" {
		fmt.Println("Error: token and password are required")
		fs.PrintDefaults()
		return nil
	}
	if err := c.api.ConfirmReset(context.Background(), *token, *password); err != nil {
		return err
	}
	fmt.Println("✓ Password updated. Sign in with the new password.")
	return nil
}

func (c *cli) whoAmI() error {
	s, err := client.LoadSession(c.cfg.TokenDir)
	if err != nil {
		fmt.Println("Not signed in")
		return nil
	}
	fmt.Printf("✓ Signed in as %s (session expires %s)\n", s.Identity.Email, s.ExpiresAt.Local().Format(time.RFC1123))
	return nil
}

// Profile commands
func (c *cli) showProfile() error {
	p, err := c.api.Profile(context.Background())
	if err != nil {
		return err
	}
	printProfile(p)
	return nil
}

func printProfile(p *domain.Profile) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "NAME\t%s\n", p.Label())
	fmt.Fprintf(w, "EMAIL\t%s\n", p.Email)
	fmt.Fprintf(w, "TRACKING CODE\t%s\n", p.TrackingCode)
	fmt.Fprintf(w, "SHARING\t%s\n", onOff(p.TrackingActive))
	w.Flush()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "paused"
}

func (c *cli) setName(args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: trackpartner profile name <display name>")
		return nil
	}
	name := args[0]
	p, err := c.api.UpdateProfile(context.Background(), &name, nil)
	if err != nil {
		return err
	}
	printProfile(p)
	return nil
}

func (c *cli) setActive(active bool) error {
	p, err := c.api.UpdateProfile(context.Background(), nil, &active)
	if err != nil {
		return err
	}
	printProfile(p)
	return nil
}

func (c *cli) regenerateCode() error {
	p, err := c.api.RegenerateCode(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("✓ New tracking code: %s\n", p.TrackingCode)
	return nil
}

// Partner commands
func codeArg(args []string, usage string) (string, bool) {
	if len(args) < 1 {
		fmt.Println(usage)
		return "", false
	}
	return args[0], true
}

func (c *cli) validateCode(args []string) error {
	code, ok := codeArg(args, "Usage: trackpartner partner validate <PRT-######>")
	if !ok {
		return nil
	}
	info, err := c.api.ValidateCode(context.Background(), code)
	if err != nil {
		return err
	}
	name := info.Name
	if name == "" {
		name = info.Email
	}
	fmt.Printf("✓ %s belongs to %s (sharing %s)\n", info.Code, name, onOff(info.TrackingActive))
	return nil
}

func (c *cli) connect(args []string) error {
	code, ok := codeArg(args, "Usage: trackpartner partner connect <PRT-######>")
	if !ok {
		return nil
	}
	res, err := c.api.Connect(context.Background(), code)
	if err != nil {
		return err
	}
	if res.Created {
		fmt.Printf("✓ Now tracking %s\n", res.Partner.Label())
	} else {
		fmt.Printf("✓ Already tracking %s\n", res.Partner.Label())
	}
	return nil
}

func (c *cli) disconnect(args []string) error {
	code, ok := codeArg(args, "Usage: trackpartner partner disconnect <PRT-######>")
	if !ok {
		return nil
	}
	if err := c.api.Disconnect(context.Background(), code); err != nil {
		return err
	}
	fmt.Printf("✓ Stopped tracking %s\n", code)
	return nil
}

func (c *cli) listTracked() error {
	tracked, err := c.api.Tracked(context.Background())
	if err != nil {
		return err
	}
	if len(tracked) == 0 {
		fmt.Println("Not tracking anyone yet")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCODE\tSHARING\tID")
	for _, p := range tracked {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Label(), p.TrackingCode, onOff(p.TrackingActive), p.ID)
	}
	w.Flush()
	return nil
}

func (c *cli) where() error {
	loc, err := c.api.PartnerLocation(context.Background())
	if errors.Is(err, domain.ErrNotFound) {
		fmt.Println("No partner location yet")
		return nil
	}
	if err != nil {
		return err
	}
	printLocation(loc)
	return nil
}

func (c *cli) history(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	user := fs.String("user", "", "user id (default: yourself)")
	limit := fs.Int("limit", 20, "number of samples (max 100)")
	fs.Parse(args)

	samples, err := c.api.History(context.Background(), *user, *limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tLATITUDE\tLONGITUDE\tADDRESS")
	for _, s := range samples {
		fmt.Fprintf(w, "%s\t%.5f\t%.5f\t%s\n", s.Timestamp.Local().Format("2006-01-02 15:04:05"), s.Latitude, s.Longitude, s.Address)
	}
	w.Flush()
	return nil
}

func printUsage() {
	fmt.Print(`TrackPartner CLI

Usage:
  trackpartner <command> [options]

Commands:
  auth       Account (signup, signin, signout, reset-password, confirm-reset, who)
  profile    Your profile (show, name, pause, resume, regenerate-code)
  partner    Relationships (validate, connect, disconnect, list, where)
  share      Share your location until interrupted
  follow     Follow your partner's location live until interrupted
  history    Show stored samples
  help       Show this help message

Environment Variables:
  TRACKPARTNER_API          API endpoint (default: http://localhost:8080)
  TRACKPARTNER_HOME         Session directory (default: ~/.trackpartner)
  GEOCODER_URL              Reverse geocoder (default: Nominatim)
  POLL_INTERVAL             Follow poll interval (default: 30s)
  FLAG_OFFLINE_GEOCODER     Skip reverse geocoding and store coordinates

Examples:
  trackpartner auth signup -email ana@example.com -password secret1 -name Ana
  trackpartner partner connect PRT-702243
  trackpartner share -lat -23.5505 -lng -46.6333
  gpspipe-to-csv | trackpartner share -stdin
  trackpartner follow
`)
}
