package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/domain"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/featureflags"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/geocode"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/geolocation"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/livesync"
	"github.com/bastos77-sc/parceiro-tracker-code-link/internal/sampler"
)

func interrupted() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func (c *cli) geocoder() geocode.ReverseGeocoder {
	if featureflags.Enabled(featureflags.OfflineGeocoder) {
		c.logger.Info("reverse geocoding disabled by flag")
		return geocode.Offline{}
	}
	return geocode.NewNominatim(geocode.Config{
		BaseURL:   c.cfg.GeocoderURL,
		UserAgent: "trackpartner-cli",
		Timeout:   c.cfg.GeocoderTimeout,
		CacheTTL:  c.cfg.GeocodeCacheTTL,
	}, c.logger)
}

func (c *cli) share(args []string) error {
	fs := flag.NewFlagSet("share", flag.ExitOnError)
	stdin := fs.Bool("stdin", false, `read "lat,lng[,accuracy]" lines from standard input`)
	lat := fs.Float64("lat", 0, "fixed latitude")
	lng := fs.Float64("lng", 0, "fixed longitude")
	accuracy := fs.Float64("accuracy", 0, "fixed accuracy in meters (0 = unknown)")
	interval := fs.Duration("interval", 30*time.Second, "re-send interval for a fixed position")
	fs.Parse(args)

	var geo geolocation.Geolocator
	switch {
	case *stdin:
		geo = geolocation.NewStream(os.Stdin, geolocation.DefaultOptions(), c.logger)
	case *lat != 0 || *lng != 0:
		var acc *float64
		if *accuracy > 0 {
			acc = accuracy
		}
		geo = geolocation.NewStatic(*lat, *lng, acc, *interval)
	default:
		fmt.Println("Error: pass -stdin or -lat/-lng")
		fs.PrintDefaults()
		return nil
	}

	profile, err := c.api.Profile(context.Background())
	if err != nil {
		return err
	}
	if !profile.TrackingActive {
		fmt.Println("! Sharing is paused on your profile; partners will not see these samples. Run: trackpartner profile resume")
	}

	ctx, stop := interrupted()
	defer stop()

	s := sampler.New(geo, c.geocoder(), c.api, sampler.Options{
		GeocodeTimeout: c.cfg.GeocoderTimeout,
		OnState: func(state sampler.State, err error) {
			if err != nil {
				fmt.Printf("[%s] %s: %s\n", time.Now().Format("15:04:05"), state, describe(err))
				return
			}
			fmt.Printf("[%s] %s\n", time.Now().Format("15:04:05"), state)
		},
		OnSample: func(sample *domain.LocationSample) {
			fmt.Printf("[%s] sent %.5f, %.5f  %s\n", sample.Timestamp.Local().Format("15:04:05"), sample.Latitude, sample.Longitude, sample.Address)
		},
	}, c.logger)

	if err := s.Start(ctx); err != nil {
		return err
	}
	fmt.Printf("✓ Sharing as %s (code %s). Ctrl+C to stop.\n", profile.Label(), profile.TrackingCode)

	// A fatal device error or the end of the -stdin feed ends the session on its own.
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Stop()
			fmt.Println("✓ Sharing stopped")
			return nil
		case <-ticker.C:
			if !s.Active() {
				_, err := s.State()
				if err != nil && geolocation.Fatal(err) {
					return err
				}
				fmt.Println("✓ Position feed ended, sharing stopped")
				return nil
			}
		}
	}
}

func (c *cli) follow(args []string) error {
	fs := flag.NewFlagSet("follow", flag.ExitOnError)
	poll := fs.Duration("poll", c.cfg.PollInterval, "poll interval")
	noPush := fs.Bool("no-push", false, "rely on polling only")
	fs.Parse(args)

	if c.api.Token() == "" {
		return errors.New("not signed in")
	}

	ctx, stop := interrupted()
	defer stop()

	var subscriber livesync.Subscriber = c.api
	if *noPush || featureflags.Enabled(featureflags.PollOnly) {
		subscriber = nil
	}
	ctrl := livesync.New(c.api, subscriber, livesync.Options{
		PollInterval: *poll,
		OnChange:     printView,
	}, c.logger)
	ctrl.Start(ctx)
	fmt.Println("✓ Following partner location. Enter refreshes, Ctrl+C stops.")

	go func() {
		lines := bufio.NewScanner(os.Stdin)
		for lines.Scan() {
			ctrl.Refresh()
		}
	}()

	<-ctx.Done()
	ctrl.Close()
	c.logger.Debug("follow stopped", slog.Time("at", time.Now()))
	return nil
}

func printView(v livesync.View) {
	stamp := v.UpdatedAt.Local().Format("15:04:05")
	switch {
	case v.Err != nil && v.Location != nil:
		fmt.Printf("[%s] ! %s (showing last known position)\n", stamp, describe(v.Err))
		printLocation(v.Location)
	case v.Err != nil:
		fmt.Printf("[%s] ! %s\n", stamp, describe(v.Err))
	case v.Location == nil:
		fmt.Printf("[%s] No partner location yet\n", stamp)
	default:
		fmt.Printf("[%s]\n", stamp)
		printLocation(v.Location)
	}
}

func printLocation(loc *domain.PartnerLocation) {
	fmt.Printf("  %s is at %s\n", loc.Name, loc.Address)
	fmt.Printf("  %.5f, %.5f", loc.Latitude, loc.Longitude)
	if loc.Accuracy != nil {
		fmt.Printf(" (±%.0f m)", *loc.Accuracy)
	}
	fmt.Printf("  updated %s\n", loc.Timestamp.Local().Format("2006-01-02 15:04:05"))
}
