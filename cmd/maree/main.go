// Command maree generates an iCalendar file of French tide times.
//
// Usage:
//
//	maree -location Brest -start 04/07/2025 -end 11/07/2025
//	maree -interactive -source horaire -tz Indian/Reunion
//	maree -list
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/bbernstein/maree/internal/api"
	"github.com/bbernstein/maree/internal/app"
	"github.com/bbernstein/maree/internal/config"
	"github.com/bbernstein/maree/internal/models"
	"github.com/bbernstein/maree/internal/observability"
	"github.com/bbernstein/maree/internal/publish"
	"github.com/bbernstein/maree/internal/registry"
	"github.com/bbernstein/maree/internal/tide"
	"github.com/bbernstein/maree/internal/timezone"
	"github.com/bbernstein/maree/internal/ui"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

type flags struct {
	location    string
	start       string
	end         string
	source      string
	tz          string
	key         string
	out         string
	interactive bool
	list        bool
	zones       bool
	metricsFile string
	s3          bool
}

func parseFlags(args []string, stderr io.Writer) (*flags, error) {
	f := &flags{}
	fs := flag.NewFlagSet("maree", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.location, "location", "", "port name, as listed by -list")
	fs.StringVar(&f.start, "start", "", "first day, DD/MM/YYYY or YYYY-MM-DD (with -end; default today)")
	fs.StringVar(&f.end, "end", "", "last day, DD/MM/YYYY or YYYY-MM-DD (with -start; default today + 7 days)")
	fs.StringVar(&f.source, "source", "", "data source: mareeinfo, horaire or worldtides (default from MAREE_SOURCE)")
	fs.StringVar(&f.tz, "tz", "", "IANA time zone for the calendar (default from MAREE_TIMEZONE)")
	fs.StringVar(&f.key, "key", "", "worldtides.info API key (default from WORLDTIDES_API_KEY)")
	fs.StringVar(&f.out, "out", ".", "directory the .ics file is written to")
	fs.BoolVar(&f.interactive, "interactive", false, "pick the port from a list")
	fs.BoolVar(&f.list, "list", false, "print the ports of the source and exit")
	fs.BoolVar(&f.zones, "zones", false, "print the available time zones and exit")
	fs.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")
	fs.BoolVar(&f.s3, "s3", false, "upload the calendar to S3_BUCKET instead of writing a file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return f, nil
}

type runner struct {
	stdout  io.Writer
	stderr  io.Writer
	appOpts []app.Option
	pick    func([]models.Location) (models.Location, error)
	publish func(ctx context.Context, cfg *config.Config, f *flags) (publish.Publisher, error)
}

func defaultPublisher(ctx context.Context, cfg *config.Config, f *flags) (publish.Publisher, error) {
	if !f.s3 {
		return publish.NewFilePublisher(f.out), nil
	}
	client, err := publish.NewS3Client(ctx, cfg.S3Endpoint)
	if err != nil {
		return nil, err
	}
	return publish.NewS3Publisher(client, cfg.S3Bucket, cfg.S3Prefix), nil
}

func (r *runner) run(ctx context.Context, args []string) int {
	f, err := parseFlags(args, r.stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(r.stderr, "Erreur de configuration : %v\n", err)
		return exitError
	}
	cfg.InitializeLogging()

	reg := prometheus.NewRegistry()
	metrics, err := observability.NewMetricsWithRegistry(reg)
	if err != nil {
		fmt.Fprintf(r.stderr, "Erreur : %v\n", err)
		return exitError
	}
	if f.metricsFile != "" {
		defer func() {
			if err := observability.WriteTextfile(f.metricsFile, reg); err != nil {
				log.Error().Err(err).Str("path", f.metricsFile).Msg("metrics not written")
			}
		}()
	}

	a, err := app.New(cfg, metrics, r.appOpts...)
	if err != nil {
		fmt.Fprintf(r.stderr, "Erreur : %v\n", err)
		return exitError
	}

	if f.zones {
		for _, z := range timezone.Zones() {
			fmt.Fprintln(r.stdout, z)
		}
		return exitOK
	}

	locations, err := a.Registry(models.SourceKind(f.source))
	if err != nil {
		fmt.Fprintf(r.stderr, "Erreur : %s\n", tide.UserMessage(err))
		return exitUsage
	}
	if f.list {
		printLocations(r.stdout, locations)
		return exitOK
	}

	if f.interactive {
		loc, err := r.pick(locations.Locations())
		if errors.Is(err, ui.ErrCancelled) {
			return exitOK
		}
		if err != nil {
			fmt.Fprintf(r.stderr, "Erreur : %v\n", err)
			return exitError
		}
		f.location = loc.Name
	}
	if f.location == "" {
		fmt.Fprintln(r.stderr, "Erreur : veuillez indiquer un lieu avec -location, ou utiliser -interactive")
		return exitUsage
	}

	zone, err := a.Zone(f.tz)
	if err != nil {
		fmt.Fprintf(r.stderr, "Erreur : %s\n", tide.UserMessage(err))
		return exitUsage
	}
	dates, err := api.Period(a.Clock.Now(), zone, f.start, f.end)
	if err != nil {
		fmt.Fprintf(r.stderr, "Erreur : %s\n", tide.UserMessage(err))
		return exitUsage
	}

	res, err := a.Service.Generate(ctx, tide.Request{
		Location: f.location,
		Dates:    dates,
		Source:   models.SourceKind(f.source),
		Zone:     f.tz,
		APIKey:   f.key,
		Progress: func(done, total int) {
			log.Info().Int("done", done).Int("total", total).Msg("progress")
		},
		OnStage: func(s tide.Stage) {
			log.Debug().Str("stage", string(s)).Msg("stage")
		},
	})
	if err != nil {
		fmt.Fprintf(r.stderr, "Erreur : %s\n", tide.UserMessage(err))
		return exitError
	}

	fmt.Fprint(r.stdout, ui.Report(res))

	pub, err := r.publish(ctx, cfg, f)
	if err != nil {
		fmt.Fprintf(r.stderr, "Erreur : %v\n", err)
		return exitError
	}
	where, err := pub.Publish(ctx, res.Filename, res.Payload, res.ContentType)
	if err != nil {
		fmt.Fprintf(r.stderr, "Erreur : %v\n", err)
		return exitError
	}
	fmt.Fprintf(r.stdout, "Calendrier enregistré : %s\n", where)
	return exitOK
}

func printLocations(w io.Writer, reg *registry.Registry) {
	for _, loc := range reg.Locations() {
		if loc.IsPlaceholder() {
			fmt.Fprintln(w, loc.Name)
			continue
		}
		fmt.Fprintf(w, "  %s\n", loc.Name)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	r := &runner{
		stdout: os.Stdout,
		stderr: os.Stderr,
		pick: func(locations []models.Location) (models.Location, error) {
			return ui.Pick(locations)
		},
		publish: defaultPublisher,
	}
	code := r.run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
