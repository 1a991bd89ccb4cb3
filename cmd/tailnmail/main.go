// Command tailnmail tails one or more PostgreSQL server logs from their
// last-read offsets, clusters the new statements and errors it finds, and
// mails (or prints) a report before persisting the new offsets back to the
// config file (spec.md §1).
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tailnmail/tailnmail/internal/configio"
	"github.com/tailnmail/tailnmail/internal/logging"
	"github.com/tailnmail/tailnmail/internal/mailcfg"
	"github.com/tailnmail/tailnmail/internal/rcfile"
	"github.com/tailnmail/tailnmail/internal/runner"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("tailnmail", flag.ContinueOnError)
	var (
		dryRun   = fs.Bool("dryrun", false, "print the report to stdout instead of mailing it")
		noMail   = fs.Bool("nomail", false, "consume input and advance offsets, but never send mail")
		reset    = fs.Bool("reset", false, "ignore persisted offsets and start each file from 0")
		quiet    = fs.Bool("quiet", false, "suppress all but error diagnostics")
		verbose  = fs.Bool("verbose", false, "emit debug diagnostics")
		host     = fs.String("host", "", "hostname used in mail subjects; defaults to os.Hostname()")
		timewarp = fs.Duration("timewarp", 0, "shift \"now\" by this duration, for testing time-templated files")
		rewind   = fs.Int64("rewind", 0, "re-read this many bytes before the saved offset on every file this run")
		sendmail = fs.String("sendmail", "", "path to the sendmail-compatible binary (default: \"sendmail\" on $PATH)")
	)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: tailnmail [flags] <config-file>\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	configPath := fs.Arg(0)

	log := logging.New("tailnmail", *quiet, *verbose)

	hostname := *host
	if hostname == "" {
		if h, err := os.Hostname(); err == nil {
			hostname = h
		}
	}

	cfg, doc, err := configio.Load(configPath)
	if err != nil {
		log.Error("loading %s: %v", configPath, err)
		return 1
	}
	for _, w := range cfg.Warnings {
		log.Warn("%s", w)
	}

	rc, rcPath, err := rcfile.Load()
	if err != nil {
		log.Error("loading rc file: %v", err)
		return 1
	}
	if rcPath != "" {
		log.Debug("using rc file %s", rcPath)
	}
	var secret *mailcfg.Secret
	if rc.SMTPPassword != "" {
		secret = mailcfg.NewSecret([]byte(rc.SMTPPassword))
	}

	err = runner.Run(runner.Options{
		Config:       cfg,
		Doc:          doc,
		Host:         hostname,
		DryRun:       *dryRun,
		NoMail:       *noMail,
		ResetOffsets: *reset,
		Timewarp:     *timewarp,
		Rewind:       *rewind,
		SMTPPassword: secret,
		Sendmail:     *sendmail,
		Log:          log,
	})
	if err != nil {
		log.Error("run failed: %v", err)
		return 1
	}
	return 0
}
