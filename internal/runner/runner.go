// Package runner wires every other package into the run spec.md §4
// describes end to end: resolve each watched file's rotation queue, read
// and reassemble its records, filter and canonicalize them, aggregate into
// clusters, render a report, hand it to the Mailer Adapter, and persist
// offsets back to the config file (spec.md §7 error-handling policy).
package runner

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	golog "github.com/opencoff/go-logger"

	"github.com/tailnmail/tailnmail/internal/aggregator"
	"github.com/tailnmail/tailnmail/internal/canon"
	"github.com/tailnmail/tailnmail/internal/config"
	"github.com/tailnmail/tailnmail/internal/configio"
	"github.com/tailnmail/tailnmail/internal/filterpipe"
	"github.com/tailnmail/tailnmail/internal/mail"
	"github.com/tailnmail/tailnmail/internal/mailcfg"
	"github.com/tailnmail/tailnmail/internal/prefix"
	"github.com/tailnmail/tailnmail/internal/reader"
	"github.com/tailnmail/tailnmail/internal/report"
	"github.com/tailnmail/tailnmail/internal/resolver"
)

// Options configures one invocation of Run.
type Options struct {
	Config *config.Config
	Doc    *configio.Document

	Host string

	DryRun       bool
	NoMail       bool
	ResetOffsets bool
	Timewarp     time.Duration

	// Rewind, when non-zero, overrides every file's configured REWIND
	// byte count for this run only (--rewind, distinct from -timewarp's
	// clock-offset knob; SUPPLEMENTED FEATURES).
	Rewind int64

	SMTPPassword *mailcfg.Secret
	Sendmail     string

	Log golog.Logger
}

// Run executes one full pass over every watched file in opts.Config.
// Recoverable per-entry errors (a LATEST directory that can't be scanned,
// a report that can't be mailed) are collected into the returned error as
// a *multierror.Error and do not stop the other files from being
// processed. A queued log file that can't be opened or read is logged as a
// warning and skipped, and is not part of the returned error;
// a fatal error (a malformed prefix format) aborts the entire run
// immediately (spec.md §7).
func Run(opts Options) error {
	cfg := opts.Config
	log := opts.Log
	if log == nil {
		var err error
		log, err = golog.New(os.Stderr, golog.LOG_WARN, "tailnmail", golog.Lstdflag)
		if err != nil {
			return fmt.Errorf("creating fallback logger: %w", err)
		}
	}

	matchers, err := prefix.Compile(cfg.LogLinePrefix, cfg.Syslog)
	if err != nil {
		return fmt.Errorf("compiling log_line_prefix %q: %w", cfg.LogLinePrefix, err)
	}

	// --reset forces every entry to be treated as if no file had ever
	// been scanned, regardless of what's persisted: the
	// resolver must see an empty LastPath too, not just a bypassed
	// Offset, or a LATEST/time-templated entry would still queue up
	// every file newer than the (stale) last-scanned one instead of just
	// the single newest (SUPPLEMENTED FEATURES).
	if opts.ResetOffsets {
		for _, fe := range cfg.Files {
			fe.LastPath = ""
			fe.Offset = 0
		}
	}
	if opts.Rewind > 0 {
		cfg.Rewind = opts.Rewind
	}

	var result *multierror.Error
	mailFailed := false

	for _, fe := range cfg.Files {
		if err := runFile(opts, matchers, fe, log); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", fe.Template, err))
			if !fe.Inherited {
				mailFailed = true
			}
			continue
		}
	}

	// Offsets advance whenever a file was read and its report either sent
	// successfully or intentionally suppressed (--dryrun/--nomail both
	// route through mail.Send's dry-run path, which never fails); only a
	// genuine delivery failure holds the offset back so the unsent
	// records are retried next run (spec.md §7).
	if err := configio.Persist(cfg, opts.Doc, cfg.Path, mailFailed); err != nil {
		result = multierror.Append(result, fmt.Errorf("persisting offsets: %w", err))
	}

	return result.ErrorOrNil()
}

// runFile resolves, reads, filters, canonicalizes, aggregates, renders,
// and mails one watched FileEntry, leaving fe.LatestPath/fe.NewOffset set
// for the caller's Offset Persistence pass.
func runFile(opts Options, matchers *prefix.Matchers, fe *config.FileEntry, log golog.Logger) error {
	cfg := opts.Config

	fs, err := filterpipe.Compile(cfg.Global, fe.Filters)
	if err != nil {
		return fmt.Errorf("compiling filters: %w", err)
	}

	queue, err := resolver.Resolve(fe, opts.Timewarp, nil)
	if err != nil {
		return fmt.Errorf("resolving file queue: %w", err)
	}

	rd := reader.New(matchers, reader.Options{
		MaxSize:        cfg.MaxSize,
		Rewind:         cfg.Rewind,
		CSV:            cfg.CSVLog,
		Syslog:         cfg.Syslog,
		FindLineNumber: cfg.FindLineNumber,
	}, log)

	agg := aggregator.New(cfg.Type)

	var lastPath string
	var lastOffset int64
	for {
		path, ok := queue.Next()
		if !ok {
			break
		}

		offset := int64(0)
		if path == fe.LastPath {
			offset = fe.Offset
		}

		res, err := rd.ReadFile(path, offset)
		if err != nil {
			log.Warn("skipping %s: %v", path, err)
			continue
		}

		for _, rec := range res.Records {
			body, extra, keep := fs.Apply(rec, cfg.Type, cfg.DurationMinMS, cfg.TempfileMin)
			if !keep {
				continue
			}
			ck := canon.Canonicalize(body, cfg.Type)
			agg.Add(ck, aggregator.Occurrence{
				SourceFile: path,
				SourceLine: rec.SourceLine,
				Prefix:     rec.Prefix,
				Timestamp:  rec.Timestamp,
			}, extra)
		}

		lastPath = path
		lastOffset = res.NewOffset
	}

	fe.LatestPath = lastPath
	fe.NewOffset = lastOffset

	if fe.Inherited {
		return nil
	}

	total := agg.Total()
	if total == 0 && !cfg.MailZero {
		return nil
	}

	clusters := agg.Clusters(cfg.SortBy)
	if limit := reportLimit(cfg); limit > 0 && len(clusters) > limit {
		clusters = clusters[:limit]
	}
	chunks := report.Render(report.Options{
		Host:          opts.Host,
		Label:         fe.Template,
		ReportType:    cfg.Type,
		Total:         total,
		GeneratedAt:   time.Now(),
		MaxSize:       cfg.MaxEmailSize,
		MailSig:       cfg.MailSig,
		StatementSize: cfg.StatementSize,
	}, clusters)

	return deliver(opts, cfg, fe, chunks)
}

// reportLimit returns the DURATION_LIMIT/TEMPFILE_LIMIT cap on the number of
// clusters shown in a duration or tempfile report (spec.md §6), or 0 for no
// cap (normal-mode reports are never capped).
func reportLimit(cfg *config.Config) int {
	switch cfg.Type {
	case config.ReportDuration:
		return cfg.DurationLimit
	case config.ReportTempfile:
		return cfg.TempfileLimit
	default:
		return 0
	}
}

// gzipThreshold is the body size past which a mail part is gzipped and
// base64-attached instead of sent as inline text (DOMAIN STACK:
// klauspost/compress).
const gzipThreshold = 64 * 1024

func deliver(opts Options, cfg *config.Config, fe *config.FileEntry, chunks []string) error {
	subject := subjectFor(cfg.MailSubject, fe.Template, opts.Host, len(chunks))

	mopts := mail.Options{
		From:          cfg.From,
		To:            cfg.Email,
		Subject:       subject,
		MailAuth:      cfg.MailAuth,
		Password:      opts.SMTPPassword,
		GzipThreshold: gzipThreshold,
		DryRun:        opts.DryRun || opts.NoMail,
		DryRunOut:     os.Stdout,
		Sendmail:      opts.Sendmail,
	}
	return mail.Send(mopts, chunks)
}

// subjectFor substitutes the "FILE"/"HOST"/"NUMBER" tokens in a
// MailSubject template (spec.md §6 DefaultSubject); NUMBER becomes the
// number of mail parts. The "UNIQUE" token is not substituted and stays
// in the subject as written.
func subjectFor(template, file, host string, parts int) string {
	s := strings.ReplaceAll(template, "FILE", file)
	s = strings.ReplaceAll(s, "HOST", host)
	s = strings.ReplaceAll(s, "NUMBER", fmt.Sprintf("%d", parts))
	return s
}
