package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/target/sessionguard/internal/data"
	"github.com/target/sessionguard/internal/domain/audit"
)

const defaultAuditTimeout = 30 * time.Second

type auditListOptions struct {
	SessionID string
	UserID    string
	TenantID  string
	Event     string
	Since     time.Duration
	Limit     int
	JSON      bool
}

type auditPruneOptions struct {
	OlderThan   time.Duration
	Yes         bool
	AllowRemote bool
}

func runAuditList(cmdCtx *commandContext, args []string) error {
	opts, err := parseAuditListFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, defaultAuditTimeout, func(ctx context.Context, db *sql.DB) error {
		events, listErr := data.NewAuditRepo(db).List(ctx, opts.filter(time.Now()))
		if listErr != nil {
			return fmt.Errorf("list audit events: %w", listErr)
		}
		if opts.JSON {
			return renderAuditJSON(os.Stdout, events)
		}
		return renderAuditTable(os.Stdout, events)
	})
}

func (o auditListOptions) filter(now time.Time) data.AuditFilter {
	f := data.AuditFilter{
		SessionID: o.SessionID,
		UserID:    o.UserID,
		TenantID:  o.TenantID,
		Event:     audit.Name(o.Event),
		Limit:     o.Limit,
	}
	if o.Since > 0 {
		f.Since = now.Add(-o.Since)
	}
	return f
}

func runAuditPrune(cmdCtx *commandContext, args []string) error {
	opts, err := parseAuditPruneFlags(args)
	if err != nil {
		return err
	}
	if guardErr := guardRemoteHost(cmdCtx, opts.AllowRemote, "permanently delete audit events"); guardErr != nil {
		return guardErr
	}

	cutoff := time.Now().Add(-opts.OlderThan)
	if !opts.Yes {
		return writef(os.Stdout,
			"Would delete audit events recorded before %s. Re-run with --yes to proceed.\n",
			cutoff.UTC().Format(time.RFC3339))
	}

	return withDatabase(cmdCtx, defaultAuditTimeout, func(ctx context.Context, db *sql.DB) error {
		n, delErr := data.NewAuditRepo(db).DeleteBefore(ctx, cutoff)
		if delErr != nil {
			return fmt.Errorf("prune audit events: %w", delErr)
		}
		return writef(os.Stdout, "Deleted %d audit events recorded before %s\n", n, cutoff.UTC().Format(time.RFC3339))
	})
}

func parseAuditListFlags(args []string) (auditListOptions, error) {
	fs := flag.NewFlagSet("audit-list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts auditListOptions
	fs.StringVar(&opts.SessionID, "session", "", "Only events for this session id")
	fs.StringVar(&opts.UserID, "user", "", "Only events for this user id")
	fs.StringVar(&opts.TenantID, "tenant", "", "Only events for this tenant id")
	fs.StringVar(&opts.Event, "event", "", "Only events with this name, e.g. session.expired")
	fs.DurationVar(&opts.Since, "since", 24*time.Hour, "Only events newer than this duration ago (0 for all)")
	fs.IntVar(&opts.Limit, "limit", 100, "Maximum number of events to print (max 1000)")
	fs.BoolVar(&opts.JSON, "json", false, "Print events as JSON lines")

	if err := fs.Parse(args); err != nil {
		return auditListOptions{}, err
	}
	if opts.Limit <= 0 {
		return auditListOptions{}, errors.New("--limit must be greater than zero")
	}
	if opts.Since < 0 {
		return auditListOptions{}, errors.New("--since cannot be negative")
	}
	opts.Event = strings.TrimSpace(opts.Event)
	return opts, nil
}

func parseAuditPruneFlags(args []string) (auditPruneOptions, error) {
	fs := flag.NewFlagSet("audit-prune", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts auditPruneOptions
	fs.DurationVar(&opts.OlderThan, "older-than", 0, "Delete events older than this duration, e.g. 2160h")
	fs.BoolVar(&opts.Yes, "yes", false, "Skip the dry run and delete")
	fs.BoolVar(&opts.AllowRemote, "allow-remote", false, "Allow running against a non-local database host")

	if err := fs.Parse(args); err != nil {
		return auditPruneOptions{}, err
	}
	if opts.OlderThan <= 0 {
		return auditPruneOptions{}, errors.New("--older-than must be greater than zero")
	}
	return opts, nil
}

func renderAuditTable(w io.Writer, events []audit.Event) error {
	if len(events) == 0 {
		return writeln(w, "No audit events found.")
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writeln(tw, "TIME\tEVENT\tSESSION\tUSER\tTENANT\tPAGE"); err != nil {
		return err
	}
	for _, ev := range events {
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			ev.Timestamp.UTC().Format(time.RFC3339),
			ev.Event,
			dash(ev.SessionID),
			dash(ev.UserID),
			dash(ev.TenantID),
			dash(ev.Page),
		); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func renderAuditJSON(w io.Writer, events []audit.Event) error {
	enc := json.NewEncoder(w)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("encode audit event: %w", err)
		}
	}
	return nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
