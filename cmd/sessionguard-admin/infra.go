package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/target/sessionguard/config"
	"github.com/target/sessionguard/internal/bootstrap"
)

var (
	errRedisNotConfigured = errors.New("redis not configured")
	errDatabaseDisabled   = errors.New("audit database disabled; set DB_ENABLED=true")
	errAborted            = errors.New("aborted by user")
)

// connectRedis returns a connected client for commands that touch the shared cache.
//
//nolint:ireturn // sentinel and cluster clients share the UniversalClient interface.
func connectRedis(ctx context.Context, cmdCtx *commandContext) (redis.UniversalClient, error) {
	cfg := &cmdCtx.Config.Redis
	if !hasRedisConfig(cfg) {
		return nil, errRedisNotConfigured
	}
	client, err := bootstrap.ConnectRedis(ctx, *cfg, cmdCtx.Logger)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

func hasRedisConfig(cfg *config.RedisConfig) bool {
	switch {
	case cfg == nil:
		return false
	case cfg.UseCluster:
		return len(cfg.ClusterNodes) > 0 || strings.TrimSpace(cfg.URI) != ""
	case cfg.UseSentinel:
		return len(cfg.SentinelNodes) > 0
	default:
		return strings.TrimSpace(cfg.URI) != ""
	}
}

// guardRemoteHost refuses destructive commands against a non-local audit
// database unless --allow-remote is set and the operator retypes the host.
func guardRemoteHost(cmdCtx *commandContext, allow bool, action string) error {
	host := cmdCtx.Config.Postgres.Host
	if !isLikelyRemoteHost(host) {
		return nil
	}
	if !allow {
		return fmt.Errorf(
			"refusing to %s on potentially remote database host %q; re-run with --allow-remote if this is intentional",
			action, host,
		)
	}
	return requireRemoteHostConfirmation(os.Stdin, os.Stderr, action, host)
}

func isLikelyRemoteHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	switch {
	case h == "", h == "localhost", strings.HasSuffix(h, ".local"):
		return false
	}
	if ip := net.ParseIP(h); ip != nil {
		return !ip.IsLoopback()
	}
	return true
}

func requireRemoteHostConfirmation(in io.Reader, out io.Writer, action, host string) error {
	if err := writef(out,
		"\nWARNING: database host %q does not look like a local address.\nThis operation will %s.\nType %q to continue or press enter to abort: ",
		host, action, host,
	); err != nil {
		return fmt.Errorf("print remote host prompt: %w", err)
	}

	resp, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return errAborted
	}
	if strings.TrimSpace(resp) != host {
		if writeErr := writeln(out, "\nRemote safeguard check failed; aborting."); writeErr != nil {
			return errors.Join(errAborted, writeErr)
		}
		return errAborted
	}
	return nil
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	_, err := fmt.Fprintln(w, args...)
	return err
}
