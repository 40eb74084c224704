package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/target/sessionguard/internal/bootstrap"
	"github.com/target/sessionguard/internal/data"
	"github.com/target/sessionguard/internal/service/tenant"
)

type tenantCacheClearOptions struct {
	SessionID string
}

// runTenantCacheClear removes the shared cache entry only. Replicas keep their
// in-process copy until its local TTL lapses.
func runTenantCacheClear(cmdCtx *commandContext, args []string) error {
	opts, err := parseTenantCacheClearFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultAuditTimeout)
	defer cancel()

	client, err := connectRedis(ctx, cmdCtx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", cerr)
		}
	}()

	cache := data.NewRedisCache(client, bootstrap.CacheKeyPrefix)
	deleted, err := cache.Delete(ctx, tenant.CacheKey(opts.SessionID))
	if err != nil {
		return fmt.Errorf("delete tenant cache entry: %w", err)
	}
	if !deleted {
		return writef(os.Stdout, "No cached tenant for session %s\n", opts.SessionID)
	}
	return writef(os.Stdout, "Cleared cached tenant for session %s\n", opts.SessionID)
}

func parseTenantCacheClearFlags(args []string) (tenantCacheClearOptions, error) {
	fs := flag.NewFlagSet("tenant-cache-clear", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts tenantCacheClearOptions
	fs.StringVar(&opts.SessionID, "session", "", "Session id whose cached tenant should be dropped (required)")

	if err := fs.Parse(args); err != nil {
		return tenantCacheClearOptions{}, err
	}
	opts.SessionID = strings.TrimSpace(opts.SessionID)
	if opts.SessionID == "" {
		return tenantCacheClearOptions{}, errors.New("--session is required")
	}
	return opts, nil
}
