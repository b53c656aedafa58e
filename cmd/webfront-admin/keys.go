package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/target/webfront-auth/config"
	redisadapter "github.com/target/webfront-auth/internal/adapters/redis"
	"github.com/target/webfront-auth/internal/bootstrap"
	"github.com/target/webfront-auth/internal/data/cryptoutil"
	"github.com/target/webfront-auth/internal/service"
)

func runGenKey(cmdCtx *commandContext, _ []string) error {
	k, err := cryptoutil.GenerateKey()
	if err != nil {
		return err
	}
	return writef(cmdCtx.Out, "%s\n", k)
}

func runRotateKey(cmdCtx *commandContext, _ []string) error {
	cfg := cmdCtx.Config
	if !cfg.Redis.Enabled() {
		return errors.New("rotate-key requires REDIS_URI")
	}

	ctx, cancel := commandContextWithTimeout(cmdCtx.Ctx, time.Minute)
	defer cancel()

	client, err := bootstrap.ConnectRedis(ctx, bootstrap.DatabaseConfig{RedisConfig: cfg.Redis, Logger: cmdCtx.Logger})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", cerr)
		}
	}()

	store := redisadapter.NewKeyRingStore(client, cfg.Keys.RedisKey, cfg.Keys.GraceKeys+1)
	k, err := cryptoutil.GenerateKey()
	if err != nil {
		return err
	}
	if err := store.Push(ctx, k); err != nil {
		return fmt.Errorf("push key: %w", err)
	}
	return writef(cmdCtx.Out, "pushed key %s; running servers pick it up within %s\n", k.ID, cfg.Keys.ReloadInterval)
}

type inspectOptions struct {
	Purpose cryptoutil.Purpose
	Value   string
}

func parseInspectFlags(args []string) (inspectOptions, error) {
	fs := flag.NewFlagSet("inspect-token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var purpose string
	fs.StringVar(&purpose, "purpose", string(cryptoutil.PurposeToken), "Envelope purpose: token or cookie")
	if err := fs.Parse(args); err != nil {
		return inspectOptions{}, err
	}

	var opts inspectOptions
	switch p := strings.TrimSpace(purpose); {
	case strings.EqualFold(p, string(cryptoutil.PurposeToken)):
		opts.Purpose = cryptoutil.PurposeToken
	case strings.EqualFold(p, string(cryptoutil.PurposeCookie)):
		opts.Purpose = cryptoutil.PurposeCookie
	default:
		return inspectOptions{}, fmt.Errorf("invalid --purpose %q (valid options: token, cookie)", purpose)
	}
	if fs.NArg() != 1 {
		return inspectOptions{}, errors.New("exactly one sealed value is required")
	}
	opts.Value = strings.TrimSpace(fs.Arg(0))
	return opts, nil
}

type inspectResult struct {
	Info  json.RawMessage `json:"info"`
	Level string          `json:"level"`
}

func runInspectToken(cmdCtx *commandContext, args []string) error {
	opts, err := parseInspectFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := commandContextWithTimeout(cmdCtx.Ctx, time.Minute)
	defer cancel()

	ring, closeRing, err := loadKeyRing(ctx, cmdCtx)
	if err != nil {
		return err
	}
	defer closeRing()

	info, err := service.NewEnvelope(ring, nil).UnprotectInfo(opts.Purpose, opts.Value)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(info)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmdCtx.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(inspectResult{Info: raw, Level: info.Level(time.Now()).String()})
}

// loadKeyRing builds the same key ring as the server. A random dev key is
// refused because it could never open anything.
func loadKeyRing(ctx context.Context, cmdCtx *commandContext) (*cryptoutil.KeyRing, func(), error) {
	cfg := cmdCtx.Config
	deps := bootstrap.KeyRingDeps{Config: cfg.Keys, Logger: cmdCtx.Logger}
	closeFn := func() {}

	if cfg.Keys.Source == config.KeySourceRedis {
		client, err := bootstrap.ConnectRedis(ctx, bootstrap.DatabaseConfig{RedisConfig: cfg.Redis, Logger: cmdCtx.Logger})
		if err != nil {
			return nil, closeFn, fmt.Errorf("connect redis: %w", err)
		}
		closeFn = func() {
			if cerr := client.Close(); cerr != nil {
				cmdCtx.Logger.Warn("redis close failed", "error", cerr)
			}
		}
		deps.Redis = client
	}

	res, err := bootstrap.BuildKeyRing(ctx, deps)
	if err != nil {
		closeFn()
		return nil, func() {}, err
	}
	return res.Ring, closeFn, nil
}
