package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"pixelfetch/internal/aria2"
	"pixelfetch/internal/orchestrator"
	"pixelfetch/internal/service/web"
	"pixelfetch/internal/shared/config"
	"pixelfetch/internal/shared/logger"
	"pixelfetch/internal/shared/types"
	"pixelfetch/internal/source"
	"pixelfetch/proxypool"
	"pixelfetch/proxypool/model"
	"pixelfetch/proxypool/storage"
	"pixelfetch/proxypool/validator"
)

func main() {
	configDir := flag.String("configdir", "configs", "Path to config directory")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: pixelfetch [-configdir dir] <file-id or direct URL>")
		os.Exit(2)
	}
	arg := flag.Arg(0)

	iniPath := filepath.Join(*configDir, "pixelfetch.ini")
	cfg := new(types.Config)
	if err := config.LoadIni(cfg, iniPath); err != nil {
		// Use standard fmt before logger is initialized.
		fmt.Fprintf(os.Stderr, "Fatal: Failed to load config file '%s': %v\n", iniPath, err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.LogConf); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	accountsPath := cfg.SourceConf.AccountsFile
	if accountsPath == "" {
		accountsPath = filepath.Join(*configDir, "accounts.json")
	}
	accountList, err := config.LoadAccounts(accountsPath)
	if err != nil {
		logger.Fatal().Err(err).Msgf("Failed to load accounts file '%s'", accountsPath)
	}
	accounts := source.NewAccountManager(accountList)

	pool := setupPool(cfg, *configDir)
	client := source.NewClient(cfg.SourceConf.APIBase)

	hub := web.NewHub()
	go hub.Run()
	var wg sync.WaitGroup
	web.StartServer(&wg, cfg, pool, hub)

	target, account := resolveTarget(ctx, cfg, client, accounts, arg)

	orch := orchestrator.New(aria2.NewRunner(cfg.Aria2cPath), pool, cfg.MaxAttempts)
	orch.SetProgressFunc(func(snap types.ProgressSnapshot) {
		l := logger.WithComponent("Progress")
		l.Info().
			Int64("done", snap.BytesDone).
			Int64("total", snap.BytesTotal).
			Int64("rate", snap.Rate).
			Int64("eta_s", snap.ETASeconds).
			Int64("connections", snap.Connections).
			Msg("Downloading...")
		hub.BroadcastProgress(snap)
	})
	orch.SetStatusFunc(func(ev orchestrator.StatusEvent) {
		hub.BroadcastStatus(ev)
	})

	outcome := orch.Download(ctx, target)
	hub.BroadcastOutcome(outcome)

	if outcome.Kind == types.OutcomeSuccess && account != nil {
		accounts.MarkQuotaUsed(account, outcome.FinalSize)
		if err := config.SaveAccounts(accountsPath, accounts.Accounts()); err != nil {
			logger.Warn().Err(err).Msg("Failed to persist account quotas.")
		}
	}

	if cfg.ProxyConf.PoolFile != "" {
		store := storage.NewFileStorage(cfg.ProxyConf.PoolFile)
		if err := store.Save(pool.Snapshot()); err != nil {
			logger.Warn().Err(err).Msg("Failed to persist proxy pool.")
		}
	}

	switch outcome.Kind {
	case types.OutcomeSuccess:
		logger.Info().Int64("size", outcome.FinalSize).Str("path", target.OutputPath).Msg("Download complete.")
	case types.OutcomeCancelled:
		logger.Warn().Msg("Download cancelled.")
		os.Exit(1)
	default:
		logger.Error().Str("reason", string(outcome.Reason)).Msg(outcome.Detail)
		os.Exit(1)
	}
}

// setupPool builds the proxy pool: persisted entries first, then the
// manual list and free-proxy fetch, with optional validation.
func setupPool(cfg *types.Config, configDir string) *proxypool.Pool {
	pool := proxypool.New(cfg.ProxyConf)
	if !cfg.ProxyConf.Enabled {
		return pool
	}

	if cfg.ProxyConf.PoolFile != "" {
		store := storage.NewFileStorage(cfg.ProxyConf.PoolFile)
		persisted, err := store.Load()
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to load persisted proxies, continuing without them.")
		} else {
			pool.Restore(persisted)
		}
	}

	pool.Initialize()

	if cfg.ProxyConf.ValidateOnInit {
		v := validator.New(10*time.Second, 5)
		snapshot := pool.Snapshot()
		v.Validate(snapshot)
		for _, p := range snapshot {
			switch p.Status {
			case model.StatusFailed:
				pool.MarkFailed(p.URL)
			case model.StatusHealthy:
				pool.MarkHealthy(p.URL)
			}
		}
	}

	return pool
}

// resolveTarget turns the CLI argument (a pixeldrain file ID or an
// already-direct URL) into a DownloadTarget, selecting an account with
// enough quota when file metadata is available.
func resolveTarget(
	ctx context.Context,
	cfg *types.Config,
	client *source.Client,
	accounts *source.AccountManager,
	arg string,
) (types.DownloadTarget, *types.Account) {
	target := types.DownloadTarget{
		Referer:        source.Referer,
		Connections:    cfg.Connections,
		SizeCeiling:    cfg.SizeCeilingBytes,
		AttemptTimeout: cfg.AttemptTimeout(),
	}

	if strings.Contains(arg, "://") {
		target.URL = arg
		target.OutputPath = filepath.Join(cfg.DownloadDir, fmt.Sprintf("pixelfetch_%s", uuid.NewString()))
		return target, nil
	}

	fileName := fmt.Sprintf("pixeldrain_%s", arg)
	var account *types.Account

	info, err := client.FileInfo(ctx, arg, "")
	if err != nil {
		logger.Warn().Err(err).Msg("File info lookup failed, size unknown until download starts.")
	} else {
		if cfg.SizeCeilingBytes > 0 && info.Size > cfg.SizeCeilingBytes {
			logger.Fatal().Int64("size", info.Size).Int64("ceiling", cfg.SizeCeilingBytes).
				Msg("File size exceeds the destination limit.")
		}
		if info.Name != "" {
			fileName = info.Name
		}
		account = accounts.SelectBest(info.Size)
		if account == nil {
			logger.Warn().Msg("No account has enough quota, downloading anonymously.")
		}
	}

	apiKey := ""
	if account != nil {
		apiKey = account.APIKey
	}

	target.URL = client.DirectURL(arg, apiKey)
	target.OutputPath = filepath.Join(cfg.DownloadDir, fileName)
	return target, account
}
