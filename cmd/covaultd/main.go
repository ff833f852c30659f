package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	appconfig "github.com/covault/covaultd/internal/app-config"
	"github.com/covault/covaultd/internal/config"
	"github.com/covault/covaultd/internal/core/application"
	httpinterface "github.com/covault/covaultd/internal/interfaces/http"
	"github.com/covault/covaultd/pkg/profiler"
)

var (
	// Build info.
	version string
	commit  string
	date    string

	// Config from env vars.
	dbType          = config.GetString(config.DatabaseTypeKey)
	logLevel        = config.GetInt(config.LogLevelKey)
	datadir         = config.GetDatadir()
	port            = config.GetInt(config.PortKey)
	profilerPort    = config.GetInt(config.ProfilerPortKey)
	network         = config.GetString(config.NetworkKey)
	noProfiler      = config.GetBool(config.NoProfilerKey)
	profilerDir     = filepath.Join(datadir, config.ProfilerLocation)
	statsInterval   = time.Duration(config.GetInt(config.StatsIntervalKey)) * time.Second
	esploraUrl      = config.GetEsploraUrl()
	esploraWsUrl    = config.GetString(config.EsploraWsUrlKey)
	txBuilderUrl    = config.GetString(config.TxBuilderUrlKey)
	signerUrl       = config.GetString(config.SignerUrlKey)
	signers         = config.GetStringSlice(config.SignersKey)
	requiredSigs    = config.GetInt(config.RequiredSignaturesKey)
	addresses       = config.GetStringSlice(config.AddressesKey)
	changeAddress   = config.GetString(config.ChangeAddressKey)
	monitorInterval = time.Duration(config.GetInt(config.MonitorIntervalKey)) * time.Second
	depositInterval = time.Duration(config.GetInt(config.DepositIntervalKey)) * time.Second
	archiveMinConfs = config.GetInt(config.ArchiveMinConfirmationsKey)
	retentionDays   = config.GetInt(config.RetentionDaysKey)
	signTimeout     = time.Duration(config.GetInt(config.SignTimeoutKey)) * time.Second
)

func main() {
	log.SetLevel(log.Level(logLevel))

	if profilerEnabled := !noProfiler; profilerEnabled {
		profilerSvc, err := profiler.NewService(profiler.ServiceOpts{
			Port:          profilerPort,
			StatsInterval: statsInterval,
			Datadir:       profilerDir,
		})
		if err != nil {
			log.WithError(err).Fatal("profiler: error while starting")
		}

		profilerSvc.Start()
		defer func() {
			profilerSvc.Stop()
		}()
	}

	signerKeys, err := parseSigners(signers)
	if err != nil {
		log.WithError(err).Fatal("config: invalid signer set")
	}

	appCfg := &appconfig.AppConfig{
		Version: version,
		Commit:  commit,
		Date:    date,
		Wallet: application.WalletConfig{
			Signers:            signerKeys,
			RequiredSignatures: requiredSigs,
			Addresses:          addresses,
			ChangeAddress:      changeAddress,
		},
		RepoManagerType:         dbType,
		Datadir:                 datadir,
		EsploraURL:              esploraUrl,
		EsploraWsURL:            esploraWsUrl,
		TxBuilderURL:            txBuilderUrl,
		SignerURL:               signerUrl,
		MonitorInterval:         monitorInterval,
		DepositInterval:         depositInterval,
		ArchiveMinConfirmations: uint64(archiveMinConfs),
		RetentionDays:           retentionDays,
		SignTimeout:             signTimeout,
	}
	if err := appCfg.Validate(); err != nil {
		log.WithError(err).Fatal("config: error while validating")
	}

	log.Infof("covaultd %s", appCfg.BuildInfo())
	log.Infof("network: %s", network)

	depositSvc := appCfg.DepositService()
	if err := depositSvc.Backfill(context.Background()); err != nil {
		log.WithError(err).Warn("deposit: error while backfilling history")
	}
	depositSvc.Start()
	defer depositSvc.Stop()

	monitorSvc := appCfg.MonitorService()
	monitorSvc.Start()
	defer monitorSvc.Stop()

	cleanupDone := make(chan struct{})
	defer close(cleanupDone)
	go runCleanupLoop(appCfg, cleanupDone)

	apiServer := httpinterface.NewServer(
		appCfg.OfferService(), monitorSvc, depositSvc, appCfg.ArchiveService(),
	)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: apiServer.Handler(),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("api: error while serving")
		}
	}()
	log.Infof("api: listening on %s", server.Addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("api: error while shutting down")
	}

	appCfg.ChainSource().Close()
	appCfg.RepoManager().Close()
	log.Info("shutdown")
}

// runCleanupLoop removes archived transactions older than the retention
// window once a day until done is closed.
func runCleanupLoop(appCfg *appconfig.AppConfig, done <-chan struct{}) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			count, err := appCfg.ArchiveService().Cleanup(
				context.Background(), appCfg.RetentionDays,
			)
			if err != nil {
				log.WithError(err).Warn("archive: error while cleaning up")
				continue
			}
			if count > 0 {
				log.Debugf("archive: removed %d expired transactions", count)
			}
		case <-done:
			return
		}
	}
}

// parseSigners parses the signer set from the config format
// "fingerprint:derivation_path".
func parseSigners(raw []string) ([]application.SignerKey, error) {
	keys := make([]application.SignerKey, 0, len(raw))
	for _, s := range raw {
		parts := strings.SplitN(s, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf(
				"invalid signer %q, must be in the form fingerprint:derivation_path", s,
			)
		}
		keys = append(keys, application.SignerKey{
			Fingerprint:    parts[0],
			DerivationPath: parts[1],
		})
	}
	return keys, nil
}
