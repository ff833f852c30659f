package appconfig

import (
	"fmt"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/covault/covaultd/internal/config"
	"github.com/covault/covaultd/internal/core/application"
	"github.com/covault/covaultd/internal/core/ports"
	esplora_source "github.com/covault/covaultd/internal/infrastructure/chain-source/esplora"
	rest_signer "github.com/covault/covaultd/internal/infrastructure/signer/rest"
	dbbadger "github.com/covault/covaultd/internal/infrastructure/storage/db/badger"
	"github.com/covault/covaultd/internal/infrastructure/storage/db/inmemory"
	rest_builder "github.com/covault/covaultd/internal/infrastructure/tx-builder/rest"
)

// AppConfig is the struct holding all configuration options for every
// application service (offer, monitor, deposit and archive).
// This data structure acts also as a factory of the mentioned application
// services and the portable services used by them.
// Public config args:
//   - Wallet - (required) The multisig wallet coordinated by this daemon.
//   - RepoManagerType - (required) One of the supported repository manager types.
//   - Datadir - (required with badger) Directory for db and state files.
//   - EsploraURL - (required) Address of the Esplora HTTP API.
//   - EsploraWsURL - (optional) Websocket endpoint for live tip updates.
//   - TxBuilderURL - (required) Address of the external PSBT service.
//   - SignerURL - (required) Address of the hardware-wallet bridge.
type AppConfig struct {
	Version string
	Commit  string
	Date    string

	Wallet          application.WalletConfig
	RepoManagerType string
	Datadir         string
	EsploraURL      string
	EsploraWsURL    string
	TxBuilderURL    string
	SignerURL       string

	MonitorInterval         time.Duration
	DepositInterval         time.Duration
	ArchiveMinConfirmations uint64
	RetentionDays           int
	SignTimeout             time.Duration

	rm          ports.RepoManager
	chainSource ports.ChainSource
	txBuilder   ports.TxBuilder
	signer      ports.Signer
	offerSvc    *application.OfferService
	monitorSvc  *application.MonitorService
	depositSvc  *application.DepositService
	archiveSvc  *application.ArchiveService
}

func (c *AppConfig) Validate() error {
	if len(c.RepoManagerType) == 0 {
		return fmt.Errorf("missing repo manager type")
	}
	if _, ok := config.SupportedDbs[c.RepoManagerType]; !ok {
		return fmt.Errorf(
			"repo manager type not supported, must be one of: %s",
			config.SupportedDbs,
		)
	}
	if c.RepoManagerType == "badger" && c.Datadir == "" {
		return fmt.Errorf("missing datadir")
	}
	if c.EsploraURL == "" {
		return fmt.Errorf("missing esplora url")
	}
	if c.TxBuilderURL == "" {
		return fmt.Errorf("missing tx builder url")
	}
	if c.SignerURL == "" {
		return fmt.Errorf("missing signer url")
	}
	if c.MonitorInterval <= 0 {
		return fmt.Errorf("missing monitor interval")
	}
	if c.DepositInterval <= 0 {
		return fmt.Errorf("missing deposit interval")
	}
	if c.ArchiveMinConfirmations == 0 {
		return fmt.Errorf("missing archive confirmation threshold")
	}
	if c.RetentionDays <= 0 {
		return fmt.Errorf("missing retention days")
	}
	if _, err := c.repoManager(); err != nil {
		return err
	}
	if _, err := c.chainSourceService(); err != nil {
		return err
	}
	if _, err := c.txBuilderService(); err != nil {
		return err
	}
	if _, err := c.signerService(); err != nil {
		return err
	}
	if _, err := c.offerService(); err != nil {
		return err
	}
	return nil
}

func (c *AppConfig) RepoManager() ports.RepoManager {
	return c.rm
}

func (c *AppConfig) ChainSource() ports.ChainSource {
	return c.chainSource
}

func (c *AppConfig) OfferService() *application.OfferService {
	svc, _ := c.offerService()
	return svc
}

func (c *AppConfig) MonitorService() *application.MonitorService {
	return c.monitorService()
}

func (c *AppConfig) DepositService() *application.DepositService {
	return c.depositService()
}

func (c *AppConfig) ArchiveService() *application.ArchiveService {
	return c.archiveService()
}

func (c *AppConfig) BuildInfo() string {
	version := "dev"
	if c.Version != "" {
		version = c.Version
	}
	commit := "none"
	if c.Commit != "" {
		commit = c.Commit
	}
	date := "unknown"
	if c.Date != "" {
		date = c.Date
	}
	return fmt.Sprintf("version %s, commit %s, date %s", version, commit, date)
}

func (c *AppConfig) repoManager() (ports.RepoManager, error) {
	if c.rm != nil {
		return c.rm, nil
	}

	switch c.RepoManagerType {
	case "inmemory":
		c.rm = inmemory.NewRepoManager()
		return c.rm, nil
	case "badger":
		rm, err := dbbadger.NewRepoManager(
			filepath.Join(c.Datadir, config.DbLocation), log.New(),
		)
		if err != nil {
			return nil, err
		}
		c.rm = rm
		return c.rm, nil
	default:
		return nil, fmt.Errorf("unknown repo manager type")
	}
}

func (c *AppConfig) chainSourceService() (ports.ChainSource, error) {
	if c.chainSource != nil {
		return c.chainSource, nil
	}

	chainSource, err := esplora_source.NewService(esplora_source.ServiceArgs{
		BaseURL: c.EsploraURL,
		WsURL:   c.EsploraWsURL,
	})
	if err != nil {
		return nil, err
	}
	c.chainSource = chainSource
	return c.chainSource, nil
}

func (c *AppConfig) txBuilderService() (ports.TxBuilder, error) {
	if c.txBuilder != nil {
		return c.txBuilder, nil
	}

	txBuilder, err := rest_builder.NewService(c.TxBuilderURL, 0)
	if err != nil {
		return nil, err
	}
	c.txBuilder = txBuilder
	return c.txBuilder, nil
}

func (c *AppConfig) signerService() (ports.Signer, error) {
	if c.signer != nil {
		return c.signer, nil
	}

	signer, err := rest_signer.NewService(c.SignerURL, c.SignTimeout)
	if err != nil {
		return nil, err
	}
	c.signer = signer
	return c.signer, nil
}

func (c *AppConfig) offerService() (*application.OfferService, error) {
	if c.offerSvc != nil {
		return c.offerSvc, nil
	}

	rm, _ := c.repoManager()
	chainSource, _ := c.chainSourceService()
	txBuilder, _ := c.txBuilderService()
	signer, _ := c.signerService()
	svc, err := application.NewOfferService(
		rm, chainSource, txBuilder, signer, c.Wallet, c.SignTimeout,
	)
	if err != nil {
		return nil, err
	}
	c.offerSvc = svc
	return c.offerSvc, nil
}

func (c *AppConfig) monitorService() *application.MonitorService {
	if c.monitorSvc != nil {
		return c.monitorSvc
	}

	rm, _ := c.repoManager()
	chainSource, _ := c.chainSourceService()
	c.monitorSvc = application.NewMonitorService(
		rm, chainSource, c.archiveService(),
		c.MonitorInterval, c.ArchiveMinConfirmations,
	)
	return c.monitorSvc
}

func (c *AppConfig) depositService() *application.DepositService {
	if c.depositSvc != nil {
		return c.depositSvc
	}

	rm, _ := c.repoManager()
	chainSource, _ := c.chainSourceService()
	c.depositSvc = application.NewDepositService(
		rm, chainSource, c.Wallet.Addresses, c.DepositInterval,
	)
	if c.Datadir != "" {
		c.depositSvc = c.depositSvc.WithBaselineFile(
			filepath.Join(c.Datadir, "deposit-baseline.json"),
		)
	}
	return c.depositSvc
}

func (c *AppConfig) archiveService() *application.ArchiveService {
	if c.archiveSvc != nil {
		return c.archiveSvc
	}

	rm, _ := c.repoManager()
	c.archiveSvc = application.NewArchiveService(rm)
	return c.archiveSvc
}
