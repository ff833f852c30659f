package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/spf13/viper"
)

const (
	// DatadirKey is the key to customize the covault datadir.
	DatadirKey = "DATADIR"
	// DatabaseTypeKey is the key to customize the type of database to use.
	DatabaseTypeKey = "DATABASE_TYPE"
	// PortKey is the key to customize the port where the daemon will be
	// listening to.
	PortKey = "PORT"
	// ProfilerPortKey is the key to customize the port where the profiler
	// will be listening to.
	ProfilerPortKey = "PROFILER_PORT"
	// NoProfilerKey is the key to disable Prometheus profiling.
	NoProfilerKey = "NO_PROFILER"
	// StatsIntervalKey is the key to customize the interval for the profiler
	// to gather profiling stats.
	StatsIntervalKey = "STATS_INTERVAL"
	// LogLevelKey is the key to customize the log level to catch more
	// specific or more high level logs.
	LogLevelKey = "LOG_LEVEL"
	// NetworkKey is the key to customize the Bitcoin network.
	NetworkKey = "NETWORK"
	// EsploraUrlKey is the key for the esplora block explorer consumed by
	// the chain source.
	EsploraUrlKey = "ESPLORA_URL"
	// EsploraWsUrlKey is the key for the optional websocket endpoint used to
	// keep the chain tip fresh without polling.
	EsploraWsUrlKey = "ESPLORA_WS_URL"
	// MonitorIntervalKey is the key to customize the polling interval of the
	// confirmation monitor.
	MonitorIntervalKey = "MONITOR_INTERVAL_IN_SECONDS"
	// DepositIntervalKey is the key to customize the polling interval of the
	// incoming deposit detector.
	DepositIntervalKey = "DEPOSIT_INTERVAL_IN_SECONDS"
	// ArchiveMinConfirmationsKey is the key to customize the number of
	// confirmations after which a monitored transaction is archived.
	ArchiveMinConfirmationsKey = "ARCHIVE_MIN_CONFIRMATIONS"
	// RetentionDaysKey is the key to customize how long archived
	// transactions are kept before cleanup.
	RetentionDaysKey = "RETENTION_DAYS"
	// SignersKey is the key for the authorized signer set, as a list of
	// fingerprint:derivation_path pairs.
	SignersKey = "SIGNERS"
	// RequiredSignaturesKey is the key for the signature quorum.
	RequiredSignaturesKey = "REQUIRED_SIGNATURES"
	// AddressesKey is the key for the list of watched wallet addresses.
	AddressesKey = "ADDRESSES"
	// ChangeAddressKey is the key for the change address of new spends.
	ChangeAddressKey = "CHANGE_ADDRESS"
	// SignTimeoutKey is the key to customize the waiting time for a signer
	// device to answer a signing request.
	SignTimeoutKey = "SIGN_TIMEOUT_IN_SECONDS"
	// TxBuilderUrlKey is the key for the address of the external PSBT
	// service crafting, combining and finalizing transactions.
	TxBuilderUrlKey = "TX_BUILDER_URL"
	// SignerUrlKey is the key for the address of the external
	// hardware-wallet bridge answering signing requests.
	SignerUrlKey = "SIGNER_URL"

	// DbLocation is the folder inside the datadir containing db files.
	DbLocation = "db"
	// ProfilerLocation is the folder inside the datadir containing profiler
	// stats files.
	ProfilerLocation = "stats"
)

var (
	vip *viper.Viper

	defaultDatadir                 = btcutil.AppDataDir("covaultd", false)
	defaultDbType                  = "badger"
	defaultPort                    = 18000
	defaultProfilerPort            = 18001
	defaultLogLevel                = 4
	defaultNetwork                 = "mainnet"
	defaultStatsInterval           = 600 // 10 minutes
	defaultMonitorInterval         = 60
	defaultDepositInterval         = 60
	defaultArchiveMinConfirmations = 6
	defaultRetentionDays           = 30
	defaultSignTimeout             = 120

	defaultEsploraUrlByNetwork = map[string]string{
		"mainnet": "https://blockstream.info/api",
		"testnet": "https://blockstream.info/testnet/api",
		"regtest": "http://localhost:3002",
	}

	SupportedDbs = supportedType{
		"badger":   {},
		"inmemory": {},
	}
	supportedNetworks = supportedType{
		"mainnet": {},
		"testnet": {},
		"regtest": {},
	}
)

func init() {
	vip = viper.New()
	vip.SetEnvPrefix("COVAULT")
	vip.AutomaticEnv()

	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(DatabaseTypeKey, defaultDbType)
	vip.SetDefault(PortKey, defaultPort)
	vip.SetDefault(ProfilerPortKey, defaultProfilerPort)
	vip.SetDefault(NoProfilerKey, false)
	vip.SetDefault(StatsIntervalKey, defaultStatsInterval)
	vip.SetDefault(LogLevelKey, defaultLogLevel)
	vip.SetDefault(NetworkKey, defaultNetwork)
	vip.SetDefault(MonitorIntervalKey, defaultMonitorInterval)
	vip.SetDefault(DepositIntervalKey, defaultDepositInterval)
	vip.SetDefault(ArchiveMinConfirmationsKey, defaultArchiveMinConfirmations)
	vip.SetDefault(RetentionDaysKey, defaultRetentionDays)
	vip.SetDefault(SignTimeoutKey, defaultSignTimeout)

	if err := validate(); err != nil {
		log.Fatalf("invalid config: %s", err)
	}

	if err := initDatadir(); err != nil {
		log.Fatalf("config: error while creating datadir: %s", err)
	}
}

func validate() error {
	datadir := GetString(DatadirKey)
	if len(datadir) <= 0 {
		return fmt.Errorf("datadir must not be null")
	}

	dbType := GetString(DatabaseTypeKey)
	if _, ok := SupportedDbs[dbType]; !ok {
		return fmt.Errorf("unsupported database type, must be one of %s", SupportedDbs)
	}

	net := GetString(NetworkKey)
	if _, ok := supportedNetworks[net]; !ok {
		return fmt.Errorf("unknown network, must be one of %s", supportedNetworks)
	}

	port := GetInt(PortKey)
	noProfiler := GetBool(NoProfilerKey)
	if !noProfiler {
		profilerPort := GetInt(ProfilerPortKey)
		if port == profilerPort {
			return fmt.Errorf("port and profiler port must not be equal")
		}
	}

	if interval := GetInt(MonitorIntervalKey); interval <= 0 {
		return fmt.Errorf("monitor interval must be a positive number of seconds")
	}
	if interval := GetInt(DepositIntervalKey); interval <= 0 {
		return fmt.Errorf("deposit interval must be a positive number of seconds")
	}
	if days := GetInt(RetentionDaysKey); days <= 0 {
		return fmt.Errorf("retention days must be a positive number")
	}

	return nil
}

func GetDatadir() string {
	return filepath.Join(GetString(DatadirKey), GetString(NetworkKey))
}

// GetEsploraUrl returns the configured esplora address, falling back to the
// public instance for the configured network.
func GetEsploraUrl() string {
	if url := GetString(EsploraUrlKey); url != "" {
		return url
	}
	return defaultEsploraUrlByNetwork[GetString(NetworkKey)]
}

func GetString(key string) string {
	return vip.GetString(key)
}

func GetInt(key string) int {
	return vip.GetInt(key)
}

func GetBool(key string) bool {
	return vip.GetBool(key)
}

func GetStringSlice(key string) []string {
	return vip.GetStringSlice(key)
}

func Set(key string, val interface{}) {
	vip.Set(key, val)
}

func Unset(key string) {
	vip.Set(key, nil)
}

func IsSet(key string) bool {
	return vip.IsSet(key)
}

func initDatadir() error {
	datadir := GetDatadir()
	if err := makeDirectoryIfNotExists(filepath.Join(datadir, DbLocation)); err != nil {
		return err
	}

	noProfiler := GetBool(NoProfilerKey)
	if !noProfiler {
		if err := makeDirectoryIfNotExists(filepath.Join(datadir, ProfilerLocation)); err != nil {
			return err
		}
	}
	return nil
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	return strings.Join(types, " | ")
}
