package profiler

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

const (
	minPort = 1024
	maxPort = 49151

	bytesPerGigabyte = 1 << 30
)

// ServiceOpts holds configuration options for the profiler service.
type ServiceOpts struct {
	Port          int
	StatsInterval time.Duration
	Datadir       string
}

func (o ServiceOpts) validate() error {
	if len(o.Datadir) == 0 {
		return fmt.Errorf("missing profiler datadir")
	}
	if o.Port < minPort || o.Port > maxPort {
		return fmt.Errorf("port must be in range [%d, %d]", minPort, maxPort)
	}
	return nil
}

func (o ServiceOpts) address() string {
	return fmt.Sprintf(":%d", o.Port)
}

// ProfilerService exposes the pprof endpoints of the daemon process and
// periodically logs memory and goroutine statistics. On shutdown it dumps
// the default Prometheus metrics to a file in the datadir.
type ProfilerService struct {
	opts   ServiceOpts
	server *http.Server
	stopFn context.CancelFunc

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

// NewService returns a new Profiler instance.
func NewService(opts ServiceOpts) (*ProfilerService, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	// The pprof handlers register themselves on the default mux.
	server := &http.Server{Addr: opts.address()}
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("profiler: %s", format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("profiler: %s", format)
		log.WithError(err).Warnf(format, a...)
	}
	return &ProfilerService{opts, server, nil, logFn, warnFn}, nil
}

// Start starts the profiler.
func (s *ProfilerService) Start() error {
	runtime.SetBlockProfileRate(1)
	go s.server.ListenAndServe()
	ctx, cancelStats := context.WithCancel(context.Background())
	s.collectStatistics(ctx, s.opts.StatsInterval, s.opts.Datadir)
	s.stopFn = cancelStats
	s.log("start at url http://localhost:%d/debug/pprof/", s.opts.Port)
	return nil
}

// Stop stops the profiler.
func (s *ProfilerService) Stop() {
	s.stopFn()
	s.server.Shutdown(context.Background())
	s.log("stop")
}

func (s *ProfilerService) collectStatistics(
	ctx context.Context, interval time.Duration, path string,
) {
	ticker := time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-ticker.C:
				s.logMemoryStatistics()
				s.log("num of go routines: %v", runtime.NumGoroutine())
			case <-ctx.Done():
				ticker.Stop()
				if err := s.dumpPrometheusDefaults(path); err != nil {
					s.warn(err, "error while dumping Prometheus defaults")
				}
				return
			}
		}
	}()
}

func (s *ProfilerService) logMemoryStatistics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	s.log(
		"total allocated: %.3fGB, heap allocated: %.3fGB, "+
			"allocated objects count: %v, freed objects count: %v",
		toGigabytes(memStats.TotalAlloc),
		toGigabytes(memStats.HeapAlloc),
		memStats.Mallocs,
		memStats.Frees,
	)
}

// dumpPrometheusDefaults writes default Prometheus metrics to a file named
// after the current timestamp in the given directory.
func (s *ProfilerService) dumpPrometheusDefaults(path string) error {
	file, err := os.OpenFile(
		filepath.Join(path, time.Now().Format(time.RFC3339)),
		os.O_APPEND|os.O_CREATE|os.O_RDWR,
		0644,
	)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	defer writer.Flush()

	metricFamily, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}
	for _, v := range metricFamily {
		if _, err := writer.WriteString(v.String() + "\n"); err != nil {
			return err
		}
	}

	return nil
}

func toGigabytes(bytes uint64) float64 {
	return float64(bytes) / bytesPerGigabyte
}
