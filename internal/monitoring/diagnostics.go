package monitoring

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/process"
)

// LogStartupDiagnostics samples the process's CPU and memory usage and logs
// a single diagnostics line. Called after login when the active profile's
// diagnostic level asks for it; quieter levels skip the sampling entirely.
func LogStartupDiagnostics(level string) {
	switch level {
	case "detailed", "debug":
	default:
		return
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn().Err(err).Msg("Diagnostics: could not inspect own process")
		return
	}

	event := log.Info().Str("diagnostic_level", level)
	if cpuPct, err := proc.CPUPercent(); err == nil {
		event = event.Float64("cpu_percent", cpuPct)
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		event = event.Uint64("rss_bytes", mem.RSS)
	}
	if threads, err := proc.NumThreads(); err == nil {
		event = event.Int32("threads", threads)
	}
	event.Msg("Startup diagnostics")
}
