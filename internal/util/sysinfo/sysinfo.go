// Package sysinfo sammelt Systemkennzahlen für den Status-Endpunkt
package sysinfo

import (
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	log "github.com/sirupsen/logrus"
)

// SystemStats sind die Kennzahlen des laufenden Prozesses
type SystemStats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemAllocMB    float64 `json:"mem_alloc_mb"`
	MemSysMB      float64 `json:"mem_sys_mb"`
	NumGoroutines int     `json:"num_goroutines"`
	UptimeSeconds int64   `json:"uptime_seconds"`
}

var (
	mu          sync.Mutex
	lastCPU     float64
	lastCPUTime time.Time
	startTime   = time.Now()
)

// Collect liefert die aktuellen Systemkennzahlen. Der CPU-Wert wird
// höchstens alle 5 Sekunden neu gemessen, die Messung selbst blockiert
// kurz.
func Collect() SystemStats {
	mu.Lock()
	if time.Since(lastCPUTime) > 5*time.Second {
		percentages, err := cpu.Percent(200*time.Millisecond, false)
		if err != nil {
			log.Debugf("Could not read CPU usage: %v", err)
		} else if len(percentages) > 0 {
			lastCPU = percentages[0]
		}
		lastCPUTime = time.Now()
	}
	cpuPercent := lastCPU
	mu.Unlock()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return SystemStats{
		CPUPercent:    cpuPercent,
		MemAllocMB:    float64(mem.Alloc) / 1024 / 1024,
		MemSysMB:      float64(mem.Sys) / 1024 / 1024,
		NumGoroutines: runtime.NumGoroutine(),
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
	}
}
