package api

import (
	"os"
	"runtime"
	"time"

	"github.com/AgaveCraft/PlotSquared/internal/queue"
	"github.com/shirou/gopsutil/v3/process"
)

// Health - ответ /health.
type Health struct {
	Status     string    `json:"status"`
	Time       time.Time `json:"time"`
	Uptime     string    `json:"uptime"`
	CPUPercent float64   `json:"cpu_percent,omitempty"`
	RSSMB      float64   `json:"rss_mb,omitempty"`
	HeapMB     float64   `json:"heap_mb"`
	Goroutines int       `json:"goroutines"`
	Worlds     int       `json:"worlds"`
	// Pending суммирует невыполненные задачи всех очередей миров.
	Pending int `json:"pending_tasks"`
	Busy    int `json:"busy_worlds"`
}

// healthProbe снимает показатели процесса через gopsutil.
type healthProbe struct {
	started time.Time
	proc    *process.Process // nil, если gopsutil не видит процесс
}

func newHealthProbe() *healthProbe {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		p = nil
	}
	return &healthProbe{started: time.Now(), proc: p}
}

func (hp *healthProbe) snapshot(queues []queue.Stats) Health {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	h := Health{
		Status:     "ok",
		Time:       time.Now().UTC(),
		Uptime:     time.Since(hp.started).Round(time.Second).String(),
		HeapMB:     float64(ms.HeapAlloc) / (1 << 20),
		Goroutines: runtime.NumGoroutine(),
		Worlds:     len(queues),
	}
	for _, q := range queues {
		h.Pending += q.Pending
		if q.Running {
			h.Busy++
		}
	}
	if hp.proc != nil {
		if pct, err := hp.proc.CPUPercent(); err == nil {
			h.CPUPercent = pct
		}
		if mem, err := hp.proc.MemoryInfo(); err == nil {
			h.RSSMB = float64(mem.RSS) / (1 << 20)
		}
	}
	return h
}
