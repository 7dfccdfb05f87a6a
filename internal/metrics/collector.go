package metrics

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// SystemMetrics is one snapshot of the resources a fetch run leans
// on: CPU for decoding and compositing, memory for the open mosaics,
// network for tile downloads.
type SystemMetrics struct {
	CPUPercent        float64 // system-wide CPU usage (0-100%)
	ProcessCPUPercent float64 // this process, per-core, can exceed 100%
	MemoryUsedGB      float64
	MemoryTotalGB     float64
	MemoryPercent     float64
	NetRecvMBps       float64
	NetSentMBps       float64
	Timestamp         time.Time
}

// Collector periodically samples system metrics and logs them. It is
// started for the duration of a fetch run and stops with the context.
type Collector struct {
	interval time.Duration
	logger   *zap.Logger
	proc     *process.Process

	lastNetStats *net.IOCountersStat
	lastNetTime  time.Time

	mu          sync.RWMutex
	lastMetrics *SystemMetrics
}

// NewCollector creates a metrics collector.
func NewCollector(interval time.Duration, logger *zap.Logger) *Collector {
	if interval < time.Second {
		interval = 30 * time.Second
	}

	proc, _ := process.NewProcess(int32(os.Getpid()))

	return &Collector{
		interval: interval,
		logger:   logger,
		proc:     proc,
	}
}

// Start begins periodic collection and returns when the context is
// cancelled.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// first sample initializes the network baseline
	c.collect()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("Metrics collection stopped")
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

// GetMetrics returns the last collected snapshot, nil before the
// first sample.
func (c *Collector) GetMetrics() *SystemMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastMetrics
}

func (c *Collector) collect() {
	metrics := &SystemMetrics{
		Timestamp: time.Now(),
	}

	cpuPercent, err := cpu.Percent(0, false)
	if err == nil && len(cpuPercent) > 0 {
		metrics.CPUPercent = cpuPercent[0]
	}

	if c.proc != nil {
		if procCPU, err := c.proc.Percent(0); err == nil {
			metrics.ProcessCPUPercent = procCPU
		}
	}

	vmem, err := mem.VirtualMemory()
	if err == nil {
		metrics.MemoryPercent = vmem.UsedPercent
		metrics.MemoryUsedGB = float64(vmem.Used) / (1024 * 1024 * 1024)
		metrics.MemoryTotalGB = float64(vmem.Total) / (1024 * 1024 * 1024)
	}

	metrics.NetRecvMBps, metrics.NetSentMBps = c.calculateNetRates()

	c.mu.Lock()
	c.lastMetrics = metrics
	c.mu.Unlock()

	c.logger.Info("System metrics",
		zap.Float64("sys_cpu", metrics.CPUPercent),
		zap.Float64("proc_cpu", metrics.ProcessCPUPercent),
		zap.Float64("mem_pct", metrics.MemoryPercent),
		zap.String("mem_used", fmt.Sprintf("%.1f GB", metrics.MemoryUsedGB)),
		zap.String("net_rx", fmt.Sprintf("%.2f MB/s", metrics.NetRecvMBps)),
		zap.String("net_tx", fmt.Sprintf("%.2f MB/s", metrics.NetSentMBps)),
	)
}

// calculateNetRates derives receive/send rates from the aggregate
// interface counters since the previous sample.
func (c *Collector) calculateNetRates() (recvMBps, sentMBps float64) {
	counters, err := net.IOCounters(false)
	if err != nil || len(counters) == 0 {
		return 0, 0
	}

	current := counters[0]
	now := time.Now()

	if c.lastNetStats == nil {
		c.lastNetStats = &current
		c.lastNetTime = now
		return 0, 0
	}

	elapsed := now.Sub(c.lastNetTime).Seconds()
	if elapsed < 0.1 {
		return 0, 0
	}

	last := c.lastNetStats
	// counters can wrap on reset
	if current.BytesRecv >= last.BytesRecv {
		recvMBps = float64(current.BytesRecv-last.BytesRecv) / elapsed / (1024 * 1024)
	}
	if current.BytesSent >= last.BytesSent {
		sentMBps = float64(current.BytesSent-last.BytesSent) / elapsed / (1024 * 1024)
	}

	c.lastNetStats = &current
	c.lastNetTime = now
	return recvMBps, sentMBps
}
