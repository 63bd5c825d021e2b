package stats

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"hostsync/fetcher"
	"hostsync/logger"
	"hostsync/refresh"
	"hostsync/source"
)

// DefaultHistorySize 保留的刷新周期数
const DefaultHistorySize = 20

// CycleSummary 一次刷新周期的摘要
type CycleSummary struct {
	Started     time.Time `json:"started"`
	DurationMs  int64     `json:"duration_ms"`
	Total       int       `json:"total"`
	Updated     int       `json:"updated"`
	NotModified int       `json:"not_modified"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	Cancelled   int       `json:"cancelled"`
}

// Stats 运行统计，实现 refresh.Observer
type Stats struct {
	mu          sync.RWMutex
	history     []CycleSummary
	historySize int
	// 按 location 统计，title 可能重复
	failedItems map[string]*ItemFailures

	updated     int64
	notModified int64
	skipped     int64
	failed      int64
	cycles      int64

	mirrorDir string
	startTime time.Time
	log       *logger.Logger
}

// NewStats 创建新的统计实例
func NewStats(mirrorDir string, historySize int) *Stats {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}

	// 第一次调用 Percent 会返回 0，所以在这里预热一下
	go func() {
		if _, err := cpu.Percent(time.Second, false); err != nil {
			logger.Warnf("无法初始化 CPU 使用率统计: %v", err)
		}
	}()

	return &Stats{
		historySize: historySize,
		failedItems: make(map[string]*ItemFailures),
		mirrorDir:   mirrorDir,
		startTime:   time.Now(),
		log:         logger.With("stats"),
	}
}

func (s *Stats) ItemFinished(item source.Item, outcome fetcher.Outcome, err error) {
	if err != nil {
		atomic.AddInt64(&s.failed, 1)
		s.mu.Lock()
		f, ok := s.failedItems[item.Location]
		if !ok {
			f = &ItemFailures{Location: item.Location}
			s.failedItems[item.Location] = f
		}
		f.Title = item.Title
		f.Count++
		s.mu.Unlock()
		return
	}
	switch outcome {
	case fetcher.OutcomeUpdated:
		atomic.AddInt64(&s.updated, 1)
	case fetcher.OutcomeNotModified:
		atomic.AddInt64(&s.notModified, 1)
	default:
		atomic.AddInt64(&s.skipped, 1)
	}
}

func (s *Stats) CycleFinished(r *refresh.Report) {
	atomic.AddInt64(&s.cycles, 1)

	summary := CycleSummary{
		Started:     r.Started,
		DurationMs:  r.Duration().Milliseconds(),
		Total:       r.Total,
		Updated:     r.Updated,
		NotModified: r.NotModified,
		Skipped:     r.Skipped,
		Failed:      len(r.Errors),
		Cancelled:   len(r.Cancelled),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, summary)
	if len(s.history) > s.historySize {
		s.history = s.history[len(s.history)-s.historySize:]
	}
}

// History 返回最近的周期摘要，最新的在最后
func (s *Stats) History() []CycleSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CycleSummary, len(s.history))
	copy(out, s.history)
	return out
}

// ItemFailures 用于排序的结构体
type ItemFailures struct {
	Title    string `json:"title"`
	Location string `json:"location"`
	Count    int64  `json:"count"`
}

// GetTopFailures 获取失败次数最多的条目
func (s *Stats) GetTopFailures(limit int) []ItemFailures {
	if limit <= 0 {
		return []ItemFailures{}
	}

	s.mu.RLock()
	list := make([]ItemFailures, 0, len(s.failedItems))
	for _, f := range s.failedItems {
		list = append(list, *f)
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].Count != list[j].Count {
			return list[i].Count > list[j].Count
		}
		return list[i].Location < list[j].Location
	})
	if len(list) > limit {
		list = list[:limit]
	}
	return list
}

// MirrorUsage 镜像目录的占用情况
type MirrorUsage struct {
	Files       int     `json:"files"`
	Bytes       int64   `json:"bytes"`
	DiskFreeMB  uint64  `json:"disk_free_mb"`
	DiskUsedPct float64 `json:"disk_used_pct"`
}

// Mirrors 统计镜像目录，目录不存在时返回零值
func (s *Stats) Mirrors() MirrorUsage {
	var usage MirrorUsage
	if s.mirrorDir == "" {
		return usage
	}

	err := filepath.WalkDir(s.mirrorDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return nil
			}
			usage.Files++
			usage.Bytes += info.Size()
		}
		return nil
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warnf("无法统计镜像目录 %s: %v", s.mirrorDir, err)
	}

	if du, err := disk.Usage(s.mirrorDir); err == nil {
		usage.DiskFreeMB = du.Free / 1024 / 1024
		usage.DiskUsedPct = du.UsedPercent
	}
	return usage
}

// GetStats 获取所有统计数据
func (s *Stats) GetStats() map[string]interface{} {
	// 使用非阻塞方式获取CPU使用率
	cpuUsage := 0.0
	cpuUsageCh := make(chan float64, 1)
	go func() {
		usage, err := cpu.Percent(200*time.Millisecond, false)
		if err != nil || len(usage) == 0 {
			cpuUsageCh <- 0
			return
		}
		cpuUsageCh <- usage[0]
	}()
	select {
	case cpuUsage = <-cpuUsageCh:
	case <-time.After(100 * time.Millisecond):
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	sysStats := map[string]interface{}{
		"cpu_cores":       runtime.NumCPU(),
		"cpu_usage_pct":   cpuUsage,
		"mem_total_mb":    0,
		"mem_used_mb":     0,
		"mem_usage_pct":   0.0,
		"go_mem_alloc_mb": memStats.Alloc / 1024 / 1024,
		"goroutines":      runtime.NumGoroutine(),
	}
	if memInfo, err := mem.VirtualMemory(); err == nil {
		sysStats["mem_total_mb"] = memInfo.Total / 1024 / 1024
		sysStats["mem_used_mb"] = memInfo.Used / 1024 / 1024
		sysStats["mem_usage_pct"] = memInfo.UsedPercent
	} else {
		s.log.Warnf("无法获取内存信息: %v", err)
	}

	return map[string]interface{}{
		"cycles":         atomic.LoadInt64(&s.cycles),
		"updated":        atomic.LoadInt64(&s.updated),
		"not_modified":   atomic.LoadInt64(&s.notModified),
		"skipped":        atomic.LoadInt64(&s.skipped),
		"failed":         atomic.LoadInt64(&s.failed),
		"top_failures":   s.GetTopFailures(10),
		"history":        s.History(),
		"mirrors":        s.Mirrors(),
		"system_stats":   sysStats,
		"uptime_seconds": time.Since(s.startTime).Seconds(),
	}
}

// Reset 重置统计
func (s *Stats) Reset() {
	atomic.StoreInt64(&s.updated, 0)
	atomic.StoreInt64(&s.notModified, 0)
	atomic.StoreInt64(&s.skipped, 0)
	atomic.StoreInt64(&s.failed, 0)
	atomic.StoreInt64(&s.cycles, 0)

	s.mu.Lock()
	s.failedItems = make(map[string]*ItemFailures)
	s.history = nil
	s.mu.Unlock()
}
