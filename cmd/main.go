package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hostsync/config"
	"hostsync/fetcher"
	"hostsync/logger"
	"hostsync/metrics"
	"hostsync/refresh"
	"hostsync/source"
	"hostsync/stats"
	"hostsync/webapi"
)

func main() {
	// 定义命令行参数
	configPath := flag.String("c", "config.yaml", "配置文件路径")
	workDir := flag.String("w", "", "工作目录")
	once := flag.Bool("once", false, "只执行一次刷新后退出")
	help := flag.Bool("h", false, "显示帮助信息")

	flag.Parse()

	if *help {
		printHelp()
		os.Exit(0)
	}

	// 确定工作目录和配置文件路径
	effectiveWorkDir := *workDir
	if effectiveWorkDir == "" {
		var err error
		effectiveWorkDir, err = os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "错误：无法获取当前工作目录：%v\n", err)
			os.Exit(1)
		}
	}

	effectiveConfigPath := *configPath
	if !filepath.IsAbs(effectiveConfigPath) {
		effectiveConfigPath = filepath.Join(effectiveWorkDir, effectiveConfigPath)
	}

	cfg, err := config.LoadConfig(effectiveConfigPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// 立即设置日志级别，确保后续所有日志都遵循配置
	logger.SetLevel(cfg.System.LogLevel)
	logger.Infof("Log level set to: %s", cfg.System.LogLevel)

	mirrorDir := cfg.Lists.MirrorDir
	if !filepath.IsAbs(mirrorDir) {
		mirrorDir = filepath.Join(effectiveWorkDir, mirrorDir)
	}

	f := fetcher.New(fetcher.Options{
		Client:    fetcher.NewHTTPClient(cfg.HTTP.ConnectTimeout(), cfg.HTTP.ReadTimeout()),
		Resolver:  source.Resolver{Dir: mirrorDir},
		UserAgent: cfg.HTTP.UserAgent,
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	s := stats.NewStats(mirrorDir, cfg.Stats.HistorySize)

	manager := refresh.NewManager(refresh.Options{
		Fetcher:          f,
		MirrorDir:        mirrorDir,
		PoolSize:         cfg.Refresh.PoolSize,
		LivenessInterval: cfg.Refresh.LivenessInterval(),
		Progress:         refresh.MultiSink{collector, refresh.NewLogSink()},
		Observer:         refresh.MultiObserver{collector, s},
	})
	job := func() refresh.Job { return refresh.Job{Items: cfg.Items()} }

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		code := runOnce(ctx, manager, job())
		stop()
		os.Exit(code)
	}

	scheduler := refresh.NewScheduler(manager, job, cfg.Lists.UpdateInterval())

	// 启动 Web API 服务（可选）
	var webServer *webapi.Server
	if cfg.WebAPI.Enabled {
		webServer = webapi.NewServer(webapi.Deps{
			Config:    cfg,
			Refresh:   manager,
			Scheduler: scheduler,
			Mirrors:   f,
			Stats:     s,
			Metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		})
		go func() {
			if err := webServer.Start(); err != nil {
				logger.Errorf("Web API server failed: %v", err)
				stop()
			}
		}()
	}

	logger.Infof("hostsync started: %d lists, mirrors in %s", len(cfg.Lists.Items), mirrorDir)

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		scheduler.Run(ctx)
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	if webServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := webServer.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Failed to stop Web API server: %v", err)
		}
		cancel()
	}

	// 正在下载的条目会继续完成，不会留下半写入的文件
	<-schedulerDone
	logger.Info("hostsync stopped.")
}

// runOnce 执行一次刷新，有条目失败时返回非零退出码
func runOnce(ctx context.Context, manager *refresh.Manager, job refresh.Job) int {
	report, err := manager.Start(ctx, job)
	if err != nil {
		logger.Errorf("Refresh failed to start: %v", err)
		return 2
	}
	for _, msg := range report.Messages() {
		fmt.Fprintln(os.Stderr, msg)
	}
	if report.Failed() {
		return 1
	}
	return 0
}

func printHelp() {
	fmt.Print(`hostsync - 规则列表同步服务

使用方法：
  hostsync [选项]

选项：
  -c <路径>       配置文件路径（默认：config.yaml）
  -w <路径>       工作目录（默认：当前目录）
  -once           只执行一次刷新，输出错误后退出
  -h              显示此帮助信息

示例：
  # 以服务方式运行，按配置定时刷新
  hostsync -c /etc/hostsync/config.yaml

  # 刷新一次，适合 cron
  hostsync -once -c /etc/hostsync/config.yaml
`)
}
