package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/any-hub/cdn-hub/internal/cdn"
	"github.com/any-hub/cdn-hub/internal/config"
	"github.com/any-hub/cdn-hub/internal/logging"
	"github.com/any-hub/cdn-hub/internal/remote"
	"github.com/any-hub/cdn-hub/internal/server"
	"github.com/any-hub/cdn-hub/internal/server/routes"
	"github.com/any-hub/cdn-hub/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["container"] = cfg.Global.Container
		fields["remote"] = cfg.Remote.Type
		fields["credentials"] = cfg.Remote.AuthMode()
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// CLI 启动遵循“配置 → 远端存储 → CDN 实例 → Fiber server”顺序，
	// 所有请求共享同一个上传缓存与监听表。
	svc, err := bootstrap(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化服务失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["container"] = cfg.Global.Container
	fields["remote"] = cfg.Remote.Type
	fields["credentials"] = cfg.Remote.AuthMode()
	fields["root"] = cfg.Global.Root
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.serve(ctx, cfg.Global.ListenPort); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := pflag.NewFlagSet("cdn-hub", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVarP(&configFlag, "config", "c", "", "配置文件路径（默认 ./config.toml，可被 CDN_HUB_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVarP(&showVer, "version", "v", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("CDN_HUB_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

// service 聚合启动后需要协同关闭的组件。
type service struct {
	app    *fiber.App
	cdn    *cdn.CDN
	logger *logrus.Logger
}

func bootstrap(cfg *config.Config, logger *logrus.Logger) (*service, error) {
	httpClient := server.NewRemoteClient(cfg)
	store, err := remote.New(cfg.Remote, httpClient, logger)
	if err != nil {
		return nil, fmt.Errorf("构建远端存储失败: %w", err)
	}
	diskStore, _ := store.(*remote.DiskStore)

	headers := cdn.DefaultHeaders()
	if cfg.Global.CompressUploads {
		store = remote.WithGzip(store)
	} else {
		// 未压缩时不能声明 gzip，否则浏览器会解码失败。
		headers.Del("Content-Encoding")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := cdn.NewMetrics(reg)
	if err != nil {
		return nil, err
	}

	instance, err := cdn.New(cdn.Options{
		Container:            cfg.Global.Container,
		Store:                store,
		Root:                 cfg.Global.Root,
		Debug:                cfg.Global.Debug,
		Logger:               logger,
		Headers:              headers,
		UploadTimeout:        cfg.Global.UploadTimeout.DurationValue(),
		MaxConcurrentUploads: cfg.Global.MaxConcurrentUploads,
		Metrics:              metrics,
	})
	if err != nil {
		return nil, err
	}

	app, err := server.NewApp(server.AppOptions{
		Logger:    logger,
		CDN:       instance,
		Immediate: cfg.Global.Immediate,
	})
	if err != nil {
		_ = instance.Destroy()
		return nil, err
	}
	routes.RegisterCDNRoutes(app, instance, reg)
	routes.RegisterOriginRoutes(app, diskStore)

	return &service{app: app, cdn: instance, logger: logger}, nil
}

// serve 启动容器初始化与 HTTP 监听；初始化失败或收到信号都会关闭服务并注销文件监听。
func (s *service) serve(ctx context.Context, port int) error {
	initErr := make(chan error, 1)
	s.cdn.Init(ctx, func(_ *cdn.CDN, err error) {
		if err != nil {
			initErr <- err
			_ = s.app.Shutdown()
		}
	})

	go func() {
		<-ctx.Done()
		_ = s.app.Shutdown()
	}()

	s.logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	listenErr := s.app.Listen(fmt.Sprintf(":%d", port), fiber.ListenConfig{DisableStartupMessage: true})

	s.cdn.Wait()
	if err := s.cdn.Destroy(); err != nil {
		s.logger.WithError(err).WithField("action", "shutdown").Warn("文件监听注销不完整")
	}

	select {
	case err := <-initErr:
		return errors.Join(err, listenErr)
	default:
		return listenErr
	}
}
