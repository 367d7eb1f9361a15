// Package app はアプリケーションの初期化と起動を行う。
// 各ストアを固定の依存順（セッション → 物件 → リース/家賃 → 通知）で構築し、
// 依存グラフを明示的に配線する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/chintai/internal/access"
	"github.com/hitoshi/chintai/internal/alert"
	"github.com/hitoshi/chintai/internal/api"
	"github.com/hitoshi/chintai/internal/config"
	"github.com/hitoshi/chintai/internal/credstore"
	"github.com/hitoshi/chintai/internal/devserver"
	"github.com/hitoshi/chintai/internal/logger"
	"github.com/hitoshi/chintai/internal/metrics"
	"github.com/hitoshi/chintai/internal/model"
	"github.com/hitoshi/chintai/internal/notification"
	"github.com/hitoshi/chintai/internal/resource"
	"github.com/hitoshi/chintai/internal/route"
	"github.com/hitoshi/chintai/internal/session"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込み前にもログを使えるよう、まずデフォルトレベルで初期化する
	logger.SetupDefault(w, "info")

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, cfg.LogLevel)
	return cfg, nil
}

// Client は全ストアと周辺コンポーネントを束ねたアグリゲート。
// UI層はこの構造体の公開フィールドを購読・操作する。
type Client struct {
	Alerts        *alert.Broadcaster
	Session       *session.Store
	Properties    *resource.Store[model.Property]
	Leases        *resource.Store[model.Lease]
	Rents         *resource.Store[model.Rent]
	Notifications *notification.Store
	Access        *access.Evaluator
	Routes        *route.Resolver
	Metrics       *metrics.Collector
}

// NewClient は全依存関係を固定順で配線したClientを生成する。
func NewClient(cfg *config.Config, log *slog.Logger) *Client {
	collector := metrics.NewCollector(prometheus.NewRegistry())
	alerts := alert.NewBroadcaster(cfg.AlertDismissAfter, log, collector)
	creds := credstore.New(cfg.CredentialFile)

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	apiClient := api.NewClient(httpClient, cfg.APIBaseURL, creds, cfg.RequestRate, cfg.RequestBurst, log)

	sessionStore := session.NewStore(apiClient, creds, alerts, log)
	properties := resource.NewPropertyStore(sessionStore, apiClient, alerts, log, collector)
	leases := resource.NewLeaseStore(sessionStore, properties, apiClient, alerts, log, collector)
	rents := resource.NewRentStore(sessionStore, properties, leases, apiClient, alerts, log, collector)
	notifications := notification.NewStore(notification.Config{
		API:          apiClient,
		Session:      sessionStore,
		Alerts:       alerts,
		PollInterval: cfg.NotifyPollInterval,
		PageLimit:    cfg.NotifyPageLimit,
		Logger:       log,
		Collector:    collector,
	})

	return &Client{
		Alerts:        alerts,
		Session:       sessionStore,
		Properties:    properties,
		Leases:        leases,
		Rents:         rents,
		Notifications: notifications,
		Access:        access.NewEvaluator(sessionStore),
		Routes:        route.NewResolver(sessionStore),
		Metrics:       collector,
	}
}

// Start は全ストアの上流監視を開始し、セッション復元を起動する。
// 下流ストアの購読を先に確立してから復元を始めることで、
// 復元の完了通知を全ストアが受け取れることを保証する。
func (c *Client) Start(ctx context.Context) {
	c.Properties.Start(ctx)
	c.Leases.Start(ctx)
	c.Rents.Start(ctx)
	c.Notifications.Start(ctx)
	c.Session.Restore(ctx)
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("DEVSERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("アプリケーションを起動します",
		slog.String("command", string(cmd)),
		slog.String("base_url", cfg.APIBaseURL),
	)

	switch cmd {
	case CommandDevserver:
		return runDevserver(cfg)
	default:
		return runClient(cfg)
	}
}

// runClient はクライアントモードで起動する。
// 全ストアを配線して復元・初回フェッチ・ポーリングを開始し、
// SIGINTまたはSIGTERMシグナルを受信するまで実行を継続する。
func runClient(cfg *config.Config) error {
	client := NewClient(cfg, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	client.Start(ctx)
	slog.Info("クライアントを起動しました",
		slog.String("base_url", cfg.APIBaseURL),
		slog.Duration("poll_interval", cfg.NotifyPollInterval),
	)

	<-stop
	slog.Info("クライアントを停止しています...")

	cancel()
	client.Notifications.StopPolling()
	client.Alerts.Close()

	slog.Info("クライアントを停止しました")
	return nil
}

// runDevserver は開発用APIスタブサーバーモードで起動する。
// メトリクスエンドポイントも同一ポートで公開する。
func runDevserver(cfg *config.Config) error {
	collector := metrics.NewCollector(prometheus.NewRegistry())
	srv := devserver.New(devserver.Config{
		Logger:     slog.Default(),
		RatePerMin: cfg.DevserverRateLimit,
		Metrics:    collector.Handler(),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return srv.Run(ctx, ":"+cfg.DevserverPort)
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// 開発サーバーの /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
