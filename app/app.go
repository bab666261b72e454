// Package app 管理服务的启动、信号处理与优雅关闭。
package app

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wyfcoding/optionlab/server"
	"golang.org/x/sync/errgroup"
)

const stopTimeout = 10 * time.Second

// App 应用容器：一组服务器加一组生命周期钩子。
type App struct {
	name      string
	logger    *slog.Logger
	servers   []server.Server
	lifecycle *Lifecycle
}

// New 创建应用实例。
func New(name string, logger *slog.Logger, opts ...Option) *App {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	lc := NewLifecycle(logger)
	for _, h := range o.hooks {
		lc.Append(h)
	}
	return &App{name: name, logger: logger, servers: o.servers, lifecycle: lc}
}

// Run 监听 SIGINT/SIGTERM 并运行到退出。
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext 启动钩子与全部服务器，阻塞到 ctx 取消或任一服务器失败，
// 随后停止服务器并逆序执行清理。
func (a *App) RunContext(ctx context.Context) error {
	a.logger.Info("Application starting...", "name", a.name, "pid", os.Getpid())

	if err := a.lifecycle.Start(ctx); err != nil {
		_ = a.lifecycle.Stop(context.Background())
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range a.servers {
		g.Go(func() error {
			return srv.Start(gctx)
		})
	}
	runErr := g.Wait()
	if runErr != nil {
		a.logger.Error("server exited with error", "error", runErr)
	}
	a.logger.Info("shutting down application", "name", a.name)

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	var errs []error
	errs = append(errs, runErr)
	for _, srv := range a.servers {
		// Start 已在 ctx 取消时关闭服务器，这里兜底处理失败退出的情况。
		if err := srv.Stop(stopCtx); err != nil {
			a.logger.Error("server failed to stop", "error", err)
			errs = append(errs, err)
		}
	}
	errs = append(errs, a.lifecycle.Stop(stopCtx))

	if err := errors.Join(errs...); err != nil {
		return err
	}
	a.logger.Info("application shut down gracefully")
	return nil
}
