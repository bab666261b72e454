package app

import (
	"context"

	"github.com/wyfcoding/optionlab/server"
)

// Option 配置 App 的函数式选项。
type Option func(*options)

type options struct {
	servers []server.Server
	hooks   []Hook
}

// WithServer 添加由 App 启停的服务器。
func WithServer(servers ...server.Server) Option {
	return func(o *options) {
		o.servers = append(o.servers, servers...)
	}
}

// WithCleanup 添加关闭时执行的清理函数，按注册的逆序执行。
func WithCleanup(name string, cleanup func()) Option {
	return func(o *options) {
		o.hooks = append(o.hooks, Hook{Name: name, OnStop: func(context.Context) error {
			cleanup()
			return nil
		}})
	}
}

// WithHook 添加带启动与停止逻辑的生命周期钩子。
func WithHook(h Hook) Option {
	return func(o *options) {
		o.hooks = append(o.hooks, h)
	}
}
