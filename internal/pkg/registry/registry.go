package registry

import (
	"context"
	"fmt"
	"sort"

	"peb_market/internal/pkg/config"
	"peb_market/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ModuleContext 模块初始化所需的上下文
type ModuleContext struct {
	DB       *gorm.DB
	ReportDB *sqlx.DB // 对账等只读汇总查询
	Redis    *redis.Client
	Router   *gin.Engine
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *metrics.MetricsCollector

	// 模块之间通过 Provide/Lookup 共享服务，例如 order 依赖 settlement
	services map[string]interface{}
	closers  []func(ctx context.Context) error
}

// OnShutdown 注册退出时的清理函数，按注册的逆序执行
func (c *ModuleContext) OnShutdown(fn func(ctx context.Context) error) {
	c.closers = append(c.closers, fn)
}

// Shutdown 执行全部清理函数，返回第一个错误
func (c *ModuleContext) Shutdown(ctx context.Context) error {
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Provide 暴露一个服务给后初始化的模块
func (c *ModuleContext) Provide(name string, svc interface{}) {
	if c.services == nil {
		c.services = make(map[string]interface{})
	}
	c.services[name] = svc
}

// Lookup 查找已暴露的服务
func (c *ModuleContext) Lookup(name string) (interface{}, bool) {
	svc, ok := c.services[name]
	return svc, ok
}

// Resolve 按名称查找服务并断言类型
func Resolve[T any](ctx *ModuleContext, name string) (T, error) {
	var zero T
	svc, ok := ctx.Lookup(name)
	if !ok {
		return zero, fmt.Errorf("%s is not initialized", name)
	}
	typed, ok := svc.(T)
	if !ok {
		return zero, fmt.Errorf("%s has unexpected type %T", name, svc)
	}
	return typed, nil
}

// Module 模块接口
type Module interface {
	// Name 返回模块名称
	Name() string

	// Init 初始化模块（依赖注入、路由注册等）
	Init(ctx *ModuleContext) error

	// Priority 返回初始化优先级（数字越小越先初始化）
	// 例如：wallet 需要先于 settlement，settlement 需要先于 order
	Priority() int
}

// moduleRegistry 全局模块注册表
var moduleRegistry = make(map[string]Module)

// Register 注册模块
func Register(module Module) {
	moduleRegistry[module.Name()] = module
}

// GetModules 获取所有已注册的模块
func GetModules() map[string]Module {
	return moduleRegistry
}

// InitModules 按优先级初始化所有模块
func InitModules(ctx *ModuleContext) error {
	modules := make([]Module, 0, len(moduleRegistry))
	for _, m := range moduleRegistry {
		modules = append(modules, m)
	}

	sort.SliceStable(modules, func(i, j int) bool {
		if modules[i].Priority() != modules[j].Priority() {
			return modules[i].Priority() < modules[j].Priority()
		}
		return modules[i].Name() < modules[j].Name()
	})

	for _, module := range modules {
		if err := module.Init(ctx); err != nil {
			return err
		}
		if ctx.Logger != nil {
			ctx.Logger.Info("Module initialized", zap.String("module", module.Name()))
		}
	}

	return nil
}
