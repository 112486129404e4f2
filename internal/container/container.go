package container

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/videoflow-gin/internal/api"
	"github.com/mautops/videoflow-gin/internal/auth"
	"github.com/mautops/videoflow-gin/internal/config"
	"github.com/mautops/videoflow-gin/internal/database"
	"github.com/mautops/videoflow-gin/internal/docstore"
	"github.com/mautops/videoflow-gin/internal/integration"
	"github.com/mautops/videoflow-gin/internal/lock"
	"github.com/mautops/videoflow-gin/internal/metrics"
	"github.com/mautops/videoflow-gin/internal/provider"
	"github.com/mautops/videoflow-gin/internal/repository"
	"github.com/mautops/videoflow-gin/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

const (
	leasePrefix     = "videoflow:lock:"
	metricsInterval = 30 * time.Second
)

// Container 依赖注入容器
// 管理所有应用依赖,包括存储、外部服务客户端与业务服务
type Container struct {
	cfg    *config.Config
	logger *logrus.Logger

	db          *gorm.DB      // gorm 存储
	mongoClient *mongo.Client // mongo 存储
	store       docstore.Store
	repos       *repository.Repositories

	redis     redis.UniversalClient
	fgaClient *auth.OpenFGAClient
	authz     service.Authorizer

	registry *provider.PaymentRegistry
	ai       *provider.AIClient
	vod      *provider.VODClient

	dispatcher *service.Dispatcher
	reviews    service.ReviewService
	orders     service.OrderService
	payments   service.PaymentService
	queries    service.QueryService
	statistics service.StatisticsService
	sweeper    *service.Sweeper
	scheduler  *service.SweepScheduler

	publisher *integration.EventPublisher
	collector *metrics.Collector
	started   bool
}

// NewContainer 创建依赖注入容器
// 根据配置初始化所有依赖组件
func NewContainer(cfg *config.Config, logger *logrus.Logger) (*Container, error) {
	c := &Container{cfg: cfg, logger: logger}

	if err := c.initStore(); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initClients(); err != nil {
		c.Close()
		return nil, err
	}
	c.initServices()
	return c, nil
}

// initStore 初始化文档存储
func (c *Container) initStore() error {
	switch c.cfg.Store.Driver {
	case "", "gorm":
		// 默认重试 3 次，初始间隔 1 秒，指数退避
		db, err := database.ConnectWithRetry(c.cfg.Database, 3, time.Second)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		c.db = db
		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		c.store = docstore.NewGormStore(db)

	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		client, err := database.ConnectMongo(ctx, c.cfg.Mongo)
		if err != nil {
			return fmt.Errorf("failed to initialize mongo: %w", err)
		}
		c.mongoClient = client
		if err := database.EnsureMongoIndexes(ctx, client.Database(c.cfg.Mongo.Database)); err != nil {
			return fmt.Errorf("failed to ensure mongo indexes: %w", err)
		}
		c.store = docstore.NewMongoStore(client, c.cfg.Mongo.Database)

	default:
		return fmt.Errorf("unsupported store driver %q", c.cfg.Store.Driver)
	}

	c.repos = repository.New(c.store)
	return nil
}

// initClients 初始化外部服务客户端
func (c *Container) initClients() error {
	var err error

	if c.cfg.Redis.Enabled {
		c.redis = redis.NewClient(&redis.Options{
			Addr:     c.cfg.Redis.Addr,
			Password: c.cfg.Redis.Password,
			DB:       c.cfg.Redis.DB,
		})
	}

	if c.cfg.OpenFGA.Enabled {
		c.fgaClient, err = auth.NewOpenFGAClientWithRetry(c.cfg.OpenFGA.APIURL, c.cfg.OpenFGA.StoreID, c.cfg.OpenFGA.ModelID, 3, time.Second)
		if err != nil {
			return fmt.Errorf("failed to initialize OpenFGA client: %w", err)
		}
		ttl := time.Duration(c.cfg.OpenFGA.CacheTTL) * time.Second
		if ttl <= 0 {
			ttl = 5 * time.Minute
		}
		c.authz = auth.NewCachedOpenFGAClient(c.fgaClient, auth.NewPermissionCache(ttl))
	}

	if c.registry, err = provider.NewPaymentRegistry(c.cfg.Payment); err != nil {
		return fmt.Errorf("failed to initialize payment providers: %w", err)
	}
	if c.ai, err = provider.NewAIClient(c.cfg.AIProvider); err != nil {
		return fmt.Errorf("failed to initialize AI provider: %w", err)
	}
	if c.vod, err = provider.NewVODClient(c.cfg.VOD); err != nil {
		return fmt.Errorf("failed to initialize VOD provider: %w", err)
	}
	return nil
}

// initServices 初始化业务服务
func (c *Container) initServices() {
	jobs := []provider.JobProvider{c.ai, c.vod}

	var locker lock.Locker = lock.NoopLocker{}
	if c.redis != nil {
		locker = lock.NewRedisLease(c.redis, leasePrefix)
	}

	c.dispatcher = service.NewDispatcher(c.repos, jobs, c.cfg.Sweep, c.logger)
	c.reviews = service.NewReviewService(c.repos, c.cfg.Review, c.logger, c.authz)
	c.orders = service.NewOrderService(c.repos, c.registry, c.logger, c.authz)
	c.payments = service.NewPaymentService(c.repos, c.registry, c.dispatcher, c.cfg.Payment, c.logger)
	c.queries = service.NewQueryService(c.repos, c.authz)
	c.statistics = service.NewStatisticsService(c.repos)
	c.sweeper = service.NewSweeper(c.repos, jobs, c.dispatcher, locker, c.cfg.Sweep, c.logger)
	c.scheduler = service.NewSweepScheduler(c.sweeper, c.cfg.Sweep, c.logger)

	if c.cfg.Kafka.Enabled {
		c.publisher = integration.NewEventPublisher(c.repos.Events, integration.NewKafkaWriter(c.cfg.Kafka), c.logger, c.cfg.Kafka.Workers)
	}
	c.collector = metrics.NewCollector(c.db, c.statistics, c.logger, metricsInterval)
}

// Start 启动后台任务: 对账巡检、事件投递、指标收集
func (c *Container) Start(ctx context.Context) {
	c.started = true
	c.scheduler.Start(ctx)
	if c.publisher != nil {
		c.publisher.Start(ctx)
	}
	c.collector.Start()
}

// ApplyConfig 应用热更新的配置
// 只有业务参数可以热更新，连接类配置需要重启
func (c *Container) ApplyConfig(cfg *config.Config) {
	c.reviews.UpdateSettings(cfg.Review)
	c.payments.UpdateSettings(cfg.Payment)
	c.sweeper.UpdateSettings(cfg.Sweep)
	c.scheduler.UpdateSettings(cfg.Sweep)

	if err := c.ai.UpdateStatusMapping(cfg.AIProvider.StatusMapping); err != nil {
		c.logger.WithError(err).Error("Invalid AI provider status mapping, keeping previous mapping")
	}
	if err := c.vod.UpdateStatusMapping(cfg.VOD.StatusMapping); err != nil {
		c.logger.WithError(err).Error("Invalid VOD status mapping, keeping previous mapping")
	}
	c.logger.Info("Configuration applied")
}

// Router 创建 HTTP 路由
func (c *Container) Router() *gin.Engine {
	var fga api.HealthChecker
	if c.fgaClient != nil {
		fga = c.fgaClient
	}

	return api.SetupRoutes(api.RouterDeps{
		Config:        c.cfg,
		Authenticator: api.NewAuthenticator(c.cfg.Keycloak),
		Health:        api.NewHealthController(c.store, c.redis, fga),
		Review:        api.NewReviewController(c.reviews, c.queries),
		Order:         api.NewOrderController(c.orders, c.queries),
		Payment:       api.NewPaymentController(c.payments),
		Admin:         api.NewAdminController(c.scheduler, c.statistics),
	})
}

// Sweeper 获取对账巡检
func (c *Container) Sweeper() *service.Sweeper {
	return c.sweeper
}

// Repositories 获取仓储
func (c *Container) Repositories() *repository.Repositories {
	return c.repos
}

// Close 关闭容器,停止后台任务并释放连接
func (c *Container) Close() error {
	if c.scheduler != nil {
		c.scheduler.Stop()
	}
	if c.publisher != nil {
		c.publisher.Stop()
	}
	// 收集器未启动时 Stop 会一直等待
	if c.started {
		c.collector.Stop()
	}

	if c.redis != nil {
		_ = c.redis.Close()
	}
	if c.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.mongoClient.Disconnect(ctx)
	}
	if c.db != nil {
		_ = database.Close(c.db)
	}
	return nil
}
