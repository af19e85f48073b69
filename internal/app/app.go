package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"smart_edu_backend/internal/config"
	"smart_edu_backend/internal/controller"
	"smart_edu_backend/internal/repository"
	"smart_edu_backend/internal/repository/inmem"
	"smart_edu_backend/internal/service"
	"smart_edu_backend/pkg/configwatcher"
	"smart_edu_backend/pkg/database"
	"smart_edu_backend/pkg/logger"
	"smart_edu_backend/pkg/monitoring"
	"smart_edu_backend/pkg/retry"
	"smart_edu_backend/pkg/security"
	"smart_edu_backend/pkg/tracing"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	limiter         *security.IPLimiter
	tracer          *sdktrace.TracerProvider
	cancel          context.CancelFunc
	configCallbacks []func(*config.Config)
}

type stores struct {
	assessments service.AssessmentStore
	submissions service.SubmissionStore
	jobs        service.AIJobStore
	users       service.UserStore
	sessions    service.SessionStore
}

type services struct {
	auth       *service.AuthService
	storage    *service.StorageService
	assessment *service.AssessmentService
	submission *service.SubmissionService
	grading    *service.GradingService
	ai         *service.AIService
	aiJobs     *service.AIJobService
	runner     *service.JobRunner
}

type controllers struct {
	auth       *controller.AuthController
	assessment *controller.AssessmentController
	submission *controller.SubmissionController
	grade      *controller.GradeController
	ai         *controller.AIController
	upload     *controller.UploadController
	health     *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func initStores(db *gorm.DB, rdb *redis.Client) *stores {
	if db == nil {
		return memoryStores(rdb)
	}
	st := &stores{
		assessments: repository.NewAssessmentRepository(db),
		submissions: repository.NewSubmissionRepository(db),
		jobs:        repository.NewAIJobRepository(db),
		users:       repository.NewUserRepository(db),
	}
	if rdb != nil {
		st.sessions = repository.NewSessionRepository(rdb)
	} else {
		st.sessions = inmem.NewSessionStore()
	}
	return st
}

func memoryStores(rdb *redis.Client) *stores {
	st := &stores{
		assessments: inmem.NewAssessmentStore(),
		submissions: inmem.NewSubmissionStore(),
		jobs:        inmem.NewAIJobStore(),
		users:       inmem.NewUserStore(),
		sessions:    inmem.NewSessionStore(),
	}
	if rdb != nil {
		st.sessions = repository.NewSessionRepository(rdb)
	}
	return st
}

func initServices(cfg *config.Config, st *stores, provider service.AIProvider) *services {
	s := &services{}

	s.storage = service.NewStorageService(cfg)
	s.auth = service.NewAuthService(st.users, st.sessions, cfg.JWT)
	s.assessment = service.NewAssessmentService(st.assessments, st.submissions)
	s.submission = service.NewSubmissionService(st.submissions, st.assessments, cfg.Grading.RejectLate)
	s.grading = service.NewGradingService(st.submissions, st.assessments)

	policy := retry.Default(service.IsUpstreamTimeout)
	if cfg.Jobs.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.Jobs.MaxAttempts
	}
	if cfg.Jobs.BackoffSeconds > 0 {
		policy.Backoff = retry.Linear(time.Duration(cfg.Jobs.BackoffSeconds) * time.Second)
	}
	s.ai = service.NewAIService(provider, cfg.AI.Timeout(), policy)

	s.runner = service.NewJobRunner(st.jobs, cfg.Jobs.Workers, cfg.Jobs.QueueSize)
	s.aiJobs = service.NewAIJobService(s.runner, st.jobs, s.ai, st.assessments, st.submissions, s.grading)

	return s
}

func initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:       controller.NewAuthController(s.auth),
		assessment: controller.NewAssessmentController(s.assessment),
		submission: controller.NewSubmissionController(s.submission),
		grade:      controller.NewGradeController(s.grading),
		ai:         controller.NewAIController(s.aiJobs),
		upload:     controller.NewUploadController(s.storage),
		health:     controller.NewHealthController(db, rdb, s.ai),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	a.limiter = security.NewIPLimiter(cfg.RateLimit.MaxRequests, window)
	router.Use(a.limiter.Middleware())

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	if cfg.Database.Driver == "memory" {
		logger.Log.Warn("Using in-memory storage, data is lost on restart")
		return nil, nil
	}

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode == gin.DebugMode)
	if err != nil {
		return nil, err
	}

	// release 模式默认不自动迁移，需显式指定 -migrate
	if cfg.Server.Mode != gin.ReleaseMode || cfg.ForceMigrate {
		if err := database.Migrate(db); err != nil {
			return nil, err
		}
		logger.Log.Info("Database migrated")
	}
	return db, nil
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := openDatabase(cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if cfg.MigrateOnly {
		return &App{Config: cfg, DB: db}
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = database.InitRedis(&cfg.Redis)
		if err != nil {
			logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
			log.Fatalf("Failed to initialize redis: %v", err)
		}
	}

	provider, err := service.NewAIProvider(context.Background(), cfg.AI)
	if err != nil {
		logger.Log.Error("AI provider unavailable, AI features disabled", zap.Error(err))
		provider = nil
	}
	if provider == nil {
		logger.Log.Warn("No AI provider configured")
	}

	var tp *sdktrace.TracerProvider
	if cfg.Tracing.Enabled {
		tp, err = tracing.InitTracer(tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app := build(cfg, initStores(db, rdb), provider, db, rdb)
	app.tracer = tp
	return app.start()
}

// build 组装服务和路由，不启动后台任务
func build(cfg *config.Config, st *stores, provider service.AIProvider, db *gorm.DB, rdb *redis.Client) *App {
	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	svcs := initServices(cfg, st, provider)
	app.services = svcs
	ctrls := initControllers(svcs, db, rdb)

	// 监控初始化
	monitoring.Init()

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Server.Mode == gin.DebugMode {
		router.Use(gin.Logger())
	}
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, ctrls)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	app.RegisterConfigCallback(func(newCfg *config.Config) {
		svcs.submission.SetRejectLate(newCfg.Grading.RejectLate)
		logger.Log.Info("Grading policy reloaded", zap.Bool("reject_late", newCfg.Grading.RejectLate))
	})

	return app
}

// start 启动任务执行器、恢复未完成任务、限流清理和配置监听
func (a *App) start() *App {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.services.runner.Start()
	n, err := a.services.runner.Recover(ctx)
	if err != nil {
		logger.Log.Error("Failed to recover AI jobs", zap.Error(err))
	} else if n > 0 {
		logger.Log.Info("Recovered unfinished AI jobs", zap.Int("count", n))
	}

	go a.limiter.RunCleanup(ctx)

	if a.Config.ConfigFile != "" {
		go func() {
			err := configwatcher.WatchConfig(ctx, a.Config.ConfigFile, func(newCfg *config.Config) {
				for _, cb := range a.configCallbacks {
					cb(newCfg)
				}
			})
			if err != nil {
				logger.Log.Error("Config watcher stopped", zap.Error(err))
			}
		}()
	}

	return a
}

// Shutdown 停止后台任务，等待执行中的 AI 任务返回
func (a *App) Shutdown(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	if a.services != nil {
		a.services.runner.Stop()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	a.Shutdown(ctx)
	logger.Log.Info("Server exiting")
}
