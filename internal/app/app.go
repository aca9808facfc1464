package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yapper-space/core/internal/config"
	"github.com/yapper-space/core/internal/database"
	"github.com/yapper-space/core/internal/modules/ai"
	"github.com/yapper-space/core/internal/modules/autocomment"
	"github.com/yapper-space/core/internal/modules/kaito"
	"github.com/yapper-space/core/internal/modules/twitter"
	pkgcron "github.com/yapper-space/core/internal/pkg/cron"
	jwtpkg "github.com/yapper-space/core/internal/pkg/jwt"
	pkgredis "github.com/yapper-space/core/internal/pkg/redis"
	"github.com/yapper-space/core/internal/pkg/taskqueue"
	"github.com/yapper-space/core/internal/pkg/upstream"
	"github.com/yapper-space/core/internal/session"
	"github.com/yapper-space/core/internal/store"
	"github.com/yapper-space/core/internal/store/gormstore"
	"github.com/yapper-space/core/internal/store/memory"
	"github.com/yapper-space/core/internal/store/supabase"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App holds all application dependencies.
type App struct {
	cfg         *config.AppConfig
	router      *gin.Engine
	db          *gorm.DB
	redis       *pkgredis.Client
	logger      *zap.Logger
	sched       *pkgcron.Scheduler
	autoComment *autocomment.Service
	cancel      context.CancelFunc
}

// services is everything the routes need.
type services struct {
	sessions    *session.Manager
	ai          *ai.Service
	twitter     *twitter.Client
	oauth       *twitter.OAuth
	kaito       *kaito.Client
	autoComment *autocomment.Service
}

// New initializes the application: config -> stores -> services -> routes -> cron.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{cfg: cfg, logger: logger, cancel: cancel}

	rc, err := pkgredis.Connect(ctx, cfg.RedisURL)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("redis: %w", err)
	}
	a.redis = rc

	creds, accounts, err := a.openCredentialStore()
	if err != nil {
		a.closeResources()
		return nil, err
	}

	svcs, err := a.buildServices(creds, accounts)
	if err != nil {
		a.closeResources()
		return nil, err
	}
	a.autoComment = svcs.autoComment

	a.router = a.newRouter()
	a.registerRoutes(svcs)

	a.sched = pkgcron.New(logger.Named("cron"))
	registerCronJobs(a.sched, svcs.autoComment, logger)
	a.sched.Start(ctx)

	return a, nil
}

func (a *App) openCredentialStore() (store.CredentialStore, twitter.AccountStore, error) {
	switch a.cfg.CredentialStore.Driver {
	case config.StoreDriverMySQL:
		db, err := database.Connect(a.cfg, true)
		if err != nil {
			return nil, nil, fmt.Errorf("database: %w", err)
		}
		a.db = db
		return gormstore.New(db, gormstore.WithLogger(a.logger)), twitter.NewAccountStore(db), nil
	case config.StoreDriverSupabase:
		api := a.upstream("supabase")
		return supabase.New(a.cfg.CredentialStore.SupabaseURL, a.cfg.CredentialStore.SupabaseServiceKey, api), nil, nil
	case config.StoreDriverMemory:
		a.logger.Warn("using the in-memory credential store; accounts and sessions are lost on restart")
		return memory.New(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown credential store driver %q", a.cfg.CredentialStore.Driver)
	}
}

func (a *App) buildServices(creds store.CredentialStore, accounts twitter.AccountStore) (*services, error) {
	sessions := session.NewManager(creds,
		session.WithTTL(a.cfg.SessionTTL()),
		session.WithAutoVerify(a.cfg.Session.AutoVerify),
		session.WithLogger(a.logger.Named("session")),
	)

	aiSvc, err := ai.NewServiceFromConfig(a.cfg.AI, a.upstream("completion"), a.cfg.UpstreamTimeout(), a.logger.Named("ai"))
	if err != nil {
		return nil, fmt.Errorf("ai: %w", err)
	}

	tw := twitter.NewClient(a.upstream("twitter"), a.cfg.Twitter.APIBaseURL, a.cfg.Twitter.BearerToken)

	signer, err := jwtpkg.NewSigner(a.stateSecret())
	if err != nil {
		return nil, err
	}
	oauth := twitter.NewOAuth(twitter.OAuthConfig{
		ClientID:     a.cfg.Twitter.ClientID,
		ClientSecret: a.cfg.Twitter.ClientSecret,
		RedirectURI:  a.cfg.Twitter.RedirectURI,
		AuthURL:      a.cfg.Twitter.AuthURL,
		TokenURL:     a.cfg.Twitter.TokenURL,
		FrontendURL:  a.cfg.Twitter.FrontendURL,
	}, signer, tw, accounts, &http.Client{Timeout: a.cfg.UpstreamTimeout()}, a.logger.Named("oauth"))

	batches := autocomment.NewService(taskqueue.NewService(a.redis), aiSvc, tw, sessions,
		autocomment.WithMaxBatch(a.cfg.AutoComment.MaxBatch),
		autocomment.WithCallTimeout(a.cfg.UpstreamTimeout()),
		autocomment.WithLogger(a.logger.Named("autocomment")),
	)

	return &services{
		sessions:    sessions,
		ai:          aiSvc,
		twitter:     tw,
		oauth:       oauth,
		kaito:       kaito.NewClient(a.upstream("kaito"), a.cfg.Kaito.BaseURL),
		autoComment: batches,
	}, nil
}

func (a *App) upstream(name string) *upstream.Client {
	return upstream.New(name,
		upstream.WithTimeout(a.cfg.UpstreamTimeout()),
		upstream.WithMaxRetries(a.cfg.Upstream.MaxRetries),
		upstream.WithLogger(a.logger.Named("upstream")),
	)
}

// stateSecret signs OAuth state. Without a configured secret a random one is
// used, so authorizations in flight do not survive a restart.
func (a *App) stateSecret() string {
	if a.cfg.Twitter.StateSecret != "" {
		return a.cfg.Twitter.StateSecret
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("read random state secret: %v", err))
	}
	a.logger.Warn("twitter.state_secret is empty, using a random per-process secret")
	return hex.EncodeToString(buf)
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown stops cron, lets running auto-comment batches record their
// reports and closes connections.
func (a *App) Shutdown(ctx context.Context) error {
	a.cancel()
	var err error
	if a.autoComment != nil {
		err = a.autoComment.Shutdown(ctx)
	}
	a.closeResources()
	return err
}

func (a *App) closeResources() {
	a.cancel()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Debug("close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
