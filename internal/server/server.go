package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dukerupert/larder/internal/backup"
	"github.com/dukerupert/larder/internal/cloud"
	"github.com/dukerupert/larder/internal/config"
	"github.com/dukerupert/larder/internal/handler"
	"github.com/dukerupert/larder/internal/kv"
	"github.com/dukerupert/larder/internal/metrics"
	"github.com/dukerupert/larder/internal/middleware"
	"github.com/dukerupert/larder/internal/push"
	"github.com/dukerupert/larder/internal/record"
	"github.com/dukerupert/larder/internal/store"
	ws "github.com/dukerupert/larder/internal/websocket"
)

type Server struct {
	cfg     config.Config
	logger  *slog.Logger
	hub     *ws.Hub
	metrics *metrics.Metrics

	records    *record.Store
	categories *store.CategoryStore
	syncStore  *store.SyncStore
	syncClient *cloud.Client

	backupManager *backup.Manager
	pushScheduler *push.Scheduler

	listH     *handler.ListHandler
	pantryH   *handler.PantryHandler
	categoryH *handler.CategoryHandler
	recipeH   *handler.RecipeHandler
	mealH     *handler.MealPlanHandler
	templateH *handler.TemplateHandler
	settingsH *handler.SettingsHandler
	syncH     *handler.SyncHandler
	backupH   *handler.BackupHandler
	pushH     *handler.PushHandler
}

func New(db *sql.DB, cfg config.Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))
	m := metrics.New()

	rs := record.New(db, logger.With("component", "record"), record.WithCommitHook(hub.PublishChange))
	m.WatchStore(rs)
	m.Gauge("websocket_clients", "Connected websocket clients.", func() float64 {
		return float64(hub.ClientCount())
	})

	kvs := kv.New(db)
	settings := store.NewSettingsStore(kvs)
	favorites := store.NewFavoritesStore(kvs)
	recents := store.NewRecentsStore(kvs)
	suggestions := store.NewSuggestionsStore(kvs)

	lists := store.NewListStore(rs, settings, recents, suggestions, logger.With("component", "list"))
	pantry := store.NewPantryStore(rs, logger.With("component", "pantry"))
	categories := store.NewCategoryStore(rs)
	recipes := store.NewRecipeStore(rs)
	meals := store.NewMealPlanStore(rs)
	templates := store.NewTemplateStore(kvs, rs)

	syncClient := cloud.NewClient(cloud.Config{
		BaseURL:      cfg.Sync.URL,
		Timeout:      cfg.Sync.Timeout,
		PollInterval: cfg.Sync.PollInterval,
	}, logger.With("component", "cloud"))
	syncStore := store.NewSyncStore(syncClient, rs, kvs, settings, logger.With("component", "sync"))
	syncStore.OnResult(func(applied int, err error) {
		m.SyncResult(applied, err)
		hub.Broadcast(ws.NewMessage(ws.TypeSyncStatus, syncStore.Status()))
	})

	backupMgr := backup.NewManager(cfg.Backup.Manager(), rs, store.NewBackupStore(kvs), logger.With("component", "backup"))
	backupMgr.OnStatus(func(s backup.Status) {
		m.BackupStatus(s)
		hub.Broadcast(ws.NewMessage(ws.TypeBackupStatus, s))
	})

	s := &Server{
		cfg:           cfg,
		logger:        logger,
		hub:           hub,
		metrics:       m,
		records:       rs,
		categories:    categories,
		syncStore:     syncStore,
		syncClient:    syncClient,
		backupManager: backupMgr,
		listH:         handler.NewListHandler(lists, logger.With("component", "list_handler")),
		pantryH:       handler.NewPantryHandler(pantry, logger.With("component", "pantry_handler")),
		categoryH:     handler.NewCategoryHandler(categories, logger.With("component", "category_handler")),
		recipeH:       handler.NewRecipeHandler(recipes, logger.With("component", "recipe_handler")),
		mealH:         handler.NewMealPlanHandler(meals, logger.With("component", "mealplan_handler")),
		templateH:     handler.NewTemplateHandler(templates, logger.With("component", "template_handler")),
		settingsH:     handler.NewSettingsHandler(settings, favorites, recents, suggestions, logger.With("component", "settings_handler")),
		syncH:         handler.NewSyncHandler(syncStore, logger.With("component", "sync_handler")),
		backupH:       handler.NewBackupHandler(backupMgr, logger.With("component", "backup_handler")),
	}

	// Push notification service + scheduler
	if cfg.Push.Enabled() {
		pushSt := store.NewPushStore(kvs)
		pushSvc := push.NewService(cfg.Push.Config)
		s.pushScheduler = push.NewScheduler(pushSvc, pushSt, pantry, settings, logger.With("component", "push"))
		s.pushScheduler.SetInterval(cfg.Push.CheckInterval)
		s.pushH = handler.NewPushHandler(pushSt, pushSvc, s.pushScheduler, logger.With("component", "push_handler"))
	}

	return s
}

// Records returns the shared record store.
func (s *Server) Records() *record.Store {
	return s.records
}

// Start seeds first-run data, restores a saved sync session and starts the
// background jobs. Jobs run until ctx is done or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	seeded, err := s.categories.SeedDefaults(ctx)
	if err != nil {
		return fmt.Errorf("seed categories: %w", err)
	}
	if seeded {
		s.logger.Info("seeded default categories")
	}

	if s.syncClient.Configured() {
		restored, err := s.syncStore.Restore(ctx)
		if err != nil {
			return err
		}
		if restored {
			s.logger.Info("restored sync session", "user_id", s.syncStore.AuthState().UserID)
		}
		s.syncStore.Start(ctx)
	}

	s.backupManager.Start(ctx)
	if s.pushScheduler != nil {
		s.pushScheduler.Start(ctx)
	}
	return nil
}

// Stop halts background jobs and disconnects websocket clients.
func (s *Server) Stop() {
	if s.pushScheduler != nil {
		s.pushScheduler.Stop()
	}
	s.backupManager.Stop()
	if s.syncClient.Configured() {
		s.syncStore.Stop()
	}
	s.hub.Close()
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.cfg.AllowedOrigins, s.logger.With("component", "websocket")))

	s.registerAPIRoutes(mux)

	return middleware.RequestLogger(s.logger.With("component", "http"), s.metrics.ObserveRequest)(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}

func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	// Lists
	mux.HandleFunc("GET /api/lists", s.listH.Lists)
	mux.HandleFunc("POST /api/lists", s.listH.Create)
	mux.HandleFunc("POST /api/lists/reorder", s.listH.Reorder)
	mux.HandleFunc("GET /api/lists/{id}", s.listH.Get)
	mux.HandleFunc("PATCH /api/lists/{id}", s.listH.Update)
	mux.HandleFunc("DELETE /api/lists/{id}", s.listH.Delete)
	mux.HandleFunc("POST /api/lists/{id}/archive", s.listH.Archive)
	mux.HandleFunc("POST /api/lists/{id}/unarchive", s.listH.Unarchive)
	mux.HandleFunc("POST /api/lists/{id}/complete", s.listH.Complete)
	mux.HandleFunc("POST /api/lists/{id}/reopen", s.listH.Reopen)
	mux.HandleFunc("POST /api/lists/{id}/duplicate", s.listH.Duplicate)
	mux.HandleFunc("POST /api/lists/{id}/template", s.templateH.SaveList)
	mux.HandleFunc("POST /api/lists/{id}/low-stock", s.pantryH.AddLowStockToList)

	// List items
	mux.HandleFunc("GET /api/lists/{id}/items", s.listH.Items)
	mux.HandleFunc("POST /api/lists/{id}/items", s.listH.AddItem)
	mux.HandleFunc("POST /api/lists/{id}/items/reorder", s.listH.ReorderItems)
	mux.HandleFunc("POST /api/lists/{id}/clear-checked", s.listH.ClearChecked)
	mux.HandleFunc("PATCH /api/items/{id}", s.listH.UpdateItem)
	mux.HandleFunc("DELETE /api/items/{id}", s.listH.DeleteItem)
	mux.HandleFunc("POST /api/items/{id}/toggle", s.listH.ToggleItem)

	// Pantry
	mux.HandleFunc("GET /api/pantry", s.pantryH.List)
	mux.HandleFunc("POST /api/pantry", s.pantryH.Create)
	mux.HandleFunc("GET /api/pantry/{id}", s.pantryH.Get)
	mux.HandleFunc("PATCH /api/pantry/{id}", s.pantryH.Update)
	mux.HandleFunc("DELETE /api/pantry/{id}", s.pantryH.Delete)
	mux.HandleFunc("POST /api/pantry/{id}/consume", s.pantryH.Consume)
	mux.HandleFunc("POST /api/pantry/{id}/replenish", s.pantryH.Replenish)

	// Categories
	mux.HandleFunc("GET /api/categories", s.categoryH.List)
	mux.HandleFunc("POST /api/categories", s.categoryH.Create)
	mux.HandleFunc("POST /api/categories/reorder", s.categoryH.Reorder)
	mux.HandleFunc("PATCH /api/categories/{id}", s.categoryH.Update)
	mux.HandleFunc("DELETE /api/categories/{id}", s.categoryH.Delete)

	// Recipes
	mux.HandleFunc("GET /api/recipes", s.recipeH.List)
	mux.HandleFunc("POST /api/recipes", s.recipeH.Create)
	mux.HandleFunc("GET /api/recipes/{id}", s.recipeH.Get)
	mux.HandleFunc("PATCH /api/recipes/{id}", s.recipeH.Update)
	mux.HandleFunc("DELETE /api/recipes/{id}", s.recipeH.Delete)
	mux.HandleFunc("PUT /api/recipes/{id}/ingredients", s.recipeH.SetIngredients)
	mux.HandleFunc("POST /api/recipes/{id}/favorite", s.recipeH.ToggleFavorite)

	// Meal plan
	mux.HandleFunc("GET /api/meals", s.mealH.List)
	mux.HandleFunc("POST /api/meals", s.mealH.Create)
	mux.HandleFunc("POST /api/meals/shopping-list", s.mealH.ShoppingList)
	mux.HandleFunc("GET /api/meals/{id}", s.mealH.Get)
	mux.HandleFunc("PATCH /api/meals/{id}", s.mealH.Update)
	mux.HandleFunc("DELETE /api/meals/{id}", s.mealH.Delete)
	mux.HandleFunc("POST /api/meals/{id}/leftover", s.mealH.Leftover)

	// Templates
	mux.HandleFunc("GET /api/templates", s.templateH.List)
	mux.HandleFunc("POST /api/templates", s.templateH.Create)
	mux.HandleFunc("GET /api/templates/{id}", s.templateH.Get)
	mux.HandleFunc("PATCH /api/templates/{id}", s.templateH.Update)
	mux.HandleFunc("DELETE /api/templates/{id}", s.templateH.Delete)
	mux.HandleFunc("POST /api/templates/{id}/lists", s.templateH.CreateList)

	// Settings and name history
	mux.HandleFunc("GET /api/settings", s.settingsH.Get)
	mux.HandleFunc("PATCH /api/settings", s.settingsH.Update)
	mux.HandleFunc("DELETE /api/settings", s.settingsH.Reset)
	mux.HandleFunc("GET /api/favorites", s.settingsH.Favorites)
	mux.HandleFunc("POST /api/favorites", s.settingsH.AddFavorite)
	mux.HandleFunc("DELETE /api/favorites/{name}", s.settingsH.RemoveFavorite)
	mux.HandleFunc("GET /api/recents", s.settingsH.Recents)
	mux.HandleFunc("DELETE /api/recents", s.settingsH.ClearRecents)
	mux.HandleFunc("GET /api/suggestions", s.settingsH.Suggest)

	// Sync
	mux.HandleFunc("POST /api/sync/account", s.syncH.CreateAccount)
	mux.HandleFunc("POST /api/sync/session", s.syncH.SignIn)
	mux.HandleFunc("DELETE /api/sync/session", s.syncH.SignOut)
	mux.HandleFunc("GET /api/sync/session", s.syncH.Auth)
	mux.HandleFunc("GET /api/sync/status", s.syncH.Status)
	mux.HandleFunc("POST /api/sync", s.syncH.ForceSync)

	// Backups
	mux.HandleFunc("GET /api/backups", s.backupH.List)
	mux.HandleFunc("POST /api/backups", s.backupH.Run)
	mux.HandleFunc("GET /api/backups/status", s.backupH.Status)
	mux.HandleFunc("PUT /api/backups/key", s.backupH.CacheKey)
	mux.HandleFunc("PUT /api/backups/s3", s.backupH.UpdateS3)
	mux.HandleFunc("POST /api/backups/{id}/restore", s.backupH.Restore)
	mux.HandleFunc("GET /api/backups/{id}/download", s.backupH.Download)

	// Push notification API routes
	if s.pushH != nil {
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.VAPIDKey)
		mux.HandleFunc("POST /api/push/subscriptions", s.pushH.Subscribe)
		mux.HandleFunc("GET /api/push/subscriptions", s.pushH.List)
		mux.HandleFunc("DELETE /api/push/subscriptions", s.pushH.Unsubscribe)
		mux.HandleFunc("POST /api/push/test", s.pushH.Test)
	}
}
