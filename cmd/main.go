package main

import (
	"context"
	"net/http"
	"time"

	"github.com/aldertree/questline/config"
	"github.com/aldertree/questline/database"
	adminctrl "github.com/aldertree/questline/internal/controller/admin"
	userctrl "github.com/aldertree/questline/internal/controller/user"
	"github.com/aldertree/questline/internal/logger"
	"github.com/aldertree/questline/internal/middleware"
	"github.com/aldertree/questline/internal/model"
	"github.com/aldertree/questline/internal/repository"
	"github.com/aldertree/questline/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// @title Questline API
// @version 1.0
// @description Questionnaire authoring and response collection API with ETag concurrency, idempotent mutations and conditional visibility.
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
func main() {
	logger.Init()

	app := fx.New(
		fx.Provide(
			config.NewConfig,
			database.NewDatabase,
			NewGinEngine,
		),

		fx.Provide(
			repository.NewQuestionnaireRepository,
			repository.NewScreenRepository,
			repository.NewQuestionRepository,
			repository.NewBindingRepository,
			repository.NewResponseSetRepository,
			repository.NewAnswerRepository,
			repository.NewIdempotencyRepository,
		),

		fx.Provide(
			service.NewQuestionnaireService,
			service.NewScreenService,
			service.NewQuestionService,
			service.NewResponseSetService,
			service.NewAnswerService,
			func(repo repository.IdempotencyRepository, cfg *config.Config) service.IdempotencyService {
				return service.NewIdempotencyService(repo, time.Duration(cfg.Idempotency.TTLHours)*time.Hour)
			},
		),

		fx.Provide(
			adminctrl.NewQuestionnaireController,
			adminctrl.NewScreenController,
			adminctrl.NewQuestionController,
			userctrl.NewResponseController,
		),

		fx.Invoke(RegisterRoutesAndStartServer),
		fx.Invoke(AutoMigrateDB),
	)

	if err := app.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}

	<-app.Done()
	log.Info().Msg("Application shutting down gracefully...")
}

func NewGinEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		log.Info().
			Str("client_ip", param.ClientIP).
			Str("method", param.Method).
			Str("path", param.Path).
			Int("status_code", param.StatusCode).
			Dur("latency", param.Latency).
			Str("error_message", param.ErrorMessage).
			Msg("gin_request")
		return ""
	}))
	r.Use(gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "If-Match", "Idempotency-Key"},
		ExposeHeaders:    []string{"Content-Length", "ETag"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

// RegisterRoutesAndStartServer configures API routes and manages server lifecycle.
func RegisterRoutesAndStartServer(
	lc fx.Lifecycle,
	router *gin.Engine,
	cfg *config.Config,
	idem service.IdempotencyService,
	questionnaireCtrl *adminctrl.QuestionnaireController,
	screenCtrl *adminctrl.ScreenController,
	questionCtrl *adminctrl.QuestionController,
	responseCtrl *userctrl.ResponseController,
) {
	api := router.Group("/api/v1")
	api.Use(middleware.Idempotency(idem))
	{
		questionnaires := api.Group("/questionnaires")
		questionnaires.POST("", questionnaireCtrl.CreateQuestionnaire)
		questionnaires.GET("", questionnaireCtrl.ListQuestionnaires)
		questionnaires.GET("/:questionnaire_id", questionnaireCtrl.GetQuestionnaire)
		questionnaires.DELETE("/:questionnaire_id", questionnaireCtrl.DeleteQuestionnaire)
		questionnaires.POST("/:questionnaire_id/screens", screenCtrl.CreateScreen)

		screens := api.Group("/screens")
		screens.GET("/:screen_id", screenCtrl.GetScreen)
		screens.PATCH("/:screen_id", screenCtrl.PatchScreen)
		screens.POST("/:screen_id/move", screenCtrl.MoveScreen)
		screens.DELETE("/:screen_id", screenCtrl.DeleteScreen)
		screens.POST("/:screen_id/questions", questionCtrl.CreateQuestion)

		questions := api.Group("/questions")
		questions.GET("/:question_id", questionCtrl.GetQuestion)
		questions.PATCH("/:question_id", questionCtrl.PatchQuestion)
		questions.POST("/:question_id/move", questionCtrl.MoveQuestion)
		questions.DELETE("/:question_id", questionCtrl.DeleteQuestion)
		questions.PUT("/:question_id/options", questionCtrl.ReplaceOptions)
		questions.POST("/:question_id/bindings", questionCtrl.BindPlaceholder)
		questions.DELETE("/:question_id/bindings/:placeholder_key", questionCtrl.UnbindPlaceholder)

		responseSets := api.Group("/response-sets")
		responseSets.POST("", responseCtrl.CreateResponseSet)
		responseSets.GET("/:response_set_id", responseCtrl.GetResponseSet)
		responseSets.DELETE("/:response_set_id", responseCtrl.DeleteResponseSet)
		responseSets.GET("/:response_set_id/screens/:screen_id", responseCtrl.GetScreenView)
		responseSets.PATCH("/:response_set_id/answers/:question_id", responseCtrl.SaveAnswer)
		responseSets.DELETE("/:response_set_id/answers/:question_id", responseCtrl.DeleteAnswer)
		responseSets.POST("/:response_set_id/answers/batch", responseCtrl.BatchUpsert)
	}

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info().Msgf("Questline API server starting on port %s", cfg.Server.Port)
			log.Info().Msgf("Swagger UI available at http://localhost:%s/swagger/index.html", cfg.Server.Port)
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("Server ListenAndServe failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("Server shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	})
}

func AutoMigrateDB(db *gorm.DB) error {
	log.Info().Msg("Running database migrations...")
	err := db.AutoMigrate(
		&model.Questionnaire{},
		&model.Screen{},
		&model.Question{},
		&model.AnswerOption{},
		&model.PlaceholderBinding{},
		&model.ResponseSet{},
		&model.Answer{},
		&model.IdempotencyRecord{},
	)
	if err != nil {
		log.Error().Err(err).Msg("Database migration failed")
		return err
	}
	log.Info().Msg("Database migration completed successfully.")
	return nil
}
