// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/nexlead/nexlead-backend/internal/controller"
	"github.com/nexlead/nexlead-backend/internal/db"
	"github.com/nexlead/nexlead-backend/internal/dispatch"
	"github.com/nexlead/nexlead-backend/internal/handler"
	"github.com/nexlead/nexlead-backend/internal/notify"
	"github.com/nexlead/nexlead-backend/internal/pacing"
	"github.com/nexlead/nexlead-backend/internal/provider"
	"github.com/nexlead/nexlead-backend/internal/repository"
	"github.com/nexlead/nexlead-backend/internal/service"
	"github.com/nexlead/nexlead-backend/internal/webhook"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, relying on OS environment variables")
	}

	db.Init()
	if err := db.EnsureSchema(db.DB); err != nil {
		log.Fatalf("failed to apply schema: %v", err)
	}

	campaignRepo := &repository.CampaignRepository{DB: db.DB}
	recipientRepo := &repository.RecipientRepository{DB: db.DB}
	templateRepo := &repository.TemplateRepository{DB: db.DB}
	enrollmentRepo := &repository.EnrollmentRepository{DB: db.DB}
	ledgerRepo := &repository.LedgerRepository{DB: db.DB}

	pacer := pacing.NewController()
	if path := os.Getenv("PACING_PROFILES_PATH"); path != "" {
		if err := pacer.LoadFile(path); err != nil {
			log.Fatalf("failed to load pacing profiles: %v", err)
		}
		log.Println("✅ Loaded pacing profile overrides from", path)
	}

	var notifier notify.Publisher
	if amqpURL := os.Getenv("AMQP_URL"); amqpURL != "" {
		amqpPub, err := notify.NewAMQPPublisher(amqpURL)
		if err != nil {
			log.Fatalf("failed to connect notification publisher: %v", err)
		}
		defer amqpPub.Close()
		notifier = amqpPub
		log.Println("✅ Notifications publishing to RabbitMQ")
	} else {
		notifier = notify.NewInMemoryPublisher()
		log.Println("⚠️ AMQP_URL not set, notifications stay in-process")
	}

	sendClient := provider.NewHTTPClient(
		os.Getenv("PROVIDER_API_URL"),
		os.Getenv("PROVIDER_API_KEY"),
	)

	breakThreshold, _ := strconv.Atoi(os.Getenv("THROTTLE_BREAK_THRESHOLD"))

	dispatcher := &dispatch.Runner{
		Campaigns:      campaignRepo,
		Recipients:     recipientRepo,
		Enrollments:    enrollmentRepo,
		Ledger:         ledgerRepo,
		Templates:      templateRepo,
		Provider:       sendClient,
		Pacing:         pacer,
		Registry:       dispatch.NewRegistry(),
		BreakThreshold: breakThreshold,
	}

	campaignService := &service.CampaignService{
		CampaignRepo:   campaignRepo,
		RecipientRepo:  recipientRepo,
		TemplateRepo:   templateRepo,
		EnrollmentRepo: enrollmentRepo,
	}

	campaignController := &controller.CampaignController{
		CampaignService: campaignService,
		Dispatcher:      dispatcher,
	}

	reconciler := &webhook.Reconciler{
		Ledger:      ledgerRepo,
		Campaigns:   campaignRepo,
		Recipients:  recipientRepo,
		Enrollments: enrollmentRepo,
		Notifier:    notifier,
	}
	webhookHandler := &handler.WebhookHandler{
		Reconciler: reconciler,
		Token:      os.Getenv("WEBHOOK_TOKEN"),
	}

	// Start scheduled campaigns once their time arrives.
	scheduler := cron.New()
	scheduler.AddFunc("@every 1m", func() {
		due, err := campaignRepo.ListDueScheduled(time.Now())
		if err != nil {
			log.Println("⚠️ scheduler: list due campaigns:", err)
			return
		}
		for _, c := range due {
			if _, err := dispatcher.Start(c.ID); err != nil {
				log.Printf("⚠️ scheduler: start campaign %d: %v", c.ID, err)
			}
		}
	})
	scheduler.Start()
	defer scheduler.Stop()

	r := chi.NewRouter()

	// Campaign routes
	r.Post("/campaigns", campaignController.CreateCampaign)
	r.Get("/campaigns", campaignController.ListCampaigns)
	r.Get("/campaigns/{id}", campaignController.GetCampaign)
	r.Get("/campaigns/{id}/analytics", campaignController.GetAnalytics)
	r.Post("/campaigns/{id}/start", campaignController.StartCampaign)
	r.Post("/campaigns/{id}/pause", campaignController.PauseCampaign)
	r.Post("/campaigns/{id}/resume", campaignController.ResumeCampaign)
	r.Post("/campaigns/{id}/cancel", campaignController.CancelCampaign)
	r.Post("/campaigns/{id}/resend-pending", campaignController.ResendPending)
	r.Post("/campaigns/{id}/retry-failed", campaignController.RetryFailed)
	r.Post("/campaigns/{id}/personalized-preview", campaignController.PersonalizedPreview)

	// Provider callbacks
	r.Post("/webhooks/provider", webhookHandler.HandleProviderWebhook)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("🚀 Server running on :%s", port)
	log.Fatal(http.ListenAndServe(":"+port, r))
}
