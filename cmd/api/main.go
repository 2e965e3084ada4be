package main

import (
	"context"
	"log"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"google.golang.org/api/option"

	fbapp "firebase.google.com/go/v4"

	"dentalink/internal/adapter/api"
	"dentalink/internal/adapter/api/handler"
	apimiddleware "dentalink/internal/adapter/api/middleware"
	"dentalink/internal/adapter/api/router"
	"dentalink/internal/adapter/repository"
	"dentalink/internal/infrastructure/firebase"
	"dentalink/internal/infrastructure/ratelimit"
	"dentalink/internal/infrastructure/storage"
	"dentalink/internal/infrastructure/websocket"
	"dentalink/internal/usecase"
	"dentalink/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	var opt option.ClientOption
	credentialsPath := ""

	// Service account JSON in the environment wins; a file path is the
	// local-development fallback.
	serviceAccountJSON := os.Getenv("FIREBASE_SERVICE_ACCOUNT_JSON")
	if serviceAccountJSON != "" {
		log.Printf("Using Firebase service account from environment variable")
		opt = option.WithCredentialsJSON([]byte(serviceAccountJSON))
	} else {
		credentialsPath = os.Getenv("FIREBASE_SERVICE_ACCOUNT_PATH")
		if credentialsPath == "" {
			credentialsPath = "./service-account.json"
		}

		if _, err := os.Stat(credentialsPath); os.IsNotExist(err) {
			log.Fatalf("Service account file does not exist: %s", credentialsPath)
		}

		log.Printf("Using Firebase service account from file: %s", credentialsPath)
		opt = option.WithCredentialsFile(credentialsPath)
	}

	firebaseApp, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opt)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase: %v", err)
	}

	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase Auth: %v", err)
	}

	messagingClient, err := firebaseApp.Messaging(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase Messaging: %v", err)
	}

	firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opt)
	if err != nil {
		log.Fatalf("Failed to create Firestore client: %v", err)
	}
	defer firestoreClient.Close()

	storageClient, err := storage.NewCloudStorageClient(ctx, cfg.StorageBucket, credentialsPath)
	if err != nil {
		log.Fatalf("Failed to initialize Cloud Storage: %v", err)
	}
	defer storageClient.Close()

	chatRepo := repository.NewFirestoreChatRepository(firestoreClient)
	orderRepo := repository.NewFirestoreOrderRepository(firestoreClient)
	connectionRepo := repository.NewFirestoreConnectionRepository(firestoreClient)
	userRepo := repository.NewFirestoreUserRepository(firestoreClient)

	limiter := ratelimit.NewRateLimiter()
	limiter.StartCleanupRoutine()

	typing := usecase.NewTypingTracker(chatRepo, cfg.TypingTTL)
	defer typing.Stop()

	messages := usecase.NewMessageService(chatRepo, userRepo, storageClient, typing)
	resolver := usecase.NewRoomResolver(chatRepo, orderRepo, connectionRepo, userRepo)

	hub := websocket.NewSessionHub(chatRepo, messages, typing, limiter)
	wsManager := websocket.NewManager(hub)
	hub.Start(ctx)
	wsManager.Start(ctx)

	notifier := firebase.NewMessagingClient(messagingClient, userRepo, cfg.NotificationTTL)
	dispatcher := usecase.NewNotificationDispatcher(notifier, wsManager)
	hub.AddObserver(dispatcher)

	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.Validator = api.NewValidator()

	firebaseAuthClient := firebase.NewFirebaseAuthClient(authClient)
	authMiddleware := apimiddleware.NewAuthMiddleware(firebaseAuthClient, userRepo)

	chatHandler := handler.NewChatHandler(resolver, messages, typing, userRepo, chatRepo, limiter)
	wsHandler := handler.NewWebSocketHandler(wsManager, authMiddleware)

	router.Setup(e, chatHandler, wsHandler, authMiddleware)

	log.Printf("Starting server on port %s...", cfg.ServerPort)
	e.Logger.Fatal(e.Start(":" + cfg.ServerPort))
}
