package main

import (
	"log"
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"aurora_back/accounts"
	"aurora_back/agents"
	"aurora_back/authorization"
	"aurora_back/credentials"
	"aurora_back/database"
	"aurora_back/feedback"
	"aurora_back/knowledge"
	"aurora_back/memory"
	"aurora_back/presence"
	"aurora_back/projects"
	"aurora_back/storage"
	"aurora_back/threads"
	"aurora_back/triggers"
)

func mustLoadEnv() {
	_ = godotenv.Load()
}

func main() {
	mustLoadEnv()

	db, err := database.OpenFromEnv()
	if err != nil {
		log.Fatalf("open database: %v", err)
	}

	objects, err := storage.NewObjectStorageFromEnv()
	if err != nil {
		log.Fatalf("init object storage: %v", err)
	}

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	acctStore := accounts.NewStore(db)
	if err := acctStore.Migrate(); err != nil {
		log.Fatalf("migrate accounts: %v", err)
	}

	authModule, err := authorization.RegisterRoutes(r, db, acctStore, objects)
	if err != nil {
		log.Fatalf("register auth routes: %v", err)
	}
	guard := authModule.Guard()

	if _, err := accounts.RegisterRoutes(r, guard, acctStore); err != nil {
		log.Fatalf("register account routes: %v", err)
	}

	credModule, err := credentials.RegisterRoutes(r, db, guard, acctStore)
	if err != nil {
		log.Fatalf("register credential routes: %v", err)
	}

	agentModule, err := agents.RegisterRoutes(r, db, guard, acctStore, credModule.Store())
	if err != nil {
		log.Fatalf("register agent routes: %v", err)
	}

	threadModule, err := threads.RegisterRoutes(r, db, guard, acctStore)
	if err != nil {
		log.Fatalf("register thread routes: %v", err)
	}

	if _, err := projects.RegisterRoutes(r, db, guard, acctStore); err != nil {
		log.Fatalf("register project routes: %v", err)
	}

	if _, err := memory.RegisterRoutes(r, db, guard, acctStore); err != nil {
		log.Fatalf("register memory routes: %v", err)
	}

	if _, err := knowledge.RegisterRoutes(r, db, guard, acctStore, agentModule.Store(), objects); err != nil {
		log.Fatalf("register knowledge routes: %v", err)
	}

	if _, err := triggers.RegisterRoutes(r, db, guard, acctStore, agentModule.Store(), threadModule.Store()); err != nil {
		log.Fatalf("register trigger routes: %v", err)
	}

	presence.RegisterRoutes(r, guard)

	if _, err := feedback.RegisterRoutes(r, db, guard, acctStore); err != nil {
		log.Fatalf("register feedback routes: %v", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	if err := r.Run(":" + port); err != nil {
		log.Fatalf("start server: %v", err)
	}
}

func corsOrigins() []string {
	raw := strings.TrimSpace(os.Getenv("CORS_ALLOW_ORIGINS"))
	if raw == "" {
		return []string{"http://localhost:3000"}
	}
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
