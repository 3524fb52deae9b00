// Command mock-services serves fakes of the GitHub contents API and an
// OpenAI-compatible vector store on one port, seeded with a small docs repo.
// Point github.api_url at it and index.base_url at its /v1 prefix.
package main

import (
	"os"

	"github.com/gin-gonic/gin"

	"github.com/tilsley/snapsync/pkg/fakeapi"
	"github.com/tilsley/snapsync/pkg/logging"
)

func main() {
	log := logging.New()

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		apiKey = "sk-local"
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "9090"
	}

	gin.SetMode(gin.ReleaseMode)
	srv := fakeapi.New(apiKey, log)
	seed(srv.GitHub)

	log.Info("mock services listening", "port", port, "owner", seedOwner, "repo", seedRepo)
	if err := srv.Run(":" + port); err != nil {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}
}
