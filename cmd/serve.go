package cmd

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/spf13/cobra"

	"github.com/jharding/legistrack/internal/handlers"
	"github.com/jharding/legistrack/internal/store"
)

var port string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the JSON read API",
	Long:  `Start the read-only HTTP API over the synced data.`,
	Run: func(cmd *cobra.Command, args []string) {
		// Use PORT env var if set, otherwise use flag value
		if envPort := os.Getenv("PORT"); envPort != "" && port == "8080" {
			port = envPort
		}

		rt := newRuntime()
		defer rt.Close()

		billStore := store.NewBillStore(rt.db)
		memberStore := store.NewMemberStore(rt.db)
		committeeStore := store.NewCommitteeStore(rt.db)
		syncStore := store.NewSyncStore(rt.db)

		app := fiber.New(fiber.Config{
			AppName: "legistrack",
		})

		app.Use(logger.New())

		app.Get("/bills", handlers.BillsHandler(billStore))
		app.Get("/bills/:billNumber", handlers.BillDetailHandler(billStore))

		app.Get("/members", handlers.MembersHandler(memberStore))
		app.Get("/members/:bioguideId", handlers.MemberDetailHandler(memberStore))

		app.Get("/committees", handlers.CommitteesHandler(committeeStore))

		app.Get("/status", handlers.StatusHandler(syncStore))

		log.Printf("Starting server on :%s", port)
		if err := app.Listen(":" + port); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&port, "port", "p", "8080", "Port to run the server on")
}
