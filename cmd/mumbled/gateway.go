package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mumblechat/mumble/internal/model"
	"github.com/mumblechat/mumble/internal/source/gateway"
	"github.com/mumblechat/mumble/internal/source/memory"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	gatewayAddr   string
	gatewayToken  string
	gatewaySelfID string
	gatewayDemo   bool
	gatewayCORS   bool
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run a development gateway backed by an in-memory network",
	Long: "Serves the gateway protocol over HTTP and WebSocket from an in-process\n" +
		"network, so a daemon configured with source.kind = \"gateway\" can be\n" +
		"exercised without a real messaging backend.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		src := memory.New(gatewaySelfID)
		if gatewayDemo {
			seedDemo(src)
		}

		var mw []gin.HandlerFunc
		if gatewayCORS {
			mw = append(mw, cors.New(cors.Config{
				AllowAllOrigins: true,
				AllowMethods:    []string{http.MethodGet, http.MethodPost},
				AllowHeaders:    []string{"Authorization", "Content-Type"},
			}))
		}

		srv := &http.Server{
			Addr:              gatewayAddr,
			Handler:           gateway.NewHandler(src, gatewayToken, logger, mw...),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errc := make(chan error, 1)
		go func() {
			logger.Info("gateway listening", zap.String("addr", gatewayAddr), zap.String("self_id", src.SelfID()))
			errc <- srv.ListenAndServe()
		}()

		select {
		case err := <-errc:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		logger.Info("gateway shutting down")
		src.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

// seedDemo adds a direct conversation and a small group with some history.
func seedDemo(src *memory.Source) {
	self := src.SelfID()
	dm := src.AddConversation(model.Conversation{Kind: model.KindDirect, PeerID: "0xa11ce"}, model.Members(self, "0xa11ce")...)
	group := src.AddConversation(model.Conversation{Kind: model.KindGroup, Metadata: model.Metadata{Name: "demo"}},
		model.Members(self, "0xa11ce", "0xb0b")...)

	for _, m := range []model.Message{
		{ConversationID: dm.Conversation.ID, SenderID: "0xa11ce", Content: model.Text("hey, you around?")},
		{ConversationID: group.Conversation.ID, SenderID: "0xb0b", Content: model.Text("welcome to the demo group")},
	} {
		_, _ = src.Deliver(m)
	}
}

func init() {
	gatewayCmd.Flags().StringVar(&gatewayAddr, "addr", "127.0.0.1:5556", "listen address")
	gatewayCmd.Flags().StringVar(&gatewayToken, "token", "", "bearer token clients must present (empty disables auth)")
	gatewayCmd.Flags().StringVar(&gatewaySelfID, "self-id", "0xself", "inbox id the network serves")
	gatewayCmd.Flags().BoolVar(&gatewayDemo, "demo", false, "seed demo conversations")
	gatewayCmd.Flags().BoolVar(&gatewayCORS, "cors", false, "allow cross-origin requests from browser clients")
	rootCmd.AddCommand(gatewayCmd)
}
