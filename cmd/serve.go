package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/leandro-lugaresi/hub"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xlivekit/xlivekit/external/peoplehub"
	"github.com/xlivekit/xlivekit/external/presence"
	"github.com/xlivekit/xlivekit/external/rta"
	"github.com/xlivekit/xlivekit/service/socialgraph"
)

// serveCommand グラフレプリカ起動コマンド
func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the live social graph replica",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Logger
			logger := getLogger()
			defer logger.Sync()

			logger.Info(fmt.Sprintf("xlivekit %s (revision %s)", Version, Revision))

			localUser, err := c.localUserXuid()
			if err != nil {
				return fmt.Errorf("invalid localUser: %w", err)
			}

			// Message Hub
			h := hub.New()

			// External clients
			rtaClient := rta.NewClient(c.getRTAConfig(), h, logger)
			presenceClient := presence.NewClient(c.getPresenceConfig(), rtaClient, logger)
			peopleHubClient := peoplehub.NewClient(c.getPeopleHubConfig(), logger)

			// Social graph
			graph := socialgraph.New(socialgraph.Config{
				LocalUser:       localUser,
				TitleID:         c.TitleID,
				DetailLevel:     c.detailLevel(),
				TimerWindow:     c.Graph.TimerWindow,
				RefreshInterval: c.Graph.RefreshInterval,
			}, peopleHubClient, presenceClient, rtaClient, rtaClient, h, logger)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.Info("initializing social graph...", zap.String("local_user", c.LocalUser))
			if err := graph.Initialize(ctx); err != nil {
				return fmt.Errorf("failed to initialize social graph: %w", err)
			}
			defer graph.Close()
			logger.Info("social graph was initialized",
				zap.Int("users", len(graph.ActiveBufferSocialGraph())))

			if c.Graph.RichPresencePolling {
				graph.EnableRichPresencePolling(true)
			}

			// Prometheus metrics
			if c.Metrics.Enabled {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				srv := &http.Server{Addr: fmt.Sprintf(":%d", c.Metrics.Port), Handler: mux}
				go func() {
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logger.Error("metrics server stopped", zap.Error(err))
					}
				}()
				defer srv.Shutdown(context.Background())
				logger.Info("metrics endpoint is available", zap.Int("port", c.Metrics.Port))
			}

			// Frame loop
			ticker := time.NewTicker(c.Graph.FrameInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					logger.Info("shutting down...")
					return nil
				case <-ticker.C:
					_, events := graph.DoWork()
					for _, ev := range events {
						logger.Info("social event",
							zap.Stringer("type", ev.Type),
							zap.Strings("affected_users", ev.AffectedUsers),
							zap.Error(ev.Err))
					}
				}
			}
		},
	}
}
