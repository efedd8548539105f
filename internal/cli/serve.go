package cli

import (
	"context"
	"errors"
	"net"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/nainya/docvcs/internal/metrics"
	"github.com/nainya/docvcs/internal/server"
	"github.com/nainya/docvcs/pkg/engine"
)

func newServeCommand(a *App) *cobra.Command {
	var grpcAddr, metricsAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gRPC server with metrics, health and pprof endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if grpcAddr != "" {
				a.cfg.Server.GRPCAddr = grpcAddr
			}
			if metricsAddr != "" {
				a.cfg.Server.MetricsAddr = metricsAddr
			}
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "gRPC listen address (server.grpc_addr)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "HTTP listen address for /metrics, /health, /ready (server.metrics_addr); empty disables")
	return cmd
}

// serve runs until ctx is cancelled or a listener fails.
func (a *App) serve(ctx context.Context) error {
	cfg := a.cfg
	a.log.LogServerStart(cfg.Server.GRPCAddr, cfg.Storage.Driver, cfg.Storage.Path)

	repo, err := a.openRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)
	if docs, err := repo.Documents(ctx); err == nil {
		m.SetDocuments(len(docs))
	}

	opts, err := a.engineOptions(m)
	if err != nil {
		return err
	}
	e := engine.New(repo, opts)
	gs, health := server.NewGRPCServer(server.NewServer(e, a.log), m, cfg.Server.MaxMessageBytes)

	grpcLis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return err
	}
	var obs *server.ObservabilityServer
	var httpLis net.Listener
	if cfg.Server.MetricsAddr != "" {
		httpLis, err = net.Listen("tcp", cfg.Server.MetricsAddr)
		if err != nil {
			grpcLis.Close()
			return err
		}
		obs = server.NewObservabilityServer(cfg.Server.MetricsAddr, reg, func(ctx context.Context) error {
			_, err := repo.Documents(ctx)
			return err
		}, a.log)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return gs.Serve(grpcLis)
	})
	if obs != nil {
		g.Go(func() error {
			return obs.Serve(httpLis)
		})
	}
	httpAddr := ""
	if httpLis != nil {
		httpAddr = httpLis.Addr().String()
	}
	a.log.LogServerReady(grpcLis.Addr().String(), httpAddr)

	g.Go(func() error {
		<-gctx.Done()
		reason := "listener failed"
		if ctx.Err() != nil {
			reason = "signal"
		}
		a.log.LogServerShutdown(reason)
		health.SetServingStatus(server.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		stopped := make(chan struct{})
		go func() {
			gs.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			gs.Stop()
		}
		if obs != nil {
			return obs.Shutdown(shutdownCtx)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
