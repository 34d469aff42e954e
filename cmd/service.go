package cmd

import (
	"net"
	"net/http"

	"github.com/isometry/gh-approval-gate/internal/config"
	"github.com/isometry/gh-approval-gate/internal/runtime"
	"github.com/spf13/cobra"
)

func cmdService() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "service",
		Aliases: []string{"s", "serve", "standalone", "server"},
		PreRunE: func(_ *cobra.Command, _ []string) error {
			logger = logger.With("mode", "service")
			logger.Info("Spawning...")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger.Debug("Creating approval handler...")
			hdl, err := newHandler(cmd.Context())
			if err != nil {
				return err
			}

			logger.Debug("Creating runtime...")
			rt := runtime.NewRuntime(hdl,
				runtime.WithLogger(logger.With("component", "runtime")))

			logger.Debug("Creating HTTP server...")
			h := http.NewServeMux()
			h.HandleFunc(config.Service.Path, rt.ServeHTTP)

			s := &http.Server{
				Handler:      h,
				Addr:         net.JoinHostPort(config.Service.Addr, config.Service.Port),
				WriteTimeout: config.Service.Timeout,
				ReadTimeout:  config.Service.Timeout,
				IdleTimeout:  config.Service.Timeout,
			}

			logger.Info("Serving...", "address", s.Addr, "path", config.Service.Path, "timeout", config.Service.Timeout.String())
			return s.ListenAndServe()
		},
	}

	bindEnvMap(cmd, svcEnvMapString)
	bindEnvMap(cmd, svcEnvMapDuration)

	return cmd
}
