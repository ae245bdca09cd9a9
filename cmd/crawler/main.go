package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/duskwren/webcrawler/internal/config"
	"github.com/duskwren/webcrawler/internal/controller"
	"github.com/duskwren/webcrawler/internal/report"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath   string
		connTimeout  time.Duration
		maxBodyBytes int64
		globalBits   uint32
		pageBits     uint32
		maxPages     int
		maxInFlight  int
		logLevel     string
		s3Output     string
	)

	cmd := &cobra.Command{
		Use:   "crawler URL [OUTPUT_FILE]",
		Short: "Breadth-first crawl a site and emit its link graph",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			applyConfigDefaults(&cfg, connTimeout, maxBodyBytes, globalBits, pageBits, maxInFlight, logLevel, s3Output)

			var out io.Writer = os.Stdout
			var outFile *os.File
			if len(args) == 2 {
				f, err := os.Create(args[1])
				if err != nil {
					return fmt.Errorf("crawler: creating %s: %w", args[1], err)
				}
				defer f.Close()
				out = f
				outFile = f
			}

			buf := &reportBuffer{w: out}

			c, err := controller.New(controller.Config{
				StartURL:         args[0],
				Output:           buf,
				ConnTimeout:      cfg.ConnTimeout,
				MaxBodyBytes:     cfg.MaxBodyBytes,
				GlobalFilterBits: cfg.GlobalFilterBits,
				PageFilterBits:   cfg.PageFilterBits,
				MaxPages:         maxPages,
				MaxInFlight:      cfg.MaxInFlightHint,
			})
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			errCh := make(chan error, 1)
			go func() { errCh <- c.Crawl(ctx) }()

			select {
			case err := <-errCh:
				if err != nil {
					return err
				}
			case sig := <-sigCh:
				log.Printf("crawler: received %v, shutting down gracefully...", sig)
				cancel()
				select {
				case err := <-errCh:
					if err != nil {
						return err
					}
				case <-time.After(5 * time.Second):
					if flushErr := c.Flush(); flushErr != nil {
						log.Printf("crawler: flush after shutdown timeout failed: %v", flushErr)
					}
					return fmt.Errorf("crawler: shutdown timeout exceeded")
				}
			}

			if err := c.Flush(); err != nil {
				return err
			}
			if outFile != nil {
				if err := outFile.Sync(); err != nil {
					return err
				}
			}

			if cfg.S3Output != "" {
				if err := report.UploadToS3(cfg.S3Output, buf.data); err != nil {
					return err
				}
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "optional YAML config file")
	flags.DurationVar(&connTimeout, "conn-timeout", 0, "override the connect-stage timeout")
	flags.Int64Var(&maxBodyBytes, "max-body-bytes", 0, "override the response body size ceiling")
	flags.Uint32Var(&globalBits, "global-filter-bits", 0, "override the global dedup filter size")
	flags.Uint32Var(&pageBits, "page-filter-bits", 0, "override the per-page dedup filter size")
	flags.IntVar(&maxPages, "max-pages", 0, "cap on distinct pages fetched (0 = unlimited)")
	flags.IntVar(&maxInFlight, "max-inflight", 0, "soft cap on simultaneously in-flight requests (0 = unlimited)")
	flags.StringVar(&logLevel, "log-level", "", "debug|info|warn|error")
	flags.StringVar(&s3Output, "s3-output", "", "optional s3://bucket/key fan-out destination for the report")

	return cmd
}

func applyConfigDefaults(cfg *config.Config, connTimeout time.Duration, maxBodyBytes int64, globalBits, pageBits uint32, maxInFlight int, logLevel, s3Output string) {
	if connTimeout > 0 {
		cfg.ConnTimeout = connTimeout
	}
	if maxBodyBytes > 0 {
		cfg.MaxBodyBytes = maxBodyBytes
	}
	if globalBits > 0 {
		cfg.GlobalFilterBits = globalBits
	}
	if pageBits > 0 {
		cfg.PageFilterBits = pageBits
	}
	if maxInFlight > 0 {
		cfg.MaxInFlightHint = maxInFlight
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if s3Output != "" {
		cfg.S3Output = s3Output
	}
}

// reportBuffer tees the report to the chosen writer while retaining a copy
// for the optional S3 fan-out upload.
type reportBuffer struct {
	w    io.Writer
	data []byte
}

func (b *reportBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return b.w.Write(p)
}
