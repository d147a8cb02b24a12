package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/luma/argus/catalog"
	"github.com/luma/argus/drivers/stream"
	"github.com/luma/argus/hal"
	"github.com/luma/argus/internal/env"
	"github.com/luma/argus/status"
	"github.com/luma/argus/transport"
)

var (
	// The host to listen on
	host string

	// The port to listen for http requests on
	httpPort string

	// The port to listen for tcp clients on
	port int

	// sources maps driver slot names from the catalog to the paths of
	// their event feeds, e.g. akm=/run/argus/akm.fifo
	sources map[string]string
)

// eventBufferSize is the per-pass capacity of the delivery loop's
// event buffer.
const eventBufferSize = 64

func init() {
	flags := StartCmd.PersistentFlags()

	flags.IntVarP(&port, "port", "p", 7463, "The port to listen client connections on")
	flags.StringVar(&httpPort, "http-port", "7462", "The port to listen to HTTP requests on")
	flags.StringVarP(&host, "host", "a", "0.0.0.0", "The host to listen on")
	flags.StringToStringVarP(&sources, "source", "s", nil,
		"Sensor event sources as slot=path pairs, one per driver slot in the catalog")
}

var StartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start up the Argus sensor service",
	Long: `Start up the Argus sensor service

Usage
	argus start --source light=/run/argus/light.fifo --source akm=/run/argus/akm.fifo

`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
		defer signalStop()

		log, err := env.MakeLogger()
		if err != nil {
			return err
		}

		fileLimit, err := setFileLimit()
		if err != nil {
			return err
		}

		log.Info("Set file limit", zap.Uint64("fileLimit", fileLimit))

		conf, err := env.LoadConfig(ctx)
		if err != nil {
			return err
		}

		cat, err := loadCatalog(conf)
		if err != nil {
			return err
		}

		device, err := makeDevice(cat, log)
		if err != nil {
			return err
		}

		store := status.NewInmemoryStore()

		// The delivery loop: the one goroutine allowed to drive
		// PollEvents. It drains the aggregator into the status store,
		// which fans readings out to the TCP listeners.
		go func() {
			deliveryLog := log.Named("delivery")
			buf := make([]hal.Event, eventBufferSize)

			for {
				n, perr := device.PollEvents(buf)
				for _, ev := range buf[:n] {
					if rerr := store.Record(ev); rerr != nil {
						deliveryLog.Warn("Failed to record reading", zap.Error(rerr))
					}
				}

				if perr != nil {
					if errors.Is(perr, hal.ErrClosed) {
						deliveryLog.Info("Sensor device closed, delivery loop exiting")
					} else {
						deliveryLog.Error("Sensor poll failed, delivery loop exiting", zap.Error(perr))
					}
					return
				}
			}
		}()

		router := setupRouter(conf.DebugHTTP, log)

		// Ping test
		router.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		router.GET("/sensors", func(c *gin.Context) {
			data, jerr := cat.JSON()
			if jerr != nil {
				c.String(http.StatusInternalServerError, jerr.Error())
				return
			}

			c.Data(http.StatusOK, "application/json", data)
		})

		router.GET("/status", func(c *gin.Context) {
			data, serr := store.Snapshot()
			if serr != nil {
				c.String(http.StatusInternalServerError, serr.Error())
				return
			}

			c.Data(http.StatusOK, "application/json", data)
		})

		// Control surface: {"enabled": bool} and/or {"delayNs": n}
		router.POST("/sensors/:handle", func(c *gin.Context) {
			rawHandle, herr := strconv.Atoi(c.Param("handle"))
			if herr != nil {
				c.String(http.StatusBadRequest, "handle must be a decimal integer")
				return
			}
			handle := catalog.Handle(rawHandle)

			body, berr := c.GetRawData()
			if berr != nil {
				c.String(http.StatusBadRequest, berr.Error())
				return
			}

			if enabled := gjson.GetBytes(body, "enabled"); enabled.Exists() {
				if aerr := device.Activate(handle, enabled.Bool()); aerr != nil {
					c.String(controlStatus(aerr), aerr.Error())
					return
				}
			}

			if delay := gjson.GetBytes(body, "delayNs"); delay.Exists() {
				if derr := device.SetDelay(handle, delay.Int()); derr != nil {
					c.String(controlStatus(derr), derr.Error())
					return
				}
			}

			c.Status(http.StatusNoContent)
		})

		s := &http.Server{
			Addr:    net.JoinHostPort(host, httpPort),
			Handler: router,
		}

		// Initializing the server in a goroutine so that
		// it won't block the graceful shutdown handling below
		go func() {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Http server errored", zap.Error(err))
			}
		}()

		tcp := transport.NewTCP(transport.Options{
			Host:      host,
			Port:      port,
			Reuseport: true,
			Control:   device,
			Status:    store,
			Log:       log.Named("transport"),
		})

		if err := tcp.Start(ctx); err != nil {
			return err
		}

		log.Info("Listening",
			zap.Any("config", conf),
			zap.String("host", host),
			zap.Int("port", port),
			zap.String("httpPort", httpPort))

		// Listen for the interrupt signal.
		<-ctx.Done()

		// Restore default behavior on the interrupt signal and notify user of shutdown.
		signalStop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		// The context is used to inform the server it has 5 seconds to finish
		// the request it is currently handling
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.SetKeepAlivesEnabled(false)

		if err := s.Shutdown(ctx); err != nil {
			log.Error("Http server forced to shutdown", zap.Error(err))
		}

		if err := tcp.Close(); err != nil {
			log.Error("TCP server forced to shutdown", zap.Error(err))
		}

		if err := device.Close(); err != nil {
			log.Error("Sensor device did not close cleanly", zap.Error(err))
		}

		if err := store.Close(); err != nil {
			log.Error("Status store did not close cleanly", zap.Error(err))
		}

		log.Info("Exiting")
		return nil
	},
}

func loadCatalog(conf *env.Config) (catalog.Catalog, error) {
	if conf.CatalogPath == "" {
		return catalog.Default(), nil
	}

	data, err := os.ReadFile(conf.CatalogPath)
	if err != nil {
		return catalog.Catalog{}, err
	}

	return catalog.Load(data)
}

// makeDevice opens one stream driver per catalog slot that has a
// configured source. A slot without a source is skipped with a warning;
// only a fully sourceless configuration is fatal.
func makeDevice(cat catalog.Catalog, log *zap.Logger) (*hal.Device, error) {
	var slots []hal.Slot

	for _, slot := range cat.Slots() {
		path, ok := sources[slot.Name]
		if !ok {
			log.Warn("No event source configured for driver slot, skipping",
				zap.String("slot", slot.Name))
			continue
		}

		driver, err := stream.Open(path, slot.Handles)
		if err != nil {
			log.Error("Failed to open event source for driver slot",
				zap.String("slot", slot.Name),
				zap.String("path", path),
				zap.Error(err))
			continue
		}

		slots = append(slots, hal.Slot{
			Name:    slot.Name,
			Driver:  driver,
			Handles: slot.Handles,
		})
	}

	if len(slots) == 0 {
		return nil, errors.New("No sensor sources could be opened, nothing to poll")
	}

	return hal.NewDevice(slots, log)
}

func controlStatus(err error) int {
	if errors.Is(err, hal.ErrUnsupportedHandle) {
		return http.StatusBadRequest
	}

	return http.StatusInternalServerError
}

func setupRouter(debugHTTP bool, log *zap.Logger) *gin.Engine {
	gin.DisableConsoleColor()
	if !debugHTTP {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Add a ginzap middleware, which:
	//   - Logs all requests, like a combined access and error log.
	//   - Logs to stdout.
	//   - RFC3339 with UTC time format.
	r.Use(ginzap.Ginzap(log, time.RFC3339, true))

	r.Use(ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/health"},
	}))

	// Logs all panic to error log
	//   - stack means whether output the stack info.
	r.Use(ginzap.RecoveryWithZap(log, true))

	return r
}

func setFileLimit() (uint64, error) {
	var rLimit syscall.Rlimit

	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	rLimit.Cur = rLimit.Max
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	return rLimit.Cur, nil
}
