// Package app wires all components of the pairs server together.
package app

import (
	"context"
	"github.com/lefinal/pairs-server/coordinator"
	"github.com/lefinal/pairs-server/errors"
	"github.com/lefinal/pairs-server/gateway"
	"github.com/lefinal/pairs-server/portal"
	"github.com/lefinal/pairs-server/store"
	"github.com/lefinal/pairs-server/web_server"
	"github.com/lefinal/pairs-server/ws"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"os"
)

// App is a complete pairs server instance.
type App struct {
	// config is the main config used for the App.
	config Config
}

func NewApp(config Config) *App {
	return &App{
		config: config,
	}
}

// Boot sets everything up based on the set config and boots. It blocks until
// the given context is done or a service fails.
func (app *App) Boot(ctx context.Context) error {
	// Validate config.
	err := ValidateConfig(app.config)
	if err != nil {
		return errors.Error{
			Code:    errors.ErrFatal,
			Err:     err,
			Message: "invalid config",
		}
	}
	// Setup logger.
	logger := app.setupLogging(app.config.Log)
	defer func(loggerToSync *zap.Logger) {
		_ = loggerToSync.Sync()
	}(logger)
	// Boot.
	err = app.boot(ctx, logger)
	if err != nil {
		err = errors.Wrap(err, "boot", nil)
		errors.Log(logger, err)
		return err
	}
	return nil
}

func (app *App) boot(ctx context.Context, logger *zap.Logger) error {
	logger.Warn("booting up")
	// Connect database.
	var mall *store.Mall
	if app.config.DBConn.Valid {
		logger.Debug("connecting to database")
		maxDBConnections := int32(defaultMaxDBConnections)
		if app.config.MaxDBConnections.Valid {
			maxDBConnections = app.config.MaxDBConnections.Int32
		}
		db, err := connectDB(ctx, logger.Named("db"), app.config.DBConn.String, maxDBConnections)
		if err != nil {
			return errors.Wrap(err, "connect database", nil)
		}
		defer db.Close()
		mall = store.NewMall(logger.Named("store"), db)
		logger.Debug("database ready")
	} else {
		logger.Warn("no database configured. game outcomes will not be persisted")
	}
	// Create portal base if MQTT address is provided.
	var portalBase portal.Base
	if app.config.MQTTAddr.Valid {
		var err error
		portalBase, err = portal.NewBase(logger.Named("portal"), portal.Config{MQTTAddr: app.config.MQTTAddr.String})
		if err != nil {
			return errors.Wrap(err, "new portal base", nil)
		}
	}
	logger.Debug("setting up...")
	// Create websocket hub, coordinator and gateway. The hub forwards new clients
	// to the gateway which needs the coordinator that notifies via the hub.
	var gw *gateway.Gateway
	hub := ws.NewHub(logger.Named("ws-hub"), ws.ListenerFunc(func(ctx context.Context, client *ws.Client) {
		gw.AcceptClient(ctx, client)
	}))
	coord := coordinator.New(logger.Named("coordinator"), coordinator.Config{
		RoomTTL:       app.config.RoomTTL(),
		SweepInterval: app.config.SweepInterval(),
	}, hub)
	gw = gateway.New(logger.Named("gateway"), coord, hub)
	// Create web server.
	webServer, err := web_server.NewWebServer(logger.Named("web-server"), web_server.Config{
		ServeAddr:    app.config.WebsocketAddr,
		WriteTimeout: web_server.DefaultWriteTimeout,
		ReadTimeout:  web_server.DefaultReadTimeout,
	})
	if err != nil {
		return errors.Wrap(err, "create web server", nil)
	}
	var leaderboard web_server.Leaderboard
	if mall != nil {
		leaderboard = mall
	}
	webServer.PopulateRoutes(ctx, hub, coord, leaderboard)
	// Create services.
	s := createServices(app.config, logger, portalBase, mall, coord, hub)
	s["coordinator"] = coord
	s["ws-hub"] = hub
	s["web-server"] = webServer
	logger.Warn("setup completed. booting...")
	err = s.run(ctx, logger)
	logger.Warn("shutting down")
	if err != nil {
		return errors.Wrap(err, "run services", nil)
	}
	return nil
}

func (app *App) setupLogging(config LogConfig) *zap.Logger {
	encConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	cores := make([]zapcore.Core, 0)
	// Setup stdout logger with colorful level output.
	stdOutEncConfig := encConfig
	stdOutEncConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cores = append(cores, zapcore.NewCore(
		zapcore.NewConsoleEncoder(stdOutEncConfig),
		zapcore.Lock(os.Stdout),
		zap.LevelEnablerFunc(func(level zapcore.Level) bool {
			return level >= config.StdoutLogLevel
		})))
	// Setup error logger.
	cores = append(cores, zapcore.NewCore(
		zapcore.NewConsoleEncoder(encConfig),
		zapcore.Lock(os.Stderr),
		zap.LevelEnablerFunc(func(level zapcore.Level) bool {
			return level >= zap.ErrorLevel
		})))
	// Setup high priority logger.
	if config.HighPriorityOutput.Valid {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encConfig),
			zapcore.AddSync(&lumberjack.Logger{
				Filename: config.HighPriorityOutput.String,
				MaxSize:  config.MaxSize,
				MaxAge:   config.KeepDays,
			}),
			zap.LevelEnablerFunc(func(level zapcore.Level) bool {
				return level >= zap.WarnLevel
			})))
	}
	// Setup debug logger.
	if config.DebugOutput.Valid {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encConfig),
			zapcore.AddSync(&lumberjack.Logger{
				Filename: config.DebugOutput.String,
				MaxSize:  config.MaxSize,
				MaxAge:   config.KeepDays,
			}),
			zap.LevelEnablerFunc(func(level zapcore.Level) bool {
				return level >= zap.DebugLevel
			})))
	}
	// Combine.
	return zap.New(zapcore.NewTee(cores...))
}
