package app

import (
	"encoding/json"
	"fmt"
	"github.com/gobuffalo/nulls"
	"github.com/lefinal/pairs-server/errors"
	"go.uber.org/zap/zapcore"
	"os"
	"time"
)

// Config is the configuration needed in order to boot an App.
type Config struct {
	// WebsocketAddr is the address, the app will listen for connections on.
	WebsocketAddr string `json:"websocket_addr"`
	// DBConn is the optional connection string for the PostgreSQL database. If
	// not set, game outcomes are not persisted.
	DBConn nulls.String `json:"db_conn"`
	// MaxDBConnections is the optional maximum number of database connections.
	MaxDBConnections nulls.Int32 `json:"max_db_connections"`
	// MQTTAddr is the optional address of the MQTT-server. If not set, game
	// outcomes are not published.
	MQTTAddr nulls.String `json:"mqtt_addr"`
	// RoomTTLSec is the optional age in seconds after which rooms are deleted.
	RoomTTLSec nulls.Int `json:"room_ttl_sec"`
	// SweepIntervalSec is the optional interval in seconds for deleting expired
	// rooms.
	SweepIntervalSec nulls.Int `json:"sweep_interval_sec"`
	// Log is the logging configuration.
	Log LogConfig `json:"log"`
}

// LogConfig is the configuration for logging.
type LogConfig struct {
	// StdoutLogLevel is the minimum level for logging to stdout.
	StdoutLogLevel zapcore.Level `json:"stdout_log_level"`
	// HighPriorityOutput is the optional file to log warnings and errors to.
	HighPriorityOutput nulls.String `json:"high_priority_output"`
	// DebugOutput is the optional file to log everything to.
	DebugOutput nulls.String `json:"debug_output"`
	// MaxSize is the maximum size in megabytes of log files before they get
	// rotated.
	MaxSize int `json:"max_size"`
	// KeepDays is the number of days to keep rotated log files.
	KeepDays int `json:"keep_days"`
	// SystemDebugStatsInterval is the optional interval in minutes for logging
	// system debug stats.
	SystemDebugStatsInterval nulls.Int `json:"system_debug_stats_interval"`
}

// RoomTTL returns the configured room TTL or zero if not set.
func (c Config) RoomTTL() time.Duration {
	if !c.RoomTTLSec.Valid {
		return 0
	}
	return time.Duration(c.RoomTTLSec.Int) * time.Second
}

// SweepInterval returns the configured sweep interval or zero if not set.
func (c Config) SweepInterval() time.Duration {
	if !c.SweepIntervalSec.Valid {
		return 0
	}
	return time.Duration(c.SweepIntervalSec.Int) * time.Second
}

// LoadConfig reads the Config from the JSON file at the given path.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Error{
			Code:    errors.ErrFatal,
			Err:     err,
			Message: "read config file",
			Details: errors.Details{"path": path},
		}
	}
	var config Config
	err = json.Unmarshal(raw, &config)
	if err != nil {
		return Config{}, errors.Error{
			Code:    errors.ErrFatal,
			Kind:    errors.KindDecodeJSON,
			Err:     err,
			Message: "parse config file",
			Details: errors.Details{"path": path},
		}
	}
	return config, nil
}

// ValidateConfig makes sure that the given Config is valid.
func ValidateConfig(config Config) error {
	if config.WebsocketAddr == "" {
		return errors.NewValidationError("missing websocket addr", errors.Details{"field": "websocket_addr"})
	}
	if config.DBConn.Valid && config.DBConn.String == "" {
		return errors.NewValidationError("empty db connection string", errors.Details{"field": "db_conn"})
	}
	if config.MaxDBConnections.Valid && config.MaxDBConnections.Int32 <= 0 {
		return errors.NewValidationError("max db connections must be positive",
			errors.Details{"field": "max_db_connections", "was": config.MaxDBConnections.Int32})
	}
	if config.MQTTAddr.Valid && config.MQTTAddr.String == "" {
		return errors.NewValidationError("empty mqtt addr", errors.Details{"field": "mqtt_addr"})
	}
	positive := map[string]nulls.Int{
		"room_ttl_sec":                    config.RoomTTLSec,
		"sweep_interval_sec":              config.SweepIntervalSec,
		"log.system_debug_stats_interval": config.Log.SystemDebugStatsInterval,
	}
	for field, value := range positive {
		if value.Valid && value.Int <= 0 {
			return errors.NewValidationError(fmt.Sprintf("%s must be positive", field),
				errors.Details{"field": field, "was": value.Int})
		}
	}
	if config.Log.MaxSize < 0 {
		return errors.NewValidationError("max log size must not be negative",
			errors.Details{"field": "log.max_size", "was": config.Log.MaxSize})
	}
	if config.Log.KeepDays < 0 {
		return errors.NewValidationError("keep days must not be negative",
			errors.Details{"field": "log.keep_days", "was": config.Log.KeepDays})
	}
	return nil
}
