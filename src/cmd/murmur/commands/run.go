package commands

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mosaicnetworks/murmur/src/murmur"
	"github.com/mosaicnetworks/murmur/src/telemetry"
	"github.com/mosaicnetworks/murmur/src/version"
)

//NewRunCmd returns the command that starts a Murmur node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runMurmur,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runMurmur(cmd *cobra.Command, args []string) error {
	telemetry.SetInfo(version.Version, _config.Transport, _config.Topology)

	engine := murmur.NewMurmur(_config)

	if err := engine.Init(); err != nil {
		_config.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return engine.Run(ctx)
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.LogFile, "Also write info and debug logs to this file")

	// Network
	cmd.Flags().String("transport", _config.Transport, "stdio or tcp")
	cmd.Flags().String("node-id", _config.NodeID, "Id of this node in peers.json (tcp only)")
	cmd.Flags().StringP("listen", "l", _config.BindAddr, "Listen IP:Port for murmur node (tcp only)")
	cmd.Flags().StringP("advertise", "a", _config.AdvertiseAddr, "Advertise IP:Port for murmur node (tcp only)")
	cmd.Flags().DurationP("timeout", "t", _config.TCPTimeout, "TCP Timeout")
	cmd.Flags().Int("max-pool", _config.MaxPool, "Connection pool size max")

	// Service
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for HTTP service")
	cmd.Flags().Bool("no-service", _config.NoService, "Disable the HTTP service")

	// Node configuration
	cmd.Flags().Duration("heartbeat", _config.HeartbeatTimeout, "Time between gossips")
	cmd.Flags().Int("fanout", _config.Fanout, "Branching factor of the tree and ring topologies (grid and full ignore it)")
	cmd.Flags().String("topology", _config.Topology, "grid, tree, ring, full")
	cmd.Flags().Bool("accept-topology", _config.AcceptTopology, "Let topology messages replace the computed neighbours")
	cmd.Flags().Int("max-batch", _config.MaxBatch, "Max number of values per gossip message (0 for no limit)")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	configFile, err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	logger := _config.Logger()

	if configFile != "" {
		logger.Debugf("Using config file: %s", configFile)
	} else {
		logger.Debugf("No config file found in: %s", _config.DataDir)
	}

	logger.WithFields(logrus.Fields{
		"murmur.DataDir":          _config.DataDir,
		"murmur.LogLevel":         _config.LogLevel,
		"murmur.LogFile":          _config.LogFile,
		"murmur.Transport":        _config.Transport,
		"murmur.NodeID":           _config.NodeID,
		"murmur.BindAddr":         _config.BindAddr,
		"murmur.AdvertiseAddr":    _config.AdvertiseAddr,
		"murmur.ServiceAddr":      _config.ServiceAddr,
		"murmur.NoService":        _config.NoService,
		"murmur.MaxPool":          _config.MaxPool,
		"murmur.TCPTimeout":       _config.TCPTimeout,
		"murmur.HeartbeatTimeout": _config.HeartbeatTimeout,
		"murmur.Fanout":           _config.Fanout,
		"murmur.Topology":         _config.Topology,
		"murmur.AcceptTopology":   _config.AcceptTopology,
		"murmur.MaxBatch":         _config.MaxBatch,
	}).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper. It returns the config file
// that was used, if any.
func bindFlagsLoadViper(cmd *cobra.Command) (string, error) {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return "", err
	}

	// MURMUR_HEARTBEAT, MURMUR_SERVICE_LISTEN, ...
	viper.SetEnvPrefix("murmur")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return "", err
	}

	// look for config file in [datadir]/murmur.toml (.json, .yaml also work)
	viper.SetConfigName("murmur")       // name of config file (without extension)
	viper.AddConfigPath(_config.DataDir) // search root directory

	// If a config file is found, read it in.
	configFile := ""
	if err := viper.ReadInConfig(); err == nil {
		configFile = viper.ConfigFileUsed()
	} else if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
		return "", err
	}

	// second unmarshal to read from config file
	return configFile, viper.Unmarshal(_config)
}
