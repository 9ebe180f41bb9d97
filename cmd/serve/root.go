package serve

import (
	"fmt"
	"os"
	"strings"

	cmdUtil "github.com/ValentinKolb/dGate/cmd/util"
	"github.com/ValentinKolb/dGate/lib/auth"
	"github.com/ValentinKolb/dGate/lib/cursor"
	"github.com/ValentinKolb/dGate/lib/token"
	"github.com/ValentinKolb/dGate/lib/writequeue"
	"github.com/ValentinKolb/dGate/rpc/common"
	"github.com/ValentinKolb/dGate/rpc/serializer"
	"github.com/ValentinKolb/dGate/rpc/server"
	"github.com/ValentinKolb/dGate/rpc/transport"
	"github.com/ValentinKolb/dGate/rpc/transport/http"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the dGate server",
		Long:    `Start the dGate server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is DGATE_<flag> (e.g. DGATE_TOKEN_TIMEOUT=30s)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(initConfig)

	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen (e.g. localhost:8080)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error), optionally followed by per package overrides (e.g. info,cursor=debug)"))

	key = "log-file"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("File the logs are appended to instead of stdout"))

	key = "storage"
	ServeCmd.PersistentFlags().String(key, string(common.StorageMemory), cmdUtil.WrapString("The backing store of the gateway (memory, sqlite)"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("DataDir is the directory of the sqlite database"))

	key = "users-file"
	ServeCmd.PersistentFlags().String(key, "users.yaml", cmdUtil.WrapString("YAML file with the users, their bcrypt password hashes and roles"))

	key = "trust-file"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("YAML file listing the trusted categories and statement descriptors. Categories and statements missing from the list are rejected"))

	key = "trusted-categories"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Comma-separated list of additional trusted category names"))

	key = "token-timeout"
	ServeCmd.PersistentFlags().Duration(key, token.DefaultTimeout, cmdUtil.WrapString("How long a generated command channel token stays valid"))

	key = "cursor-timeout"
	ServeCmd.PersistentFlags().Duration(key, cursor.DefaultTimeout, cmdUtil.WrapString("Idle time after which an open cursor is discarded"))

	key = "session-timeout"
	ServeCmd.PersistentFlags().Duration(key, cursor.DefaultSessionTimeout, cmdUtil.WrapString("Idle time after which a client session and its cursors are discarded"))

	key = "drain-timeout"
	ServeCmd.PersistentFlags().Duration(key, writequeue.DefaultDrainTimeout, cmdUtil.WrapString("How long shutdown waits for queued writes to be applied"))

	key = "batch-size"
	ServeCmd.PersistentFlags().Int(key, cursor.DefaultBatchSize, cmdUtil.WrapString("Number of rows returned per page when the client does not ask for a size"))

	key = "stats-interval"
	ServeCmd.PersistentFlags().Duration(key, 0, cmdUtil.WrapString("Interval of the query latency log report, 0 disables it"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// parse storage
	switch storage := common.StorageType(viper.GetString("storage")); storage {
	case common.StorageMemory, common.StorageSQLite:
		serveCmdConfig.Storage = storage
	default:
		return fmt.Errorf("invalid storage type: %s (expected one of: memory, sqlite)", storage)
	}

	// parse trusted categories
	serveCmdConfig.TrustedCategories = nil
	for _, name := range strings.Split(viper.GetString("trusted-categories"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			serveCmdConfig.TrustedCategories = append(serveCmdConfig.TrustedCategories, name)
		}
	}

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.UsersFile = viper.GetString("users-file")
	serveCmdConfig.TrustFile = viper.GetString("trust-file")
	serveCmdConfig.TokenTimeout = viper.GetDuration("token-timeout")
	serveCmdConfig.CursorTimeout = viper.GetDuration("cursor-timeout")
	serveCmdConfig.SessionTimeout = viper.GetDuration("session-timeout")
	serveCmdConfig.DrainTimeout = viper.GetDuration("drain-timeout")
	serveCmdConfig.BatchSize = viper.GetInt("batch-size")
	serveCmdConfig.StatsInterval = viper.GetDuration("stats-interval")
	serveCmdConfig.LogFile = viper.GetString("log-file")

	if _, err := common.ParseLogLevels(serveCmdConfig.LogLevel); err != nil {
		return err
	}

	if serveCmdConfig.UsersFile == "" {
		return fmt.Errorf("a users file is required")
	}
	if serveCmdConfig.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", serveCmdConfig.BatchSize)
	}

	return nil
}

// run starts the dGate server
func run(_ *cobra.Command, _ []string) error {

	if serveCmdConfig.LogFile != "" {
		f, err := os.OpenFile(serveCmdConfig.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %v", err)
		}
		defer f.Close()
		common.SetLogOutput(f)
	}

	// parse the serializer
	s, err := serializer.ByName(viper.GetString("serializer"))
	if err != nil {
		return err
	}

	users, err := auth.LoadUsers(serveCmdConfig.UsersFile)
	if err != nil {
		return fmt.Errorf("failed to load users: %v", err)
	}

	// Parse the transport
	var t transport.IRPCServerTransport
	switch viper.GetString("transport") {
	case "http":
		t = http.NewHttpServerTransport(users)
	default:
		return fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		t,
		s,
	)

	return serv.Serve()
}

// initConfig reads in serveCmdConfig file and ENV variables if set.
func initConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("dgate")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match

}
