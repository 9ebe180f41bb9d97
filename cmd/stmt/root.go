package stmt

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dGate/cmd/util"
	"github.com/ValentinKolb/dGate/lib/schema"
	"github.com/ValentinKolb/dGate/rpc/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var (
	rpcClient *client.Client

	// StatementCommands represents the statement command group
	StatementCommands = &cobra.Command{
		Use:               "stmt",
		Short:             "Register categories and run statements against a dGate server",
		PersistentPreRunE: setupClient,
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if rpcClient == nil {
				return nil
			}
			return rpcClient.Close()
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add common RPC flags to the statement command
	util.SetupRPCClientFlags(StatementCommands)

	StatementCommands.PersistentFlags().String("category-file", "", util.WrapString("YAML file with the category the statement runs against (name, payload and keys)"))

	// Add subcommands
	StatementCommands.AddCommand(registerCmd)
	StatementCommands.AddCommand(queryCmd)
	StatementCommands.AddCommand(writeCmd)
	StatementCommands.AddCommand(purgeCmd)
	StatementCommands.AddCommand(saveFileCmd)
	StatementCommands.AddCommand(loadFileCmd)
	StatementCommands.AddCommand(pingCmd)
	StatementCommands.AddCommand(perfTestCmd)
}

// setupClient initializes the RPC client
func setupClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	rpcClient, err = util.NewClient()
	return err
}

// readCategorySpec reads the category given by --category-file
func readCategorySpec() (schema.Spec, error) {
	var spec schema.Spec

	path := viper.GetString("category-file")
	if path == "" {
		return spec, fmt.Errorf("--category-file is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return spec, fmt.Errorf("failed to read category file: %v", err)
	}
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return spec, fmt.Errorf("failed to parse category file %s: %v", path, err)
	}
	if spec.Name == "" {
		return spec, fmt.Errorf("category file %s has no name", path)
	}
	return spec, nil
}

// registerFromFlags registers the category given by --category-file
func registerFromFlags() (*client.Category, error) {
	spec, err := readCategorySpec()
	if err != nil {
		return nil, err
	}
	return rpcClient.RegisterCategory(spec)
}
