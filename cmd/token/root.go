package token

import (
	"encoding/hex"
	"fmt"

	"github.com/ValentinKolb/dGate/cmd/util"
	"github.com/ValentinKolb/dGate/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcClient *client.Client

	// TokenCommands represents the command channel token command group
	TokenCommands = &cobra.Command{
		Use:               "token",
		Short:             "Generate and verify command channel tokens",
		PersistentPreRunE: setupTokenClient,
	}

	// generateCmd represents the generate command
	generateCmd = &cobra.Command{
		Use:   "generate [nonce] [action]",
		Short: "Generate a single use token for an action",
		Args:  cobra.ExactArgs(2),
		RunE:  runGenerate,
	}

	// verifyCmd represents the verify command
	verifyCmd = &cobra.Command{
		Use:   "verify [nonce] [action] [token]",
		Short: "Verify and consume a token",
		Long:  "Verify a token using the nonce and action it was generated for. The token is the hex string returned by the generate command. A verified token cannot be used again.",
		Args:  cobra.ExactArgs(3),
		RunE:  runVerify,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add subcommands to token command
	TokenCommands.AddCommand(generateCmd)
	TokenCommands.AddCommand(verifyCmd)

	// Add common RPC flags to the token command
	util.SetupRPCClientFlags(TokenCommands)
}

// setupTokenClient initializes the gateway client
func setupTokenClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	rpcClient, err = util.NewClient()
	return err
}

// runGenerate handles the generate command
func runGenerate(_ *cobra.Command, args []string) error {
	nonce, action := args[0], args[1]

	token, err := rpcClient.GenerateToken(nonce, action)
	if err != nil {
		return fmt.Errorf("failed to generate token: %v", err)
	}

	fmt.Printf("token=%s\n", hex.EncodeToString(token))
	return nil
}

// runVerify handles the verify command
func runVerify(_ *cobra.Command, args []string) error {
	nonce, action := args[0], args[1]

	// Convert hex string token back to bytes
	token, err := hex.DecodeString(args[2])
	if err != nil {
		return fmt.Errorf("invalid token format (must be hex): %v", err)
	}

	verified, err := rpcClient.VerifyToken(nonce, action, token)
	if err != nil {
		return fmt.Errorf("failed to verify token: %v", err)
	}

	fmt.Printf("verified=%t\n", verified)
	return nil
}
