package stmt

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ValentinKolb/dGate/cmd/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	registerCmd = &cobra.Command{
		Use:   "register",
		Short: "Registers the category given by --category-file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := registerFromFlags()
			if err != nil {
				return err
			}
			fmt.Printf("registered %s as %s\n", cat.Name(), cat.Handle())
			return nil
		},
	}
	queryCmd = &cobra.Command{
		Use:   "query [statement] [params...]",
		Short: "Runs a query and prints the results as JSON lines",
		Long:  util.WrapString(`Runs a query statement against the category given by --category-file. Parameters have the form TYPE:VALUE (e.g. s:agent-1 l:42 s[:a,b). All pages of the result are fetched.`),
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args[1:])
			if err != nil {
				return err
			}

			cat, err := registerFromFlags()
			if err != nil {
				return err
			}
			stmt, err := rpcClient.Prepare(cat, args[0])
			if err != nil {
				return err
			}

			cursor, err := rpcClient.Query(stmt, viper.GetInt("batch-size"), params...)
			if err != nil {
				return err
			}
			defer cursor.Close()

			enc := json.NewEncoder(os.Stdout)
			rows := 0
			for cursor.HasNext() {
				row, err := cursor.Next()
				if err != nil {
					return err
				}
				if err := enc.Encode(row); err != nil {
					return err
				}
				rows++
			}
			fmt.Fprintf(os.Stderr, "%d rows\n", rows)
			return nil
		},
	}
	writeCmd = &cobra.Command{
		Use:   "write [statement] [params...]",
		Short: "Queues an add, replace, update or remove statement",
		Long:  util.WrapString(`Runs a write statement against the category given by --category-file. Parameters have the form TYPE:VALUE (e.g. s:agent-1 l:42 s[:a,b). Writes are applied asynchronously in submission order.`),
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args[1:])
			if err != nil {
				return err
			}

			cat, err := registerFromFlags()
			if err != nil {
				return err
			}
			stmt, err := rpcClient.Prepare(cat, args[0])
			if err != nil {
				return err
			}

			if err := rpcClient.Write(stmt, params...); err != nil {
				return err
			}
			fmt.Println("write queued")
			return nil
		},
	}
	purgeCmd = &cobra.Command{
		Use:   "purge [agentId]",
		Short: "Removes all data of an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcClient.Purge(args[0]); err != nil {
				return err
			}
			fmt.Println("purge queued")
			return nil
		},
	}
	saveFileCmd = &cobra.Command{
		Use:   "save-file [name] [path]",
		Short: "Stores a local file under a name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			if err := rpcClient.SaveFile(args[0], data); err != nil {
				return err
			}
			fmt.Printf("saved %d bytes as %s\n", len(data), args[0])
			return nil
		},
	}
	loadFileCmd = &cobra.Command{
		Use:   "load-file [name]",
		Short: "Writes a stored file to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, loaded, err := rpcClient.LoadFile(args[0])
			if err != nil {
				return err
			}
			if !loaded {
				return fmt.Errorf("file %s not found", args[0])
			}
			_, err = os.Stdout.Write(data)
			return err
		},
	}
	pingCmd = &cobra.Command{
		Use:   "ping",
		Short: "Checks the connection and prints the server epoch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			epoch, version, err := rpcClient.Ping()
			if err != nil {
				return err
			}
			fmt.Printf("dGate %s (epoch %s)\n", version, epoch)
			return nil
		},
	}
)

func init() {
	queryCmd.Flags().Int("batch-size", 0, util.WrapString("Rows per page, 0 uses the server default"))
}
