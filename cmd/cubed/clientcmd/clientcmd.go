package clientcmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"cubed/internal/wire"
)

// New returns the "client" command with all convenience verbs wired in.
func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Drive a running compute server",
	}

	cmd.PersistentFlags().String("addr", "http://localhost:1111/gdalcubes/api", "compute server base URL")

	cmd.AddCommand(
		newPutCubeCmd(),
		newGetCubeCmd(),
		newStartCmd(),
		newStatusCmd(),
		newDownloadCmd(),
	)
	return cmd
}

func clientFromCmd(cmd *cobra.Command) *Client {
	addr, _ := cmd.Flags().GetString("addr")
	return NewClient(addr)
}

func newPutCubeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put-cube [descriptor-file]",
		Short: "Register a cube descriptor, printing its assigned id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read descriptor: %w", err)
			}

			client := clientFromCmd(cmd)
			id, err := client.PutCube(context.Background(), json.RawMessage(raw))
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <cube-id> <chunk-id>",
		Short: "Request that a chunk begin computing",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cubeID, chunkID, err := parseIDs(args)
			if err != nil {
				return err
			}
			return clientFromCmd(cmd).Start(context.Background(), cubeID, chunkID)
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <cube-id> <chunk-id>",
		Short: "Print a chunk's current status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cubeID, chunkID, err := parseIDs(args)
			if err != nil {
				return err
			}
			status, err := clientFromCmd(cmd).Status(context.Background(), cubeID, chunkID)
			if err != nil {
				return err
			}
			fmt.Println(status)
			return nil
		},
	}
}

func newDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download <cube-id> <chunk-id> <out-file>",
		Short: "Block until a chunk is finished, then write its wire payload to out-file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cubeID, chunkID, err := parseIDs(args[:2])
			if err != nil {
				return err
			}
			payload, err := clientFromCmd(cmd).Download(context.Background(), cubeID, chunkID)
			if err != nil {
				return err
			}
			return os.WriteFile(args[2], payload, 0o644)
		},
	}
}

func newGetCubeCmd() *cobra.Command {
	var selectPath string
	cmd := &cobra.Command{
		Use:   "get-cube <cube-id>",
		Short: "Print a cube's JSON description, optionally projected with --select",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cubeID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("parse cube id: %w", err)
			}
			raw, err := clientFromCmd(cmd).GetCube(context.Background(), cubeID)
			if err != nil {
				return err
			}
			if selectPath == "" {
				pretty, err := wire.Pretty(raw)
				if err != nil {
					return err
				}
				fmt.Println(string(pretty))
				return nil
			}
			matches, err := wire.Select(raw, selectPath)
			if err != nil {
				return err
			}
			for _, m := range matches {
				fmt.Println(string(m))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&selectPath, "select", "", "JSONPath expression projecting a field out of the cube description")
	return cmd
}

func parseIDs(args []string) (cubeID, chunkID int, err error) {
	cubeID, err = strconv.Atoi(args[0])
	if err != nil {
		return 0, 0, fmt.Errorf("parse cube id: %w", err)
	}
	chunkID, err = strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, fmt.Errorf("parse chunk id: %w", err)
	}
	return cubeID, chunkID, nil
}
