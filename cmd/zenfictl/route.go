package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const lastRouteKey = "zenfi.last_route"

func init() {
	rootCmd.AddCommand(routeCmd)
}

var routeCmd = &cobra.Command{
	Use:   "route [path]",
	Short: "show or set the last visited route",
	Args:  cobra.MaximumNArgs(1),
	RunE:  doRoute,
}

func doRoute(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	state, err := openState()
	if err != nil {
		return err
	}
	defer state.Close()

	kv := state.KV()
	if len(args) == 1 {
		return kv.Set(ctx, lastRouteKey, args[0])
	}

	route, ok, err := kv.Get(ctx, lastRouteKey)
	if err != nil {
		return err
	}
	if !ok {
		route = "/"
	}

	fmt.Println(route)
	return nil
}
