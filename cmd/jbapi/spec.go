package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cuemby/jbapi/pkg/config"
	"github.com/cuemby/jbapi/pkg/specstore"
)

var specCmd = &cobra.Command{
	Use:   "spec",
	Short: "Manage API specs in the local spec store",
}

var specCreateCmd = &cobra.Command{
	Use:   "create <api_name>",
	Short: "Create or update an API spec",
	Args:  cobra.ExactArgs(1),
	RunE:  runSpecCreate,
}

var specGetCmd = &cobra.Command{
	Use:   "get <api_name>",
	Short: "Print one API spec",
	Args:  cobra.ExactArgs(1),
	RunE:  runSpecGet,
}

var specListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all known API specs",
	RunE:  runSpecList,
}

func init() {
	specCreateCmd.Flags().String("cmd", "", "worker command line (required)")
	specCreateCmd.Flags().Int("endpt-in", 0, "ingress broker port (required)")
	specCreateCmd.Flags().Int("endpt-out", 0, "egress broker port (required)")
	specCreateCmd.Flags().StringSlice("methods", nil, "accepted HTTP methods (required)")
	specCreateCmd.Flags().String("publisher", "", "provenance string (required)")
	specCreateCmd.Flags().String("image", "", "container image (defaults to <prefix>_<api_name>)")
	specCreateCmd.Flags().Int("timeout-secs", 0, "per-request timeout in seconds (defaults to 30)")
	_ = specCreateCmd.MarkFlagRequired("cmd")
	_ = specCreateCmd.MarkFlagRequired("endpt-in")
	_ = specCreateCmd.MarkFlagRequired("endpt-out")
	_ = specCreateCmd.MarkFlagRequired("methods")
	_ = specCreateCmd.MarkFlagRequired("publisher")

	specListCmd.Flags().String("publisher", "", "filter by publisher")

	specCmd.AddCommand(specCreateCmd, specGetCmd, specListCmd)
	rootCmd.AddCommand(specCmd)
}

func openStore() (specstore.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %v", err)
	}
	return specstore.NewBoltStore(cfg.DataDir, cfg.ImagePrefix)
}

func runSpecCreate(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	cmdLine, _ := cmd.Flags().GetString("cmd")
	endptIn, _ := cmd.Flags().GetInt("endpt-in")
	endptOut, _ := cmd.Flags().GetInt("endpt-out")
	methods, _ := cmd.Flags().GetStringSlice("methods")
	publisher, _ := cmd.Flags().GetString("publisher")
	image, _ := cmd.Flags().GetString("image")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout-secs")

	spec, err := store.Upsert(specstore.Fields{
		APIName:     args[0],
		Cmd:         cmdLine,
		ImageName:   image,
		EndpointIn:  endptIn,
		EndpointOut: endptOut,
		TimeoutSecs: timeoutSecs,
		Methods:     methods,
		Publisher:   publisher,
	})
	if err != nil {
		return fmt.Errorf("failed to create spec: %v", err)
	}

	fmt.Printf("created %s (image=%s, in=%d, out=%d, timeout=%ds)\n",
		spec.APIName, spec.ImageName, spec.EndpointIn, spec.EndpointOut, spec.TimeoutSecs)
	return nil
}

func runSpecGet(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	spec, err := store.Get(args[0])
	if err == specstore.ErrNotFound {
		return fmt.Errorf("no spec found for %q", args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to read spec: %v", err)
	}

	methods := make([]string, 0, len(spec.Methods))
	for m := range spec.Methods {
		methods = append(methods, m)
	}

	fmt.Printf("api_name:    %s\n", spec.APIName)
	fmt.Printf("cmd:         %s\n", spec.Cmd)
	fmt.Printf("image_name:  %s\n", spec.ImageName)
	fmt.Printf("endpoint_in: %d\n", spec.EndpointIn)
	fmt.Printf("endpoint_out: %d\n", spec.EndpointOut)
	fmt.Printf("timeout_secs: %d\n", spec.TimeoutSecs)
	fmt.Printf("methods:     %s\n", strings.Join(methods, ","))
	fmt.Printf("publisher:   %s\n", spec.Publisher)
	fmt.Printf("create_time: %s\n", spec.CreateTime)
	return nil
}

func runSpecList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	publisher, _ := cmd.Flags().GetString("publisher")
	specs, err := store.List(publisher)
	if err != nil {
		return fmt.Errorf("failed to list specs: %v", err)
	}

	if len(specs) == 0 {
		fmt.Println("no specs found")
		return nil
	}

	for _, spec := range specs {
		fmt.Printf("%-20s cmd=%-30q image=%-30s in=%-6d out=%-6d timeout=%ds publisher=%s\n",
			spec.APIName, spec.Cmd, spec.ImageName, spec.EndpointIn, spec.EndpointOut, spec.TimeoutSecs, spec.Publisher)
	}
	return nil
}
