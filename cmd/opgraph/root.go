package main

import (
	"context"
	"flag"
	"strconv"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/born-ml/opgraph/engine"
)

type rootOptions struct {
	configPath string
	verbosity  int
	device     string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{verbosity: -1}
	cmd := &cobra.Command{
		Use:           "opgraph",
		Short:         "Instantiates, fuses and runs operator graphs.",
		Long:          `opgraph builds device-bound operators from a program file, rewrites operator chains into fused operators and executes the result.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "configuration file (yaml, json, toml or hcl)")
	cmd.PersistentFlags().IntVarP(&opts.verbosity, "verbosity", "v", -1, "log verbosity, overrides log.verbosity")
	cmd.PersistentFlags().StringVar(&opts.device, "device", "", "device name, overrides device.name")

	cmd.AddCommand(
		newOpsCmd(),
		newFuseCmd(opts),
		newRunCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// setup loads the configuration, configures klog and returns a context
// carrying the logger.
func (o *rootOptions) setup(ctx context.Context) (context.Context, *engine.Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := engine.LoadConfig(o.configPath)
	if err != nil {
		return ctx, nil, err
	}
	if o.verbosity >= 0 {
		cfg.Log.Verbosity = o.verbosity
	}
	if o.device != "" {
		cfg.Device.Name = o.device
	}

	fs := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(fs)
	if err := fs.Set("v", strconv.Itoa(cfg.Log.Verbosity)); err != nil {
		return ctx, nil, err
	}
	return klog.NewContext(ctx, klog.Background()), cfg, nil
}

// newEngine creates the configured device and an engine on it.
func (o *rootOptions) newEngine(ctx context.Context, cfg *engine.Config) (*engine.Engine, engine.Device, error) {
	dev, err := engine.NewDevice(cfg.Device.Name)
	if err != nil {
		return nil, nil, err
	}
	e, err := engine.New(ctx, cfg, dev)
	if err != nil {
		return nil, nil, err
	}
	return e, dev, nil
}
