package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"canopy/internal/acquisition"
	"canopy/internal/cmdlog"
	"canopy/internal/config"
	"canopy/internal/earthengine"
	"canopy/internal/imagery"
	"canopy/internal/mask"
	"canopy/internal/metrics"
	"canopy/internal/theme"
	"canopy/internal/track"
	"canopy/internal/train"
)

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "init":
		cmdInit()
	case "acquisitions":
		cmdAcquisitions()
	case "mask":
		cmdMask()
	case "layers":
		cmdLayers()
	case "train":
		cmdTrain()
	default:
		printHelp()
	}
}

func printHelp() {
	theme.PrintBanner()
	fmt.Println("Usage: canopy <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init          Create a config file at ./canopy.yaml")
	fmt.Println("  acquisitions  List the LiDAR acquisition registry")
	fmt.Println("  mask          Build the validity-mask expression for an acquisition")
	fmt.Println("  layers        Build input/label layer expressions and check alignment")
	fmt.Println("  train         Train a model and log it to the tracking service")
}

func loadConfig(path string) config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	return cfg
}

func cmdInit() {
	out := flag.NewFlagSet("init", flag.ExitOnError)
	path := out.String("path", "./canopy.yaml", "path to write config")
	_ = out.Parse(os.Args[2:])
	cfg := config.Default()
	if err := config.Save(*path, cfg); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	abs, _ := filepath.Abs(*path)
	theme.PrintBanner()
	fmt.Println("Config written to:", abs)
}

func cmdAcquisitions() {
	fs := flag.NewFlagSet("acquisitions", flag.ExitOnError)
	_ = fs.Parse(os.Args[2:])
	reg := acquisition.DefaultRegistry()
	for _, a := range reg.All() {
		fmt.Printf("%-28s %s .. %s\n", a.Name, a.StartDate.Format(time.DateOnly), a.EndDate.Format(time.DateOnly))
	}
}

func cmdMask() {
	fs := flag.NewFlagSet("mask", flag.ExitOnError)
	cfgPath := fs.String("config", "./canopy.yaml", "config path")
	eval := fs.Bool("eval", false, "evaluate against the backend instead of printing the expression")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() < 1 {
		fmt.Println("usage: canopy mask [options] <acquisition>")
		os.Exit(1)
	}
	name := fs.Arg(0)
	err := cmdlog.Run("mask", func() error {
		cfg := loadConfig(*cfgPath)
		reg := acquisition.DefaultRegistry()
		acq, ok := reg.Get(name)
		if !ok {
			return fmt.Errorf("unknown acquisition %s", name)
		}
		m := mask.Validity(acq, cfg.Archive)
		if !*eval {
			b, err := json.MarshalIndent(m.Expr(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(b))
			return nil
		}
		client := earthengine.NewClient(cfg.Archive.BaseURL, cfg.Archive.Token)
		r, err := client.Evaluate(context.Background(), m)
		if err != nil {
			return err
		}
		valid := 0
		for i := range r.Values {
			if r.Valid(i) && r.Values[i] != 0 {
				valid++
			}
		}
		fmt.Printf("%s: %dx%d @ %gm, %.1f%% valid\n", name, r.Width, r.Height, r.Scale,
			100*float64(valid)/float64(len(r.Values)))
		return nil
	})
	if err != nil {
		os.Exit(1)
	}
}

func cmdLayers() {
	fs := flag.NewFlagSet("layers", flag.ExitOnError)
	cfgPath := fs.String("config", "./canopy.yaml", "config path")
	eval := fs.Bool("eval", false, "evaluate both layers and verify alignment")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() < 1 {
		fmt.Println("usage: canopy layers [options] <acquisition>")
		os.Exit(1)
	}
	name := fs.Arg(0)
	err := cmdlog.Run("layers", func() error {
		cfg := loadConfig(*cfgPath)
		reg := acquisition.DefaultRegistry()
		acq, ok := reg.Get(name)
		if !ok {
			return fmt.Errorf("unknown acquisition %s", name)
		}
		input := imagery.InputLayer(acq, cfg.Archive)
		label := imagery.LabelLayer(acq, cfg.Archive)
		if !*eval {
			for _, layer := range []earthengine.Image{input, label} {
				b, err := json.MarshalIndent(layer.Expr(), "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(b))
			}
			return nil
		}
		client := earthengine.NewClient(cfg.Archive.BaseURL, cfg.Archive.Token)
		ctx := context.Background()
		in, err := client.Evaluate(ctx, input)
		if err != nil {
			return err
		}
		lb, err := client.Evaluate(ctx, label)
		if err != nil {
			return err
		}
		if err := imagery.CheckAlignment(in, lb); err != nil {
			return err
		}
		fmt.Printf("%s: input %dx%d @ %gm, label %dx%d @ %gm, aligned\n",
			name, in.Width, in.Height, in.Scale, lb.Width, lb.Height, lb.Scale)
		return nil
	})
	if err != nil {
		os.Exit(1)
	}
}

func cmdTrain() {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	cfgPath := fs.String("config", "./canopy.yaml", "config path")
	allowDup := fs.Bool("allow-duplicate-runs", false, "allow a run whose config matches an existing one")
	allowCPU := fs.Bool("allow-cpu", false, "train without a GPU")
	_ = fs.Parse(os.Args[2:])
	err := cmdlog.Run("train", func() error {
		cfg := loadConfig(*cfgPath)
		metrics.StartServer(cfg.Storage.MetricsAddr)
		theme.PrintBanner()
		// SIGINT during fitting is a manual early stop, not a fault.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		tracker := track.NewClient(cfg.Tracking.BaseURL, cfg.Tracking.APIKey)
		return train.Run(ctx, cfg, tracker, train.Options{
			AllowDuplicateRuns: *allowDup,
			AllowCPU:           *allowCPU,
		})
	})
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}
