// Command rectanglify replaces images, video files and live streams with
// flat-colour rectangle mosaics.
//
// Usage:
//
//	rectanglify image  [flags] <input> <output.png|.jpg|.svg>
//	rectanglify video  [flags] <input> <output>
//	rectanglify stream [flags] -config rectanglify.yaml
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/Liamolucko/rectanglify"
	"github.com/Liamolucko/rectanglify/internal/compose"
)

// Version information
const version = "v0.1.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "image":
		err = runImage(os.Args[2:])
	case "video":
		err = runVideo(os.Args[2:])
	case "stream":
		err = runStream(os.Args[2:])
	case "version", "-version", "--version":
		fmt.Printf("rectanglify %s\n", version)
		return
	case "help", "-h", "-help", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	if err != nil {
		logrus.WithError(err).Error("rectanglify: failed")
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  rectanglify image  [flags] <input> <output.png|.jpg|.svg>\n")
	fmt.Fprintf(os.Stderr, "  rectanglify video  [flags] <input> <output>\n")
	fmt.Fprintf(os.Stderr, "  rectanglify stream [flags] -config rectanglify.yaml\n\n")
	fmt.Fprintf(os.Stderr, "Run 'rectanglify <command> -h' for the flags of a command.\n")
}

// processingFlags are shared by every command.
type processingFlags struct {
	threshold       float64
	minSize         int
	maxDepth        int
	borders         bool
	borderColor     string
	borderThickness int
	parallel        int
	debug           bool
	logJSON         bool
}

func addProcessingFlags(fs *flag.FlagSet) *processingFlags {
	def := rectanglify.DefaultConfig()
	pf := &processingFlags{}
	fs.Float64Var(&pf.threshold, "threshold", def.VarianceThreshold, "Variance threshold below which a region is drawn as one rectangle")
	fs.IntVar(&pf.minSize, "min-size", def.MinRegionSize, "Smallest region side length")
	fs.IntVar(&pf.maxDepth, "max-depth", def.MaxDepth, "Maximum subdivision depth (0 = one rectangle)")
	fs.BoolVar(&pf.borders, "borders", def.DrawBorders, "Outline every rectangle")
	fs.StringVar(&pf.borderColor, "border-color", def.BorderColor.String(), "Outline colour (#rrggbb or #rgb)")
	fs.IntVar(&pf.borderThickness, "border-thickness", def.BorderThickness, "Outline width in pixels")
	fs.IntVar(&pf.parallel, "parallel", def.Parallelism, "Decompose subtrees on this many goroutines (0 = sequential)")
	fs.BoolVar(&pf.debug, "debug", false, "Enable debug logging")
	fs.BoolVar(&pf.logJSON, "log-json", false, "Log as JSON")
	return pf
}

// config builds and validates the processing configuration.
func (pf *processingFlags) config() (rectanglify.Config, error) {
	color, err := rectanglify.ParseColor(pf.borderColor)
	if err != nil {
		return rectanglify.Config{}, fmt.Errorf("invalid -border-color: %w", err)
	}
	cfg := rectanglify.Config{
		VarianceThreshold: pf.threshold,
		MinRegionSize:     pf.minSize,
		MaxDepth:          pf.maxDepth,
		DrawBorders:       pf.borders,
		BorderColor:       color,
		BorderThickness:   pf.borderThickness,
		Parallelism:       pf.parallel,
	}
	if err := cfg.Validate(); err != nil {
		return rectanglify.Config{}, err
	}
	return cfg, nil
}

// setupLogging configures the global logrus logger.
func (pf *processingFlags) setupLogging() {
	logrus.SetOutput(os.Stderr)
	if pf.logJSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if pf.debug {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
}

func styleOf(cfg rectanglify.Config) compose.Style {
	return compose.Style{
		DrawBorders:     cfg.DrawBorders,
		BorderColor:     cfg.BorderColor,
		BorderThickness: cfg.BorderThickness,
	}
}
