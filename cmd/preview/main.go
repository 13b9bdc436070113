// Command preview renders one challenge of each type to PNG files so the
// generators can be inspected by eye.
package main

import (
	"context"
	"flag"
	"fmt"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/saturnino-fabrica-de-software/vigia/internal/domain"
	"github.com/saturnino-fabrica-de-software/vigia/internal/generator"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	out := flag.String("out", ".", "Output directory")
	seed := flag.Int64("seed", 0, "Random seed, 0 picks one")
	width := flag.Int("width", 320, "Image width")
	height := flag.Int("height", 160, "Image height")
	flag.Parse()

	cfg := generator.Config{Width: *width, Height: *height}
	if *seed != 0 {
		cfg.Rand = rand.New(rand.NewSource(*seed))
	}
	registry := generator.NewDefaultRegistry(cfg)

	if err := os.MkdirAll(*out, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	for _, t := range domain.AllChallengeTypes() {
		challenge, err := registry.Generate(context.Background(), t)
		if err != nil {
			return fmt.Errorf("generate %s: %w", t, err)
		}

		if err := writePNG(filepath.Join(*out, t.String()+"_background.png"), challenge.BackgroundImage); err != nil {
			return err
		}
		if err := writePNG(filepath.Join(*out, t.String()+"_puzzle.png"), challenge.PuzzleImage); err != nil {
			return err
		}

		if t.IsAngular() {
			fmt.Printf("%-7s angle=%.1f tolerance=%.0f\n", t, challenge.CorrectAngle, challenge.Tolerance)
		} else {
			fmt.Printf("%-7s answer=(%d,%d) tolerance=%.0f\n", t, challenge.CorrectPosition.X, challenge.CorrectPosition.Y, challenge.Tolerance)
		}
	}
	return nil
}

func writePNG(path, dataURI string) error {
	img, err := generator.DecodeDataURI(dataURI)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return png.Encode(f, img)
}
