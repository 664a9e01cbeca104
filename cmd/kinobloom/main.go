// Command kinobloom applies the bloom effect to image files.
//
// Usage:
//
//	kinobloom [flags] input...
//
// Each input is written next to itself as <name>.bloom.<ext>, or into the
// --output directory. EXR and Radiance HDR inputs are processed as linear
// radiance; PNG, JPEG, TIFF and BMP inputs in gamma space.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/bloom"
	"github.com/gogpu/bloom/backend"
	_ "github.com/gogpu/bloom/backend/software"
	_ "github.com/gogpu/bloom/backend/wgpu"
	"github.com/gogpu/bloom/kernel"
)

var errUsage = errors.New("usage: kinobloom [flags] input...")

// hostBackend is a backend that moves pixels between host memory and its
// textures.
type hostBackend interface {
	kernel.Backend
	Upload(tex kernel.Texture, pix []float32) error
	Download(tex kernel.Texture) ([]float32, error)
}

type config struct {
	params  bloom.Params
	format  kernel.Format
	backend string
	frames  int
	output  string
	preview int
	stats   bool
	jobs    int
	verbose int
	inputs  []string
}

// parseArgs builds the configuration: defaults, then the YAML file named
// by --config, then explicitly set flags.
func parseArgs(args []string, stderr io.Writer) (*config, error) {
	fs := pflag.NewFlagSet("kinobloom", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SortFlags = false

	d := bloom.DefaultParams()
	var (
		configPath  = fs.StringP("config", "c", "", "YAML parameter file")
		threshold   = fs.Float64("threshold", d.Threshold, "brightness where bloom starts, 0..2")
		softKnee    = fs.Float64("soft-knee", d.SoftKnee, "threshold transition width, 0..1")
		intensity   = fs.Float64("intensity", d.Intensity, "bloom strength")
		radius      = fs.Float64("radius", d.Radius, "blur extent, 0..7")
		highQuality = fs.Bool("high-quality", d.HighQuality, "full resolution pyramid and tent upsampling")
		antiFlicker = fs.Bool("anti-flicker", d.AntiFlicker, "median prefilter and Karis first downsample")
		temporal    = fs.Float64("temporal", d.TemporalFiltering, "temporal filtering amount, 0..1")
		gamma       = fs.Bool("gamma", false, "treat inputs as gamma encoded")
		format      = fs.String("format", kernel.FormatRGBA16F.String(), "intermediate format: rgba32f, rgba16f or rgbm")

		cfg = &config{}
	)
	fs.StringVar(&cfg.backend, "backend", backend.NameSoftware, `kernel backend: software, wgpu or "auto"`)
	fs.IntVar(&cfg.frames, "frames", 1, "apply the effect N times, exercising temporal filtering")
	fs.StringVarP(&cfg.output, "output", "o", "", "output directory")
	fs.IntVar(&cfg.preview, "preview", 0, "also write a tone-mapped PNG preview of this width")
	fs.BoolVar(&cfg.stats, "stats", false, "print luminance statistics")
	fs.IntVarP(&cfg.jobs, "jobs", "j", runtime.GOMAXPROCS(0), "inputs processed concurrently")
	fs.CountVarP(&cfg.verbose, "verbose", "v", "log progress; repeat for debug output")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.inputs = fs.Args()
	if len(cfg.inputs) == 0 {
		return nil, errUsage
	}

	p := d
	if *configPath != "" {
		var err error
		if p, err = loadParams(*configPath, p); err != nil {
			return nil, err
		}
	}
	overlay := []struct {
		name string
		set  func()
	}{
		{"threshold", func() { p.Threshold = *threshold }},
		{"soft-knee", func() { p.SoftKnee = *softKnee }},
		{"intensity", func() { p.Intensity = *intensity }},
		{"radius", func() { p.Radius = *radius }},
		{"high-quality", func() { p.HighQuality = *highQuality }},
		{"anti-flicker", func() { p.AntiFlicker = *antiFlicker }},
		{"temporal", func() { p.TemporalFiltering = *temporal }},
	}
	for _, o := range overlay {
		if fs.Changed(o.name) {
			o.set()
		}
	}
	if *gamma {
		p.ColorSpace = bloom.ColorSpaceGamma
	}
	cfg.params = p

	f, err := kernel.ParseFormat(*format)
	if err != nil {
		return nil, fmt.Errorf("--format: %w", err)
	}
	cfg.format = f
	cfg.frames = max(cfg.frames, 1)
	cfg.jobs = max(cfg.jobs, 1)
	return cfg, nil
}

// loadParams decodes a YAML parameter file over base. Unknown keys are
// rejected.
func loadParams(path string, base bloom.Params) (bloom.Params, error) {
	f, err := os.Open(path)
	if err != nil {
		return base, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	p := base
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return base, fmt.Errorf("config %q: %w", path, err)
	}
	return p, nil
}

func newLogger(w io.Writer, verbose int) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case verbose >= 2:
		level = slog.LevelDebug
	case verbose == 1:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// outputPath returns <dir>/<name>.bloom.<ext> for input. An empty dir
// writes next to the input.
func outputPath(input, dir, suffix string) string {
	ext := filepath.Ext(input)
	name := strings.TrimSuffix(filepath.Base(input), ext)
	if dir == "" {
		dir = filepath.Dir(input)
	}
	if suffix != "" {
		ext = suffix
	}
	return filepath.Join(dir, name+".bloom"+ext)
}

func openBackend(name string) (kernel.Backend, error) {
	if name == "auto" {
		return backend.Default()
	}
	return backend.Get(name)
}

// process applies the effect to one input. Every job owns its backend and
// pipeline.
func process(ctx context.Context, cfg *config, input string, log *slog.Logger, stdout io.Writer) error {
	pic, err := load(input)
	if err != nil {
		return err
	}

	b, err := openBackend(cfg.backend)
	if err != nil {
		return err
	}
	defer b.Close()
	host, ok := b.(hostBackend)
	if !ok {
		return fmt.Errorf("backend %s cannot transfer host pixels", b.Name())
	}

	p, err := bloom.New(b, bloom.WithFormat(cfg.format), bloom.WithLogger(log))
	if err != nil {
		return err
	}
	defer p.Teardown()

	src, err := b.Allocate(pic.width, pic.height, kernel.FormatRGBA32F)
	if err != nil {
		return err
	}
	defer b.Free(src)
	dst, err := b.Allocate(pic.width, pic.height, kernel.FormatRGBA32F)
	if err != nil {
		return err
	}
	defer b.Free(dst)

	if err := host.Upload(src, pic.pix); err != nil {
		return err
	}
	params := cfg.params
	if pic.ldr {
		params.ColorSpace = bloom.ColorSpaceGamma
	}

	var res bloom.Result
	for range cfg.frames {
		if err := ctx.Err(); err != nil {
			return err
		}
		if res, err = p.Apply(src, dst, params); err != nil {
			return fmt.Errorf("%s: %w", input, err)
		}
	}
	log.Info("kinobloom: applied", "input", input,
		"size", fmt.Sprintf("%dx%d", pic.width, pic.height),
		"iterations", res.Plan.Iterations, "frames", cfg.frames, "temporal", res.Temporal)

	pix, err := host.Download(dst)
	if err != nil {
		return err
	}
	out := &picture{width: pic.width, height: pic.height, pix: pix, ldr: pic.ldr}

	path := outputPath(input, cfg.output, "")
	if err := save(path, out); err != nil {
		return err
	}
	if cfg.preview > 0 {
		if err := writePreview(outputPath(input, cfg.output, ".preview.png"), out, cfg.preview); err != nil {
			return fmt.Errorf("preview: %w", err)
		}
	}
	if cfg.stats {
		fmt.Fprintf(stdout, "%s\n  before %s\n  after  %s\n", path, luminanceStats(pic), luminanceStats(out))
	}
	return nil
}

// lockedWriter serializes the reports of concurrent jobs.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, err := parseArgs(args, stderr)
	if err != nil {
		return err
	}
	log := newLogger(stderr, cfg.verbose)
	bloom.SetLogger(log)
	stdout = &lockedWriter{w: stdout}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.jobs)
	for _, input := range cfg.inputs {
		g.Go(func() error { return process(gctx, cfg, input, log, stdout) })
	}
	return g.Wait()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	switch {
	case err == nil, errors.Is(err, pflag.ErrHelp):
	default:
		fmt.Fprintf(os.Stderr, "kinobloom: %v\n", err)
		stop()
		os.Exit(1)
	}
}
