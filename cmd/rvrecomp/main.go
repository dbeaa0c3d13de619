package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rvrecomp/rvrecomp/internal/blocktable"
	"github.com/rvrecomp/rvrecomp/internal/cfganalysis"
	"github.com/rvrecomp/rvrecomp/internal/emit/amd64"
	"github.com/rvrecomp/rvrecomp/internal/emit/arm64"
	"github.com/rvrecomp/rvrecomp/internal/emit/csource"
	"github.com/rvrecomp/rvrecomp/internal/emit/emitcommon"
	"github.com/rvrecomp/rvrecomp/internal/guestimage"
	"github.com/rvrecomp/rvrecomp/internal/isa"
	"github.com/rvrecomp/rvrecomp/internal/itab"
	"github.com/rvrecomp/rvrecomp/internal/state"
)

var (
	outputDir     string = "out"
	xlenFlag      int    = 0 // 0 means derive from the ELF header
	backend       string = "c"
	instretMode   string = "off"
	targetInstret uint64
	htifAddr      uint64
	htifEnabled   bool
	traceEnabled  bool
	hotRegs       []uint8
	verbose       bool
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [-o dir] [-xlen 32|64] [-backend c|amd64|arm64] [-instret off|count|suspend] [-target-instret N] [-htif 0xADDR] [-trace] [-hot-regs N,N,...] [-v] <elf-file>\n", os.Args[0])
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var elfPath string
	i := 1
	for i < len(os.Args) {
		switch {
		case os.Args[i] == "-o" && i+1 < len(os.Args):
			outputDir = os.Args[i+1]
			i = i + 2
		case os.Args[i] == "-xlen" && i+1 < len(os.Args):
			n, err := strconv.Atoi(os.Args[i+1])
			if err != nil || (n != 32 && n != 64) {
				fmt.Fprintf(os.Stderr, "invalid -xlen %q: expected 32 or 64\n", os.Args[i+1])
				os.Exit(1)
			}
			xlenFlag = n
			i = i + 2
		case os.Args[i] == "-backend" && i+1 < len(os.Args):
			backend = os.Args[i+1]
			if backend != "c" && backend != "amd64" && backend != "arm64" {
				fmt.Fprintf(os.Stderr, "invalid -backend %q: expected c, amd64, or arm64\n", backend)
				os.Exit(1)
			}
			i = i + 2
		case os.Args[i] == "-instret" && i+1 < len(os.Args):
			instretMode = os.Args[i+1]
			if instretMode != "off" && instretMode != "count" && instretMode != "suspend" {
				fmt.Fprintf(os.Stderr, "invalid -instret %q: expected off, count, or suspend\n", instretMode)
				os.Exit(1)
			}
			i = i + 2
		case os.Args[i] == "-target-instret" && i+1 < len(os.Args):
			n, err := strconv.ParseUint(os.Args[i+1], 10, 64)
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid -target-instret %q\n", os.Args[i+1])
				os.Exit(1)
			}
			targetInstret = n
			i = i + 2
		case os.Args[i] == "-htif" && i+1 < len(os.Args):
			raw := strings.TrimPrefix(os.Args[i+1], "0x")
			n, err := strconv.ParseUint(raw, 16, 64)
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid -htif %q: expected 0xADDR\n", os.Args[i+1])
				os.Exit(1)
			}
			htifAddr = n
			htifEnabled = true
			i = i + 2
		case os.Args[i] == "-trace":
			traceEnabled = true
			i = i + 1
		case os.Args[i] == "-hot-regs" && i+1 < len(os.Args):
			for _, tok := range strings.Split(os.Args[i+1], ",") {
				n, err := strconv.Atoi(tok)
				if err != nil || n < 0 || n > 31 {
					fmt.Fprintf(os.Stderr, "invalid -hot-regs %q: expected comma-separated register numbers 0-31\n", os.Args[i+1])
					os.Exit(1)
				}
				hotRegs = append(hotRegs, uint8(n))
			}
			i = i + 2
		case os.Args[i] == "-v":
			verbose = true
			i = i + 1
		default:
			elfPath = os.Args[i]
			i = i + 1
		}
	}

	if elfPath == "" {
		usage()
		os.Exit(1)
	}

	f, err := os.Open(elfPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rvrecomp: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	if verbose {
		fmt.Fprintf(os.Stderr, "debug: loading guest image %s\n", elfPath)
	}
	img, err := guestimage.Load(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rvrecomp: failed to load guest image: %v\n", err)
		os.Exit(1)
	}
	if xlenFlag != 0 && int(img.Width) != xlenFlag {
		fmt.Fprintf(os.Stderr, "rvrecomp: -xlen %d does not match guest image width %d\n", xlenFlag, img.Width)
		os.Exit(1)
	}

	reg := isa.Standard()

	if verbose {
		fmt.Fprintf(os.Stderr, "debug: building instruction table\n")
	}
	tab := itab.Build(img, reg)
	if verbose {
		stats := tab.Stats()
		fmt.Fprintf(os.Stderr, "debug: decoded %d instructions, %d undecodable\n", stats.Decoded, stats.Undecodable)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "debug: recovering control flow\n")
	}
	analysis := cfganalysis.Analyze(tab, reg)
	if verbose {
		fmt.Fprintf(os.Stderr, "debug: %d function entries, %d unresolved indirect jumps\n", len(analysis.FunctionEntries), len(analysis.UnresolvedJumps))
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "debug: building and optimizing block table\n")
	}
	bt := blocktable.Build(tab, reg)
	merged, tailDuped, superblocked := bt.Optimize()
	if verbose {
		fmt.Fprintf(os.Stderr, "debug: merged=%d tail_duped=%d superblocked=%d blocks_remaining=%d\n", merged, tailDuped, superblocked, bt.Len())
	}

	layout := state.NewLayout(img.Width, state.RegFile32, state.TracerArea{Bytes: traceTracerBytes()})

	var instret emitcommon.InstretMode
	switch instretMode {
	case "count":
		instret = emitcommon.InstretCount
	case "suspend":
		instret = emitcommon.InstretSuspend
	default:
		instret = emitcommon.InstretOff
	}

	cfg := emitcommon.Config{
		Layout:        layout,
		HotRegs:       hotRegs,
		Instret:       instret,
		TargetInstret: targetInstret,
		HTIFAddr:      htifAddr,
		HTIFEnabled:   htifEnabled,
		TraceEnabled:  traceEnabled,
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "rvrecomp: %v\n", err)
		os.Exit(1)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "debug: emitting with backend=%s\n", backend)
	}
	var (
		out     string
		outName string
	)
	switch backend {
	case "c":
		out = csource.New(cfg, tab, bt, analysis, reg).Emit()
		outName = "recompiled.c"
	case "amd64":
		out = amd64.New(cfg, tab, bt, analysis, reg).Emit()
		outName = "recompiled.s"
	case "arm64":
		out = arm64.New(cfg, tab, bt, analysis, reg).Emit()
		outName = "recompiled.s"
	}

	outPath := outputDir + "/" + outName
	if err := os.WriteFile(outPath, []byte(out), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "rvrecomp: %v\n", err)
		os.Exit(1)
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "debug: wrote %s\n", outPath)
	}
}

// traceTracerBytes reserves space for the optional instruction tracer
// (spec.md §6) only when -trace is set; untraced images carry no tracer
// footprint in the state record.
func traceTracerBytes() int {
	if traceEnabled {
		return 64
	}
	return 0
}
