// Command rappel is an interactive x86-64 assembly REPL. This file wires
// flags, workspace, and the engine/shell pair together.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/talismancer/rappel/internal/engine"
	"github.com/talismancer/rappel/internal/options"
	"github.com/talismancer/rappel/internal/shell"
	"github.com/talismancer/rappel/internal/workspace"
	"golang.org/x/term"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		startHex    = flag.String("s", "", "start address in hex (default 0x400000)")
		raw         = flag.Bool("r", false, "treat input as raw machine code, bypassing the assembler")
		passSignals = flag.Bool("p", false, "forward non-trap signals to the tracee instead of swallowing them")
		savePath    = flag.String("o", "", "save the synthesized ELF image to this path")
		allRegs     = flag.Bool("x", false, "start with all FP/SIMD registers displayed")
		verbose     = flag.Bool("v", false, "verbose diagnostic logging")
	)
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: rappel [-h] [-s <hex-start>] [-r] [-p] [-o <path>] [-x] [-v]")
		flag.PrintDefaults()
	}
	flag.Parse()

	log := logrus.New()
	log.SetOutput(os.Stderr)
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.WarnLevel)
	}

	opts := options.Defaults()
	opts.RawBytes = *raw
	opts.PassSignals = *passSignals
	opts.SavePath = *savePath
	opts.AllRegsAtStartup = *allRegs
	if *verbose {
		opts.Verbosity = 1
	}
	if *startHex != "" {
		var addr uint64
		if _, err := fmt.Sscanf(*startHex, "0x%x", &addr); err != nil {
			if _, err2 := fmt.Sscanf(*startHex, "%x", &addr); err2 != nil {
				log.Errorf("invalid -s start address %q: %v", *startHex, err)
				return 1
			}
		}
		opts.StartAddr = addr
	}

	home, err := os.UserHomeDir()
	if err != nil {
		log.Errorf("resolving home directory: %v", err)
		return 1
	}
	opts.Workspace = filepath.Join(home, ".rappel")

	ws, err := workspace.Open(opts.Workspace)
	if err != nil {
		log.Errorf("opening workspace: %v", err)
		return 1
	}
	defer ws.Close()

	opts, err = ws.LoadConfig(opts)
	if err != nil {
		log.Errorf("loading workspace config: %v", err)
		return 1
	}

	eng, err := engine.New(&opts)
	if err != nil {
		log.Errorf("starting tracee: %v", err)
		return 1
	}

	sh := shell.New(eng, ws, opts.RawBytes, os.Stdin, os.Stdout)

	stdinFd := int(os.Stdin.Fd())
	if term.IsTerminal(stdinFd) {
		if err := sh.RunInteractive(stdinFd); err != nil {
			log.Errorf("session error: %v", err)
			return 1
		}
		return 0
	}

	if err := sh.RunBatch(); err != nil {
		log.Errorf("session error: %v", err)
		return 1
	}
	return 0
}
