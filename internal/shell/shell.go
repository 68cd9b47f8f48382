// Package shell is rappel's session shell (C7): a line-oriented front end
// with persistent history and dot-commands, driving the engine (C5).
// Lines are read as plain text; there is no in-line editing or recall of
// earlier history entries.
//
// Dot-commands dispatch by strict first-token equality, not substring
// match.
package shell

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/talismancer/rappel/internal/arch"
	"github.com/talismancer/rappel/internal/asm"
	"github.com/talismancer/rappel/internal/display"
	"github.com/talismancer/rappel/internal/engine"
	"github.com/talismancer/rappel/internal/workspace"
	"golang.org/x/term"
)

const helpText = `Commands:
  .quit / .exit        clean shutdown
  .help                this text
  .info                re-display last snapshot
  .showmap             dump tracee's /proc/<pid>/maps
  .allregs on|off       toggle FP/SIMD display
  .read <addr> [len]   hex-dump tracee memory (default len 16)
  .write <addr> <hex>  poke tracee memory (hex must be even length)
  .begin / .end        accumulate a block of lines as one shot
  .reset               destroy and respawn the tracee
  .arch                print architecture name and start address

The prompt address is the "logical PC": a running sum of first-instruction
lengths across shots, not the tracee's physical instruction pointer (which
always rests at the start address or one of its page's trap bytes).`

// Shell owns the REPL loop state: the engine, workspace, and block-mode
// input buffer.
type Shell struct {
	eng       *engine.Engine
	ws        *workspace.Workspace
	raw       bool
	out       io.Writer
	in        *bufio.Reader
	blockMode bool
	blockBuf  strings.Builder
}

// New constructs a shell bound to an already-initialized engine and
// workspace.
func New(eng *engine.Engine, ws *workspace.Workspace, raw bool, in io.Reader, out io.Writer) *Shell {
	return &Shell{eng: eng, ws: ws, raw: raw, out: out, in: bufio.NewReader(in)}
}

// RunInteractive runs the full REPL: prompt, read, dispatch, loop until
// .quit/.exit/EOF.
func (s *Shell) RunInteractive(stdinFd int) error {
	interactive := term.IsTerminal(stdinFd)
	for {
		if interactive {
			fmt.Fprintf(s.out, "[0x%x]> ", s.eng.CurrentAddress())
		}
		line, err := s.in.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if err == io.EOF {
			if line != "" {
				s.dispatch(line)
			}
			return s.shutdown()
		}
		if err != nil {
			return err
		}
		if s.dispatch(line) {
			return s.shutdown()
		}
	}
}

// RunBatch reads stdin to EOF and submits it as a single shot, per
// the non-terminal stdin mode.
func (s *Shell) RunBatch() error {
	data, err := io.ReadAll(s.in)
	if err != nil {
		return err
	}
	if s.raw {
		// Piped raw input is the machine code itself; submit expects hex.
		s.submit(hex.EncodeToString(data))
	} else {
		s.submit(strings.TrimRight(string(data), "\n"))
	}
	return s.shutdown()
}

// dispatch handles one line of input, returning true if the session
// should end.
func (s *Shell) dispatch(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}

	if strings.HasPrefix(trimmed, ".") {
		fields := strings.Fields(trimmed)
		cmd := fields[0]
		args := fields[1:]
		switch cmd {
		case ".quit", ".exit":
			return true
		case ".help":
			fmt.Fprintln(s.out, helpText)
		case ".info":
			s.showInfo()
		case ".showmap":
			s.showMap()
		case ".allregs":
			s.setAllRegs(args)
		case ".read":
			s.read(args)
		case ".write":
			s.write(args)
		case ".begin":
			s.blockMode = true
			s.blockBuf.Reset()
		case ".end":
			s.blockMode = false
			s.submit(s.blockBuf.String())
			s.blockBuf.Reset()
		case ".reset":
			s.reset()
		case ".arch":
			fmt.Fprintf(s.out, "amd64, start=0x%x\n", s.eng.StartAddr())
		default:
			fmt.Fprintf(s.out, "unknown command: %s\n", cmd)
		}
		return false
	}

	if s.blockMode {
		if s.blockBuf.Len()+len(line)+1 > arch.PageSize {
			fmt.Fprintln(s.out, "buffer overflow: accumulated block exceeds one code page")
			return false
		}
		s.blockBuf.WriteString(line)
		s.blockBuf.WriteByte('\n')
		return false
	}

	s.submit(line)
	return false
}

// submit runs one shot, recording it to history and rendering its result.
func (s *Shell) submit(src string) {
	if strings.TrimSpace(src) == "" {
		return
	}
	s.ws.Record(src)

	var code []byte
	firstLen := 0
	if s.raw {
		decoded, err := hex.DecodeString(strings.TrimSpace(src))
		if err != nil {
			fmt.Fprintf(s.out, "raw input must be hex: %v\n", err)
			return
		}
		code = decoded
		firstLen = len(decoded)
	} else {
		res, err := asm.Assemble(src)
		if err != nil {
			fmt.Fprintf(s.out, "assembly error: %v\n", err)
			return
		}
		if len(res.Bytes) == 0 {
			return
		}
		code = res.Bytes
		firstLen = res.InstrLens[0]
	}

	result, err := s.eng.Shot(code, firstLen)
	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
		return
	}
	if result.Current == nil {
		return
	}
	fmt.Fprint(s.out, display.Snapshot(result.Current, result.Previous, s.eng.AllRegs))
	if result.Exited {
		fmt.Fprintln(s.out, "tracee exited; use .reset")
	}
}

func (s *Shell) showInfo() {
	snap := s.eng.LastSnapshot()
	if snap == nil {
		fmt.Fprintln(s.out, "no snapshot yet")
		return
	}
	fmt.Fprint(s.out, display.Snapshot(snap, nil, s.eng.AllRegs))
}

func (s *Shell) showMap() {
	out, err := exec.Command("cat", fmt.Sprintf("/proc/%d/maps", s.eng.Pid())).Output()
	if err != nil {
		fmt.Fprintf(s.out, "showmap: %v\n", err)
		return
	}
	s.out.Write(out)
}

func (s *Shell) setAllRegs(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "usage: .allregs on|off")
		return
	}
	switch args[0] {
	case "on":
		s.eng.AllRegs = true
	case "off":
		s.eng.AllRegs = false
	default:
		fmt.Fprintln(s.out, "usage: .allregs on|off")
	}
}

func (s *Shell) read(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.out, "usage: .read <hex-addr> [len]")
		return
	}
	addr, err := parseHexAddr(args[0])
	if err != nil {
		fmt.Fprintf(s.out, "bad address: %v\n", err)
		return
	}
	length := 16
	if len(args) >= 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 0 {
			fmt.Fprintln(s.out, "bad length")
			return
		}
		length = n
	}
	data, err := s.eng.Read(addr, length)
	if err != nil {
		fmt.Fprintf(s.out, "read failed: %v\n", err)
		return
	}
	fmt.Fprint(s.out, display.MemoryDump(addr, data))
}

func (s *Shell) write(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(s.out, "usage: .write <hex-addr> <hex-bytes>")
		return
	}
	addr, err := parseHexAddr(args[0])
	if err != nil {
		fmt.Fprintf(s.out, "bad address: %v\n", err)
		return
	}
	hexStr := args[1]
	if len(hexStr)%2 != 0 {
		fmt.Fprintln(s.out, "hex string must have even length")
		return
	}
	data, err := hex.DecodeString(hexStr)
	if err != nil {
		fmt.Fprintf(s.out, "invalid hex: %v\n", err)
		return
	}
	if err := s.eng.Write(addr, data); err != nil {
		fmt.Fprintf(s.out, "write failed: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "wrote %d bytes at 0x%x\n", len(data), addr)
}

func (s *Shell) reset() {
	if err := s.eng.Reset(); err != nil {
		fmt.Fprintf(s.out, "reset failed: %v\n", err)
		return
	}
	s.ws.ClearHistory()
	s.blockMode = false
	s.blockBuf.Reset()
	fmt.Fprintln(s.out, "tracee reset")
}

func (s *Shell) shutdown() error {
	if err := s.eng.Close(); err != nil {
		fmt.Fprintf(s.out, "detach failed: %v\n", err)
	}
	return s.ws.Close()
}

func parseHexAddr(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, err
	}
	return v, nil
}
