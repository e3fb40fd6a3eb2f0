// Command lkr is the STM8 linker CLI of spec.md §6: `lkr [OPTIONS]
// <OBJECT>…`, merging relocatable objects through a linker script into a
// Motorola S-record image. Same single-command cobra shape as cmd/asm.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/sodiumlight/stm8tc/pkg/config"
	"github.com/sodiumlight/stm8tc/pkg/diag"
	"github.com/sodiumlight/stm8tc/pkg/link"
	"github.com/sodiumlight/stm8tc/pkg/section"
	"github.com/sodiumlight/stm8tc/pkg/srec"
	"github.com/sodiumlight/stm8tc/pkg/symtab"
	"github.com/sodiumlight/stm8tc/pkg/utils"
)

var (
	flagNoPrint     bool
	flagMap         bool
	flagMapDump     bool
	flagDefines     []string
	flagDefsFile    string
	flagScript      string
	flagOutput      string
	flagS19Head     string
	flagCfgFile     string
	flagLogFile     string
	flagVerbose     bool
	flagInteractive bool
)

var rootCmd = &cobra.Command{
	Use:   "lkr [OPTIONS] <OBJECT>...",
	Short: "Link relocatable STM8 objects into a Motorola S-record image",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runLink,
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().BoolVarP(&flagNoPrint, "noprint", "p", false, "suppress .print output")
	rootCmd.Flags().BoolVarP(&flagMap, "map", "M", false, "print link map")
	rootCmd.Flags().BoolVar(&flagMapDump, "MD", false, "also dump section bytes in the link map")
	rootCmd.Flags().StringArrayVarP(&flagDefines, "define", "D", nil, "define a script constant (NAME=VALUE)")
	rootCmd.Flags().StringVar(&flagDefsFile, "defs", "", "batch-load -D constants from a YAML file")
	rootCmd.Flags().StringVar(&flagScript, "script", "", "linker script path (required)")
	rootCmd.Flags().StringVar(&flagOutput, "output", "", "S-record output path")
	rootCmd.Flags().StringVar(&flagS19Head, "s19head", "", "S0 record header payload")
	rootCmd.Flags().StringVar(&flagCfgFile, "config", "", "config file (default: ~/.stm8tc.yaml)")
	rootCmd.Flags().StringVar(&flagLogFile, "log-file", "", "also write structured logs to this file")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose diagnostics")
	rootCmd.Flags().BoolVar(&flagInteractive, "interactive", false, "with -M, drop into a REPL over the link map instead of printing it once")
	rootCmd.MarkFlagRequired("script")
}

func main() {
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		os.Exit(2)
	}()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runLink(cmd *cobra.Command, args []string) error {
	logger, closeLog, err := diag.NewLogger(flagLogFile, flagVerbose)
	if err != nil {
		return err
	}
	defer closeLog()
	logger.Info("link", "objects", args, "script", flagScript)

	defines, err := resolveDefines()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("defines resolved", "names", utils.Keys(defines), "values", utils.Values(defines))

	inputs, err := link.LoadAll(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	scriptFile, err := os.Open(flagScript)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer scriptFile.Close()

	lk, chunks, err := link.Link(inputs, scriptFile, flagScript, defines, os.Stdout, flagNoPrint)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := flagOutput
	if outPath == "" {
		outPath = "a.s19"
	}
	out, err := os.Create(outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	werr := srec.Write(out, flagS19Head, chunks)
	if cerr := out.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", werr)
		os.Exit(1)
	}

	if flagMap {
		if flagInteractive {
			return runMapRepl(lk)
		}
		printLinkMap(os.Stdout, lk, flagMapDump)
	}

	logger.Info("linked", "output", outPath, "chunks", len(chunks))
	return nil
}

// resolveDefines layers three sources, lowest priority first: the config
// file's "defines:" map, a --defs batch file, then -D flags.
func resolveDefines() (map[string]int64, error) {
	v, err := config.Load(flagCfgFile)
	if err != nil {
		return nil, err
	}
	cfgDefines, err := config.DefinesFromViper(v)
	if err != nil {
		return nil, err
	}

	var fileDefines map[string]int64
	if flagDefsFile != "" {
		d, err := config.LoadDefsFile(flagDefsFile)
		if err != nil {
			return nil, err
		}
		fileDefines = d
	}
	flagDefinesMap, err := config.ParseDefines(flagDefines)
	if err != nil {
		return nil, err
	}
	return config.Merge(config.Merge(cfgDefines, fileDefines), flagDefinesMap), nil
}

// printLinkMap renders the "-M"/"-MD" link map (spec.md §6): every merged
// section's placement, and with -MD its raw bytes too.
func printLinkMap(w io.Writer, lk *link.Linker, dumpBytes bool) {
	sections := lk.Sections.All()
	fmt.Fprintln(w, "sections:")
	for _, sec := range sections {
		fmt.Fprintf(w, "  %-12s length=%-6d lma=%#06x vma=%#06x noload=%v\n",
			sec.Name, sec.Length, sec.LMA, sec.VMA, sec.Noload)
		if dumpBytes && !sec.Noload {
			fmt.Fprintf(w, "    %s\n", hexDump(sec.Data))
		}
	}
	total := utils.Accumulate(sections, func(s *section.Section) int { return s.Length })
	fmt.Fprintf(w, "  total: %d bytes\n", total)
	if loaded := loadedSections(sections); len(loaded) > 0 {
		fmt.Fprint(w, utils.AsciiFrame(loaded, total, "B", utils.AsciiFrameUnitLayout_LeftToRight, 2))
	}

	symbols := lk.Symbols.All()
	fmt.Fprintln(w, "symbols:")
	for _, sym := range symbols {
		fmt.Fprintf(w, "  %-30s value=%#06x export=%v section=%s\n", sym.Name, sym.Value, sym.Export, sym.Section)
	}
	if len(symbols) > 0 {
		values := utils.Map(symbols, func(s *symtab.Symbol) int64 { return s.Value })
		fmt.Fprintf(w, "  range: %s..%s\n", utils.FormatUintHex(uint64(utils.Min(values)), 4), utils.FormatUintHex(uint64(utils.Max(values)), 4))
	}
}

// loadedSections turns every loaded (non-noload, non-empty) section into an
// AsciiFrame field, laid out back to back in link order rather than at their
// real LMA/VMA (sections aren't guaranteed contiguous there); it's a
// schematic of relative sizes, not an address map.
func loadedSections(sections []*section.Section) []utils.AsciiFrameField {
	var fields []utils.AsciiFrameField
	offset := 0
	for _, sec := range sections {
		if sec.Noload || sec.Length == 0 {
			continue
		}
		fields = append(fields, utils.AsciiFrameField{Name: sec.Name, Begin: offset, Width: sec.Length})
		offset += sec.Length
	}
	return fields
}

// printSectionRefs prints one line per section reference, in whatever
// order refs already holds (utils.ConditionallyReversedRefs picks that
// order for the caller).
func printSectionRefs(w io.Writer, refs []**section.Section) {
	fmt.Fprintln(w, "sections:")
	for _, ref := range refs {
		sec := *ref
		fmt.Fprintf(w, "  %-12s length=%-6d lma=%#06x vma=%#06x noload=%v\n",
			sec.Name, sec.Length, sec.LMA, sec.VMA, sec.Noload)
	}
}

func hexDump(data []byte) string {
	return utils.FormatSlice(utils.Map(data, func(b byte) string { return fmt.Sprintf("%02X", b) }), " ")
}

// runMapRepl implements "-M --interactive": a chzyer/readline REPL for
// inspecting the just-built link map, in the spirit of the teacher's
// cmd/cpu/debug.go debugger loop but read-only over the finished link
// result instead of a running CPU.
func runMapRepl(lk *link.Linker) error {
	rl, err := readline.New("(lkr) ")
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Fprintln(rl.Stdout(), "Interactive link map. Commands: sections, sections reverse, symbols, symbol <name>, quit")
	for {
		line, err := rl.Readline()
		if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) {
			return nil
		}
		if err != nil {
			return err
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "sections":
			reversed := len(fields) > 1 && fields[1] == "reverse"
			printSectionRefs(rl.Stdout(), utils.ConditionallyReversedRefs(lk.Sections.All(), reversed))
		case "symbols":
			for _, sym := range lk.Symbols.All() {
				fmt.Fprintf(rl.Stdout(), "%-30s value=%#06x export=%v section=%s\n", sym.Name, sym.Value, sym.Export, sym.Section)
			}
		case "symbol":
			if len(fields) < 2 {
				fmt.Fprintln(rl.Stdout(), "usage: symbol <name>")
				continue
			}
			sym, ok := lk.Symbols.Find(fields[1])
			if !ok {
				fmt.Fprintf(rl.Stdout(), "no such symbol: %s\n", fields[1])
				continue
			}
			fmt.Fprintf(rl.Stdout(), "%-30s value=%#06x export=%v section=%s\n", sym.Name, sym.Value, sym.Export, sym.Section)
		case "quit", "exit":
			return nil
		default:
			fmt.Fprintf(rl.Stdout(), "unknown command: %s\n", fields[0])
		}
	}
}
