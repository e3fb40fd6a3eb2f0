// Command asm is the STM8 assembler CLI of spec.md §6: `asm [OPTIONS]
// <INPUT>`, producing a relocatable object (.l0) from one assembly source
// file. Structured as a single spf13/cobra command, following the
// teacher's cmd/mc/llvm.go shape (package-level *cobra.Command, an init()
// wiring flags, a Run closure) rather than the fuller cmd/root.go
// subcommand-tree shape, since asm has exactly one job.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sodiumlight/stm8tc/pkg/asmr"
	"github.com/sodiumlight/stm8tc/pkg/config"
	"github.com/sodiumlight/stm8tc/pkg/diag"
	"github.com/sodiumlight/stm8tc/pkg/objfile"
	"github.com/sodiumlight/stm8tc/pkg/reloc"
	"github.com/sodiumlight/stm8tc/pkg/section"
	"github.com/sodiumlight/stm8tc/pkg/symtab"
	"github.com/sodiumlight/stm8tc/pkg/utils"
)

var (
	flagInfo     bool
	flagNoPrint  bool
	flagDefines  []string
	flagOutput   string
	flagDefsFile string
	flagCfgFile  string
	flagLogFile  string
	flagVerbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "asm [OPTIONS] <INPUT>",
	Short: "Two-pass STM8 assembler: source -> relocatable object",
	Args:  cobra.ExactArgs(1),
	RunE:  runAssemble,
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().BoolVarP(&flagInfo, "info", "I", false, "print symbol/relocation/section dump after assembly")
	rootCmd.Flags().BoolVarP(&flagNoPrint, "noprint", "p", false, "suppress .print output")
	rootCmd.Flags().StringArrayVarP(&flagDefines, "define", "D", nil, "define a constant before pass 0 (NAME=VALUE)")
	rootCmd.Flags().StringVar(&flagOutput, "output", "", "object output path (default: input basename with .l0)")
	rootCmd.Flags().StringVar(&flagDefsFile, "defs", "", "batch-load -D constants from a YAML file")
	rootCmd.Flags().StringVar(&flagCfgFile, "config", "", "config file (default: ~/.stm8tc.yaml)")
	rootCmd.Flags().StringVar(&flagLogFile, "log-file", "", "also write structured logs to this file")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose diagnostics")
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

func runAssemble(cmd *cobra.Command, args []string) error {
	inputPath := args[0]

	logger, closeLog, err := diag.NewLogger(flagLogFile, flagVerbose)
	if err != nil {
		return err
	}
	defer closeLog()
	logger.Info("assemble", "input", inputPath)

	defines, err := resolveDefines()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("defines resolved", "names", utils.Keys(defines), "values", utils.Values(defines))

	outPath := flagOutput
	if outPath == "" {
		outPath = defaultObjectPath(inputPath)
	}

	ctx, err := asmr.Assemble(inputPath, asmr.Options{
		Defines:  defines,
		NoPrint:  flagNoPrint,
		PrintOut: os.Stdout,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := ctx.Finalize(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	f, err := os.Create(outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	werr := objfile.Write(f, ctx.Symbols, ctx.Sections, ctx.Relocs)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", werr)
		os.Exit(1)
	}

	if flagInfo {
		printInfoDump(ctx.Symbols, ctx.Sections, ctx.Relocs)
	}
	logger.Info("assembled", "output", outPath)
	return nil
}

// resolveDefines layers three sources, lowest priority first: the config
// file's "defines:" map, a --defs batch file, then -D flags, matching
// pkg/config.Merge's override convention at each step.
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

// defaultObjectPath replaces the input's last extension with ".l0" (spec.md
// §6), matching the teacher's own output-path defaulting style in
// cmd/mc/llvm.go (empty flag -> derive from input).
func defaultObjectPath(inputPath string) string {
	ext := filepath.Ext(inputPath)
	base := strings.TrimSuffix(inputPath, ext)
	return base + ".l0"
}

// printInfoDump renders the "-I" symbol/relocation/section dump (spec.md
// §6), plain-text, one table per kind, plus a cross-reference summary built
// from pkg/utils' map/slice helpers.
func printInfoDump(symbols *symtab.Table, sections *section.Table, relocs *reloc.List) {
	allSymbols := symbols.All()
	fmt.Println("symbols:")
	for _, sym := range allSymbols {
		fmt.Printf("  %-20s kind=%-8s value=%-8d export=%-5v section=%s\n",
			sym.Name, symbolKindName(sym.Kind), sym.Value, sym.Export, sym.Section)
		if sym.Kind == symtab.Constant && sym.Value >= 0 && sym.Value <= 0xff {
			fmt.Printf("    binary=%s\n", utils.FormatUintBinary(uint64(sym.Value), 8))
		}
	}
	if len(allSymbols) > 0 {
		values := utils.Map(allSymbols, func(s *symtab.Symbol) int64 { return s.Value })
		fmt.Printf("  range: %d..%d\n", utils.Min(values), utils.Max(values))
	}

	allSections := sections.All()
	fmt.Println("sections:")
	for _, sec := range allSections {
		fmt.Printf("  %-12s length=%-6d noload=%-5v placed=%-5v lma=%#06x vma=%#06x\n",
			sec.Name, sec.Length, sec.Noload, sec.Placed, sec.LMA, sec.VMA)
	}
	total := utils.Accumulate(allSections, func(s *section.Section) int { return s.Length })
	fmt.Printf("  total: %d bytes\n", total)

	allRelocs := relocs.All()
	fmt.Println("relocations:")
	for _, i := range utils.Indices(len(allRelocs)) {
		r := allRelocs[i]
		fmt.Printf("  [%3d] section=%-12s offset=%-6d length=%-2d kind=%-8s symbol=%s\n",
			i, r.Section, r.Offset, r.Length, r.Kind, r.Symbol)
	}

	printSectionCrossref(allSymbols, utils.GenMap(allSections, func(s *section.Section) string { return s.Name }))
}

// printSectionCrossref counts symbols per referenced section and prints the
// pairs sorted by section name, using utils.ZipMap/Pair for the (name,
// count) shape and utils.Keys to drive a stable sort.
func printSectionCrossref(symbols []*symtab.Symbol, byName map[string]*section.Section) {
	counts := make(map[string]int, len(byName))
	for _, sym := range symbols {
		if sym.Section == "" {
			continue
		}
		counts[sym.Section]++
	}
	if len(counts) == 0 {
		return
	}

	names := utils.Keys(counts)
	sort.Strings(names)

	pairs := utils.ZipMap(counts)
	byPairName := utils.GenMap(pairs, func(p utils.Pair[string, int]) string { return p.First })

	fmt.Println("symbols by section:")
	for _, name := range names {
		p := byPairName[name]
		sec, ok := byName[name]
		if !ok {
			fmt.Printf("  %-12s symbols=%d\n", name, p.Second)
			continue
		}
		fmt.Printf("  %-12s symbols=%-4d length=%d\n", name, p.Second, sec.Length)
	}
}

func symbolKindName(k symtab.Kind) string {
	switch k {
	case symtab.Constant:
		return "constant"
	case symtab.Extern:
		return "extern"
	case symtab.Label:
		return "label"
	default:
		return "none"
	}
}
