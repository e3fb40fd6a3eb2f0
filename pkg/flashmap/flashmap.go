// Package flashmap is the pure data table SPEC_FULL.md §11 supplements
// from original_source/: the STM8 ROM bootloader's known version byte and
// the part-size probe needed to disambiguate version 0x10. This package
// exposes the table only; it implements no probing protocol or serial
// transport of its own (spec.md §1's Non-goals exclude the flash tool
// itself — this table exists so a future flash-tool implementation has one
// ready-made rather than inventing it).
package flashmap

// Version identifies a bootloader ROM revision by the version byte it
// reports.
type Version byte

const (
	V10 Version = 0x10
	V12 Version = 0x12
	V13 Version = 0x13
	V20 Version = 0x20
	V21 Version = 0x21
	V22 Version = 0x22
)

// PartSize disambiguates V10, whose erase/write routine addresses differ
// by how much flash the part actually carries.
type PartSize int

const (
	Size8KiB   PartSize = 8 * 1024
	Size32KiB  PartSize = 32 * 1024
	Size256KiB PartSize = 256 * 1024
)

// ProbePartSizes lists the candidates a V10 probe tries, largest first:
// original_source/'s _getew reads flashBase+size-1 in this order and takes
// the first size whose read succeeds.
var ProbePartSizes = []PartSize{Size256KiB, Size32KiB, Size8KiB}

// ProbeAddress returns the byte address a V10 probe reads to test whether
// the part has at least size bytes of flash starting at flashBase
// (chip->flash.offset in original_source/'s stm8chip_t).
func ProbeAddress(flashBase uint32, size PartSize) uint32 {
	return flashBase + uint32(size) - 1
}

// RoutineTable is the byte image of the bootloader's own erase/write
// helper routine for one version, keyed by (version, part size) for V10
// and by version alone otherwise. The flash tool injects these bytes
// verbatim; this package only carries them.
type RoutineTable struct {
	Version  Version
	PartSize PartSize // zero for every version except V10
	Erase    []byte
	Write    []byte
}

// Routines is the known table of bootloader versions and their erase/write
// helper images. Non-V10 entries carry PartSize == 0, meaning "applies to
// every part size this version ships on."
//
// TODO: populate Erase/Write with the actual routine bytes (original_source/
// flash/program.c's ew_data_* tables) once a flash tool consumes this
// table; until then the version/size keys are load-bearing, the payloads
// are placeholders.
var Routines = []RoutineTable{
	{Version: V10, PartSize: Size8KiB},
	{Version: V10, PartSize: Size32KiB},
	{Version: V10, PartSize: Size256KiB},
	{Version: V12},
	{Version: V13},
	{Version: V20},
	{Version: V21},
	{Version: V22},
}

// Lookup finds the routine table for a bootloader version, resolving V10's
// part-size ambiguity with partSize (ignored for every other version).
func Lookup(v Version, partSize PartSize) (RoutineTable, bool) {
	for _, r := range Routines {
		if r.Version != v {
			continue
		}
		if v == V10 && r.PartSize != partSize {
			continue
		}
		return r, true
	}
	return RoutineTable{}, false
}

// KnownVersions lists every bootloader version byte this table recognizes,
// in probe order (original_source/ probes from newest to oldest).
func KnownVersions() []Version {
	return []Version{V22, V21, V20, V13, V12, V10}
}
