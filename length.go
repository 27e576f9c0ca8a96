package memflow

import "fmt"

// Length is an unsigned byte count.
type Length uint64

// kb, mb, gb build a Length from a count of kibi/mebi/gibibytes, matching
// spec.md §3's kb(n), mb(n), gb(n) helpers.
func kb(n uint64) Length { return Length(n * 1024) }
func mb(n uint64) Length { return Length(n * 1024 * 1024) }
func gb(n uint64) Length { return Length(n * 1024 * 1024 * 1024) }

// KB, MB, GB are the exported forms of kb/mb/gb.
func KB(n uint64) Length { return kb(n) }
func MB(n uint64) Length { return mb(n) }
func GB(n uint64) Length { return gb(n) }

func (l Length) String() string {
	switch {
	case l >= Length(1<<30) && uint64(l)%(1<<30) == 0:
		return fmt.Sprintf("%dGB", uint64(l)>>30)
	case l >= Length(1<<20) && uint64(l)%(1<<20) == 0:
		return fmt.Sprintf("%dMB", uint64(l)>>20)
	case l >= Length(1<<10) && uint64(l)%(1<<10) == 0:
		return fmt.Sprintf("%dKB", uint64(l)>>10)
	default:
		return fmt.Sprintf("%dB", uint64(l))
	}
}
