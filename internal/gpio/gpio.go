// Package gpio drives the trigger button and indicator LED through the
// Linux GPIO character device.
//
// Pins use BCM numbering; on a Raspberry Pi the kernel names those lines
// "GPIO<n>", so lines are looked up by name across every gpiochip.
package gpio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const consumer = "sosbeacon"

func lineName(pin int) string { return fmt.Sprintf("GPIO%d", pin) }

// candidateChips lists likely chips first, then every gpiochip under dir,
// without duplicates. Pi 5 kernels can expose the header on gpiochip4.
func candidateChips(dir string) []string {
	out := []string{}
	seen := map[string]bool{}
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	add(filepath.Join(dir, "gpiochip0"))
	add(filepath.Join(dir, "gpiochip4"))

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "gpiochip") {
			add(filepath.Join(dir, e.Name()))
		}
	}
	return out
}
