// taxcheck compares the cumulative tax model against naive per-tick
// flooring over a simulated visit. Useful when tuning spot rates: small
// per-tick grosses make the naive model collect nothing at all.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/wnt/turfpoints/internal/accrual"
)

func main() {
	var (
		pointsPerTick int64
		taxPercent    int
		ticks         int
		verbose       bool
	)
	flag.Int64Var(&pointsPerTick, "points", 5, "Gross points earned per tick")
	flag.IntVar(&taxPercent, "tax", 5, "Tax rate percent")
	flag.IntVar(&ticks, "ticks", 100, "Number of heartbeat ticks to simulate")
	flag.BoolVar(&verbose, "v", false, "Print every tick")
	flag.Parse()

	if pointsPerTick <= 0 || taxPercent < 0 || taxPercent > 100 || ticks <= 0 {
		fmt.Fprintln(os.Stderr, "Usage: taxcheck -points <n> -tax <percent> -ticks <n>")
		os.Exit(1)
	}

	var cumEarned, cumTax, naiveTax int64
	for i := 1; i <= ticks; i++ {
		cumEarned += pointsPerTick
		delta := accrual.TaxDelta(cumEarned, cumTax, taxPercent)
		cumTax += delta
		naiveTax += accrual.PerTickTax(pointsPerTick, taxPercent)

		if verbose {
			fmt.Printf("tick %4d  earned=%6d  tax_delta=%3d  cumulative_tax=%6d  naive_tax=%6d\n",
				i, cumEarned, delta, cumTax, naiveTax)
		}
	}

	target := cumEarned * int64(taxPercent) / 100
	fmt.Printf("ticks:           %d\n", ticks)
	fmt.Printf("gross earned:    %d\n", cumEarned)
	fmt.Printf("target tax:      %d (%d%% of gross)\n", target, taxPercent)
	fmt.Printf("cumulative tax:  %d\n", cumTax)
	fmt.Printf("naive tax:       %d (per-tick flooring)\n", naiveTax)
	fmt.Printf("under-collected: %d\n", target-naiveTax)
}
