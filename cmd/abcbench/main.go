// Command abcbench runs the benchmark inference scenarios against a
// chosen sampler, optionally recording per-generation diagnostics into a
// sqlite database for later plotting.
package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/rwcarlsen/abc"
	"github.com/rwcarlsen/abc/abcde"
	"github.com/rwcarlsen/abc/bench"
	"github.com/rwcarlsen/abc/reject"
	"github.com/rwcarlsen/abc/smcpr"
)

var (
	scenario string
	sampler  string
	npart    int
	maxsimpp int
	target   float64
	seed     uint64
	dbpath   string
	verbose  bool
)

func main() {
	cmd := &cobra.Command{
		Use:   "abcbench",
		Short: "run a benchmark scenario through one of the ABC samplers",
		RunE:  run,
	}
	cmd.Flags().StringVar(&scenario, "scenario", "normalmap", "scenario name (normalmap, meanshift, coinflips)")
	cmd.Flags().StringVar(&sampler, "sampler", "abcde", "sampler (rejection, abcde, smcpr)")
	cmd.Flags().IntVar(&npart, "n", 100, "population size")
	cmd.Flags().IntVar(&maxsimpp, "maxsimpp", 200, "simulation budget per particle")
	cmd.Flags().Float64Var(&target, "target", 0.1, "acceptance fraction for the rejection sampler")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "master random seed")
	cmd.Flags().StringVar(&dbpath, "db", "", "sqlite file for per-generation diagnostics")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "log per-generation progress")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level}))

	sc, err := findScenario(scenario)
	if err != nil {
		return err
	}

	var db *sql.DB
	if dbpath != "" {
		db, err = sql.Open("sqlite", dbpath)
		if err != nil {
			return err
		}
		defer db.Close()
	}

	var pop abc.Population
	var eps float64
	converged := true
	switch sampler {
	case "rejection":
		r, err := reject.New(npart, target, reject.Seed(seed), reject.Verbose(log)).Run(sc.Plan)
		if err != nil {
			return err
		}
		pop, eps = r.Pop, r.Eps
	case "abcde":
		s := abcde.New(abcde.N(npart), abcde.MaxSimPP(maxsimpp), abcde.Seed(seed), abcde.Verbose(log), abcde.DB(db))
		r, err := s.Run(sc.Plan, sc.Eps)
		if err != nil {
			return err
		}
		pop, eps, converged = r.Pop, r.Eps, r.Converged
	case "smcpr":
		s := smcpr.New(smcpr.N(npart), smcpr.MaxSimPP(maxsimpp), smcpr.Seed(seed), smcpr.Verbose(log), smcpr.DB(db))
		r, err := s.Run(sc.Plan, sc.Eps)
		if err != nil {
			return err
		}
		pop, eps, converged = r.Pop, r.Eps, r.Converged
	default:
		return fmt.Errorf("unknown sampler %q", sampler)
	}

	log.Info("run complete", "scenario", sc.Name, "sampler", sampler, "converged", converged, "eps", eps)
	fmt.Printf("posterior mean: %v\n", pop.Mean())
	return nil
}

func findScenario(name string) (bench.Scenario, error) {
	for _, sc := range bench.All() {
		if sc.Name == name {
			return sc, nil
		}
	}
	return bench.Scenario{}, fmt.Errorf("unknown scenario %q", name)
}
