package abcde

import (
	"fmt"

	"github.com/rwcarlsen/abc"
)

const (
	// TblGens is the sql table holding one summary row per generation.
	TblGens = "abcdegens"
	// TblParticles is the sql table holding every particle's position and
	// distance at each generation.
	TblParticles = "abcdeparticles"
)

func (s *Sampler) initdb(ndims int) error {
	if s.db == nil {
		return nil
	}

	q := "CREATE TABLE IF NOT EXISTS " + TblGens + " (gen INTEGER,eps REAL,nsim INTEGER,nmutated INTEGER);"
	if _, err := s.db.Exec(q); err != nil {
		return fmt.Errorf("abcde: %v", err)
	}

	q = "CREATE TABLE IF NOT EXISTS " + TblParticles + " (gen INTEGER,particle INTEGER,dist REAL"
	q += xdbsql("define", ndims)
	q += ");"
	if _, err := s.db.Exec(q); err != nil {
		return fmt.Errorf("abcde: %v", err)
	}
	return nil
}

func (s *Sampler) record(gen int, eps float64, nsim, nmutated int, pop abc.Population) {
	if s.db == nil {
		return
	}

	tx, err := s.db.Begin()
	if err != nil {
		s.warnf("diagnostics recording failed", "err", err)
		return
	}

	q := "INSERT INTO " + TblGens + " (gen,eps,nsim,nmutated) VALUES (?,?,?,?);"
	if _, err := tx.Exec(q, gen, eps, nsim, nmutated); err != nil {
		s.warnf("diagnostics recording failed", "err", err)
		tx.Rollback()
		return
	}

	ndims := len(pop.Xs[0])
	q = "INSERT INTO " + TblParticles + " (gen,particle,dist" + xdbsql("x", ndims) + ") VALUES (?,?,?" + xdbsql("?", ndims) + ");"
	for i := range pop.Xs {
		args := []any{gen, i, pop.Dists[i]}
		args = append(args, pos2iface(pop.Xs[i])...)
		if _, err := tx.Exec(q, args...); err != nil {
			// roll the generation back whole rather than committing a
			// partial snapshot
			s.warnf("diagnostics recording failed", "err", err)
			tx.Rollback()
			return
		}
	}
	tx.Commit()
}

func xdbsql(op string, ndims int) string {
	s := ""
	for i := 0; i < ndims; i++ {
		switch op {
		case "?":
			s += ",?"
		case "define":
			s += fmt.Sprintf(",x%v REAL", i)
		case "x":
			s += fmt.Sprintf(",x%v", i)
		default:
			panic("invalid db op " + op)
		}
	}
	return s
}

func pos2iface(pos []float64) []any {
	iface := make([]any, 0, len(pos))
	for _, v := range pos {
		iface = append(iface, v)
	}
	return iface
}
