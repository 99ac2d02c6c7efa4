package gas

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
)

func TestBarrierImagesSubset(t *testing.T) {
	var entered atomic.Int32
	runWorld(t, 4, nil, nil, func(rt *Runtime) error {
		me := rt.MyUnit()
		subset := []UnitID{1, 3}

		if me == 1 || me == 3 {
			entered.Add(1)
		}
		if err := rt.BarrierImages(subset); err != nil {
			return err
		}
		if me == 1 || me == 3 {
			// Both participants must have entered before either
			// returns.
			if got := entered.Load(); got != 2 {
				return fmt.Errorf("unit %d returned with %d participants entered", me, got)
			}
		}
		return rt.TeamAll().Barrier()
	})
}

func TestBarrierImagesNonParticipant(t *testing.T) {
	runWorld(t, 4, nil, nil, func(rt *Runtime) error {
		// Units outside the subset return immediately; a subset the
		// caller is not part of must never block.
		if rt.MyUnit() == 0 || rt.MyUnit() == 2 {
			if err := rt.BarrierImages([]UnitID{1, 3}); err != nil {
				return err
			}
		} else {
			if err := rt.BarrierImages([]UnitID{1, 3}); err != nil {
				return err
			}
		}
		return nil
	})
}

func TestBarrierImagesAll(t *testing.T) {
	runWorld(t, 4, nil, nil, func(rt *Runtime) error {
		return rt.BarrierImages([]UnitID{0, 1, 2, 3})
	})
}

func TestBarrierImagesValidatesUnits(t *testing.T) {
	runWorld(t, 2, nil, nil, func(rt *Runtime) error {
		err := rt.BarrierImages([]UnitID{0, 9})
		if !errors.Is(err, ErrInvalidArgument) {
			return fmt.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		return nil
	})
}
