package inject

import (
	"context"
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/dshills/scenekit/internal/host/sim"
)

// A failed registration never changes the key set, and every key resolves
// to the instance of the registration that first claimed it.
func TestRegisterProperty_KeysAreExclusive(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		c := New()
		c.DeclareInterfaces(weaponType)
		owner := make(map[Key]any)

		ops := rapid.SliceOfN(rapid.IntRange(0, 7), 1, 40).Draw(rt, "ops")
		for _, op := range ops {
			name := fmt.Sprintf("n%d", op%3)
			var inst any = &Sword{Power: op}
			if op >= 4 {
				inst = &Dagger{}
			}
			before := len(c.Keys())
			err := c.Register(name, inst)
			if err != nil {
				if got := len(c.Keys()); got != before {
					rt.Fatalf("failed registration changed key count %d -> %d", before, got)
				}
				continue
			}
			for _, k := range c.Keys() {
				if _, ok := owner[k]; !ok {
					owner[k] = inst
				}
			}
		}
		for k, want := range owner {
			got, ok := c.Get(k.Name, k.Type)
			if !ok || got != want {
				rt.Fatalf("key %s resolves to %v, want %v", k, got, want)
			}
		}
	})
}

// The final wiring is the same whatever order the instances arrive in and
// whether Initialize runs before, between or after them.
func TestRegisterProperty_OrderDoesNotMatter(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		c := New()
		sword := &Sword{Power: 7}
		armory := &Armory{}
		hero := &Hero{Node: sim.NewNode("hero")}
		steps := []string{"init", "sword", "armory", "hero"}
		for _, step := range rapid.Permutation(steps).Draw(rt, "order") {
			var err error
			switch step {
			case "init":
				err = c.Initialize(context.Background())
			case "sword":
				err = c.Register("Sword", sword)
			case "armory":
				err = c.Register("", armory)
			case "hero":
				err = c.Register("hero", hero)
			}
			if err != nil {
				rt.Fatalf("%s: %v", step, err)
			}
		}
		if armory.Primary != Weapon(sword) || hero.Weapon != Weapon(sword) || hero.Armory != armory {
			rt.Fatalf("incomplete wiring: armory=%v hero=%v/%v", armory.Primary, hero.Weapon, hero.Armory)
		}
		if n := len(c.Pending()); n != 0 {
			rt.Fatalf("%d instances still pending", n)
		}
	})
}
