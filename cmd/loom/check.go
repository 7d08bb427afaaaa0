package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/go-loom/loom/pkg/meta"
)

var checkCmd = &Command{
	Name:  "check",
	Short: "validate a binding manifest",
	Usage: "loom check <manifest.yaml>",
}

func init() { checkCmd.Run = runCheck }

func runCheck(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", checkCmd.Usage)
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	reg := meta.NewRegistry()
	if err := reg.Load(f); err != nil {
		return fmt.Errorf("manifest rejected: %w", err)
	}

	report(reg)
	return nil
}

func report(reg *meta.Registry) {
	names := reg.TypeNames()
	sort.Strings(names)
	fmt.Printf("manifest ok: %d types\n", len(names))
	for _, name := range names {
		t, _ := reg.Type(name)
		line := fmt.Sprintf("  %-24s props=%d signals=%d", name, len(t.Props), len(t.Signals))
		if t.Container.Kind != meta.ContainerNone {
			line += fmt.Sprintf(" container=%s", t.Container.Kind)
		}
		if len(t.Slots) > 0 {
			line += fmt.Sprintf(" slots=%d", len(t.Slots))
		}
		fmt.Println(line)
	}
}
